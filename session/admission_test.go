package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateAdmissionHappyPath(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1", IsHost: false}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2}

	assert.Equal(t, Accepted, EvaluateAdmission(req, p))
}

func TestEvaluateAdmissionWrongAppId(t *testing.T) {
	req := ConnectionRequest{AppId: "WRONG", SessionId: "S1", IsHost: false}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2}

	assert.Equal(t, IncorrectAppId, EvaluateAdmission(req, p))
}

func TestEvaluateAdmissionServerFullByCurrentClients(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1"}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2, CurrentClientCount: 2}

	assert.Equal(t, ServerFull, EvaluateAdmission(req, p))
}

func TestEvaluateAdmissionServerFullByPending(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1"}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2, PendingCount: 2}

	assert.Equal(t, ServerFull, EvaluateAdmission(req, p))
}

func TestEvaluateAdmissionServerRejectsHostFlag(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1", IsHost: true}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2, IsRelay: false}

	assert.Equal(t, Rejected, EvaluateAdmission(req, p))
}

func TestEvaluateAdmissionRelayHostAlreadyAssigned(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1", IsHost: true}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2, IsRelay: true, HostAlreadySet: true}

	assert.Equal(t, HostAlreadyAssigned, EvaluateAdmission(req, p))
}

func TestConnectionRequestRoundTripsThroughWireEncoding(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1", IsHost: true}

	payload, err := EncodeConnectionRequest(req)
	assert.NoError(t, err)

	got, err := DecodeConnectionRequest(payload)
	assert.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestConnectionResponseRoundTripsThroughWireEncoding(t *testing.T) {
	payload := EncodeConnectionResponse(HostAlreadyAssigned)

	got, err := DecodeConnectionResponse(payload)
	assert.NoError(t, err)
	assert.Equal(t, HostAlreadyAssigned, got)
}

func TestDecodeConnectionResponseRejectsShortPayload(t *testing.T) {
	_, err := DecodeConnectionResponse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortResponseDatagram)
}

func TestEvaluateAdmissionRejectsUnwhitelisted(t *testing.T) {
	req := ConnectionRequest{AppId: "APP", SessionId: "S1"}
	p := admissionParams{AppId: "APP", SessionId: "S1", MaxClients: 2, HasWhitelist: true, Whitelisted: false}

	assert.Equal(t, Rejected, EvaluateAdmission(req, p))
}
