package session

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/duskproto/session/wire"
)

// ErrShortResponseDatagram is returned when a UDP admission response
// payload is too short to contain a ConnectionResponseCode.
var ErrShortResponseDatagram = errors.New("session: admission response datagram shorter than 4 bytes")

// ConnectionRequest is the UDP admission datagram payload:
// `{appId, sessionId, isHost}`.
type ConnectionRequest struct {
	AppId     wire.StringId
	SessionId wire.StringId
	IsHost    bool
}

// ConnectionResponseCode is the 4-byte little-endian admission
// response datagram payload.
type ConnectionResponseCode int32

const (
	Accepted ConnectionResponseCode = iota
	ServerFull
	IncorrectAppId
	HostAlreadyAssigned
	Rejected
)

// ClientIdAssignment is sent once per client immediately after
// handshake, carried by the reserved LocalClientConnected RPC.
type ClientIdAssignment struct {
	AssignedId   wire.ClientId
	AuthorityId  wire.ClientId
	ClientSecret uint32
	MaxClients   int
}

// admissionParams bundles the server/relay-side state needed to
// evaluate an incoming ConnectionRequest, kept separate from any
// socket so the admission decision is a pure function and testable
// without a network.
type admissionParams struct {
	AppId              wire.StringId
	SessionId          wire.StringId
	MaxClients         int
	CurrentClientCount int
	PendingCount       int
	Whitelisted        bool
	HasWhitelist       bool
	HostAlreadySet     bool
	IsRelay            bool
}

// EvaluateAdmission implements the server role's admission checks from
// section 4.5.1, in this order: appId/sessionId match, IP allowlist,
// capacity, then the not-host flag for a plain server (or the
// host-already-assigned check for a relay). The first failing check
// decides the response code.
func EvaluateAdmission(req ConnectionRequest, p admissionParams) ConnectionResponseCode {
	if req.AppId != p.AppId || req.SessionId != p.SessionId {
		return IncorrectAppId
	}
	if p.HasWhitelist && !p.Whitelisted {
		return Rejected
	}
	if p.CurrentClientCount >= p.MaxClients || p.PendingCount >= p.MaxClients {
		return ServerFull
	}
	if !p.IsRelay && req.IsHost {
		return Rejected
	}
	if p.IsRelay && req.IsHost && p.HostAlreadySet {
		return HostAlreadyAssigned
	}
	return Accepted
}

// EncodeConnectionRequest serializes req as the UDP admission
// datagram payload: appId, sessionId, isHost.
func EncodeConnectionRequest(req ConnectionRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := req.AppId.Write(&buf); err != nil {
		return nil, err
	}
	if err := req.SessionId.Write(&buf); err != nil {
		return nil, err
	}
	if err := wire.Bool(req.IsHost).Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeConnectionRequest parses a UDP admission datagram payload.
func DecodeConnectionRequest(payload []byte) (ConnectionRequest, error) {
	r := bytes.NewReader(payload)

	var appId, sessionId wire.StringId
	if err := appId.Read(r); err != nil {
		return ConnectionRequest{}, err
	}
	if err := sessionId.Read(r); err != nil {
		return ConnectionRequest{}, err
	}
	var isHost wire.Bool
	if err := isHost.Read(r); err != nil {
		return ConnectionRequest{}, err
	}
	return ConnectionRequest{AppId: appId, SessionId: sessionId, IsHost: bool(isHost)}, nil
}

// EncodeConnectionResponse serializes code as the 4-byte
// little-endian admission response datagram payload.
func EncodeConnectionResponse(code ConnectionResponseCode) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(code))
	return buf
}

// DecodeConnectionResponse parses a 4-byte little-endian admission
// response datagram payload.
func DecodeConnectionResponse(payload []byte) (ConnectionResponseCode, error) {
	if len(payload) < 4 {
		return 0, ErrShortResponseDatagram
	}
	return ConnectionResponseCode(int32(binary.LittleEndian.Uint32(payload))), nil
}
