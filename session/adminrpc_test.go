package session

import (
	"testing"

	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminPeerCountReflectsClientTable(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(2), 2, 2048)))

	result := server.HandleAdminQuery(AdminQuery{Command: AdminPeerCount})
	assert.Equal(t, 2, result.PeerCount)
}

func TestAdminIsOnlineReportsPresence(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))

	assert.True(t, server.HandleAdminQuery(AdminQuery{Command: AdminIsOnline, Target: wire.ClientId(1)}).Online)
	assert.False(t, server.HandleAdminQuery(AdminQuery{Command: AdminIsOnline, Target: wire.ClientId(99)}).Online)
}

func TestAdminKickRemovesClient(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))

	result := server.HandleAdminQuery(AdminQuery{Command: AdminKick, Target: wire.ClientId(1)})
	require.NoError(t, result.Err)
	assert.Equal(t, 0, server.clients.Len())
}

func TestAdminBanRejectsFutureAdmissionFromSameIP(t *testing.T) {
	server := newTestServerBuffer()
	rec := NewClientRecord(wire.ClientId(1), 1, 2048)
	rec.UdpAddr = fakeAddr("203.0.113.9:40000")
	require.NoError(t, server.clients.Add(rec))

	result := server.HandleAdminQuery(AdminQuery{Command: AdminBan, Target: wire.ClientId(1), Reason: "cheating"})
	require.NoError(t, result.Err)

	code := server.HandleConnectionRequest(ConnectionRequest{AppId: "APP", SessionId: "S1"}, fakeAddr("203.0.113.9:1"))
	assert.Equal(t, Rejected, code)
}

func TestAdminUnknownCommandErrors(t *testing.T) {
	server := newTestServerBuffer()
	result := server.HandleAdminQuery(AdminQuery{Command: AdminCommand(255)})
	assert.ErrorIs(t, result.Err, ErrUnknownAdminCommand)
}
