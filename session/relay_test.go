package session

import (
	"testing"

	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/transform"
	"github.com/duskproto/session/wire"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServerBuffer() *ServerBuffer {
	cfg := Defaults()
	cfg.AppId = "APP"
	cfg.SessionId = "S1"
	cfg.MaxClients = 4
	return NewServerBuffer(cfg, transform.New(), rpcproto.NewRegistry(), spawn.NewSpawner(spawn.NewTypeRegistry(), true), ping.NewList(clock.NewMock()))
}

func TestEvaluateHostSelectionFirstAdmissionWithoutDeclaredAddr(t *testing.T) {
	relay := NewRelayBuffer(newTestServerBuffer(), Defaults())

	becomes, reject := relay.EvaluateHostSelection("10.0.0.5")
	assert.True(t, becomes)
	assert.False(t, reject)
}

func TestEvaluateHostSelectionRejectsNonDeclaredAddr(t *testing.T) {
	cfg := Defaults()
	cfg.HostAddr = "10.0.0.1"
	relay := NewRelayBuffer(newTestServerBuffer(), cfg)

	becomes, reject := relay.EvaluateHostSelection("10.0.0.99")
	assert.False(t, becomes)
	assert.True(t, reject)
}

func TestEvaluateHostSelectionAcceptsDeclaredAddr(t *testing.T) {
	cfg := Defaults()
	cfg.HostAddr = "10.0.0.1"
	relay := NewRelayBuffer(newTestServerBuffer(), cfg)

	becomes, reject := relay.EvaluateHostSelection("10.0.0.1")
	assert.True(t, becomes)
	assert.False(t, reject)
}

func TestEvaluateHostSelectionOnceAssignedNobodyElseQualifies(t *testing.T) {
	relay := NewRelayBuffer(newTestServerBuffer(), Defaults())
	relay.AssignAuthority(wire.ClientId(1))

	becomes, reject := relay.EvaluateHostSelection("10.0.0.5")
	assert.False(t, becomes)
	assert.False(t, reject)
}

func TestMigrateHostSelectsFallbackAndEnqueuesBroadcast(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(2), 2, 2048)))

	relay := NewRelayBuffer(server, Defaults())
	relay.AssignAuthority(wire.ClientId(1))

	err := relay.MigrateHost(wire.ClientIdNone)
	require.NoError(t, err)
	assert.Equal(t, wire.ClientId(2), relay.Authority())
	require.Len(t, server.outbox[wire.ClientId(2)], 1)
	assert.Equal(t, wire.RpcHostMigration, server.outbox[wire.ClientId(2)][0].RpcId)
}

func TestHandleAuthorityDisconnectShutsDownWhenNotMigratable(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))

	relay := NewRelayBuffer(server, Defaults())
	relay.AssignAuthority(wire.ClientId(1))

	migrated, shutdown, err := relay.HandleAuthorityDisconnect(wire.ClientId(1), false)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.True(t, shutdown)
}

func TestHandleAuthorityDisconnectMigratesWhenAllowed(t *testing.T) {
	server := newTestServerBuffer()
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))
	require.NoError(t, server.clients.Add(NewClientRecord(wire.ClientId(2), 2, 2048)))

	relay := NewRelayBuffer(server, Defaults())
	relay.AssignAuthority(wire.ClientId(1))

	migrated, shutdown, err := relay.HandleAuthorityDisconnect(wire.ClientId(1), true)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.False(t, shutdown)
	assert.Equal(t, wire.ClientId(2), relay.Authority())
}

func TestHandleAuthorityDisconnectIgnoresNonAuthority(t *testing.T) {
	server := newTestServerBuffer()
	relay := NewRelayBuffer(server, Defaults())
	relay.AssignAuthority(wire.ClientId(1))

	migrated, shutdown, err := relay.HandleAuthorityDisconnect(wire.ClientId(2), true)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.False(t, shutdown)
}

func TestShouldShutdownWhenEmptyForcesMigratable(t *testing.T) {
	cfg := Defaults()
	cfg.ShutdownWhenEmpty = false
	cfg.Migratable = false

	shutdown, migratable := ShouldShutdownWhenEmpty(cfg)
	assert.False(t, shutdown)
	assert.True(t, migratable)
}

func TestShouldShutdownWhenEmptyHonorsConfiguredMigratable(t *testing.T) {
	cfg := Defaults()
	cfg.ShutdownWhenEmpty = true
	cfg.Migratable = true

	shutdown, migratable := ShouldShutdownWhenEmpty(cfg)
	assert.True(t, shutdown)
	assert.True(t, migratable)
}
