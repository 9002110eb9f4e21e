package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConnection wires a fresh registry/spawner/pings triple, the
// way a cmd/* main does, so the fakeBuffer-based tests below exercise
// the same construction shape production code uses.
func newTestConnection(buffer Buffer, cfg Config) *Connection {
	return NewConnection(buffer, cfg, rpcproto.NewRegistry(), spawn.NewSpawner(spawn.NewTypeRegistry(), true), ping.NewList(clock.NewMock()))
}

// fakeBuffer is a minimal Buffer double for exercising Connection's
// threading and control-request plumbing without real sockets.
type fakeBuffer struct {
	mu sync.Mutex

	toDeliver    []Message
	sendCalls    int
	disconnected bool
	disconnectedClient wire.ClientId
	migratedTo   wire.ClientId
	migrateErr   error
	localId      wire.ClientId
	authority    wire.ClientId

	receiveCalls int
	blockAfter   int
}

func (f *fakeBuffer) Receive() ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiveCalls++
	if f.blockAfter > 0 && f.receiveCalls > f.blockAfter {
		time.Sleep(time.Millisecond)
	}
	msgs := f.toDeliver
	f.toDeliver = nil
	return msgs, nil
}

func (f *fakeBuffer) Send() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	return nil
}

func (f *fakeBuffer) Enqueue(Message) error { return nil }

func (f *fakeBuffer) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeBuffer) DisconnectClient(id wire.ClientId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectedClient = id
	return nil
}

func (f *fakeBuffer) MigrateHost(newHostId wire.ClientId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.migrateErr != nil {
		return f.migrateErr
	}
	f.migratedTo = newHostId
	return nil
}

func (f *fakeBuffer) Ping(target wire.ClientId) *ping.Request { return nil }
func (f *fakeBuffer) LocalId() wire.ClientId                  { return f.localId }
func (f *fakeBuffer) Authority() wire.ClientId                { return f.authority }

func TestSynchronousModeSendReceiveDelegateDirectly(t *testing.T) {
	fb := &fakeBuffer{toDeliver: []Message{{RpcId: wire.RpcId(30)}}}
	cfg := Defaults()
	cfg.Threaded = false
	conn := newTestConnection(fb, cfg)

	msgs, err := conn.Receive()
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	require.NoError(t, conn.Send())
	assert.Equal(t, 1, fb.sendCalls)
}

func TestThreadedModeSendReceiveReturnInvalidState(t *testing.T) {
	fb := &fakeBuffer{}
	cfg := Defaults()
	cfg.Threaded = true
	conn := newTestConnection(fb, cfg)

	_, err := conn.Receive()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, conn.Send(), ErrInvalidState)
}

func TestThreadedModeDeliversMessagesThroughExecuteQueue(t *testing.T) {
	fb := &fakeBuffer{toDeliver: []Message{{RpcId: wire.RpcId(31)}, {RpcId: wire.RpcId(32)}}}
	cfg := Defaults()
	cfg.Threaded = true
	conn := newTestConnection(fb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Start(ctx, nil))

	var got []Message
	require.Eventually(t, func() bool {
		got = append(got, drainOnce(conn)...)
		return len(got) >= 2
	}, time.Second, time.Millisecond)

	assert.Len(t, got, 2)
	require.NoError(t, conn.Stop())
}

func drainOnce(c *Connection) []Message {
	var out []Message
	c.ExecuteQueue(func(m Message) { out = append(out, m) })
	return out
}

func TestRequestDisconnectClientSynchronous(t *testing.T) {
	fb := &fakeBuffer{}
	cfg := Defaults()
	cfg.Threaded = false
	conn := newTestConnection(fb, cfg)

	require.NoError(t, conn.RequestDisconnectClient())
	assert.True(t, fb.disconnected)
}

func TestRequestDisconnectClientThreaded(t *testing.T) {
	fb := &fakeBuffer{}
	cfg := Defaults()
	cfg.Threaded = true
	conn := newTestConnection(fb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Start(ctx, nil))

	require.NoError(t, conn.RequestDisconnectClient())
	assert.True(t, fb.disconnected)
	require.NoError(t, conn.Stop())
}

func TestRequestMigrateHostThreadedRoundTrips(t *testing.T) {
	fb := &fakeBuffer{}
	cfg := Defaults()
	cfg.Threaded = true
	conn := newTestConnection(fb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Start(ctx, nil))

	require.NoError(t, conn.RequestMigrateHost(wire.ClientId(7)))
	assert.Equal(t, wire.ClientId(7), fb.migratedTo)
	require.NoError(t, conn.Stop())
}

func TestRequestMigrateHostSynchronousPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	fb := &fakeBuffer{migrateErr: wantErr}
	cfg := Defaults()
	cfg.Threaded = false
	conn := newTestConnection(fb, cfg)

	err := conn.RequestMigrateHost(wire.ClientId(2))
	assert.ErrorIs(t, err, wantErr)
}

func TestNewConnectionAssignsUniqueRunID(t *testing.T) {
	cfg := Defaults()
	a := newTestConnection(&fakeBuffer{}, cfg)
	b := newTestConnection(&fakeBuffer{}, cfg)

	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestStopIsNoopInSynchronousMode(t *testing.T) {
	fb := &fakeBuffer{}
	cfg := Defaults()
	cfg.Threaded = false
	conn := newTestConnection(fb, cfg)
	assert.NoError(t, conn.Stop())
}
