package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/wire"
)

// ErrInvalidState is returned by Send and Receive when called in
// threaded mode, per section 5: those operations belong exclusively to
// the worker goroutine in that mode.
var ErrInvalidState = errors.New("session: operation not valid while the connection is in threaded mode")

// request is one control operation the caller submits to the worker
// in threaded mode: disconnect-client or migrate-host, per section 5.
type request struct {
	disconnectClient bool
	migrateHost      bool
	migrateTarget    wire.ClientId
	done             chan error
}

// subscription is one registered Subscribe callback, kept in
// registration order so notify runs them deterministically.
type subscription struct {
	id int
	fn func(Message)
}

// Connection composes a Buffer with the optional dedicated I/O
// thread, exposing the public receive/execute_queue/send API and
// dispatching inbound Messages, per section 5's concurrency model.
// Grounded on the teacher's goroutine-per-Peer Proxy pattern, but
// restructured around a single supervised worker with bounded queues
// instead of a raw fire-and-forget goroutine pair.
//
// Dispatch is two-layered: handleInternal applies the built-in
// control-message effects every role needs regardless of whether the
// application drains ExecuteQueue (spawn/despawn mirroring, ping
// resolution, host migration, subscriber notification), and
// ExecuteQueue additionally hands every Message to the caller's own
// dispatch function.
type Connection struct {
	// RunID uniquely names this process's session run, letting a log
	// aggregator disambiguate ClientId reuse across separate runs
	// (audit trail rows do not carry it). It is pure ambient
	// bookkeeping, never sent over the wire.
	RunID uuid.UUID

	buffer      Buffer
	registry    *rpcproto.Registry
	spawner     *spawn.Spawner
	pings       *ping.List
	threaded    bool
	updateDelta time.Duration

	group  *errgroup.Group
	cancel context.CancelFunc

	events   chan Message
	requests chan request

	mu     sync.Mutex
	active bool

	subMu     sync.Mutex
	nextSubId int
	subs      map[wire.RpcId][]subscription
}

// NewConnection wraps buffer, running its I/O on a dedicated worker
// goroutine when cfg.Threaded is true, or leaving it to the caller's
// own receive/execute_queue/send calls otherwise. The worker paces
// itself at cfg.ThreadUpdateDelta between iterations. registry,
// spawner and pings must be the same instances the Buffer itself was
// constructed with, so control-message decoding and ping resolution
// operate on the same tables the Buffer's own codec uses.
func NewConnection(buffer Buffer, cfg Config, registry *rpcproto.Registry, spawner *spawn.Spawner, pings *ping.List) *Connection {
	return &Connection{
		RunID:       uuid.New(),
		buffer:      buffer,
		registry:    registry,
		spawner:     spawner,
		pings:       pings,
		threaded:    cfg.Threaded,
		updateDelta: cfg.ThreadUpdateDelta(),
		events:      make(chan Message, 256),
		requests:    make(chan request, 32),
		active:      true,
		subs:        make(map[wire.RpcId][]subscription),
	}
}

// Subscribe registers fn to run, in registration order, whenever a
// Message carrying the given RpcId passes through handleInternal (see
// ExecuteQueue and the threaded worker loop). It returns an
// unsubscribe function.
func (c *Connection) Subscribe(rpcId wire.RpcId, fn func(Message)) func() {
	c.subMu.Lock()
	id := c.nextSubId
	c.nextSubId++
	c.subs[rpcId] = append(c.subs[rpcId], subscription{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		list := c.subs[rpcId]
		for i, s := range list {
			if s.id == id {
				c.subs[rpcId] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (c *Connection) notify(msg Message) {
	c.subMu.Lock()
	list := append([]subscription(nil), c.subs[msg.RpcId]...)
	c.subMu.Unlock()
	for _, s := range list {
		s.fn(msg)
	}
}

// handleInternal applies the built-in effect (if any) of one decoded
// Message and notifies subscribers of that RpcId. It runs for every
// Message the buffer produces, independent of whether the caller ever
// drains ExecuteQueue.
func (c *Connection) handleInternal(msg Message) {
	switch msg.RpcId {
	case wire.RpcSpawn:
		if sm, err := decodeSpawn(c.registry, msg.Payload); err == nil {
			c.spawner.ApplyRemoteSpawn(sm)
		}
	case wire.RpcDespawn:
		if dm, err := decodeDespawn(c.registry, msg.Payload); err == nil {
			c.spawner.ApplyRemoteDespawn(dm)
		}
	case wire.RpcHostMigration:
		if newAuthority, err := decodeHostMigration(c.registry, msg.Payload); err == nil {
			if applier, ok := c.buffer.(interface {
				ApplyHostMigration(wire.ClientId) MigrationOutcome
			}); ok {
				applier.ApplyHostMigration(newAuthority)
			}
		}
	case wire.RpcPing:
		c.handlePing(msg)
	}
	c.notify(msg)
}

// handlePing implements the two-leg round trip: a zero ReceiveTime
// means this Message is the outbound request arriving at its target,
// which stamps ReceiveTime and echoes it back; a non-zero ReceiveTime
// means it is that echo arriving back at the original source, which
// resolves the outstanding ping.List entry.
func (c *Connection) handlePing(msg Message) {
	p, err := decodePingPayload(c.registry, msg.Payload)
	if err != nil {
		return
	}

	if p.ReceiveTime.IsZero() {
		p.ReceiveTime = time.Now()
		echo := ping.Request{Source: p.Target, Target: p.Source, SendTime: p.SendTime, ReceiveTime: p.ReceiveTime}
		if reply, err := pingMessage(c.registry, echo); err == nil {
			c.buffer.Enqueue(reply)
		}
		return
	}

	c.pings.Resolve(p.Source, p.ReceiveTime)
}

// Ping starts a round-trip latency measurement to target, delegating
// to the underlying Buffer, whose Ping method both records the
// outstanding request and enqueues the wire RPC.
func (c *Connection) Ping(target wire.ClientId) *ping.Request {
	return c.buffer.Ping(target)
}

// Start launches the background worker in threaded mode. It is a
// no-op in synchronous mode.
func (c *Connection) Start(ctx context.Context, updateDelta func()) error {
	if !c.threaded {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	c.group = group

	interval := c.updateDelta
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)

	group.Go(func() error {
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case req := <-c.requests:
				c.serviceRequest(req)
				continue
			case <-ticker.C:
			}

			msgs, err := c.buffer.Receive()
			if err != nil {
				return err
			}
			for _, m := range msgs {
				c.handleInternal(m)
				select {
				case c.events <- m:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err := c.buffer.Send(); err != nil {
				return err
			}
			if updateDelta != nil {
				updateDelta()
			}
		}
	})
	return nil
}

func (c *Connection) serviceRequest(req request) {
	var err error
	switch {
	case req.disconnectClient:
		err = c.buffer.Disconnect()
	case req.migrateHost:
		err = c.buffer.MigrateHost(req.migrateTarget)
	}
	if req.done != nil {
		req.done <- err
	}
}

// Stop cancels the worker goroutine, if any, and waits for it to
// exit.
func (c *Connection) Stop() error {
	if !c.threaded || c.group == nil {
		return nil
	}
	c.cancel()
	err := c.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Send flushes outbound Messages. In threaded mode this is the
// worker's exclusive job and the call fails with ErrInvalidState.
func (c *Connection) Send() error {
	if c.threaded {
		return ErrInvalidState
	}
	return c.buffer.Send()
}

// Receive drains inbound Messages, running handleInternal on each
// before queuing it for ExecuteQueue; once 256 Messages are waiting
// undrained, further ones are not queued. In threaded mode this is the
// worker's exclusive job and the call fails with ErrInvalidState; use
// ExecuteQueue instead to drain the event queue it fills.
func (c *Connection) Receive() ([]Message, error) {
	if c.threaded {
		return nil, ErrInvalidState
	}
	msgs, err := c.buffer.Receive()
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		c.handleInternal(m)
		select {
		case c.events <- m:
		default:
		}
	}
	return msgs, nil
}

// ExecuteQueue drains every Message currently queued from the worker
// (threaded mode) and hands each to dispatch, on the caller's thread.
// In synchronous mode it drains whatever the most recent Receive call
// queued.
func (c *Connection) ExecuteQueue(dispatch func(Message)) int {
	n := 0
	for {
		select {
		case m := <-c.events:
			dispatch(m)
			n++
		default:
			return n
		}
	}
}

// Enqueue appends msg to the outbound queue for the next Send.
func (c *Connection) Enqueue(msg Message) error {
	return c.buffer.Enqueue(msg)
}

// RequestDisconnectClient submits a disconnect-client control request
// to the worker in threaded mode, or executes it immediately in
// synchronous mode.
func (c *Connection) RequestDisconnectClient() error {
	if !c.threaded {
		return c.buffer.Disconnect()
	}
	done := make(chan error, 1)
	c.requests <- request{disconnectClient: true, done: done}
	return <-done
}

// RequestMigrateHost submits a migrate-host control request to the
// worker in threaded mode, or executes it immediately in synchronous
// mode. newHostId may be wire.ClientIdNone to use the deterministic
// admission-order fallback.
func (c *Connection) RequestMigrateHost(newHostId wire.ClientId) error {
	if !c.threaded {
		return c.buffer.MigrateHost(newHostId)
	}
	done := make(chan error, 1)
	c.requests <- request{migrateHost: true, migrateTarget: newHostId, done: done}
	return <-done
}

// Buffer returns the underlying Buffer, for role-specific operations
// (Ping) that the façade does not wrap.
func (c *Connection) Buffer() Buffer { return c.buffer }
