// Package ping implements round-trip latency measurement between two
// endpoints, correlating requests and responses the way the teacher's
// RPC layer correlates a reply to its request tag.
package ping

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/duskproto/session/wire"
)

// Timeout is the fixed expiry for an unresolved PingRequest.
const Timeout = 3000 * time.Millisecond

var ErrUnknownRequest = errors.New("ping: no pending request for that source/target pair")

// Request tracks one outstanding or completed ping.
type Request struct {
	Source       wire.ClientId
	Target       wire.ClientId
	SendTime     time.Time
	ReceiveTime  time.Time
	ResponseTime time.Time
	Resolved     bool
	Failed       bool
}

// RTT reports the round trip time of a resolved, non-failed request.
func (r Request) RTT() time.Duration {
	if !r.Resolved || r.Failed {
		return 0
	}
	return r.ResponseTime.Sub(r.SendTime)
}

// List tracks outstanding PingRequests for one endpoint and expires
// them after Timeout.
type List struct {
	clock clock.Clock

	mu       sync.Mutex
	requests map[wire.ClientId]*Request
	onResolved func(*Request)
}

// NewList returns an empty List using clk for timing. Pass
// clock.New() in production and a clock.NewMock() in tests.
func NewList(clk clock.Clock) *List {
	return &List{clock: clk, requests: make(map[wire.ClientId]*Request)}
}

// OnResolved registers the callback fired whenever a Request
// transitions to resolved (successfully or by timeout).
func (l *List) OnResolved(f func(*Request)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onResolved = f
}

// Ping starts a new request from source to target. A self-ping
// (source == target) resolves immediately: all three timestamps
// collapse to now and no socket is ever touched.
func (l *List) Ping(source, target wire.ClientId) *Request {
	now := l.clock.Now()
	req := &Request{Source: source, Target: target, SendTime: now}

	if source == target {
		req.ReceiveTime = now
		req.ResponseTime = now
		req.Resolved = true
		l.fireResolved(req)
		return req
	}

	l.mu.Lock()
	l.requests[target] = req
	l.mu.Unlock()
	return req
}

// Received marks the request from source as arrived at its target,
// per the "target endpoint sets receiveTime = now and echoes the
// request back" rule. Call this on the target endpoint.
func Received(req *Request, clk clock.Clock) {
	req.ReceiveTime = clk.Now()
}

// Resolve is called on the source endpoint when the echoed response
// arrives back.
func (l *List) Resolve(target wire.ClientId, receiveTime time.Time) (*Request, error) {
	l.mu.Lock()
	req, ok := l.requests[target]
	if ok {
		delete(l.requests, target)
	}
	l.mu.Unlock()

	if !ok {
		return nil, ErrUnknownRequest
	}

	req.ReceiveTime = receiveTime
	req.ResponseTime = l.clock.Now()
	req.Resolved = true
	l.fireResolved(req)
	return req, nil
}

// SweepExpired fails and resolves every request older than Timeout,
// per the "expires after 3000 ms" lifecycle rule. Call this
// periodically from the same loop that drives socket I/O.
func (l *List) SweepExpired() []*Request {
	now := l.clock.Now()

	l.mu.Lock()
	var expired []*Request
	for target, req := range l.requests {
		if now.Sub(req.SendTime) >= Timeout {
			req.Resolved = true
			req.Failed = true
			expired = append(expired, req)
			delete(l.requests, target)
		}
	}
	l.mu.Unlock()

	for _, req := range expired {
		l.fireResolved(req)
	}
	return expired
}

func (l *List) fireResolved(req *Request) {
	l.mu.Lock()
	cb := l.onResolved
	l.mu.Unlock()
	if cb != nil {
		cb(req)
	}
}
