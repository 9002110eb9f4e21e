package session

import (
	"errors"
	"sync"

	"github.com/duskproto/session/wire"
)

var (
	ErrDuplicateSecret = errors.New("session: clientSecret already in use")
	ErrUnknownClient   = errors.New("session: no client with that id")
)

// ClientTable tracks every admitted ClientRecord for a server or
// relay, preserving admission order for deterministic host-migration
// fallback.
type ClientTable struct {
	mu      sync.RWMutex
	byId    map[wire.ClientId]*ClientRecord
	byAddr  map[string]wire.ClientId
	order   []wire.ClientId
	nextId  wire.ClientId
}

// NewClientTable returns an empty ClientTable. Ids are minted
// starting at 1, per section 3's "first valid id = 1".
func NewClientTable() *ClientTable {
	return &ClientTable{
		byId:   make(map[wire.ClientId]*ClientRecord),
		byAddr: make(map[string]wire.ClientId),
		nextId: 1,
	}
}

// Add inserts rec, keyed by rec.Id, rejecting a clientSecret already
// held by another connected client.
func (t *ClientTable) Add(rec *ClientRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.byId {
		if existing.Secret == rec.Secret {
			return ErrDuplicateSecret
		}
	}
	t.byId[rec.Id] = rec
	t.order = append(t.order, rec.Id)
	if rec.UdpAddr != nil {
		t.byAddr[rec.UdpAddr.String()] = rec.Id
	}
	return nil
}

// ByAddr returns the record whose UdpAddr matches addr (as produced
// by net.Addr.String()), used to route an inbound UDP datagram to its
// owning client without a per-packet linear scan.
func (t *ClientTable) ByAddr(addr string) (*ClientRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byAddr[addr]
	if !ok {
		return nil, false
	}
	rec, ok := t.byId[id]
	return rec, ok
}

// NextId allocates and returns the next unique ClientId for this
// table's session run. Ids are never reused, even across a
// disconnect/reconnect of the same peer.
func (t *ClientTable) NextId() wire.ClientId {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextId
	t.nextId++
	return id
}

// Remove deletes the record for id, if present.
func (t *ClientTable) Remove(id wire.ClientId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.byId[id]; ok && rec.UdpAddr != nil {
		delete(t.byAddr, rec.UdpAddr.String())
	}
	delete(t.byId, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Get returns the record for id, if present.
func (t *ClientTable) Get(id wire.ClientId) (*ClientRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.byId[id]
	return rec, ok
}

// Len reports the number of currently connected clients.
func (t *ClientTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byId)
}

// OrderedIds returns client ids in admission order, the ordering
// host-migration fallback selection uses.
func (t *ClientTable) OrderedIds() []wire.ClientId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]wire.ClientId, len(t.order))
	copy(out, t.order)
	return out
}

// All returns every currently connected record, in admission order.
func (t *ClientTable) All() []*ClientRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ClientRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byId[id])
	}
	return out
}
