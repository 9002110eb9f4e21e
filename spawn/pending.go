package spawn

import "sync"

type pendingEntry struct {
	key      interface{}
	callback func(*NetworkObject)
}

// PendingLookup holds callbacks keyed by NetworkId or any user key,
// fired once the matching object appears. Entries are drained once
// per dispatch pass and removed on resolution; unresolved entries
// carry over to the next pass unchanged.
type PendingLookup struct {
	mu      sync.Mutex
	entries []pendingEntry
}

// NewPendingLookup returns an empty PendingLookup.
func NewPendingLookup() *PendingLookup {
	return &PendingLookup{}
}

// Add registers callback to fire the next time DispatchPass resolves
// key.
func (p *PendingLookup) Add(key interface{}, callback func(*NetworkObject)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, pendingEntry{key: key, callback: callback})
}

// Len reports the number of unresolved entries.
func (p *PendingLookup) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// DispatchPass checks every pending entry against resolve once. A
// resolved entry's callback fires and the entry is removed;
// unresolved entries remain for the next pass.
func (p *PendingLookup) DispatchPass(resolve func(key interface{}) (*NetworkObject, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.entries[:0]
	for _, e := range p.entries {
		if obj, ok := resolve(e.key); ok {
			e.callback(obj)
			continue
		}
		remaining = append(remaining, e)
	}
	p.entries = remaining
}
