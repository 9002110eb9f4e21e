// Package transform implements the ordered read/send transform
// pipeline applied to every packet just before it is written to a
// socket, and just after it is read from one.
package transform

import "sort"

// Reserved priorities, per spec.md section 4.2. User steps may pick
// any other integer.
const (
	PriorityIncomingBandwidth = 0
	PriorityCompression       = 100
	PriorityOutgoingBandwidth = 200
)

// Step is one entry of the pipeline. Send and Receive operate on the
// whole packet, header included; a step that needs to read or set the
// compression bit does so directly on those bytes (see huffman.NewStep).
type Step struct {
	Priority int
	Name     string
	Send     func(pkt []byte) ([]byte, error)
	Receive  func(pkt []byte) ([]byte, error)
}

// Pipeline holds an ascending-priority-ordered list of Steps.
type Pipeline struct {
	steps []Step
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Add inserts step, keeping the pipeline sorted by ascending priority.
// Stable ordering among equal priorities follows insertion order.
func (p *Pipeline) Add(step Step) {
	p.steps = append(p.steps, step)
	sort.SliceStable(p.steps, func(i, j int) bool {
		return p.steps[i].Priority < p.steps[j].Priority
	})
}

// Remove deletes the first step with the given name, if any.
func (p *Pipeline) Remove(name string) {
	for i, s := range p.steps {
		if s.Name == name {
			p.steps = append(p.steps[:i], p.steps[i+1:]...)
			return
		}
	}
}

// ApplySend runs every step's Send function in ascending priority
// order, just before the packet is written to a socket.
func (p *Pipeline) ApplySend(pkt []byte) ([]byte, error) {
	var err error
	for _, s := range p.steps {
		if s.Send == nil {
			continue
		}
		pkt, err = s.Send(pkt)
		if err != nil {
			return nil, err
		}
	}
	return pkt, nil
}

// ApplyReceive runs every step's Receive function, in the same
// ascending priority order the pipeline maintains for sending. The
// spec does not require receive-side steps to reverse the send order
// (only the send direction is pinned to "low-to-high"), so this
// rewrite applies both directions in one consistent order.
func (p *Pipeline) ApplyReceive(pkt []byte) ([]byte, error) {
	var err error
	for _, s := range p.steps {
		if s.Receive == nil {
			continue
		}
		pkt, err = s.Receive(pkt)
		if err != nil {
			return nil, err
		}
	}
	return pkt, nil
}
