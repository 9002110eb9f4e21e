package transform

import "sync/atomic"

// BandwidthRecorder counts bytes flowing through the pipeline. It is
// updated only from the worker thread that owns the socket (spec.md
// section 5's "the bandwidth meter is updated only from the worker
// thread"), so the counters use plain atomics rather than a mutex.
type BandwidthRecorder struct {
	in, out uint64
}

// NewIncomingStep returns the reserved priority-0 step that counts
// bytes read from the socket before any other transform runs.
func (b *BandwidthRecorder) NewIncomingStep() Step {
	return Step{
		Priority: PriorityIncomingBandwidth,
		Name:     "bandwidth.in",
		Receive: func(pkt []byte) ([]byte, error) {
			atomic.AddUint64(&b.in, uint64(len(pkt)))
			return pkt, nil
		},
	}
}

// NewOutgoingStep returns the reserved priority-200 step that counts
// bytes written to the socket after every other transform has run.
func (b *BandwidthRecorder) NewOutgoingStep() Step {
	return Step{
		Priority: PriorityOutgoingBandwidth,
		Name:     "bandwidth.out",
		Send: func(pkt []byte) ([]byte, error) {
			atomic.AddUint64(&b.out, uint64(len(pkt)))
			return pkt, nil
		},
	}
}

// BytesIn reports the cumulative bytes recorded on receive.
func (b *BandwidthRecorder) BytesIn() uint64 { return atomic.LoadUint64(&b.in) }

// BytesOut reports the cumulative bytes recorded on send.
func (b *BandwidthRecorder) BytesOut() uint64 { return atomic.LoadUint64(&b.out) }
