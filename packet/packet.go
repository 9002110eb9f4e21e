package packet

import (
	"encoding/binary"
	"errors"
)

// ErrWouldFragment is returned by Reserve on a Packet built for the
// unreliable transport when the reservation would cross the fragment
// boundary. Fragmentation of the datagram transport is forbidden by
// this rewrite (see SPEC_FULL.md, Open Question decisions #2); the
// caller must shrink the message or send it over the stream
// transport instead.
var ErrWouldFragment = errors.New("packet: message would fragment an unreliable packet")

// ErrIncomplete is returned by Messages when Ingest has not
// yet received the full packet.
var ErrIncomplete = errors.New("packet: not yet complete")

// Packet accumulates typed, length-prefixed messages into a single
// outbound buffer, splitting into fragments when the configured
// budget would be exceeded, and parses inbound bytes back into
// ordered messages. It is never shared across goroutines: each peer
// owns its own send Packet and receive Packet per transport.
type Packet struct {
	Header Header

	// bufferSize is the send budget (spec.md's "bufferSize" config
	// key), header included.
	bufferSize int

	// unreliable marks a Packet built for the datagram transport;
	// Reserve refuses to fragment such packets.
	unreliable bool

	buf     []byte // outbound backing store, buf[0:HeaderLen] is header space
	tail    int    // next write offset, >= HeaderLen
	splitAt int    // -1 if no fragment pending, else offset marking the end of the current fragment

	// inbound state
	recvBuf      []byte
	headerParsed bool
	wantLen      int32
}

// New constructs an outbound Packet with the given send budget.
// unreliable marks the datagram transport, which forbids
// fragmentation.
func New(bufferSize int, unreliable bool) *Packet {
	capacity := bufferSize
	if capacity < HeaderLen {
		capacity = HeaderLen
	}
	p := &Packet{
		bufferSize: bufferSize,
		unreliable: unreliable,
		buf:        make([]byte, HeaderLen, capacity),
		tail:       HeaderLen,
		splitAt:    -1,
	}
	return p
}

// Reserve reserves a length-prefixed region of n bytes and returns a
// slice the caller writes the message body into. The backing store
// doubles when full. If the running total crosses the fragment
// boundary and no split has been recorded yet, the position before
// this message is recorded as the end of the current fragment; the
// message itself is deferred to the next emit/reset cycle.
func (p *Packet) Reserve(n int) ([]byte, error) {
	need := 4 + n

	for len(p.buf) < p.tail+need {
		grown := make([]byte, len(p.buf)*2)
		if len(grown) == 0 {
			grown = make([]byte, HeaderLen*2)
		}
		copy(grown, p.buf)
		p.buf = grown
	}

	binary.LittleEndian.PutUint32(p.buf[p.tail:p.tail+4], uint32(n))
	region := p.buf[p.tail+4 : p.tail+4+n]
	newTail := p.tail + 4 + n

	if p.splitAt < 0 && newTail > p.bufferSize {
		if p.unreliable {
			return nil, ErrWouldFragment
		}
		p.splitAt = p.tail
	}

	p.tail = newTail
	return region, nil
}

// Emit writes the header (TotalPacketLength = the current fragment
// end if a split is pending, else the full tail) and returns the
// ready-to-send slice. The header's SenderSecret/SenderClientID and
// Flags fields must already be set on p.Header by the caller.
func (p *Packet) Emit() []byte {
	end := p.tail
	if p.splitAt >= 0 {
		end = p.splitAt
	}

	p.Header.TotalPacketLength = int32(end)
	p.Header.Encode(p.buf[0:HeaderLen])

	out := make([]byte, end)
	copy(out, p.buf[0:end])
	return out
}

// Reset prepares the Packet for the next send cycle. If no
// fragmentation is active it clears back to header size; otherwise it
// shifts the bytes after the split point to the front and recomputes
// the next fragment end using the same size budget.
func (p *Packet) Reset() {
	if p.splitAt < 0 {
		p.tail = HeaderLen
		return
	}

	remaining := p.tail - p.splitAt
	copy(p.buf[HeaderLen:HeaderLen+remaining], p.buf[p.splitAt:p.tail])
	p.tail = HeaderLen + remaining
	p.splitAt = -1

	p.recomputeSplit()
}

// recomputeSplit re-scans the pending messages after a Reset to find
// where (if anywhere) the next fragment boundary falls, in case more
// than one fragment's worth of messages was already queued.
func (p *Packet) recomputeSplit() {
	off := HeaderLen
	for off < p.tail {
		length := binary.LittleEndian.Uint32(p.buf[off : off+4])
		end := off + 4 + int(length)
		if end > p.bufferSize {
			p.splitAt = off
			return
		}
		off = end
	}
}

// Pending reports whether Reset would leave deferred messages ready
// for another Emit/Reset cycle (i.e. a fragmentation is in progress).
func (p *Packet) Pending() bool {
	return p.splitAt >= 0
}

// Empty reports whether the outbound Packet has nothing queued to
// send: no reserved messages and no pending fragment.
func (p *Packet) Empty() bool {
	return p.tail <= HeaderLen && p.splitAt < 0
}

// Ingest feeds newly-received bytes from data[offset:] into the
// Packet, parsing the header on the first call and then accumulating
// message bytes until Header.TotalPacketLength is reached. It returns
// how many bytes of data[offset:] were consumed; callers must keep
// feeding remaining bytes (e.g. to the next Packet) and keep calling
// Ingest on this Packet with any leftover input until Complete()
// returns true.
func (p *Packet) Ingest(data []byte, offset int) (int, error) {
	src := data[offset:]
	consumed := 0

	if !p.headerParsed {
		need := HeaderLen - len(p.recvBuf)
		take := take(need, len(src))
		p.recvBuf = append(p.recvBuf, src[:take]...)
		src = src[take:]
		consumed += take

		if len(p.recvBuf) < HeaderLen {
			return consumed, nil
		}

		hdr, err := DecodeHeader(p.recvBuf)
		if err != nil {
			return consumed, err
		}
		p.Header = hdr
		p.wantLen = hdr.TotalPacketLength
		p.headerParsed = true
	}

	need := int(p.wantLen) - len(p.recvBuf)
	if need > 0 {
		takeN := take(need, len(src))
		p.recvBuf = append(p.recvBuf, src[:takeN]...)
		consumed += takeN
	}

	return consumed, nil
}

func take(need, avail int) int {
	if need < 0 {
		return 0
	}
	if need < avail {
		return need
	}
	return avail
}

// Complete reports whether Ingest has received the full packet
// (header parsed and TotalPacketLength bytes accumulated).
func (p *Packet) Complete() bool {
	return p.headerParsed && len(p.recvBuf) >= int(p.wantLen)
}

// Messages returns the ordered message slices decoded from the
// message region of an ingested packet. It is an error to call this
// before Complete returns true.
func (p *Packet) Messages() ([][]byte, error) {
	if !p.Complete() {
		return nil, ErrIncomplete
	}

	var out [][]byte
	off := HeaderLen
	for off < len(p.recvBuf) {
		if off+4 > len(p.recvBuf) {
			break
		}
		length := binary.LittleEndian.Uint32(p.recvBuf[off : off+4])
		start := off + 4
		end := start + int(length)
		if end > len(p.recvBuf) {
			break
		}
		out = append(out, p.recvBuf[start:end])
		off = end
	}
	return out, nil
}

// ResetIngest clears inbound state so the Packet can be reused to
// parse the next incoming packet on the same transport.
func (p *Packet) ResetIngest() {
	p.recvBuf = p.recvBuf[:0]
	p.headerParsed = false
	p.wantLen = 0
}

// RawBytes returns the fully-ingested packet's raw bytes (header
// followed by the message region), for a transform step that needs to
// operate on the whole packet before it is reparsed. It is only valid
// to call once Complete returns true, and the returned slice is only
// valid until the next Ingest/ResetIngest call.
func (p *Packet) RawBytes() []byte {
	return p.recvBuf
}

// ParseMessages decodes a Header followed by the same length-prefixed
// message walk Messages performs, but over an arbitrary raw packet
// buffer rather than this Packet's own ingest state. Used after a
// transform step (e.g. decompression) has produced a new buffer whose
// length no longer matches what Ingest originally accumulated.
func ParseMessages(raw []byte) (Header, [][]byte, error) {
	hdr, err := DecodeHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}

	var out [][]byte
	off := HeaderLen
	for off < len(raw) {
		if off+4 > len(raw) {
			break
		}
		length := binary.LittleEndian.Uint32(raw[off : off+4])
		start := off + 4
		end := start + int(length)
		if end > len(raw) {
			break
		}
		out = append(out, raw[start:end])
		off = end
	}
	return hdr, out, nil
}
