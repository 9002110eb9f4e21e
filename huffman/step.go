package huffman

import (
	"github.com/duskproto/session/packet"
	"github.com/duskproto/session/transform"
)

// NewStep returns the reserved priority-100 transform step that
// compresses the message region of an outbound packet and
// decompresses it on receive, setting or reading the header's
// compression bit as it goes.
func NewStep() transform.Step {
	return transform.Step{
		Priority: transform.PriorityCompression,
		Name:     "huffman",
		Send:     compressSend,
		Receive:  decompressReceive,
	}
}

func compressSend(pkt []byte) ([]byte, error) {
	if len(pkt) < packet.HeaderLen {
		return pkt, nil
	}

	hdr, err := packet.DecodeHeader(pkt)
	if err != nil {
		return nil, err
	}

	message := pkt[packet.HeaderLen:]
	compressed, ok := Encode(message)
	if !ok {
		hdr.SetCompressed(false)
		hdr.Encode(pkt[:packet.HeaderLen])
		return pkt, nil
	}

	hdr.SetCompressed(true)
	out := make([]byte, packet.HeaderLen+len(compressed))
	copy(out[packet.HeaderLen:], compressed)
	hdr.TotalPacketLength = int32(len(out))
	hdr.Encode(out[:packet.HeaderLen])
	return out, nil
}

func decompressReceive(pkt []byte) ([]byte, error) {
	if len(pkt) < packet.HeaderLen {
		return pkt, nil
	}

	hdr, err := packet.DecodeHeader(pkt)
	if err != nil {
		return nil, err
	}
	if !hdr.Compressed() {
		return pkt, nil
	}

	message, err := Decode(pkt[packet.HeaderLen:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, packet.HeaderLen+len(message))
	copy(out[packet.HeaderLen:], message)
	hdr.SetCompressed(false)
	hdr.TotalPacketLength = int32(len(out))
	hdr.Encode(out[:packet.HeaderLen])
	return out, nil
}
