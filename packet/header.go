// Package packet implements the wire-level packet header, message
// framing and fragmentation used by every session endpoint.
package packet

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the fixed on-wire size of a Header, in bytes.
const HeaderLen = 28

// CompressionEnabled is bit 0 of Header.Flags. Bits 1-7 are free for
// application use.
const CompressionEnabled uint8 = 1 << 0

var ErrShortHeader = errors.New("packet: buffer shorter than header")

// Header is the fixed 28-byte little-endian header at the start of
// every packet, described in spec section 3.
type Header struct {
	ProtocolVersion   uint16
	AppVersion        uint16
	TimestampMillis   int64
	TotalPacketLength int32
	SenderClientID    uint32
	SenderSecret      uint32
	Flags             uint8
}

// Encode writes h into buf[0:HeaderLen]. buf must be at least
// HeaderLen bytes long.
func (h Header) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], h.ProtocolVersion)
	le.PutUint16(buf[2:4], h.AppVersion)
	le.PutUint64(buf[4:12], uint64(h.TimestampMillis))
	le.PutUint32(buf[12:16], uint32(h.TotalPacketLength))
	le.PutUint32(buf[16:20], h.SenderClientID)
	le.PutUint32(buf[20:24], h.SenderSecret)
	buf[24] = h.Flags
	// bytes 25-27 reserved, always zeroed
	buf[25], buf[26], buf[27] = 0, 0, 0
}

// DecodeHeader parses a Header from buf[0:HeaderLen].
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrShortHeader
	}

	le := binary.LittleEndian
	return Header{
		ProtocolVersion:   le.Uint16(buf[0:2]),
		AppVersion:        le.Uint16(buf[2:4]),
		TimestampMillis:   int64(le.Uint64(buf[4:12])),
		TotalPacketLength: int32(le.Uint32(buf[12:16])),
		SenderClientID:    le.Uint32(buf[16:20]),
		SenderSecret:      le.Uint32(buf[20:24]),
		Flags:             buf[24],
	}, nil
}

// Compressed reports whether bit 0 of Flags is set.
func (h Header) Compressed() bool {
	return h.Flags&CompressionEnabled != 0
}

// SetCompressed sets or clears bit 0 of Flags.
func (h *Header) SetCompressed(v bool) {
	if v {
		h.Flags |= CompressionEnabled
	} else {
		h.Flags &^= CompressionEnabled
	}
}
