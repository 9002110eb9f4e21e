// Package huffman implements the canonical Huffman compression step
// applied to the message portion of a packet, per spec.md section
// 4.3. The compressed representation is:
//
//	i32 originalMessageLength
//	i32 compressedBitLength
//	u8  uniqueSymbolCount
//	<pre-order tree bits><packed Huffman codes>
package huffman

import (
	"encoding/binary"
	"errors"
)

// PreludeLen is the fixed size, in bytes, of the three prelude fields
// before the tree bitstream.
const PreludeLen = 4 + 4 + 1

var (
	ErrTruncatedTree     = errors.New("huffman: truncated tree bitstream")
	ErrLeafCountMismatch = errors.New("huffman: leaf count does not match uniqueSymbolCount")
	ErrTruncatedPrelude  = errors.New("huffman: truncated prelude")
	ErrTruncatedPayload  = errors.New("huffman: truncated compressed payload")
	ErrTooManySymbols    = errors.New("huffman: more than 256 unique symbols")
)

// Encode compresses message and reports whether compression was
// worthwhile. When ok is false, the caller must send message
// uncompressed and leave the packet's compression bit clear — per
// spec.md's policy: "if the compressed total ... would not be
// shorter than the original, the packet is sent uncompressed".
func Encode(message []byte) (compressed []byte, ok bool) {
	if len(message) == 0 {
		return nil, false
	}

	freqs := make(map[byte]int)
	for _, b := range message {
		freqs[b]++
	}

	root := buildTree(freqs)
	codeTable := codes(root)

	w := &bitWriter{}
	serializeTree(root, w)
	treeBits := w.nbit

	for _, b := range message {
		w.writeBits(codeTable[b])
	}
	compressedBitLength := w.nbit - treeBits

	total := PreludeLen + len(w.buf)
	if total >= len(message) {
		return nil, false
	}

	out := make([]byte, PreludeLen+len(w.buf))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(message)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(compressedBitLength))
	out[8] = byte(len(freqs))
	copy(out[PreludeLen:], w.buf)

	return out, true
}

// Decode reverses Encode. It is the caller's responsibility to only
// call Decode on a packet whose compression bit is set.
func Decode(compressed []byte) ([]byte, error) {
	if len(compressed) < PreludeLen {
		return nil, ErrTruncatedPrelude
	}

	originalLen := int(binary.LittleEndian.Uint32(compressed[0:4]))
	compressedBitLength := int(binary.LittleEndian.Uint32(compressed[4:8]))
	uniqueSymbolCount := int(compressed[8])
	if uniqueSymbolCount == 0 {
		uniqueSymbolCount = 256
	}

	r := &bitReader{buf: compressed[PreludeLen:]}
	root, err := deserializeTree(r, uniqueSymbolCount)
	if err != nil {
		return nil, err
	}

	treeBits := r.nbit
	payload := &bitReader{buf: compressed[PreludeLen:], nbit: treeBits}

	out := make([]byte, 0, originalLen)
	for len(out) < originalLen {
		n := root
		for !n.isLeaf {
			bit, ok := payload.readBit()
			if !ok {
				return nil, ErrTruncatedPayload
			}
			if bit == 0 {
				n = n.left
			} else {
				n = n.right
			}
		}
		out = append(out, n.symbol)
	}

	if payload.nbit-treeBits != compressedBitLength {
		return nil, ErrTruncatedPayload
	}

	return out, nil
}
