package huffman

import (
	"bytes"
	"testing"

	"github.com/duskproto/session/packet"
	"github.com/duskproto/session/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages := [][]byte{
		[]byte("the quick brown fox jumps over the lazy dog, again and again and again"),
		bytes.Repeat([]byte{'a'}, 200),
		[]byte("aaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbbccccccccccccccccc"),
		[]byte("\x00\x01\x02\x03\x00\x01\x02\x03\x00\x01\x02\x03\x00\x01\x02\x03"),
	}

	for _, msg := range messages {
		compressed, ok := Encode(msg)
		if !ok {
			continue
		}
		decoded, err := Decode(compressed)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestSingleSymbolMessage(t *testing.T) {
	msg := bytes.Repeat([]byte{'z'}, 64)
	compressed, ok := Encode(msg)
	require.True(t, ok)

	decoded, err := Decode(compressed)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestEncodeSkipsWhenNotShorter(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03, 0x04}
	_, ok := Encode(msg)
	assert.False(t, ok, "a 4-byte message with no repeated symbols must not compress smaller")
}

func TestDecodeRejectsTruncatedPrelude(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrTruncatedPrelude)
}

func TestDecodeRejectsLeafCountMismatch(t *testing.T) {
	msg := bytes.Repeat([]byte("hello world"), 4)
	compressed, ok := Encode(msg)
	require.True(t, ok)

	tampered := make([]byte, len(compressed))
	copy(tampered, compressed)
	tampered[8]++ // corrupt uniqueSymbolCount

	_, err := Decode(tampered)
	assert.Error(t, err)
}

// TestStepSkipsCompressionOnShortMessage exercises the "Huffman
// compression skip" scenario: a 4-byte message must be emitted with
// the compression bit clear, no tree embedded, and round-trip equal
// bytes through the transform pipeline steps directly.
func TestStepSkipsCompressionOnShortMessage(t *testing.T) {
	message := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	pkt := make([]byte, packet.HeaderLen+len(message))
	hdr := packet.Header{
		ProtocolVersion:   1,
		AppVersion:        1,
		TotalPacketLength: int32(len(pkt)),
	}
	hdr.Encode(pkt[:packet.HeaderLen])
	copy(pkt[packet.HeaderLen:], message)

	step := NewStep()

	sent, err := step.Send(pkt)
	require.NoError(t, err)

	sentHdr, err := packet.DecodeHeader(sent)
	require.NoError(t, err)
	assert.False(t, sentHdr.Compressed())
	assert.Equal(t, message, sent[packet.HeaderLen:])

	received, err := step.Receive(sent)
	require.NoError(t, err)
	recvHdr, err := packet.DecodeHeader(received)
	require.NoError(t, err)
	assert.False(t, recvHdr.Compressed())
	assert.Equal(t, message, received[packet.HeaderLen:])
}

// TestStepCompressesLongRepetitiveMessage exercises the compressing
// path end to end through the pipeline priority ordering.
func TestStepCompressesLongRepetitiveMessage(t *testing.T) {
	message := bytes.Repeat([]byte("abababababababababab"), 8)

	pkt := make([]byte, packet.HeaderLen+len(message))
	hdr := packet.Header{TotalPacketLength: int32(len(pkt))}
	hdr.Encode(pkt[:packet.HeaderLen])
	copy(pkt[packet.HeaderLen:], message)

	p := transform.New()
	p.Add(NewStep())

	sent, err := p.ApplySend(pkt)
	require.NoError(t, err)

	sentHdr, err := packet.DecodeHeader(sent)
	require.NoError(t, err)
	assert.True(t, sentHdr.Compressed())
	assert.Less(t, len(sent), len(pkt))

	received, err := p.ApplyReceive(sent)
	require.NoError(t, err)
	recvHdr, err := packet.DecodeHeader(received)
	require.NoError(t, err)
	assert.False(t, recvHdr.Compressed())
	assert.Equal(t, message, received[packet.HeaderLen:])
}
