package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		ProtocolVersion:   3,
		AppVersion:        7,
		TimestampMillis:   1717171717000,
		TotalPacketLength: 128,
		SenderClientID:    42,
		SenderSecret:      0xdeadbeef,
		Flags:             CompressionEnabled,
	}

	buf := make([]byte, HeaderLen)
	h.Encode(buf)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Compressed())
}

func TestReserveEmitRoundTrip(t *testing.T) {
	p := New(2048, false)
	region, err := p.Reserve(5)
	require.NoError(t, err)
	copy(region, []byte("hello"))

	out := p.Emit()

	rp := New(2048, false)
	consumed, err := rp.Ingest(out, 0)
	require.NoError(t, err)
	assert.Equal(t, len(out), consumed)
	require.True(t, rp.Complete())

	msgs, err := rp.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", string(msgs[0]))
	assert.Equal(t, int32(len(out)), rp.Header.TotalPacketLength)
}

func TestIngestAcrossMultipleCalls(t *testing.T) {
	p := New(2048, false)
	region, _ := p.Reserve(3)
	copy(region, []byte("abc"))
	out := p.Emit()

	rp := New(2048, false)
	// feed one byte at a time
	total := 0
	for i := 0; i < len(out); i++ {
		n, err := rp.Ingest(out[:i+1], i)
		require.NoError(t, err)
		require.LessOrEqual(t, n, 1)
		total += n
		if rp.Complete() {
			break
		}
	}
	assert.True(t, rp.Complete())
	msgs, err := rp.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc", string(msgs[0]))
}

// TestFragmentationBudget checks the invariant from spec.md section 8:
// for any sequence of reserve(n_i) with sum(n_i) > bufferSize, the
// resulting sequence of emit/reset cycles produces fragments each no
// longer than bufferSize, and concatenating their message regions in
// order reproduces the original message sequence.
func TestFragmentationBudget(t *testing.T) {
	const budget = 64
	p := New(budget, false)

	msgs := [][]byte{
		[]byte("0123456789"),
		[]byte("abcdefghij"),
		[]byte("ABCDEFGHIJ"),
		[]byte("klmnopqrst"),
		[]byte("KLMNOPQRST"),
		[]byte("uvwxyz0123"),
	}

	for _, m := range msgs {
		for {
			region, err := p.Reserve(len(m))
			if err == nil {
				copy(region, m)
				break
			}
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}

	var fragments [][]byte
	for {
		frag := p.Emit()
		assert.LessOrEqual(t, len(frag), budget)
		fragments = append(fragments, frag)
		if !p.Pending() {
			break
		}
		p.Reset()
	}

	var replay [][]byte
	for _, frag := range fragments {
		rp := New(budget, false)
		n, err := rp.Ingest(frag, 0)
		require.NoError(t, err)
		require.Equal(t, len(frag), n)
		require.True(t, rp.Complete())

		fragMsgs, err := rp.Messages()
		require.NoError(t, err)
		replay = append(replay, fragMsgs...)
	}

	require.Len(t, replay, len(msgs))
	for i := range msgs {
		assert.Equal(t, string(msgs[i]), string(replay[i]))
	}
}

func TestUnreliableRefusesFragmentation(t *testing.T) {
	p := New(16, true)
	_, err := p.Reserve(64)
	assert.ErrorIs(t, err, ErrWouldFragment)
}
