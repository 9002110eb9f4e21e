package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Encodable is implemented by any value with a fixed or self-describing
// binary encoding: a primitive, a StringId, or a user argument type
// produced by a ProtocolRegistry.
type Encodable interface {
	EncodedLen() int
	Write(w io.Writer) error
	Read(r io.Reader) error
}

var (
	ErrStringTooLong = errors.New("wire: string exceeds 255 bytes")
	ErrCountExceedsCapacity = errors.New("wire: encoded count exceeds container capacity")
)

// Bool is a 1-byte boolean encodable.
type Bool bool

func (b Bool) EncodedLen() int { return 1 }

func (b Bool) Write(w io.Writer) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func (b *Bool) Read(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	*b = buf[0] != 0
	return nil
}

// U8 is a 1-byte unsigned integer encodable.
type U8 uint8

func (v U8) EncodedLen() int { return 1 }
func (v U8) Write(w io.Writer) error {
	_, err := w.Write([]byte{byte(v)})
	return err
}
func (v *U8) Read(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	*v = U8(buf[0])
	return nil
}

// U16 is a 2-byte little-endian unsigned integer encodable.
type U16 uint16

func (v U16) EncodedLen() int { return 2 }
func (v U16) Write(w io.Writer) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	_, err := w.Write(buf[:])
	return err
}
func (v *U16) Read(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	*v = U16(binary.LittleEndian.Uint16(buf[:]))
	return nil
}

// U32 is a 4-byte little-endian unsigned integer encodable, the
// underlying wire type for ClientId, NetworkId and RpcId.
type U32 uint32

func (v U32) EncodedLen() int { return 4 }
func (v U32) Write(w io.Writer) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}
func (v *U32) Read(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	*v = U32(binary.LittleEndian.Uint32(buf[:]))
	return nil
}

// U64 is an 8-byte little-endian unsigned integer encodable.
type U64 uint64

func (v U64) EncodedLen() int { return 8 }
func (v U64) Write(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}
func (v *U64) Read(r io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	*v = U64(binary.LittleEndian.Uint64(buf[:]))
	return nil
}

// F32 is a 4-byte little-endian IEEE-754 float encodable.
type F32 float32

func (v F32) EncodedLen() int { return 4 }
func (v F32) Write(w io.Writer) error {
	return U32(math.Float32bits(float32(v))).Write(w)
}
func (v *F32) Read(r io.Reader) error {
	var raw U32
	if err := raw.Read(r); err != nil {
		return err
	}
	*v = F32(math.Float32frombits(uint32(raw)))
	return nil
}

// F64 is an 8-byte little-endian IEEE-754 float encodable.
type F64 float64

func (v F64) EncodedLen() int { return 8 }
func (v F64) Write(w io.Writer) error {
	return U64(math.Float64bits(float64(v))).Write(w)
}
func (v *F64) Read(r io.Reader) error {
	var raw U64
	if err := raw.Read(r); err != nil {
		return err
	}
	*v = F64(math.Float64frombits(uint64(raw)))
	return nil
}

// String is a UTF-8 string encodable, length-prefixed with a single
// byte and therefore capped at 255 bytes.
type String string

func (s String) EncodedLen() int { return 1 + len(s) }

func (s String) Write(w io.Writer) error {
	if len(s) > 255 {
		return ErrStringTooLong
	}
	if err := U8(len(s)).Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, string(s))
	return err
}

func (s *String) Read(r io.Reader) error {
	var n U8
	if err := n.Read(r); err != nil {
		return err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	*s = String(buf)
	return nil
}

// Write encodes id as its underlying U32 representation.
func (id ClientId) Write(w io.Writer) error { return U32(id).Write(w) }

// Read decodes id from its underlying U32 representation.
func (id *ClientId) Read(r io.Reader) error {
	var v U32
	if err := v.Read(r); err != nil {
		return err
	}
	*id = ClientId(v)
	return nil
}

// EncodedLen reports the fixed 4-byte width of a ClientId.
func (id ClientId) EncodedLen() int { return 4 }

// Write encodes id as its underlying U32 representation.
func (id NetworkId) Write(w io.Writer) error { return U32(id).Write(w) }

// Read decodes id from its underlying U32 representation.
func (id *NetworkId) Read(r io.Reader) error {
	var v U32
	if err := v.Read(r); err != nil {
		return err
	}
	*id = NetworkId(v)
	return nil
}

// EncodedLen reports the fixed 4-byte width of a NetworkId.
func (id NetworkId) EncodedLen() int { return 4 }

// Write encodes id as its underlying U32 representation.
func (id RpcId) Write(w io.Writer) error { return U32(id).Write(w) }

// Read decodes id from its underlying U32 representation.
func (id *RpcId) Read(r io.Reader) error {
	var v U32
	if err := v.Read(r); err != nil {
		return err
	}
	*id = RpcId(v)
	return nil
}

// EncodedLen reports the fixed 4-byte width of an RpcId.
func (id RpcId) EncodedLen() int { return 4 }

// Write encodes s as a StringIdMaxLen-bounded length-prefixed string.
func (s StringId) Write(w io.Writer) error {
	if !s.Valid() {
		return ErrStringTooLong
	}
	return String(s).Write(w)
}

// Read decodes s from a length-prefixed string.
func (s *StringId) Read(r io.Reader) error {
	var v String
	if err := v.Read(r); err != nil {
		return err
	}
	*s = StringId(v)
	return nil
}

// EncodedLen reports the encoded length of s: one length byte plus
// its bytes.
func (s StringId) EncodedLen() int { return 1 + len(s) }
