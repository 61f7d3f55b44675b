package codec

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// maxVarint is the largest length a two-bit-prefixed varint can carry.
const maxVarint = 1<<30 - 1

var (
	// ErrTrailingData is returned when bytes remain after a complete value.
	ErrTrailingData = errors.New("codec: trailing data")
	// ErrNonMinimalVarint is returned for a length that could have been
	// encoded in fewer bytes.
	ErrNonMinimalVarint = errors.New("codec: non-minimal varint")
	// ErrInvalidOptional is returned when an optional presence flag is not 0 or 1.
	ErrInvalidOptional = errors.New("codec: invalid optional flag")
)

// Marshaler writes itself into a cryptobyte builder.
type Marshaler interface {
	Marshal(b *cryptobyte.Builder)
}

// Unmarshaler reads itself from a cryptobyte string, consuming exactly its
// own encoding.
type Unmarshaler interface {
	Unmarshal(s *cryptobyte.String) error
}

// Marshal encodes v into a fresh byte slice.
func Marshal(v Marshaler) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	v.Marshal(b)
	return b.Bytes()
}

// Unmarshal decodes data into v and rejects trailing bytes.
func Unmarshal(data []byte, v Unmarshaler) error {
	s := cryptobyte.String(data)
	if err := v.Unmarshal(&s); err != nil {
		return err
	}
	if !s.Empty() {
		return ErrTrailingData
	}
	return nil
}

// WriteVarint appends an RFC 9000 style variable length integer.
func WriteVarint(b *cryptobyte.Builder, n int) {
	switch {
	case n < 0 || n > maxVarint:
		b.SetError(fmt.Errorf("codec: length %d out of range", n))
	case n < 1<<6:
		b.AddUint8(uint8(n))
	case n < 1<<14:
		b.AddUint16(uint16(n) | 0x4000)
	default:
		b.AddUint32(uint32(n) | 0x80000000)
	}
}

// ReadVarint reads a varint and rejects non-minimal encodings.
func ReadVarint(s *cryptobyte.String, out *int) error {
	if s.Empty() {
		return io.ErrUnexpectedEOF
	}
	switch (*s)[0] >> 6 {
	case 0:
		var v uint8
		if !s.ReadUint8(&v) {
			return io.ErrUnexpectedEOF
		}
		*out = int(v)
	case 1:
		var v uint16
		if !s.ReadUint16(&v) {
			return io.ErrUnexpectedEOF
		}
		v &= 0x3fff
		if v < 1<<6 {
			return ErrNonMinimalVarint
		}
		*out = int(v)
	case 2:
		var v uint32
		if !s.ReadUint32(&v) {
			return io.ErrUnexpectedEOF
		}
		v &= 0x3fffffff
		if v < 1<<14 {
			return ErrNonMinimalVarint
		}
		*out = int(v)
	default:
		return errors.New("codec: invalid varint prefix")
	}
	return nil
}

// WriteOpaque writes a varint length followed by the bytes.
func WriteOpaque(b *cryptobyte.Builder, v []byte) {
	WriteVarint(b, len(v))
	b.AddBytes(v)
}

// ReadOpaque reads a varint-prefixed byte string into a fresh slice.
func ReadOpaque(s *cryptobyte.String, out *[]byte) error {
	var n int
	if err := ReadVarint(s, &n); err != nil {
		return err
	}
	var raw []byte
	if !s.ReadBytes(&raw, n) {
		return io.ErrUnexpectedEOF
	}
	*out = append([]byte(nil), raw...)
	return nil
}

// WriteVector writes n items into a varint-prefixed vector.
func WriteVector(b *cryptobyte.Builder, n int, f func(b *cryptobyte.Builder, i int)) {
	child := cryptobyte.NewBuilder(nil)
	for i := 0; i < n; i++ {
		f(child, i)
	}
	raw, err := child.Bytes()
	if err != nil {
		b.SetError(err)
		return
	}
	WriteOpaque(b, raw)
}

// ReadVector reads a varint-prefixed vector, calling f until its body is
// exhausted.
func ReadVector(s *cryptobyte.String, f func(s *cryptobyte.String) error) error {
	var n int
	if err := ReadVarint(s, &n); err != nil {
		return err
	}
	var raw []byte
	if !s.ReadBytes(&raw, n) {
		return io.ErrUnexpectedEOF
	}
	body := cryptobyte.String(raw)
	for !body.Empty() {
		if err := f(&body); err != nil {
			return err
		}
	}
	return nil
}

// WriteOptional writes the presence flag of an optional value.
func WriteOptional(b *cryptobyte.Builder, present bool) {
	if present {
		b.AddUint8(1)
	} else {
		b.AddUint8(0)
	}
}

// ReadOptional reads a presence flag.
func ReadOptional(s *cryptobyte.String, present *bool) error {
	var v uint8
	if !s.ReadUint8(&v) {
		return io.ErrUnexpectedEOF
	}
	switch v {
	case 0:
		*present = false
	case 1:
		*present = true
	default:
		return ErrInvalidOptional
	}
	return nil
}

// ReadUint8 and friends wrap the cryptobyte readers with an error result.
func ReadUint8(s *cryptobyte.String, out *uint8) error {
	if !s.ReadUint8(out) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func ReadUint16(s *cryptobyte.String, out *uint16) error {
	if !s.ReadUint16(out) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func ReadUint32(s *cryptobyte.String, out *uint32) error {
	if !s.ReadUint32(out) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func ReadUint64(s *cryptobyte.String, out *uint64) error {
	if !s.ReadUint64(out) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// EncodeOpaque returns the varint-prefixed encoding of v.
func EncodeOpaque(v []byte) []byte {
	b := cryptobyte.NewBuilder(nil)
	WriteOpaque(b, v)
	return b.BytesOrPanic()
}
