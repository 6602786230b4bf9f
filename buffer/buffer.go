// Package buffer implements the typed binary codec used by the network
// layer.
//
// Every accessor is composed from the two span primitives of Spans, so a
// storage only needs to hand out correctly bounded slices. Fixed-width
// values are little-endian. Variable-width values are LEB128, with zigzag
// mapping for signed types. Strings and blobs carry a signed varint byte
// count prefix.
package buffer

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Spans is implemented by buffer storages.
//
// ReadSpan returns the next n readable bytes and advances the cursor.
// WriteSpan returns n writable bytes at the cursor, growing the storage if
// it can, and advances the cursor.
type Spans interface {
	ReadSpan(n int) ([]byte, error)
	WriteSpan(n int) ([]byte, error)
}

// Buffer provides the typed codec on top of a Spans storage.
type Buffer struct {
	spans Spans
}

// NewBuffer wraps s.
func NewBuffer(s Spans) *Buffer {
	return &Buffer{spans: s}
}

func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	return v != 0, err
}

func (b *Buffer) WriteBool(v bool) error {
	if v {
		return b.WriteByte(1)
	}
	return b.WriteByte(0)
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	s, err := b.spans.ReadSpan(1)
	if err != nil {
		return 0, err
	}
	return s[0], nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(v byte) error {
	s, err := b.spans.WriteSpan(1)
	if err != nil {
		return err
	}
	s[0] = v
	return nil
}

func (b *Buffer) ReadUint8() (uint8, error) { return b.ReadByte() }
func (b *Buffer) WriteUint8(v uint8) error  { return b.WriteByte(v) }

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadByte()
	return int8(v), err
}

func (b *Buffer) WriteInt8(v int8) error { return b.WriteByte(byte(v)) }

func (b *Buffer) ReadUint16() (uint16, error) {
	s, err := b.spans.ReadSpan(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(s), nil
}

func (b *Buffer) WriteUint16(v uint16) error {
	s, err := b.spans.WriteSpan(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(s, v)
	return nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) WriteInt16(v int16) error { return b.WriteUint16(uint16(v)) }

func (b *Buffer) ReadUint32() (uint32, error) {
	s, err := b.spans.ReadSpan(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s), nil
}

func (b *Buffer) WriteUint32(v uint32) error {
	s, err := b.spans.WriteSpan(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s, v)
	return nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) WriteInt32(v int32) error { return b.WriteUint32(uint32(v)) }

func (b *Buffer) ReadUint64() (uint64, error) {
	s, err := b.spans.ReadSpan(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s), nil
}

func (b *Buffer) WriteUint64(v uint64) error {
	s, err := b.spans.WriteSpan(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s, v)
	return nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *Buffer) WriteInt64(v int64) error { return b.WriteUint64(uint64(v)) }

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *Buffer) WriteFloat32(v float32) error { return b.WriteUint32(math.Float32bits(v)) }

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *Buffer) WriteFloat64(v float64) error { return b.WriteUint64(math.Float64bits(v)) }

// ReadUvarint reads a LEB128 value of at most MaxVarintLen bytes.
func (b *Buffer) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < MaxVarintLen; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == MaxVarintLen-1 && c > 1 {
			return 0, ErrVarintOverflow
		}
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrVarintOverflow
}

func (b *Buffer) WriteUvarint(v uint64) error {
	var tmp [MaxVarintLen]byte
	n := PutUvarint(tmp[:], v)
	s, err := b.spans.WriteSpan(n)
	if err != nil {
		return err
	}
	copy(s, tmp[:n])
	return nil
}

func (b *Buffer) ReadUvarint32() (uint32, error) {
	v, err := b.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrVarintOverflow
	}
	return uint32(v), nil
}

func (b *Buffer) WriteUvarint32(v uint32) error { return b.WriteUvarint(uint64(v)) }

func (b *Buffer) ReadUvarint16() (uint16, error) {
	v, err := b.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, ErrVarintOverflow
	}
	return uint16(v), nil
}

func (b *Buffer) WriteUvarint16(v uint16) error { return b.WriteUvarint(uint64(v)) }

// ReadVarint reads a zigzag encoded signed value.
func (b *Buffer) ReadVarint() (int64, error) {
	u, err := b.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return UnZigZag64(u), nil
}

func (b *Buffer) WriteVarint(v int64) error { return b.WriteUvarint(ZigZag64(v)) }

func (b *Buffer) ReadVarint32() (int32, error) {
	u, err := b.ReadUvarint32()
	if err != nil {
		return 0, err
	}
	return UnZigZag32(u), nil
}

func (b *Buffer) WriteVarint32(v int32) error { return b.WriteUvarint(uint64(ZigZag32(v))) }

func (b *Buffer) ReadVarint16() (int16, error) {
	u, err := b.ReadUvarint16()
	if err != nil {
		return 0, err
	}
	return UnZigZag16(u), nil
}

func (b *Buffer) WriteVarint16(v int16) error { return b.WriteUvarint(uint64(ZigZag16(v))) }

func (b *Buffer) readLength() (int, error) {
	n, err := b.ReadVarint32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Wrapf(ErrInvalidLength, "negative length prefix %d", n)
	}
	return int(n), nil
}

func (b *Buffer) writeLength(n int) error {
	if n > math.MaxInt32 {
		return errors.Wrapf(ErrCapacityExceeded, "length %d", n)
	}
	return b.WriteVarint32(int32(n))
}

// ReadString reads a length-prefixed UTF-8 string.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.readLength()
	if err != nil {
		return "", err
	}
	s, err := b.spans.ReadSpan(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(s) {
		return "", errors.Wrap(ErrInvalidLength, "string is not valid utf-8")
	}
	return string(s), nil
}

// WriteString writes s prefixed by its byte count.
func (b *Buffer) WriteString(s string) error {
	if err := b.writeLength(len(s)); err != nil {
		return err
	}
	dst, err := b.spans.WriteSpan(len(s))
	if err != nil {
		return err
	}
	copy(dst, s)
	return nil
}

// ReadBytes reads a length-prefixed blob into a new slice.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.readLength()
	if err != nil {
		return nil, err
	}
	s, err := b.spans.ReadSpan(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s)
	return out, nil
}

// WriteBytes writes p prefixed by its length.
func (b *Buffer) WriteBytes(p []byte) error {
	if err := b.writeLength(len(p)); err != nil {
		return err
	}
	return b.WriteRaw(p, 0, len(p))
}

// ReadRaw fills dst[offset:offset+length] without a length prefix.
func (b *Buffer) ReadRaw(dst []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(dst) {
		return errors.Wrapf(ErrInvalidLength, "range [%d:%d] of %d bytes", offset, offset+length, len(dst))
	}
	s, err := b.spans.ReadSpan(length)
	if err != nil {
		return err
	}
	copy(dst[offset:], s)
	return nil
}

// WriteRaw copies p[offset:offset+length] without a length prefix.
func (b *Buffer) WriteRaw(p []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(p) {
		return errors.Wrapf(ErrInvalidLength, "range [%d:%d] of %d bytes", offset, offset+length, len(p))
	}
	s, err := b.spans.WriteSpan(length)
	if err != nil {
		return err
	}
	copy(s, p[offset:offset+length])
	return nil
}

// Write implements io.Writer as a raw copy of p.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.WriteRaw(p, 0, len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
