package buffer

import (
	"math"
	"testing"

	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func TestFixedWidthLittleEndian(t *testing.T) {
	mb := NewMemoryBuffer(0)
	defer mb.Close()

	ttesting.MustNotError(t, "write u16", mb.WriteUint16(0x0102))
	ttesting.MustNotError(t, "write u32", mb.WriteUint32(0x03040506))
	ttesting.MustNotError(t, "write i64", mb.WriteInt64(-2))
	ttesting.MustNotError(t, "write f32", mb.WriteFloat32(1.5))
	ttesting.MustNotError(t, "write f64", mb.WriteFloat64(-0.25))
	ttesting.MustNotError(t, "write bool", mb.WriteBool(true))
	ttesting.MustNotError(t, "write i8", mb.WriteInt8(-1))
	ttesting.MustNotError(t, "write i16", mb.WriteInt16(math.MinInt16))
	ttesting.MustNotError(t, "write i32", mb.WriteInt32(math.MaxInt32))

	ttesting.AssertEqualBytes(t, "u16 bytes", mb.Bytes()[0:2], []byte{0x02, 0x01})
	ttesting.AssertEqualBytes(t, "u32 bytes", mb.Bytes()[2:6], []byte{0x06, 0x05, 0x04, 0x03})
	ttesting.AssertEqualBytes(t, "i64 bytes", mb.Bytes()[6:14], []byte{0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	ttesting.MustNotError(t, "rewind", mb.Rewind())
	u16, _ := mb.ReadUint16()
	u32, _ := mb.ReadUint32()
	i64, _ := mb.ReadInt64()
	f32, _ := mb.ReadFloat32()
	f64, _ := mb.ReadFloat64()
	bl, _ := mb.ReadBool()
	i8, _ := mb.ReadInt8()
	i16, _ := mb.ReadInt16()
	i32, err := mb.ReadInt32()
	ttesting.MustNotError(t, "read back", err)

	ttesting.AssertEqual(t, "u16", u16, uint16(0x0102))
	ttesting.AssertEqual(t, "u32", u32, uint32(0x03040506))
	ttesting.AssertEqual(t, "i64", i64, int64(-2))
	ttesting.AssertEqual(t, "f32", f32, float32(1.5))
	ttesting.AssertEqual(t, "f64", f64, -0.25)
	ttesting.AssertEqual(t, "bool", bl, true)
	ttesting.AssertEqual(t, "i8", i8, int8(-1))
	ttesting.AssertEqual(t, "i16", i16, int16(math.MinInt16))
	ttesting.AssertEqual(t, "i32", i32, int32(math.MaxInt32))
	ttesting.AssertEqualInt(t, "consumed", mb.Remaining(), 0)
}

func TestZigZag(t *testing.T) {
	ttesting.AssertEqual(t, "0", ZigZag64(0), uint64(0))
	ttesting.AssertEqual(t, "-1", ZigZag64(-1), uint64(1))
	ttesting.AssertEqual(t, "1", ZigZag64(1), uint64(2))
	ttesting.AssertEqual(t, "-2", ZigZag64(-2), uint64(3))
	ttesting.AssertEqual(t, "min32", ZigZag32(math.MinInt32), uint32(math.MaxUint32))
	ttesting.AssertEqual(t, "max16", ZigZag16(math.MaxInt16), uint16(math.MaxUint16-1))
	ttesting.AssertEqual(t, "unzig min64", UnZigZag64(ZigZag64(math.MinInt64)), int64(math.MinInt64))
	ttesting.AssertEqual(t, "unzig -3", UnZigZag16(ZigZag16(-3)), int16(-3))
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 7, 8, 15, 16, 254, 255, 256, 65535, 65536, math.MaxInt32, math.MinInt32}
	for _, v := range values {
		mb := NewMemoryBuffer(0)
		ttesting.MustNotError(t, "write varint", mb.WriteVarint(v))
		ttesting.MustNotError(t, "write varint32", mb.WriteVarint32(int32(v)))
		if v >= 0 {
			ttesting.MustNotError(t, "write uvarint", mb.WriteUvarint(uint64(v)))
		}
		mb.Rewind()

		got, err := mb.ReadVarint()
		ttesting.MustNotError(t, "read varint", err)
		if got != v {
			t.Errorf("varint %d: got %d", v, got)
		}
		got32, err := mb.ReadVarint32()
		ttesting.MustNotError(t, "read varint32", err)
		if int64(got32) != v {
			t.Errorf("varint32 %d: got %d", v, got32)
		}
		if v >= 0 {
			gotU, err := mb.ReadUvarint()
			ttesting.MustNotError(t, "read uvarint", err)
			if gotU != uint64(v) {
				t.Errorf("uvarint %d: got %d", v, gotU)
			}
		}
		mb.Close()
	}
}

func TestUvarintEncoding(t *testing.T) {
	for _, tc := range []struct {
		name string
		v    uint64
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"127", 127, []byte{0x7f}},
		{"128", 128, []byte{0x80, 0x01}},
		{"300", 300, []byte{0xac, 0x02}},
		{"max", math.MaxUint64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
	} {
		mb := NewMemoryBuffer(0)
		ttesting.MustNotError(t, tc.name, mb.WriteUvarint(tc.v))
		ttesting.AssertEqualBytes(t, tc.name, mb.Bytes(), tc.want)
		ttesting.AssertEqualInt(t, tc.name+" len", UvarintLen(tc.v), len(tc.want))
		mb.Close()
	}
}

func TestUvarintOverflow(t *testing.T) {
	tooLong := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := MemoryBufferFrom(tooLong).ReadUvarint()
	ttesting.AssertErrorIs(t, "eleven bytes", err, ErrVarintOverflow)

	tenthTooBig := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}
	_, err = MemoryBufferFrom(tenthTooBig).ReadUvarint()
	ttesting.AssertErrorIs(t, "tenth byte", err, ErrVarintOverflow)

	mb := NewMemoryBuffer(0)
	mb.WriteUvarint(math.MaxUint32 + 1)
	mb.Rewind()
	_, err = mb.ReadUvarint32()
	ttesting.AssertErrorIs(t, "uvarint32", err, ErrVarintOverflow)

	_, err = MemoryBufferFrom([]byte{0x80, 0x80}).ReadUvarint()
	ttesting.AssertErrorIs(t, "truncated", err, ErrBufferUnderflow)
}

func TestStringPrefix(t *testing.T) {
	mb := NewMemoryBuffer(0)
	ttesting.MustNotError(t, "write", mb.WriteString("abcdef"))
	ttesting.AssertEqualBytes(t, "encoding", mb.Bytes(), []byte{0x0c, 'a', 'b', 'c', 'd', 'e', 'f'})

	mb.Rewind()
	s, err := mb.ReadString()
	ttesting.MustNotError(t, "read", err)
	ttesting.AssertEqual(t, "round trip", s, "abcdef")

	mb.Reset()
	ttesting.MustNotError(t, "write utf8", mb.WriteString("héllo, 世界"))
	mb.Rewind()
	s, _ = mb.ReadString()
	ttesting.AssertEqual(t, "utf8", s, "héllo, 世界")
}

func TestStringNegativeLength(t *testing.T) {
	// zigzag(-1) == 1
	_, err := MemoryBufferFrom([]byte{0x01}).ReadString()
	ttesting.AssertErrorIs(t, "negative", err, ErrInvalidLength)

	_, err = MemoryBufferFrom([]byte{0x0c, 'a'}).ReadString()
	ttesting.AssertErrorIs(t, "short", err, ErrBufferUnderflow)
}

func TestBlobs(t *testing.T) {
	mb := NewMemoryBuffer(0)
	payload := []byte{9, 8, 7, 6, 5}
	ttesting.MustNotError(t, "prefixed", mb.WriteBytes(payload))
	ttesting.MustNotError(t, "raw", mb.WriteRaw(payload, 1, 3))
	ttesting.AssertEqualBytes(t, "encoding", mb.Bytes(), []byte{0x0a, 9, 8, 7, 6, 5, 8, 7, 6})

	mb.Rewind()
	got, err := mb.ReadBytes()
	ttesting.MustNotError(t, "read prefixed", err)
	ttesting.AssertEqualBytes(t, "prefixed", got, payload)

	dst := make([]byte, 5)
	ttesting.MustNotError(t, "read raw", mb.ReadRaw(dst, 2, 3))
	ttesting.AssertEqualBytes(t, "raw", dst, []byte{0, 0, 8, 7, 6})

	ttesting.AssertErrorIs(t, "bad range", mb.WriteRaw(payload, 4, 2), ErrInvalidLength)
}

func TestFixedBuffer(t *testing.T) {
	region := make([]byte, 4)
	fb := NewFixedBuffer(region, 0)
	ttesting.MustNotError(t, "fits", fb.WriteUint32(0xdeadbeef))
	ttesting.AssertErrorIs(t, "overflow", fb.WriteByte(1), ErrBufferOverflow)
	ttesting.AssertEqualBytes(t, "region", region, []byte{0xef, 0xbe, 0xad, 0xde})

	rd := NewFixedBuffer(region, 3)
	_, err := rd.ReadUint32()
	ttesting.AssertErrorIs(t, "underflow", err, ErrBufferUnderflow)
	u16, err := rd.ReadUint16()
	ttesting.MustNotError(t, "read u16", err)
	ttesting.AssertEqual(t, "u16", u16, uint16(0xbeef))
	ttesting.AssertEqualBytes(t, "remaining", rd.Remaining(), []byte{0xad})
}
