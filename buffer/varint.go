package buffer

// MaxVarintLen is the longest LEB128 encoding of a 64-bit value.
const MaxVarintLen = 10

// ZigZag16 maps signed values onto unsigned ones so that small magnitudes
// stay small: 0 -> 0, -1 -> 1, 1 -> 2, -2 -> 3.
func ZigZag16(v int16) uint16 { return uint16((v << 1) ^ (v >> 15)) }
func ZigZag32(v int32) uint32 { return uint32((v << 1) ^ (v >> 31)) }
func ZigZag64(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func UnZigZag16(u uint16) int16 { return int16(u>>1) ^ -int16(u&1) }
func UnZigZag32(u uint32) int32 { return int32(u>>1) ^ -int32(u&1) }
func UnZigZag64(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

// PutUvarint encodes v into dst, which must hold MaxVarintLen bytes, and
// returns the number of bytes used.
func PutUvarint(dst []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// UvarintLen returns the encoded size of v.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}
