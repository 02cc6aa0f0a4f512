package btree

import "encoding/binary"

// Uint64Codec encodes a uint64 key or value as 8 little-endian bytes, the
// fixed-size integer keys used throughout the storage core's own tests and
// the clustered primary index over INTEGER columns.
type Uint64Codec struct{}

func (Uint64Codec) Size() int { return 8 }
func (Uint64Codec) Encode(v uint64, dst []byte) {
	binary.LittleEndian.PutUint64(dst, v)
}
func (Uint64Codec) Decode(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }

// CmpUint64 orders uint64 keys numerically.
func CmpUint64(a, b uint64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// Char16Codec encodes a fixed CHAR(16)-style string key, truncated/padded
// with zero bytes to exactly 16 bytes.
type Char16Codec struct{}

func (Char16Codec) Size() int { return 16 }
func (Char16Codec) Encode(v string, dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, v)
}
func (Char16Codec) Decode(src []byte) string {
	n := len(src)
	for n > 0 && src[n-1] == 0 {
		n--
	}
	return string(src[:n])
}

// CmpChar16 orders CHAR(16) keys lexicographically.
func CmpChar16(a, b string) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}
