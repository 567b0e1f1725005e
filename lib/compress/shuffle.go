package compress

import (
	"encoding/binary"
	"fmt"
)

// Shuffle is the byte/bit reordering applied to a chunk before it is
// compressed.
type Shuffle uint8

const (
	NoShuffle Shuffle = iota
	ByteShuffle
	BitShuffle
)

func (s Shuffle) String() string {
	switch s {
	case NoShuffle:
		return "none"
	case ByteShuffle:
		return "shuffle"
	case BitShuffle:
		return "bitshuffle"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// ParseShuffle is the inverse of Shuffle.String.
func ParseShuffle(s string) (Shuffle, error) {
	switch s {
	case "none", "":
		return NoShuffle, nil
	case "shuffle":
		return ByteShuffle, nil
	case "bitshuffle":
		return BitShuffle, nil
	}
	return 0, fmt.Errorf("'%s' is not a shuffle mode. Valid modes are "+
		"'none', 'shuffle', and 'bitshuffle'.", s)
}

func (s Shuffle) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Shuffle) UnmarshalText(b []byte) error {
	var err error
	*s, err = ParseShuffle(string(b))
	return err
}

// ShuffleBytes groups byte j of every element together. Trailing bytes that
// don't fill an element are copied unchanged. dst and src must have the same
// length and must not overlap.
func ShuffleBytes(dst, src []byte, typeSize int) {
	n := len(src) / typeSize
	for i := 0; i < n; i++ {
		for j := 0; j < typeSize; j++ {
			dst[j*n+i] = src[i*typeSize+j]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
}

// UnshuffleBytes inverts ShuffleBytes.
func UnshuffleBytes(dst, src []byte, typeSize int) {
	n := len(src) / typeSize
	for i := 0; i < n; i++ {
		for j := 0; j < typeSize; j++ {
			dst[i*typeSize+j] = src[j*n+i]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
}

// ShuffleBits groups bit k of every element into one bit plane. Only a
// multiple of eight elements is transposed; the remainder is copied
// unchanged.
func ShuffleBits(dst, src []byte, typeSize int) {
	n := len(src) / typeSize
	nb := n - n%8
	planeLen := nb / 8
	head := dst[:nb*typeSize]
	for i := range head {
		head[i] = 0
	}

	for i := 0; i < nb; i++ {
		mask := byte(1) << (i % 8)
		for j := 0; j < typeSize; j++ {
			b := src[i*typeSize+j]
			for k := 0; k < 8; k++ {
				if b&(1<<k) != 0 {
					head[(j*8+k)*planeLen+i/8] |= mask
				}
			}
		}
	}
	copy(dst[nb*typeSize:], src[nb*typeSize:])
}

// UnshuffleBits inverts ShuffleBits.
func UnshuffleBits(dst, src []byte, typeSize int) {
	n := len(src) / typeSize
	nb := n - n%8
	planeLen := nb / 8
	head := dst[:nb*typeSize]
	for i := range head {
		head[i] = 0
	}

	for i := 0; i < nb; i++ {
		mask := byte(1) << (i % 8)
		for j := 0; j < typeSize; j++ {
			var b byte
			for k := 0; k < 8; k++ {
				if src[(j*8+k)*planeLen+i/8]&mask != 0 {
					b |= 1 << k
				}
			}
			head[i*typeSize+j] = b
		}
	}
	copy(dst[nb*typeSize:], src[nb*typeSize:])
}

// DeltaEncode replaces each little-endian uint32 in b with its difference
// from the previous one, modulo 2^32. Sorted or nearly sorted identifiers
// become small numbers. len(b) must be a multiple of 4.
func DeltaEncode(b []byte) {
	prev := uint32(0)
	for i := 0; i+4 <= len(b); i += 4 {
		v := binary.LittleEndian.Uint32(b[i:])
		binary.LittleEndian.PutUint32(b[i:], v-prev)
		prev = v
	}
}

// DeltaDecode inverts DeltaEncode.
func DeltaDecode(b []byte) {
	prev := uint32(0)
	for i := 0; i+4 <= len(b); i += 4 {
		prev += binary.LittleEndian.Uint32(b[i:])
		binary.LittleEndian.PutUint32(b[i:], prev)
	}
}
