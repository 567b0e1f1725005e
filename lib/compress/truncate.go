package compress

import (
	"fmt"
	"math"
)

// MaxTruncBits is the largest number of low-order bits which can be cleared
// from a float32.
const MaxTruncBits = 31

// CheckTruncBits returns an error if bits is not a valid truncation width.
func CheckTruncBits(bits int) error {
	if bits < 0 || bits > MaxTruncBits {
		return fmt.Errorf("A truncation width of %d bits was requested, but "+
			"only widths from 0 to %d are possible for 32-bit floats.",
			bits, MaxTruncBits)
	}
	return nil
}

// TruncMask returns the mask which clears the low bits of a float32's bit
// pattern.
func TruncMask(bits int) uint32 {
	return ^(uint32(1)<<uint(bits) - 1)
}

// Truncate clears the low bits of x's bit pattern. This throws away mantissa
// precision (and, past 23 bits, exponent bits) so the value compresses
// better. Truncate(x, 0) == x.
func Truncate(x float32, bits int) float32 {
	return math.Float32frombits(math.Float32bits(x) & TruncMask(bits))
}

// TruncateSlice applies Truncate to every element of x in place.
func TruncateSlice(x []float32, bits int) {
	if bits == 0 {
		return
	}
	mask := TruncMask(bits)
	for i := range x {
		x[i] = math.Float32frombits(math.Float32bits(x[i]) & mask)
	}
}
