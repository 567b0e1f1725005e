package archive

import (
	"fmt"
)

// Attribute dtypes.
const (
	F8  = "f8"
	I4  = "i4"
	U4  = "u4"
	Str = "str"
)

// Attribute is a typed scalar or 1-D array attached to a group. Exactly one
// of Floats, Ints, or Text is used, depending on DType.
type Attribute struct {
	Name   string    `cbor:"name"`
	DType  string    `cbor:"dtype"`
	Scalar bool      `cbor:"scalar"`
	Floats []float64 `cbor:"f,omitempty"`
	Ints   []int64   `cbor:"i,omitempty"`
	Text   string    `cbor:"s,omitempty"`
}

// Float64Attr returns an f8 scalar.
func Float64Attr(name string, x float64) Attribute {
	return Attribute{Name: name, DType: F8, Scalar: true, Floats: []float64{x}}
}

// Float64sAttr returns an f8 array.
func Float64sAttr(name string, x []float64) Attribute {
	return Attribute{Name: name, DType: F8, Floats: append([]float64{}, x...)}
}

// Int32Attr returns an i4 scalar.
func Int32Attr(name string, x int32) Attribute {
	return Attribute{Name: name, DType: I4, Scalar: true, Ints: []int64{int64(x)}}
}

// Uint32sAttr returns a u4 array.
func Uint32sAttr(name string, x []uint32) Attribute {
	ints := make([]int64, len(x))
	for i := range x {
		ints[i] = int64(x[i])
	}
	return Attribute{Name: name, DType: U4, Ints: ints}
}

// StringAttr returns a text attribute.
func StringAttr(name, s string) Attribute {
	return Attribute{Name: name, DType: Str, Scalar: true, Text: s}
}

// Len returns the number of elements in the attribute.
func (a *Attribute) Len() int {
	switch a.DType {
	case F8:
		return len(a.Floats)
	case I4, U4:
		return len(a.Ints)
	}
	return 1
}

// Float64 returns the value of an f8 scalar.
func (a *Attribute) Float64() (float64, error) {
	if a.DType != F8 || !a.Scalar || len(a.Floats) != 1 {
		return 0, a.typeError("an f8 scalar")
	}
	return a.Floats[0], nil
}

// Int returns the value of an integer scalar.
func (a *Attribute) Int() (int64, error) {
	if (a.DType != I4 && a.DType != U4) || !a.Scalar || len(a.Ints) != 1 {
		return 0, a.typeError("an integer scalar")
	}
	return a.Ints[0], nil
}

// Uint32s returns the value of a u4 array.
func (a *Attribute) Uint32s() ([]uint32, error) {
	if a.DType != U4 || a.Scalar {
		return nil, a.typeError("a u4 array")
	}
	out := make([]uint32, len(a.Ints))
	for i := range out {
		out[i] = uint32(a.Ints[i])
	}
	return out, nil
}

// Float64s returns the value of an f8 array.
func (a *Attribute) Float64s() ([]float64, error) {
	if a.DType != F8 || a.Scalar {
		return nil, a.typeError("an f8 array")
	}
	return append([]float64{}, a.Floats...), nil
}

func (a *Attribute) typeError(want string) error {
	return fmt.Errorf("The attribute '%s' has dtype %s (scalar = %v), not %s.",
		a.Name, a.DType, a.Scalar, want)
}

// FindAttr returns the attribute with the given name.
func FindAttr(attrs []Attribute, name string) (*Attribute, error) {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i], nil
		}
	}
	return nil, fmt.Errorf("attribute '%s': %w", name, ErrNotFound)
}
