package particles

import (
	"fmt"
)

// DType is the on-disk element type of a field.
type DType string

const (
	Float32 DType = "f4"
	Uint32  DType = "u4"
)

// Size returns the width of one element in bytes.
func (t DType) Size() int {
	switch t {
	case Float32, Uint32:
		return 4
	}
	panic(fmt.Sprintf("Internal error: unrecognized dtype '%s'", string(t)))
}

// Field describes one per-particle dataset: its output name, its vector
// width, its element type, and the block tag used by legacy Gadget-2 files.
type Field struct {
	Name  string
	Width int
	DType DType
	Tag   string
}

var (
	ParticleIDs = Field{"ParticleIDs", 1, Uint32, "ID  "}
	Coordinates = Field{"Coordinates", 3, Float32, "POS "}
	Velocities  = Field{"Velocities", 3, Float32, "VEL "}
)

// Fields returns every field in the order they are streamed. IDs come first
// so that a sort permutation is known before the vector fields are read.
func Fields() []Field {
	return []Field{ParticleIDs, Coordinates, Velocities}
}

// LegacyOrder returns the fields in the order their blocks appear in a
// format-1 Gadget-2 file.
func LegacyOrder() []Field {
	return []Field{Coordinates, Velocities, ParticleIDs}
}

// FieldByName looks up a field by its dataset name.
func FieldByName(name string) (Field, bool) {
	for _, f := range Fields() {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RowSize is the number of bytes used by one particle's value.
func (f Field) RowSize() int { return f.Width * f.DType.Size() }

// IsFloat reports whether the field holds floating point data and so may be
// truncated.
func (f Field) IsFloat() bool { return f.DType == Float32 }

// Path returns the dataset path of the field for the given species.
func (f Field) Path(species int) string {
	return fmt.Sprintf("/%s/%s", SpeciesGroup(species), f.Name)
}

// SpeciesGroup returns the group name for a species, e.g. "PartType1".
func SpeciesGroup(species int) string {
	return fmt.Sprintf("PartType%d", species)
}

// NewBlock allocates an empty block with n rows of the field's type.
func (f Field) NewBlock(n int) Block {
	switch {
	case f.DType == Uint32 && f.Width == 1:
		return NewUint32(f.Name, make([]uint32, n))
	case f.DType == Float32 && f.Width == 3:
		return NewVec32(f.Name, make([][3]float32, n))
	case f.DType == Float32 && f.Width == 1:
		return NewFloat32(f.Name, make([]float32, n))
	}
	panic(fmt.Sprintf("Internal error: no block type for field '%s' with "+
		"dtype %s and width %d", f.Name, f.DType, f.Width))
}
