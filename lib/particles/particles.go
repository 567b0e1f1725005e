/*package particles contains the per-particle field descriptors used by
snaparc and typed blocks of particle data which can be sliced, serialized,
and reordered.*/
package particles

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Particles maps the name of each field (e.g. "Coordinates") to a fully
// materialized Block for one species.
type Particles map[string]Block

// Block is a contiguous, typed array of per-particle values.
type Block interface {
	// Name returns the name of the field the block belongs to.
	Name() string
	// Len returns the number of particles (rows) in the block.
	Len() int
	// Data returns the underlying array as an interface{}.
	Data() interface{}
	// Slice returns the rows [start, end) without copying.
	Slice(start, end int) Block
	// AppendBytes appends the little-endian encoding of the block to b.
	AppendBytes(b []byte) []byte
	// Decode fills the block from little-endian bytes. len(b) must be exactly
	// Len() times the row size.
	Decode(b []byte) error
	// Transfer transfers data from the Block to the appropriately named block
	// in dest. Particles are transfer from the indices 'from' to the indices
	// 'to'. These indices are passed as arrays to amortize the cost of error
	// handling and type conversion.
	Transfer(dest Particles, from, to []int) error
	// CreateDestination creates an output block in p with the specified size
	// that has the correct name and type.
	CreateDestination(p Particles, n int)
}

// Type assertions
var (
	_ Block = &Uint32Block{}
	_ Block = &Float32Block{}
	_ Block = &Vec32Block{}
)

func checkTransfer(dest Particles, name string, from, to []int) (Block, error) {
	destBlock, ok := dest[name]
	if !ok {
		return nil, fmt.Errorf("Destination Particles object does not "+
			"contain the field '%s'.", name)
	}
	if len(from) != len(to) {
		return nil, fmt.Errorf("'from' index array has length %d, but 'to' "+
			"has length %d.", len(from), len(to))
	}
	return destBlock, nil
}

func checkDecode(name string, b []byte, n, rowSize int) error {
	if len(b) != n*rowSize {
		return fmt.Errorf("Cannot decode %d bytes into the %d-row '%s' "+
			"block, which needs %d bytes.", len(b), n, name, n*rowSize)
	}
	return nil
}

// Uint32Block implements the Block interface for []uint32 data. See the
// Block interface for documentation of this struct's methods.
type Uint32Block struct {
	name string
	data []uint32
}

// NewUint32 creates a block with a given name associated with a given array.
func NewUint32(name string, x []uint32) *Uint32Block {
	return &Uint32Block{name, x}
}

func (x *Uint32Block) Name() string        { return x.name }
func (x *Uint32Block) Len() int            { return len(x.data) }
func (x *Uint32Block) Data() interface{}   { return x.data }
func (x *Uint32Block) Values() []uint32    { return x.data }
func (x *Uint32Block) Slice(s, e int) Block { return NewUint32(x.name, x.data[s:e]) }

func (x *Uint32Block) AppendBytes(b []byte) []byte {
	for _, v := range x.data {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

func (x *Uint32Block) Decode(b []byte) error {
	if err := checkDecode(x.name, b, len(x.data), 4); err != nil {
		return err
	}
	for i := range x.data {
		x.data[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return nil
}

func (x *Uint32Block) CreateDestination(p Particles, n int) {
	p[x.name] = NewUint32(x.name, make([]uint32, n))
}

func (x *Uint32Block) Transfer(dest Particles, from, to []int) error {
	destBlock, err := checkTransfer(dest, x.name, from, to)
	if err != nil {
		return err
	}
	destData, ok := destBlock.Data().([]uint32)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have []uint32 type, as expected.", x.name)
	}
	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}
	return nil
}

// Float32Block implements the Block interface for []float32 data.
type Float32Block struct {
	name string
	data []float32
}

// NewFloat32 creates a block with a given name associated with a given array.
func NewFloat32(name string, x []float32) *Float32Block {
	return &Float32Block{name, x}
}

func (x *Float32Block) Name() string        { return x.name }
func (x *Float32Block) Len() int            { return len(x.data) }
func (x *Float32Block) Data() interface{}   { return x.data }
func (x *Float32Block) Values() []float32   { return x.data }
func (x *Float32Block) Slice(s, e int) Block { return NewFloat32(x.name, x.data[s:e]) }

func (x *Float32Block) AppendBytes(b []byte) []byte {
	for _, v := range x.data {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func (x *Float32Block) Decode(b []byte) error {
	if err := checkDecode(x.name, b, len(x.data), 4); err != nil {
		return err
	}
	for i := range x.data {
		x.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return nil
}

func (x *Float32Block) CreateDestination(p Particles, n int) {
	p[x.name] = NewFloat32(x.name, make([]float32, n))
}

func (x *Float32Block) Transfer(dest Particles, from, to []int) error {
	destBlock, err := checkTransfer(dest, x.name, from, to)
	if err != nil {
		return err
	}
	destData, ok := destBlock.Data().([]float32)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have []float32 type, as expected.", x.name)
	}
	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}
	return nil
}

// Vec32Block implements the Block interface for [][3]float32 data.
type Vec32Block struct {
	name string
	data [][3]float32
}

// NewVec32 creates a block with a given name associated with a given array.
func NewVec32(name string, x [][3]float32) *Vec32Block {
	return &Vec32Block{name, x}
}

func (x *Vec32Block) Name() string        { return x.name }
func (x *Vec32Block) Len() int            { return len(x.data) }
func (x *Vec32Block) Data() interface{}   { return x.data }
func (x *Vec32Block) Values() [][3]float32 { return x.data }
func (x *Vec32Block) Slice(s, e int) Block { return NewVec32(x.name, x.data[s:e]) }

// Flat returns the block's components as one []float32 of length 3*Len()
// which shares memory with the block.
func (x *Vec32Block) Flat() []float32 {
	if len(x.data) == 0 {
		return nil
	}
	return unsafeFlatten(x.data)
}

func (x *Vec32Block) AppendBytes(b []byte) []byte {
	for i := range x.data {
		for dim := 0; dim < 3; dim++ {
			b = binary.LittleEndian.AppendUint32(b,
				math.Float32bits(x.data[i][dim]))
		}
	}
	return b
}

func (x *Vec32Block) Decode(b []byte) error {
	if err := checkDecode(x.name, b, len(x.data), 12); err != nil {
		return err
	}
	for i := range x.data {
		for dim := 0; dim < 3; dim++ {
			bits := binary.LittleEndian.Uint32(b[12*i+4*dim:])
			x.data[i][dim] = math.Float32frombits(bits)
		}
	}
	return nil
}

func (x *Vec32Block) CreateDestination(p Particles, n int) {
	p[x.name] = NewVec32(x.name, make([][3]float32, n))
}

func (x *Vec32Block) Transfer(dest Particles, from, to []int) error {
	destBlock, err := checkTransfer(dest, x.name, from, to)
	if err != nil {
		return err
	}
	destData, ok := destBlock.Data().([][3]float32)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have [][3]float32 type, as expected.", x.name)
	}
	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}
	return nil
}
