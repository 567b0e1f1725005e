package snapio

import (
	"fmt"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// MemoryShard is a shard which lives entirely in memory. It is mainly
// useful for testing code which consumes Readers.
type MemoryShard struct {
	hd     *header.RawHeader
	blocks [header.NSpecies]particles.Particles
	closed bool
}

// NewMemoryShard creates a shard from a header and per-species particles.
// Missing species or fields are reported as missing blocks by ReadBlock.
func NewMemoryShard(
	hd *header.RawHeader, blocks [header.NSpecies]particles.Particles,
) *MemoryShard {
	return &MemoryShard{hd: hd, blocks: blocks}
}

func (f *MemoryShard) Path() string { return f.hd.Path }

func (f *MemoryShard) Header() (*header.RawHeader, error) {
	hd := *f.hd
	return &hd, nil
}

// Closed reports whether Close has been called.
func (f *MemoryShard) Closed() bool { return f.closed }

func (f *MemoryShard) Close() error {
	f.closed = true
	return nil
}

func (f *MemoryShard) ReadBlock(field particles.Field, species int) (particles.Block, error) {
	if f.closed {
		return nil, fmt.Errorf("Shard %s has already been closed.", f.hd.Path)
	}
	n := int(f.hd.NPart[species])
	b, ok := f.blocks[species][field.Name]
	if !ok {
		if n == 0 {
			return field.NewBlock(0), nil
		}
		return nil, &g_error.BlockNotFoundError{
			Shard: f.hd.Path, Field: field.Name, Species: species,
		}
	}
	if b.Len() != n {
		return nil, &g_error.ShortReadError{
			Shard: f.hd.Path, Field: field.Name, Species: species,
			Expected: int64(n * field.RowSize()),
			Got:      int64(b.Len() * field.RowSize()),
		}
	}
	// Callers own the blocks they read, so hand out a copy.
	out := field.NewBlock(n)
	if err := out.Decode(b.AppendBytes(nil)); err != nil {
		return nil, err
	}
	return out, nil
}
