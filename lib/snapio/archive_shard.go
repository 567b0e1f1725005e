package snapio

import (
	"errors"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// HeaderGroup is the archive group which stores the snapshot header.
const HeaderGroup = "Header"

// ArchiveShard is an implementation of the Reader interface for existing
// snaparc archives. It allows an archive to be recompressed with a
// different policy.
type ArchiveShard struct {
	path string
	rd   *archive.Reader
	hd   *header.RawHeader
}

// OpenArchiveShard opens an archive and reads its header group.
func OpenArchiveShard(path string, reg *compress.Registry) (*ArchiveShard, error) {
	rd, err := archive.Open(path, reg)
	if err != nil {
		return nil, err
	}
	attrs, err := rd.Attrs(HeaderGroup)
	if err != nil {
		rd.Close()
		return nil, err
	}
	hd, err := header.FromAttributes(path, attrs)
	if err != nil {
		rd.Close()
		return nil, err
	}
	return &ArchiveShard{path: path, rd: rd, hd: hd}, nil
}

func (f *ArchiveShard) Path() string { return f.path }

func (f *ArchiveShard) Header() (*header.RawHeader, error) {
	hd := *f.hd
	return &hd, nil
}

func (f *ArchiveShard) Close() error { return f.rd.Close() }

func (f *ArchiveShard) ReadBlock(field particles.Field, species int) (particles.Block, error) {
	n := int(f.hd.NPart[species])
	path := field.Path(species)

	b, err := f.rd.ReadBlock(path, field)
	if errors.Is(err, archive.ErrNotFound) {
		if n == 0 {
			return field.NewBlock(0), nil
		}
		return nil, &g_error.BlockNotFoundError{
			Shard: f.path, Field: field.Name, Species: species,
		}
	} else if err != nil {
		return nil, err
	}

	if b.Len() != n {
		return nil, &g_error.ShortReadError{
			Shard: f.path, Field: field.Name, Species: species,
			Expected: int64(n * field.RowSize()),
			Got:      int64(b.Len() * field.RowSize()),
		}
	}
	return b, nil
}
