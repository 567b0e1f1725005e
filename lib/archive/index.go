/*package archive reads and writes snaparc archives: single files holding
attribute groups and chunked, compressed particle datasets.

An archive is laid out as

	magic      8 bytes, "SNAPARC\x01"
	frames     one compress frame per chunk, in the order they were written
	index      CBOR-encoded Index
	trailer    32 bytes: index offset (u64), index length (u64),
	           xxhash64 of the index (u64), magic

with all integers little-endian. The index records where each chunk lives,
so a reader needs only the trailer to find everything else.
*/
package archive

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/phil-mansfield/snaparc/lib/compress"
)

const (
	// Magic starts and ends every archive.
	Magic = "SNAPARC\x01"
	// Version is the index format version.
	Version     = 1
	trailerSize = 32
)

var (
	ErrNotArchive = errors.New("not a snaparc archive")
	ErrCorrupt    = errors.New("archive is corrupt")
	ErrNotFound   = errors.New("not found in archive")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

// Index is the table of contents of an archive.
type Index struct {
	Version  int           `cbor:"version"`
	Groups   []Group       `cbor:"groups"`
	Datasets []DatasetInfo `cbor:"datasets"`
	// Digest is the BLAKE3-256 hash of every frame, in file order.
	Digest []byte `cbor:"digest"`
}

// Group is a named collection of attributes, e.g. "Header".
type Group struct {
	Name  string      `cbor:"name"`
	Attrs []Attribute `cbor:"attrs"`
}

// DatasetInfo describes one chunked dataset.
type DatasetInfo struct {
	Path   string               `cbor:"path"`
	DType  string               `cbor:"dtype"`
	Shape  []int                `cbor:"shape"`
	Codec  compress.CodecConfig `cbor:"codec"`
	Chunks []ChunkInfo          `cbor:"chunks"`
}

// Rows returns the number of rows in the dataset.
func (d *DatasetInfo) Rows() int { return d.Shape[0] }

// Width returns the number of elements per row.
func (d *DatasetInfo) Width() int {
	if len(d.Shape) < 2 {
		return 1
	}
	return d.Shape[1]
}

// StoredBytes returns the number of bytes the dataset's frames use.
func (d *DatasetInfo) StoredBytes() int64 {
	n := int64(0)
	for _, c := range d.Chunks {
		n += c.Size
	}
	return n
}

// ChunkInfo locates one frame.
type ChunkInfo struct {
	Offset   int64  `cbor:"offset"`
	Size     int64  `cbor:"size"`
	Rows     int    `cbor:"rows"`
	Checksum uint64 `cbor:"xxh64"`
}

func (idx *Index) group(name string) (*Group, bool) {
	for i := range idx.Groups {
		if idx.Groups[i].Name == name {
			return &idx.Groups[i], true
		}
	}
	return nil, false
}

func (idx *Index) dataset(path string) (*DatasetInfo, bool) {
	for i := range idx.Datasets {
		if idx.Datasets[i].Path == path {
			return &idx.Datasets[i], true
		}
	}
	return nil, false
}

func (idx *Index) check(fileSize int64) error {
	if idx.Version != Version {
		return fmt.Errorf("%w: index version %d, expected %d",
			ErrCorrupt, idx.Version, Version)
	}
	for _, d := range idx.Datasets {
		if len(d.Shape) == 0 || d.Shape[0] < 0 {
			return fmt.Errorf("%w: dataset %s has shape %v",
				ErrCorrupt, d.Path, d.Shape)
		}
		rows := 0
		for _, c := range d.Chunks {
			if c.Offset < int64(len(Magic)) || c.Size < 0 ||
				c.Offset+c.Size > fileSize {
				return fmt.Errorf("%w: dataset %s has a chunk at [%d, %d) "+
					"in a %d byte file", ErrCorrupt, d.Path, c.Offset,
					c.Offset+c.Size, fileSize)
			}
			rows += c.Rows
		}
		if rows != d.Shape[0] {
			return fmt.Errorf("%w: dataset %s has %d rows in its chunks "+
				"but a shape of %v", ErrCorrupt, d.Path, rows, d.Shape)
		}
	}
	return nil
}
