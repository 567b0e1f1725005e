package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/phil-mansfield/snaparc/lib/compress"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// Reader gives random access to the groups and datasets of an archive.
type Reader struct {
	r     io.ReaderAt
	size  int64
	reg   *compress.Registry
	index Index
	c     io.Closer
}

// IsArchive reports whether header, the first bytes of a file, start with
// the archive magic.
func IsArchive(header []byte) bool {
	return len(header) >= len(Magic) && string(header[:len(Magic)]) == Magic
}

// OpenReader reads the trailer and index of an archive of the given size.
func OpenReader(r io.ReaderAt, size int64, reg *compress.Registry) (*Reader, error) {
	if size < int64(len(Magic))+trailerSize {
		return nil, fmt.Errorf("%w: only %d bytes", ErrNotArchive, size)
	}
	head := make([]byte, len(Magic))
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, err
	}
	if !IsArchive(head) {
		return nil, ErrNotArchive
	}

	trailer := make([]byte, trailerSize)
	if _, err := r.ReadAt(trailer, size-trailerSize); err != nil {
		return nil, err
	}
	if string(trailer[24:]) != Magic {
		return nil, fmt.Errorf("%w: missing trailer; the file was probably "+
			"not closed", ErrCorrupt)
	}
	idxOffset := int64(binary.LittleEndian.Uint64(trailer[0:]))
	idxLen := int64(binary.LittleEndian.Uint64(trailer[8:]))
	idxSum := binary.LittleEndian.Uint64(trailer[16:])
	if idxOffset < int64(len(Magic)) || idxLen < 0 ||
		idxOffset+idxLen != size-trailerSize {
		return nil, fmt.Errorf("%w: index at [%d, %d) in a %d byte file",
			ErrCorrupt, idxOffset, idxOffset+idxLen, size)
	}

	raw := make([]byte, idxLen)
	if _, err := r.ReadAt(raw, idxOffset); err != nil {
		return nil, err
	}
	if xxhash.Sum64(raw) != idxSum {
		return nil, fmt.Errorf("%w: index checksum mismatch", ErrCorrupt)
	}

	rd := &Reader{r: r, size: size, reg: reg}
	if err := decMode.Unmarshal(raw, &rd.index); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err.Error())
	}
	if err := rd.index.check(idxOffset); err != nil {
		return nil, err
	}
	return rd, nil
}

// Open opens the archive at path. The returned Reader must be closed.
func Open(path string, reg *compress.Registry) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	rd, err := OpenReader(f, info.Size(), reg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.c = f
	return rd, nil
}

// Close closes the underlying file if the Reader was created by Open.
func (rd *Reader) Close() error {
	if rd.c == nil {
		return nil
	}
	return rd.c.Close()
}

// Size returns the size of the archive in bytes.
func (rd *Reader) Size() int64 { return rd.size }

// Attrs returns the attributes of a group.
func (rd *Reader) Attrs(group string) ([]Attribute, error) {
	g, ok := rd.index.group(group)
	if !ok {
		return nil, fmt.Errorf("group '%s': %w", group, ErrNotFound)
	}
	return g.Attrs, nil
}

// Datasets returns the descriptions of every dataset in the archive.
func (rd *Reader) Datasets() []DatasetInfo { return rd.index.Datasets }

// Dataset returns the description of one dataset.
func (rd *Reader) Dataset(path string) (*DatasetInfo, error) {
	d, ok := rd.index.dataset(path)
	if !ok {
		return nil, fmt.Errorf("dataset '%s': %w", path, ErrNotFound)
	}
	return d, nil
}

func (rd *Reader) readFrame(d *DatasetInfo, c ChunkInfo) ([]byte, error) {
	frame := make([]byte, c.Size)
	if _, err := rd.r.ReadAt(frame, c.Offset); err != nil {
		return nil, err
	}
	if xxhash.Sum64(frame) != c.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch in the chunk of %s at "+
			"offset %d", ErrCorrupt, d.Path, c.Offset)
	}
	return frame, nil
}

// ReadBytes decompresses a whole dataset into its little-endian encoding.
func (rd *Reader) ReadBytes(path string) ([]byte, error) {
	d, err := rd.Dataset(path)
	if err != nil {
		return nil, err
	}
	elem := particles.DType(d.DType).Size()
	rowSize := elem * d.Width()
	out := make([]byte, 0, d.Rows()*rowSize)
	for _, c := range d.Chunks {
		frame, err := rd.readFrame(d, c)
		if err != nil {
			return nil, err
		}
		raw, err := compress.DecodeFrame(rd.reg, frame)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at offset %d: %s",
				ErrCorrupt, d.Path, c.Offset, err.Error())
		}
		if len(raw) != c.Rows*rowSize {
			return nil, fmt.Errorf("%w: the chunk of %s at offset %d holds "+
				"%d bytes, expected %d", ErrCorrupt, d.Path, c.Offset,
				len(raw), c.Rows*rowSize)
		}
		out = append(out, raw...)
	}
	return out, nil
}

// ReadBlock decompresses a whole dataset into a block of field f.
func (rd *Reader) ReadBlock(path string, f particles.Field) (particles.Block, error) {
	d, err := rd.Dataset(path)
	if err != nil {
		return nil, err
	}
	if d.DType != string(f.DType) || d.Width() != f.Width {
		return nil, fmt.Errorf("The dataset %s has dtype %s and width %d, "+
			"but the field '%s' needs dtype %s and width %d.", path, d.DType,
			d.Width(), f.Name, f.DType, f.Width)
	}
	raw, err := rd.ReadBytes(path)
	if err != nil {
		return nil, err
	}
	b := f.NewBlock(d.Rows())
	if err := b.Decode(raw); err != nil {
		return nil, err
	}
	return b, nil
}

// Verify checks every chunk checksum and the archive's content digest
// without decompressing anything.
func (rd *Reader) Verify() error {
	type span struct{ off, size int64 }
	var spans []span
	for i := range rd.index.Datasets {
		d := &rd.index.Datasets[i]
		for _, c := range d.Chunks {
			if _, err := rd.readFrame(d, c); err != nil {
				return err
			}
			spans = append(spans, span{c.Offset, c.Size})
		}
	}

	// Frames are hashed in file order, which is also offset order.
	sort.Slice(spans, func(i, j int) bool { return spans[i].off < spans[j].off })
	h := blake3.New()
	for _, s := range spans {
		if _, err := io.Copy(h, io.NewSectionReader(rd.r, s.off, s.size)); err != nil {
			return err
		}
	}
	if !bytes.Equal(h.Sum(nil), rd.index.Digest) {
		return fmt.Errorf("%w: content digest mismatch", ErrCorrupt)
	}
	return nil
}
