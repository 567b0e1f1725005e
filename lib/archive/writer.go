package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/phil-mansfield/snaparc/lib/compress"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// Writer writes an archive to an io.Writer in a single forward pass. The
// pattern is that you create a Writer with NewWriter, add groups and
// datasets, append data to the datasets, and finally call Close, which
// writes the index and trailer. Nothing written before Close is a valid
// archive.
type Writer struct {
	bw       *bufio.Writer
	reg      *compress.Registry
	off      int64
	index    Index
	datasets []*Dataset
	digest   *blake3.Hasher
	closed   bool
}

// Dataset is an open dataset inside a Writer. Rows are buffered until a
// full chunk is available and then written as one frame.
type Dataset struct {
	wr      *Writer
	info    *DatasetInfo
	field   particles.Field
	chunk   int
	pending []byte
	buf     []byte
	rows    int
	closed  bool
}

// NewWriter writes the archive magic to w and returns a Writer. The
// registry supplies the codecs named by each dataset's CodecConfig.
func NewWriter(w io.Writer, reg *compress.Registry) (*Writer, error) {
	wr := &Writer{
		bw:     bufio.NewWriterSize(w, 1<<20),
		reg:    reg,
		index:  Index{Version: Version},
		digest: blake3.New(),
	}
	if err := wr.write([]byte(Magic), false); err != nil {
		return nil, err
	}
	return wr, nil
}

func (wr *Writer) write(b []byte, hashed bool) error {
	n, err := wr.bw.Write(b)
	wr.off += int64(n)
	if err != nil {
		return fmt.Errorf("Could not write to archive: %w", err)
	}
	if hashed {
		wr.digest.Write(b)
	}
	return nil
}

// Offset returns the number of bytes written so far.
func (wr *Writer) Offset() int64 { return wr.off }

// SetAttrs adds attributes to a group, creating the group if needed.
// Attributes with an existing name replace the old value.
func (wr *Writer) SetAttrs(group string, attrs ...Attribute) {
	g, ok := wr.index.group(group)
	if !ok {
		wr.index.Groups = append(wr.index.Groups, Group{Name: group})
		g = &wr.index.Groups[len(wr.index.Groups)-1]
	}
outer:
	for _, a := range attrs {
		for i := range g.Attrs {
			if g.Attrs[i].Name == a.Name {
				g.Attrs[i] = a
				continue outer
			}
		}
		g.Attrs = append(g.Attrs, a)
	}
}

// CreateDataset declares a dataset with a fixed number of rows. Exactly that
// many rows must be appended before the dataset is closed.
func (wr *Writer) CreateDataset(
	path string, f particles.Field, rows int, cfg compress.CodecConfig,
) (*Dataset, error) {
	if wr.closed {
		return nil, fmt.Errorf("Cannot create %s in a closed archive.", path)
	}
	for _, ds := range wr.datasets {
		if ds.info.Path == path {
			return nil, fmt.Errorf("The dataset %s already exists.", path)
		}
	}
	if rows < 0 {
		return nil, fmt.Errorf("Cannot create %s with %d rows.", path, rows)
	}
	if err := cfg.Validate(wr.reg, f.Width); err != nil {
		return nil, fmt.Errorf("Invalid codec for %s: %w", path, err)
	}

	shape := []int{rows}
	if f.Width > 1 {
		shape = append(shape, f.Width)
	}
	ds := &Dataset{
		wr:    wr,
		field: f,
		chunk: cfg.ChunkRows(),
		info: &DatasetInfo{
			Path: path, DType: string(f.DType), Shape: shape, Codec: cfg,
		},
	}
	wr.datasets = append(wr.datasets, ds)
	return ds, nil
}

// Info returns the dataset's current description.
func (ds *Dataset) Info() DatasetInfo { return *ds.info }

// Rows returns the number of rows appended so far.
func (ds *Dataset) Rows() int { return ds.rows }

// Append adds the rows of b to the end of the dataset.
func (ds *Dataset) Append(b particles.Block) error {
	if ds.closed {
		return fmt.Errorf("Cannot append to the closed dataset %s.",
			ds.info.Path)
	}
	if b.Name() != ds.field.Name {
		return fmt.Errorf("Cannot append a '%s' block to the dataset %s.",
			b.Name(), ds.info.Path)
	}
	if ds.rows+b.Len() > ds.info.Rows() {
		return fmt.Errorf("Appending %d rows to %s would give it %d rows, "+
			"but it was created with %d.", b.Len(), ds.info.Path,
			ds.rows+b.Len(), ds.info.Rows())
	}

	n := b.Len()
	ds.rows += n

	// Fill the partial chunk left by earlier calls.
	i := 0
	if len(ds.pending) > 0 {
		i = min(n, ds.chunk-len(ds.pending)/ds.field.RowSize())
		ds.pending = b.Slice(0, i).AppendBytes(ds.pending)
		if len(ds.pending) == ds.chunk*ds.field.RowSize() {
			if err := ds.flush(ds.pending); err != nil {
				return err
			}
			ds.pending = ds.pending[:0]
		}
	}

	// Whole chunks are encoded straight from b. Only the tail is kept.
	for ; i+ds.chunk <= n; i += ds.chunk {
		ds.buf = b.Slice(i, i+ds.chunk).AppendBytes(ds.buf[:0])
		if err := ds.flush(ds.buf); err != nil {
			return err
		}
	}
	if i < n {
		ds.pending = b.Slice(i, n).AppendBytes(ds.pending)
	}
	return nil
}

func (ds *Dataset) flush(raw []byte) error {
	opts := ds.info.Codec.FrameOptions(ds.field.DType.Size())
	frame, err := compress.EncodeFrame(ds.wr.reg, opts, raw)
	if err != nil {
		return fmt.Errorf("Could not compress a chunk of %s: %w",
			ds.info.Path, err)
	}
	c := ChunkInfo{
		Offset:   ds.wr.off,
		Size:     int64(len(frame)),
		Rows:     len(raw) / ds.field.RowSize(),
		Checksum: xxhash.Sum64(frame),
	}
	if err := ds.wr.write(frame, true); err != nil {
		return err
	}
	ds.info.Chunks = append(ds.info.Chunks, c)
	return nil
}

// Close flushes the last partial chunk and checks that the dataset is
// complete.
func (ds *Dataset) Close() error {
	if ds.closed {
		return nil
	}
	if len(ds.pending) > 0 {
		if err := ds.flush(ds.pending); err != nil {
			return err
		}
		ds.pending = nil
	}
	ds.buf = nil
	if ds.rows != ds.info.Rows() {
		return fmt.Errorf("The dataset %s was created with %d rows, but "+
			"only %d were appended.", ds.info.Path, ds.info.Rows(), ds.rows)
	}
	ds.closed = true
	return nil
}

// Close closes any open datasets, then writes the index and trailer and
// flushes buffered output. It does not close the underlying io.Writer.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	wr.index.Datasets = wr.index.Datasets[:0]
	for _, ds := range wr.datasets {
		if err := ds.Close(); err != nil {
			return err
		}
		wr.index.Datasets = append(wr.index.Datasets, *ds.info)
	}
	wr.index.Digest = wr.digest.Sum(nil)

	idx, err := encMode.Marshal(&wr.index)
	if err != nil {
		return fmt.Errorf("Could not encode the archive index: %w", err)
	}
	idxOffset := wr.off
	if err := wr.write(idx, false); err != nil {
		return err
	}

	trailer := make([]byte, 0, trailerSize)
	trailer = binary.LittleEndian.AppendUint64(trailer, uint64(idxOffset))
	trailer = binary.LittleEndian.AppendUint64(trailer, uint64(len(idx)))
	trailer = binary.LittleEndian.AppendUint64(trailer, xxhash.Sum64(idx))
	trailer = append(trailer, Magic...)
	if err := wr.write(trailer, false); err != nil {
		return err
	}
	if err := wr.bw.Flush(); err != nil {
		return fmt.Errorf("Could not write to archive: %w", err)
	}
	wr.closed = true
	return nil
}
