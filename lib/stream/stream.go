/*package stream copies the blocks of a group of source shards into merged,
chunked datasets. Each (field, species) pair becomes one dataset whose size
is fixed by the canonical header before any data is read, and the number of
rows streamed into it is checked against that size.

By default shards are streamed one block at a time, so memory use is bounded
by the largest block of a single shard. In sort mode every field of a
species is materialized so that all of them can be reordered by the
permutation which sorts the IDs.
*/
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
	"github.com/phil-mansfield/snaparc/lib/policy"
	"github.com/phil-mansfield/snaparc/lib/snapio"
)

// Stats accumulates the sizes seen by a Writer.
type Stats struct {
	// BytesRead is the number of decoded bytes read from the source shards.
	BytesRead int64
	// BytesWritten is the number of bytes of compressed chunk frames.
	BytesWritten int64
	// ChunkRatios is the raw-to-stored size ratio of every chunk.
	ChunkRatios []float64
}

// Ratio returns BytesRead / BytesWritten.
func (s *Stats) Ratio() float64 {
	if s.BytesWritten == 0 {
		return 0
	}
	return float64(s.BytesRead) / float64(s.BytesWritten)
}

// RatioSummary returns the mean and standard deviation of the per-chunk
// compression ratios.
func (s *Stats) RatioSummary() (mean, std float64) {
	switch len(s.ChunkRatios) {
	case 0:
		return 0, 0
	case 1:
		return s.ChunkRatios[0], 0
	}
	return stat.MeanStdDev(s.ChunkRatios, nil)
}

func (s *Stats) addDataset(info archive.DatasetInfo, rowSize int) {
	for _, c := range info.Chunks {
		s.BytesWritten += c.Size
		if c.Size > 0 {
			s.ChunkRatios = append(s.ChunkRatios,
				float64(c.Rows*rowSize)/float64(c.Size))
		}
	}
}

// Writer streams the shards of one output unit into an archive.
type Writer struct {
	Plan      *policy.Plan
	Canonical *header.Canonical
	// Sort reorders every field of a species by ascending ID.
	Sort   bool
	Logger *slog.Logger

	Stats Stats
}

// New creates a Writer. A nil logger discards everything.
func New(plan *policy.Plan, canon *header.Canonical, sort bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{Plan: plan, Canonical: canon, Sort: sort, Logger: logger}
}

// WriteSpecies writes the IDs, coordinates and velocities of one species.
// readers must be in the same order as the headers that were merged into
// the canonical header. Species with no particles are skipped.
func (w *Writer) WriteSpecies(
	ctx context.Context, aw *archive.Writer, readers []snapio.Reader,
	species int,
) error {
	total := w.Canonical.ThisFile(species)
	if total == 0 {
		w.Logger.Debug("skipping empty species", "species", species)
		return nil
	}
	w.Logger.Info("writing species", "species", species, "particles", total,
		"shards", len(readers), "sort", w.Sort)

	if w.Sort {
		return w.writeSorted(ctx, aw, readers, species, total)
	}
	for _, f := range particles.Fields() {
		if err := w.streamField(ctx, aw, readers, f, species, total); err != nil {
			return err
		}
	}
	return nil
}

// streamField copies one field block by block.
func (w *Writer) streamField(
	ctx context.Context, aw *archive.Writer, readers []snapio.Reader,
	f particles.Field, species, total int,
) error {
	cfg, err := w.Plan.Config(f)
	if err != nil {
		return err
	}
	ds, err := aw.CreateDataset(f.Path(species), f, total, cfg)
	if err != nil {
		return err
	}

	offset := 0
	for _, rd := range readers {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := w.read(rd, f, species, cfg.TruncBits)
		if err != nil {
			return err
		}
		if offset+b.Len() > total {
			return &g_error.CountMismatchError{
				Field: f.Name, Species: species,
				Expected: int64(total), Got: int64(offset + b.Len()),
			}
		}
		if err := ds.Append(b); err != nil {
			return err
		}
		offset += b.Len()
	}

	return w.closeDataset(ds, f, species, offset, total)
}

// writeSorted materializes every field of a species and writes them in ID
// order.
func (w *Writer) writeSorted(
	ctx context.Context, aw *archive.Writer, readers []snapio.Reader,
	species, total int,
) error {
	var perm []int
	for _, f := range particles.Fields() {
		cfg, err := w.Plan.Config(f)
		if err != nil {
			return err
		}
		all, err := w.materialize(ctx, readers, f, species, total, cfg.TruncBits)
		if err != nil {
			return err
		}

		if perm == nil {
			ids, ok := all.Data().([]uint32)
			if !ok {
				return fmt.Errorf("The '%s' field must come first and hold "+
					"IDs to sort by.", all.Name())
			}
			perm = particles.Argsort(ids)
		}
		sorted, err := particles.Reorder(all, perm)
		if err != nil {
			return err
		}

		ds, err := aw.CreateDataset(f.Path(species), f, total, cfg)
		if err != nil {
			return err
		}
		if err := ds.Append(sorted); err != nil {
			return err
		}
		if err := w.closeDataset(ds, f, species, sorted.Len(), total); err != nil {
			return err
		}
	}
	return nil
}

// materialize reads one field from every shard into a single block.
func (w *Writer) materialize(
	ctx context.Context, readers []snapio.Reader, f particles.Field,
	species, total, bits int,
) (particles.Block, error) {
	all := f.NewBlock(total)
	offset := 0
	for _, rd := range readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := w.read(rd, f, species, bits)
		if err != nil {
			return nil, err
		}
		if offset+b.Len() > total {
			return nil, &g_error.CountMismatchError{
				Field: f.Name, Species: species,
				Expected: int64(total), Got: int64(offset + b.Len()),
			}
		}
		if err := particles.Place(all, b, offset); err != nil {
			return nil, err
		}
		offset += b.Len()
	}
	if offset != total {
		return nil, &g_error.CountMismatchError{
			Field: f.Name, Species: species,
			Expected: int64(total), Got: int64(offset),
		}
	}
	return all, nil
}

// read reads one block and truncates it if it is floating point.
func (w *Writer) read(
	rd snapio.Reader, f particles.Field, species, bits int,
) (particles.Block, error) {
	b, err := rd.ReadBlock(f, species)
	if err != nil {
		return nil, err
	}
	w.Stats.BytesRead += int64(b.Len() * f.RowSize())
	w.Logger.Debug("read block", "shard", rd.Path(), "field", f.Name,
		"species", species, "particles", b.Len())

	if f.IsFloat() && bits > 0 {
		if err := truncateBlock(b, bits); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (w *Writer) closeDataset(
	ds *archive.Dataset, f particles.Field, species, offset, total int,
) error {
	if offset != total {
		return &g_error.CountMismatchError{
			Field: f.Name, Species: species,
			Expected: int64(total), Got: int64(offset),
		}
	}
	if err := ds.Close(); err != nil {
		return err
	}
	info := ds.Info()
	w.Stats.addDataset(info, f.RowSize())
	w.Logger.Debug("closed dataset", "path", info.Path,
		"chunks", len(info.Chunks), "stored", info.StoredBytes())
	return nil
}

func truncateBlock(b particles.Block, bits int) error {
	switch x := b.(type) {
	case *particles.Vec32Block:
		compress.TruncateSlice(x.Flat(), bits)
	case *particles.Float32Block:
		compress.TruncateSlice(x.Values(), bits)
	default:
		return fmt.Errorf("The '%s' block is not floating point and cannot "+
			"be truncated.", b.Name())
	}
	return nil
}
