package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
	"github.com/phil-mansfield/snaparc/lib/policy"
	"github.com/phil-mansfield/snaparc/lib/snapio"
)

// testPlan returns a plan with small chunks so that datasets span several
// chunks.
func testPlan(posBits, velBits int) *policy.Plan {
	float := func(bits int) compress.CodecConfig {
		return compress.CodecConfig{
			Algorithm: "zstd", Level: 3, Shuffle: compress.BitShuffle,
			ChunkShape: []int{7, 3}, TruncBits: bits,
		}
	}
	return &policy.Plan{
		Box: 1e6, N1D: 256,
		Pos: policy.Explicit(posBits), Vel: policy.Explicit(velBits),
		Fields: map[string]compress.CodecConfig{
			"Coordinates": float(posBits),
			"Velocities":  float(velBits),
			"ParticleIDs": {
				Algorithm: "lz4", Shuffle: compress.ByteShuffle, Delta: true,
				ChunkShape: []int{7},
			},
		},
	}
}

// testShards makes memory shards with the given species-1 counts. IDs are
// handed out in descending order so that sorting has work to do.
func testShards(counts ...int) ([]snapio.Reader, *header.Canonical) {
	total := 0
	for _, n := range counts {
		total += n
	}

	readers := make([]snapio.Reader, len(counts))
	canon := &header.Canonical{NumFilesPerSnapshot: 1, Shards: len(counts)}
	k := 0
	for i, n := range counts {
		ids := make([]uint32, n)
		pos := make([][3]float32, n)
		vel := make([][3]float32, n)
		for j := 0; j < n; j++ {
			ids[j] = uint32(total - k)
			x := float32(k) + 1/3.0
			pos[j] = [3]float32{x, 2 * x, 3 * x}
			vel[j] = [3]float32{-x, x / 7, 100 * x}
			k++
		}
		hd := &header.RawHeader{
			Path:  fmt.Sprintf("mem.%d", i),
			NPart: [header.NSpecies]uint32{0, uint32(n)},
		}
		var blocks [header.NSpecies]particles.Particles
		blocks[1] = particles.Particles{
			"ParticleIDs": particles.NewUint32("ParticleIDs", ids),
			"Coordinates": particles.NewVec32("Coordinates", pos),
			"Velocities":  particles.NewVec32("Velocities", vel),
		}
		readers[i] = snapio.NewMemoryShard(hd, blocks)
		canon.NPart[1] += uint32(n)
	}
	return readers, canon
}

// readAll reads every field of species 1 directly from the shards.
func readAll(t *testing.T, readers []snapio.Reader) particles.Particles {
	t.Helper()
	out := particles.Particles{}
	for _, f := range particles.Fields() {
		buf := []byte{}
		for _, rd := range readers {
			b, err := rd.ReadBlock(f, 1)
			require.NoError(t, err)
			buf = b.AppendBytes(buf)
		}
		b := f.NewBlock(len(buf) / f.RowSize())
		require.NoError(t, b.Decode(buf))
		out[f.Name] = b
	}
	return out
}

func writeArchive(t *testing.T, w *Writer, readers []snapio.Reader) *archive.Reader {
	t.Helper()
	reg := compress.NewRegistry()
	buf := &bytes.Buffer{}
	aw, err := archive.NewWriter(buf, reg)
	require.NoError(t, err)
	for _, species := range []int{1, 2} {
		require.NoError(t, w.WriteSpecies(context.Background(), aw, readers, species))
	}
	require.NoError(t, aw.Close())

	rd, err := archive.OpenReader(bytes.NewReader(buf.Bytes()),
		int64(buf.Len()), reg)
	require.NoError(t, err)
	require.NoError(t, rd.Verify())
	return rd
}

func TestStreamLossless(t *testing.T) {
	readers, canon := testShards(10, 0, 15, 4)
	want := readAll(t, readers)

	w := New(testPlan(0, 0), canon, false, nil)
	rd := writeArchive(t, w, readers)

	for _, f := range particles.Fields() {
		raw, err := rd.ReadBytes(f.Path(1))
		require.NoError(t, err)
		assert.Equal(t, want[f.Name].AppendBytes(nil), raw, f.Name)

		info, err := rd.Dataset(f.Path(1))
		require.NoError(t, err)
		assert.Equal(t, 29, info.Rows())
		assert.Len(t, info.Chunks, 5)
	}

	// Species 2 is empty, so it gets no datasets.
	_, err := rd.Dataset(particles.Coordinates.Path(2))
	assert.True(t, errors.Is(err, archive.ErrNotFound))

	assert.Equal(t, int64(29*(4+12+12)), w.Stats.BytesRead)
	assert.Greater(t, w.Stats.BytesWritten, int64(0))
	assert.Len(t, w.Stats.ChunkRatios, 15)
	mean, std := w.Stats.RatioSummary()
	assert.Greater(t, mean, 0.0)
	assert.False(t, math.IsNaN(std))
}

func TestStreamTruncates(t *testing.T) {
	readers, canon := testShards(12, 9)
	want := readAll(t, readers)

	w := New(testPlan(6, 11), canon, false, nil)
	rd := writeArchive(t, w, readers)

	ids, err := rd.ReadBlock(particles.ParticleIDs.Path(1), particles.ParticleIDs)
	require.NoError(t, err)
	assert.Equal(t, want["ParticleIDs"].Data(), ids.Data())

	for _, tt := range []struct {
		f    particles.Field
		bits int
	}{{particles.Coordinates, 6}, {particles.Velocities, 11}} {
		b, err := rd.ReadBlock(tt.f.Path(1), tt.f)
		require.NoError(t, err)
		got := b.(*particles.Vec32Block).Values()
		orig := want[tt.f.Name].(*particles.Vec32Block).Values()
		require.Len(t, got, len(orig))
		for i := range got {
			for dim := 0; dim < 3; dim++ {
				assert.Equal(t, compress.Truncate(orig[i][dim], tt.bits),
					got[i][dim], "%s[%d][%d]", tt.f.Name, i, dim)
			}
		}
	}
}

func TestStreamSorted(t *testing.T) {
	readers, canon := testShards(5, 8, 3)
	want := readAll(t, readers)

	w := New(testPlan(0, 0), canon, true, nil)
	rd := writeArchive(t, w, readers)

	blocks := particles.Particles{}
	for _, f := range particles.Fields() {
		b, err := rd.ReadBlock(f.Path(1), f)
		require.NoError(t, err)
		blocks[f.Name] = b
	}

	ids := blocks["ParticleIDs"].(*particles.Uint32Block).Values()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}

	// Every field follows the same permutation.
	perm := particles.Argsort(want["ParticleIDs"].(*particles.Uint32Block).Values())
	for _, name := range []string{"Coordinates", "Velocities"} {
		orig := want[name].(*particles.Vec32Block).Values()
		got := blocks[name].(*particles.Vec32Block).Values()
		for i := range perm {
			assert.Equal(t, orig[perm[i]], got[i], "%s[%d]", name, i)
		}
	}
}

func TestStreamCountMismatch(t *testing.T) {
	for _, sort := range []bool{false, true} {
		for _, declared := range []uint32{20, 10} {
			t.Run(fmt.Sprintf("sort=%v declared=%d", sort, declared), func(t *testing.T) {
				readers, canon := testShards(7, 8)
				canon.NPart[1] = declared

				w := New(testPlan(0, 0), canon, sort, nil)
				aw, err := archive.NewWriter(&bytes.Buffer{}, compress.NewRegistry())
				require.NoError(t, err)
				err = w.WriteSpecies(context.Background(), aw, readers, 1)
				require.Error(t, err)
				assert.True(t, errors.Is(err, g_error.ErrCountMismatch))

				var cm *g_error.CountMismatchError
				require.True(t, errors.As(err, &cm))
				assert.Equal(t, "ParticleIDs", cm.Field)
				assert.Equal(t, int64(declared), cm.Expected)
			})
		}
	}
}

func TestStreamReadErrors(t *testing.T) {
	readers, canon := testShards(4, 4)
	hd, err := readers[1].Header()
	require.NoError(t, err)
	hd.NPart[2] = 3
	readers[1] = snapio.NewMemoryShard(hd, [header.NSpecies]particles.Particles{})
	canon.NPart[2] = 3

	w := New(testPlan(0, 0), canon, false, nil)
	aw, err := archive.NewWriter(&bytes.Buffer{}, compress.NewRegistry())
	require.NoError(t, err)
	err = w.WriteSpecies(context.Background(), aw, readers, 1)
	assert.True(t, errors.Is(err, g_error.ErrBlockNotFound))
}

func TestStreamCancelled(t *testing.T) {
	readers, canon := testShards(4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(testPlan(0, 0), canon, false, nil)
	aw, err := archive.NewWriter(&bytes.Buffer{}, compress.NewRegistry())
	require.NoError(t, err)
	err = w.WriteSpecies(ctx, aw, readers, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStatsRatio(t *testing.T) {
	s := Stats{}
	assert.Equal(t, 0.0, s.Ratio())
	mean, std := s.RatioSummary()
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)

	s = Stats{BytesRead: 100, BytesWritten: 25, ChunkRatios: []float64{2}}
	assert.Equal(t, 4.0, s.Ratio())
	mean, std = s.RatioSummary()
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 0.0, std)

	s.ChunkRatios = []float64{2, 4}
	mean, std = s.RatioSummary()
	assert.InDelta(t, 3.0, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2), std, 1e-12)
}
