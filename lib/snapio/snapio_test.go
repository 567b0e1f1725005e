package snapio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// testShard returns a header and blocks with n1 particles of species 1 and
// n2 of species 2. Every value is distinct so offsets errors show up.
func testShard(n1, n2 int) (*header.RawHeader, [header.NSpecies]particles.Particles) {
	hd := &header.RawHeader{
		NPart:       [header.NSpecies]uint32{0, uint32(n1), uint32(n2)},
		Nall:        [header.NSpecies]uint32{0, 256 * 256 * 256, 256 * 256 * 256},
		Mass:        [header.NSpecies]float64{0, 1.5, 12},
		Time:        0.5,
		Redshift:    1,
		BoxSize:     1e6,
		Omega0:      0.3,
		OmegaLambda: 0.7,
		HubbleParam: 0.7,
		NumFiles:    8,
	}

	var blocks [header.NSpecies]particles.Particles
	start := 0
	for i, n := range []int{0, n1, n2} {
		if n == 0 {
			continue
		}
		ids := make([]uint32, n)
		pos := make([][3]float32, n)
		vel := make([][3]float32, n)
		for j := 0; j < n; j++ {
			k := start + j
			ids[j] = uint32(1000 + k)
			pos[j] = [3]float32{float32(k), float32(k) + 0.25, float32(k) + 0.5}
			vel[j] = [3]float32{-float32(k), 2 * float32(k), 3 * float32(k)}
		}
		blocks[i] = particles.Particles{
			"ParticleIDs": particles.NewUint32("ParticleIDs", ids),
			"Coordinates": particles.NewVec32("Coordinates", pos),
			"Velocities":  particles.NewVec32("Velocities", vel),
		}
		start += n
	}
	return hd, blocks
}

func writeTestFile(
	t *testing.T, hd *header.RawHeader,
	blocks [header.NSpecies]particles.Particles, opt Gadget2Options,
) string {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, WriteGadget2(buf, hd, blocks, opt))
	path := filepath.Join(t.TempDir(), "snap.0")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestGadget2Layouts(t *testing.T) {
	tests := []struct {
		name string
		opt  Gadget2Options
	}{
		{"format 1 little-endian", Gadget2Options{Format: 1}},
		{"format 1 big-endian", Gadget2Options{Format: 1, Order: binary.BigEndian}},
		{"format 2 little-endian", Gadget2Options{Format: 2}},
		{"format 2 big-endian", Gadget2Options{Format: 2, Order: binary.BigEndian}},
		{"64-bit IDs", Gadget2Options{Format: 1, WideIDs: true}},
		{"64-bit IDs format 2", Gadget2Options{Format: 2, WideIDs: true, Order: binary.BigEndian}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hd, blocks := testShard(5, 3)
			path := writeTestFile(t, hd, blocks, tt.opt)

			rd, err := Open(path, compress.NewRegistry())
			require.NoError(t, err)
			defer rd.Close()

			g, ok := rd.(*Gadget2)
			require.True(t, ok)
			assert.Equal(t, tt.opt.Format, g.Format())
			if tt.opt.Order == nil {
				assert.Equal(t, binary.LittleEndian, g.ByteOrder())
			} else {
				assert.Equal(t, tt.opt.Order, g.ByteOrder())
			}

			got, err := rd.Header()
			require.NoError(t, err)
			assert.Equal(t, path, got.Path)
			assert.Equal(t, hd.NPart, got.NPart)
			assert.Equal(t, hd.Mass, got.Mass)
			assert.Equal(t, hd.BoxSize, got.BoxSize)
			assert.Equal(t, hd.NumFiles, got.NumFiles)

			for _, species := range []int{1, 2} {
				for _, f := range particles.Fields() {
					b, err := rd.ReadBlock(f, species)
					require.NoError(t, err)
					assert.Equal(t, blocks[species][f.Name].Data(), b.Data(),
						"%s of species %d", f.Name, species)
				}
			}
		})
	}
}

func TestGadget2EmptySpecies(t *testing.T) {
	hd, blocks := testShard(4, 0)
	path := writeTestFile(t, hd, blocks, Gadget2Options{Format: 2})
	rd, err := OpenGadget2(path)
	require.NoError(t, err)
	defer rd.Close()

	for _, species := range []int{0, 2, 5} {
		b, err := rd.ReadBlock(particles.Coordinates, species)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Len())
	}
	_, err = rd.ReadBlock(particles.Coordinates, header.NSpecies)
	assert.Error(t, err)
}

func TestGadget2MissingBlock(t *testing.T) {
	hd, blocks := testShard(4, 2)
	path := writeTestFile(t, hd, blocks, Gadget2Options{
		Format: 2, Skip: []string{particles.Velocities.Tag},
	})
	rd, err := OpenGadget2(path)
	require.NoError(t, err)
	defer rd.Close()

	_, err = rd.ReadBlock(particles.Coordinates, 1)
	require.NoError(t, err)
	_, err = rd.ReadBlock(particles.Velocities, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, g_error.ErrBlockNotFound))

	var bnf *g_error.BlockNotFoundError
	require.True(t, errors.As(err, &bnf))
	assert.Equal(t, "Velocities", bnf.Field)
	assert.Equal(t, 2, bnf.Species)
}

func TestGadget2ShortBlock(t *testing.T) {
	hd, blocks := testShard(4, 2)
	// The header claims more particles than the blocks hold.
	path := writeTestFile(t, hd, blocks, Gadget2Options{Format: 1})
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:], 5)
	require.NoError(t, os.WriteFile(path, data, 0644))

	rd, err := OpenGadget2(path)
	require.NoError(t, err)
	defer rd.Close()

	_, err = rd.ReadBlock(particles.ParticleIDs, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, g_error.ErrShortRead))
}

func TestGadget2Corrupt(t *testing.T) {
	hd, blocks := testShard(4, 2)
	path := writeTestFile(t, hd, blocks, Gadget2Options{Format: 1})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad first marker", append([]byte{7, 0, 0, 0}, data[4:]...)},
		{"truncated", data[:len(data)-10]},
		{"bad footer", func() []byte {
			d := append([]byte{}, data...)
			d[4+256] = 1
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(p, tt.data, 0644))
			_, err := OpenGadget2(p)
			assert.Error(t, err)
		})
	}

	_, err = Open(dir, compress.NewRegistry())
	assert.Error(t, err, "directories aren't shards")
	_, err = Open(filepath.Join(dir, "missing"), compress.NewRegistry())
	assert.Error(t, err)
}

func TestGadget2IDOverflow(t *testing.T) {
	hd, blocks := testShard(2, 0)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteGadget2(buf, hd, blocks,
		Gadget2Options{Format: 1, WideIDs: true}))
	data := buf.Bytes()

	// The ID block is last: footer, two 8-byte IDs, header. Set the high
	// word of the second ID.
	idStart := len(data) - 4 - 16
	binary.LittleEndian.PutUint32(data[idStart+12:], 1)
	path := filepath.Join(t.TempDir(), "snap.0")
	require.NoError(t, os.WriteFile(path, data, 0644))

	rd, err := OpenGadget2(path)
	require.NoError(t, err)
	defer rd.Close()
	_, err = rd.ReadBlock(particles.ParticleIDs, 1)
	assert.Error(t, err)
}

func TestWriteGadget2Errors(t *testing.T) {
	hd, blocks := testShard(2, 0)
	buf := &bytes.Buffer{}
	assert.Error(t, WriteGadget2(buf, hd, blocks, Gadget2Options{Format: 3}))
	assert.Error(t, WriteGadget2(buf, hd, blocks,
		Gadget2Options{Format: 1, Skip: []string{"POS "}}))

	hd.NPart[1] = 3
	assert.Error(t, WriteGadget2(buf, hd, blocks, Gadget2Options{Format: 1}))
}

func TestArchiveShard(t *testing.T) {
	reg := compress.NewRegistry()
	hd, blocks := testShard(6, 0)
	canon := &header.Canonical{RawHeader: *hd, NumFilesPerSnapshot: 8, Shards: 1}

	cfg := compress.CodecConfig{
		Algorithm: "zstd", Level: 3, Shuffle: compress.ByteShuffle,
		ChunkShape: []int{4},
	}
	buf := &bytes.Buffer{}
	aw, err := archive.NewWriter(buf, reg)
	require.NoError(t, err)
	aw.SetAttrs(HeaderGroup, canon.Attributes()...)
	for _, f := range []particles.Field{particles.ParticleIDs, particles.Coordinates} {
		c := cfg
		if f.Width > 1 {
			c.ChunkShape = []int{4, f.Width}
		}
		ds, err := aw.CreateDataset(f.Path(1), f, 6, c)
		require.NoError(t, err)
		require.NoError(t, ds.Append(blocks[1][f.Name]))
	}
	require.NoError(t, aw.Close())

	path := filepath.Join(t.TempDir(), "snap.arc")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0444))

	rd, err := Open(path, reg)
	require.NoError(t, err)
	defer rd.Close()
	_, ok := rd.(*ArchiveShard)
	require.True(t, ok)

	got, err := rd.Header()
	require.NoError(t, err)
	assert.Equal(t, hd.NPart, got.NPart)
	assert.Equal(t, uint32(8), got.NumFiles)

	b, err := rd.ReadBlock(particles.Coordinates, 1)
	require.NoError(t, err)
	assert.Equal(t, blocks[1]["Coordinates"].Data(), b.Data())

	_, err = rd.ReadBlock(particles.Velocities, 1)
	assert.True(t, errors.Is(err, g_error.ErrBlockNotFound))

	b, err = rd.ReadBlock(particles.Velocities, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestMemoryShard(t *testing.T) {
	hd, blocks := testShard(3, 2)
	hd.Path = "mem.0"
	delete(blocks[2], "Velocities")
	f := NewMemoryShard(hd, blocks)

	assert.Equal(t, "mem.0", f.Path())
	b, err := f.ReadBlock(particles.ParticleIDs, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1000, 1001, 1002}, b.Data())

	_, err = f.ReadBlock(particles.Velocities, 2)
	assert.True(t, errors.Is(err, g_error.ErrBlockNotFound))

	b, err = f.ReadBlock(particles.Velocities, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())

	hd.NPart[1] = 4
	f = NewMemoryShard(hd, blocks)
	_, err = f.ReadBlock(particles.ParticleIDs, 1)
	assert.True(t, errors.Is(err, g_error.ErrShortRead))

	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	_, err = f.ReadBlock(particles.ParticleIDs, 2)
	assert.Error(t, err)
}
