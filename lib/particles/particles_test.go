package particles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	from := []int{5, 4, 3, 2, 1, 0}
	to := []int{0, 2, 4, 6, 8, 10}

	tests := []struct {
		block Block
		out   interface{}
	}{
		{NewUint32("id", []uint32{4, 8, 15, 16, 23, 42}),
			[]uint32{42, 0, 23, 0, 16, 0, 15, 0, 8, 0, 4, 0}},
		{NewFloat32("phi", []float32{4, 8, 15, 16, 23, 42}),
			[]float32{42, 0, 23, 0, 16, 0, 15, 0, 8, 0, 4, 0}},
		{NewVec32("x", [][3]float32{{4}, {8}, {15}, {16}, {23}, {42}}),
			[][3]float32{{42}, {}, {23}, {}, {16}, {}, {15}, {}, {8}, {}, {4}, {}}},
	}

	for i := range tests {
		x := tests[i].block
		p := Particles{}
		x.CreateDestination(p, 12)
		require.Contains(t, p, x.Name(), "%d)", i)
		require.NoError(t, x.Transfer(p, from, to), "%d)", i)
		require.Equal(t, tests[i].out, p[x.Name()].Data(), "%d)", i)
	}
}

func TestTransferErrors(t *testing.T) {
	x := NewUint32("id", []uint32{1, 2})
	require.Error(t, x.Transfer(Particles{}, []int{0}, []int{0}))
	require.Error(t, x.Transfer(Particles{"id": NewFloat32("id", make([]float32, 2))},
		[]int{0}, []int{0}))
	require.Error(t, x.Transfer(Particles{"id": NewUint32("id", make([]uint32, 2))},
		[]int{0, 1}, []int{0}))
}

func TestBytesRoundTrip(t *testing.T) {
	blocks := []Block{
		NewUint32("ParticleIDs", []uint32{1, 1 << 31, 7}),
		NewVec32("Coordinates", [][3]float32{{1.5, -2, 3}, {0, 1e-7, 1e7}}),
	}
	for i, b := range blocks {
		raw := b.AppendBytes(nil)
		f, ok := FieldByName(b.Name())
		require.True(t, ok)
		require.Len(t, raw, b.Len()*f.RowSize(), "%d)", i)

		out := f.NewBlock(b.Len())
		require.NoError(t, out.Decode(raw), "%d)", i)
		require.Equal(t, b.Data(), out.Data(), "%d)", i)
		require.Error(t, out.Decode(raw[1:]), "%d)", i)
	}
}

func TestSliceSharesMemory(t *testing.T) {
	x := NewVec32("Coordinates", [][3]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	s := x.Slice(1, 3).(*Vec32Block)
	require.Equal(t, 2, s.Len())
	s.Values()[0][0] = 40
	require.Equal(t, float32(40), x.Values()[1][0])
	require.Equal(t, []float32{40, 5, 6, 7, 8, 9}, s.Flat())
}

func TestFields(t *testing.T) {
	require.Equal(t, "ParticleIDs", Fields()[0].Name)
	require.Equal(t, "/PartType1/Coordinates", Coordinates.Path(1))
	require.Equal(t, 12, Velocities.RowSize())
	require.True(t, Velocities.IsFloat())
	require.False(t, ParticleIDs.IsFloat())
	_, ok := FieldByName("Masses")
	require.False(t, ok)
	require.Equal(t, []string{"POS ", "VEL ", "ID  "}, []string{
		LegacyOrder()[0].Tag, LegacyOrder()[1].Tag, LegacyOrder()[2].Tag})
}
