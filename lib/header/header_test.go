package header

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/snaparc/lib/archive"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
)

// testHeader returns a valid header for shard i of a 256^3 simulation split
// into 8 files.
func testHeader(i int, n1 uint32) *RawHeader {
	return &RawHeader{
		Path:        fmt.Sprintf("snap.%d", i),
		NPart:       [NSpecies]uint32{0, n1},
		Nall:        [NSpecies]uint32{0, 256 * 256 * 256},
		Mass:        [NSpecies]float64{0, 1.5},
		Time:        0.5,
		Redshift:    1,
		BoxSize:     1e6,
		Omega0:      0.3,
		OmegaLambda: 0.7,
		HubbleParam: 0.7,
		NumFiles:    8,
	}
}

func TestMergeSumsCounts(t *testing.T) {
	hds := []*RawHeader{testHeader(0, 100), testHeader(1, 150)}
	c, err := Merge(DefaultRules(), hds)
	require.NoError(t, err)
	assert.Equal(t, 250, c.ThisFile(1))
	assert.Equal(t, uint32(4), c.NumFilesPerSnapshot)
	assert.Equal(t, 2, c.Shards)
	assert.Equal(t, 1e6, c.BoxSize)

	// The inputs aren't modified.
	assert.Equal(t, uint32(100), hds[0].NPart[1])
}

func TestMergeTwoSpecies(t *testing.T) {
	hds := make([]*RawHeader, 4)
	for i := range hds {
		hds[i] = testHeader(i, uint32(10*(i+1)))
		hds[i].Nall = [NSpecies]uint32{0, 512 * 512 * 512, 512 * 512 * 512}
		hds[i].Mass[2] = 12
		hds[i].NPart[2] = uint32(i)
		hds[i].NumFiles = 16
	}
	c, err := Merge(DefaultRules(), hds)
	require.NoError(t, err)
	assert.Equal(t, 100, c.ThisFile(1))
	assert.Equal(t, 6, c.ThisFile(2))
	assert.Equal(t, uint32(4), c.NumFilesPerSnapshot)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		field  string
		modify func(hd *RawHeader)
	}{
		{"NumPart_ThisFile[1]", func(hd *RawHeader) { hd.NPart[1] = 256*256*256 + 1 }},
		{"MassTable[1]", func(hd *RawHeader) { hd.Mass[1] = 0 }},
		{"MassTable[3]", func(hd *RawHeader) { hd.Mass[3] = 1 }},
		{"Time", func(hd *RawHeader) { hd.Time = 0 }},
		{"Redshift", func(hd *RawHeader) { hd.Redshift = -0.5 }},
		{"BoxSize", func(hd *RawHeader) { hd.BoxSize = 0 }},
		{"NumPart_Total", func(hd *RawHeader) { hd.Nall[1] = 1000 }},
		{"NumFilesPerSnapshot", func(hd *RawHeader) { hd.NumFiles = 10 }},
		{"NumPart_Total[0]", func(hd *RawHeader) {
			hd.Nall = [NSpecies]uint32{512 * 512 * 512, 512 * 512 * 512}
			hd.Mass[0] = 1
		}},
		{"NumPart_Total[1]", func(hd *RawHeader) {
			hd.Nall = [NSpecies]uint32{0, 0, 256 * 256 * 256}
			hd.Mass = [NSpecies]float64{0, 0, 1}
			hd.NPart = [NSpecies]uint32{}
		}},
	}

	for i := range tests {
		hds := []*RawHeader{testHeader(0, 10), testHeader(1, 10)}
		tests[i].modify(hds[1])
		err := Validate(DefaultRules(), hds)
		require.Error(t, err, "%d) %s", i, tests[i].field)

		var hv *g_error.HeaderValidationError
		require.True(t, errors.As(err, &hv), "%d)", i)
		assert.Equal(t, tests[i].field, hv.Field, "%d) %s", i, err)
		assert.Equal(t, "snap.1", hv.Shard, "%d)", i)
	}
}

func TestValidateDisallowedTotal(t *testing.T) {
	hd := testHeader(0, 10)
	hd.Nall[1] = 300 * 300 * 300
	_, err := Merge(DefaultRules(), []*RawHeader{hd})
	require.ErrorIs(t, err, g_error.ErrHeaderValidation)
	assert.Contains(t, err.Error(), "NumPart_Total")
}

func TestValidateShardCountDivides(t *testing.T) {
	hds := []*RawHeader{testHeader(0, 1), testHeader(1, 1), testHeader(2, 1)}
	err := Validate(DefaultRules(), hds)
	var hv *g_error.HeaderValidationError
	require.True(t, errors.As(err, &hv))
	assert.Equal(t, "NumFilesPerSnapshot", hv.Field)
}

func TestValidateCrossShard(t *testing.T) {
	mods := []struct {
		field  string
		modify func(hd *RawHeader)
	}{
		{"Omega0", func(hd *RawHeader) { hd.Omega0 = 0.31 }},
		{"Time", func(hd *RawHeader) { hd.Time = 0.6 }},
		{"HubbleParam", func(hd *RawHeader) { hd.HubbleParam = 0.68 }},
		{"Flag_Cooling", func(hd *RawHeader) { hd.FlagCooling = 1 }},
		{"NumFilesPerSnapshot", func(hd *RawHeader) { hd.NumFiles = 16 }},
		{"MassTable", func(hd *RawHeader) { hd.Mass[1] = 2 }},
	}
	for i := range mods {
		hds := []*RawHeader{testHeader(0, 10), testHeader(1, 10)}
		mods[i].modify(hds[1])
		err := Validate(DefaultRules(), hds)
		var hv *g_error.HeaderValidationError
		require.True(t, errors.As(err, &hv), "%d) %v", i, err)
		assert.Equal(t, mods[i].field, hv.Field, "%d)", i)
		assert.Contains(t, hv.Reason, "snap.0", "%d)", i)
	}
}

func TestValidateGroupErrors(t *testing.T) {
	require.ErrorIs(t, Validate(DefaultRules(), nil), g_error.ErrHeaderValidation)

	hds := []*RawHeader{testHeader(0, 10), testHeader(0, 10)}
	require.ErrorIs(t, Validate(DefaultRules(), hds), g_error.ErrHeaderValidation)

	// Together the shards claim more particles than exist.
	big := uint32(256 * 256 * 256 / 2)
	hds = []*RawHeader{testHeader(0, big), testHeader(1, big), testHeader(2, 1), testHeader(3, 1)}
	require.ErrorIs(t, Validate(DefaultRules(), hds), g_error.ErrHeaderValidation)
}

func TestCustomRules(t *testing.T) {
	rules := Rules{
		AllowedTotals:     []uint64{64},
		AllowedFileCounts: []uint32{2},
		Species:           []int{1},
	}
	hd := testHeader(0, 64)
	hd.Nall[1] = 64
	hd.NumFiles = 2
	c, err := Merge(rules, []*RawHeader{hd})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), c.NumFilesPerSnapshot)

	hd.Nall[2], hd.Mass[2], hd.Nall[1] = 32, 1, 32
	_, err = Merge(rules, []*RawHeader{hd})
	require.ErrorIs(t, err, g_error.ErrHeaderValidation)
}

func TestRulesValidate(t *testing.T) {
	tests := []struct {
		species []int
		valid   bool
	}{
		{[]int{1}, true},
		{[]int{1, 2}, true},
		{[]int{0, 5}, true},
		{nil, false},
		{[]int{}, false},
		{[]int{7}, false},
		{[]int{7, 1}, false},
		{[]int{-1}, false},
		{[]int{6}, false},
		{[]int{1, 1}, false},
	}
	for i := range tests {
		rules := DefaultRules()
		rules.Species = tests[i].species
		err := rules.Validate()
		if tests[i].valid {
			assert.NoError(t, err, "%d) %v", i, tests[i].species)
			continue
		}
		assert.ErrorIs(t, err, g_error.ErrHeaderValidation, "%d) %v",
			i, tests[i].species)

		// Bad rules are reported as errors, never as index panics.
		assert.NotPanics(t, func() {
			err = Validate(rules, []*RawHeader{testHeader(0, 100)})
		}, "%d)", i)
		assert.ErrorIs(t, err, g_error.ErrHeaderValidation, "%d)", i)
	}
}

func TestAttributes(t *testing.T) {
	c, err := Merge(DefaultRules(), []*RawHeader{testHeader(0, 100), testHeader(1, 150)})
	require.NoError(t, err)
	attrs := c.Attributes()

	dtypes := map[string]string{
		"BoxSize": "f8", "Flag_Cooling": "i4", "Flag_DoublePrecision": "i4",
		"Flag_Feedback": "i4", "Flag_Metals": "i4", "Flag_Sfr": "i4",
		"Flag_StellarAge": "i4", "HubbleParam": "f8", "MassTable": "f8",
		"NumFilesPerSnapshot": "i4", "NumPart_ThisFile": "u4",
		"NumPart_Total": "u4", "NumPart_Total_HighWord": "u4", "Omega0": "f8",
		"OmegaLambda": "f8", "Redshift": "f8", "Time": "f8",
	}
	require.Len(t, attrs, len(dtypes))
	for _, a := range attrs {
		assert.Equal(t, dtypes[a.Name], a.DType, a.Name)
	}

	np, err := archive.FindAttr(attrs, "NumPart_ThisFile")
	require.NoError(t, err)
	counts, err := np.Uint32s()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 250, 0, 0, 0, 0}, counts)

	nf, err := archive.FindAttr(attrs, "NumFilesPerSnapshot")
	require.NoError(t, err)
	v, err := nf.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestFromAttributes(t *testing.T) {
	c, err := Merge(DefaultRules(), []*RawHeader{testHeader(0, 100), testHeader(1, 150)})
	require.NoError(t, err)

	hd, err := FromAttributes("out.snaparc", c.Attributes())
	require.NoError(t, err)
	assert.Equal(t, "out.snaparc", hd.Path)
	assert.Equal(t, uint32(250), hd.NPart[1])
	assert.Equal(t, uint32(4), hd.NumFiles)
	assert.Equal(t, c.Nall, hd.Nall)
	assert.Equal(t, c.Mass, hd.Mass)
	assert.Equal(t, c.Redshift, hd.Redshift)

	attrs := c.Attributes()
	_, err = FromAttributes("x", attrs[1:])
	require.ErrorIs(t, err, g_error.ErrHeaderValidation)
}
