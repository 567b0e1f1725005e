package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/policy"
)

func TestParseDefaults(t *testing.T) {
	job, err := Parse(strings.NewReader("destination: out.arc\nsources: [a, b]\n"))
	require.NoError(t, err)
	assert.True(t, job.TruncPos.IsAuto())
	assert.True(t, job.TruncVel.IsAuto())
	assert.False(t, job.Sort)
	assert.Nil(t, job.Rules)

	job, err = Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), job)
}

func TestParseFull(t *testing.T) {
	yml := `
sources: "in/snap_{%03d,snapshot}.{%d,0..3}"
destination: "out/snap_{%03d,snapshot}.arc"
snapshot: 9
truncpos: 12
truncvel: auto
sort: true
lockdown: true
verify: true
rules:
  allowed_totals: [1000]
  allowed_file_counts: [4]
  species: [1]
`
	job, err := Parse(strings.NewReader(yml))
	require.NoError(t, err)
	assert.Equal(t, policy.Explicit(12), job.TruncPos)
	assert.True(t, job.TruncVel.IsAuto())
	require.NotNil(t, job.Rules)
	assert.Equal(t, []uint64{1000}, job.Rules.AllowedTotals)

	pj, err := job.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []string{"in/snap_009.0", "in/snap_009.1",
		"in/snap_009.2", "in/snap_009.3"}, pj.Sources)
	assert.Equal(t, "out/snap_009.arc", pj.Destination)
	assert.True(t, pj.Sort)

	opts, err := job.Options()
	require.NoError(t, err)
	assert.True(t, opts.Lockdown)
	assert.True(t, opts.Verify)
	assert.Nil(t, opts.Table)
	assert.Equal(t, job.Rules, opts.Rules)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"bogus_key: 1\n",
		"truncpos: lots\n",
		"truncpos: -1\n",
		"sources: {a: b}\n",
		"sort: [1]\n",
	}
	for i, yml := range tests {
		_, err := Parse(strings.NewReader(yml))
		assert.Error(t, err, "%d) %q", i, yml)
	}
}

func TestOptionsBadRules(t *testing.T) {
	yml := "rules:\n  allowed_totals: [1000]\n  allowed_file_counts: [4]\n" +
		"  species: [7]\n"
	job, err := Parse(strings.NewReader(yml))
	require.NoError(t, err)
	_, err = job.Options()
	assert.ErrorIs(t, err, g_error.ErrHeaderValidation)
}

func TestPathsErrors(t *testing.T) {
	job := Default()
	_, _, err := job.Paths()
	assert.Error(t, err)

	job.Sources = SourceList{"snap.{%d,0..1}"}
	_, _, err = job.Paths()
	assert.Error(t, err, "no destination")

	job.Destination = "out.{%d,0..1}"
	_, _, err = job.Paths()
	assert.Error(t, err, "two destinations")

	job.Destination = "out.arc"
	job.Sources = SourceList{"snap.{%d,0..1"}
	_, err = job.Pipeline()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "table.yaml")
	require.NoError(t, os.WriteFile(table, []byte(`
reference_box: 1000
chunk_rows: 4096
float_codec: {algorithm: lz4, level: 0, shuffle: bitshuffle}
id_codec: {algorithm: zstd, level: 3, shuffle: shuffle, delta: true}
entries:
  - {box: 1000, n1d: 256, pos_bits: 5, vel_bits: 6}
`), 0644))

	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"sources: [a.0, a.1]\ndestination: b.arc\npolicy_table: "+table+"\n"), 0644))

	job, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceList{"a.0", "a.1"}, job.Sources)

	opts, err := job.Options()
	require.NoError(t, err)
	require.NotNil(t, opts.Table)
	assert.Equal(t, 4096, opts.Table.ChunkRows)

	job.PolicyTable = filepath.Join(dir, "missing.yaml")
	_, err = job.Options()
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
