/*package policy decides how each field of an archive is compressed. The
decision that matters is how many low-order bits are truncated from
positions and velocities: this is looked up in a Table of known
simulations, keyed by box size and linear resolution, unless the user asks
for explicit widths.
*/
package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/phil-mansfield/snaparc/lib/compress"
)

//go:embed default_table.yaml
var defaultTable []byte

// Entry is one known simulation family.
type Entry struct {
	Box     float64 `yaml:"box"`
	N1D     int     `yaml:"n1d"`
	PosBits int     `yaml:"pos_bits"`
	VelBits int     `yaml:"vel_bits"`
	// Exact entries match only their exact box size instead of every box
	// which normalizes to it.
	Exact bool `yaml:"exact"`
}

// FieldCodec is the part of a CodecConfig that doesn't depend on the
// simulation.
type FieldCodec struct {
	Algorithm string           `yaml:"algorithm"`
	Level     int              `yaml:"level"`
	Shuffle   compress.Shuffle `yaml:"shuffle"`
	Delta     bool             `yaml:"delta"`
}

// Table is the precision policy: a list of known simulations plus the codec
// settings shared by every job.
type Table struct {
	// ReferenceBox is the scale box sizes are normalized against.
	ReferenceBox float64    `yaml:"reference_box"`
	ChunkRows    int        `yaml:"chunk_rows"`
	FloatCodec   FieldCodec `yaml:"float_codec"`
	IDCodec      FieldCodec `yaml:"id_codec"`
	Entries      []Entry    `yaml:"entries"`
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := LoadTable(bytes.NewReader(defaultTable))
	if err != nil {
		panic(fmt.Sprintf("Internal error: the built-in policy table is "+
			"invalid: %s", err.Error()))
	}
	return t
}

// LoadTable reads a YAML table and checks it.
func LoadTable(rd io.Reader) (*Table, error) {
	t := &Table{}
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil {
		return nil, fmt.Errorf("Could not parse the policy table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTableFile reads a YAML table from disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("The policy table %s cannot be opened: %w",
			path, err)
	}
	defer f.Close()
	t, err := LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate checks that every entry is usable and that no two entries match
// the same simulation.
func (t *Table) Validate() error {
	if !(t.ReferenceBox > 0) {
		return fmt.Errorf("The policy table's reference_box is %g, but it "+
			"must be positive.", t.ReferenceBox)
	}
	if t.ChunkRows <= 0 {
		return fmt.Errorf("The policy table's chunk_rows is %d, but it must "+
			"be positive.", t.ChunkRows)
	}
	for _, c := range []FieldCodec{t.FloatCodec, t.IDCodec} {
		if c.Algorithm == "" {
			return fmt.Errorf("The policy table doesn't name a compression " +
				"algorithm for every field type.")
		}
	}

	type key struct {
		box   float64
		n1d   int
		exact bool
	}
	seen := map[key]int{}
	for i, e := range t.Entries {
		if !(e.Box > 0) || e.N1D <= 0 {
			return fmt.Errorf("Policy entry %d has box = %g and n1d = %d, "+
				"but both must be positive.", i, e.Box, e.N1D)
		}
		if err := compress.CheckTruncBits(e.PosBits); err != nil {
			return fmt.Errorf("Policy entry %d: %w", i, err)
		}
		if err := compress.CheckTruncBits(e.VelBits); err != nil {
			return fmt.Errorf("Policy entry %d: %w", i, err)
		}
		if !e.Exact && !sameBox(t.NormalizeBox(e.Box), e.Box) {
			return fmt.Errorf("Policy entry %d has box = %g, which is not a "+
				"power-of-two multiple of the reference box %g. Mark it "+
				"'exact: true' or use %g.", i, e.Box, t.ReferenceBox,
				t.NormalizeBox(e.Box))
		}
		k := key{e.Box, e.N1D, e.Exact}
		if j, ok := seen[k]; ok {
			return fmt.Errorf("Policy entries %d and %d both describe "+
				"box = %g, n1d = %d.", j, i, e.Box, e.N1D)
		}
		seen[k] = i
	}
	return nil
}

// NormalizeBox rounds box to the nearest power-of-two multiple of the
// reference box, measured in log space.
func (t *Table) NormalizeBox(box float64) float64 {
	return t.ReferenceBox * math.Exp2(math.Round(math.Log2(box/t.ReferenceBox)))
}

// Lookup finds the entry for a simulation. Exact entries take precedence
// over normalized ones.
func (t *Table) Lookup(box float64, n1d int) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Exact && e.N1D == n1d && sameBox(e.Box, box) {
			return e, true
		}
	}
	norm := t.NormalizeBox(box)
	for _, e := range t.Entries {
		if !e.Exact && e.N1D == n1d && sameBox(e.Box, norm) {
			return e, true
		}
	}
	return Entry{}, false
}

func sameBox(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
