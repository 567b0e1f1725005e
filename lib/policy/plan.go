package policy

import (
	"encoding/json"
	"fmt"
	"math"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/compress"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// Plan is the resolved compression configuration for one job.
type Plan struct {
	Box    float64                         `json:"box"`
	N1D    int                             `json:"n1d"`
	Pos    Request                         `json:"truncpos"`
	Vel    Request                         `json:"truncvel"`
	Sort   bool                            `json:"sort"`
	Fields map[string]compress.CodecConfig `json:"fields"`
}

// N1D returns the linear resolution of a simulation with nTotal primary
// particles, i.e. round(nTotal^(1/3)).
func N1D(nTotal uint64) int {
	return int(math.Round(math.Cbrt(float64(nTotal))))
}

// Resolve turns the truncation requests for positions and velocities into a
// CodecConfig for every field. Auto requests are looked up in the table
// using the box size and linear resolution; a miss returns a
// *g_error.CodecLookupError rather than guessing.
func (t *Table) Resolve(box float64, n1d int, pos, vel Request) (*Plan, error) {
	posBits, posOK := pos.Bits()
	velBits, velOK := vel.Bits()
	if !posOK || !velOK {
		e, ok := t.Lookup(box, n1d)
		if !ok {
			return nil, &g_error.CodecLookupError{Box: box, N1D: n1d}
		}
		if !posOK {
			posBits = e.PosBits
		}
		if !velOK {
			velBits = e.VelBits
		}
	}
	for _, b := range []int{posBits, velBits} {
		if err := compress.CheckTruncBits(b); err != nil {
			return nil, err
		}
	}

	p := &Plan{
		Box: box, N1D: n1d, Pos: pos, Vel: vel,
		Fields: map[string]compress.CodecConfig{},
	}
	p.Fields[particles.Coordinates.Name] = t.floatConfig(posBits)
	p.Fields[particles.Velocities.Name] = t.floatConfig(velBits)
	p.Fields[particles.ParticleIDs.Name] = compress.CodecConfig{
		Algorithm:  t.IDCodec.Algorithm,
		Level:      t.IDCodec.Level,
		Shuffle:    t.IDCodec.Shuffle,
		Delta:      t.IDCodec.Delta,
		ChunkShape: []int{t.ChunkRows},
	}
	return p, nil
}

func (t *Table) floatConfig(bits int) compress.CodecConfig {
	return compress.CodecConfig{
		Algorithm:  t.FloatCodec.Algorithm,
		Level:      t.FloatCodec.Level,
		Shuffle:    t.FloatCodec.Shuffle,
		Delta:      t.FloatCodec.Delta,
		ChunkShape: []int{t.ChunkRows, 3},
		TruncBits:  bits,
	}
}

// Config returns the configuration of a field.
func (p *Plan) Config(f particles.Field) (compress.CodecConfig, error) {
	c, ok := p.Fields[f.Name]
	if !ok {
		return compress.CodecConfig{}, fmt.Errorf("The compression plan has "+
			"no configuration for the field '%s'.", f.Name)
	}
	return c, nil
}

// JSON returns the plan as the JSON blob stored in the archive for
// provenance.
func (p *Plan) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
