package header

import (
	"fmt"

	"github.com/phil-mansfield/snaparc/lib/archive"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
)

// Canonical is the merged header of a whole output archive.
type Canonical struct {
	// RawHeader holds the first shard's values, with NPart replaced by the
	// group's sums.
	RawHeader
	// NumFilesPerSnapshot is the number of archives the full snapshot is
	// split into.
	NumFilesPerSnapshot uint32
	// Shards is the number of source shards that were merged.
	Shards int
}

// Merge validates a group of headers and merges them.
func Merge(rules Rules, headers []*RawHeader) (*Canonical, error) {
	if err := Validate(rules, headers); err != nil {
		return nil, err
	}
	c := &Canonical{
		RawHeader:           *headers[0],
		NumFilesPerSnapshot: headers[0].NumFiles / uint32(len(headers)),
		Shards:              len(headers),
	}
	c.Path = ""
	c.NPart = [NSpecies]uint32{}
	for _, hd := range headers {
		for i := range c.NPart {
			c.NPart[i] += hd.NPart[i]
		}
	}
	return c, nil
}

// ThisFile returns the number of particles of a species in the archive.
func (c *Canonical) ThisFile(species int) int { return int(c.NPart[species]) }

// Attributes returns the canonical header as archive attributes.
func (c *Canonical) Attributes() []archive.Attribute {
	return []archive.Attribute{
		archive.Float64Attr("BoxSize", c.BoxSize),
		archive.Int32Attr("Flag_Cooling", int32(c.FlagCooling)),
		archive.Int32Attr("Flag_DoublePrecision", 0),
		archive.Int32Attr("Flag_Feedback", int32(c.FlagFeedback)),
		archive.Int32Attr("Flag_Metals", int32(c.FlagMetals)),
		archive.Int32Attr("Flag_Sfr", int32(c.FlagSfr)),
		archive.Int32Attr("Flag_StellarAge", int32(c.FlagStellarAge)),
		archive.Float64Attr("HubbleParam", c.HubbleParam),
		archive.Float64sAttr("MassTable", c.Mass[:]),
		archive.Int32Attr("NumFilesPerSnapshot", int32(c.NumFilesPerSnapshot)),
		archive.Uint32sAttr("NumPart_ThisFile", c.NPart[:]),
		archive.Uint32sAttr("NumPart_Total", c.Nall[:]),
		archive.Uint32sAttr("NumPart_Total_HighWord", c.NallHW[:]),
		archive.Float64Attr("Omega0", c.Omega0),
		archive.Float64Attr("OmegaLambda", c.OmegaLambda),
		archive.Float64Attr("Redshift", c.Redshift),
		archive.Float64Attr("Time", c.Time),
	}
}

// FromAttributes reads a header back out of an archive's attributes, so an
// archive can itself be used as a source shard. The archive's
// NumFilesPerSnapshot becomes the shard-family size.
func FromAttributes(path string, attrs []archive.Attribute) (*RawHeader, error) {
	hd := &RawHeader{Path: path}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"BoxSize", &hd.BoxSize}, {"HubbleParam", &hd.HubbleParam},
		{"Omega0", &hd.Omega0}, {"OmegaLambda", &hd.OmegaLambda},
		{"Redshift", &hd.Redshift}, {"Time", &hd.Time},
	}
	for _, f := range floats {
		a, err := archive.FindAttr(attrs, f.name)
		if err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
		if *f.dst, err = a.Float64(); err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
	}

	ints := []struct {
		name string
		dst  *uint32
	}{
		{"Flag_Cooling", &hd.FlagCooling}, {"Flag_Feedback", &hd.FlagFeedback},
		{"Flag_Metals", &hd.FlagMetals}, {"Flag_Sfr", &hd.FlagSfr},
		{"Flag_StellarAge", &hd.FlagStellarAge},
		{"NumFilesPerSnapshot", &hd.NumFiles},
	}
	for _, f := range ints {
		a, err := archive.FindAttr(attrs, f.name)
		if err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
		v, err := a.Int()
		if err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
		*f.dst = uint32(v)
	}

	arrays := []struct {
		name string
		dst  *[NSpecies]uint32
	}{
		{"NumPart_ThisFile", &hd.NPart}, {"NumPart_Total", &hd.Nall},
		{"NumPart_Total_HighWord", &hd.NallHW},
	}
	for _, f := range arrays {
		a, err := archive.FindAttr(attrs, f.name)
		if err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
		v, err := a.Uint32s()
		if err == nil && len(v) != NSpecies {
			err = fmt.Errorf("it has %d elements instead of %d", len(v), NSpecies)
		}
		if err != nil {
			return nil, headerAttrError(path, f.name, err)
		}
		copy(f.dst[:], v)
	}

	a, err := archive.FindAttr(attrs, "MassTable")
	if err != nil {
		return nil, headerAttrError(path, "MassTable", err)
	}
	mass, err := a.Float64s()
	if err == nil && len(mass) != NSpecies {
		err = fmt.Errorf("it has %d elements instead of %d", len(mass), NSpecies)
	}
	if err != nil {
		return nil, headerAttrError(path, "MassTable", err)
	}
	copy(hd.Mass[:], mass)
	return hd, nil
}

func headerAttrError(path, field string, err error) error {
	return &g_error.HeaderValidationError{
		Shard: path, Field: field, Value: nil,
		Reason: fmt.Sprintf("the attribute could not be read: %s", err.Error()),
	}
}
