/*package header validates the headers of the shards which make up one
output archive and merges them into a single canonical header.
*/
package header

import (
	"fmt"
	"math"
	"slices"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
)

// NSpecies is the number of particle species a Gadget-2 header describes.
const NSpecies = 6

// RawHeader is the header of one source shard.
type RawHeader struct {
	// Path is the shard the header was read from.
	Path string

	NPart  [NSpecies]uint32
	Nall   [NSpecies]uint32
	NallHW [NSpecies]uint32
	Mass   [NSpecies]float64

	Time, Redshift                            float64
	BoxSize, Omega0, OmegaLambda, HubbleParam float64

	FlagSfr, FlagFeedback, FlagCooling uint32
	FlagStellarAge, FlagMetals         uint32
	NumFiles                           uint32
}

// Total returns the global number of particles of a species, including the
// high word.
func (hd *RawHeader) Total(species int) uint64 {
	return uint64(hd.Nall[species]) | uint64(hd.NallHW[species])<<32
}

// GrandTotal returns the global number of particles of every species.
func (hd *RawHeader) GrandTotal() uint64 {
	n := uint64(0)
	for i := 0; i < NSpecies; i++ {
		n += hd.Total(i)
	}
	return n
}

// Rules are the domain constraints every header in a group must satisfy.
type Rules struct {
	// AllowedTotals lists the known global particle counts.
	AllowedTotals []uint64 `yaml:"allowed_totals"`
	// AllowedFileCounts lists the known shard-family sizes.
	AllowedFileCounts []uint32 `yaml:"allowed_file_counts"`
	// Species lists the species which may be populated. The first one must
	// be populated.
	Species []int `yaml:"species"`
}

// DefaultRules returns the rules for the simulation suites snaparc was
// written for.
func DefaultRules() Rules {
	return Rules{
		AllowedTotals:     []uint64{256 * 256 * 256, 512 * 512 * 512, 1024 * 1024 * 1024, 2 * 512 * 512 * 512},
		AllowedFileCounts: []uint32{8, 16, 64, 128, 512},
		Species:           []int{1, 2},
	}
}

// Validate checks that the rules themselves are usable: at least one
// species, with no repeats and every index in [0, NSpecies).
func (r *Rules) Validate() error {
	if len(r.Species) == 0 {
		return rulesError(r.Species, "no species are listed")
	}
	seen := [NSpecies]bool{}
	for _, sp := range r.Species {
		if sp < 0 || sp >= NSpecies {
			return rulesError(r.Species,
				fmt.Sprintf("species %d is outside 0..%d", sp, NSpecies-1))
		} else if seen[sp] {
			return rulesError(r.Species,
				fmt.Sprintf("species %d is listed twice", sp))
		}
		seen[sp] = true
	}
	return nil
}

func rulesError(species []int, reason string) error {
	return &g_error.HeaderValidationError{
		Shard: "(rules)", Field: "Species", Value: species, Reason: reason,
	}
}

func invalid(hd *RawHeader, field string, value any, reason string, a ...any) error {
	return &g_error.HeaderValidationError{
		Shard: hd.Path, Field: field, Value: value,
		Reason: fmt.Sprintf(reason, a...),
	}
}

// Validate checks every header on its own and against the first header of
// the group. The first problem found is returned as a
// *g_error.HeaderValidationError naming the shard and field.
func Validate(rules Rules, headers []*RawHeader) error {
	if len(headers) == 0 {
		return &g_error.HeaderValidationError{
			Shard: "(none)", Field: "shards", Value: 0,
			Reason: "at least one shard is needed",
		}
	}
	if err := rules.Validate(); err != nil {
		return err
	}

	paths := map[string]int{}
	for i, hd := range headers {
		if j, ok := paths[hd.Path]; ok {
			return invalid(hd, "Path", hd.Path,
				"the shard is listed twice, at positions %d and %d", j, i)
		}
		paths[hd.Path] = i

		if err := validateOne(rules, hd, len(headers)); err != nil {
			return err
		}
		if i > 0 {
			if err := validatePair(headers[0], hd); err != nil {
				return err
			}
		}
	}

	for i := 0; i < NSpecies; i++ {
		sum := uint64(0)
		for _, hd := range headers {
			sum += uint64(hd.NPart[i])
		}
		if sum > headers[0].Total(i) {
			return invalid(headers[len(headers)-1],
				fmt.Sprintf("NumPart_ThisFile[%d]", i), sum,
				"the shards together hold more species %d particles than "+
					"the %d in the whole simulation", i, headers[0].Total(i))
		}
	}
	return nil
}

func validateOne(rules Rules, hd *RawHeader, nShards int) error {
	for i := 0; i < NSpecies; i++ {
		if uint64(hd.NPart[i]) > hd.Total(i) {
			return invalid(hd, fmt.Sprintf("NumPart_ThisFile[%d]", i),
				hd.NPart[i], "the whole simulation only has %d particles "+
					"of that species", hd.Total(i))
		}
		if (hd.Mass[i] > 0) != (hd.Total(i) > 0) {
			return invalid(hd, fmt.Sprintf("MassTable[%d]", i), hd.Mass[i],
				"species %d has %d particles; masses must be positive "+
					"exactly when particles exist", i, hd.Total(i))
		}
	}

	if !(hd.Time > 0) {
		return invalid(hd, "Time", hd.Time, "it must be positive")
	}
	if !(hd.Redshift > 0) {
		return invalid(hd, "Redshift", hd.Redshift, "it must be positive")
	}
	if !(hd.BoxSize > 0) || math.IsInf(hd.BoxSize, 0) {
		return invalid(hd, "BoxSize", hd.BoxSize, "it must be positive")
	}

	if total := hd.GrandTotal(); !slices.Contains(rules.AllowedTotals, total) {
		return invalid(hd, "NumPart_Total", total,
			"the only known simulation sizes are %v", rules.AllowedTotals)
	}
	if !slices.Contains(rules.AllowedFileCounts, hd.NumFiles) {
		return invalid(hd, "NumFilesPerSnapshot", hd.NumFiles,
			"the only known shard counts are %v", rules.AllowedFileCounts)
	}
	if hd.NumFiles%uint32(nShards) != 0 {
		return invalid(hd, "NumFilesPerSnapshot", hd.NumFiles,
			"it is not divisible by the %d shards being merged", nShards)
	}

	for i := 0; i < NSpecies; i++ {
		if !slices.Contains(rules.Species, i) && hd.Total(i) != 0 {
			return invalid(hd, fmt.Sprintf("NumPart_Total[%d]", i),
				hd.Total(i), "only species %v may be populated", rules.Species)
		}
	}
	if primary := rules.Species[0]; hd.Total(primary) == 0 {
		return invalid(hd, fmt.Sprintf("NumPart_Total[%d]", primary), 0,
			"species %d must be populated", primary)
	}
	return nil
}

// validatePair checks that hd agrees with the group's first header on
// everything except its own particle counts.
func validatePair(first, hd *RawHeader) error {
	type check struct {
		field      string
		have, want any
	}
	checks := []check{
		{"NumPart_Total", hd.Nall, first.Nall},
		{"NumPart_Total_HighWord", hd.NallHW, first.NallHW},
		{"MassTable", hd.Mass, first.Mass},
		{"Time", hd.Time, first.Time},
		{"Redshift", hd.Redshift, first.Redshift},
		{"BoxSize", hd.BoxSize, first.BoxSize},
		{"Omega0", hd.Omega0, first.Omega0},
		{"OmegaLambda", hd.OmegaLambda, first.OmegaLambda},
		{"HubbleParam", hd.HubbleParam, first.HubbleParam},
		{"Flag_Sfr", hd.FlagSfr, first.FlagSfr},
		{"Flag_Feedback", hd.FlagFeedback, first.FlagFeedback},
		{"Flag_Cooling", hd.FlagCooling, first.FlagCooling},
		{"Flag_StellarAge", hd.FlagStellarAge, first.FlagStellarAge},
		{"Flag_Metals", hd.FlagMetals, first.FlagMetals},
		{"NumFilesPerSnapshot", hd.NumFiles, first.NumFiles},
	}
	for _, c := range checks {
		if c.have != c.want {
			return invalid(hd, c.field, c.have,
				"the first shard in the group, %s, has %v", first.Path, c.want)
		}
	}
	return nil
}
