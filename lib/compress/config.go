package compress

import (
	"fmt"
)

// CodecConfig is the resolved compression configuration of one dataset. It
// is fixed before the first byte of a job is written.
type CodecConfig struct {
	Algorithm  string  `json:"algorithm" yaml:"algorithm"`
	Level      int     `json:"level" yaml:"level"`
	Shuffle    Shuffle `json:"shuffle" yaml:"shuffle"`
	Delta      bool    `json:"delta" yaml:"delta"`
	ChunkShape []int   `json:"chunks" yaml:"chunks"`
	TruncBits  int     `json:"trunc_bits" yaml:"trunc_bits"`
}

// ChunkRows returns the number of particles stored in one chunk.
func (c *CodecConfig) ChunkRows() int {
	if len(c.ChunkShape) == 0 {
		return 0
	}
	return c.ChunkShape[0]
}

// FrameOptions returns the options used to encode each chunk of a dataset
// with the given element size.
func (c *CodecConfig) FrameOptions(typeSize int) FrameOptions {
	return FrameOptions{
		Codec:    c.Algorithm,
		Level:    c.Level,
		Shuffle:  c.Shuffle,
		Delta:    c.Delta,
		TypeSize: typeSize,
	}
}

// Validate checks that the configuration can be used for a dataset whose
// rows have the given width.
func (c *CodecConfig) Validate(reg *Registry, width int) error {
	if _, _, err := reg.Lookup(c.Algorithm); err != nil {
		return err
	}
	if len(c.ChunkShape) == 0 || c.ChunkShape[0] <= 0 {
		return fmt.Errorf("The chunk shape %v does not have a positive "+
			"number of rows.", c.ChunkShape)
	}
	if width > 1 && (len(c.ChunkShape) != 2 || c.ChunkShape[1] != width) {
		return fmt.Errorf("The chunk shape %v must span the full vector "+
			"width of %d.", c.ChunkShape, width)
	}
	if width == 1 && len(c.ChunkShape) != 1 {
		return fmt.Errorf("The chunk shape %v has too many dimensions for "+
			"a scalar dataset.", c.ChunkShape)
	}
	return CheckTruncBits(c.TruncBits)
}
