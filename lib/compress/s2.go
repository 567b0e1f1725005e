package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// s2Codec maps levels below 3 to s2.Encode, 3 through 6 to EncodeBetter and
// anything higher to EncodeBest.
type s2Codec struct{}

func (s2Codec) Compress(src []byte, level int) ([]byte, error) {
	switch {
	case level < 3:
		return s2.Encode(nil, src), nil
	case level < 7:
		return s2.EncodeBetter(nil, src), nil
	default:
		return s2.EncodeBest(nil, src), nil
	}
}

func (s2Codec) Decompress(src []byte, rawSize int) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, fmt.Errorf("s2 error while decompressing %d bytes: %s",
			len(src), err.Error())
	}
	if n != rawSize {
		return nil, fmt.Errorf("s2 chunk expands to %d bytes, expected %d.",
			n, rawSize)
	}
	out, err := s2.Decode(make([]byte, rawSize), src)
	if err != nil {
		return nil, fmt.Errorf("s2 error while decompressing %d bytes: %s",
			len(src), err.Error())
	}
	return out, nil
}
