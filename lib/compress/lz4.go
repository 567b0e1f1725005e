package compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

// lz4Codec uses the fast block compressor at level 0 and the high
// compression compressor at levels 1 through 9.
type lz4Codec struct{}

func (lz4Codec) Compress(src []byte, level int) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var (
		n   int
		err error
	)
	if level <= 0 {
		c := lz4CompressorPool.Get().(*lz4.Compressor)
		n, err = c.CompressBlock(src, dst)
		lz4CompressorPool.Put(c)
	} else {
		if level > 9 {
			level = 9
		}
		hc := lz4.CompressorHC{Level: lz4.CompressionLevel(1 << (8 + level))}
		n, err = hc.CompressBlock(src, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 error while compressing %d bytes: %s",
			len(src), err.Error())
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(src []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 error while decompressing %d bytes: %s",
			len(src), err.Error())
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 chunk expanded to %d bytes, expected %d.",
			n, rawSize)
	}
	return dst, nil
}
