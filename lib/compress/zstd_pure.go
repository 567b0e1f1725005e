//go:build !cgo

package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec is the pure Go zstd codec used when cgo is unavailable. Its
// frames are interchangeable with the cgo codec's.
type zstdCodec struct {
	mu       sync.Mutex
	encoders map[zstd.EncoderLevel]*sync.Pool
	decoders sync.Pool
}

func newZstdCodec() Codec {
	c := &zstdCodec{encoders: map[zstd.EncoderLevel]*sync.Pool{}}
	c.decoders.New = func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("Internal error: creating zstd decoder: %s",
				err.Error()))
		}
		return dec
	}
	return c
}

func (c *zstdCodec) encoderPool(level int) *sync.Pool {
	lvl := zstd.EncoderLevelFromZstd(level)
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, ok := c.encoders[lvl]
	if !ok {
		pool = &sync.Pool{New: func() any {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl),
				zstd.WithEncoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("Internal error: creating zstd encoder: %s",
					err.Error()))
			}
			return enc
		}}
		c.encoders[lvl] = pool
	}
	return pool
}

func (c *zstdCodec) Compress(src []byte, level int) ([]byte, error) {
	pool := c.encoderPool(level)
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)
	return enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte, rawSize int) ([]byte, error) {
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)
	out, err := dec.DecodeAll(src, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd error while decompressing %d bytes: %s",
			len(src), err.Error())
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("zstd chunk expanded to %d bytes, expected %d.",
			len(out), rawSize)
	}
	return out, nil
}
