//go:build cgo

package compress

import (
	"fmt"

	"github.com/DataDog/zstd"
)

type zstdCodec struct{}

func newZstdCodec() Codec { return zstdCodec{} }

func (zstdCodec) Compress(src []byte, level int) ([]byte, error) {
	out, err := zstd.CompressLevel(nil, src, level)
	if err != nil {
		return nil, fmt.Errorf("zstd error while compressing %d bytes: %s",
			len(src), err.Error())
	}
	return out, nil
}

func (zstdCodec) Decompress(src []byte, rawSize int) ([]byte, error) {
	out, err := zstd.Decompress(make([]byte, rawSize), src)
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
