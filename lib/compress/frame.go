package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameVersion is written to the first byte of every frame.
	FrameVersion = 1
	// FrameHeaderSize is the number of bytes before a frame's payload.
	FrameHeaderSize = 16
	// MaxFrameSize is the largest chunk a frame can hold.
	MaxFrameSize = 1<<31 - 1
)

const (
	flagShuffle    = 0x1
	flagMemcpy     = 0x2
	flagBitShuffle = 0x4
	flagDelta      = 0x8
)

var (
	ErrFrameHeader = errors.New("invalid frame header")
	ErrFrameSize   = errors.New("frame size mismatch")
)

// FrameOptions describe how a chunk is filtered and compressed.
type FrameOptions struct {
	Codec    string
	Level    int
	Shuffle  Shuffle
	Delta    bool
	TypeSize int
}

// FrameHeader is the decoded form of the 16-byte frame header:
//
//	byte 0      version
//	byte 1      codec ID
//	byte 2      flags
//	byte 3      type size
//	bytes 4:8   uncompressed size
//	bytes 8:12  payload size
//	bytes 12:16 total frame size
//
// All integers are little-endian.
type FrameHeader struct {
	Version  uint8
	Codec    CodecID
	Flags    uint8
	TypeSize uint8
	RawSize  uint32
	DataSize uint32
	Total    uint32
}

// Memcpy reports whether the payload is stored uncompressed and unfiltered.
func (hd *FrameHeader) Memcpy() bool { return hd.Flags&flagMemcpy != 0 }

// ReadFrameHeader decodes the header at the start of frame.
func ReadFrameHeader(frame []byte) (*FrameHeader, error) {
	if len(frame) < FrameHeaderSize {
		return nil, fmt.Errorf("%w: only %d bytes", ErrFrameHeader, len(frame))
	}
	hd := &FrameHeader{
		Version:  frame[0],
		Codec:    CodecID(frame[1]),
		Flags:    frame[2],
		TypeSize: frame[3],
		RawSize:  binary.LittleEndian.Uint32(frame[4:]),
		DataSize: binary.LittleEndian.Uint32(frame[8:]),
		Total:    binary.LittleEndian.Uint32(frame[12:]),
	}
	switch {
	case hd.Version != FrameVersion:
		return nil, fmt.Errorf("%w: version %d, expected %d",
			ErrFrameHeader, hd.Version, FrameVersion)
	case hd.TypeSize == 0:
		return nil, fmt.Errorf("%w: type size 0", ErrFrameHeader)
	case int(hd.Total) != FrameHeaderSize+int(hd.DataSize):
		return nil, fmt.Errorf("%w: total %d != %d + %d", ErrFrameHeader,
			hd.Total, FrameHeaderSize, hd.DataSize)
	case len(frame) != int(hd.Total):
		return nil, fmt.Errorf("%w: header declares %d bytes, frame has %d",
			ErrFrameSize, hd.Total, len(frame))
	case hd.Memcpy() && hd.DataSize != hd.RawSize:
		return nil, fmt.Errorf("%w: memcpy frame with %d payload bytes "+
			"and %d raw bytes", ErrFrameSize, hd.DataSize, hd.RawSize)
	}
	return hd, nil
}

// EncodeFrame filters and compresses src into a self-describing frame. If
// compression doesn't make the chunk smaller, the frame stores src verbatim
// so a frame is never more than FrameHeaderSize bytes larger than src.
func EncodeFrame(reg *Registry, opts FrameOptions, src []byte) ([]byte, error) {
	if len(src) > MaxFrameSize {
		return nil, fmt.Errorf("A %d byte chunk is larger than the %d byte "+
			"frame limit. Use a smaller chunk shape.", len(src), MaxFrameSize)
	}
	if opts.TypeSize <= 0 || opts.TypeSize > 255 {
		return nil, fmt.Errorf("Frame type size must be in [1, 255], not %d.",
			opts.TypeSize)
	}
	if opts.Delta && opts.TypeSize != 4 {
		return nil, fmt.Errorf("The delta filter needs 4-byte elements, not "+
			"%d-byte elements.", opts.TypeSize)
	}
	codec, id, err := reg.Lookup(opts.Codec)
	if err != nil {
		return nil, err
	}

	var flags uint8
	filtered := src
	if opts.Delta || opts.Shuffle != NoShuffle {
		work := append([]byte(nil), src...)
		if opts.Delta {
			DeltaEncode(work)
			flags |= flagDelta
		}
		switch opts.Shuffle {
		case ByteShuffle:
			filtered = make([]byte, len(work))
			ShuffleBytes(filtered, work, opts.TypeSize)
			flags |= flagShuffle
		case BitShuffle:
			filtered = make([]byte, len(work))
			ShuffleBits(filtered, work, opts.TypeSize)
			flags |= flagBitShuffle
		case NoShuffle:
			filtered = work
		default:
			return nil, fmt.Errorf("Unknown shuffle mode %d.", opts.Shuffle)
		}
	}

	payload, err := codec.Compress(filtered, opts.Level)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || len(payload) >= len(src) {
		payload, flags = src, flagMemcpy
	}

	frame := make([]byte, FrameHeaderSize, FrameHeaderSize+len(payload))
	frame[0] = FrameVersion
	frame[1] = byte(id)
	frame[2] = flags
	frame[3] = byte(opts.TypeSize)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(src)))
	binary.LittleEndian.PutUint32(frame[8:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[12:],
		uint32(FrameHeaderSize+len(payload)))
	return append(frame, payload...), nil
}

// DecodeFrame inverts EncodeFrame.
func DecodeFrame(reg *Registry, frame []byte) ([]byte, error) {
	hd, err := ReadFrameHeader(frame)
	if err != nil {
		return nil, err
	}
	payload := frame[FrameHeaderSize:]
	if hd.Memcpy() {
		return append([]byte(nil), payload...), nil
	}

	codec, name, err := reg.LookupID(hd.Codec)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(payload, int(hd.RawSize))
	if err != nil {
		return nil, fmt.Errorf("Could not decode %s frame: %w", name, err)
	}

	typeSize := int(hd.TypeSize)
	switch {
	case hd.Flags&flagBitShuffle != 0:
		out := make([]byte, len(raw))
		UnshuffleBits(out, raw, typeSize)
		raw = out
	case hd.Flags&flagShuffle != 0:
		out := make([]byte, len(raw))
		UnshuffleBytes(out, raw, typeSize)
		raw = out
	}
	if hd.Flags&flagDelta != 0 {
		DeltaDecode(raw)
	}
	return raw, nil
}
