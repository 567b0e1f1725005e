/*package compress contains the chunk-level compression machinery used by
snaparc archives: general purpose codecs collected in an explicit Registry,
byte and bit shuffle filters, a delta filter for identifiers, a blosc-like
frame which ties these together, and the bit truncation applied to floating
point fields before any of it runs.
*/
package compress

import (
	"fmt"
	"sort"
)

// CodecID identifies a codec inside a frame header.
type CodecID uint8

const (
	NoneID CodecID = iota
	ZstdID
	LZ4ID
	S2ID
)

// Codec compresses and decompresses one chunk at a time. Implementations
// must be safe for concurrent use.
type Codec interface {
	// Compress compresses src at the given level. Codecs without levels
	// ignore it.
	Compress(src []byte, level int) ([]byte, error)
	// Decompress decompresses src, which is known to expand to exactly
	// rawSize bytes.
	Decompress(src []byte, rawSize int) ([]byte, error)
}

type registration struct {
	id    CodecID
	name  string
	codec Codec
}

// Registry maps codec names and frame IDs to codecs. A Registry is passed to
// every component that compresses or decompresses data, so a program can
// add codecs without touching any global state.
type Registry struct {
	byName map[string]registration
	byID   map[CodecID]registration
}

// NewRegistry returns a Registry holding the built-in codecs: "none",
// "zstd", "lz4", and "s2".
func NewRegistry() *Registry {
	r := &Registry{
		byName: map[string]registration{},
		byID:   map[CodecID]registration{},
	}
	r.mustRegister(NoneID, "none", noneCodec{})
	r.mustRegister(ZstdID, "zstd", newZstdCodec())
	r.mustRegister(LZ4ID, "lz4", lz4Codec{})
	r.mustRegister(S2ID, "s2", s2Codec{})
	return r
}

func (r *Registry) mustRegister(id CodecID, name string, c Codec) {
	if err := r.Register(id, name, c); err != nil {
		panic(fmt.Sprintf("Internal error: %s", err.Error()))
	}
}

// Register adds a codec under both a name and a frame ID. Neither may already
// be in use.
func (r *Registry) Register(id CodecID, name string, c Codec) error {
	if c == nil {
		return fmt.Errorf("Cannot register a nil codec as '%s'.", name)
	}
	if old, ok := r.byName[name]; ok {
		return fmt.Errorf("The codec name '%s' is already registered with "+
			"ID %d.", name, old.id)
	}
	if old, ok := r.byID[id]; ok {
		return fmt.Errorf("The codec ID %d is already registered as '%s'.",
			id, old.name)
	}
	reg := registration{id, name, c}
	r.byName[name], r.byID[id] = reg, reg
	return nil
}

// Lookup returns the codec and frame ID registered under name.
func (r *Registry) Lookup(name string) (Codec, CodecID, error) {
	reg, ok := r.byName[name]
	if !ok {
		return nil, 0, fmt.Errorf("The compression algorithm '%s' is not "+
			"registered. Known algorithms are %v.", name, r.Names())
	}
	return reg.codec, reg.id, nil
}

// LookupID returns the codec registered under a frame ID.
func (r *Registry) LookupID(id CodecID) (Codec, string, error) {
	reg, ok := r.byID[id]
	if !ok {
		return nil, "", fmt.Errorf("No codec is registered with frame ID %d.",
			id)
	}
	return reg.codec, reg.name, nil
}

// Names returns the sorted names of every registered codec.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type noneCodec struct{}

func (noneCodec) Compress(src []byte, level int) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (noneCodec) Decompress(src []byte, rawSize int) ([]byte, error) {
	if len(src) != rawSize {
		return nil, fmt.Errorf("Uncompressed chunk has %d bytes, expected %d.",
			len(src), rawSize)
	}
	return append([]byte(nil), src...), nil
}
