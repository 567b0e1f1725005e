package snapio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

const (
	gadget2HeaderSize = 256
	// gadget2TagSize is the size of the record before every format-2 block:
	// a four character tag and the size of the next record.
	gadget2TagSize = 8
	headTag        = "HEAD"
)

// rawGadget2Header is a struct with the same fields as the raw header data
// of a Gadget-2 file.
type rawGadget2Header struct {
	NPart                                     [6]uint32
	Mass                                      [6]float64
	Time, Redshift                            float64
	FlagSFR, FlagFeedback                     uint32
	Nall                                      [6]uint32
	FlagCooling, NumFiles                     uint32
	BoxSize, Omega0, OmegaLambda, HubbleParam float64
	FlagStellarAge, FlagMetals                uint32
	NallHW                                    [6]uint32
	FlagEntropyICs                            uint32
	Empty                                     [60]byte
}

func (raw *rawGadget2Header) toHeader(path string) *header.RawHeader {
	return &header.RawHeader{
		Path:  path,
		NPart: raw.NPart, Nall: raw.Nall, NallHW: raw.NallHW, Mass: raw.Mass,
		Time: raw.Time, Redshift: raw.Redshift,
		BoxSize: raw.BoxSize, Omega0: raw.Omega0,
		OmegaLambda: raw.OmegaLambda, HubbleParam: raw.HubbleParam,
		FlagSfr: raw.FlagSFR, FlagFeedback: raw.FlagFeedback,
		FlagCooling: raw.FlagCooling, FlagStellarAge: raw.FlagStellarAge,
		FlagMetals: raw.FlagMetals, NumFiles: raw.NumFiles,
	}
}

// gadget2Block is the location of one block's data within a file.
type gadget2Block struct {
	offset, size int64
}

// Gadget2 is an implementation of the Reader interface for Gadget-2 files.
// Format 1 files are addressed by block position (POS, VEL, ID) and format 2
// files by their four character block tags. The byte order is detected from
// the first record marker.
type Gadget2 struct {
	path   string
	file   *os.File
	order  binary.ByteOrder
	format int
	hd     *header.RawHeader
	blocks map[string]gadget2Block
}

// OpenGadget2 opens a Gadget-2 file and indexes its blocks.
func OpenGadget2(path string) (*Gadget2, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	f := &Gadget2{path: path, file: file, blocks: map[string]gadget2Block{}}
	if err := f.index(info.Size()); err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// detectLayout works out the format and byte order from the first record
// marker, which is 256 for a format-1 header and 8 for a format-2 tag.
func detectLayout(path string, marker [4]byte) (binary.ByteOrder, int, error) {
	le := binary.LittleEndian.Uint32(marker[:])
	be := binary.BigEndian.Uint32(marker[:])
	switch {
	case le == gadget2HeaderSize:
		return binary.LittleEndian, 1, nil
	case be == gadget2HeaderSize:
		return binary.BigEndian, 1, nil
	case le == gadget2TagSize:
		return binary.LittleEndian, 2, nil
	case be == gadget2TagSize:
		return binary.BigEndian, 2, nil
	}
	return nil, 0, fmt.Errorf("%s is not a valid Gadget-2 file: the first "+
		"integer is %d (or %d byte-swapped), but it should be %d for a "+
		"format-1 file or %d for a format-2 file.",
		path, le, be, gadget2HeaderSize, gadget2TagSize)
}

// readRecord reads the Fortran record markers around a record starting at
// off and returns the offset and size of its payload.
func (f *Gadget2) readRecord(off, fileSize int64, what string) (gadget2Block, error) {
	var marker [4]byte
	if _, err := f.file.ReadAt(marker[:], off); err != nil {
		return gadget2Block{}, fmt.Errorf("%s is truncated: the record "+
			"marker of the %s block at byte %d could not be read.",
			f.path, what, off)
	}
	size := int64(f.order.Uint32(marker[:]))
	if off+8+size > fileSize {
		return gadget2Block{}, fmt.Errorf("%s is truncated: the %s block at "+
			"byte %d claims %d bytes, but the file only has %d.",
			f.path, what, off, size, fileSize)
	}
	var footer [4]byte
	if _, err := f.file.ReadAt(footer[:], off+4+size); err != nil {
		return gadget2Block{}, err
	}
	if end := int64(f.order.Uint32(footer[:])); end != size {
		return gadget2Block{}, fmt.Errorf("%s is not a valid Gadget-2 file: "+
			"the header, %d, and footer, %d, of the %s block at byte %d "+
			"don't match.", f.path, size, end, what, off)
	}
	return gadget2Block{off + 4, size}, nil
}

func (f *Gadget2) readTag(off, fileSize int64) (string, error) {
	rec, err := f.readRecord(off, fileSize, "tag")
	if err != nil {
		return "", err
	}
	if rec.size != gadget2TagSize {
		return "", fmt.Errorf("%s is not a valid format-2 Gadget-2 file: the "+
			"tag record at byte %d has %d bytes instead of %d.",
			f.path, off, rec.size, gadget2TagSize)
	}
	tag := make([]byte, 4)
	if _, err := f.file.ReadAt(tag, rec.offset); err != nil {
		return "", err
	}
	return string(tag), nil
}

// index reads the header and records where every block lives.
func (f *Gadget2) index(fileSize int64) error {
	var marker [4]byte
	if _, err := f.file.ReadAt(marker[:], 0); err != nil {
		return fmt.Errorf("%s is too small to be a Gadget-2 file.", f.path)
	}
	var err error
	f.order, f.format, err = detectLayout(f.path, marker)
	if err != nil {
		return err
	}

	off := int64(0)
	legacy := particles.LegacyOrder()
	for n := 0; off < fileSize; n++ {
		name := ""
		if f.format == 2 {
			if name, err = f.readTag(off, fileSize); err != nil {
				return err
			}
			off += 8 + gadget2TagSize
		} else if n == 0 {
			name = headTag
		} else if n-1 < len(legacy) {
			name = legacy[n-1].Tag
		} else {
			name = fmt.Sprintf("#%d", n)
		}

		rec, err := f.readRecord(off, fileSize, name)
		if err != nil {
			return err
		}
		if _, ok := f.blocks[name]; ok {
			return fmt.Errorf("%s contains the block '%s' more than once.",
				f.path, name)
		}
		f.blocks[name] = rec
		off = rec.offset + rec.size + 4
	}

	hdBlock, ok := f.blocks[headTag]
	if !ok {
		return fmt.Errorf("%s does not have a HEAD block.", f.path)
	}
	if hdBlock.size != gadget2HeaderSize {
		return fmt.Errorf("%s is not a valid Gadget-2 file: the header "+
			"block has %d bytes instead of %d.", f.path, hdBlock.size,
			gadget2HeaderSize)
	}
	raw := &rawGadget2Header{}
	rd := io.NewSectionReader(f.file, hdBlock.offset, hdBlock.size)
	if err := binary.Read(rd, f.order, raw); err != nil {
		return err
	}
	f.hd = raw.toHeader(f.path)
	return nil
}

func (f *Gadget2) Path() string { return f.path }

// Format returns 1 or 2.
func (f *Gadget2) Format() int { return f.format }

// ByteOrder returns the byte order of the file.
func (f *Gadget2) ByteOrder() binary.ByteOrder { return f.order }

func (f *Gadget2) Header() (*header.RawHeader, error) {
	hd := *f.hd
	return &hd, nil
}

func (f *Gadget2) Close() error { return f.file.Close() }

func (f *Gadget2) ReadBlock(field particles.Field, species int) (particles.Block, error) {
	if species < 0 || species >= header.NSpecies {
		return nil, fmt.Errorf("Species %d does not exist.", species)
	} else if f.hd.NPart[species] == 0 {
		return field.NewBlock(0), nil
	}
	blk, ok := f.blocks[field.Tag]
	if !ok {
		return nil, &g_error.BlockNotFoundError{
			Shard: f.path, Field: field.Name, Species: species,
		}
	}

	nTot, offset := int64(0), int64(0)
	for i := 0; i < header.NSpecies; i++ {
		if i == species {
			offset = nTot
		}
		nTot += int64(f.hd.NPart[i])
	}
	n := int(f.hd.NPart[species])

	elemSize := int64(field.DType.Size())
	if field.DType == particles.Uint32 && nTot > 0 && blk.size == 2*nTot*elemSize*int64(field.Width) {
		// Gadget-2 may be compiled with 64-bit IDs.
		elemSize = 8
	}
	rowSize := elemSize * int64(field.Width)
	if blk.size != nTot*rowSize {
		return nil, &g_error.ShortReadError{
			Shard: f.path, Field: field.Name, Species: species,
			Expected: nTot * int64(field.RowSize()), Got: blk.size,
		}
	}

	raw := make([]byte, int64(n)*rowSize)
	if _, err := f.file.ReadAt(raw, blk.offset+offset*rowSize); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &g_error.ShortReadError{
				Shard: f.path, Field: field.Name, Species: species,
				Expected: int64(len(raw)), Got: 0,
			}
		}
		return nil, err
	}

	out := field.NewBlock(n)
	if elemSize == 8 {
		return out, narrowIDs(f.path, species, raw, f.order, out)
	}
	return out, decode(raw, f.order, out)
}

// decode reads raw values of a given byte order into b.
func decode(raw []byte, order binary.ByteOrder, b particles.Block) error {
	return binary.Read(bytes.NewReader(raw), order, b.Data())
}

// narrowIDs converts 64-bit IDs to the 32-bit IDs used in archives.
func narrowIDs(
	path string, species int, raw []byte, order binary.ByteOrder,
	out particles.Block,
) error {
	ids, ok := out.Data().([]uint32)
	if !ok {
		return fmt.Errorf("Internal error: 64-bit data in a '%s' block.",
			out.Name())
	}
	for i := range ids {
		id := order.Uint64(raw[8*i:])
		if id > math.MaxUint32 {
			return fmt.Errorf("Particle %d of species %d in %s has the ID "+
				"%d, which does not fit in 32 bits.", i, species, path, id)
		}
		ids[i] = uint32(id)
	}
	return nil
}
