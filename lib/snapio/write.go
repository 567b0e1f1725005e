package snapio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// Gadget2Options controls the layout used by WriteGadget2.
type Gadget2Options struct {
	// Format is 1 (positional blocks) or 2 (tagged blocks).
	Format int
	// Order is the byte order of the file. nil means little-endian.
	Order binary.ByteOrder
	// WideIDs writes 64-bit IDs.
	WideIDs bool
	// Skip lists the tags of blocks to leave out. Only valid for format 2.
	Skip []string
}

// WriteGadget2 writes a Gadget-2 file containing hd and the blocks of every
// species. It is used to generate small test inputs and for converting
// archives back to the legacy layout.
func WriteGadget2(
	w io.Writer, hd *header.RawHeader,
	blocks [header.NSpecies]particles.Particles, opt Gadget2Options,
) error {
	order := opt.Order
	if order == nil {
		order = binary.LittleEndian
	}
	if opt.Format != 1 && opt.Format != 2 {
		return fmt.Errorf("Gadget-2 format %d does not exist.", opt.Format)
	} else if opt.Format == 1 && len(opt.Skip) > 0 {
		return fmt.Errorf("Blocks cannot be skipped in format-1 files.")
	}

	raw := rawGadget2Header{
		NPart: hd.NPart, Mass: hd.Mass, Time: hd.Time, Redshift: hd.Redshift,
		FlagSFR: hd.FlagSfr, FlagFeedback: hd.FlagFeedback, Nall: hd.Nall,
		FlagCooling: hd.FlagCooling, NumFiles: hd.NumFiles,
		BoxSize: hd.BoxSize, Omega0: hd.Omega0, OmegaLambda: hd.OmegaLambda,
		HubbleParam: hd.HubbleParam, FlagStellarAge: hd.FlagStellarAge,
		FlagMetals: hd.FlagMetals, NallHW: hd.NallHW,
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, order, &raw); err != nil {
		return err
	}
	if err := writeRecord(w, order, opt.Format, headTag, buf.Bytes()); err != nil {
		return err
	}

	skip := map[string]bool{}
	for _, tag := range opt.Skip {
		skip[tag] = true
	}

	for _, field := range particles.LegacyOrder() {
		if skip[field.Tag] {
			continue
		}
		buf.Reset()
		for i := 0; i < header.NSpecies; i++ {
			if hd.NPart[i] == 0 {
				continue
			}
			b, ok := blocks[i][field.Name]
			if !ok {
				return fmt.Errorf("Species %d has no '%s' block.", i, field.Name)
			} else if b.Len() != int(hd.NPart[i]) {
				return fmt.Errorf("Species %d has %d '%s' rows, but the "+
					"header says %d.", i, b.Len(), field.Name, hd.NPart[i])
			}

			ids, isIDs := b.Data().([]uint32)
			if isIDs && opt.WideIDs {
				for _, id := range ids {
					binary.Write(buf, order, uint64(id))
				}
			} else if err := binary.Write(buf, order, b.Data()); err != nil {
				return err
			}
		}
		err := writeRecord(w, order, opt.Format, field.Tag, buf.Bytes())
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRecord writes a Fortran record, preceded by a tag record in format 2.
func writeRecord(
	w io.Writer, order binary.ByteOrder, format int, tag string, data []byte,
) error {
	if format == 2 {
		tagData := make([]byte, gadget2TagSize)
		copy(tagData, tag)
		order.PutUint32(tagData[4:], uint32(len(data)+8))
		if err := writeRecord(w, order, 1, "", tagData); err != nil {
			return err
		}
	}
	var marker [4]byte
	order.PutUint32(marker[:], uint32(len(data)))
	if _, err := w.Write(marker[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write(marker[:])
	return err
}
