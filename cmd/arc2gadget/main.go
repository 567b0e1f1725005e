// arc2gadget converts a shard (usually a snaparc archive) back into a
// Gadget-2 file, for analysis codes which only read the legacy layout.
//
// Usage:
//
//	arc2gadget [flags] SRC DST
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
	"github.com/phil-mansfield/snaparc/lib/snapio"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		g_error.External(nil, "%s", err.Error())
	}
}

func run(args []string, stderr io.Writer) error {
	var (
		format    int
		bigEndian bool
		wideIDs   bool
	)
	flagSet := pflag.NewFlagSet("arc2gadget", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.IntVarP(&format, "format", "f", 1, "Gadget-2 format, 1 or 2")
	flagSet.BoolVar(&bigEndian, "big-endian", false, "write big-endian data")
	flagSet.BoolVar(&wideIDs, "wide-ids", false, "write 64-bit particle IDs")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 2 {
		return fmt.Errorf("Expected a source and a destination, but got "+
			"%d arguments.", flagSet.NArg())
	}
	src, dst := flagSet.Arg(0), flagSet.Arg(1)
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	rd, err := snapio.Open(src, compress.NewRegistry())
	if err != nil {
		return err
	}
	defer rd.Close()

	hd, err := rd.Header()
	if err != nil {
		return err
	}
	var blocks [header.NSpecies]particles.Particles
	for i := range blocks {
		if hd.NPart[i] == 0 {
			continue
		}
		blocks[i] = particles.Particles{}
		for _, f := range particles.Fields() {
			b, err := rd.ReadBlock(f, i)
			if err != nil {
				return err
			}
			blocks[i][f.Name] = b
		}
	}

	opt := snapio.Gadget2Options{Format: format, WideIDs: wideIDs}
	if bigEndian {
		opt.Order = binary.BigEndian
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := snapio.WriteGadget2(out, hd, blocks, opt); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Info("wrote Gadget-2 file", "source", src, "destination", dst,
		"particles", hd.NPart[1]+hd.NPart[2])
	return nil
}
