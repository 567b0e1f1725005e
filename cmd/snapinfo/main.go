// snapinfo prints a one-line summary of the header of every shard it is
// given. Gadget-2 files and snaparc archives are both accepted.
//
// Usage:
//
//	snapinfo SHARD...
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/phil-mansfield/snaparc/lib/compress"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/policy"
	"github.com/phil-mansfield/snaparc/lib/snapio"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		g_error.External(nil, "%s", err.Error())
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("snapinfo", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		return fmt.Errorf("No shards were given.")
	}

	reg := compress.NewRegistry()
	fmt.Fprintln(stdout, "# path, kind, z, a, box, N1D, npart[1], npart[2], files")
	for _, path := range flagSet.Args() {
		rd, err := snapio.Open(path, reg)
		if err != nil {
			return err
		}
		hd, err := rd.Header()
		rd.Close()
		if err != nil {
			return err
		}

		kind := "archive"
		if g, ok := rd.(*snapio.Gadget2); ok {
			kind = fmt.Sprintf("gadget2-f%d-%s", g.Format(), g.ByteOrder())
		}
		fmt.Fprintf(stdout, "%s %s %.6f %.6f %g %d %d %d %d\n",
			path, kind, hd.Redshift, hd.Time, hd.BoxSize,
			policy.N1D(hd.Total(1)), hd.NPart[1], hd.NPart[2], hd.NumFiles)
	}
	return nil
}
