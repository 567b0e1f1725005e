/*package snapio contains functions for reading source shards. Two layouts
are supported behind one Reader interface: legacy Gadget-2 binary files
(formats 1 and 2, either byte order) and snaparc archives, which makes it
possible to recompress an existing archive.
*/
package snapio

import (
	"fmt"
	"io"
	"os"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/particles"
)

// Reader is an abstraction over one source shard.
type Reader interface {
	// Path returns the location of the shard.
	Path() string
	// Header returns the shard's header.
	Header() (*header.RawHeader, error)
	// ReadBlock reads every particle of one species for one field. The
	// block has exactly as many rows as the header declares for that
	// species. A missing field is a *g_error.BlockNotFoundError and a block
	// whose size disagrees with the header is a *g_error.ShortReadError.
	ReadBlock(f particles.Field, species int) (particles.Block, error)
	// Close releases the shard's resources.
	Close() error
}

// Type assertions
var (
	_ Reader = &Gadget2{}
	_ Reader = &ArchiveShard{}
	_ Reader = &MemoryShard{}
)

// Open opens a shard, choosing its layout from its first bytes.
func Open(path string, reg *compress.Registry) (Reader, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	head := make([]byte, len(archive.Magic))
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("The file %s could not be read: %w", path, err)
	}
	head = head[:n]

	if archive.IsArchive(head) {
		return OpenArchiveShard(path, reg)
	}
	return OpenGadget2(path)
}

// checkFile returns an error if the given file can't be opened or if it is
// a directory.
func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("The file %s cannot be opened. The system error "+
			"is: \"%s\"", path, err.Error())
	} else if info.IsDir() {
		return fmt.Errorf("The file %s is a directory, not a shard.", path)
	}
	return nil
}
