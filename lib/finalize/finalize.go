/*package finalize makes archives visible atomically. Every write targets a
".inprogress" path next to the final name. Commit checks the size of the
finished file against the number of bytes that went into it, makes it
read-only and renames it into place. The rename is the only point at which
a file appears under the final name, so a failed or interrupted job never
leaves a partial archive there.
*/
package finalize

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	g_error "github.com/phil-mansfield/snaparc/lib/error"
)

const (
	// InProgressSuffix is appended to the final name while it is written.
	InProgressSuffix = ".inprogress"

	fileMode      fs.FileMode = 0644
	readOnlyMode  fs.FileMode = 0444
	writableDir   fs.FileMode = 0755
	lockedDownDir fs.FileMode = 0555
)

// Options controls how an archive is finalized.
type Options struct {
	// Lockdown leaves the destination directory read-only (0555) after a
	// successful commit instead of restoring its original mode.
	Lockdown bool
	Logger   *slog.Logger
}

// Result describes a committed archive.
type Result struct {
	Path        string
	InputBytes  int64
	OutputBytes int64
}

// Ratio returns the compression ratio of the archive.
func (r *Result) Ratio() float64 {
	if r.OutputBytes == 0 {
		return 0
	}
	return float64(r.InputBytes) / float64(r.OutputBytes)
}

// Pending is an archive which is being written.
type Pending struct {
	dst, tmp string
	dir      string
	dirMode  fs.FileMode
	file     *os.File
	opts     Options
	done     bool
}

// InProgressPath returns the path an archive is written to before commit.
func InProgressPath(dst string) string { return dst + InProgressSuffix }

// CheckPaths returns a *g_error.PathCollisionError if dst already exists or
// if any source is dst or lives in the same directory as dst. Writing next
// to the sources is refused so that source trees are never modified.
func CheckPaths(dst string, sources []string) error {
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(absDst); err == nil {
		return &g_error.PathCollisionError{
			Path: dst, Reason: "the destination already exists",
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	dstDir := filepath.Dir(absDst)
	for _, src := range sources {
		absSrc, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		if absSrc == absDst {
			return &g_error.PathCollisionError{
				Path: dst, Reason: fmt.Sprintf("it is also the source %s", src),
			}
		}
		if sameDir(filepath.Dir(absSrc), dstDir) {
			return &g_error.PathCollisionError{
				Path: dst, Reason: fmt.Sprintf("it is in the same directory "+
					"as the source %s", src),
			}
		}
	}
	return nil
}

// sameDir reports whether a and b name the same directory, following
// symlinks when both exist.
func sameDir(a, b string) bool {
	if a == b {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}

// Begin checks the destination and creates its in-progress file. The
// destination directory is created if needed and made writable until the
// Pending is committed or aborted.
func Begin(dst string, sources []string, opts Options) (*Pending, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := CheckPaths(dst, sources); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dst)
	dirMode := writableDir
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return nil, &g_error.PathCollisionError{
				Path: dst, Reason: fmt.Sprintf("%s is not a directory", dir),
			}
		}
		dirMode = info.Mode().Perm()
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, writableDir); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}
	if err := os.Chmod(dir, writableDir); err != nil {
		return nil, fmt.Errorf("Could not make %s writable: %w", dir, err)
	}

	p := &Pending{
		dst: dst, tmp: InProgressPath(dst),
		dir: dir, dirMode: dirMode, opts: opts,
	}

	// A stale file from a crashed run is never promoted, so it is safe to
	// replace.
	if err := os.Remove(p.tmp); err == nil {
		opts.Logger.Warn("removed stale in-progress file", "path", p.tmp)
	} else if !errors.Is(err, fs.ErrNotExist) {
		p.restoreDir(false)
		return nil, err
	}

	f, err := os.OpenFile(p.tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		p.restoreDir(false)
		return nil, err
	}
	p.file = f
	opts.Logger.Debug("writing in-progress archive", "path", p.tmp)
	return p, nil
}

// File returns the in-progress file.
func (p *Pending) File() *os.File { return p.file }

// Path returns the path of the in-progress file.
func (p *Pending) Path() string { return p.tmp }

// Commit promotes the in-progress file to the final name. If the archive is
// larger than inputBytes it returns a *g_error.SizeInflationError and the
// in-progress file is left for inspection.
func (p *Pending) Commit(inputBytes int64) (*Result, error) {
	if p.done {
		return nil, fmt.Errorf("%s has already been committed or aborted.",
			p.tmp)
	}
	p.done = true

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		p.restoreDir(false)
		return nil, err
	}
	if err := p.file.Close(); err != nil {
		p.restoreDir(false)
		return nil, err
	}

	info, err := os.Stat(p.tmp)
	if err != nil {
		p.restoreDir(false)
		return nil, err
	}
	size := info.Size()
	if size > inputBytes {
		p.restoreDir(false)
		return nil, &g_error.SizeInflationError{
			Path: p.tmp, InputBytes: inputBytes, OutputBytes: size,
		}
	}

	if err := os.Chmod(p.tmp, readOnlyMode); err != nil {
		p.restoreDir(false)
		return nil, err
	}
	if err := renameNoReplace(p.tmp, p.dst); err != nil {
		p.restoreDir(false)
		return nil, err
	}
	if err := syncDir(p.dir); err != nil {
		p.opts.Logger.Warn("could not sync directory", "dir", p.dir,
			"error", err)
	}
	if err := p.restoreDir(p.opts.Lockdown); err != nil {
		return nil, err
	}

	p.opts.Logger.Debug("committed archive", "path", p.dst, "bytes", size)
	return &Result{Path: p.dst, InputBytes: inputBytes, OutputBytes: size}, nil
}

// Abort closes the in-progress file without promoting it. The file is left
// in place.
func (p *Pending) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	err := p.file.Close()
	if rerr := p.restoreDir(false); err == nil {
		err = rerr
	}
	p.opts.Logger.Debug("aborted archive", "path", p.tmp)
	return err
}

func (p *Pending) restoreDir(lockdown bool) error {
	mode := p.dirMode
	if lockdown {
		mode = lockedDownDir
	}
	return os.Chmod(p.dir, mode)
}

// renameExists reports a rename onto an existing file.
func renameExists(dst string) error {
	return &g_error.PathCollisionError{
		Path: dst, Reason: "the destination appeared while the archive " +
			"was being written",
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
