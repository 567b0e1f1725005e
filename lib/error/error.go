/*package error contains the error taxonomy used by every snaparc component
and simple functions for reporting errors at the top level of a program.

Every failure in a transcoding job is fatal to that job. The typed errors
below carry enough context (shard, field, value) for a user to find the
problem, and each one matches its sentinel with errors.Is.
*/
package error

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

var (
	ErrHeaderValidation = errors.New("header validation failed")
	ErrBlockNotFound    = errors.New("block not found")
	ErrShortRead        = errors.New("short read")
	ErrCodecLookup      = errors.New("no precision policy")
	ErrCountMismatch    = errors.New("particle count mismatch")
	ErrSizeInflation    = errors.New("archive larger than input")
	ErrPathCollision    = errors.New("path collision")
)

// HeaderValidationError reports a malformed header or a header that
// disagrees with the other shards in its group.
type HeaderValidationError struct {
	Shard  string
	Field  string
	Value  any
	Reason string
}

func (e *HeaderValidationError) Error() string {
	return fmt.Sprintf("The header of %s is invalid: %s = %v, but %s.",
		e.Shard, e.Field, e.Value, e.Reason)
}

func (e *HeaderValidationError) Is(target error) bool {
	return target == ErrHeaderValidation
}

// BlockNotFoundError reports a field that a source shard does not contain.
type BlockNotFoundError struct {
	Shard   string
	Field   string
	Species int
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("The shard %s does not contain the %s block for "+
		"species %d.", e.Shard, e.Field, e.Species)
}

func (e *BlockNotFoundError) Is(target error) bool {
	return target == ErrBlockNotFound
}

// ShortReadError reports a block whose size disagrees with the particle
// count the shard's header declares.
type ShortReadError struct {
	Shard    string
	Field    string
	Species  int
	Expected int64
	Got      int64
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("The %s block for species %d in %s should contain "+
		"%d bytes according to the header, but %d bytes were found.",
		e.Field, e.Species, e.Shard, e.Expected, e.Got)
}

func (e *ShortReadError) Is(target error) bool { return target == ErrShortRead }

// CodecLookupError reports an "auto" truncation request for a simulation
// that is not in the precision policy table.
type CodecLookupError struct {
	Box float64
	N1D int
}

func (e *CodecLookupError) Error() string {
	return fmt.Sprintf("There is no known precision policy for a box size "+
		"of %g and a resolution of %d^3 particles. Add an entry to the "+
		"policy table or pass explicit truncation widths.", e.Box, e.N1D)
}

func (e *CodecLookupError) Is(target error) bool {
	return target == ErrCodecLookup
}

// CountMismatchError reports a merged dataset whose streamed length differs
// from the canonical header.
type CountMismatchError struct {
	Field    string
	Species  int
	Expected int64
	Got      int64
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("The merged %s dataset for species %d should have "+
		"%d rows, but %d were streamed. A shard is missing, duplicated, or "+
		"misrouted.", e.Field, e.Species, e.Expected, e.Got)
}

func (e *CountMismatchError) Is(target error) bool {
	return target == ErrCountMismatch
}

// SizeInflationError reports an archive that came out larger than the
// bytes read to produce it.
type SizeInflationError struct {
	Path        string
	InputBytes  int64
	OutputBytes int64
}

func (e *SizeInflationError) Error() string {
	return fmt.Sprintf("The archive %s has %d bytes, more than the %d "+
		"input bytes used to make it. It has been left in place for "+
		"inspection.", e.Path, e.OutputBytes, e.InputBytes)
}

func (e *SizeInflationError) Is(target error) bool {
	return target == ErrSizeInflation
}

// PathCollisionError reports a destination that coincides with a source or
// already holds something.
type PathCollisionError struct {
	Path   string
	Reason string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("Cannot write to %s: %s.", e.Path, e.Reason)
}

func (e *PathCollisionError) Is(target error) bool {
	return target == ErrPathCollision
}

// External reports an error to stderr and kills the program. It should be
// used when an error is something a user could reasonably be expected to fix
// through changes in configuration/data/environment. It has the same
// signature as the standard fmt.*printf() functions.
func External(logger *slog.Logger, format string, a ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("snaparc exited early", "error", fmt.Sprintf(format, a...))
	os.Exit(1)
}

// Internal reports an error along with a stack trace and kills the program.
// It should be used when the error requires a code dive to fix.
func Internal(logger *slog.Logger, format string, a ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("snaparc exited early with an internal error",
		"error", fmt.Sprintf(format, a...), "stack", string(debug.Stack()))
	os.Exit(2)
}
