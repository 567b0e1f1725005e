package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/phil-mansfield/snaparc/lib/compress"
)

// Request is a truncation request for one field: either Auto, which is
// resolved through a Table, or an explicit number of bits. The zero value
// is Explicit(0).
type Request struct {
	auto bool
	bits int
}

// Auto returns a request which is resolved through the policy table.
func Auto() Request { return Request{auto: true} }

// Explicit returns a request for exactly the given number of bits.
func Explicit(bits int) Request { return Request{bits: bits} }

// ParseRequest parses "auto" or a non-negative integer.
func ParseRequest(s string) (Request, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		return Auto(), nil
	}
	bits, err := strconv.Atoi(s)
	if err != nil {
		return Request{}, fmt.Errorf("The truncation request '%s' is "+
			"neither 'auto' nor an integer.", s)
	}
	if err := compress.CheckTruncBits(bits); err != nil {
		return Request{}, err
	}
	return Explicit(bits), nil
}

// IsAuto reports whether the request must be resolved through a table.
func (r Request) IsAuto() bool { return r.auto }

// Bits returns the explicit width. ok is false for Auto requests.
func (r Request) Bits() (bits int, ok bool) { return r.bits, !r.auto }

func (r Request) String() string {
	if r.auto {
		return "auto"
	}
	return strconv.Itoa(r.bits)
}

func (r Request) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Request) UnmarshalText(b []byte) error {
	var err error
	*r, err = ParseRequest(string(b))
	return err
}
