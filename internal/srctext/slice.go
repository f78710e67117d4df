// Package srctext implements the interpreter's Str slices: non-owning,
// length-prefixed views into a source buffer, plus the printf-like
// formatting helpers used for diagnostics and for any intrinsic that prints.
//
// Because the arena's backing storage is byte-addressed and source buffers
// are ordinary Go strings, a Slice is simply a Go string header already --
// two words, a pointer and a length, sharing storage with whatever it was
// cut from. That is the same non-owning-view shape the teacher's
// internal/fileinput.Line gives a scanned input line, just without the
// bytes.Buffer: Slice never needs to grow, only to be compared and sliced.
package srctext

import "strings"

// Slice is a non-owning view into a source buffer. The zero value is the
// empty slice.
type Slice string

// Pos names the file and line a Slice, Token, or diagnostic refers to,
// mirroring the teacher's fileinput.Location.
type Pos struct {
	File Slice
	Line int
}

func (p Pos) String() string {
	if p.File == "" {
		return itoa(p.Line)
	}
	return string(p.File) + ":" + itoa(p.Line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Equal does a byte-exact, length-first comparison, as required by §3's
// "comparisons are length-then-bytes" rule; it is plain Go string equality
// under the hood, but named to make call sites read like the spec.
func Equal(a, b Slice) bool { return a == b }

// Len reports the slice's length, matching the C Str.Len field.
func (s Slice) Len() int { return len(s) }

// String exposes the slice as a plain Go string for use in maps, hashing and
// printing.
func (s Slice) String() string { return string(s) }

// HasPrefix reports whether s begins with prefix.
func (s Slice) HasPrefix(prefix string) bool { return strings.HasPrefix(string(s), prefix) }

// Of builds a Slice viewing the given Go string without copying.
func Of(s string) Slice { return Slice(s) }
