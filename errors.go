package minic

import (
	"fmt"

	"github.com/embedc/minic/internal/srctext"
)

// ErrorKind classifies a fatal error by the phase that detected it, per §7:
// the driver reports this alongside position and message, but every kind
// takes the same path out of the interpreter -- panic, caught by the
// deferred recover in (*Interp).run and returned from (*Interp).Run.
type ErrorKind int

const (
	_ ErrorKind = iota
	Lexical
	Syntactic
	Semantic
	Runtime
	Preprocessing
)

func (k ErrorKind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Syntactic:
		return "syntactic"
	case Semantic:
		return "semantic"
	case Runtime:
		return "runtime"
	case Preprocessing:
		return "preprocessing"
	default:
		return "error"
	}
}

// ProgramFail is the one shape every fatal error in the interpreter takes:
// a kind, a position, and a message. Inside the interpreter it is never
// returned -- it is always panicked, and only (*Interp).Run hands it back
// as an error -- mirroring the teacher's vmHaltError / ProgramFail split between
// "construct the diagnostic" and "unwind the call stack with it."
type ProgramFail struct {
	Kind ErrorKind
	Pos  srctext.Pos
	Msg  string
}

func (e *ProgramFail) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Pos, e.Kind, e.Msg)
}

// fail panics with a *ProgramFail built from pos, kind and a formatted
// message. Every recognizer in eval.go that detects an error calls this
// instead of returning one, so that callers deep in the recursive-descent
// recognizer tree never need an error return of their own -- only the
// top-level (*Interp).Run needs to catch it.
func fail(kind ErrorKind, pos srctext.Pos, format string, args ...interface{}) {
	panic(&ProgramFail{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// asProgramFail recovers a panic value as a *ProgramFail. A *LexError
// (panicked as a bare error by the lexer call sites in eval.go that check
// the lexer's error, rather than run through fail()) is §7 kind 1 -- Lexical, not Runtime -- and already
// carries its own position. Anything else (a genuine bug: nil map write,
// index out of range, ...) is wrapped as a Runtime failure at pos so that
// (*Interp).Run never itself panics.
func asProgramFail(r interface{}, pos srctext.Pos) *ProgramFail {
	if pf, ok := r.(*ProgramFail); ok {
		return pf
	}
	if le, ok := r.(*LexError); ok {
		return &ProgramFail{Kind: Lexical, Pos: le.Pos, Msg: le.Msg}
	}
	return &ProgramFail{Kind: Runtime, Pos: pos, Msg: fmt.Sprint(r)}
}
