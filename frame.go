package minic

import "github.com/embedc/minic/internal/srctext"

// StackFrame is one call's worth of state, per §3: a fresh local Table bound
// for the callee's parameters and locals, plus the slot its return value
// lands in. The "saved lexer state to resume at the call site" half of §3's
// frame tuple needs no field here: (*Interp).withLexer saves and restores
// the caller's *Lexer as an ordinary Go local variable around the callee's
// execution, so Go's own call stack carries it instead of a manual stack.
// Frames are pushed and popped in the same LIFO discipline as the arena's
// stack side (internal/arena.PushFrame/PopFrame); the two disciplines are
// driven together by (*Interp).callFunction so that a local variable's
// storage and its binding always go out of scope in the same call return.
type StackFrame struct {
	Locals      *Table
	ReturnValue Cell
}

// callStack tracks live frames against a configurable depth limit, standing
// in for picoc.h's STACK_MAX (original_source/picoc.h): an interpreted
// recursive call that exceeds it is a Runtime failure rather than a crash.
type callStack struct {
	frames  []*StackFrame
	maxDepth int
}

func newCallStack(maxDepth int) *callStack {
	return &callStack{maxDepth: maxDepth}
}

func (cs *callStack) push(f *StackFrame, pos srctext.Pos) {
	if cs.maxDepth > 0 && len(cs.frames) >= cs.maxDepth {
		fail(Runtime, pos, "call stack exceeds maximum depth %d", cs.maxDepth)
	}
	cs.frames = append(cs.frames, f)
}

func (cs *callStack) pop() *StackFrame {
	n := len(cs.frames)
	if n == 0 {
		return nil
	}
	f := cs.frames[n-1]
	cs.frames = cs.frames[:n-1]
	return f
}

func (cs *callStack) top() *StackFrame {
	if n := len(cs.frames); n > 0 {
		return cs.frames[n-1]
	}
	return nil
}

func (cs *callStack) depth() int { return len(cs.frames) }
