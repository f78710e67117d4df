package minic

import "github.com/embedc/minic/internal/srctext"

// Cell is this implementation's Value: a (type, payload) pair. Exactly one
// payload field is meaningful, selected by Typ.Base. Expression temporaries
// are plain Cell values, copied by Go assignment; anything addressable (a
// declared variable, an array element, the pointee of a pointer) is always
// reached through a *Cell, which is what an lvalue is in this package --
// a stable Go pointer into either a Table entry or an Array's backing slice.
//
// MustFree mirrors §3's invariant 2: it is set only on cells whose storage
// was charged against the arena's free-list side (bound globals and
// locals), so that scope exit knows to give the budget back; transient
// cells never carry it.
type Cell struct {
	Typ *ValueType

	I int
	F float64
	C byte
	S srctext.Slice

	Arr *Array
	Ptr Pointer
	Fn  *FuncDef

	MustFree  bool
	arenaOff  int // internal/arena offset this cell's storage was charged at
	arenaSize int // size passed to arena.Alloc, needed again to arena.Free
}

// cellWordSize is the unit bindVariable and callFunction charge the arena
// per scalar binding -- one machine word, matching internal/arena's own
// alignment unit (ARCH_ALIGN_WORDSIZE in original_source/picoc.h).
const cellWordSize = 8

// Array is the payload of a TypeArray cell: a fixed element count and
// contiguous backing storage. Data is addressed by Cell pointer
// (&Data[i]) so that "&a[i]" and "*(p+i)" share one addressing story.
type Array struct {
	Elem *ValueType
	Data []Cell
}

// Pointer is the payload of a TypePointer cell. A pointer with Seg == nil is
// a raw host-memory pointer used only by intrinsics (Raw carries whatever
// the host put there); any other pointer addresses index Offset into Seg's
// Array (Offset 0 for a scalar Seg).
type Pointer struct {
	Seg    *Cell
	Offset int
	Raw    interface{}
}

// FuncDef is the payload of a TypeFunction or TypeMacro cell: where the body
// came from. IsIntrinsic is true exactly when this function is a host
// intrinsic rather than interpreted source (§4.7); the body fields are
// meaningless in that case and ParamTypes carries the declared signature
// instead (an interpreted function instead reads its parameter count off
// Params, the formal names captured from the source).
type FuncDef struct {
	Body       srctext.Slice
	FileName   srctext.Slice
	StartLine  int
	Params     []srctext.Slice
	ReturnType *ValueType

	IsIntrinsic bool
	IntrinsicID int
	ParamTypes  []*ValueType
}

func newIntCell(typ *ValueType, v int) *Cell   { return &Cell{Typ: typ, I: v} }
func newFPCell(typ *ValueType, v float64) *Cell { return &Cell{Typ: typ, F: v} }
func newCharCell(typ *ValueType, v byte) *Cell { return &Cell{Typ: typ, C: v} }

// zeroed constructs a zero-value cell of the given type -- what an
// uninitialized declaration reads as. An array type gets an empty Array.
func zeroed(typ *ValueType) Cell {
	c := Cell{Typ: typ}
	switch typ.Base {
	case TypePointer:
		c.Ptr = Pointer{}
	case TypeArray:
		n := 0
		c.Arr = &Array{Elem: typ.Sub, Data: make([]Cell, n)}
	}
	return c
}

// copyValue implements assignment, converting src to dst's type: value types
// (int/fp/string, §4.5) and char copy by value, a pointer copies its
// Seg/Offset pair, and an array or function/macro copies its reference.
// Assigning to an array is rejected earlier by checkAssignable, so the array
// case is reached only when a fresh variable is bound to its initializer.
func copyValue(dst *Cell, src *Cell) {
	typ := dst.Typ
	switch typ.Base {
	case TypeInt:
		dst.I = toInt(src)
	case TypeFP:
		dst.F = toFP(src)
	case TypeChar:
		dst.C = byte(toInt(src))
	case TypeString:
		dst.S = src.S
	case TypePointer:
		dst.Ptr = src.Ptr
	case TypeArray:
		dst.Arr = src.Arr
	case TypeFunction, TypeMacro:
		dst.Fn = src.Fn
	}
}

// toInt applies the implicit conversions of §4.5 needed to read a cell as an
// int: char promotes to int, fp truncates.
func toInt(c *Cell) int {
	switch c.Typ.Base {
	case TypeInt:
		return c.I
	case TypeChar:
		return int(c.C)
	case TypeFP:
		return int(c.F)
	case TypePointer:
		return c.Ptr.Offset
	default:
		return 0
	}
}

// toFP applies the implicit conversion of §4.5: if either arithmetic operand
// is fp the other is promoted to fp.
func toFP(c *Cell) float64 {
	switch c.Typ.Base {
	case TypeFP:
		return c.F
	case TypeInt:
		return float64(c.I)
	case TypeChar:
		return float64(c.C)
	default:
		return 0
	}
}
