// Package arena implements the interpreter's heap: a single fixed-size byte
// region split into two halves that grow toward each other, as described by
// HEAP_SIZE in the original picoc header this interpreter's data model is
// drawn from.
//
// The stack side grows from the low end upward with strict LIFO discipline
// (PushFrame/PopFrame), backing call frames and expression temporaries. The
// free-list side grows from the high end downward, backing bound variable
// storage that must survive past the frame that declared it. Allocations are
// returned as offsets into the region rather than raw pointers, so that
// growing or relocating the backing slice (which this implementation never
// does, but a future caller might) cannot invalidate outstanding values.
package arena

import (
	"errors"
	"fmt"
)

const wordSize = 8 // unsafe.Sizeof(int(0)) on every platform this targets

// Align rounds n up to the nearest machine word boundary, mirroring the
// MEM_ALIGN macro: (n + ARCH_ALIGN_WORDSIZE - 1) & ~(ARCH_ALIGN_WORDSIZE-1).
func Align(n int) int {
	return (n + wordSize - 1) &^ (wordSize - 1)
}

// ErrOOM indicates that the stack side and free-list side have collided, or
// that a single allocation is larger than the remaining region.
var ErrOOM = errors.New("arena: out of memory")

// freeNode is the header stored immediately before a free-list allocation's
// payload, threading the singly-linked free list through the region itself.
type freeNode struct {
	size int
	next int // offset of next freeNode, or -1
}

const freeNodeSize = 16 // two words: size, next

// Arena is a single contiguous region, sized once at construction.
type Arena struct {
	buf []byte

	stackTop int // next free byte on the stack side, grows upward from 0
	heapTop  int // next free byte on the free-list side, grows downward from len(buf)
	freeHead int // offset of first freeNode, or -1 if the free list is empty

	frames []int // saved stackTop values, pushed/popped by PushFrame/PopFrame
}

// New allocates a region of the given size. Sizes are rounded up to a word
// boundary; the default of roughly 2KiB matches HEAP_SIZE in the original
// picoc header, but callers are expected to size this per embedding (Open
// Question: the default should be a runtime parameter, not a compile-time
// constant).
func New(size int) *Arena {
	size = Align(size)
	return &Arena{
		buf:      make([]byte, size),
		heapTop:  size,
		freeHead: -1,
	}
}

// Size returns the total capacity of the region.
func (a *Arena) Size() int { return len(a.buf) }

// StackUsed returns the current high-water mark of the stack side, useful
// for round-trip invariants in tests.
func (a *Arena) StackUsed() int { return a.stackTop }

// Bytes returns the byte at offset off..off+n, panicking if out of range;
// used by the value/type layer to read and write payloads by offset.
func (a *Arena) Bytes(off, n int) []byte {
	return a.buf[off : off+n]
}

// PushFrame records the current stack-side high-water mark.
func (a *Arena) PushFrame() {
	a.frames = append(a.frames, a.stackTop)
}

// PopFrame restores the stack-side high-water mark to the last PushFrame,
// invalidating (for stack-side purposes) everything allocated since. It is a
// fatal usage error to pop without a matching push.
func (a *Arena) PopFrame() error {
	if n := len(a.frames); n > 0 {
		a.stackTop = a.frames[n-1]
		a.frames = a.frames[:n-1]
		return nil
	}
	return errors.New("arena: pop without matching push")
}

// AllocStack carves n bytes (word-aligned) off the stack side. The returned
// storage is valid until the next matching PopFrame.
func (a *Arena) AllocStack(n int) (int, error) {
	n = Align(n)
	off := a.stackTop
	if off+n > a.heapTop {
		return 0, ErrOOM
	}
	a.stackTop = off + n
	return off, nil
}

// Alloc carves n bytes off the free-list side, splitting the first
// sufficiently large free node if one exists, else taking a fresh slice from
// the high-water mark. The caller owns the returned offset until it calls
// Free on it.
func (a *Arena) Alloc(n int) (int, error) {
	need := Align(n)
	if need < freeNodeSize {
		// Free writes a full freeNode header at the block's offset
		need = freeNodeSize
	}

	// first-fit scan of the free list
	prev := -1
	for cur := a.freeHead; cur != -1; {
		node := a.readNode(cur)
		if node.size >= need {
			a.unlink(prev, cur, node)
			if rem := node.size - need; rem >= freeNodeSize+wordSize {
				a.writeNode(cur+need, freeNode{size: rem, next: a.freeHead})
				a.freeHead = cur + need
			}
			return cur, nil
		}
		prev = cur
		cur = node.next
	}

	// fall back to shrinking the high-water mark
	off := a.heapTop - need
	if off < a.stackTop {
		return 0, ErrOOM
	}
	a.heapTop = off
	return off, nil
}

// Free prepends the allocation at off (of the given original size) back onto
// the free list.
func (a *Arena) Free(off, size int) {
	size = Align(size)
	if size < freeNodeSize {
		size = freeNodeSize
	}
	a.writeNode(off, freeNode{size: size, next: a.freeHead})
	a.freeHead = off
}

func (a *Arena) unlink(prev, cur int, node freeNode) {
	if prev == -1 {
		a.freeHead = node.next
	} else {
		p := a.readNode(prev)
		p.next = node.next
		a.writeNode(prev, p)
	}
}

func (a *Arena) readNode(off int) freeNode {
	b := a.buf[off : off+freeNodeSize]
	return freeNode{
		size: int(beUint64(b[0:8])),
		next: int(int64(beUint64(b[8:16]))),
	}
}

func (a *Arena) writeNode(off int, node freeNode) {
	b := a.buf[off : off+freeNodeSize]
	putBeUint64(b[0:8], uint64(node.size))
	putBeUint64(b[8:16], uint64(int64(node.next)))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func putBeUint64(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// Error describes an out-of-memory or misuse condition with the offending
// sizes attached, for diagnostics.
type Error struct {
	Op   string
	Size int
}

func (e Error) Error() string { return fmt.Sprintf("arena: %s failed for %d bytes", e.Op, e.Size) }
