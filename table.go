package minic

import "github.com/embedc/minic/internal/srctext"

// Table is a fixed-capacity open-addressed hash table keyed by a source
// slice, storing value pointers (*Cell), per §3/§4.3. Two exist at any
// time: the global table (process lifetime) and the current frame's local
// table (call lifetime); lookup consults local first, then global -- that
// chaining lives in (*Interp).lookup, not here.
//
// There is no delete: identifiers, once inserted, are never removed except
// by scope exit discarding the whole table (§3 invariant 3).
type Table struct {
	size int
	keys []srctext.Slice
	used []bool
	vals []*Cell
}

// NewTable allocates a table with the given fixed capacity. The default
// sizes -- 397 for the global table, 11 for the local table -- come from
// picoc.h's GLOBAL_TABLE_SIZE/LOCAL_TABLE_SIZE; here they are runtime
// options (WithGlobalTableSize, WithLocalTableSize) rather than compile-time
// constants, per Open Question #3/#4 in spec.md §9.
func NewTable(size int) *Table {
	if size <= 0 {
		size = 1
	}
	return &Table{
		size: size,
		keys: make([]srctext.Slice, size),
		used: make([]bool, size),
		vals: make([]*Cell, size),
	}
}

// ErrTableFull is returned by Set when no empty slot exists within the
// linear probe sequence -- a fatal error at the call site, per §4.3.
var ErrTableFull = tableFullError{}

type tableFullError struct{}

func (tableFullError) Error() string { return "symbol table is full" }

func hashSlice(s srctext.Slice) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Set inserts or overwrites key's binding. It reports updated=true if key
// was already present (and its value pointer was overwritten in place), or
// updated=false if a fresh slot was taken. Returns ErrTableFull if the
// linear probe sequence wraps all the way around without finding key or an
// empty slot.
func (t *Table) Set(key srctext.Slice, val *Cell) (updated bool, err error) {
	start := int(hashSlice(key)) % t.size
	if start < 0 {
		start += t.size
	}
	for i := 0; i < t.size; i++ {
		slot := (start + i) % t.size
		if !t.used[slot] {
			t.used[slot] = true
			t.keys[slot] = key
			t.vals[slot] = val
			return false, nil
		}
		if srctext.Equal(t.keys[slot], key) {
			t.vals[slot] = val
			return true, nil
		}
	}
	return false, ErrTableFull
}

// Names returns the keys currently bound, in slot order. Used only by
// (*Interp).Dump; the interpreter's own lookup never needs to enumerate a
// table.
func (t *Table) Names() []srctext.Slice {
	var names []srctext.Slice
	for i, used := range t.used {
		if used {
			names = append(names, t.keys[i])
		}
	}
	return names
}

// Cells returns every bound value pointer, in slot order. Used only by
// (*Interp).callFunction to return a local table's arena-backed storage on
// scope exit.
func (t *Table) Cells() []*Cell {
	var cells []*Cell
	for i, used := range t.used {
		if used {
			cells = append(cells, t.vals[i])
		}
	}
	return cells
}

// Get probes identically to Set, returning the stored value pointer and
// true, or nil and false if key is not present.
func (t *Table) Get(key srctext.Slice) (*Cell, bool) {
	start := int(hashSlice(key)) % t.size
	if start < 0 {
		start += t.size
	}
	for i := 0; i < t.size; i++ {
		slot := (start + i) % t.size
		if !t.used[slot] {
			return nil, false
		}
		if srctext.Equal(t.keys[slot], key) {
			return t.vals[slot], true
		}
	}
	return nil, false
}
