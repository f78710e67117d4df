package minic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedc/minic/internal/srctext"
)

func TestTableSetGet(t *testing.T) {
	tbl := NewTable(11)

	a := newIntCell(intType, 1)
	updated, err := tbl.Set(srctext.Of("a"), a)
	require.NoError(t, err)
	require.False(t, updated, "first insert must not report updated")

	got, ok := tbl.Get(srctext.Of("a"))
	require.True(t, ok)
	require.Same(t, a, got, "get-after-set must return the exact value pointer set")
}

func TestTableSetSameKeyUpdates(t *testing.T) {
	tbl := NewTable(11)

	a := newIntCell(intType, 1)
	_, err := tbl.Set(srctext.Of("x"), a)
	require.NoError(t, err)

	b := newIntCell(intType, 2)
	updated, err := tbl.Set(srctext.Of("x"), b)
	require.NoError(t, err)
	require.True(t, updated, "set-then-set-same-key must report updated")

	got, ok := tbl.Get(srctext.Of("x"))
	require.True(t, ok)
	require.Same(t, b, got, "set-then-set-same-key must yield a single entry, no duplicate probe")
}

func TestTableGetMissing(t *testing.T) {
	tbl := NewTable(11)
	_, ok := tbl.Get(srctext.Of("nope"))
	require.False(t, ok)
}

func TestTableFullIsFatal(t *testing.T) {
	tbl := NewTable(2)
	_, err := tbl.Set(srctext.Of("a"), newIntCell(intType, 1))
	require.NoError(t, err)
	_, err = tbl.Set(srctext.Of("b"), newIntCell(intType, 2))
	require.NoError(t, err)
	_, err = tbl.Set(srctext.Of("c"), newIntCell(intType, 3))
	require.ErrorIs(t, err, ErrTableFull)
}

func TestTableDistinctIdentifiers(t *testing.T) {
	tbl := NewTable(11)
	i1, i2 := newIntCell(intType, 10), newIntCell(intType, 20)
	_, err := tbl.Set(srctext.Of("i1"), i1)
	require.NoError(t, err)
	_, err = tbl.Set(srctext.Of("i2"), i2)
	require.NoError(t, err)

	g1, ok := tbl.Get(srctext.Of("i1"))
	require.True(t, ok)
	require.Same(t, i1, g1)

	g2, ok := tbl.Get(srctext.Of("i2"))
	require.True(t, ok)
	require.Same(t, i2, g2)
}

// intType is a package-level int *ValueType for use across tests that don't
// need a full Interp.
var intType = &ValueType{Base: TypeInt}
