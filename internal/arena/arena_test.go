package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	require.Equal(t, 0, Align(0))
	require.Equal(t, 8, Align(1))
	require.Equal(t, 8, Align(8))
	require.Equal(t, 16, Align(9))
}

func TestStackFrameRoundTrip(t *testing.T) {
	a := New(256)
	start := a.StackUsed()

	a.PushFrame()
	_, err := a.AllocStack(3)
	require.NoError(t, err)
	_, err = a.AllocStack(17)
	require.NoError(t, err)
	require.NoError(t, a.PopFrame())

	require.Equal(t, start, a.StackUsed(), "stack pointer must round-trip across push/pop")
}

func TestNestedFrames(t *testing.T) {
	a := New(256)

	a.PushFrame()
	off1, err := a.AllocStack(8)
	require.NoError(t, err)

	a.PushFrame()
	_, err = a.AllocStack(8)
	require.NoError(t, err)
	require.NoError(t, a.PopFrame())

	off2, err := a.AllocStack(8)
	require.NoError(t, err)
	require.Equal(t, off1+8, off2, "inner frame's allocation must be reclaimed on pop")

	require.NoError(t, a.PopFrame())
}

func TestPopWithoutPush(t *testing.T) {
	a := New(64)
	require.Error(t, a.PopFrame())
}

func TestAllocFreeReuse(t *testing.T) {
	a := New(256)

	off, err := a.Alloc(24)
	require.NoError(t, err)
	a.Free(off, 24)

	off2, err := a.Alloc(24)
	require.NoError(t, err)
	require.Equal(t, off, off2, "a freed block of matching size should be reused")
}

func TestAllocSplitsFreeNode(t *testing.T) {
	a := New(256)

	off, err := a.Alloc(64)
	require.NoError(t, err)
	a.Free(off, 64)

	small, err := a.Alloc(8)
	require.NoError(t, err)
	require.Equal(t, off, small, "first-fit should take from the head of the free list")

	// the remainder of the freed block should still be available
	rest, err := a.Alloc(24)
	require.NoError(t, err)
	require.NotEqual(t, small, rest)
}

func TestStackHeapCollisionIsOOM(t *testing.T) {
	a := New(64)
	_, err := a.Alloc(40)
	require.NoError(t, err)

	a.PushFrame()
	_, err = a.AllocStack(40)
	require.ErrorIs(t, err, ErrOOM)
}

func TestBytesRoundTrip(t *testing.T) {
	a := New(64)
	off, err := a.Alloc(8)
	require.NoError(t, err)
	copy(a.Bytes(off, 8), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, a.Bytes(off, 8))
}
