package gpumem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapNeverReturnsNull(t *testing.T) {
	h := NewHeap(4096, 256)

	a, err := h.Allocate(10)
	require.NoError(t, err)
	assert.NotEqual(t, NullAddress, a.Address)
	assert.Equal(t, Address(256), a.Address)
	assert.Equal(t, uint64(10), a.Size)
	assert.Equal(t, uint64(256), h.Used())
}

func TestHeapAllocationsDoNotOverlap(t *testing.T) {
	h := NewHeap(1<<16, 256)

	var allocs []Allocation
	for _, size := range []uint64{24, 300, 64, 1000, 1} {
		a, err := h.Allocate(size)
		require.NoError(t, err)
		allocs = append(allocs, a)
	}

	for i := range allocs {
		assert.Zero(t, uint64(allocs[i].Address)%256, "allocation %d is not aligned", i)
		for j := i + 1; j < len(allocs); j++ {
			a, b := allocs[i], allocs[j]
			overlap := a.Address < b.Address+Address(b.reserved) && b.Address < a.Address+Address(a.reserved)
			assert.False(t, overlap, "allocations %d and %d overlap", i, j)
		}
	}
	assert.Equal(t, 5, h.Live())
}

func TestHeapOutOfMemory(t *testing.T) {
	h := NewHeap(1024, 256)

	_, err := h.Allocate(512)
	require.NoError(t, err)
	_, err = h.Allocate(512)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	_, err = h.Allocate(256)
	assert.NoError(t, err)
}

func TestHeapFreeCoalesces(t *testing.T) {
	h := NewHeap(256+3*256, 256)

	a, err := h.Allocate(256)
	require.NoError(t, err)
	b, err := h.Allocate(256)
	require.NoError(t, err)
	c, err := h.Allocate(256)
	require.NoError(t, err)

	_, err = h.Allocate(1)
	require.ErrorIs(t, err, ErrOutOfMemory)

	h.Free(a)
	h.Free(c)
	h.Free(b)
	assert.Zero(t, h.Used())
	assert.Zero(t, h.Live())

	big, err := h.Allocate(3 * 256)
	require.NoError(t, err)
	assert.Equal(t, a.Address, big.Address)
}

func TestHeapResolve(t *testing.T) {
	h := NewHeap(4096, 256)
	a, err := h.Allocate(100)
	require.NoError(t, err)

	got, err := h.Resolve(a.Address+40, 60)
	require.NoError(t, err)
	assert.Equal(t, a.Address, got.Address)

	_, err = h.Resolve(a.Address+40, 61)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	h.Free(a)
	_, err = h.Resolve(a.Address, 4)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	h.Free(a)
	assert.Zero(t, h.Used())
}
