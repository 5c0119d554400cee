// Package gpumem models raw device addresses. Devices expose one large heap allocation and
// hand out sub-ranges of it; an Address is a byte offset into that heap, so a shader can
// dereference it directly. Offset zero is reserved so the zero Address always means null.
package gpumem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrOutOfMemory is returned when the heap has no free range large enough for an allocation.
	ErrOutOfMemory = errors.New("device heap out of memory")

	// ErrInvalidAddress is returned when a range does not lie inside a live allocation.
	ErrInvalidAddress = errors.New("invalid device address")
)

// Address is a raw device address: a byte offset into a device heap. The zero value is null.
type Address uint64

// NullAddress is the reserved address that never refers to an allocation.
const NullAddress Address = 0

// DefaultAlignment is the allocation granularity. It satisfies the 16-byte alignment of every
// vector type and the 4-byte word addressing used by the shaders.
const DefaultAlignment uint64 = 256

// Allocation is a live range of the heap.
type Allocation struct {
	// Address is the first byte of the range.
	Address Address

	// Size is the usable size requested by the caller. The reserved span may be larger
	// because of alignment.
	Size uint64

	reserved uint64
}

// End returns the first address past the usable range.
func (a Allocation) End() Address {
	return a.Address + Address(a.Size)
}

// IsNull reports whether the allocation is the zero value.
func (a Allocation) IsNull() bool {
	return a.Address == NullAddress
}

// Memory is the device memory interface the structured buffers allocate from.
// Implementations are provided by the renderer backends.
type Memory interface {
	// Allocate reserves size bytes and returns the allocation.
	//
	// Parameters:
	//   - size: the requested size in bytes (must be > 0)
	//
	// Returns:
	//   - Allocation: the reserved range
	//   - error: ErrOutOfMemory if no range is available
	Allocate(size uint64) (Allocation, error)

	// Write copies data to device memory starting at addr. The range must lie inside a live allocation.
	// The write is visible to every command submitted after Write returns.
	//
	// Parameters:
	//   - addr: the destination address
	//   - data: the bytes to copy
	//
	// Returns:
	//   - error: ErrInvalidAddress if the range is not inside a live allocation
	Write(addr Address, data []byte) error

	// Free returns an allocation to the heap. Freeing an unknown allocation is a no-op.
	//
	// Parameters:
	//   - a: the allocation to free
	Free(a Allocation)
}

type span struct {
	offset uint64
	size   uint64
}

// Heap is a first-fit sub-allocator over a fixed address range. It only does bookkeeping;
// the backing storage belongs to the device that owns the heap. Safe for concurrent use.
type Heap struct {
	mu        *sync.Mutex
	capacity  uint64
	alignment uint64
	free      []span
	live      map[Address]Allocation
	used      uint64
}

// NewHeap creates a heap covering [alignment, capacity). The first aligned block is reserved
// so no allocation ever starts at the null address.
//
// Parameters:
//   - capacity: total heap size in bytes
//   - alignment: allocation granularity, a power of two (0 selects DefaultAlignment)
//
// Returns:
//   - *Heap: the heap
func NewHeap(capacity, alignment uint64) *Heap {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	h := &Heap{
		mu:        &sync.Mutex{},
		capacity:  capacity,
		alignment: alignment,
		live:      make(map[Address]Allocation),
	}
	if capacity > alignment {
		h.free = []span{{offset: alignment, size: capacity - alignment}}
	}
	return h
}

// Allocate reserves size bytes using first fit. The returned address is aligned to the heap alignment.
//
// Parameters:
//   - size: the requested size in bytes (must be > 0)
//
// Returns:
//   - Allocation: the reserved range
//   - error: ErrOutOfMemory if no free range is large enough
func (h *Heap) Allocate(size uint64) (Allocation, error) {
	if size == 0 {
		return Allocation{}, fmt.Errorf("allocate: zero-sized allocation")
	}
	reserved := alignUp(size, h.alignment)

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.free {
		if s.size < reserved {
			continue
		}
		a := Allocation{Address: Address(s.offset), Size: size, reserved: reserved}
		if s.size == reserved {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{offset: s.offset + reserved, size: s.size - reserved}
		}
		h.live[a.Address] = a
		h.used += reserved
		return a, nil
	}
	return Allocation{}, fmt.Errorf("%w: requested %d bytes, %d of %d in use", ErrOutOfMemory, size, h.used, h.capacity)
}

// Free returns the allocation's range to the free list, coalescing with its neighbours.
//
// Parameters:
//   - a: the allocation to free; unknown allocations are ignored
func (h *Heap) Free(a Allocation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	live, ok := h.live[a.Address]
	if !ok {
		return
	}
	delete(h.live, a.Address)
	h.used -= live.reserved

	h.free = append(h.free, span{offset: uint64(live.Address), size: live.reserved})
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].offset < h.free[j].offset })

	merged := h.free[:1]
	for _, s := range h.free[1:] {
		last := &merged[len(merged)-1]
		if last.offset+last.size == s.offset {
			last.size += s.size
			continue
		}
		merged = append(merged, s)
	}
	h.free = merged
}

// Resolve finds the live allocation containing [addr, addr+size).
//
// Parameters:
//   - addr: the first byte of the range
//   - size: the length of the range
//
// Returns:
//   - Allocation: the containing allocation
//   - error: ErrInvalidAddress if the range is not fully inside one live allocation
func (h *Heap) Resolve(addr Address, size uint64) (Allocation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for base, a := range h.live {
		if addr >= base && uint64(addr-base)+size <= a.Size {
			return a, nil
		}
	}
	return Allocation{}, fmt.Errorf("%w: [%#x, +%d)", ErrInvalidAddress, uint64(addr), size)
}

// Used returns the number of reserved bytes.
func (h *Heap) Used() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Live returns the number of live allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Capacity returns the heap size in bytes.
func (h *Heap) Capacity() uint64 {
	return h.capacity
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
