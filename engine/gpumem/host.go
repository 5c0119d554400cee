package gpumem

import (
	"fmt"
	"sync"
)

// HostMemory is a Memory whose heap lives in process memory. The software device executes
// shaders directly against it; tests use it as a stand-in device.
type HostMemory struct {
	*Heap
	mu   *sync.RWMutex
	data []byte
}

var _ Memory = &HostMemory{}

// NewHostMemory creates a host heap of capacity bytes. Backing storage grows on demand up to capacity.
//
// Parameters:
//   - capacity: the heap size in bytes
//   - alignment: the allocation granularity (0 selects DefaultAlignment)
//
// Returns:
//   - *HostMemory: the memory
func NewHostMemory(capacity, alignment uint64) *HostMemory {
	return &HostMemory{
		Heap: NewHeap(capacity, alignment),
		mu:   &sync.RWMutex{},
	}
}

// Write copies data into the heap. The range must lie inside a live allocation.
func (m *HostMemory) Write(addr Address, data []byte) error {
	if _, err := m.Resolve(addr, uint64(len(data))); err != nil {
		return fmt.Errorf("host write: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(addr) + uint64(len(data))
	if end > uint64(len(m.data)) {
		grown := make([]byte, min(max(end, uint64(len(m.data))*2), m.capacity))
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[addr:end], data)
	return nil
}

// Read returns a copy of size bytes starting at addr. The range must lie inside a live allocation,
// so reads through a freed or never-allocated address are reported instead of returning garbage.
//
// Parameters:
//   - addr: the first byte to read
//   - size: the number of bytes
//
// Returns:
//   - []byte: the bytes
//   - error: ErrInvalidAddress if the range is not inside a live allocation
func (m *HostMemory) Read(addr Address, size uint64) ([]byte, error) {
	if _, err := m.Resolve(addr, size); err != nil {
		return nil, fmt.Errorf("host read: %w", err)
	}
	return m.readUnchecked(addr, size), nil
}

// View returns a copy of an allocation's bytes, skipping address validation. Callers use it
// for allocations they already resolved.
//
// Parameters:
//   - a: the allocation
//
// Returns:
//   - []byte: the allocation's bytes; never-written bytes read as zero
func (m *HostMemory) View(a Allocation) []byte {
	return m.readUnchecked(a.Address, a.Size)
}

func (m *HostMemory) readUnchecked(addr Address, size uint64) []byte {
	out := make([]byte, size)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if uint64(addr) < uint64(len(m.data)) {
		copy(out, m.data[addr:min(uint64(addr)+size, uint64(len(m.data)))])
	}
	return out
}
