package webgpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
)

// deviceMemory is the device heap: one read-only storage buffer bound at group 0 binding 0 of
// every pipeline. Allocation bookkeeping lives on the host; writes go through the queue.
type deviceMemory struct {
	*gpumem.Heap
	mu     *sync.Mutex
	queue  *wgpu.Queue
	buffer *wgpu.Buffer
}

var _ gpumem.Memory = &deviceMemory{}

func newDeviceMemory(device *wgpu.Device, mu *sync.Mutex, capacity uint64) (*deviceMemory, error) {
	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Device Heap",
		Size:  capacity,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create device heap of %d bytes: %w", capacity, err)
	}
	return &deviceMemory{
		Heap:   gpumem.NewHeap(capacity, gpumem.DefaultAlignment),
		mu:     mu,
		queue:  device.GetQueue(),
		buffer: buf,
	}, nil
}

// Write queues a copy into the heap buffer. Queue writes are ordered before any command buffer
// submitted after Write returns. Ranges must be 4-byte aligned, which every record layout is.
func (m *deviceMemory) Write(addr gpumem.Address, data []byte) error {
	if _, err := m.Resolve(addr, uint64(len(data))); err != nil {
		return fmt.Errorf("device write: %w", err)
	}
	if uint64(addr)%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("device write of %d bytes at %#x: %w", len(data), uint64(addr), gpumem.ErrInvalidAddress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.WriteBuffer(m.buffer, uint64(addr), data)
	return nil
}

func (m *deviceMemory) release() {
	m.buffer.Release()
}
