// Package buffer implements structured GPU buffers: typed, contiguous device arrays whose raw
// address is handed to shaders. The address never leaves the buffer untracked; callers
// either peek it with DeviceAddress or pin it into a frame with Capture.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
)

var (
	// ErrReleased is returned by every operation on a buffer after Release.
	ErrReleased = errors.New("buffer released")

	// ErrOutOfRange is returned when a write or truncate falls outside the buffer capacity.
	ErrOutOfRange = errors.New("buffer range out of bounds")
)

// StructuredBuffer is a device-resident array of T laid out exactly as its layout contract.
type StructuredBuffer[T any] interface {
	// Label returns the buffer label.
	Label() string

	// Layout returns the element layout contract.
	Layout() layout.Struct

	// Stride returns the element size in bytes.
	Stride() uint64

	// Len returns the logical element count: one past the highest element written.
	Len() int

	// Cap returns the allocated element capacity.
	Cap() int

	// Generation increments on every Resize. Address tables record it to detect stale addresses.
	Generation() uint64

	// WriteRange copies elems into the buffer starting at element offset. If a frame that is
	// still in flight captured the current allocation, the write first waits for that frame.
	//
	// Parameters:
	//   - ctx: cancellation for the in-flight wait
	//   - offset: the first element index to write
	//   - elems: the elements to copy
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrReleased, a device write error, or ctx.Err()
	WriteRange(ctx context.Context, offset int, elems []T) error

	// Replace writes elems from element 0 and sets the length to len(elems) under one lock, so a
	// concurrent Capture sees either the old contents and length or the new ones.
	//
	// Parameters:
	//   - ctx: cancellation for the in-flight wait
	//   - elems: the new contents, at most Cap elements
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrReleased, a device write error, or ctx.Err()
	Replace(ctx context.Context, elems []T) error

	// Truncate sets the logical length to n without touching device memory.
	//
	// Parameters:
	//   - n: the new length, at most Cap
	//
	// Returns:
	//   - error: ErrOutOfRange or ErrReleased
	Truncate(n int) error

	// DeviceAddress returns the current device address without tracking it. The value is only
	// valid until the next Resize or Release; use Capture to hand it to a frame.
	DeviceAddress() gpumem.Address

	// Capture pins the current allocation into frame and returns its address. The allocation
	// will not be freed until the frame's fence signals.
	//
	// Parameters:
	//   - frame: the frame that will reference the address
	//
	// Returns:
	//   - gpumem.Address: the pinned address
	//   - error: ErrReleased or lifetime.ErrFrameClosed
	Capture(frame *lifetime.Frame) (gpumem.Address, error)

	// Resize reallocates the buffer with room for newCapacity elements, copying the elements
	// that still fit. The old allocation is retired through the tracker, so the new address is
	// always different from any address a live frame still holds.
	//
	// Parameters:
	//   - newCapacity: the new element capacity (must be > 0)
	//
	// Returns:
	//   - error: gpumem.ErrOutOfMemory, ErrReleased or a device write error
	Resize(newCapacity int) error

	// Release frees the buffer. While a frame still captures the allocation the free is deferred;
	// with strict lifetime checking that case is also reported as lifetime.ErrInFlight.
	//
	// Returns:
	//   - error: ErrReleased on a second call, lifetime.ErrInFlight in strict mode
	Release() error

	// Released reports whether Release has been called.
	Released() bool
}

// structuredBuffer is the implementation of the StructuredBuffer interface.
type structuredBuffer[T any] struct {
	mu         *sync.Mutex
	label      string
	contract   layout.Struct
	mem        gpumem.Memory
	tracker    *lifetime.Tracker
	alloc      gpumem.Allocation
	shadow     []T
	length     int
	generation uint64
	released   bool
	strict     bool
	logger     *slog.Logger
}

var _ StructuredBuffer[struct{}] = &structuredBuffer[struct{}]{}

// New allocates a structured buffer of capacity elements. T is verified against the contract
// before any memory is allocated, so a host struct that drifts from the shader declaration
// fails here instead of corrupting reads.
//
// Parameters:
//   - mem: the device memory to allocate from
//   - tracker: the in-flight frame tracker shared with the renderer
//   - contract: the element layout contract
//   - capacity: the initial element capacity (must be > 0)
//   - options: variadic list of BufferBuilderOption functions
//
// Returns:
//   - StructuredBuffer[T]: the buffer
//   - error: layout.ErrLayoutMismatch or gpumem.ErrOutOfMemory
func New[T any](mem gpumem.Memory, tracker *lifetime.Tracker, contract layout.Struct, capacity int, options ...BufferBuilderOption) (StructuredBuffer[T], error) {
	cfg := bufferConfig{label: contract.Name() + " buffer"}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = common.Logger()
	}

	if err := layout.Verify[T](contract); err != nil {
		return nil, fmt.Errorf("allocate %s: %w", cfg.label, err)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("allocate %s: capacity must be positive, got %d", cfg.label, capacity)
	}

	alloc, err := mem.Allocate(uint64(capacity) * contract.Size())
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", cfg.label, err)
	}

	return &structuredBuffer[T]{
		mu:       &sync.Mutex{},
		label:    cfg.label,
		contract: contract,
		mem:      mem,
		tracker:  tracker,
		alloc:    alloc,
		shadow:   make([]T, capacity),
		strict:   cfg.strict,
		logger:   cfg.logger,
	}, nil
}

func (b *structuredBuffer[T]) Label() string         { return b.label }
func (b *structuredBuffer[T]) Layout() layout.Struct { return b.contract }
func (b *structuredBuffer[T]) Stride() uint64        { return b.contract.Size() }

func (b *structuredBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

func (b *structuredBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shadow)
}

func (b *structuredBuffer[T]) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

func (b *structuredBuffer[T]) WriteRange(ctx context.Context, offset int, elems []T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.write(ctx, "write", offset, elems); err != nil {
		return err
	}
	b.length = max(b.length, offset+len(elems))
	return nil
}

func (b *structuredBuffer[T]) Replace(ctx context.Context, elems []T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.write(ctx, "replace", 0, elems); err != nil {
		return err
	}
	b.length = len(elems)
	return nil
}

// write copies elems at offset once no in-flight frame holds the allocation. Caller must hold
// the mutex; it is dropped and retaken while waiting.
func (b *structuredBuffer[T]) write(ctx context.Context, op string, offset int, elems []T) error {
	if b.released {
		return fmt.Errorf("%s %s: %w", op, b.label, ErrReleased)
	}
	if offset < 0 || offset+len(elems) > len(b.shadow) {
		return fmt.Errorf("%s %s [%d, %d) with capacity %d: %w", op, b.label, offset, offset+len(elems), len(b.shadow), ErrOutOfRange)
	}
	if len(elems) == 0 {
		return nil
	}

	// The lock is dropped while waiting so a frame still being assembled can capture this buffer.
	for b.tracker.InFlight(b.alloc.Address) {
		addr := b.alloc.Address
		b.mu.Unlock()
		err := b.tracker.WaitFor(ctx, addr)
		b.mu.Lock()
		if err != nil {
			return fmt.Errorf("%s %s: waiting for in-flight frame: %w", op, b.label, err)
		}
		if b.released {
			return fmt.Errorf("%s %s: %w", op, b.label, ErrReleased)
		}
		if offset+len(elems) > len(b.shadow) {
			return fmt.Errorf("%s %s [%d, %d) with capacity %d: %w", op, b.label, offset, offset+len(elems), len(b.shadow), ErrOutOfRange)
		}
	}

	copy(b.shadow[offset:], elems)
	addr := b.alloc.Address + gpumem.Address(uint64(offset)*b.contract.Size())
	if err := b.mem.Write(addr, common.SliceToBytes(elems)); err != nil {
		return fmt.Errorf("%s %s: %w", op, b.label, err)
	}
	return nil
}

func (b *structuredBuffer[T]) Truncate(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return fmt.Errorf("truncate %s: %w", b.label, ErrReleased)
	}
	if n < 0 || n > len(b.shadow) {
		return fmt.Errorf("truncate %s to %d: %w", b.label, n, ErrOutOfRange)
	}
	b.length = n
	return nil
}

func (b *structuredBuffer[T]) DeviceAddress() gpumem.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return gpumem.NullAddress
	}
	return b.alloc.Address
}

func (b *structuredBuffer[T]) Capture(frame *lifetime.Frame) (gpumem.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return gpumem.NullAddress, fmt.Errorf("capture %s: %w", b.label, ErrReleased)
	}
	if err := frame.Capture(b.alloc.Address); err != nil {
		return gpumem.NullAddress, fmt.Errorf("capture %s: %w", b.label, err)
	}
	return b.alloc.Address, nil
}

func (b *structuredBuffer[T]) Resize(newCapacity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return fmt.Errorf("resize %s: %w", b.label, ErrReleased)
	}
	if newCapacity <= 0 {
		return fmt.Errorf("resize %s: capacity must be positive, got %d", b.label, newCapacity)
	}

	next, err := b.mem.Allocate(uint64(newCapacity) * b.contract.Size())
	if err != nil {
		return fmt.Errorf("resize %s to %d elements: %w", b.label, newCapacity, err)
	}

	shadow := make([]T, newCapacity)
	kept := copy(shadow, b.shadow[:min(b.length, newCapacity)])
	if kept > 0 {
		if err := b.mem.Write(next.Address, common.SliceToBytes(shadow[:kept])); err != nil {
			b.mem.Free(next)
			return fmt.Errorf("resize %s: %w", b.label, err)
		}
	}

	old := b.alloc
	deferred := b.tracker.Retire(old.Address, func() { b.mem.Free(old) })

	b.alloc = next
	b.shadow = shadow
	b.length = kept
	b.generation++

	b.logger.Debug("structured buffer resized",
		slog.String("buffer", b.label),
		slog.Int("capacity", newCapacity),
		slog.Uint64("old_address", uint64(old.Address)),
		slog.Uint64("new_address", uint64(next.Address)),
		slog.Bool("retirement_deferred", deferred),
	)
	return nil
}

func (b *structuredBuffer[T]) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return fmt.Errorf("release %s: %w", b.label, ErrReleased)
	}
	b.released = true

	old := b.alloc
	deferred := b.tracker.Retire(old.Address, func() { b.mem.Free(old) })
	b.shadow = nil
	b.length = 0

	if deferred && b.strict {
		return fmt.Errorf("release %s at %#x: %w", b.label, uint64(old.Address), lifetime.ErrInFlight)
	}
	return nil
}

func (b *structuredBuffer[T]) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
