package lifetime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
)

var (
	// ErrInFlight reports that an address is still captured by a frame whose fence has not signaled.
	ErrInFlight = errors.New("address referenced by an in-flight frame")

	// ErrFrameClosed is returned when capturing into a frame that was already collected.
	ErrFrameClosed = errors.New("frame already completed")
)

// Frame is the host-side record of one submitted (or about to be submitted) frame.
type Frame struct {
	tracker  *Tracker
	fence    *Fence
	label    string
	captured []gpumem.Address
	closed   bool
}

// Fence returns the frame's completion fence.
func (f *Frame) Fence() *Fence { return f.fence }

// Label returns the frame label.
func (f *Frame) Label() string { return f.label }

// Capture pins addr until this frame's fence signals and Collect runs.
//
// Parameters:
//   - addr: the device address being handed to the GPU
//
// Returns:
//   - error: ErrFrameClosed if the frame has already been collected
func (f *Frame) Capture(addr gpumem.Address) error {
	t := f.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.closed {
		return fmt.Errorf("capture %#x into %s: %w", uint64(addr), f.label, ErrFrameClosed)
	}
	f.captured = append(f.captured, addr)
	t.refs[addr]++
	return nil
}

// Captured returns the number of captures recorded by the frame.
func (f *Frame) Captured() int {
	f.tracker.mu.Lock()
	defer f.tracker.mu.Unlock()
	return len(f.captured)
}

// Abandon signals the fence of a frame that will never be submitted, so its captures
// are released on the next Collect.
func (f *Frame) Abandon() {
	f.fence.Signal()
}

// Tracker owns the capture reference counts and the retirement queue. Safe for concurrent use
// by any number of windows.
type Tracker struct {
	mu      *sync.Mutex
	frames  []*Frame
	refs    map[gpumem.Address]int
	retired map[gpumem.Address]func()
	logger  *slog.Logger
}

// NewTracker creates an empty tracker.
//
// Parameters:
//   - logger: the logger for retirement diagnostics, or nil for the engine logger
//
// Returns:
//   - *Tracker: the tracker
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = common.Logger()
	}
	return &Tracker{
		mu:      &sync.Mutex{},
		refs:    make(map[gpumem.Address]int),
		retired: make(map[gpumem.Address]func()),
		logger:  logger,
	}
}

// Begin registers a new frame guarded by fence.
//
// Parameters:
//   - label: a name for logs, e.g. "window 1 frame 42"
//   - fence: the fence the device signals when the frame completes
//
// Returns:
//   - *Frame: the frame record to capture addresses into
func (t *Tracker) Begin(label string, fence *Fence) *Frame {
	f := &Frame{tracker: t, fence: fence, label: label}
	t.mu.Lock()
	t.frames = append(t.frames, f)
	t.mu.Unlock()
	return f
}

// InFlight reports whether addr is captured by any uncollected frame.
func (t *Tracker) InFlight(addr gpumem.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[addr] > 0
}

// Retire schedules free to run once addr is no longer captured. When nothing captures addr
// the free runs immediately.
//
// Parameters:
//   - addr: the address being released
//   - free: the function that returns the memory to the device
//
// Returns:
//   - bool: true if the free was deferred because addr is in flight
func (t *Tracker) Retire(addr gpumem.Address, free func()) bool {
	t.mu.Lock()
	if t.refs[addr] == 0 {
		t.mu.Unlock()
		free()
		return false
	}
	t.retired[addr] = free
	t.mu.Unlock()

	t.logger.Debug("retirement deferred", slog.Uint64("address", uint64(addr)))
	return true
}

// Collect releases the captures of every frame whose fence has signaled and runs the frees
// that became due.
//
// Returns:
//   - int: the number of deferred frees executed
func (t *Tracker) Collect() int {
	var due []func()

	t.mu.Lock()
	remaining := t.frames[:0]
	for _, f := range t.frames {
		if !f.fence.Signaled() {
			remaining = append(remaining, f)
			continue
		}
		f.closed = true
		for _, addr := range f.captured {
			t.refs[addr]--
			if t.refs[addr] > 0 {
				continue
			}
			delete(t.refs, addr)
			if free, ok := t.retired[addr]; ok {
				delete(t.retired, addr)
				due = append(due, free)
			}
		}
		f.captured = nil
	}
	for i := len(remaining); i < len(t.frames); i++ {
		t.frames[i] = nil
	}
	t.frames = remaining
	t.mu.Unlock()

	for _, free := range due {
		free()
	}
	if len(due) > 0 {
		t.logger.Debug("retired allocations", slog.Int("count", len(due)))
	}
	return len(due)
}

// WaitFor blocks until addr is no longer captured by any frame.
//
// Parameters:
//   - ctx: cancellation for the wait
//   - addr: the address to wait on
//
// Returns:
//   - error: ctx.Err() if the context ended first
func (t *Tracker) WaitFor(ctx context.Context, addr gpumem.Address) error {
	for {
		t.Collect()

		t.mu.Lock()
		var fence *Fence
		if t.refs[addr] > 0 {
			for _, f := range t.frames {
				if f.fence.Signaled() {
					continue
				}
				for _, c := range f.captured {
					if c == addr {
						fence = f.fence
						break
					}
				}
				if fence != nil {
					break
				}
			}
		}
		t.mu.Unlock()

		if fence == nil {
			if !t.InFlight(addr) {
				return nil
			}
			continue
		}
		if err := fence.Wait(ctx); err != nil {
			return err
		}
	}
}

// WaitIdle blocks until every registered frame has completed, then collects.
//
// Parameters:
//   - ctx: cancellation for the wait
//
// Returns:
//   - error: ctx.Err() if the context ended first
func (t *Tracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	fences := make([]*Fence, 0, len(t.frames))
	for _, f := range t.frames {
		fences = append(fences, f.fence)
	}
	t.mu.Unlock()

	for _, f := range fences {
		if err := f.Wait(ctx); err != nil {
			return err
		}
	}
	t.Collect()
	return nil
}

// PendingFrames returns the number of frames not yet collected.
func (t *Tracker) PendingFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

// PendingRetirements returns the number of frees waiting on in-flight frames.
func (t *Tracker) PendingRetirements() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.retired)
}
