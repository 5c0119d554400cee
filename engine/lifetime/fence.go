// Package lifetime tracks which device addresses are referenced by frames that the GPU has not
// finished yet. Every submitted frame owns a Fence; addresses captured into a frame stay
// pinned until that fence signals, and frees requested in the meantime wait in a retirement
// queue that Collect drains.
package lifetime

import (
	"context"
	"sync"
	"sync/atomic"
)

var fenceIDs atomic.Uint64

// Fence is a one-shot completion signal for a submitted frame.
type Fence struct {
	id    uint64
	label string
	done  chan struct{}
	once  sync.Once
}

// NewFence creates an unsignaled fence.
//
// Parameters:
//   - label: a human readable name used in logs
//
// Returns:
//   - *Fence: the fence
func NewFence(label string) *Fence {
	return &Fence{
		id:    fenceIDs.Add(1),
		label: label,
		done:  make(chan struct{}),
	}
}

// ID returns the process-unique fence id.
func (f *Fence) ID() uint64 { return f.id }

// Label returns the fence label.
func (f *Fence) Label() string { return f.label }

// Signal marks the fence complete. Signaling more than once is a no-op.
func (f *Fence) Signal() {
	f.once.Do(func() { close(f.done) })
}

// Signaled reports whether Signal has been called.
func (f *Fence) Signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the fence signals.
func (f *Fence) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the fence signals or ctx is done.
//
// Parameters:
//   - ctx: cancellation for the wait
//
// Returns:
//   - error: ctx.Err() if the context ended first
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
