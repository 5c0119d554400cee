package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
)

// WindowRenderer renders the frames of one window. Frames on a window are serialized; frames of
// different windows run independently.
type WindowRenderer interface {
	// ID returns the window ID.
	ID() WindowID

	// Render records, submits and presents one frame.
	//
	// Parameters:
	//   - ctx: cancels the wait for a frame slot
	//   - batches: the draws of the frame, in order
	//
	// Returns:
	//   - error: ErrSkipFrame for a zero-size target, ErrSurfaceLost, or the joined batch errors
	Render(ctx context.Context, batches []DrawBatch) error

	// Resize sets the render target size. The surface is reconfigured on the next Render.
	//
	// Parameters:
	//   - width, height: the new size, 0 pauses rendering
	Resize(width, height int)

	// Size returns the render target size.
	Size() (width, height int)

	// FrameIndex returns the number of frames submitted so far.
	FrameIndex() uint64

	// InFlight returns the number of submitted frames whose fence has not signaled.
	InFlight() int

	// WaitIdle waits until every submitted frame of the window has completed.
	WaitIdle(ctx context.Context) error

	// Snapshot returns a copy of the last presented image when the backend supports readback.
	Snapshot() (image.Image, bool)
}

type windowRenderer struct {
	r       *renderer
	id      WindowID
	surface Surface
	logger  *slog.Logger

	// renderMu serializes Render calls on the window.
	renderMu *sync.Mutex

	mu     *sync.Mutex
	width  int
	height int
	dirty  bool

	slots      *semaphore.Weighted
	slotCount  int64
	frameIndex atomic.Uint64
	inFlight   atomic.Int32
}

var _ WindowRenderer = &windowRenderer{}

func newWindowRenderer(r *renderer, id WindowID, surface Surface, width, height int) *windowRenderer {
	return &windowRenderer{
		r:         r,
		id:        id,
		surface:   surface,
		logger:    r.logger.With("window", id),
		renderMu:  &sync.Mutex{},
		mu:        &sync.Mutex{},
		width:     width,
		height:    height,
		slots:     semaphore.NewWeighted(int64(r.inFlightFrames)),
		slotCount: int64(r.inFlightFrames),
	}
}

func (w *windowRenderer) ID() WindowID { return w.id }

func (w *windowRenderer) Resize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	w.dirty = true
}

func (w *windowRenderer) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *windowRenderer) FrameIndex() uint64 { return w.frameIndex.Load() }

func (w *windowRenderer) InFlight() int { return int(w.inFlight.Load()) }

func (w *windowRenderer) Snapshot() (image.Image, bool) { return w.surface.Snapshot() }

func (w *windowRenderer) WaitIdle(ctx context.Context) error {
	if err := w.slots.Acquire(ctx, w.slotCount); err != nil {
		return fmt.Errorf("wait for window %d: %w", w.id, err)
	}
	w.slots.Release(w.slotCount)
	return w.surface.TakeErrors()
}

func (w *windowRenderer) Render(ctx context.Context, batches []DrawBatch) error {
	w.renderMu.Lock()
	defer w.renderMu.Unlock()

	// Device errors of earlier frames surface on the next Render.
	deviceErr := w.surface.TakeErrors()

	if err := w.slots.Acquire(ctx, 1); err != nil {
		return errors.Join(fmt.Errorf("acquire frame slot: %w", err), deviceErr)
	}
	w.r.tracker.Collect()

	width, height, err := w.prepareSurface()
	if err != nil {
		w.slots.Release(1)
		return errors.Join(err, deviceErr)
	}
	if width == 0 || height == 0 {
		w.slots.Release(1)
		return errors.Join(ErrSkipFrame, deviceErr)
	}

	cmd, err := w.surface.Begin(w.r.clearColor)
	if err != nil {
		w.slots.Release(1)
		if errors.Is(err, ErrSurfaceLost) {
			w.markDirty()
		}
		w.logger.Warn("begin frame failed", "error", err)
		return errors.Join(fmt.Errorf("window %d: %w", w.id, err), deviceErr)
	}

	index := w.frameIndex.Load()
	fence := lifetime.NewFence(fmt.Sprintf("window-%d-frame-%d", w.id, index))
	frame := w.r.tracker.Begin(fence.Label(), fence)
	w.inFlight.Add(1)
	go func() {
		<-fence.Done()
		w.inFlight.Add(-1)
		w.slots.Release(1)
	}()

	batchErrs, err := w.record(cmd, frame, batches)
	if err != nil {
		cmd.Abort()
		frame.Abandon()
		w.logger.Warn("frame dropped", "frame", index, "error", err)
		return errors.Join(append(batchErrs, err, deviceErr)...)
	}

	if err := cmd.Submit(fence); err != nil {
		cmd.Abort()
		frame.Abandon()
		if errors.Is(err, ErrSurfaceLost) {
			w.markDirty()
		}
		return errors.Join(append(batchErrs, fmt.Errorf("submit frame %d: %w", index, err), deviceErr)...)
	}
	w.frameIndex.Add(1)

	if err := cmd.Present(); err != nil {
		if errors.Is(err, ErrSurfaceLost) {
			w.markDirty()
		}
		batchErrs = append(batchErrs, fmt.Errorf("present frame %d: %w", index, err))
	}
	return errors.Join(append(batchErrs, deviceErr)...)
}

// prepareSurface reconfigures a dirty surface and returns the target size.
func (w *windowRenderer) prepareSurface() (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty || w.width == 0 || w.height == 0 {
		return w.width, w.height, nil
	}
	if err := w.surface.Configure(w.width, w.height); err != nil {
		return 0, 0, fmt.Errorf("reconfigure window %d: %w", w.id, err)
	}
	w.dirty = false
	w.logger.Debug("surface reconfigured", "width", w.width, "height", w.height)
	return w.width, w.height, nil
}

func (w *windowRenderer) markDirty() {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
}

// record encodes every batch. Batch failures are collected and the batch skipped; the
// returned error is fatal to the frame.
func (w *windowRenderer) record(cmd CommandContext, frame *lifetime.Frame, batches []DrawBatch) ([]error, error) {
	var errs []error
	for i, b := range batches {
		if b.Vertices == nil || b.Instances == nil || b.Camera == nil {
			errs = append(errs, fmt.Errorf("batch %d (%s): missing buffer", i, b.Variant))
			continue
		}
		if b.Vertices.Len() == 0 || b.Instances.Len() == 0 {
			continue
		}

		handle, contract, err := w.r.handle(b.Variant)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", i, err))
			continue
		}
		if err := contract.Check(b.Vertices.Layout(), b.Instances.Layout(), b.Camera.Layout()); err != nil {
			errs = append(errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err))
			continue
		}
		if err := cmd.BindVariant(handle); err != nil {
			errs = append(errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err))
			continue
		}

		table, err := address.Assemble(frame, b.Vertices, b.Instances, b.Camera)
		if err == nil {
			err = table.Validate()
		}
		if err == nil {
			err = cmd.PushAddresses(table)
		}
		if err != nil {
			if errors.Is(err, gpumem.ErrOutOfMemory) {
				return errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err)
			}
			errs = append(errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err))
			continue
		}

		if err := cmd.Draw(uint32(b.Vertices.Len()), uint32(b.Instances.Len())); err != nil {
			if errors.Is(err, gpumem.ErrOutOfMemory) {
				return errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err)
			}
			errs = append(errs, fmt.Errorf("batch %d (%s): %w", i, b.Variant, err))
		}
	}
	return errs, nil
}
