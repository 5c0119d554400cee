package renderer

import (
	"fmt"
	"image"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// WindowID identifies a window within a Renderer.
type WindowID int

// SurfaceSource describes what a window renders into. Each backend documents the sources it
// accepts: the software backend takes OffscreenTarget, the webgpu backend a surface descriptor.
type SurfaceSource any

// OffscreenTarget is an in-memory RGBA render target.
type OffscreenTarget struct{}

// RendererBackend is the device a Renderer drives. Implementations are safe for concurrent use
// by several windows.
type RendererBackend interface {
	// Name returns a short backend name for logs.
	Name() string

	// Memory returns the device heap structured buffers allocate from.
	Memory() gpumem.Memory

	// TextureBinder creates the device texture array and returns the binder for its layers.
	// It is called once, before any variant is created.
	//
	// Parameters:
	//   - capacity: the number of layers
	//   - layerSize: the width and height of each layer
	//
	// Returns:
	//   - texture.Binder: the layer binder
	//   - error: if the array cannot be created
	TextureBinder(capacity, layerSize int) (texture.Binder, error)

	// CreateVariant creates the device pipeline for a compiled program.
	//
	// Parameters:
	//   - p: the compiled program
	//
	// Returns:
	//   - VariantHandle: the device pipeline
	//   - error: if the device rejects the shaders
	CreateVariant(p pipeline.Program) (VariantHandle, error)

	// CreateSurface creates the render target of one window.
	//
	// Parameters:
	//   - src: the backend-specific surface source
	//   - width, height: the initial target size
	//
	// Returns:
	//   - Surface: the surface
	//   - error: if src is not supported or creation fails
	CreateSurface(src SurfaceSource, width, height int) (Surface, error)

	// Close releases the device. Surfaces and handles must be released first.
	Close()
}

// VariantHandle is a device pipeline created from a compiled program.
type VariantHandle interface {
	// Program returns the program the handle was created from.
	Program() pipeline.Program

	// Release frees the device pipeline.
	Release()
}

// Surface is one window's presentable target. Frames on one surface complete in submission order.
type Surface interface {
	// Configure resizes the target.
	Configure(width, height int) error

	// Size returns the configured target size.
	Size() (width, height int)

	// Begin acquires the next target image and opens a command context that clears it.
	//
	// Parameters:
	//   - clear: the clear color
	//
	// Returns:
	//   - CommandContext: the frame's command recorder
	//   - error: ErrSurfaceLost or ErrDeviceLost
	Begin(clear [4]float32) (CommandContext, error)

	// Snapshot returns a copy of the last presented image, if the backend supports readback.
	Snapshot() (image.Image, bool)

	// TakeErrors returns and clears errors raised while the device executed submitted frames.
	TakeErrors() error

	// Release frees the surface.
	Release()
}

// CommandContext records one frame's draws.
type CommandContext interface {
	// BindVariant selects the pipeline for subsequent draws. A new address table must be
	// pushed before the next draw.
	BindVariant(h VariantHandle) error

	// PushAddresses sets the address table for subsequent draws.
	PushAddresses(t address.Table) error

	// Draw records a non-indexed instanced draw.
	Draw(vertexCount, instanceCount uint32) error

	// Submit finishes recording and hands the frame to the device. The fence signals when
	// the device has finished reading every captured address.
	Submit(fence *lifetime.Fence) error

	// Present shows the submitted frame.
	Present() error

	// Abort discards the recorded frame without submitting it.
	Abort()
}

// CommandState enforces the bind and push ordering every backend shares. The zero value is a
// context with nothing bound.
type CommandState struct {
	bound  VariantHandle
	pushed bool
}

// Bind records a variant bind and invalidates the pushed table.
func (s *CommandState) Bind(h VariantHandle) error {
	if h == nil {
		return fmt.Errorf("bind: %w", ErrVariantUnavailable)
	}
	s.bound = h
	s.pushed = false
	return nil
}

// Push records an address table push. Tables with a null address are rejected.
func (s *CommandState) Push(t address.Table) error {
	if s.bound == nil {
		return fmt.Errorf("push addresses: no variant bound: %w", ErrVariantUnavailable)
	}
	if t.Vertex == gpumem.NullAddress || t.Instance == gpumem.NullAddress || t.Camera == gpumem.NullAddress {
		return fmt.Errorf("push addresses: null address: %w", gpumem.ErrInvalidAddress)
	}
	s.pushed = true
	return nil
}

// Draw checks that a draw may be recorded now and returns the bound variant.
func (s *CommandState) Draw() (VariantHandle, error) {
	if s.bound == nil {
		return nil, fmt.Errorf("draw: no variant bound: %w", ErrVariantUnavailable)
	}
	if !s.pushed {
		return nil, fmt.Errorf("draw with %s: %w", s.bound.Program().Key(), ErrTableNotPushed)
	}
	return s.bound, nil
}
