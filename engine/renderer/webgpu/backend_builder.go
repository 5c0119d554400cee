package webgpu

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-bindless/engine/config"
)

// PresentMode controls how frames are delivered to the display.
type PresentMode int

const (
	// PresentModeUncapped presents immediately and may tear.
	PresentModeUncapped PresentMode = iota

	// PresentModeVSync waits for vertical blank.
	PresentModeVSync

	// PresentModeTripleBuffered replaces the queued frame without tearing.
	PresentModeTripleBuffered
)

// BackendBuilderOption is a functional option used to configure the wgpu backend.
type BackendBuilderOption func(*backend)

// WithHeapCapacity sets the device heap size in bytes. It is clamped to the adapter's maximum
// storage buffer binding size.
//
// Parameters:
//   - capacity: the heap size
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithHeapCapacity(capacity uint64) BackendBuilderOption {
	return func(b *backend) {
		if capacity > 0 {
			b.heapCapacity = capacity
		}
	}
}

// WithPresentMode sets the present mode of window surfaces.
//
// Parameters:
//   - mode: the present mode
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithPresentMode(mode PresentMode) BackendBuilderOption {
	return func(b *backend) {
		b.presentMode = mode
	}
}

// WithSampleCount enables MSAA on every surface. Only 1 and 4 are supported.
//
// Parameters:
//   - count: the sample count
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithSampleCount(count uint32) BackendBuilderOption {
	return func(b *backend) {
		if count == 1 || count == 4 {
			b.sampleCount = count
		}
	}
}

// WithFallbackAdapter forces the software adapter, which is useful on CI machines.
func WithFallbackAdapter(force bool) BackendBuilderOption {
	return func(b *backend) {
		b.forceFallback = force
	}
}

// WithSampler configures the texture array sampler.
func WithSampler(s SamplerStagingData) BackendBuilderOption {
	return func(b *backend) {
		b.sampler = s
	}
}

// WithLogger sets the backend logger.
func WithLogger(l *slog.Logger) BackendBuilderOption {
	return func(b *backend) {
		b.logger = l
	}
}

// ConfigOptions converts the renderer section of a configuration into backend options.
//
// Parameters:
//   - c: the renderer configuration
//
// Returns:
//   - []BackendBuilderOption: options for NewBackend
func ConfigOptions(c config.RendererConfig) []BackendBuilderOption {
	mode := PresentModeVSync
	switch c.PresentMode {
	case "uncapped":
		mode = PresentModeUncapped
	case "triple":
		mode = PresentModeTripleBuffered
	}
	return []BackendBuilderOption{
		WithHeapCapacity(c.HeapSize),
		WithPresentMode(mode),
		WithSampleCount(uint32(c.MSAA)),
	}
}
