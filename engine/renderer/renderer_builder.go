package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithInFlightFrames sets how many frames each window may have submitted but not completed.
// Values below 1 are ignored.
//
// Parameters:
//   - n: the frame ring size
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithInFlightFrames(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.inFlightFrames = n
		}
	}
}

// WithClearColor sets the color every frame starts from.
//
// Parameters:
//   - c: RGBA in [0, 1]
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithClearColor(c [4]float32) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = c
	}
}

// WithShading sets the lighting constants used by RegisterBuiltins.
//
// Parameters:
//   - s: the shading configuration
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithShading(s pipeline.ShadingConfig) RendererBuilderOption {
	return func(r *renderer) {
		r.shading = s
	}
}

// WithWorkers sets the number of pool workers RenderFrame renders windows on.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithStrictLifetime makes buffers created through NewBuffer reject releases while in flight.
//
// Parameters:
//   - strict: whether to enable strict lifetime checks
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithStrictLifetime(strict bool) RendererBuilderOption {
	return func(r *renderer) {
		r.strictLifetime = strict
	}
}

// WithNagaValidation sets whether every variant is validated through naga before the backend
// sees it. Validation is on by default.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithNagaValidation(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validate = enabled
	}
}

// WithTextureArray sets the texture array slot count and layer size.
//
// Parameters:
//   - capacity: the number of layers
//   - layerSize: the width and height of each layer
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithTextureArray(capacity, layerSize int) RendererBuilderOption {
	return func(r *renderer) {
		if capacity > 0 {
			r.textureCapacity = capacity
		}
		if layerSize > 0 {
			r.textureLayerSize = layerSize
		}
	}
}

// WithLogger sets the renderer logger. The engine logger is used when unset.
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.logger = l
	}
}
