package engine

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-bindless/engine/config"
	"github.com/Carmen-Shannon/oxy-bindless/engine/profiler"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler, e.g. to change its interval.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for game logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.tickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithShaders loads <variant>.<vert|frag>.wgsl overrides from dir when Run starts and, if
// hotReload is set, recompiles variants whenever a file in dir changes.
//
// Parameters:
//   - dir: the override directory
//   - hotReload: watch dir for changes while running
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithShaders(dir string, hotReload bool) EngineBuilderOption {
	return func(e *engine) {
		e.shaderDir = dir
		e.hotReload = hotReload
	}
}

// WithEventPump sets the function Run calls on its own goroutine to process platform events,
// normally window.PollEvents.
func WithEventPump(pump func()) EngineBuilderOption {
	return func(e *engine) {
		e.pumpEvents = pump
	}
}

// WithPollInterval sets how often Run pumps events and checks for closed windows. Defaults to 1ms.
func WithPollInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.logger = l
	}
}

// FromConfig converts the engine and shader sections of a configuration into options.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - []EngineBuilderOption: options for NewEngine
func FromConfig(cfg config.Config) []EngineBuilderOption {
	opts := []EngineBuilderOption{
		WithTickRate(cfg.Engine.TickRate),
		WithRenderFrameLimit(cfg.Engine.FrameLimit),
		WithProfiling(cfg.Engine.Profiling),
	}
	if cfg.Shaders.Directory != "" {
		opts = append(opts, WithShaders(cfg.Shaders.Directory, cfg.Shaders.HotReload))
	}
	return opts
}
