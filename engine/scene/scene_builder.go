package scene

import "log/slog"

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithWorkers sets the number of goroutines writing mesh instance buffers during Update.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		s.workers = max(n, 1)
	}
}

// WithCullingDisabled disables frustum culling. Culled objects are left out of the instance
// buffer, so they cost neither vertex work nor a slot in the draw.
//
// Parameters:
//   - disabled: true to disable frustum culling, false to enable it (default)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCullingDisabled(disabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.cullingDisabled = disabled
	}
}

// WithInstanceCapacity sets the initial instance buffer capacity of each mesh. Buffers grow
// by doubling when a mesh outgrows them.
func WithInstanceCapacity(n int) SceneBuilderOption {
	return func(s *scene) {
		if n > 0 {
			s.instanceCapacity = n
		}
	}
}

// WithLogger sets the scene logger.
func WithLogger(l *slog.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.logger = l
	}
}
