package texture

import "log/slog"

// ArrayBuilderOption is a functional option used to configure an Array during construction.
type ArrayBuilderOption func(*array)

// WithCapacity sets the number of slots. Values below 1 are ignored.
//
// Parameters:
//   - n: the slot count
//
// Returns:
//   - ArrayBuilderOption: option function to apply
func WithCapacity(n int) ArrayBuilderOption {
	return func(a *array) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithLayerSize sets the width and height of every layer. Values below 1 are ignored.
//
// Parameters:
//   - size: the layer size in pixels
//
// Returns:
//   - ArrayBuilderOption: option function to apply
func WithLayerSize(size int) ArrayBuilderOption {
	return func(a *array) {
		if size > 0 {
			a.layerSize = size
		}
	}
}

// WithLogger sets the logger. The engine logger is used when unset.
func WithLogger(l *slog.Logger) ArrayBuilderOption {
	return func(a *array) {
		a.logger = l
	}
}
