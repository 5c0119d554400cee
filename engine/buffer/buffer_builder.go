package buffer

import "log/slog"

// BufferBuilderOption is a functional option for configuring a structured buffer.
type BufferBuilderOption func(c *bufferConfig)

type bufferConfig struct {
	label  string
	strict bool
	logger *slog.Logger
}

// WithLabel sets the label used in errors and logs.
//
// Parameters:
//   - label: the buffer label
//
// Returns:
//   - BufferBuilderOption: option function to apply
func WithLabel(label string) BufferBuilderOption {
	return func(c *bufferConfig) {
		c.label = label
	}
}

// WithStrictLifetime turns a release of a buffer whose address is still captured by an
// in-flight frame into an ErrInFlight error. The memory is still retired safely either way.
//
// Parameters:
//   - strict: true to report in-flight releases as violations
//
// Returns:
//   - BufferBuilderOption: option function to apply
func WithStrictLifetime(strict bool) BufferBuilderOption {
	return func(c *bufferConfig) {
		c.strict = strict
	}
}

// WithLogger sets the logger used for resize and retirement diagnostics.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - BufferBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) BufferBuilderOption {
	return func(c *bufferConfig) {
		c.logger = logger
	}
}
