package renderer

import "errors"

var (
	// ErrVariantUnavailable is returned for batches whose variant is not registered or failed
	// to compile. The batch is skipped.
	ErrVariantUnavailable = errors.New("pipeline variant unavailable")

	// ErrStaleAddress is returned when the device reads an address that is no longer allocated.
	ErrStaleAddress = errors.New("stale device address")

	// ErrDeviceLost is returned when the backend device stops responding.
	ErrDeviceLost = errors.New("device lost")

	// ErrSurfaceLost is returned when a window surface must be reconfigured. The next Render
	// reconfigures it.
	ErrSurfaceLost = errors.New("surface lost")

	// ErrSkipFrame is returned when the render target has no area. It is not a failure.
	ErrSkipFrame = errors.New("frame skipped")

	// ErrTableNotPushed is returned by a draw recorded after a variant bind without a fresh
	// address table push.
	ErrTableNotPushed = errors.New("draw without a pushed address table")

	// ErrUnknownWindow is returned for window IDs that were never added or were removed.
	ErrUnknownWindow = errors.New("unknown window")
)
