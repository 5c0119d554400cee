package camera

// ControllerBuilderOption is a functional option for configuring a Controller.
type ControllerBuilderOption func(*controllerImpl)

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithRadius(radius float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.radius = radius
	}
}

// WithAngles sets the initial azimuth and elevation in radians.
//
// Parameters:
//   - azimuth: horizontal angle (0 looks down -Z from +Z)
//   - elevation: vertical angle (0 is level)
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithAngles(azimuth, elevation float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.azimuth = azimuth
		cc.elevation = elevation
	}
}

// WithPivot sets the orbit target.
func WithPivot(t [3]float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.target = t
	}
}

// WithRadiusLimits bounds the zoom distance.
//
// Parameters:
//   - minRadius: closest allowed distance
//   - maxRadius: farthest allowed distance
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithRadiusLimits(minRadius, maxRadius float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.minRadius = minRadius
		cc.maxRadius = maxRadius
	}
}

// WithSpeeds sets the orbit, zoom and pan multipliers.
//
// Parameters:
//   - orbit: radians per orbit step
//   - zoom: distance per zoom step
//   - pan: distance per pan step
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithSpeeds(orbit, zoom, pan float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.orbitSpeed = orbit
		cc.zoomSpeed = zoom
		cc.panSpeed = pan
	}
}
