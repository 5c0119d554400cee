package game_object

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithEnabled sets whether the GameObject is drawn.
//
// Parameters:
//   - enabled: true to draw the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled.Store(enabled)
	}
}

// WithPosition sets the initial world-space position.
//
// Parameters:
//   - p: the position
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(p [3]float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Position = p
	}
}

// WithRotation sets the initial Euler rotation in radians.
//
// Parameters:
//   - r: rotation around x, y and z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation
func WithRotation(r [3]float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Rotation = r
	}
}

// WithScale sets the initial scale.
//
// Parameters:
//   - s: scale along x, y and z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the scale
func WithScale(s [3]float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Scale = s
	}
}

// WithRotationSpeed sets the Euler rotation applied per second.
//
// Parameters:
//   - speed: radians per second around x, y and z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(speed [3]float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = speed
	}
}

// WithTextureIndex sets the texture array layer for per-instance textured variants.
func WithTextureIndex(index uint32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.textureIndex = index
	}
}

// WithBounds sets the unscaled bounding sphere radius used for frustum culling.
//
// Parameters:
//   - radius: the radius, 0 disables culling for the object
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the bounds
func WithBounds(radius float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		if radius >= 0 {
			obj.bounds = radius
		}
	}
}
