package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
)

type gameObject struct {
	id      uint64
	enabled atomic.Bool

	mu            *sync.RWMutex
	transform     model.Transform
	rotationSpeed [3]float32
	textureIndex  uint32
	bounds        float32
}

// GameObject is one placed instance of a scene mesh. The scene turns its transform into an
// instance record every update.
type GameObject interface {
	// ID returns the object's unique identifier.
	//
	// Returns:
	//   - uint64: the object ID, 0 until a scene assigns one
	ID() uint64

	// SetID sets the object's unique identifier.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint64)

	// Enabled returns whether this object is drawn.
	Enabled() bool

	// SetEnabled sets whether the object is drawn.
	//
	// Parameters:
	//   - enabled: true to draw the object
	SetEnabled(enabled bool)

	// Transform returns the current placement.
	Transform() model.Transform

	// SetTransform replaces the placement.
	//
	// Parameters:
	//   - t: the new placement
	SetTransform(t model.Transform)

	// SetPosition moves the object, keeping rotation and scale.
	//
	// Parameters:
	//   - p: world-space position
	SetPosition(p [3]float32)

	// RotationSpeed returns the Euler rotation applied per second by Update.
	RotationSpeed() [3]float32

	// SetRotationSpeed sets the Euler rotation applied per second by Update.
	//
	// Parameters:
	//   - speed: radians per second around x, y and z
	SetRotationSpeed(speed [3]float32)

	// TextureIndex returns the texture array layer used by per-instance textured variants.
	TextureIndex() uint32

	// SetTextureIndex sets the texture array layer.
	//
	// Parameters:
	//   - index: a layer returned by texture.Array.Register
	SetTextureIndex(index uint32)

	// Bounds returns the bounding sphere radius used for frustum culling, before scaling.
	// Zero disables culling for the object.
	Bounds() float32

	// Update advances the rotation by the rotation speed.
	//
	// Parameters:
	//   - deltaTime: elapsed seconds
	Update(deltaTime float32)

	// Instance returns the instance record of the current placement.
	Instance() model.Instance

	// TexturedInstance returns the textured instance record of the current placement.
	TexturedInstance() model.TexturedInstance
}

var _ GameObject = &gameObject{}

// NewGameObject creates an enabled object at the origin with unit scale.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		mu:        &sync.RWMutex{},
		transform: model.Transform{Scale: [3]float32{1, 1, 1}},
	}
	obj.enabled.Store(true)

	for _, option := range options {
		option(obj)
	}
	return obj
}

func (obj *gameObject) ID() uint64 {
	return atomic.LoadUint64(&obj.id)
}

func (obj *gameObject) SetID(id uint64) {
	atomic.StoreUint64(&obj.id, id)
}

func (obj *gameObject) Enabled() bool {
	return obj.enabled.Load()
}

func (obj *gameObject) SetEnabled(enabled bool) {
	obj.enabled.Store(enabled)
}

func (obj *gameObject) Transform() model.Transform {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.transform
}

func (obj *gameObject) SetTransform(t model.Transform) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.transform = t
}

func (obj *gameObject) SetPosition(p [3]float32) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.transform.Position = p
}

func (obj *gameObject) RotationSpeed() [3]float32 {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.rotationSpeed
}

func (obj *gameObject) SetRotationSpeed(speed [3]float32) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.rotationSpeed = speed
}

func (obj *gameObject) TextureIndex() uint32 {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.textureIndex
}

func (obj *gameObject) SetTextureIndex(index uint32) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.textureIndex = index
}

func (obj *gameObject) Bounds() float32 {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.bounds
}

func (obj *gameObject) Update(deltaTime float32) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for i := range 3 {
		obj.transform.Rotation[i] += obj.rotationSpeed[i] * deltaTime
	}
}

func (obj *gameObject) Instance() model.Instance {
	return model.NewInstance(obj.Transform())
}

func (obj *gameObject) TexturedInstance() model.TexturedInstance {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return model.NewTexturedInstance(obj.transform, obj.textureIndex)
}
