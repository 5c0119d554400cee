package camera

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// Projection selects how the camera maps view space to clip space.
type Projection int

const (
	// ProjectionPerspective uses a symmetric perspective frustum.
	ProjectionPerspective Projection = iota

	// ProjectionOrthographic uses an axis-aligned box of height OrthoHeight.
	ProjectionOrthographic
)

type cameraImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32
	up       [3]float32

	projection  Projection
	fov         float32
	orthoHeight float32
	aspect      float32
	near        float32
	far         float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32

	controller Controller
}

// Camera holds the view and projection state of one viewpoint and produces the GPU camera
// records for each convention. When a Controller is attached, Update pulls the eye position
// and target from it.
type Camera interface {
	// Position returns the world-space eye position.
	Position() [3]float32

	// Target returns the world-space look-at point.
	Target() [3]float32

	// Up returns the up vector.
	Up() [3]float32

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// ViewMatrix returns the column-major world-to-view matrix.
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the column-major view-to-clip matrix. Depth maps to [0, 1].
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns ProjectionMatrix * ViewMatrix.
	ViewProjectionMatrix() [16]float32

	// SetPosition moves the eye. Ignored on the next Update if a controller is attached.
	//
	// Parameters:
	//   - p: world-space position
	SetPosition(p [3]float32)

	// SetTarget moves the look-at point.
	//
	// Parameters:
	//   - t: world-space target
	SetTarget(t [3]float32)

	// SetAspect sets the aspect ratio, normally from the render target size.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetController attaches a controller, or detaches it when nil.
	//
	// Parameters:
	//   - ctrl: the controller
	SetController(ctrl Controller)

	// Controller returns the attached controller, or nil.
	Controller() Controller

	// Update pulls position and target from the controller and recomputes the matrices.
	// Without a controller it does nothing.
	Update()

	// ViewProjectionRecord returns the record for ConventionViewProjection.
	ViewProjectionRecord() GPUViewProjection

	// DecomposedRecord returns the record for ConventionDecomposed.
	DecomposedRecord() GPUDecomposed

	// DecomposedLegacyRecord returns the record for ConventionDecomposedDerived.
	DecomposedLegacyRecord() GPUDecomposedLegacy
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera at (0, 0, 5) looking at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		position:    [3]float32{0, 0, 5},
		up:          [3]float32{0, 1, 0},
		fov:         45 * (math32.Pi / 180),
		orthoHeight: 2,
		aspect:      1,
		near:        0.1,
		far:         100,
	}
	for _, option := range options {
		option(c)
	}
	c.pullController()
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) SetPosition(p [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(t [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.pullController()
	c.updateMatrices()
}

func (c *cameraImpl) ViewProjectionRecord() GPUViewProjection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GPUViewProjection{ViewProjection: c.viewProjectionMatrix}
}

func (c *cameraImpl) DecomposedRecord() GPUDecomposed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GPUDecomposed{View: c.viewMatrix, Projection: c.projectionMatrix, Position: c.position}
}

func (c *cameraImpl) DecomposedLegacyRecord() GPUDecomposedLegacy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GPUDecomposedLegacy{View: c.viewMatrix, Projection: c.projectionMatrix}
}

// pullController copies position and target from the controller. Caller must hold the mutex
// (or own c exclusively during construction).
func (c *cameraImpl) pullController() {
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.target = c.controller.Target()
}

// updateMatrices recalculates the view, projection and view-projection matrices.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	common.LookAt(c.viewMatrix[:], c.position, c.target, c.up)

	switch c.projection {
	case ProjectionOrthographic:
		h := c.orthoHeight / 2
		w := h * c.aspect
		common.Ortho(c.projectionMatrix[:], -w, w, -h, h, c.near, c.far)
	default:
		common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}
