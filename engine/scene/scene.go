package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/buffer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/game_object"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
)

// MeshID identifies a mesh registered with AddMesh.
type MeshID int

var (
	// ErrUnknownMesh is returned for mesh IDs that were never added or were removed.
	ErrUnknownMesh = errors.New("unknown mesh")

	// ErrReleased is returned by every mutating call after Release.
	ErrReleased = errors.New("scene released")
)

// Scene is a camera plus the objects drawn through it. Objects are grouped by mesh; each mesh
// is one instanced draw whose instance buffer the scene rewrites on every Update.
type Scene interface {
	// Name returns the scene name.
	Name() string

	// Active reports whether the scene is drawn.
	Active() bool

	// SetActive sets whether the scene is drawn.
	//
	// Parameters:
	//   - active: true to draw the scene
	SetActive(active bool)

	// Camera returns the scene camera.
	Camera() camera.Camera

	// AddMesh registers a vertex buffer drawn with a variant. The buffer must match the
	// variant's vertex contract; the scene does not take ownership of it.
	//
	// Parameters:
	//   - variant: a variant key registered with the renderer
	//   - vertices: the vertex buffer
	//
	// Returns:
	//   - MeshID: the mesh handle
	//   - error: renderer.ErrVariantUnavailable, layout.ErrLayoutMismatch or an allocation error
	AddMesh(variant string, vertices address.Source) (MeshID, error)

	// RemoveMesh drops a mesh with its objects and releases its instance buffer.
	//
	// Parameters:
	//   - id: the mesh handle
	//
	// Returns:
	//   - error: ErrUnknownMesh, or the instance buffer release error
	RemoveMesh(id MeshID) error

	// Add places an object on a mesh. Objects without an ID get the next free one.
	//
	// Parameters:
	//   - mesh: the mesh handle
	//   - obj: the object
	//
	// Returns:
	//   - uint64: the object ID
	//   - error: ErrUnknownMesh or ErrReleased
	Add(mesh MeshID, obj game_object.GameObject) (uint64, error)

	// Get returns the object with the given ID, or nil.
	Get(id uint64) game_object.GameObject

	// Remove drops an object. Unknown IDs are ignored.
	Remove(id uint64)

	// Count returns the number of objects across all meshes.
	Count() int

	// Clear removes every object, keeping the meshes.
	Clear()

	// Update advances every enabled object, then writes the camera records and the instance
	// records of the objects that survive frustum culling.
	//
	// Parameters:
	//   - ctx: cancels waits for in-flight frames holding the buffers
	//   - deltaTime: elapsed seconds
	//
	// Returns:
	//   - error: the joined buffer write errors
	Update(ctx context.Context, deltaTime float32) error

	// Batches returns one draw batch per mesh, in mesh registration order.
	Batches() []renderer.DrawBatch

	// Release frees the camera and instance buffers. Call it once no frame uses the scene.
	Release() error
}

// cameraSlot is the camera buffer of one convention.
type cameraSlot struct {
	source  address.Source
	write   func(ctx context.Context, cam camera.Camera) error
	release func() error
}

func newCameraSlot[T any](r renderer.Renderer, contract layout.Struct, label string, record func(camera.Camera) T) (*cameraSlot, error) {
	buf, err := renderer.NewBuffer[T](r, contract, 1, buffer.WithLabel(label))
	if err != nil {
		return nil, err
	}
	return &cameraSlot{
		source: buf,
		write: func(ctx context.Context, cam camera.Camera) error {
			return buf.WriteRange(ctx, 0, []T{record(cam)})
		},
		release: buf.Release,
	}, nil
}

// instanceSlot is the instance buffer of one mesh, typed by the variant's instance contract.
type instanceSlot interface {
	source() address.Source
	write(ctx context.Context, objects []game_object.GameObject) error
	release() error
}

type typedInstances[T any] struct {
	buf     buffer.StructuredBuffer[T]
	record  func(game_object.GameObject) T
	scratch []T
}

func newTypedInstances[T any](r renderer.Renderer, contract layout.Struct, label string, capacity int, record func(game_object.GameObject) T) (*typedInstances[T], error) {
	buf, err := renderer.NewBuffer[T](r, contract, capacity, buffer.WithLabel(label))
	if err != nil {
		return nil, err
	}
	return &typedInstances[T]{buf: buf, record: record}, nil
}

func (t *typedInstances[T]) source() address.Source { return t.buf }
func (t *typedInstances[T]) release() error          { return t.buf.Release() }

func (t *typedInstances[T]) write(ctx context.Context, objects []game_object.GameObject) error {
	t.scratch = t.scratch[:0]
	for _, obj := range objects {
		t.scratch = append(t.scratch, t.record(obj))
	}
	if n := len(t.scratch); n > t.buf.Cap() {
		if err := t.buf.Resize(max(n, 2*t.buf.Cap())); err != nil {
			return err
		}
	}
	return t.buf.Replace(ctx, t.scratch)
}

type mesh struct {
	id        MeshID
	variant   string
	contract  pipeline.Contract
	vertices  address.Source
	objects   []game_object.GameObject
	instances instanceSlot
}

type scene struct {
	mu *sync.RWMutex

	// updateMu serializes Update; each mesh reuses one record scratch slice.
	updateMu *sync.Mutex

	name   string
	active bool
	closed bool

	cam camera.Camera
	r   renderer.Renderer

	meshes     map[MeshID]*mesh
	meshOrder  []MeshID
	nextMeshID MeshID
	registry   map[uint64]MeshID
	nextID     uint64

	cameras map[camera.Convention]*cameraSlot

	cullingDisabled  bool
	instanceCapacity int

	// workerPool writes the instance buffers of different meshes in parallel.
	workerPool worker.DynamicWorkerPool
	workers    int

	logger *slog.Logger
}

var _ Scene = &scene{}

// NewScene creates an inactive scene drawing through cam with buffers allocated from r.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera (must not be nil)
//   - r: the renderer owning the device heap (must not be nil)
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
//   - error: if cam or r is nil
func NewScene(name string, cam camera.Camera, r renderer.Renderer, options ...SceneBuilderOption) (Scene, error) {
	if cam == nil {
		return nil, errors.New("scene: NewScene requires a non-nil Camera")
	}
	if r == nil {
		return nil, errors.New("scene: NewScene requires a non-nil Renderer")
	}

	s := &scene{
		mu:               &sync.RWMutex{},
		updateMu:         &sync.Mutex{},
		name:             name,
		cam:              cam,
		r:                r,
		meshes:           make(map[MeshID]*mesh),
		registry:         make(map[uint64]MeshID),
		nextID:           1,
		cameras:          make(map[camera.Convention]*cameraSlot),
		instanceCapacity: 64,
		workers:          max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = common.Logger()
	}
	s.logger = s.logger.With("scene", name)

	// Queue size of 256 covers typical mesh counts with headroom.
	s.workerPool = worker.NewDynamicWorkerPool(s.workers, 256, 1*time.Second)
	return s, nil
}

func (s *scene) Name() string { return s.name }

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera { return s.cam }

func (s *scene) AddMesh(variant string, vertices address.Source) (MeshID, error) {
	if vertices == nil {
		return 0, errors.New("add mesh: nil vertex buffer")
	}
	v, ok := s.r.Variant(variant)
	if !ok {
		return 0, fmt.Errorf("add mesh %s: %w", variant, renderer.ErrVariantUnavailable)
	}
	contract := v.Contract()
	if !vertices.Layout().Equal(contract.Vertex) {
		return 0, fmt.Errorf("add mesh %s: %w: vertex buffer is %s, variant expects %s",
			variant, layout.ErrLayoutMismatch, vertices.Layout(), contract.Vertex)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrReleased
	}
	if _, err := s.cameraSlot(contract.CameraConvention); err != nil {
		return 0, fmt.Errorf("add mesh %s: %w", variant, err)
	}

	id := s.nextMeshID
	label := fmt.Sprintf("%s/%s-%d/instances", s.name, variant, id)
	var slot instanceSlot
	var err error
	if contract.Instance.Equal(model.TexturedInstanceLayout) {
		slot, err = newTypedInstances(s.r, contract.Instance, label, s.instanceCapacity, game_object.GameObject.TexturedInstance)
	} else {
		slot, err = newTypedInstances(s.r, contract.Instance, label, s.instanceCapacity, game_object.GameObject.Instance)
	}
	if err != nil {
		return 0, fmt.Errorf("add mesh %s: %w", variant, err)
	}

	s.nextMeshID++
	s.meshes[id] = &mesh{id: id, variant: variant, contract: contract, vertices: vertices, instances: slot}
	s.meshOrder = append(s.meshOrder, id)
	s.logger.Debug("mesh added", "mesh", id, "variant", variant, "vertices", vertices.Len())
	return id, nil
}

// cameraSlot returns the camera buffer of a convention, allocating it on first use.
// Callers hold s.mu.
func (s *scene) cameraSlot(conv camera.Convention) (*cameraSlot, error) {
	if slot, ok := s.cameras[conv]; ok {
		return slot, nil
	}
	label := fmt.Sprintf("%s/camera-%s", s.name, conv)
	var slot *cameraSlot
	var err error
	switch conv {
	case camera.ConventionViewProjection:
		slot, err = newCameraSlot(s.r, conv.Layout(), label, camera.Camera.ViewProjectionRecord)
	case camera.ConventionDecomposed:
		slot, err = newCameraSlot(s.r, conv.Layout(), label, camera.Camera.DecomposedRecord)
	case camera.ConventionDecomposedDerived:
		slot, err = newCameraSlot(s.r, conv.Layout(), label, camera.Camera.DecomposedLegacyRecord)
	default:
		err = fmt.Errorf("unknown camera convention %d", conv)
	}
	if err != nil {
		return nil, err
	}
	s.cameras[conv] = slot
	return slot, nil
}

func (s *scene) RemoveMesh(id MeshID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meshes[id]
	if !ok {
		return fmt.Errorf("remove mesh %d: %w", id, ErrUnknownMesh)
	}
	for _, obj := range m.objects {
		delete(s.registry, obj.ID())
	}
	delete(s.meshes, id)
	for i, mid := range s.meshOrder {
		if mid == id {
			s.meshOrder = append(s.meshOrder[:i], s.meshOrder[i+1:]...)
			break
		}
	}
	return m.instances.release()
}

func (s *scene) Add(meshID MeshID, obj game_object.GameObject) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrReleased
	}
	m, ok := s.meshes[meshID]
	if !ok {
		return 0, fmt.Errorf("add object: mesh %d: %w", meshID, ErrUnknownMesh)
	}
	if obj.ID() == 0 {
		obj.SetID(s.nextID)
		s.nextID++
	} else if obj.ID() >= s.nextID {
		s.nextID = obj.ID() + 1
	}
	if _, exists := s.registry[obj.ID()]; exists {
		s.removeLocked(obj.ID())
	}
	s.registry[obj.ID()] = meshID
	m.objects = append(m.objects, obj)
	return obj.ID(), nil
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meshID, ok := s.registry[id]
	if !ok {
		return nil
	}
	for _, obj := range s.meshes[meshID].objects {
		if obj.ID() == id {
			return obj
		}
	}
	return nil
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *scene) removeLocked(id uint64) {
	meshID, ok := s.registry[id]
	if !ok {
		return
	}
	delete(s.registry, id)
	m := s.meshes[meshID]
	for i, obj := range m.objects {
		if obj.ID() == id {
			m.objects = append(m.objects[:i], m.objects[i+1:]...)
			return
		}
	}
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meshes {
		m.objects = nil
	}
	clear(s.registry)
}

func (s *scene) Update(ctx context.Context, deltaTime float32) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrReleased
	}

	s.cam.Update()
	var errs []error
	for conv, slot := range s.cameras {
		if err := slot.write(ctx, s.cam); err != nil {
			errs = append(errs, fmt.Errorf("write %s camera: %w", conv, err))
		}
	}

	var frustum *common.Frustum
	if !s.cullingDisabled {
		f := common.ExtractFrustum(s.cam.ViewProjectionMatrix())
		frustum = &f
	}

	// A WaitGroup is the per-update barrier; the pool's workers persist across updates.
	var wg sync.WaitGroup
	errsMu := &sync.Mutex{}
	for i, id := range s.meshOrder {
		m := s.meshes[id]
		wg.Add(1)
		s.workerPool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				visible := make([]game_object.GameObject, 0, len(m.objects))
				for _, obj := range m.objects {
					if !obj.Enabled() {
						continue
					}
					obj.Update(deltaTime)
					if frustum != nil && !inFrustum(*frustum, obj) {
						continue
					}
					visible = append(visible, obj)
				}
				err := m.instances.write(ctx, visible)
				if err != nil {
					err = fmt.Errorf("write mesh %d (%s) instances: %w", m.id, m.variant, err)
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
				return nil, err
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// inFrustum tests the object's scaled bounding sphere. Objects without bounds are never culled.
func inFrustum(f common.Frustum, obj game_object.GameObject) bool {
	radius := obj.Bounds()
	if radius == 0 {
		return true
	}
	t := obj.Transform()
	scale := max(t.Scale[0], t.Scale[1], t.Scale[2])
	if scale <= 0 {
		scale = 1
	}
	return f.ContainsSphere(t.Position, radius*scale)
}

func (s *scene) Batches() []renderer.DrawBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	batches := make([]renderer.DrawBatch, 0, len(s.meshOrder))
	for _, id := range s.meshOrder {
		m := s.meshes[id]
		batches = append(batches, renderer.DrawBatch{
			Variant:   m.variant,
			Vertices:  m.vertices,
			Instances: m.instances.source(),
			Camera:    s.cameras[m.contract.CameraConvention].source,
		})
	}
	return batches
}

func (s *scene) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	ids := make([]MeshID, 0, len(s.meshes))
	for id := range s.meshes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := s.meshes[id].instances.release(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, slot := range s.cameras {
		if err := slot.release(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(s.meshes)
	clear(s.registry)
	clear(s.cameras)
	s.meshOrder = nil
	return errors.Join(errs...)
}
