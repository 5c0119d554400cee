// Package renderer drives frames through a backend. Every draw binds a pipeline variant and
// pushes one address table: the device addresses of the vertex, instance and camera buffers.
// Shaders fetch records from the device heap by address, so there are no per-draw bind groups.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/buffer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// DrawBatch is one instanced draw: a variant key plus the three buffers its address table
// is built from.
type DrawBatch struct {
	Variant   string
	Vertices  address.Source
	Instances address.Source
	Camera    address.Source
}

// variantEntry is a registered variant and the device pipeline for its current generation.
// handle is nil while the variant is unavailable.
type variantEntry struct {
	variant    pipeline.Variant
	generation uint64
	handle     VariantHandle
	err        error
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backend  RendererBackend
	tracker  *lifetime.Tracker
	textures texture.Array
	pool     worker.DynamicWorkerPool
	logger   *slog.Logger

	variants map[string]*variantEntry
	windows  map[WindowID]*windowRenderer
	closed   bool

	inFlightFrames   int
	clearColor       [4]float32
	shading          pipeline.ShadingConfig
	workers          int
	strictLifetime   bool
	validate         bool
	textureCapacity  int
	textureLayerSize int
}

// Renderer owns the variant registry, the texture array and every window's frame ring.
// All methods are safe for concurrent use.
type Renderer interface {
	// Backend returns the device backend.
	Backend() RendererBackend

	// Memory returns the device heap buffers allocate from.
	Memory() gpumem.Memory

	// Tracker returns the lifetime tracker shared by every window.
	Tracker() *lifetime.Tracker

	// Textures returns the texture array.
	Textures() texture.Array

	// RegisterBuiltins registers the unlit, lit and lit_textured variants with the
	// renderer's shading configuration.
	//
	// Returns:
	//   - error: the joined compile errors
	RegisterBuiltins() error

	// RegisterVariant compiles a variant and caches its device pipeline under its key,
	// replacing any variant with the same key. On failure the key stays registered but
	// unavailable.
	//
	// Parameters:
	//   - v: the variant
	//
	// Returns:
	//   - error: wraps pipeline.ErrShaderCompile
	RegisterVariant(v pipeline.Variant) error

	// ReloadVariant replaces one stage of a registered variant and recompiles it. On failure
	// the previous pipeline is dropped and batches using the key are skipped with
	// ErrVariantUnavailable until a valid source compiles.
	//
	// Parameters:
	//   - key: the variant key
	//   - stage: the stage to replace
	//   - source: the new annotated WGSL, or "" for the embedded default
	//
	// Returns:
	//   - error: ErrVariantUnavailable for unknown keys, or the compile error
	ReloadVariant(key string, stage shader.Stage, source string) error

	// Variant returns a registered variant.
	Variant(key string) (pipeline.Variant, bool)

	// Available reports whether a variant currently has a device pipeline.
	Available(key string) bool

	// AddWindow creates a window renderer for a surface.
	//
	// Parameters:
	//   - id: the window ID, unique within the renderer
	//   - surface: the backend-specific surface source
	//   - width, height: the initial render target size
	//
	// Returns:
	//   - WindowRenderer: the window renderer
	//   - error: if the ID is taken or the surface cannot be created
	AddWindow(id WindowID, surface SurfaceSource, width, height int) (WindowRenderer, error)

	// RemoveWindow waits for the window's frames and releases its surface.
	//
	// Parameters:
	//   - ctx: cancels the wait for in-flight frames
	//   - id: the window ID
	//
	// Returns:
	//   - error: ErrUnknownWindow or a cancelled wait
	RemoveWindow(ctx context.Context, id WindowID) error

	// Window returns a window renderer by ID.
	Window(id WindowID) (WindowRenderer, bool)

	// RenderFrame renders every window in work concurrently. A failure in one window never
	// affects another.
	//
	// Parameters:
	//   - ctx: cancels waits for frame slots
	//   - work: the batches of each window
	//
	// Returns:
	//   - map[WindowID]error: the result of each window, nil entries on success
	RenderFrame(ctx context.Context, work map[WindowID][]DrawBatch) map[WindowID]error

	// WaitIdle waits until every window's frames have completed.
	WaitIdle(ctx context.Context) error

	// Close waits for all frames, releases windows, variants and the backend.
	Close()
}

var _ Renderer = &renderer{}

// NewRenderer creates a renderer on the given backend.
//
// Parameters:
//   - backend: the device backend
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: if the backend cannot create the texture array
func NewRenderer(backend RendererBackend, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:               &sync.Mutex{},
		backend:          backend,
		variants:         make(map[string]*variantEntry),
		windows:          make(map[WindowID]*windowRenderer),
		inFlightFrames:   2,
		clearColor:       [4]float32{0, 0, 0, 1},
		shading:          pipeline.DefaultShadingConfig(),
		workers:          4,
		validate:         true,
		textureCapacity:  texture.DefaultCapacity,
		textureLayerSize: texture.DefaultLayerSize,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.logger == nil {
		r.logger = common.Logger()
	}

	binder, err := backend.TextureBinder(r.textureCapacity, r.textureLayerSize)
	if err != nil {
		return nil, fmt.Errorf("create texture array: %w", err)
	}
	r.textures = texture.NewArray(binder,
		texture.WithCapacity(r.textureCapacity),
		texture.WithLayerSize(r.textureLayerSize),
		texture.WithLogger(r.logger),
	)
	r.tracker = lifetime.NewTracker(r.logger)
	r.pool = worker.NewDynamicWorkerPool(r.workers, 256, 1*time.Second)

	r.logger.Info("renderer created", "backend", backend.Name(), "in_flight_frames", r.inFlightFrames)
	return r, nil
}

func (r *renderer) Backend() RendererBackend { return r.backend }
func (r *renderer) Memory() gpumem.Memory { return r.backend.Memory() }
func (r *renderer) Tracker() *lifetime.Tracker { return r.tracker }
func (r *renderer) Textures() texture.Array { return r.textures }

func (r *renderer) RegisterBuiltins() error {
	var errs []error
	for _, kind := range pipeline.Kinds {
		if err := r.RegisterVariant(pipeline.NewVariant(kind, pipeline.WithShading(r.shading))); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *renderer) RegisterVariant(v pipeline.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.variants[v.Key()]
	if !ok {
		e = &variantEntry{}
		r.variants[v.Key()] = e
	}
	e.variant = v
	return r.rebuild(e)
}

func (r *renderer) ReloadVariant(key string, stage shader.Stage, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.variants[key]
	if !ok {
		return fmt.Errorf("reload %q: %w", key, ErrVariantUnavailable)
	}
	e.variant.SetSource(stage, source)
	return r.rebuild(e)
}

// rebuild compiles the entry's variant at its current generation and swaps the device
// pipeline. Caller must hold the mutex.
func (r *renderer) rebuild(e *variantEntry) error {
	key := e.variant.Key()
	e.generation = e.variant.Generation()
	if e.handle != nil {
		e.handle.Release()
		e.handle = nil
	}

	p, err := pipeline.Compile(e.variant, pipeline.WithNagaValidation(r.validate))
	if err == nil {
		e.handle, err = r.backend.CreateVariant(p)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", pipeline.ErrShaderCompile, key, err)
		}
	}
	e.err = err
	if err != nil {
		r.logger.Warn("variant unavailable", "variant", key, "generation", e.generation, "error", err)
		return err
	}
	r.logger.Info("variant compiled", "variant", key, "generation", e.generation)
	return nil
}

// handle returns the device pipeline for a key, recompiling first if the variant's sources
// changed since the last build.
func (r *renderer) handle(key string) (VariantHandle, pipeline.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.variants[key]
	if !ok {
		return nil, pipeline.Contract{}, fmt.Errorf("variant %q is not registered: %w", key, ErrVariantUnavailable)
	}
	if e.variant.Generation() != e.generation {
		_ = r.rebuild(e)
	}
	if e.handle == nil {
		return nil, pipeline.Contract{}, fmt.Errorf("variant %q: %w: %w", key, ErrVariantUnavailable, e.err)
	}
	return e.handle, e.variant.Contract(), nil
}

func (r *renderer) Variant(key string) (pipeline.Variant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.variants[key]
	if !ok {
		return nil, false
	}
	return e.variant, true
}

func (r *renderer) Available(key string) bool {
	_, _, err := r.handle(key)
	return err == nil
}

func (r *renderer) AddWindow(id WindowID, src SurfaceSource, width, height int) (WindowRenderer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("add window %d: renderer closed", id)
	}
	if _, exists := r.windows[id]; exists {
		return nil, fmt.Errorf("add window %d: id already in use", id)
	}

	surface, err := r.backend.CreateSurface(src, width, height)
	if err != nil {
		return nil, fmt.Errorf("add window %d: %w", id, err)
	}
	w := newWindowRenderer(r, id, surface, width, height)
	r.windows[id] = w
	r.logger.Info("window added", "window", id, "width", width, "height", height)
	return w, nil
}

func (r *renderer) RemoveWindow(ctx context.Context, id WindowID) error {
	r.mu.Lock()
	w, ok := r.windows[id]
	delete(r.windows, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove window %d: %w", id, ErrUnknownWindow)
	}

	err := w.WaitIdle(ctx)
	w.surface.Release()
	r.tracker.Collect()
	r.logger.Info("window removed", "window", id)
	return err
}

func (r *renderer) Window(id WindowID) (WindowRenderer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	return w, ok
}

func (r *renderer) RenderFrame(ctx context.Context, work map[WindowID][]DrawBatch) map[WindowID]error {
	results := make(map[WindowID]error, len(work))
	resultsMu := &sync.Mutex{}

	// Resolve every window before any task starts so results is only written under resultsMu.
	targets := make(map[WindowID]WindowRenderer, len(work))
	for id := range work {
		w, ok := r.Window(id)
		if !ok {
			results[id] = fmt.Errorf("render window %d: %w", id, ErrUnknownWindow)
			continue
		}
		targets[id] = w
	}

	// A WaitGroup is the per-frame barrier; the pool's workers outlive the frame.
	var wg sync.WaitGroup
	taskID := 0
	for id, w := range targets {
		wg.Add(1)
		batches := work[id]
		r.pool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				err := w.Render(ctx, batches)
				resultsMu.Lock()
				results[w.ID()] = err
				resultsMu.Unlock()
				return nil, err
			},
		})
		taskID++
	}
	wg.Wait()
	return results
}

func (r *renderer) WaitIdle(ctx context.Context) error {
	r.mu.Lock()
	windows := make([]*windowRenderer, 0, len(r.windows))
	for _, w := range r.windows {
		windows = append(windows, w)
	}
	r.mu.Unlock()

	var errs []error
	for _, w := range windows {
		if err := w.WaitIdle(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.tracker.WaitIdle(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *renderer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		r.logger.Warn("close: frames still in flight", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, w := range r.windows {
		w.surface.Release()
		delete(r.windows, id)
	}
	for _, e := range r.variants {
		if e.handle != nil {
			e.handle.Release()
			e.handle = nil
		}
	}
	r.tracker.Collect()
	r.backend.Close()
}

// NewBuffer allocates a structured buffer from the renderer's device heap, tracked by its
// lifetime tracker. Renderer-wide strict lifetime applies unless opts override it.
//
// Parameters:
//   - r: the renderer
//   - contract: the element layout, usually taken from a variant contract
//   - capacity: the element capacity
//   - opts: buffer options
//
// Returns:
//   - buffer.StructuredBuffer[T]: the buffer
//   - error: layout.ErrLayoutMismatch or gpumem.ErrOutOfMemory
func NewBuffer[T any](r Renderer, contract layout.Struct, capacity int, opts ...buffer.BufferBuilderOption) (buffer.StructuredBuffer[T], error) {
	if impl, ok := r.(*renderer); ok {
		opts = append([]buffer.BufferBuilderOption{
			buffer.WithStrictLifetime(impl.strictLifetime),
			buffer.WithLogger(impl.logger),
		}, opts...)
	}
	return buffer.New[T](r.Memory(), r.Tracker(), contract, capacity, opts...)
}
