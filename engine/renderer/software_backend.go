package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// DefaultHeapCapacity is the device heap size of the software backend.
const DefaultHeapCapacity uint64 = 64 << 20

// softwareBackend executes variants on the host. Its heap is a gpumem.HostMemory, so the
// reference programs read records by address exactly like the device shaders do.
type softwareBackend struct {
	mu     *sync.Mutex
	mem    *gpumem.HostMemory
	layers *texture.HostLayers
	logger *slog.Logger

	heapCapacity uint64
	queueDepth   int
}

var _ RendererBackend = &softwareBackend{}

// SoftwareBackendOption is a functional option used to configure the software backend.
type SoftwareBackendOption func(*softwareBackend)

// WithHeapCapacity sets the heap size in bytes.
//
// Parameters:
//   - capacity: the heap size
//
// Returns:
//   - SoftwareBackendOption: option function to apply
func WithHeapCapacity(capacity uint64) SoftwareBackendOption {
	return func(b *softwareBackend) {
		if capacity > 0 {
			b.heapCapacity = capacity
		}
	}
}

// WithSoftwareLogger sets the logger of the backend and its surfaces.
func WithSoftwareLogger(l *slog.Logger) SoftwareBackendOption {
	return func(b *softwareBackend) {
		b.logger = l
	}
}

// NewSoftwareBackend creates a host-executed backend. Surfaces are in-memory images, so it
// runs headless and backs the package tests.
//
// Parameters:
//   - options: functional options to configure the backend
//
// Returns:
//   - RendererBackend: the backend
func NewSoftwareBackend(options ...SoftwareBackendOption) RendererBackend {
	b := &softwareBackend{
		mu:           &sync.Mutex{},
		heapCapacity: DefaultHeapCapacity,
		queueDepth:   8,
	}
	for _, option := range options {
		option(b)
	}
	if b.logger == nil {
		b.logger = common.Logger()
	}
	b.mem = gpumem.NewHostMemory(b.heapCapacity, gpumem.DefaultAlignment)
	return b
}

func (b *softwareBackend) Name() string          { return "software" }
func (b *softwareBackend) Memory() gpumem.Memory { return b.mem }
func (b *softwareBackend) Close()                {}

func (b *softwareBackend) TextureBinder(_, layerSize int) (texture.Binder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layers = texture.NewHostLayers(layerSize)
	return b.layers, nil
}

// sampler returns the bound texture layers, or a nil interface when no array exists.
func (b *softwareBackend) sampler() pipeline.TextureSampler {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.layers == nil {
		return nil
	}
	return b.layers
}

func (b *softwareBackend) CreateVariant(p pipeline.Program) (VariantHandle, error) {
	return &softwareVariant{program: p}, nil
}

func (b *softwareBackend) CreateSurface(src SurfaceSource, width, height int) (Surface, error) {
	switch src.(type) {
	case nil, OffscreenTarget, *OffscreenTarget:
	default:
		return nil, fmt.Errorf("software backend cannot render to %T", src)
	}

	s := &softwareSurface{
		backend: b,
		mu:      &sync.Mutex{},
		sendMu:  &sync.RWMutex{},
		width:   width,
		height:  height,
		jobs:    make(chan func(), b.queueDepth),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type softwareVariant struct {
	program pipeline.Program
}

func (v *softwareVariant) Program() pipeline.Program { return v.program }
func (v *softwareVariant) Release()                  {}

// softwareSurface runs submitted frames on its own executor goroutine, one at a time, in
// submission order.
type softwareSurface struct {
	backend *softwareBackend

	mu        *sync.Mutex
	width     int
	height    int
	presented *image.RGBA
	errs      []error

	// sendMu orders job sends against closing the queue. The executor never takes it.
	sendMu   *sync.RWMutex
	released bool
	jobs     chan func()
	done     chan struct{}
}

func (s *softwareSurface) run() {
	defer close(s.done)
	for job := range s.jobs {
		job()
	}
}

// enqueue hands a job to the executor. It fails once the surface is released.
func (s *softwareSurface) enqueue(job func()) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.released {
		return fmt.Errorf("software surface released: %w", ErrSurfaceLost)
	}
	s.jobs <- job
	return nil
}

func (s *softwareSurface) Configure(width, height int) error {
	if s.isReleased() {
		return fmt.Errorf("configure released surface: %w", ErrSurfaceLost)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	return nil
}

func (s *softwareSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *softwareSurface) Begin(clear [4]float32) (CommandContext, error) {
	if s.isReleased() {
		return nil, fmt.Errorf("begin frame: %w", ErrSurfaceLost)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &softwareCommands{surface: s, clear: clear, width: s.width, height: s.height}, nil
}

func (s *softwareSurface) Snapshot() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presented == nil {
		return nil, false
	}
	out := image.NewRGBA(s.presented.Bounds())
	draw.Draw(out, out.Bounds(), s.presented, image.Point{}, draw.Src)
	return out, true
}

func (s *softwareSurface) TakeErrors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.errs...)
	s.errs = nil
	return err
}

func (s *softwareSurface) Release() {
	s.sendMu.Lock()
	if s.released {
		s.sendMu.Unlock()
		return
	}
	s.released = true
	close(s.jobs)
	s.sendMu.Unlock()
	<-s.done
}

func (s *softwareSurface) isReleased() bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	return s.released
}

func (s *softwareSurface) report(err error) {
	s.backend.logger.Warn("software frame failed", "error", err)
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

type softwareDraw struct {
	handle        VariantHandle
	table         address.Table
	vertexCount   uint32
	instanceCount uint32
}

// softwareCommands records draws on the caller's goroutine and replays them on the executor.
type softwareCommands struct {
	surface *softwareSurface
	state   CommandState

	clear         [4]float32
	width, height int
	draws         []softwareDraw
	table         address.Table

	submitted bool
	aborted   bool
	result    *raster.Target
}

func (c *softwareCommands) BindVariant(h VariantHandle) error {
	return c.state.Bind(h)
}

func (c *softwareCommands) PushAddresses(t address.Table) error {
	if err := c.state.Push(t); err != nil {
		return err
	}
	c.table = t
	return nil
}

func (c *softwareCommands) Draw(vertexCount, instanceCount uint32) error {
	h, err := c.state.Draw()
	if err != nil {
		return err
	}
	c.draws = append(c.draws, softwareDraw{handle: h, table: c.table, vertexCount: vertexCount, instanceCount: instanceCount})
	return nil
}

func (c *softwareCommands) Submit(fence *lifetime.Fence) error {
	if c.submitted || c.aborted {
		return errors.New("frame already submitted or aborted")
	}
	c.submitted = true
	sampler := c.surface.backend.sampler()
	return c.surface.enqueue(func() {
		defer fence.Signal()
		target := raster.NewTarget(c.width, c.height, c.clear)
		for _, d := range c.draws {
			if err := c.execute(target, d, sampler); err != nil {
				c.surface.report(err)
			}
		}
		c.result = target
	})
}

func (c *softwareCommands) Present() error {
	if !c.submitted || c.aborted {
		return errors.New("present without a submitted frame")
	}
	return c.surface.enqueue(func() {
		c.surface.mu.Lock()
		c.surface.presented = c.result.Color
		c.surface.mu.Unlock()
	})
}

func (c *softwareCommands) Abort() {
	c.draws = nil
	c.aborted = true
}

func (c *softwareCommands) execute(target *raster.Target, d softwareDraw, sampler pipeline.TextureSampler) error {
	p := d.handle.Program()
	inv, err := p.Bind(c.surface.backend.mem, d.table)
	if err != nil {
		return deviceError(p.Key(), err)
	}
	shade := func(in pipeline.Varyings) ([4]float32, error) {
		return inv.Fragment(in, sampler)
	}

	state := p.RasterState()
	for instance := range d.instanceCount {
		for first := uint32(0); first+3 <= d.vertexCount; first += 3 {
			var tri [3]pipeline.Varyings
			for k := range uint32(3) {
				if tri[k], err = inv.Vertex(first+k, instance); err != nil {
					return deviceError(p.Key(), err)
				}
			}
			if _, err := raster.DrawTriangle(target, state, tri, shade); err != nil {
				return deviceError(p.Key(), err)
			}
		}
	}
	return nil
}

// deviceError tags reads of unallocated memory as stale address use.
func deviceError(key string, err error) error {
	if errors.Is(err, gpumem.ErrInvalidAddress) {
		return fmt.Errorf("draw %s: %w: %w", key, ErrStaleAddress, err)
	}
	return fmt.Errorf("draw %s: %w", key, err)
}
