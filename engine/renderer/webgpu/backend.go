// Package webgpu implements renderer.RendererBackend on wgpu. Every pipeline shares one bind
// group layout at group 0: the device heap as a read-only storage buffer and the address table
// as a dynamically offset uniform. Variants that sample textures add the texture array at group 1.
package webgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// DefaultHeapCapacity is the device heap size when WithHeapCapacity is not given.
const DefaultHeapCapacity uint64 = 64 << 20

// pollInterval is how often the backend pumps device callbacks while frames are pending.
const pollInterval = time.Millisecond

type backend struct {
	// mu guards every device and queue call.
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	limits   wgpu.Limits
	format   wgpu.TextureFormat

	// primary is the surface the adapter was selected for. The first CreateSurface call with
	// primaryDesc receives it.
	primary      *wgpu.Surface
	primaryDesc  *wgpu.SurfaceDescriptor
	primaryTaken bool

	mem          *deviceMemory
	heapLayout   *wgpu.BindGroupLayout
	textureGroup *wgpu.BindGroupLayout
	textures     *textureArray

	heapCapacity  uint64
	presentMode   PresentMode
	sampleCount   uint32
	forceFallback bool
	sampler       SamplerStagingData
	logger        *slog.Logger

	pending   atomic.Int32
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

var _ renderer.RendererBackend = &backend{}

// NewBackend creates the wgpu device. When compatible is non-nil the adapter is selected for that
// surface and window surfaces use its preferred format; otherwise the backend runs headless with
// RGBA8Unorm offscreen targets.
//
// Parameters:
//   - compatible: the surface descriptor of the main window, or nil
//   - options: variadic list of BackendBuilderOption functions to configure the backend
//
// Returns:
//   - renderer.RendererBackend: the backend
//   - error: if no adapter or device is available
func NewBackend(compatible *wgpu.SurfaceDescriptor, options ...BackendBuilderOption) (renderer.RendererBackend, error) {
	// wgpu surfaces created from glfw windows must stay on the thread that created them.
	runtime.LockOSThread()

	b := &backend{
		mu:           &sync.Mutex{},
		heapCapacity: DefaultHeapCapacity,
		sampleCount:  1,
		format:       wgpu.TextureFormatRGBA8Unorm,
		primaryDesc:  compatible,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(b)
	}
	if b.logger == nil {
		b.logger = common.Logger()
	}

	b.instance = wgpu.CreateInstance(nil)
	if compatible != nil {
		b.primary = b.instance.CreateSurface(compatible)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallback,
		CompatibleSurface:    b.primary,
	})
	if err != nil {
		b.release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = a

	// The texture array and the heap are single bindings, so ask for everything the adapter has.
	supported := a.GetLimits()
	b.limits = wgpu.DefaultLimits()
	b.limits.MaxTextureArrayLayers = supported.Limits.MaxTextureArrayLayers
	b.limits.MaxStorageBufferBindingSize = supported.Limits.MaxStorageBufferBindingSize
	b.limits.MaxBufferSize = supported.Limits.MaxBufferSize
	b.heapCapacity = min(b.heapCapacity, b.limits.MaxStorageBufferBindingSize)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: b.limits},
	})
	if err != nil {
		b.release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	if b.primary != nil {
		caps := b.primary.GetCapabilities(b.adapter)
		if len(caps.Formats) > 0 {
			b.format = caps.Formats[0]
		}
	}

	if err := b.createLayouts(); err != nil {
		b.release()
		return nil, err
	}
	if b.mem, err = newDeviceMemory(b.device, b.mu, b.heapCapacity); err != nil {
		b.release()
		return nil, err
	}

	go b.poll()
	b.logger.Info("wgpu backend created",
		"format", b.format,
		"heap_bytes", b.heapCapacity,
		"max_texture_layers", b.limits.MaxTextureArrayLayers,
		"sample_count", b.sampleCount,
	)
	return b, nil
}

func (b *backend) createLayouts() error {
	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	heap, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Heap Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    pipeline.HeapBinding,
				Visibility: visibility,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    pipeline.PushBinding,
				Visibility: visibility,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   address.Size,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create heap bind group layout: %w", err)
	}
	b.heapLayout = heap

	tex, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Texture Array Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    pipeline.TextureBinding,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2DArray,
				},
			},
			{
				Binding:    pipeline.SamplerBinding,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create texture bind group layout: %w", err)
	}
	b.textureGroup = tex
	return nil
}

// poll pumps queue callbacks so frame fences signal without a caller blocking on the device.
func (b *backend) poll() {
	defer close(b.stopped)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if b.pending.Load() == 0 {
				continue
			}
			b.mu.Lock()
			b.device.Poll(false, nil)
			b.mu.Unlock()
		}
	}
}

func (b *backend) Name() string { return "wgpu" }

func (b *backend) Memory() gpumem.Memory { return b.mem }

func (b *backend) TextureBinder(capacity, layerSize int) (texture.Binder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.textures != nil {
		return nil, errors.New("texture array already created")
	}
	if capacity <= 0 || uint32(capacity) > b.limits.MaxTextureArrayLayers {
		return nil, fmt.Errorf("texture array of %d layers exceeds the device limit of %d", capacity, b.limits.MaxTextureArrayLayers)
	}
	if layerSize <= 0 || uint32(layerSize) > b.limits.MaxTextureDimension2D {
		return nil, fmt.Errorf("texture layer size %d exceeds the device limit of %d", layerSize, b.limits.MaxTextureDimension2D)
	}

	arr, err := newTextureArray(b, capacity, layerSize)
	if err != nil {
		return nil, err
	}
	b.textures = arr
	return arr, nil
}

func (b *backend) CreateSurface(src renderer.SurfaceSource, width, height int) (renderer.Surface, error) {
	s := &surface{
		b:      b,
		mu:     &sync.Mutex{},
		logger: b.logger,
	}

	switch src := src.(type) {
	case nil, renderer.OffscreenTarget, *renderer.OffscreenTarget:
	case *wgpu.SurfaceDescriptor:
		b.mu.Lock()
		if src == b.primaryDesc && !b.primaryTaken {
			s.target = b.primary
			b.primaryTaken = true
		} else {
			s.target = b.instance.CreateSurface(src)
		}
		b.mu.Unlock()
	default:
		return nil, fmt.Errorf("wgpu backend cannot render to %T", src)
	}

	if err := s.Configure(width, height); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (b *backend) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.stopped

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.device != nil {
			b.device.Poll(true, nil)
		}
		b.release()
	})
}

// release frees everything created so far. Caller must hold the mutex or own b exclusively.
func (b *backend) release() {
	if b.textures != nil {
		b.textures.release()
		b.textures = nil
	}
	if b.mem != nil {
		b.mem.release()
	}
	if b.heapLayout != nil {
		b.heapLayout.Release()
	}
	if b.textureGroup != nil {
		b.textureGroup.Release()
	}
	if b.primary != nil && !b.primaryTaken {
		b.primary.Release()
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

func (b *backend) wgpuPresentMode() wgpu.PresentMode {
	switch b.presentMode {
	case PresentModeVSync:
		return wgpu.PresentModeFifo
	case PresentModeTripleBuffered:
		return wgpu.PresentModeMailbox
	}
	return wgpu.PresentModeImmediate
}
