package webgpu

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
)

// surface is a window swapchain or, without a target, an offscreen color texture.
type surface struct {
	b      *backend
	logger *slog.Logger

	mu       *sync.Mutex
	target   *wgpu.Surface
	width    int
	height   int
	released bool
	errs     []error

	offscreen     *wgpu.Texture
	offscreenView *wgpu.TextureView
	depth         *wgpu.Texture
	depthView     *wgpu.TextureView
	msaa          *wgpu.Texture
	msaaView      *wgpu.TextureView
}

var _ renderer.Surface = &surface{}

func (s *surface) Configure(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("configure released surface: %w", renderer.ErrSurfaceLost)
	}
	s.width, s.height = width, height
	s.releaseAttachments()
	if width == 0 || height == 0 {
		return nil
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.target != nil {
		caps := s.target.GetCapabilities(s.b.adapter)
		if len(caps.AlphaModes) == 0 {
			return fmt.Errorf("surface has no alpha modes: %w", renderer.ErrSurfaceLost)
		}
		s.target.Configure(s.b.adapter, s.b.device, &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      s.b.format,
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: s.b.wgpuPresentMode(),
			AlphaMode:   caps.AlphaModes[0],
		})
	} else {
		var err error
		s.offscreen, s.offscreenView, err = s.attachment("Offscreen Target", s.b.format, 1, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageCopySrc)
		if err != nil {
			return err
		}
	}

	var err error
	if s.b.sampleCount > 1 {
		// The pass draws into the MSAA texture and resolves into the frame view.
		s.msaa, s.msaaView, err = s.attachment("MSAA Texture", s.b.format, s.b.sampleCount, wgpu.TextureUsageRenderAttachment)
		if err != nil {
			return err
		}
	}
	// Depth texture sample count must match the color attachment.
	s.depth, s.depthView, err = s.attachment("Depth Texture", wgpu.TextureFormatDepth24Plus, s.b.sampleCount, wgpu.TextureUsageRenderAttachment)
	if err != nil {
		return err
	}
	s.logger.Debug("surface configured", "width", width, "height", height, "offscreen", s.target == nil)
	return nil
}

// attachment creates a render target texture at the surface size. Caller must hold both mutexes.
func (s *surface) attachment(label string, format wgpu.TextureFormat, samples uint32, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := s.b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(s.width),
			Height:             uint32(s.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("create %s view: %w", label, err)
	}
	return tex, view, nil
}

// releaseAttachments frees the size dependent textures. Caller must hold s.mu.
func (s *surface) releaseAttachments() {
	for _, v := range []*wgpu.TextureView{s.offscreenView, s.depthView, s.msaaView} {
		if v != nil {
			v.Release()
		}
	}
	for _, t := range []*wgpu.Texture{s.offscreen, s.depth, s.msaa} {
		if t != nil {
			t.Release()
		}
	}
	s.offscreen, s.offscreenView = nil, nil
	s.depth, s.depthView = nil, nil
	s.msaa, s.msaaView = nil, nil
}

func (s *surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *surface) Begin(clear [4]float32) (renderer.CommandContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, fmt.Errorf("begin frame: %w", renderer.ErrSurfaceLost)
	}
	if s.depthView == nil {
		return nil, fmt.Errorf("begin frame on unconfigured surface: %w", renderer.ErrSurfaceLost)
	}

	c := &commands{surface: s, clear: clear, depthView: s.depthView, msaaView: s.msaaView}
	if s.target == nil {
		c.view = s.offscreenView
		return c, nil
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	tex, err := s.target.GetCurrentTexture()
	if err != nil {
		// Outdated and lost swapchains both recover by reconfiguring.
		return nil, fmt.Errorf("acquire surface texture: %w: %w", renderer.ErrSurfaceLost, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create surface view: %w: %w", renderer.ErrSurfaceLost, err)
	}
	c.frame, c.view = tex, view
	return c, nil
}

// Snapshot is unsupported: frames are never read back from the device.
func (s *surface) Snapshot() (image.Image, bool) { return nil, false }

func (s *surface) TakeErrors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.errs...)
	s.errs = nil
	return err
}

func (s *surface) report(err error) {
	s.logger.Warn("wgpu frame failed", "error", err)
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.releaseAttachments()
	if s.target != nil {
		s.target.Release()
		s.target = nil
	}
}

type draw struct {
	handle        *variantHandle
	table         address.Table
	vertexCount   uint32
	instanceCount uint32
}

// commands records draws on the host and encodes the whole frame at Submit, so the address
// tables of every draw go out in one uniform buffer read through dynamic offsets.
type commands struct {
	surface *surface
	state   renderer.CommandState
	table   address.Table
	draws   []draw
	clear   [4]float32

	frame     *wgpu.Texture
	view      *wgpu.TextureView
	depthView *wgpu.TextureView
	msaaView  *wgpu.TextureView

	submitted bool
	done      bool
}

var _ renderer.CommandContext = &commands{}

func (c *commands) BindVariant(h renderer.VariantHandle) error {
	if _, ok := h.(*variantHandle); !ok && h != nil {
		return fmt.Errorf("bind %T: not a wgpu pipeline: %w", h, renderer.ErrVariantUnavailable)
	}
	return c.state.Bind(h)
}

func (c *commands) PushAddresses(t address.Table) error {
	if err := c.state.Push(t); err != nil {
		return err
	}
	c.table = t
	return nil
}

func (c *commands) Draw(vertexCount, instanceCount uint32) error {
	h, err := c.state.Draw()
	if err != nil {
		return err
	}
	vh := h.(*variantHandle)
	if !vh.retain() {
		return fmt.Errorf("draw %s: %w", vh.program.Key(), renderer.ErrVariantUnavailable)
	}
	c.draws = append(c.draws, draw{handle: vh, table: c.table, vertexCount: vertexCount, instanceCount: instanceCount})
	return nil
}

func (c *commands) Submit(fence *lifetime.Fence) error {
	if c.submitted || c.done {
		return errors.New("frame already submitted or aborted")
	}
	c.submitted = true
	defer c.unpinAll()

	b := c.surface.b
	stride := uint64(b.limits.MinUniformBufferOffsetAlignment)
	if stride < address.Size {
		stride = 256
	}

	payload := make([]byte, uint64(max(len(c.draws), 1))*stride)
	for i, d := range c.draws {
		copy(payload[uint64(i)*stride:], d.table.Bytes())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	push, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Address Tables",
		Size:  uint64(len(payload)),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create address table buffer: %w: %w", renderer.ErrDeviceLost, err)
	}
	b.queue.WriteBuffer(push, 0, payload)

	heapGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Heap Bind Group",
		Layout: b.heapLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.mem.buffer, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: push, Offset: 0, Size: address.Size},
		},
	})
	if err != nil {
		push.Release()
		return fmt.Errorf("create heap bind group: %w", err)
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		heapGroup.Release()
		push.Release()
		return fmt.Errorf("create command encoder: %w: %w", renderer.ErrDeviceLost, err)
	}

	color := wgpu.RenderPassColorAttachment{
		View:    c.view,
		LoadOp:  wgpu.LoadOpClear,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: float64(c.clear[0]), G: float64(c.clear[1]), B: float64(c.clear[2]), A: float64(c.clear[3]),
		},
	}
	if c.msaaView != nil {
		color.View = c.msaaView
		color.ResolveTarget = c.view
		color.StoreOp = wgpu.StoreOpDiscard
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            c.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	var bound *variantHandle
	for i, d := range c.draws {
		if d.handle != bound {
			pass.SetPipeline(d.handle.pipeline)
			if d.handle.textured {
				pass.SetBindGroup(1, b.textures.bindGroup, nil)
			}
			bound = d.handle
		}
		pass.SetBindGroup(0, heapGroup, []uint32{uint32(uint64(i) * stride)})
		pass.Draw(d.vertexCount, d.instanceCount, 0, 0)
	}
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		heapGroup.Release()
		push.Release()
		return fmt.Errorf("finish frame: %w", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	b.pending.Add(1)
	b.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		// Callbacks run inside Device.Poll with the backend mutex held.
		if status != wgpu.QueueWorkDoneStatusSuccess {
			go c.surface.report(fmt.Errorf("frame %s: queue status %v: %w", fence.Label(), status, renderer.ErrDeviceLost))
		}
		heapGroup.Release()
		push.Release()
		fence.Signal()
		b.pending.Add(-1)
	})
	return nil
}

func (c *commands) Present() error {
	if !c.submitted || c.done {
		return errors.New("present without a submitted frame")
	}
	c.done = true

	s := c.surface
	if c.frame == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.target != nil {
		s.target.Present()
	}
	c.releaseFrame()
	return nil
}

func (c *commands) Abort() {
	if c.done {
		return
	}
	c.done = true
	if !c.submitted {
		c.unpinAll()
	}
	c.releaseFrame()
}

func (c *commands) unpinAll() {
	for _, d := range c.draws {
		d.handle.unpin()
	}
	c.draws = nil
}

// releaseFrame drops the acquired swapchain texture. Offscreen views belong to the surface.
func (c *commands) releaseFrame() {
	if c.frame == nil {
		return
	}
	c.view.Release()
	c.frame.Release()
	c.view, c.frame = nil, nil
}
