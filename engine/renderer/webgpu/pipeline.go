package webgpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

// variantHandle is a render pipeline plus the reference count of frames still encoding with it.
// Release only frees the device objects once no frame holds the handle.
type variantHandle struct {
	program  pipeline.Program
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.PipelineLayout
	modules  [2]*wgpu.ShaderModule
	textured bool

	mu       *sync.Mutex
	refs     int
	released bool
}

var _ renderer.VariantHandle = &variantHandle{}

func (h *variantHandle) Program() pipeline.Program { return h.program }

func (h *variantHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	if h.refs == 0 {
		h.free()
	}
}

// retain pins the handle for one frame. It fails once the handle is released.
func (h *variantHandle) retain() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.refs++
	return true
}

func (h *variantHandle) unpin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs == 0 && h.released {
		h.free()
	}
}

func (h *variantHandle) free() {
	if h.pipeline != nil {
		h.pipeline.Release()
		h.pipeline = nil
	}
	if h.layout != nil {
		h.layout.Release()
		h.layout = nil
	}
	for i, m := range h.modules {
		if m != nil {
			m.Release()
			h.modules[i] = nil
		}
	}
}

func (b *backend) CreateVariant(p pipeline.Program) (renderer.VariantHandle, error) {
	vertex, fragment := p.VertexShader(), p.FragmentShader()
	for _, s := range []shader.Shader{vertex, fragment} {
		for _, binding := range s.Bindings() {
			if !knownBinding(binding) {
				return nil, fmt.Errorf("create %s: %s binds %s at group %d binding %d, which no layout provides",
					p.Key(), s.Key(), binding.Name, binding.Group, binding.Binding)
			}
		}
	}
	textured := p.Contract().SamplesTextures

	b.mu.Lock()
	defer b.mu.Unlock()

	if textured && b.textures == nil {
		return nil, fmt.Errorf("create %s: variant samples textures but no texture array exists", p.Key())
	}

	h := &variantHandle{program: p, textured: textured, mu: &sync.Mutex{}}
	fail := func(err error) (renderer.VariantHandle, error) {
		h.free()
		return nil, fmt.Errorf("create %s: %w", p.Key(), err)
	}

	var err error
	for i, s := range []shader.Shader{vertex, fragment} {
		h.modules[i], err = b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label: s.Key(),
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: s.Source(),
			},
		})
		if err != nil {
			return fail(err)
		}
	}

	groups := []*wgpu.BindGroupLayout{b.heapLayout}
	if textured {
		groups = append(groups, b.textureGroup)
	}
	h.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.Key(),
		BindGroupLayouts: groups,
	})
	if err != nil {
		return fail(err)
	}

	state := p.RasterState()
	target := wgpu.ColorTargetState{
		Format:    b.format,
		WriteMask: wgpu.ColorWriteMaskAll,
	}
	if state.Blend == pipeline.BlendAlpha {
		target.Blend = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	}
	depthCompare := wgpu.CompareFunctionLess
	if !state.DepthTest {
		depthCompare = wgpu.CompareFunctionAlways
	}

	// Vertices are fetched from the heap by index, so the pipeline has no vertex buffers.
	h.pipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.Key() + " Render Pipeline",
		Layout: h.layout,
		Vertex: wgpu.VertexState{
			Module:     h.modules[0],
			EntryPoint: vertex.EntryPoint(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     h.modules[1],
			EntryPoint: fragment.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(state.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: b.sampleCount,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:              wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled:   state.DepthWrite,
			DepthCompare:        depthCompare,
			DepthBias:           state.DepthBias,
			DepthBiasSlopeScale: state.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return fail(err)
	}

	b.logger.Debug("render pipeline created", "variant", p.Key(), "generation", p.Generation(), "textured", textured)
	return h, nil
}

func knownBinding(b shader.Binding) bool {
	switch {
	case b.Group == pipeline.HeapGroup && b.Binding == pipeline.HeapBinding:
	case b.Group == pipeline.PushGroup && b.Binding == pipeline.PushBinding:
	case b.Group == pipeline.TextureGroup && b.Binding == pipeline.TextureBinding:
	case b.Group == pipeline.TextureGroup && b.Binding == pipeline.SamplerBinding:
	default:
		return false
	}
	return true
}

func cullMode(c pipeline.CullMode) wgpu.CullMode {
	switch c {
	case pipeline.CullBack:
		return wgpu.CullModeBack
	case pipeline.CullFront:
		return wgpu.CullModeFront
	}
	return wgpu.CullModeNone
}
