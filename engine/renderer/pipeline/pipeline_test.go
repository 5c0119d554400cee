package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/buffer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

type fixture struct {
	mem     *gpumem.HostMemory
	tracker *lifetime.Tracker
	frame   *lifetime.Frame
}

func newFixture() *fixture {
	tracker := lifetime.NewTracker(nil)
	return &fixture{
		mem:     gpumem.NewHostMemory(1<<20, 256),
		tracker: tracker,
		frame:   tracker.Begin("test", lifetime.NewFence("test")),
	}
}

func upload[T any](t *testing.T, f *fixture, contract layout.Struct, elems []T) buffer.StructuredBuffer[T] {
	t.Helper()
	b, err := buffer.New[T](f.mem, f.tracker, contract, len(elems), buffer.WithLabel(contract.Name()))
	require.NoError(t, err)
	require.NoError(t, b.WriteRange(context.Background(), 0, elems))
	return b
}

func compile(t *testing.T, v Variant) Program {
	t.Helper()
	p, err := Compile(v)
	require.NoError(t, err)
	return p
}

type constantSampler struct {
	texel  [4]float32
	layers []uint32
}

func (s *constantSampler) Sample(layer uint32, _ [2]float32) ([4]float32, error) {
	s.layers = append(s.layers, layer)
	return s.texel, nil
}

func TestVariantContracts(t *testing.T) {
	unlit := NewVariant(VariantUnlit, WithDerivedCameraPosition())
	assert.True(t, unlit.Contract().Vertex.Equal(model.ColorVertexLayout))
	assert.Equal(t, camera.ConventionViewProjection, unlit.Contract().CameraConvention, "unlit ignores the derived camera option")

	lit := NewVariant(VariantLit)
	assert.True(t, lit.Contract().Camera.Equal(camera.DecomposedLayout))
	assert.True(t, lit.Contract().Instance.Equal(model.InstanceLayout))

	derived := NewVariant(VariantLit, WithDerivedCameraPosition(), WithKey("lit_derived"))
	assert.Equal(t, "lit_derived", derived.Key())
	assert.True(t, derived.Contract().Camera.Equal(camera.DecomposedLegacyLayout))

	textured := NewVariant(VariantLitTextured)
	assert.True(t, textured.Contract().SamplesTextures)
	assert.Equal(t, TextureIndexPerInstance, textured.Contract().TextureIndexSource)
	assert.True(t, textured.Contract().Instance.Equal(model.TexturedInstanceLayout))

	fixed := NewVariant(VariantLitTextured, WithFixedTextureIndex(3))
	assert.Equal(t, TextureIndexFixed, fixed.Contract().TextureIndexSource)
	assert.True(t, fixed.Contract().Instance.Equal(model.InstanceLayout))

	for _, v := range []Variant{unlit, lit, derived, textured, fixed} {
		assert.True(t, v.Contract().Push.Equal(address.Layout), v.Key())
	}
}

func TestContractCheck(t *testing.T) {
	c := NewVariant(VariantLit).Contract()
	assert.NoError(t, c.Check(model.LitVertexLayout, model.InstanceLayout, camera.DecomposedLayout))
	assert.ErrorIs(t, c.Check(model.ColorVertexLayout, model.InstanceLayout, camera.DecomposedLayout), layout.ErrLayoutMismatch)
	assert.ErrorIs(t, c.Check(model.LitVertexLayout, model.InstanceLayout, camera.ViewProjectionLayout), layout.ErrLayoutMismatch)
}

func TestCompileBuiltInVariants(t *testing.T) {
	variants := []Variant{
		NewVariant(VariantUnlit),
		NewVariant(VariantLit),
		NewVariant(VariantLit, WithDerivedCameraPosition()),
		NewVariant(VariantLitTextured),
		NewVariant(VariantLitTextured, WithFixedTextureIndex(2)),
	}
	for _, v := range variants {
		p := compile(t, v)
		assert.Equal(t, VertexEntryPoint, p.VertexShader().EntryPoint())
		assert.Equal(t, FragmentEntryPoint, p.FragmentShader().EntryPoint())
		assert.NotContains(t, p.VertexShader().Source(), "@oxy:")
		assert.NotContains(t, p.FragmentShader().Source(), "@oxy:")
		assert.Equal(t, v.Generation(), p.Generation())

		bindings := p.VertexShader().Bindings()
		require.Len(t, bindings, 2)
		assert.Equal(t, "heap", bindings[0].Name)
		assert.Equal(t, "push", bindings[1].Name)
	}

	fixed := compile(t, NewVariant(VariantLitTextured, WithFixedTextureIndex(2)))
	assert.Contains(t, fixed.VertexShader().Source(), "return 2u;")

	derived := compile(t, NewVariant(VariantLit, WithDerivedCameraPosition()))
	assert.Contains(t, derived.FragmentShader().Source(), "transpose(r)")
	assert.NotContains(t, derived.FragmentShader().Source(), "cam.position")
}

func TestCompileRejectsBrokenSources(t *testing.T) {
	header := "//@oxy:group 0 0 storage_read heap array<u32>\n//@oxy:group 0 1 storage_uniform push push\n" +
		"//@oxy:include heap\n//@oxy:include push\n//@oxy:include instance\n//@oxy:include camera\n"
	entry := "\n@vertex\nfn vs_main() -> @builtin(position) vec4<f32> {\n    return vec4<f32>(0.0);\n}\n"

	tests := []struct {
		name   string
		source string
		target error
	}{
		{"drifted vertex struct", header + "struct Vertex {\n    position: vec3<f32>,\n    colour: vec3<f32>,\n}\n" + entry, layout.ErrLayoutMismatch},
		{"missing vertex struct", header + entry, layout.ErrLayoutMismatch},
		{"renamed entry point", header + "//@oxy:include vertex\n" + strings.Replace(entry, "vs_main", "main", 1), nil},
		{"no entry point", header + "//@oxy:include vertex\n", shader.ErrNoEntryPoint},
		{"unknown include", "//@oxy:include lights\n" + entry, nil},
		{"heap moved", strings.Replace(header, "0 0 storage_read", "2 0 storage_read", 1) + "//@oxy:include vertex\n" + entry, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVariant(VariantUnlit, WithSources(tt.source, ""))
			_, err := Compile(v)
			require.ErrorIs(t, err, ErrShaderCompile)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	textured := NewVariant(VariantLitTextured, WithSources("", DefaultSource(VariantLit, shader.StageFragment)))
	_, err := Compile(textured)
	assert.ErrorIs(t, err, ErrShaderCompile, "a textured variant must bind the texture array")
}

func TestSetSourceBumpsGeneration(t *testing.T) {
	v := NewVariant(VariantUnlit)
	before := v.Generation()
	p := compile(t, v)

	v.SetSource(shader.StageFragment, "@fragment\nfn fs_main() -> @location(0) vec4<f32> {\n    return vec4<f32>(1.0);\n}\n")
	assert.Greater(t, v.Generation(), before)
	assert.NotEqual(t, v.Generation(), p.Generation())
	compile(t, v)

	v.SetSource(shader.StageFragment, "")
	assert.Equal(t, DefaultSource(VariantUnlit, shader.StageFragment), v.Source(shader.StageFragment))
}

func TestUnlitVertexAppliesModelAndViewProjection(t *testing.T) {
	f := newFixture()
	cam := camera.NewCamera(camera.WithPosition([3]float32{2, 3, 6}))
	inst := model.NewInstance(model.Transform{Position: [3]float32{1, 0, 0}})

	vertices := upload(t, f, model.ColorVertexLayout, []model.ColorVertex{
		{Position: [3]float32{0, 1, 0}, Color: [3]float32{1, 0, 0}},
	})
	instances := upload(t, f, model.InstanceLayout, []model.Instance{inst})
	camBuf := upload(t, f, camera.ViewProjectionLayout, []camera.GPUViewProjection{cam.ViewProjectionRecord()})

	table, err := address.Assemble(f.frame, vertices, instances, camBuf)
	require.NoError(t, err)

	p := compile(t, NewVariant(VariantUnlit))
	out, err := p.Vertex(f.mem, table, 0, 0)
	require.NoError(t, err)

	vp := cam.ViewProjectionMatrix()
	want := common.Mul4Vec4(vp[:], [4]float32{1, 1, 0, 1})
	assert.InDeltaSlice(t, want[:], out.Position[:], 1e-5)
	assert.Equal(t, [3]float32{1, 0, 0}, out.Color)

	color, err := p.Fragment(out, f.mem, table, nil)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, color)

	_, err = p.Vertex(f.mem, table, 5, 0)
	assert.ErrorIs(t, err, gpumem.ErrInvalidAddress, "reading past the vertex allocation")

	_, err = p.Bind(f.mem, address.Table{})
	assert.ErrorIs(t, err, gpumem.ErrInvalidAddress)
}

func TestLitShading(t *testing.T) {
	s := DefaultShadingConfig()
	sun := s.SunDirection

	// facing away from the sun and viewed head-on: only ambient remains
	away := ShadeLit(s, common.Scale3(sun, -1), [3]float32{}, common.Scale3(sun, -5))
	assert.InDelta(t, 0.1, away[0], 1e-5)
	assert.Equal(t, float32(1), away[3])

	// facing the sun with the eye on the reflection: full diffuse and specular
	full := ShadeLit(s, sun, [3]float32{}, common.Scale3(sun, 5))
	assert.InDelta(t, 0.1+1+0.5, full[0], 1e-4)

	again := ShadeLit(s, sun, [3]float32{}, common.Scale3(sun, 5))
	assert.Equal(t, full, again, "shading has no hidden state")

	tex := ShadeLitTextured(s, [4]float32{0.5, 0.25, 0, 0.75}, common.Scale3(sun, -1), [3]float32{}, common.Scale3(sun, -5))
	assert.InDelta(t, 0.05, tex[0], 1e-5)
	assert.InDelta(t, 0.025, tex[1], 1e-5)
	assert.Equal(t, float32(0.75), tex[3])

	assert.Equal(t, [3]float32{1, 1, 0}, Reflect([3]float32{1, -1, 0}, [3]float32{0, 1, 0}))
}

func TestDerivedCameraPositionMatchesStored(t *testing.T) {
	f := newFixture()
	cam := camera.NewCamera(camera.WithPosition([3]float32{-3, 2, 4}), camera.WithTarget([3]float32{1, 0, -1}))

	vertices := upload(t, f, model.LitVertexLayout, []model.LitVertex{{Normal: [3]float32{0, 0, 1}}})
	instances := upload(t, f, model.InstanceLayout, []model.Instance{model.NewInstance(model.Transform{})})
	stored := upload(t, f, camera.DecomposedLayout, []camera.GPUDecomposed{cam.DecomposedRecord()})
	legacy := upload(t, f, camera.DecomposedLegacyLayout, []camera.GPUDecomposedLegacy{cam.DecomposedLegacyRecord()})

	tableStored, err := address.Assemble(f.frame, vertices, instances, stored)
	require.NoError(t, err)
	tableLegacy, err := address.Assemble(f.frame, vertices, instances, legacy)
	require.NoError(t, err)

	a, err := compile(t, NewVariant(VariantLit)).Bind(f.mem, tableStored)
	require.NoError(t, err)
	b, err := compile(t, NewVariant(VariantLit, WithDerivedCameraPosition())).Bind(f.mem, tableLegacy)
	require.NoError(t, err)

	pa, pb := a.CameraPosition(), b.CameraPosition()
	assert.InDeltaSlice(t, pa[:], pb[:], 1e-4)
	assert.Equal(t, [3]float32{-3, 2, 4}, pa)

	va, err := a.Vertex(0, 0)
	require.NoError(t, err)
	vb, err := b.Vertex(0, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, va.Position[:], vb.Position[:], 1e-5)
}

func TestTexturedVariantSelectsLayer(t *testing.T) {
	f := newFixture()
	cam := camera.NewCamera()

	vertices := upload(t, f, model.TexturedVertexLayout, model.TexturedQuad(1).Vertices)
	instances := upload(t, f, model.TexturedInstanceLayout, []model.TexturedInstance{
		model.NewTexturedInstance(model.Transform{}, 4),
		model.NewTexturedInstance(model.Transform{}, 9),
	})
	camBuf := upload(t, f, camera.DecomposedLayout, []camera.GPUDecomposed{cam.DecomposedRecord()})
	table, err := address.Assemble(f.frame, vertices, instances, camBuf)
	require.NoError(t, err)

	inv, err := compile(t, NewVariant(VariantLitTextured)).Bind(f.mem, table)
	require.NoError(t, err)

	out, err := inv.Vertex(0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), out.TextureIndex)

	_, err = inv.Fragment(out, nil)
	assert.ErrorIs(t, err, ErrNoSampler)

	sampler := &constantSampler{texel: [4]float32{1, 1, 1, 0.5}}
	color, err := inv.Fragment(out, sampler)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, sampler.layers)
	assert.Equal(t, float32(0.5), color[3])

	fixedInstances := upload(t, f, model.InstanceLayout, []model.Instance{model.NewInstance(model.Transform{})})
	fixedTable, err := address.Assemble(f.frame, vertices, fixedInstances, camBuf)
	require.NoError(t, err)
	out, err = compile(t, NewVariant(VariantLitTextured, WithFixedTextureIndex(6))).Vertex(f.mem, fixedTable, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), out.TextureIndex)
}

func TestInterpolateKeepsFlatIndex(t *testing.T) {
	a := Varyings{Color: [3]float32{1, 0, 0}, TextureIndex: 1}
	b := Varyings{Color: [3]float32{0, 1, 0}, TextureIndex: 2}
	c := Varyings{Color: [3]float32{0, 0, 1}, TextureIndex: 3}

	out := Interpolate(a, b, c, [3]float32{0.5, 0.25, 0.25})
	assert.Equal(t, [3]float32{0.5, 0.25, 0.25}, out.Color)
	assert.Equal(t, uint32(1), out.TextureIndex)
}

func TestShadingWGSL(t *testing.T) {
	src := DefaultShadingConfig().WGSL()
	assert.Contains(t, src, "const AMBIENT: f32 = 0.1;")
	assert.Contains(t, src, "const SPECULAR_EXPONENT: f32 = 32.0;")
	assert.Equal(t, "1.0", wgslFloat(1))
	assert.Equal(t, "-0.25", wgslFloat(-0.25))
}
