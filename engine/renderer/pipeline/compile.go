package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

// ErrShaderCompile is returned when a variant's sources fail to pre-process, validate or match
// the variant contract.
var ErrShaderCompile = errors.New("shader compile failed")

// Binding slots shared by every variant. Backends build their layouts from these.
const (
	HeapGroup      = 0
	HeapBinding    = 0
	PushGroup      = 0
	PushBinding    = 1
	TextureGroup   = 1
	TextureBinding = 0
	SamplerBinding = 1
)

// Entry point names every variant must use.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

type compileOptions struct {
	validate bool
}

// CompileOption is a functional option for Compile.
type CompileOption func(*compileOptions)

// WithNagaValidation runs both processed stages through the naga WGSL front end.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - CompileOption: option function to apply
func WithNagaValidation(enabled bool) CompileOption {
	return func(o *compileOptions) {
		o.validate = enabled
	}
}

// Compile pre-processes both stages of a variant, checks them against its contract and
// resolves the contract field offsets the program reads.
//
// Parameters:
//   - v: the variant
//   - options: compile options
//
// Returns:
//   - Program: the compiled program, stamped with the generation the sources were read at
//   - error: wraps ErrShaderCompile
func Compile(v Variant, options ...CompileOption) (Program, error) {
	opts := compileOptions{}
	for _, option := range options {
		option(&opts)
	}

	// read the generation first so a concurrent reload can only make the result look older
	generation := v.Generation()
	c := v.Contract()
	fail := func(err error) (Program, error) {
		return nil, fmt.Errorf("%w: %s: %w", ErrShaderCompile, v.Key(), err)
	}

	if err := address.VerifyPayload(c.Push); err != nil {
		return fail(err)
	}

	vs, err := shader.NewShader(v.Key()+".vert", shader.StageVertex, v.Source(shader.StageVertex), shader.NewPreProcessor(includes(c, v.Shading())...))
	if err != nil {
		return fail(err)
	}
	fs, err := shader.NewShader(v.Key()+".frag", shader.StageFragment, v.Source(shader.StageFragment), shader.NewPreProcessor(includes(c, v.Shading())...))
	if err != nil {
		return fail(err)
	}

	if vs.EntryPoint() != VertexEntryPoint {
		return fail(fmt.Errorf("vertex entry point is %q, want %q", vs.EntryPoint(), VertexEntryPoint))
	}
	if fs.EntryPoint() != FragmentEntryPoint {
		return fail(fmt.Errorf("fragment entry point is %q, want %q", fs.EntryPoint(), FragmentEntryPoint))
	}

	contracts := []layout.Struct{c.Vertex, c.Instance, c.Camera, c.Push}
	for _, s := range contracts {
		if err := shader.VerifyStruct(vs.Source(), s); err != nil {
			return fail(fmt.Errorf("vertex stage: %w", err))
		}
		if shader.DeclaresStruct(fs.Source(), s.Name()) {
			if err := shader.VerifyStruct(fs.Source(), s); err != nil {
				return fail(fmt.Errorf("fragment stage: %w", err))
			}
		}
	}

	if err := checkBindings(vs, true); err != nil {
		return fail(err)
	}
	if err := checkBindings(fs, false); err != nil {
		return fail(err)
	}
	samples := slices.ContainsFunc(fs.Bindings(), func(b shader.Binding) bool {
		return b.Type == "texture_2d_array<f32>"
	})
	if samples != c.SamplesTextures {
		return fail(fmt.Errorf("fragment stage texture binding present=%t, contract samples textures=%t", samples, c.SamplesTextures))
	}

	if opts.validate {
		for _, s := range []shader.Shader{vs, fs} {
			if err := shader.Validate(s.Source()); err != nil {
				return fail(fmt.Errorf("%s: %w", s.Key(), err))
			}
		}
	}

	offs, err := resolveOffsets(v.Kind(), c)
	if err != nil {
		return fail(err)
	}

	return &program{
		key:            v.Key(),
		kind:           v.Kind(),
		generation:     generation,
		contract:       c,
		shading:        v.Shading(),
		rasterState:    v.RasterState(),
		vertexShader:   vs,
		fragmentShader: fs,
		offsets:        offs,
	}, nil
}

// checkBindings verifies the shared heap and push bindings sit at their fixed slots.
// The vertex stage must declare both.
func checkBindings(s shader.Shader, required bool) error {
	slots := map[string][2]int{
		"heap": {HeapGroup, HeapBinding},
		"push": {PushGroup, PushBinding},
	}
	seen := map[string]bool{}
	for _, b := range s.Bindings() {
		want, ok := slots[b.Name]
		if !ok {
			continue
		}
		if b.Group != want[0] || b.Binding != want[1] {
			return fmt.Errorf("%s: %s bound at @group(%d) @binding(%d), want @group(%d) @binding(%d)", s.Key(), b.Name, b.Group, b.Binding, want[0], want[1])
		}
		seen[b.Name] = true
	}
	if required {
		for name := range slots {
			if !seen[name] {
				return fmt.Errorf("%s: missing %s binding", s.Key(), name)
			}
		}
	}
	return nil
}

// resolveOffsets looks up every field the kind reads. A missing or retyped field is an error.
func resolveOffsets(kind VariantKind, c Contract) (offsets, error) {
	var o offsets
	type req struct {
		s    layout.Struct
		name string
		t    layout.FieldType
		dst  *uint64
	}
	reqs := []req{
		{c.Vertex, "position", layout.FieldVec3, &o.position},
		{c.Instance, "model", layout.FieldMat4, &o.model},
	}
	if kind == VariantUnlit {
		reqs = append(reqs, req{c.Vertex, "color", layout.FieldVec3, &o.color})
	} else {
		reqs = append(reqs, req{c.Vertex, "normal", layout.FieldVec3, &o.normal})
	}
	if c.SamplesTextures {
		reqs = append(reqs, req{c.Vertex, "tex_coord", layout.FieldVec2, &o.texCoord})
	}
	if c.TextureIndexSource == TextureIndexPerInstance {
		reqs = append(reqs, req{c.Instance, "texture_index", layout.FieldUint32, &o.textureIndex})
	}
	switch c.CameraConvention {
	case camera.ConventionViewProjection:
		reqs = append(reqs, req{c.Camera, "view_projection", layout.FieldMat4, &o.viewProjection})
	case camera.ConventionDecomposed:
		reqs = append(reqs,
			req{c.Camera, "view", layout.FieldMat4, &o.view},
			req{c.Camera, "projection", layout.FieldMat4, &o.projection},
			req{c.Camera, "position", layout.FieldVec3, &o.cameraPosition},
		)
	case camera.ConventionDecomposedDerived:
		reqs = append(reqs,
			req{c.Camera, "view", layout.FieldMat4, &o.view},
			req{c.Camera, "projection", layout.FieldMat4, &o.projection},
		)
	}

	for _, r := range reqs {
		f, err := r.s.Require(r.name, r.t)
		if err != nil {
			return offsets{}, err
		}
		*r.dst = f.Offset
	}
	return o, nil
}
