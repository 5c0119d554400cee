package pipeline

import (
	"embed"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

//go:embed assets/*.wgsl
var assets embed.FS

// VariantKind names one of the built-in shading programs.
type VariantKind string

const (
	// VariantUnlit outputs the vertex color.
	VariantUnlit VariantKind = "unlit"

	// VariantLit applies ambient, Lambert diffuse and Phong specular from a single sun.
	VariantLit VariantKind = "lit"

	// VariantLitTextured modulates a texture array layer with the lit terms.
	VariantLitTextured VariantKind = "lit_textured"
)

// Kinds lists every built-in variant kind.
var Kinds = []VariantKind{VariantUnlit, VariantLit, VariantLitTextured}

// DefaultSource returns the embedded WGSL for a kind and stage, or "" if there is none.
func DefaultSource(kind VariantKind, stage shader.Stage) string {
	name := fmt.Sprintf("assets/%s.%s.wgsl", kind, stageSuffix(stage))
	b, err := assets.ReadFile(name)
	if err != nil {
		return ""
	}
	return string(b)
}

func stageSuffix(stage shader.Stage) string {
	if stage == shader.StageFragment {
		return "frag"
	}
	return "vert"
}

// variant is the implementation of the Variant interface.
type variant struct {
	mu *sync.RWMutex

	key         string
	kind        VariantKind
	contract    Contract
	shading     ShadingConfig
	rasterState RasterState

	vertexSource   string
	fragmentSource string
	generation     uint64

	derivedCamera bool
	fixedIndex    *uint32
}

// Variant is a shader-stage pair together with the layout contract of the records it reads,
// its shading constants and its raster state. Sources may be swapped at runtime; every swap
// bumps the generation so compiled programs keyed by it go stale.
type Variant interface {
	// Key returns the registry key, the kind name unless overridden with WithKey.
	Key() string

	// Kind returns the built-in shading program.
	Kind() VariantKind

	// Contract returns the record layouts the variant reads.
	Contract() Contract

	// Shading returns the lighting constants baked in at compile time.
	Shading() ShadingConfig

	// RasterState returns the fixed-function state.
	RasterState() RasterState

	// Source returns the current WGSL for a stage.
	//
	// Parameters:
	//   - stage: the pipeline stage
	//
	// Returns:
	//   - string: the annotated WGSL source
	Source(stage shader.Stage) string

	// SetSource replaces the WGSL for a stage and bumps the generation. An empty source
	// restores the embedded default.
	//
	// Parameters:
	//   - stage: the pipeline stage
	//   - source: the annotated WGSL source
	SetSource(stage shader.Stage, source string)

	// Generation returns a counter that changes on every source change.
	Generation() uint64
}

var _ Variant = &variant{}

// NewVariant creates a variant of a built-in kind with its embedded sources.
// WithDerivedCameraPosition has no effect on VariantUnlit and WithFixedTextureIndex only
// applies to VariantLitTextured.
//
// Parameters:
//   - kind: the built-in shading program
//   - options: functional options to configure the variant
//
// Returns:
//   - Variant: the newly created variant
func NewVariant(kind VariantKind, options ...VariantBuilderOption) Variant {
	v := &variant{
		mu:             &sync.RWMutex{},
		key:            string(kind),
		kind:           kind,
		shading:        DefaultShadingConfig(),
		rasterState:    DefaultRasterState(),
		vertexSource:   DefaultSource(kind, shader.StageVertex),
		fragmentSource: DefaultSource(kind, shader.StageFragment),
		generation:     1,
	}
	for _, option := range options {
		option(v)
	}
	v.contract = contractFor(kind, v.derivedCamera, v.fixedIndex)
	return v
}

func (v *variant) Key() string              { return v.key }
func (v *variant) Kind() VariantKind        { return v.kind }
func (v *variant) Contract() Contract       { return v.contract }
func (v *variant) Shading() ShadingConfig   { return v.shading }
func (v *variant) RasterState() RasterState { return v.rasterState }

func (v *variant) Source(stage shader.Stage) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if stage == shader.StageFragment {
		return v.fragmentSource
	}
	return v.vertexSource
}

func (v *variant) SetSource(stage shader.Stage, source string) {
	if source == "" {
		source = DefaultSource(v.kind, stage)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if stage == shader.StageFragment {
		v.fragmentSource = source
	} else {
		v.vertexSource = source
	}
	v.generation++
}

func (v *variant) Generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.generation
}
