package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
)

// TextureIndexSource selects where a textured variant reads its texture array layer from.
type TextureIndexSource int

const (
	// TextureIndexNone is used by variants that do not sample textures.
	TextureIndexNone TextureIndexSource = iota

	// TextureIndexPerInstance reads Instance.texture_index.
	TextureIndexPerInstance

	// TextureIndexFixed uses Contract.FixedTextureIndex for every instance.
	TextureIndexFixed
)

// Contract is the complete set of record layouts a variant reads, plus the conventions that
// select between layouts. Buffers bound to a variant must match it exactly.
type Contract struct {
	Vertex   layout.Struct
	Instance layout.Struct
	Camera   layout.Struct

	// Push is always address.Layout.
	Push layout.Struct

	CameraConvention camera.Convention

	SamplesTextures    bool
	TextureIndexSource TextureIndexSource
	FixedTextureIndex  uint32
}

// Check verifies that the given source layouts are the ones this contract expects.
//
// Parameters:
//   - vertices: the vertex buffer layout
//   - instances: the instance buffer layout
//   - cam: the camera buffer layout
//
// Returns:
//   - error: wraps layout.ErrLayoutMismatch naming the first differing layout
func (c Contract) Check(vertices, instances, cam layout.Struct) error {
	pairs := []struct {
		role      string
		got, want layout.Struct
	}{
		{"vertex", vertices, c.Vertex},
		{"instance", instances, c.Instance},
		{"camera", cam, c.Camera},
	}
	for _, p := range pairs {
		if !p.got.Equal(p.want) {
			return fmt.Errorf("%w: %s buffer is %s, variant expects %s", layout.ErrLayoutMismatch, p.role, p.got, p.want)
		}
	}
	return nil
}

// contractFor builds the contract of a variant kind from its builder state.
func contractFor(kind VariantKind, derivedCamera bool, fixedIndex *uint32) Contract {
	c := Contract{
		Instance: model.InstanceLayout,
		Push:     address.Layout,
	}

	switch kind {
	case VariantUnlit:
		c.Vertex = model.ColorVertexLayout
		c.CameraConvention = camera.ConventionViewProjection
	case VariantLit:
		c.Vertex = model.LitVertexLayout
		c.CameraConvention = camera.ConventionDecomposed
	case VariantLitTextured:
		c.Vertex = model.TexturedVertexLayout
		c.CameraConvention = camera.ConventionDecomposed
		c.SamplesTextures = true
		c.TextureIndexSource = TextureIndexPerInstance
		c.Instance = model.TexturedInstanceLayout
		if fixedIndex != nil {
			c.TextureIndexSource = TextureIndexFixed
			c.FixedTextureIndex = *fixedIndex
			c.Instance = model.InstanceLayout
		}
	}

	if derivedCamera && c.CameraConvention == camera.ConventionDecomposed {
		c.CameraConvention = camera.ConventionDecomposedDerived
	}
	c.Camera = c.CameraConvention.Layout()
	return c
}
