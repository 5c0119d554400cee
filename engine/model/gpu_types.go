package model

import (
	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
)

// ColorVertex is the vertex record of the unlit variant. 24 bytes, packed.
type ColorVertex struct {
	Position [3]float32 // offset  0: model-space position
	Color    [3]float32 // offset 12: linear RGB
}

// ColorVertexLayout is the contract for ColorVertex.
var ColorVertexLayout = layout.NewStruct("Vertex",
	layout.F("position", layout.FieldVec3),
	layout.F("color", layout.FieldVec3),
)

// LitVertex is the vertex record of the lit variant. 24 bytes, packed.
type LitVertex struct {
	Position [3]float32 // offset  0: model-space position
	Normal   [3]float32 // offset 12: model-space normal
}

// LitVertexLayout is the contract for LitVertex.
var LitVertexLayout = layout.NewStruct("Vertex",
	layout.F("position", layout.FieldVec3),
	layout.F("normal", layout.FieldVec3),
)

// TexturedVertex is the vertex record of the textured lit variant. 32 bytes, packed.
type TexturedVertex struct {
	Position [3]float32 // offset  0: model-space position
	Normal   [3]float32 // offset 12: model-space normal
	TexCoord [2]float32 // offset 24: UV, origin at the top-left of the layer
}

// TexturedVertexLayout is the contract for TexturedVertex.
var TexturedVertexLayout = layout.NewStruct("Vertex",
	layout.F("position", layout.FieldVec3),
	layout.F("normal", layout.FieldVec3),
	layout.F("tex_coord", layout.FieldVec2),
)

// Instance is the per-instance record of the unlit and lit variants. 64 bytes.
type Instance struct {
	Model [16]float32 // offset 0: column-major model-to-world matrix
}

// InstanceLayout is the contract for Instance.
var InstanceLayout = layout.NewStruct("Instance",
	layout.F("model", layout.FieldMat4),
)

// TexturedInstance is the per-instance record of the textured lit variant. 68 bytes, packed.
type TexturedInstance struct {
	Model        [16]float32 // offset  0: column-major model-to-world matrix
	TextureIndex uint32      // offset 64: texture array layer
}

// TexturedInstanceLayout is the contract for TexturedInstance.
var TexturedInstanceLayout = layout.NewStruct("Instance",
	layout.F("model", layout.FieldMat4),
	layout.F("texture_index", layout.FieldUint32),
)

// Transform describes an instance placement as translation, Euler rotation (radians) and scale.
type Transform struct {
	Position [3]float32
	Rotation [3]float32
	Scale    [3]float32
}

// Matrix returns the column-major model matrix. A zero Scale is treated as 1.
func (t Transform) Matrix() [16]float32 {
	s := t.Scale
	if s == ([3]float32{}) {
		s = [3]float32{1, 1, 1}
	}
	var m [16]float32
	common.BuildModelMatrix(m[:],
		t.Position[0], t.Position[1], t.Position[2],
		t.Rotation[0], t.Rotation[1], t.Rotation[2],
		s[0], s[1], s[2],
	)
	return m
}

// NewInstance returns an instance record for t.
func NewInstance(t Transform) Instance {
	return Instance{Model: t.Matrix()}
}

// NewTexturedInstance returns a textured instance record for t sampling the given layer.
//
// Parameters:
//   - t: the placement
//   - textureIndex: the texture array layer returned by texture.Array.Register
//
// Returns:
//   - TexturedInstance: the record
func NewTexturedInstance(t Transform, textureIndex uint32) TexturedInstance {
	return TexturedInstance{Model: t.Matrix(), TextureIndex: textureIndex}
}
