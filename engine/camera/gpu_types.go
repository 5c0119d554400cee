package camera

import "github.com/Carmen-Shannon/oxy-bindless/engine/layout"

// Convention identifies which camera record a pipeline variant reads.
type Convention int

const (
	// ConventionViewProjection is a single pre-multiplied view-projection matrix.
	ConventionViewProjection Convention = iota

	// ConventionDecomposed stores view, projection and the world-space camera position.
	ConventionDecomposed

	// ConventionDecomposedDerived stores view and projection only; shaders derive the camera
	// position from the inverse of the view matrix.
	ConventionDecomposedDerived
)

func (c Convention) String() string {
	switch c {
	case ConventionViewProjection:
		return "view_projection"
	case ConventionDecomposed:
		return "decomposed"
	case ConventionDecomposedDerived:
		return "decomposed_derived"
	}
	return "unknown"
}

// Layout returns the record contract for the convention.
func (c Convention) Layout() layout.Struct {
	switch c {
	case ConventionDecomposed:
		return DecomposedLayout
	case ConventionDecomposedDerived:
		return DecomposedLegacyLayout
	}
	return ViewProjectionLayout
}

// GPUViewProjection is the camera record read by the unlit variant. 64 bytes.
type GPUViewProjection struct {
	ViewProjection [16]float32 // offset 0: projection * view (mat4x4<f32>)
}

// ViewProjectionLayout is the contract for GPUViewProjection.
var ViewProjectionLayout = layout.NewStruct("Camera",
	layout.F("view_projection", layout.FieldMat4),
)

// GPUDecomposed is the camera record read by the lit variants. 140 bytes, packed.
type GPUDecomposed struct {
	View       [16]float32 // offset   0: world to view (mat4x4<f32>)
	Projection [16]float32 // offset  64: view to clip (mat4x4<f32>)
	Position   [3]float32  // offset 128: world-space eye position (vec3<f32>)
}

// DecomposedLayout is the contract for GPUDecomposed.
var DecomposedLayout = layout.NewStruct("Camera",
	layout.F("view", layout.FieldMat4),
	layout.F("projection", layout.FieldMat4),
	layout.F("position", layout.FieldVec3),
)

// GPUDecomposedLegacy is the camera record for variants that derive the eye position
// from the view matrix. 128 bytes.
type GPUDecomposedLegacy struct {
	View       [16]float32 // offset  0
	Projection [16]float32 // offset 64
}

// DecomposedLegacyLayout is the contract for GPUDecomposedLegacy.
var DecomposedLegacyLayout = layout.NewStruct("Camera",
	layout.F("view", layout.FieldMat4),
	layout.F("projection", layout.FieldMat4),
)
