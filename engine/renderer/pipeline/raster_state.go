package pipeline

// CullMode selects which triangle faces are discarded. Front faces wind counter-clockwise.
type CullMode int

const (
	// CullNone keeps both faces.
	CullNone CullMode = iota

	// CullBack discards clockwise triangles.
	CullBack

	// CullFront discards counter-clockwise triangles.
	CullFront
)

func (c CullMode) String() string {
	switch c {
	case CullBack:
		return "back"
	case CullFront:
		return "front"
	}
	return "none"
}

// BlendMode selects how fragment colors combine with the target.
type BlendMode int

const (
	// BlendOpaque replaces the target color.
	BlendOpaque BlendMode = iota

	// BlendAlpha applies src*a + dst*(1-a).
	BlendAlpha
)

// RasterState is the fixed-function state of a variant. Backends translate it into their
// native pipeline descriptors.
type RasterState struct {
	// DepthTest enables the less-than depth comparison.
	DepthTest bool

	// DepthWrite stores passing fragment depths.
	DepthWrite bool

	// DepthBias is the constant depth bias.
	DepthBias int32

	// DepthBiasSlopeScale scales the bias by the triangle's depth slope.
	DepthBiasSlopeScale float32

	// CullMode is the face culling mode.
	CullMode CullMode

	// Blend is the color blend mode.
	Blend BlendMode
}

// DefaultRasterState is depth tested, depth written, back-face culled and opaque.
func DefaultRasterState() RasterState {
	return RasterState{
		DepthTest:  true,
		DepthWrite: true,
		CullMode:   CullBack,
		Blend:      BlendOpaque,
	}
}
