package pipeline

// VariantBuilderOption is a functional option used to configure a Variant during construction.
type VariantBuilderOption func(*variant)

// WithKey overrides the registry key, so two variants of the same kind can coexist.
//
// Parameters:
//   - key: the registry key
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithKey(key string) VariantBuilderOption {
	return func(v *variant) {
		v.key = key
	}
}

// WithShading sets the lighting constants.
//
// Parameters:
//   - s: the shading configuration
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithShading(s ShadingConfig) VariantBuilderOption {
	return func(v *variant) {
		v.shading = s
	}
}

// WithSources replaces the embedded WGSL. Empty strings keep the default for that stage.
//
// Parameters:
//   - vertex: the vertex stage source
//   - fragment: the fragment stage source
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithSources(vertex, fragment string) VariantBuilderOption {
	return func(v *variant) {
		if vertex != "" {
			v.vertexSource = vertex
		}
		if fragment != "" {
			v.fragmentSource = fragment
		}
	}
}

// WithFixedTextureIndex makes a textured variant sample one layer for every instance. The
// instance record drops its texture_index field.
//
// Parameters:
//   - index: the texture array layer
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithFixedTextureIndex(index uint32) VariantBuilderOption {
	return func(v *variant) {
		v.fixedIndex = &index
	}
}

// WithDerivedCameraPosition selects the camera record without a position field. Shaders
// recover the eye position from the view matrix.
func WithDerivedCameraPosition() VariantBuilderOption {
	return func(v *variant) {
		v.derivedCamera = true
	}
}

// WithDepthTestEnabled sets whether depth testing and depth writes are enabled.
//
// Parameters:
//   - enabled: whether depth testing should be enabled
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithDepthTestEnabled(enabled bool) VariantBuilderOption {
	return func(v *variant) {
		v.rasterState.DepthTest = enabled
		v.rasterState.DepthWrite = enabled
	}
}

// WithDepthBias sets the depth bias parameters.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithDepthBias(bias int32, slopeScale float32) VariantBuilderOption {
	return func(v *variant) {
		v.rasterState.DepthBias = bias
		v.rasterState.DepthBiasSlopeScale = slopeScale
	}
}

// WithCullMode sets the face culling mode.
//
// Parameters:
//   - mode: the cull mode (CullNone, CullBack or CullFront)
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithCullMode(mode CullMode) VariantBuilderOption {
	return func(v *variant) {
		v.rasterState.CullMode = mode
	}
}

// WithBlendEnabled switches between opaque output and alpha blending.
//
// Parameters:
//   - enabled: whether alpha blending should be enabled
//
// Returns:
//   - VariantBuilderOption: option function to apply
func WithBlendEnabled(enabled bool) VariantBuilderOption {
	return func(v *variant) {
		v.rasterState.Blend = BlendOpaque
		if enabled {
			v.rasterState.Blend = BlendAlpha
		}
	}
}
