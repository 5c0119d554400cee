package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// ShadingConfig holds the lighting constants baked into the lit variants.
type ShadingConfig struct {
	// SunDirection points from the surface toward the light. It is normalized on use.
	SunDirection [3]float32

	// Ambient is the constant light term.
	Ambient float32

	// SpecularStrength scales the specular term.
	SpecularStrength float32

	// SpecularExponent is the Phong shininess.
	SpecularExponent float32
}

// DefaultShadingConfig returns a sun from (0.3, 0.8, 0.5), ambient 0.1 and a 0.5 strength,
// exponent 32 specular.
func DefaultShadingConfig() ShadingConfig {
	return ShadingConfig{
		SunDirection:     common.Normalize3([3]float32{0.3, 0.8, 0.5}),
		Ambient:          0.1,
		SpecularStrength: 0.5,
		SpecularExponent: 32,
	}
}

// WGSL returns the shading constants as WGSL const declarations.
func (s ShadingConfig) WGSL() string {
	var b strings.Builder
	sun := common.Normalize3(s.SunDirection)
	fmt.Fprintf(&b, "const SUN_DIRECTION: vec3<f32> = vec3<f32>(%s, %s, %s);\n", wgslFloat(sun[0]), wgslFloat(sun[1]), wgslFloat(sun[2]))
	fmt.Fprintf(&b, "const AMBIENT: f32 = %s;\n", wgslFloat(s.Ambient))
	fmt.Fprintf(&b, "const SPECULAR_STRENGTH: f32 = %s;\n", wgslFloat(s.SpecularStrength))
	fmt.Fprintf(&b, "const SPECULAR_EXPONENT: f32 = %s;\n", wgslFloat(s.SpecularExponent))
	return b.String()
}

// wgslFloat formats f so WGSL parses it as an f32 literal rather than an integer.
func wgslFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Reflect mirrors the incident vector i about the normal n, like the WGSL builtin.
func Reflect(i, n [3]float32) [3]float32 {
	d := 2 * common.Dot3(n, i)
	return common.Sub3(i, common.Scale3(n, d))
}

// lightTerms returns the diffuse and specular intensities for a surface point.
func (s ShadingConfig) lightTerms(normal, worldPos, cameraPos [3]float32) (diffuse, specular float32) {
	n := common.Normalize3(normal)
	sun := common.Normalize3(s.SunDirection)
	diffuse = max(common.Dot3(n, sun), 0)

	viewDir := common.Normalize3(common.Sub3(cameraPos, worldPos))
	r := Reflect(common.Scale3(sun, -1), n)
	specular = math32.Pow(max(common.Dot3(viewDir, r), 0), s.SpecularExponent)
	return diffuse, specular
}

// ShadeLit evaluates the lit fragment stage: ambient + diffuse + strength * specular, in gray.
//
// Parameters:
//   - s: the shading constants
//   - normal: the interpolated surface normal
//   - worldPos: the world-space fragment position
//   - cameraPos: the world-space eye position
//
// Returns:
//   - [4]float32: the unclamped RGBA color, alpha 1
func ShadeLit(s ShadingConfig, normal, worldPos, cameraPos [3]float32) [4]float32 {
	diffuse, specular := s.lightTerms(normal, worldPos, cameraPos)
	l := s.Ambient + diffuse + s.SpecularStrength*specular
	return [4]float32{l, l, l, 1}
}

// ShadeLitTextured evaluates the textured fragment stage. The texel is modulated by
// ambient + diffuse and the specular highlight is added on top. Alpha comes from the texel.
//
// Parameters:
//   - s: the shading constants
//   - texel: the sampled RGBA texel
//   - normal: the interpolated surface normal
//   - worldPos: the world-space fragment position
//   - cameraPos: the world-space eye position
//
// Returns:
//   - [4]float32: the unclamped RGBA color
func ShadeLitTextured(s ShadingConfig, texel [4]float32, normal, worldPos, cameraPos [3]float32) [4]float32 {
	diffuse, specular := s.lightTerms(normal, worldPos, cameraPos)
	k := diffuse + s.Ambient
	spec := s.SpecularStrength * specular
	return [4]float32{texel[0]*k + spec, texel[1]*k + spec, texel[2]*k + spec, texel[3]}
}
