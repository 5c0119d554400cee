// Package raster is the software device's triangle rasterizer. It clips against the near
// plane, culls by winding, interpolates varyings with perspective correction and resolves
// visibility with a [0, 1] depth buffer, following WebGPU's clip-space conventions.
package raster

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
)

// Shader shades one fragment from interpolated varyings.
type Shader func(in pipeline.Varyings) ([4]float32, error)

// Target is a color image with a matching depth buffer.
type Target struct {
	Color *image.RGBA
	Depth []float32
}

// NewTarget creates a target cleared to the given color and to the far depth.
//
// Parameters:
//   - width, height: the target size in pixels
//   - clear: the clear color, RGBA in [0, 1]
//
// Returns:
//   - *Target: the target
func NewTarget(width, height int, clear [4]float32) *Target {
	t := &Target{
		Color: image.NewRGBA(image.Rect(0, 0, width, height)),
		Depth: make([]float32, width*height),
	}
	c := toRGBA(clear)
	for i := range t.Depth {
		t.Depth[i] = 1
		t.Color.Pix[i*4] = c.R
		t.Color.Pix[i*4+1] = c.G
		t.Color.Pix[i*4+2] = c.B
		t.Color.Pix[i*4+3] = c.A
	}
	return t
}

// Width returns the target width.
func (t *Target) Width() int { return t.Color.Rect.Dx() }

// Height returns the target height.
func (t *Target) Height() int { return t.Color.Rect.Dy() }

// DrawTriangle rasterizes one triangle. The vertices are vertex stage outputs in submission
// order; counter-clockwise in normalized device coordinates is front facing.
//
// Parameters:
//   - t: the render target
//   - state: the raster state of the bound variant
//   - v: the three vertex outputs
//   - shade: the fragment stage
//
// Returns:
//   - int: the number of fragments written
//   - error: the first fragment stage error
func DrawTriangle(t *Target, state pipeline.RasterState, v [3]pipeline.Varyings, shade Shader) (int, error) {
	poly := clipNear(v[:])
	written := 0
	for i := 1; i+1 < len(poly); i++ {
		n, err := drawClipped(t, state, [3]pipeline.Varyings{poly[0], poly[i], poly[i+1]}, shade)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// clipNear clips a polygon against z >= 0 (the WebGPU near plane).
func clipNear(in []pipeline.Varyings) []pipeline.Varyings {
	out := make([]pipeline.Varyings, 0, len(in)+1)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		da, db := a.Position[2], b.Position[2]
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			s := da / (da - db)
			out = append(out, pipeline.Interpolate(a, b, b, [3]float32{1 - s, s, 0}))
		}
	}
	return out
}

type screenVertex struct {
	x, y, z float32
	invW    float32
}

func drawClipped(t *Target, state pipeline.RasterState, v [3]pipeline.Varyings, shade Shader) (int, error) {
	w, h := float32(t.Width()), float32(t.Height())

	var s [3]screenVertex
	for i, vv := range v {
		cw := vv.Position[3]
		if cw <= 0 {
			return 0, nil
		}
		inv := 1 / cw
		nx, ny := vv.Position[0]*inv, vv.Position[1]*inv
		s[i] = screenVertex{
			x:    (nx + 1) * 0.5 * w,
			y:    (1 - ny) * 0.5 * h,
			z:    vv.Position[2] * inv,
			invW: inv,
		}
	}

	// screen y points down, so a counter-clockwise NDC triangle has negative screen area
	area := edge(s[0], s[1], s[2].x, s[2].y)
	if area == 0 {
		return 0, nil
	}
	front := area < 0
	if (state.CullMode == pipeline.CullBack && !front) || (state.CullMode == pipeline.CullFront && front) {
		return 0, nil
	}

	minX := clampInt(int(math32.Floor(min(s[0].x, s[1].x, s[2].x))), 0, t.Width())
	maxX := clampInt(int(math32.Ceil(max(s[0].x, s[1].x, s[2].x))), 0, t.Width())
	minY := clampInt(int(math32.Floor(min(s[0].y, s[1].y, s[2].y))), 0, t.Height())
	maxY := clampInt(int(math32.Ceil(max(s[0].y, s[1].y, s[2].y))), 0, t.Height())

	bias := depthBias(state, s, area)

	written := 0
	for py := minY; py < maxY; py++ {
		for px := minX; px < maxX; px++ {
			cx, cy := float32(px)+0.5, float32(py)+0.5
			b := [3]float32{
				edge(s[1], s[2], cx, cy) / area,
				edge(s[2], s[0], cx, cy) / area,
				edge(s[0], s[1], cx, cy) / area,
			}
			if !covers(b, s, area) {
				continue
			}

			z := b[0]*s[0].z + b[1]*s[1].z + b[2]*s[2].z + bias
			if z < 0 || z > 1 {
				continue
			}
			idx := py*t.Width() + px
			if state.DepthTest && z >= t.Depth[idx] {
				continue
			}

			// perspective-correct weights
			pw := [3]float32{b[0] * s[0].invW, b[1] * s[1].invW, b[2] * s[2].invW}
			sum := pw[0] + pw[1] + pw[2]
			pw = [3]float32{pw[0] / sum, pw[1] / sum, pw[2] / sum}

			color, err := shade(pipeline.Interpolate(v[0], v[1], v[2], pw))
			if err != nil {
				return written, err
			}
			t.write(px, py, color, state.Blend)
			if state.DepthWrite {
				t.Depth[idx] = z
			}
			written++
		}
	}
	return written, nil
}

// edge is twice the signed area of (a, b, p).
func edge(a, b screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// covers applies the top-left fill rule so shared edges are drawn exactly once.
func covers(b [3]float32, s [3]screenVertex, area float32) bool {
	for i := range 3 {
		if b[i] > 0 {
			continue
		}
		if b[i] < 0 {
			return false
		}
		// on the edge opposite vertex i
		a, c := s[(i+1)%3], s[(i+2)%3]
		dx, dy := c.x-a.x, c.y-a.y
		if area < 0 {
			dx, dy = -dx, -dy
		}
		top := dy == 0 && dx > 0
		left := dy < 0
		if !top && !left {
			return false
		}
	}
	return true
}

// depthBias returns the constant plus slope-scaled offset for a 24-bit depth buffer.
func depthBias(state pipeline.RasterState, s [3]screenVertex, area float32) float32 {
	if state.DepthBias == 0 && state.DepthBiasSlopeScale == 0 {
		return 0
	}
	dzdx := ((s[1].z-s[0].z)*(s[2].y-s[0].y) - (s[2].z-s[0].z)*(s[1].y-s[0].y)) / area
	dzdy := ((s[2].z-s[0].z)*(s[1].x-s[0].x) - (s[1].z-s[0].z)*(s[2].x-s[0].x)) / area
	slope := max(math32.Abs(dzdx), math32.Abs(dzdy))
	return float32(state.DepthBias)/(1<<24) + state.DepthBiasSlopeScale*slope
}

func (t *Target) write(x, y int, c [4]float32, blend pipeline.BlendMode) {
	i := t.Color.PixOffset(x, y)
	if blend == pipeline.BlendAlpha {
		a := clamp01(c[3])
		for k := range 3 {
			dst := float32(t.Color.Pix[i+k]) / 255
			c[k] = clamp01(c[k])*a + dst*(1-a)
		}
		c[3] = a + float32(t.Color.Pix[i+3])/255*(1-a)
	}
	rgba := toRGBA(c)
	t.Color.Pix[i] = rgba.R
	t.Color.Pix[i+1] = rgba.G
	t.Color.Pix[i+2] = rgba.B
	t.Color.Pix[i+3] = rgba.A
}

func toRGBA(c [4]float32) color.RGBA {
	return color.RGBA{
		R: uint8(math32.Round(clamp01(c[0]) * 255)),
		G: uint8(math32.Round(clamp01(c[1]) * 255)),
		B: uint8(math32.Round(clamp01(c[2]) * 255)),
		A: uint8(math32.Round(clamp01(c[3]) * 255)),
	}
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
