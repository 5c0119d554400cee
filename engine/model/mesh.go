// Package model holds the vertex and instance records consumed by the pipeline variants, plus
// small procedural meshes. Meshes are non-indexed triangle lists: every three vertices form one
// counter-clockwise triangle.
package model

import "github.com/chewxy/math32"

// Mesh is a named triangle list of vertex records.
type Mesh[V any] struct {
	Name     string
	Vertices []V
}

// TriangleCount returns the number of triangles in the mesh.
func (m Mesh[V]) TriangleCount() int {
	return len(m.Vertices) / 3
}

// face is one quad of a generated mesh: its normal and its four corners in counter-clockwise order.
type face struct {
	normal  [3]float32
	corners [4][3]float32
}

// quadUV maps the four face corners to layer coordinates.
var quadUV = [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

// quadOrder splits a quad into two triangles.
var quadOrder = [6]int{0, 1, 2, 0, 2, 3}

func cubeFaces(h float32) []face {
	return []face{
		{[3]float32{0, 0, 1}, [4][3]float32{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}},
	}
}

func quadFaces(h float32) []face {
	return []face{
		{[3]float32{0, 0, 1}, [4][3]float32{{-h, -h, 0}, {h, -h, 0}, {h, h, 0}, {-h, h, 0}}},
	}
}

func emit[V any](name string, faces []face, vertex func(index int, f face, corner int) V) Mesh[V] {
	m := Mesh[V]{Name: name, Vertices: make([]V, 0, len(faces)*6)}
	for i, f := range faces {
		for _, c := range quadOrder {
			m.Vertices = append(m.Vertices, vertex(i, f, c))
		}
	}
	return m
}

// ColorTriangle returns a single triangle in the z = 0 plane with one color per corner.
//
// Parameters:
//   - size: distance from the centroid to each corner
//   - colors: the corner colors, in counter-clockwise order starting at the bottom left
//
// Returns:
//   - Mesh[ColorVertex]: the triangle
func ColorTriangle(size float32, colors [3][3]float32) Mesh[ColorVertex] {
	m := Mesh[ColorVertex]{Name: "triangle", Vertices: make([]ColorVertex, 3)}
	for i := range 3 {
		// corners at 210, 330 and 90 degrees
		angle := math32.Pi*7/6 + float32(i)*math32.Pi*2/3
		s, c := math32.Sincos(angle)
		m.Vertices[i] = ColorVertex{Position: [3]float32{c * size, s * size, 0}, Color: colors[i]}
	}
	return m
}

// LitTriangle returns a single triangle in the z = 0 plane whose vertices all carry normal.
//
// Parameters:
//   - size: distance from the centroid to each corner
//   - normal: the normal assigned to every vertex
//
// Returns:
//   - Mesh[LitVertex]: the triangle
func LitTriangle(size float32, normal [3]float32) Mesh[LitVertex] {
	m := Mesh[LitVertex]{Name: "lit_triangle", Vertices: make([]LitVertex, 3)}
	for i := range 3 {
		angle := math32.Pi*7/6 + float32(i)*math32.Pi*2/3
		s, c := math32.Sincos(angle)
		m.Vertices[i] = LitVertex{Position: [3]float32{c * size, s * size, 0}, Normal: normal}
	}
	return m
}

// ColorCube returns an axis-aligned cube of edge size with one flat color per face.
func ColorCube(size float32, colors [6][3]float32) Mesh[ColorVertex] {
	return emit("cube", cubeFaces(size/2), func(i int, f face, corner int) ColorVertex {
		return ColorVertex{Position: f.corners[corner], Color: colors[i]}
	})
}

// LitCube returns an axis-aligned cube of edge size with flat per-face normals.
func LitCube(size float32) Mesh[LitVertex] {
	return emit("lit_cube", cubeFaces(size/2), func(_ int, f face, corner int) LitVertex {
		return LitVertex{Position: f.corners[corner], Normal: f.normal}
	})
}

// TexturedCube returns an axis-aligned cube of edge size where every face maps the full layer.
func TexturedCube(size float32) Mesh[TexturedVertex] {
	return emit("textured_cube", cubeFaces(size/2), func(_ int, f face, corner int) TexturedVertex {
		return TexturedVertex{Position: f.corners[corner], Normal: f.normal, TexCoord: quadUV[corner]}
	})
}

// TexturedQuad returns a square of edge size in the z = 0 plane facing +Z, mapping the full layer.
func TexturedQuad(size float32) Mesh[TexturedVertex] {
	return emit("textured_quad", quadFaces(size/2), func(_ int, f face, corner int) TexturedVertex {
		return TexturedVertex{Position: f.corners[corner], Normal: f.normal, TexCoord: quadUV[corner]}
	})
}
