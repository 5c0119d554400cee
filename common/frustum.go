package common

import (
	"github.com/chewxy/math32"
)

// Plane is ax + by + cz + d = 0 with (a, b, c) the unit normal pointing into the frustum.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// SignedDistance returns the distance of p from the plane, positive on the inner side.
func (p Plane) SignedDistance(v [3]float32) float32 {
	return Dot3(p.Normal, v) + p.Distance
}

// Frustum holds the six clip planes of a view-projection matrix.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// ExtractFrustum extracts the planes of a column-major view-projection matrix with the
// Gribb/Hartmann method. The near plane uses the [0, 1] depth range of WebGPU clip space.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined projection * view matrix
//
// Returns:
//   - Frustum: the normalized planes
func ExtractFrustum(viewProj Mat4) Frustum {
	// row returns row i of the matrix; element (row, col) lives at col*4 + row.
	row := func(i int) [4]float32 {
		return [4]float32{viewProj[i], viewProj[4+i], viewProj[8+i], viewProj[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	combos := [6][4]float32{}
	for i := range 4 {
		combos[FrustumLeft][i] = r3[i] + r0[i]
		combos[FrustumRight][i] = r3[i] - r0[i]
		combos[FrustumBottom][i] = r3[i] + r1[i]
		combos[FrustumTop][i] = r3[i] - r1[i]
		combos[FrustumNear][i] = r2[i]
		combos[FrustumFar][i] = r3[i] - r2[i]
	}

	var f Frustum
	for i, c := range combos {
		n := [3]float32{c[0], c[1], c[2]}
		length := math32.Sqrt(Dot3(n, n))
		if length > 0 {
			n = Scale3(n, 1/length)
			c[3] /= length
		}
		f.Planes[i] = Plane{Normal: n, Distance: c[3]}
	}
	return f
}

// ContainsSphere reports whether a sphere is at least partly inside the frustum.
//
// Parameters:
//   - center: the sphere center in world space
//   - radius: the sphere radius
//
// Returns:
//   - bool: false only when the sphere lies fully outside one plane
func (f Frustum) ContainsSphere(center [3]float32, radius float32) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}
