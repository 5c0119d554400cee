package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
)

func TestRecordsMatchLayouts(t *testing.T) {
	require.NoError(t, layout.Verify[GPUViewProjection](ViewProjectionLayout))
	require.NoError(t, layout.Verify[GPUDecomposed](DecomposedLayout))
	require.NoError(t, layout.Verify[GPUDecomposedLegacy](DecomposedLegacyLayout))

	assert.Equal(t, uint64(64), ViewProjectionLayout.Size())
	assert.Equal(t, uint64(140), DecomposedLayout.Size())
	assert.Equal(t, uint64(128), DecomposedLegacyLayout.Size())

	assert.True(t, ConventionDecomposed.Layout().Equal(DecomposedLayout))
	assert.True(t, ConventionDecomposedDerived.Layout().Equal(DecomposedLegacyLayout))
	assert.True(t, ConventionViewProjection.Layout().Equal(ViewProjectionLayout))
}

func TestViewMovesEyeToOrigin(t *testing.T) {
	c := NewCamera(WithPosition([3]float32{1, 2, 3}), WithTarget([3]float32{0, 0, 0}))
	view := c.ViewMatrix()
	eye := common.Mul4Vec4(view[:], [4]float32{1, 2, 3, 1})
	for i := range 3 {
		assert.InDelta(t, 0, eye[i], 1e-5)
	}

	rec := c.DecomposedRecord()
	assert.Equal(t, [3]float32{1, 2, 3}, rec.Position)
	assert.Equal(t, c.ProjectionMatrix(), rec.Projection)

	var expected [16]float32
	proj := c.ProjectionMatrix()
	common.Mul4(expected[:], proj[:], view[:])
	assert.Equal(t, expected, c.ViewProjectionRecord().ViewProjection)
}

func TestLegacyRecordDerivesPosition(t *testing.T) {
	c := NewCamera(WithPosition([3]float32{-4, 1.5, 2}))
	rec := c.DecomposedLegacyRecord()

	var inv [16]float32
	require.True(t, invert4(inv[:], rec.View[:]))
	assert.InDelta(t, -4, inv[12], 1e-4)
	assert.InDelta(t, 1.5, inv[13], 1e-4)
	assert.InDelta(t, 2, inv[14], 1e-4)
}

func TestOrthographicMapsDepthToUnitRange(t *testing.T) {
	c := NewCamera(WithOrthographic(2), WithClip(1, 11), WithPosition([3]float32{0, 0, 0}), WithTarget([3]float32{0, 0, -1}))
	vp := c.ViewProjectionMatrix()

	near := common.Mul4Vec4(vp[:], [4]float32{1, 1, -1, 1})
	far := common.Mul4Vec4(vp[:], [4]float32{0, 0, -11, 1})
	assert.InDelta(t, 0, near[2], 1e-5)
	assert.InDelta(t, 1, near[0], 1e-5)
	assert.InDelta(t, 1, near[1], 1e-5)
	assert.InDelta(t, 1, far[2], 1e-5)
}

func TestControllerDrivesCamera(t *testing.T) {
	ctrl := NewController(WithRadius(10), WithAngles(0, 0))
	c := NewCamera(WithController(ctrl))
	pos := c.Position()
	assert.InDeltaSlice(t, []float32{0, 0, 10}, pos[:], 1e-5)

	ctrl.Orbit(math32.Pi/2/0.03, 0)
	c.Update()
	pos = c.Position()
	assert.InDeltaSlice(t, []float32{10, 0, 0}, pos[:], 1e-3)

	ctrl.Zoom(1000)
	assert.Equal(t, float32(0.5), ctrl.Radius())

	ctrl.Orbit(0, 1000)
	assert.Less(t, ctrl.Elevation(), math32.Pi/2)

	before := ctrl.Target()
	ctrl.Pan(10, 0)
	assert.NotEqual(t, before, ctrl.Target())
	assert.InDelta(t, 0.5, distance(ctrl.Position(), ctrl.Target()), 1e-4)
}

func TestSetAspectIgnoresDegenerateValues(t *testing.T) {
	c := NewCamera(WithAspect(2))
	c.SetAspect(0)
	assert.Equal(t, float32(2), c.Aspect())
	c.SetAspect(1.5)
	assert.Equal(t, float32(1.5), c.Aspect())
}

func distance(a, b [3]float32) float32 {
	d := common.Sub3(a, b)
	return math32.Sqrt(common.Dot3(d, d))
}

// invert4 inverts a column-major 4x4 matrix by cofactor expansion. It checks the derived
// camera position and reports false for a singular matrix.
func invert4(out, m []float32) bool {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}

	invDet := 1.0 / det
	var buf [16]float32

	buf[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	buf[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	buf[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	buf[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	buf[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	buf[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	buf[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	buf[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	buf[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	buf[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	buf[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	buf[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	buf[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	buf[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	buf[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	buf[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	copy(out, buf[:])
	return true
}
