package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
)

func TestRecordsMatchLayouts(t *testing.T) {
	require.NoError(t, layout.Verify[ColorVertex](ColorVertexLayout))
	require.NoError(t, layout.Verify[LitVertex](LitVertexLayout))
	require.NoError(t, layout.Verify[TexturedVertex](TexturedVertexLayout))
	require.NoError(t, layout.Verify[Instance](InstanceLayout))
	require.NoError(t, layout.Verify[TexturedInstance](TexturedInstanceLayout))

	assert.Equal(t, uint64(24), ColorVertexLayout.Size())
	assert.Equal(t, uint64(24), LitVertexLayout.Size())
	assert.Equal(t, uint64(32), TexturedVertexLayout.Size())
	assert.Equal(t, uint64(64), InstanceLayout.Size())
	assert.Equal(t, uint64(68), TexturedInstanceLayout.Size())

	assert.Error(t, layout.Verify[LitVertex](ColorVertexLayout), "same bytes, different field names")
}

func TestTransformMatrix(t *testing.T) {
	m := Transform{Position: [3]float32{1, 2, 3}}.Matrix()
	p := common.Mul4Vec4(m[:], [4]float32{0, 0, 0, 1})
	assert.Equal(t, [4]float32{1, 2, 3, 1}, p)

	assert.Equal(t, common.IdentityMat4(), NewInstance(Transform{}).Model)
	assert.Equal(t, uint32(7), NewTexturedInstance(Transform{}, 7).TextureIndex)
}

func TestMeshesAreCounterClockwise(t *testing.T) {
	lit := LitCube(2)
	require.Equal(t, 12, lit.TriangleCount())
	for i := 0; i < len(lit.Vertices); i += 3 {
		a, b, c := lit.Vertices[i], lit.Vertices[i+1], lit.Vertices[i+2]
		n := common.Cross3(common.Sub3(b.Position, a.Position), common.Sub3(c.Position, a.Position))
		assert.Greater(t, common.Dot3(n, a.Normal), float32(0), "triangle %d", i/3)
	}

	tri := LitTriangle(1, [3]float32{0, 0, 1})
	a, b, c := tri.Vertices[0], tri.Vertices[1], tri.Vertices[2]
	n := common.Cross3(common.Sub3(b.Position, a.Position), common.Sub3(c.Position, a.Position))
	assert.Greater(t, n[2], float32(0))
}

func TestColorCubeFaceColors(t *testing.T) {
	var colors [6][3]float32
	for i := range colors {
		colors[i] = [3]float32{float32(i), 0, 0}
	}
	cube := ColorCube(1, colors)
	require.Len(t, cube.Vertices, 36)
	for i, v := range cube.Vertices {
		assert.Equal(t, colors[i/6], v.Color)
	}
}

func TestTexturedQuadCoversLayer(t *testing.T) {
	q := TexturedQuad(2)
	require.Len(t, q.Vertices, 6)
	for _, v := range q.Vertices {
		assert.Contains(t, [][2]float32{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, v.TexCoord)
		assert.Equal(t, [3]float32{0, 0, 1}, v.Normal)
	}
}
