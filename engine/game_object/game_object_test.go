package game_object

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
)

func TestNewGameObjectDefaults(t *testing.T) {
	obj := NewGameObject()
	assert.True(t, obj.Enabled())
	assert.Equal(t, uint64(0), obj.ID())
	assert.Equal(t, [3]float32{1, 1, 1}, obj.Transform().Scale)
	assert.Equal(t, model.NewInstance(obj.Transform()), obj.Instance())
}

func TestUpdateAppliesRotationSpeed(t *testing.T) {
	obj := NewGameObject(
		WithRotation([3]float32{0, 1, 0}),
		WithRotationSpeed([3]float32{0, 2, 0.5}),
	)
	obj.Update(0.5)
	rot := obj.Transform().Rotation
	assert.InDeltaSlice(t, []float32{0, 2, 0.25}, rot[:], 1e-6)
}

func TestTexturedInstanceCarriesLayer(t *testing.T) {
	obj := NewGameObject(WithPosition([3]float32{1, 2, 3}), WithTextureIndex(7))
	inst := obj.TexturedInstance()
	assert.Equal(t, uint32(7), inst.TextureIndex)
	assert.Equal(t, float32(1), inst.Model[12])
	assert.Equal(t, float32(2), inst.Model[13])
	assert.Equal(t, float32(3), inst.Model[14])
}

func TestWithBoundsIgnoresNegative(t *testing.T) {
	assert.Equal(t, float32(0), NewGameObject(WithBounds(-1)).Bounds())
	assert.Equal(t, float32(2), NewGameObject(WithBounds(2)).Bounds())
}
