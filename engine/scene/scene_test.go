package scene

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/game_object"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
)

var unlit = string(pipeline.VariantUnlit)

func newTestScene(t *testing.T, options ...SceneBuilderOption) (renderer.Renderer, Scene) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.NewSoftwareBackend())
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuiltins())
	t.Cleanup(r.Close)

	s, err := NewScene("test", camera.NewCamera(), r, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return r, s
}

func redTriangle(t *testing.T, r renderer.Renderer) address.Source {
	t.Helper()
	red := [3]float32{1, 0, 0}
	tri := model.ColorTriangle(1.5, [3][3]float32{red, red, red})
	buf, err := renderer.NewBuffer[model.ColorVertex](r, model.ColorVertexLayout, len(tri.Vertices))
	require.NoError(t, err)
	require.NoError(t, buf.WriteRange(context.Background(), 0, tri.Vertices))
	return buf
}

func TestNewSceneRequiresCameraAndRenderer(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.NewSoftwareBackend())
	require.NoError(t, err)
	defer r.Close()

	_, err = NewScene("no camera", nil, r)
	assert.Error(t, err)
	_, err = NewScene("no renderer", camera.NewCamera(), nil)
	assert.Error(t, err)
}

func TestScenesStartInactive(t *testing.T) {
	_, idle := newTestScene(t)
	assert.False(t, idle.Active())

	_, live := newTestScene(t, WithActive(true))
	assert.True(t, live.Active())
}

func TestAddMeshChecksVariantContract(t *testing.T) {
	r, s := newTestScene(t)
	vertices := redTriangle(t, r)

	_, err := s.AddMesh("missing", vertices)
	assert.ErrorIs(t, err, renderer.ErrVariantUnavailable)

	_, err = s.AddMesh(string(pipeline.VariantLit), vertices)
	assert.ErrorIs(t, err, layout.ErrLayoutMismatch)

	id, err := s.AddMesh(unlit, vertices)
	require.NoError(t, err)
	batches := s.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, unlit, batches[0].Variant)
	assert.True(t, batches[0].Camera.Layout().Equal(camera.ViewProjectionLayout))
	assert.True(t, batches[0].Instances.Layout().Equal(model.InstanceLayout))

	require.NoError(t, s.RemoveMesh(id))
	assert.Empty(t, s.Batches())
	assert.ErrorIs(t, s.RemoveMesh(id), ErrUnknownMesh)
}

func TestObjectRegistry(t *testing.T) {
	r, s := newTestScene(t)
	meshID, err := s.AddMesh(unlit, redTriangle(t, r))
	require.NoError(t, err)

	a := game_object.NewGameObject()
	b := game_object.NewGameObject(game_object.WithID(10))
	idA, err := s.Add(meshID, a)
	require.NoError(t, err)
	idB, err := s.Add(meshID, b)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idA)
	assert.Equal(t, uint64(10), idB)
	assert.Equal(t, 2, s.Count())
	assert.Same(t, b, s.Get(10))

	c := game_object.NewGameObject()
	idC, err := s.Add(meshID, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), idC, "IDs continue past explicit ones")

	s.Remove(idA)
	assert.Nil(t, s.Get(idA))
	assert.Equal(t, 2, s.Count())

	_, err = s.Add(MeshID(42), game_object.NewGameObject())
	assert.ErrorIs(t, err, ErrUnknownMesh)

	s.Clear()
	assert.Equal(t, 0, s.Count())
}

func TestUpdateWritesInstancesAndGrows(t *testing.T) {
	r, s := newTestScene(t, WithInstanceCapacity(4), WithCullingDisabled(true))
	meshID, err := s.AddMesh(unlit, redTriangle(t, r))
	require.NoError(t, err)

	for i := range 10 {
		_, err := s.Add(meshID, game_object.NewGameObject(game_object.WithPosition([3]float32{float32(i), 0, 0})))
		require.NoError(t, err)
	}
	s.Get(3).SetEnabled(false)

	require.NoError(t, s.Update(context.Background(), 0.016))
	instances := s.Batches()[0].Instances
	assert.Equal(t, 9, instances.Len())
	assert.Positive(t, instances.Generation(), "buffer grew past its initial capacity")
}

func TestUpdateCullsOutsideFrustum(t *testing.T) {
	r, s := newTestScene(t)
	meshID, err := s.AddMesh(unlit, redTriangle(t, r))
	require.NoError(t, err)

	_, err = s.Add(meshID, game_object.NewGameObject(game_object.WithBounds(1)))
	require.NoError(t, err)
	_, err = s.Add(meshID, game_object.NewGameObject(game_object.WithBounds(1), game_object.WithPosition([3]float32{100, 0, 0})))
	require.NoError(t, err)
	_, err = s.Add(meshID, game_object.NewGameObject(game_object.WithPosition([3]float32{100, 0, 0})))
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background(), 0))
	assert.Equal(t, 2, s.Batches()[0].Instances.Len(), "objects without bounds are never culled")
}

func TestSceneRendersThroughRenderer(t *testing.T) {
	r, s := newTestScene(t)
	meshID, err := s.AddMesh(unlit, redTriangle(t, r))
	require.NoError(t, err)
	_, err = s.Add(meshID, game_object.NewGameObject())
	require.NoError(t, err)

	w, err := r.AddWindow(1, renderer.OffscreenTarget{}, 16, 16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, 0))
	require.NoError(t, w.Render(ctx, s.Batches()))
	require.NoError(t, w.WaitIdle(ctx))

	img, ok := w.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, color.RGBAModel.Convert(img.At(8, 8)))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, color.RGBAModel.Convert(img.At(0, 0)))

	// A second update waits for the frame that captured the buffers, then rewrites them.
	require.NoError(t, s.Update(ctx, 0))
	require.NoError(t, w.Render(ctx, s.Batches()))
}

func TestReleasedSceneRejectsChanges(t *testing.T) {
	r, s := newTestScene(t)
	vertices := redTriangle(t, r)
	require.NoError(t, s.Release())

	_, err := s.AddMesh(unlit, vertices)
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, s.Update(context.Background(), 0), ErrReleased)
	assert.Nil(t, s.Batches())
	assert.NoError(t, s.Release())
}
