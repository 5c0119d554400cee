package engine

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/config"
	"github.com/Carmen-Shannon/oxy-bindless/engine/game_object"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bindless/engine/scene"
)

type fakeWindow struct {
	mu       sync.Mutex
	width    int
	height   int
	running  atomic.Bool
	closed   atomic.Bool
	onResize func(width, height int)
}

var _ Window = &fakeWindow{}

func newFakeWindow(width, height int) *fakeWindow {
	w := &fakeWindow{width: width, height: height}
	w.running.Store(true)
	return w
}

func (w *fakeWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *fakeWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *fakeWindow) IsRunning() bool { return w.running.Load() }

func (w *fakeWindow) Close() error {
	w.closed.Store(true)
	w.running.Store(false)
	return nil
}

func (w *fakeWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

func (w *fakeWindow) resize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	cb := w.onResize
	w.mu.Unlock()
	if cb != nil {
		cb(width, height)
	}
}

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.NewSoftwareBackend())
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuiltins())
	t.Cleanup(r.Close)
	return r
}

func newRedScene(t *testing.T, r renderer.Renderer) scene.Scene {
	t.Helper()
	s, err := scene.NewScene("red", camera.NewCamera(), r, scene.WithActive(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })

	red := [3]float32{1, 0, 0}
	tri := model.ColorTriangle(1.5, [3][3]float32{red, red, red})
	buf, err := renderer.NewBuffer[model.ColorVertex](r, model.ColorVertexLayout, len(tri.Vertices))
	require.NoError(t, err)
	require.NoError(t, buf.WriteRange(context.Background(), 0, tri.Vertices))

	meshID, err := s.AddMesh(string(pipeline.VariantUnlit), buf)
	require.NoError(t, err)
	_, err = s.Add(meshID, game_object.NewGameObject())
	require.NoError(t, err)
	return s
}

func TestRenderOnceDrawsScenes(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r)

	id, err := e.AddWindow(newFakeWindow(16, 16), renderer.OffscreenTarget{})
	require.NoError(t, err)
	require.NoError(t, e.AddScene(id, 0, newRedScene(t, r)))

	ctx := context.Background()
	results := e.RenderOnce(ctx, 0.016)
	require.Contains(t, results, id)
	require.NoError(t, results[id])
	require.NoError(t, r.WaitIdle(ctx))

	wr, ok := r.Window(id)
	require.True(t, ok)
	img, ok := wr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, color.RGBAModel.Convert(img.At(8, 8)))
}

func TestInactiveScenesAreNotDrawn(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r)

	id, err := e.AddWindow(newFakeWindow(16, 16), renderer.OffscreenTarget{})
	require.NoError(t, err)
	s := newRedScene(t, r)
	s.SetActive(false)
	require.NoError(t, e.AddScene(id, 0, s))

	ctx := context.Background()
	require.NoError(t, e.RenderOnce(ctx, 0)[id])
	require.NoError(t, r.WaitIdle(ctx))

	wr, _ := r.Window(id)
	img, ok := wr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, color.RGBAModel.Convert(img.At(8, 8)))
}

func TestSceneRegistry(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r)

	id, err := e.AddWindow(newFakeWindow(32, 16), renderer.OffscreenTarget{})
	require.NoError(t, err)

	s := newRedScene(t, r)
	assert.ErrorIs(t, e.AddScene(id+1, 0, s), renderer.ErrUnknownWindow)

	require.NoError(t, e.AddScene(id, 3, s))
	assert.Same(t, s, e.Scene(id, 3))
	assert.InDelta(t, 2.0, s.Camera().Aspect(), 1e-6, "aspect follows the window")

	e.RemoveScene(id, 3)
	assert.Nil(t, e.Scene(id, 3))
}

func TestResizeUpdatesTargetAndCamera(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r)

	win := newFakeWindow(16, 16)
	id, err := e.AddWindow(win, renderer.OffscreenTarget{})
	require.NoError(t, err)
	s := newRedScene(t, r)
	require.NoError(t, e.AddScene(id, 0, s))

	win.resize(40, 20)
	wr, ok := r.Window(id)
	require.True(t, ok)
	w, h := wr.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
	assert.InDelta(t, 2.0, s.Camera().Aspect(), 1e-6)

	// A minimized window keeps the last aspect and skips frames.
	win.resize(0, 0)
	assert.InDelta(t, 2.0, s.Camera().Aspect(), 1e-6)
	assert.ErrorIs(t, e.RenderOnce(context.Background(), 0)[id], renderer.ErrSkipFrame)
}

func TestRemoveWindowClosesIt(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r)

	win := newFakeWindow(8, 8)
	id, err := e.AddWindow(win, renderer.OffscreenTarget{})
	require.NoError(t, err)

	require.NoError(t, e.RemoveWindow(context.Background(), id))
	assert.True(t, win.closed.Load())
	assert.Empty(t, e.Windows())
	assert.ErrorIs(t, e.RemoveWindow(context.Background(), id), renderer.ErrUnknownWindow)
}

func TestRunRequiresWindows(t *testing.T) {
	e := NewEngine(newTestRenderer(t))
	assert.ErrorIs(t, e.Run(context.Background()), ErrNoWindows)
}

func TestRunStopsWhenWindowsClose(t *testing.T) {
	r := newTestRenderer(t)
	var pumped atomic.Int64
	e := NewEngine(r,
		WithEventPump(func() { pumped.Add(1) }),
		WithRenderFrameLimit(200),
		WithTickRate(200),
	)

	win := newFakeWindow(16, 16)
	id, err := e.AddWindow(win, renderer.OffscreenTarget{})
	require.NoError(t, err)
	require.NoError(t, e.AddScene(id, 0, newRedScene(t, r)))

	var ticks, frames atomic.Int64
	e.SetTickCallback(func(float32) { ticks.Add(1) })
	e.SetRenderCallback(func(float32) { frames.Add(1) })

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return ticks.Load() > 0 && frames.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	win.running.Store(false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the window closed")
	}
	assert.True(t, win.closed.Load())
	assert.Empty(t, e.Windows())
	assert.Positive(t, pumped.Load())
}

func TestRunStopsOnQuit(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r, WithRenderFrameLimit(100))

	win := newFakeWindow(8, 8)
	_, err := e.AddWindow(win, renderer.OffscreenTarget{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	e.Quit()
	e.Quit()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.True(t, win.closed.Load(), "shutdown closes remaining windows")
}

func TestRunAppliesShaderOverrides(t *testing.T) {
	dir := t.TempDir()
	unlit := string(pipeline.VariantUnlit)
	frag := pipeline.DefaultSource(pipeline.VariantUnlit, shader.StageFragment)
	require.NoError(t, os.WriteFile(filepath.Join(dir, unlit+".frag.wgsl"), []byte(frag), 0o644))

	r := newTestRenderer(t)
	v, ok := r.Variant(unlit)
	require.True(t, ok)
	before := v.Generation()

	e := NewEngine(r, WithShaders(dir, true), WithRenderFrameLimit(100))
	_, err := e.AddWindow(newFakeWindow(8, 8), renderer.OffscreenTarget{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return v.Generation() > before }, 2*time.Second, 5*time.Millisecond, "initial overrides are applied")
	loaded := v.Generation()

	require.NoError(t, os.WriteFile(filepath.Join(dir, unlit+".frag.wgsl"), []byte(frag+"\n"), 0o644))
	assert.Eventually(t, func() bool { return v.Generation() > loaded }, 5*time.Second, 10*time.Millisecond, "edits are hot reloaded")
	assert.True(t, r.Available(unlit))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.TickRate = 30
	cfg.Engine.FrameLimit = 50
	cfg.Engine.Profiling = true
	cfg.Shaders.Directory = "shaders"
	cfg.Shaders.HotReload = true

	e := NewEngine(newTestRenderer(t), FromConfig(cfg)...).(*engine)
	assert.Equal(t, time.Second/30, e.tickRate)
	assert.Equal(t, time.Second/50, e.renderFrameLimit)
	assert.True(t, e.profilingEnabled)
	assert.Equal(t, "shaders", e.shaderDir)
	assert.True(t, e.hotReload)
}
