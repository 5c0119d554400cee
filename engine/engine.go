package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bindless/engine/scene"
)

// ErrNoWindows is returned by Run when no window was added.
var ErrNoWindows = errors.New("engine has no windows")

// Window is the part of a platform window the engine drives. window.Window satisfies it.
type Window interface {
	Width() int
	Height() int
	IsRunning() bool
	Close() error
	SetResizeCallback(callback func(width, height int))
}

type windowEntry struct {
	win    Window
	scenes map[int]scene.Scene
}

// engine implements the Engine interface.
type engine struct {
	r renderer.Renderer

	mu       *sync.Mutex
	windows  map[renderer.WindowID]*windowEntry
	nextID   renderer.WindowID
	running  bool
	tickRate time.Duration

	// frameMu is held for a whole frame so windows are never removed mid-frame.
	frameMu *sync.Mutex

	tickRateChannel chan time.Duration
	quitChannel     chan struct{}
	quitOnce        sync.Once
	wg              sync.WaitGroup

	profiler         *profiler.Profiler
	profilingEnabled bool

	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32)
	renderFrameLimit time.Duration

	pumpEvents   func()
	pollInterval time.Duration

	shaderDir string
	hotReload bool

	logger *slog.Logger
}

// Engine runs the tick loop, the render loop and the window event pump around a Renderer.
type Engine interface {
	// Renderer returns the renderer the engine drives.
	Renderer() renderer.Renderer

	// AddWindow creates a render target for a window and keeps it sized to the framebuffer.
	// The engine closes the window when it stops running or the engine shuts down.
	//
	// Parameters:
	//   - win: the window
	//   - src: the surface source handed to the backend, e.g. win.SurfaceDescriptor()
	//
	// Returns:
	//   - renderer.WindowID: the window ID
	//   - error: surface creation failures
	AddWindow(win Window, src renderer.SurfaceSource) (renderer.WindowID, error)

	// RemoveWindow waits for the window's frames, releases its surface and closes it.
	//
	// Parameters:
	//   - ctx: cancels the wait for in-flight frames
	//   - id: the window ID
	//
	// Returns:
	//   - error: renderer.ErrUnknownWindow or the wait error
	RemoveWindow(ctx context.Context, id renderer.WindowID) error

	// Windows returns the IDs of the open windows in ascending order.
	Windows() []renderer.WindowID

	// AddScene draws a scene into a window. Scenes draw in ascending key order.
	//
	// Parameters:
	//   - id: the window ID
	//   - key: the z-index determining draw order (lower draws first)
	//   - s: the scene
	//
	// Returns:
	//   - error: renderer.ErrUnknownWindow
	AddScene(id renderer.WindowID, key int, s scene.Scene) error

	// RemoveScene stops drawing the scene at key into a window.
	RemoveScene(id renderer.WindowID, key int)

	// Scene returns the scene at key of a window, or nil.
	Scene(id renderer.WindowID, key int) scene.Scene

	// EnableProfiler enables per-window frame statistics in the log.
	EnableProfiler()

	// DisableProfiler disables frame statistics.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second. Takes effect immediately
	// while running.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the render loop. Pass 0 to uncap it.
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// RenderOnce updates the active scenes of every window and renders one frame per window.
	//
	// Parameters:
	//   - ctx: cancels waits for frame slots and in-flight buffers
	//   - deltaTime: seconds since the previous frame
	//
	// Returns:
	//   - map[renderer.WindowID]error: per-window results, nil on success
	RenderOnce(ctx context.Context, deltaTime float32) map[renderer.WindowID]error

	// Run loads shader overrides, starts the tick and render loops and pumps window events on
	// the calling goroutine. It returns when ctx is done, Quit is called or every window has
	// closed. Windows are removed and closed before it returns.
	//
	// Returns:
	//   - error: ErrNoWindows, shader override failures, or shutdown wait errors
	Run(ctx context.Context) error

	// Quit stops Run. Safe to call multiple times.
	Quit()
}

// NewEngine creates an engine around a renderer.
//
// Parameters:
//   - r: the renderer
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(r renderer.Renderer, options ...EngineBuilderOption) Engine {
	e := &engine{
		r:               r,
		mu:              &sync.Mutex{},
		windows:         make(map[renderer.WindowID]*windowEntry),
		nextID:          1,
		tickRate:        time.Second / 60,
		frameMu:         &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		pollInterval:    time.Millisecond,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = common.Logger()
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}
	return e
}

func (e *engine) Renderer() renderer.Renderer { return e.r }

func (e *engine) AddWindow(win Window, src renderer.SurfaceSource) (renderer.WindowID, error) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.mu.Unlock()

	wr, err := e.r.AddWindow(id, src, win.Width(), win.Height())
	if err != nil {
		return 0, err
	}

	entry := &windowEntry{win: win, scenes: make(map[int]scene.Scene)}
	e.mu.Lock()
	e.windows[id] = entry
	e.mu.Unlock()

	win.SetResizeCallback(func(width, height int) {
		wr.Resize(width, height)
		if width <= 0 || height <= 0 {
			return
		}
		for _, s := range e.scenesOf(id) {
			s.Camera().SetAspect(float32(width) / float32(height))
		}
	})
	e.logger.Info("window added", "window", id, "width", win.Width(), "height", win.Height())
	return id, nil
}

func (e *engine) RemoveWindow(ctx context.Context, id renderer.WindowID) error {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	e.mu.Lock()
	entry, ok := e.windows[id]
	delete(e.windows, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove window %d: %w", id, renderer.ErrUnknownWindow)
	}

	err := e.r.RemoveWindow(ctx, id)
	entry.win.SetResizeCallback(nil)
	if cerr := entry.win.Close(); cerr != nil {
		e.logger.Debug("window close", "window", id, "error", cerr)
	}
	e.logger.Info("window removed", "window", id)
	return err
}

func (e *engine) Windows() []renderer.WindowID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]renderer.WindowID, 0, len(e.windows))
	for id := range e.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *engine) AddScene(id renderer.WindowID, key int, s scene.Scene) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.windows[id]
	if !ok {
		return fmt.Errorf("add scene %q: window %d: %w", s.Name(), id, renderer.ErrUnknownWindow)
	}
	entry.scenes[key] = s
	if h := entry.win.Height(); h > 0 {
		s.Camera().SetAspect(float32(entry.win.Width()) / float32(h))
	}
	return nil
}

func (e *engine) RemoveScene(id renderer.WindowID, key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.windows[id]; ok {
		delete(entry.scenes, key)
	}
}

func (e *engine) Scene(id renderer.WindowID, key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.windows[id]; ok {
		return entry.scenes[key]
	}
	return nil
}

// scenesOf returns the scenes of a window in ascending key order.
func (e *engine) scenesOf(id renderer.WindowID) []scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.windows[id]
	if !ok {
		return nil
	}
	keys := make([]int, 0, len(entry.scenes))
	for k := range entry.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		out = append(out, entry.scenes[k])
	}
	return out
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.tickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) RenderOnce(ctx context.Context, deltaTime float32) map[renderer.WindowID]error {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	work := make(map[renderer.WindowID][]renderer.DrawBatch)
	updated := make(map[scene.Scene]bool)
	for _, id := range e.Windows() {
		var batches []renderer.DrawBatch
		for _, s := range e.scenesOf(id) {
			if !s.Active() {
				continue
			}
			// A scene shown in several windows is updated once per frame.
			if !updated[s] {
				updated[s] = true
				if err := s.Update(ctx, deltaTime); err != nil {
					e.logger.Warn("scene update failed", "scene", s.Name(), "error", err)
				}
			}
			batches = append(batches, s.Batches()...)
		}
		work[id] = batches
	}

	start := time.Now()
	results := e.r.RenderFrame(ctx, work)
	elapsed := time.Since(start)

	e.mu.Lock()
	profiling := e.profilingEnabled
	e.mu.Unlock()
	for id, err := range results {
		skipped := errors.Is(err, renderer.ErrSkipFrame)
		failed := err != nil && !skipped
		if failed {
			e.logger.Warn("frame failed", "window", id, "error", err)
		}
		if profiling {
			e.profiler.Record(int(id), elapsed, skipped, failed)
		}
	}
	if profiling {
		e.profiler.Tick()
	}
	return results
}

func (e *engine) Run(ctx context.Context) error {
	if len(e.Windows()) == 0 {
		return ErrNoWindows
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watcher *shader.Watcher
	if e.shaderDir != "" {
		// Watch first so edits made while the initial overrides load are not lost.
		if e.hotReload {
			w, err := shader.NewWatcher(e.shaderDir, e.logger)
			if err != nil {
				return err
			}
			watcher = w
		}
		if err := e.loadOverrides(); err != nil {
			if watcher != nil {
				_ = watcher.Close()
			}
			return err
		}
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.wg.Add(2)
	go e.handleEngine(ctx)
	go e.handleRender(ctx)
	if watcher != nil {
		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			watcher.Run(ctx)
		}()
		go e.handleShaderChanges(watcher)
	}

	e.handleWindows(ctx)

	cancel()
	if watcher != nil {
		_ = watcher.Close()
	}
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return e.shutdown()
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// loadOverrides applies every override file present when Run starts.
func (e *engine) loadOverrides() error {
	changes, err := shader.LoadOverrides(e.shaderDir)
	if err != nil {
		return fmt.Errorf("load shader overrides: %w", err)
	}
	for _, c := range changes {
		e.applyChange(c)
	}
	return nil
}

// applyChange forwards one override to the renderer. A source that fails to compile leaves
// the variant unavailable until a valid one arrives.
func (e *engine) applyChange(c shader.Change) {
	if c.Err != nil {
		e.logger.Warn("shader override unreadable", "path", c.Path, "error", c.Err)
		return
	}
	if err := e.r.ReloadVariant(c.Variant, c.Stage, c.Source); err != nil {
		e.logger.Warn("shader reload failed", "variant", c.Variant, "stage", c.Stage.String(), "error", err)
		return
	}
	e.logger.Info("shader reloaded", "variant", c.Variant, "stage", c.Stage.String())
}

func (e *engine) handleShaderChanges(w *shader.Watcher) {
	defer e.wg.Done()
	for c := range w.Changes() {
		e.applyChange(c)
	}
}

// handleEngine runs the fixed-rate tick loop and listens for tick rate changes.
func (e *engine) handleEngine(ctx context.Context) {
	defer e.wg.Done()

	e.mu.Lock()
	rate := e.tickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.mu.Lock()
			cb := e.tickCallback
			e.mu.Unlock()
			if cb != nil {
				cb(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.tickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleRender runs the render loop. A panic stops the engine instead of the process.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render loop recovered from panic", "panic", r)
			e.Quit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.RenderOnce(ctx, dt)

		e.mu.Lock()
		cb := e.renderCallback
		limit := e.renderFrameLimit
		e.mu.Unlock()
		if cb != nil {
			cb(dt)
		}

		// A loop without windows to draw would spin.
		if limit == 0 && len(e.Windows()) == 0 {
			limit = e.pollInterval
		}
		if limit > 0 {
			if remaining := limit - time.Since(now); remaining > 0 {
				select {
				case <-time.After(remaining):
				case <-ctx.Done():
					return
				case <-e.quitChannel:
					return
				}
			}
		}
	}
}

// handleWindows pumps platform events on the calling goroutine and removes windows that were
// closed, until the engine stops or the last window is gone.
func (e *engine) handleWindows(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quitChannel:
			return
		case <-ticker.C:
		}

		if e.pumpEvents != nil {
			e.pumpEvents()
		}

		e.mu.Lock()
		var closed []renderer.WindowID
		for id, entry := range e.windows {
			if !entry.win.IsRunning() {
				closed = append(closed, id)
			}
		}
		e.mu.Unlock()

		for _, id := range closed {
			if err := e.RemoveWindow(ctx, id); err != nil {
				e.logger.Warn("remove closed window", "window", id, "error", err)
			}
		}
		if len(e.Windows()) == 0 {
			e.Quit()
			return
		}
	}
}

// shutdown removes every remaining window once the loops have stopped.
func (e *engine) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, id := range e.Windows() {
		if err := e.RemoveWindow(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
