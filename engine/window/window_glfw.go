package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	mu      *sync.Mutex
	window  *glfw.Window
	running bool
}

// GLFW is initialized with the first window and terminated with the last.
var (
	glfwMu   sync.Mutex
	glfwRefs int
)

func acquireGLFW() error {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	if glfwRefs == 0 {
		runtime.LockOSThread()
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("initialize GLFW: %w", err)
		}
	}
	glfwRefs++
	return nil
}

func releaseGLFW() {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	glfwRefs--
	if glfwRefs == 0 {
		glfw.Terminate()
	}
}

// newPlatformWindow creates the GLFW window and routes its input and resize events to the
// window callbacks.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func newPlatformWindow(w *engineWindow) error {
	if err := acquireGLFW(); err != nil {
		return err
	}

	// WebGPU provides its own graphics API, so disable OpenGL context creation.
	// Reference: https://www.glfw.org/docs/latest/window_guide.html#window_hints_ctx
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		releaseGLFW()
		return fmt.Errorf("create GLFW window %q: %w", w.title, err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)

	gw := &glfwWindow{mu: &sync.Mutex{}, window: win, running: true}
	w.platform = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			return
		}
		w.mu.RLock()
		down, up := w.onKeyDown, w.onKeyUp
		w.mu.RUnlock()
		switch action {
		case glfw.Press, glfw.Repeat:
			if down != nil {
				down(Key(key))
			}
		case glfw.Release:
			if up != nil {
				up(Key(key))
			}
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		w.mu.RLock()
		cb := w.onScroll
		w.mu.RUnlock()
		if cb != nil {
			cb(float32(yoff))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		var b MouseButton
		switch button {
		case glfw.MouseButtonLeft:
			b = MouseButtonLeft
		case glfw.MouseButtonRight:
			b = MouseButtonRight
		case glfw.MouseButtonMiddle:
			b = MouseButtonMiddle
		default:
			return
		}
		w.mu.RLock()
		cb := w.onMouseButton
		w.mu.RUnlock()
		if cb != nil {
			x, y := win.GetCursorPos()
			cb(b, action == glfw.Press, float32(x), float32(y))
		}
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.mu.RLock()
		cb := w.onMouseMove
		w.mu.RUnlock()
		if cb != nil {
			cb(float32(x), float32(y))
		}
	})

	// Framebuffer size, not window size: they differ on high-DPI displays and the surface
	// is configured in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.setSize(width, height)
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.sizeMu.Lock()
	w.width, w.height = fbWidth, fbHeight
	w.sizeMu.Unlock()
	return nil
}

// platformGetSurfaceDescriptor creates a platform-appropriate wgpu.SurfaceDescriptor from the
// GLFW window through the wgpuglfw bridge.
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw := w.platform
	if gw == nil {
		return nil
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if !gw.running {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw := w.platform
	if gw == nil {
		return false
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.running && !gw.window.ShouldClose()
}

func platformCloseWindow(w *engineWindow) error {
	gw := w.platform
	if gw == nil {
		return errors.New("window is not initialized")
	}
	gw.mu.Lock()
	if !gw.running {
		gw.mu.Unlock()
		return fmt.Errorf("window %q already closed", w.title)
	}
	gw.running = false
	gw.window.Destroy()
	gw.mu.Unlock()

	releaseGLFW()
	return nil
}

// platformPollEvents polls GLFW for pending events without blocking.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#PollEvents
func platformPollEvents() {
	glfwMu.Lock()
	initialized := glfwRefs > 0
	glfwMu.Unlock()
	if initialized {
		glfw.PollEvents()
	}
}
