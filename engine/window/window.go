package window

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// MouseButton identifies a mouse button in button callbacks.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

// Window is a platform window the renderer presents to. Several windows may be open at once;
// PollEvents dispatches the callbacks of all of them.
type Window interface {
	// Title returns the title the window was created with.
	Title() string

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new width and height in pixels (0 while minimized)
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up/zoom in, negative = down/zoom out)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key
	SetKeyDownCallback(callback func(key Key))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the key
	SetKeyUpCallback(callback func(key Key))

	// SetMouseButtonCallback sets the callback for mouse button presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the button, whether it was pressed, and the cursor position
	SetMouseButtonCallback(callback func(button MouseButton, pressed bool, x, y float32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	//
	// Parameters:
	//   - callback: function receiving the cursor position in window coordinates
	SetMouseMoveCallback(callback func(x, y float32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil once the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true until the window is closed by the user or by Close.
	IsRunning() bool

	// Close destroys the window. The platform library is terminated with the last window.
	//
	// Returns:
	//   - error: if the window was already closed
	Close() error

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// callbacks holds the user callbacks. Platform event handlers read them under mu.
type callbacks struct {
	mu *sync.RWMutex

	onResize      func(width, height int)
	onScroll      func(delta float32)
	onKeyDown     func(key Key)
	onKeyUp       func(key Key)
	onMouseButton func(button MouseButton, pressed bool, x, y float32)
	onMouseMove   func(x, y float32)
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	callbacks

	title     string
	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int

	sizeMu *sync.Mutex
	width  int
	height int

	// platform holds the platform-specific window state.
	platform *glfwWindow
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. It must be called from the main goroutine, which is
// locked to its OS thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: if the platform library or the window could not be initialized
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		callbacks: callbacks{mu: &sync.RWMutex{}},
		title:     "oxy",
		maxWidth:  1600,
		maxHeight: 1200,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		sizeMu:    &sync.Mutex{},
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *engineWindow) Title() string { return w.title }

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(key Key)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(key Key)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button MouseButton, pressed bool, x, y float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) Width() int {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.height
}

// setSize records a framebuffer size and reports it to the resize callback.
func (w *engineWindow) setSize(width, height int) {
	w.sizeMu.Lock()
	w.width, w.height = width, height
	w.sizeMu.Unlock()

	w.mu.RLock()
	cb := w.onResize
	w.mu.RUnlock()
	if cb != nil {
		cb(width, height)
	}
}

// PollEvents processes pending events of every open window and dispatches their callbacks.
// It never blocks and must be called from the goroutine that created the windows.
func PollEvents() {
	platformPollEvents()
}
