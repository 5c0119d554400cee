package window

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
)

// dragScale converts cursor pixels into controller orbit and pan steps.
const dragScale = 0.2

type orbitControls struct {
	mu       sync.Mutex
	ctrl     camera.Controller
	dragging MouseButton
	held     bool
	lastX    float32
	lastY    float32
}

// BindOrbitControls drives an orbit controller from a window's input. Left drag orbits,
// right drag pans, the scroll wheel zooms and W A S D Q E pan and zoom from the keyboard.
// It replaces the window's scroll, key down, mouse button and mouse move callbacks.
//
// Parameters:
//   - w: the window
//   - ctrl: the controller attached to the scene camera
func BindOrbitControls(w Window, ctrl camera.Controller) {
	oc := &orbitControls{ctrl: ctrl}

	w.SetScrollCallback(func(delta float32) {
		ctrl.Zoom(delta)
	})
	w.SetKeyDownCallback(func(key Key) {
		switch key {
		case KeyW:
			ctrl.Pan(0, 1)
		case KeyS:
			ctrl.Pan(0, -1)
		case KeyA:
			ctrl.Pan(-1, 0)
		case KeyD:
			ctrl.Pan(1, 0)
		case KeyQ:
			ctrl.Zoom(-1)
		case KeyE:
			ctrl.Zoom(1)
		case KeyLeft:
			ctrl.Orbit(-1, 0)
		case KeyRight:
			ctrl.Orbit(1, 0)
		case KeyUp:
			ctrl.Orbit(0, 1)
		case KeyDown:
			ctrl.Orbit(0, -1)
		}
	})
	w.SetMouseButtonCallback(oc.button)
	w.SetMouseMoveCallback(oc.move)
}

func (oc *orbitControls) button(button MouseButton, pressed bool, x, y float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if button != MouseButtonLeft && button != MouseButtonRight {
		return
	}
	if pressed {
		oc.dragging, oc.held = button, true
		oc.lastX, oc.lastY = x, y
		return
	}
	if oc.held && oc.dragging == button {
		oc.held = false
	}
}

func (oc *orbitControls) move(x, y float32) {
	oc.mu.Lock()
	if !oc.held {
		oc.mu.Unlock()
		return
	}
	dx, dy := x-oc.lastX, y-oc.lastY
	oc.lastX, oc.lastY = x, y
	button := oc.dragging
	oc.mu.Unlock()

	if button == MouseButtonRight {
		oc.ctrl.Pan(-dx*dragScale, dy*dragScale)
		return
	}
	oc.ctrl.Orbit(-dx*dragScale, dy*dragScale)
}
