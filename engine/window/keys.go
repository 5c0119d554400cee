package window

import "github.com/go-gl/glfw/v3.3/glfw"

// Key is a keyboard key. Values are GLFW key codes, which use ASCII for printable keys.
type Key uint32

const (
	KeyW         = Key(glfw.KeyW)
	KeyA         = Key(glfw.KeyA)
	KeyS         = Key(glfw.KeyS)
	KeyD         = Key(glfw.KeyD)
	KeyQ         = Key(glfw.KeyQ)
	KeyE         = Key(glfw.KeyE)
	KeyR         = Key(glfw.KeyR)
	KeyP         = Key(glfw.KeyP)
	KeySpace     = Key(glfw.KeySpace)
	KeyBackspace = Key(glfw.KeyBackspace)
	KeyEscape    = Key(glfw.KeyEscape)
	KeyLeft      = Key(glfw.KeyLeft)
	KeyRight     = Key(glfw.KeyRight)
	KeyUp        = Key(glfw.KeyUp)
	KeyDown      = Key(glfw.KeyDown)
	KeyLeftShift = Key(glfw.KeyLeftShift)

	Key0 = Key(glfw.Key0)
	Key1 = Key(glfw.Key1)
	Key2 = Key(glfw.Key2)
	Key3 = Key(glfw.Key3)
	Key4 = Key(glfw.Key4)
	Key5 = Key(glfw.Key5)
	Key6 = Key(glfw.Key6)
	Key7 = Key(glfw.Key7)
	Key8 = Key(glfw.Key8)
	Key9 = Key(glfw.Key9)
)
