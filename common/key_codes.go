package common

// Key is a virtual key code. Values match GLFW key codes, which use ASCII for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
type Key int

const (
	KeyW         Key = 87  // W key (ASCII)
	KeyA         Key = 65  // A key (ASCII)
	KeyS         Key = 83  // S key (ASCII)
	KeyD         Key = 68  // D key (ASCII)
	KeyQ         Key = 81  // Q key (ASCII)
	KeyE         Key = 69  // E key (ASCII)
	KeyL         Key = 76  // L key (ASCII)
	KeyP         Key = 80  // P key (ASCII)
	KeyR         Key = 82  // R key (ASCII)
	KeyT         Key = 84  // T key (ASCII)
	KeySpace     Key = 32  // Spacebar (ASCII)
	KeyBackspace Key = 259 // Backspace key (GLFW)
	KeyEsc       Key = 256 // Escape key (GLFW)

	KeyLeftShift   Key = 340 // Left Shift (GLFW)
	KeyLeftControl Key = 341 // Left Control (GLFW)
	KeyRightShift  Key = 344 // Right Shift (GLFW)
)

// KeyAction mirrors the GLFW key action values.
type KeyAction int

const (
	KeyActionRelease KeyAction = 0
	KeyActionPress   KeyAction = 1
	KeyActionRepeat  KeyAction = 2
)

// MouseButton mirrors the GLFW mouse button values.
type MouseButton int

const (
	MouseButtonLeft   MouseButton = 0
	MouseButtonRight  MouseButton = 1
	MouseButtonMiddle MouseButton = 2
)
