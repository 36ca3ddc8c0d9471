// Package event is the typed signaling channel between the window, the camera system and
// the renderer. Each event kind has its own struct and handlers are strongly typed closures
// kept in subscription order.
package event

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// Kind tags an event type.
type Kind int

const (
	KindResize Kind = iota
	KindKeyInput
	KindMouseInput
	KindCameraUpdate
	KindShaderReload
)

var kindNames = [...]string{"Resize", "KeyInput", "MouseInput", "CameraUpdate", "ShaderReload"}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is implemented by every event payload.
type Event interface {
	Kind() Kind
}

// Resize is published when the drawable area changes. A zero area means the window is minimized.
type Resize struct {
	Width, Height uint32
}

func (Resize) Kind() Kind { return KindResize }

// Minimized reports whether the new extent has zero area.
func (e Resize) Minimized() bool { return e.Width == 0 || e.Height == 0 }

// KeyInput is published for key presses, repeats and releases.
type KeyInput struct {
	Key    common.Key
	Action common.KeyAction
}

func (KeyInput) Kind() Kind { return KindKeyInput }

// Pressed reports whether the event is the initial press of key.
func (e KeyInput) Pressed(key common.Key) bool {
	return e.Key == key && e.Action == common.KeyActionPress
}

// MouseInput is published for cursor movement, button changes and scrolling. Button and
// Action are only meaningful when ButtonChanged is set.
type MouseInput struct {
	X, Y          float64
	Scroll        float32
	Button        common.MouseButton
	Action        common.KeyAction
	ButtonChanged bool
}

func (MouseInput) Kind() Kind { return KindMouseInput }

// CameraUpdate is published by the camera system after the view changed.
type CameraUpdate struct{}

func (CameraUpdate) Kind() Kind { return KindCameraUpdate }

// ShaderReload requests that every stage recreate its pipelines. Paths lists the changed
// shader files when the request came from the file watcher.
type ShaderReload struct {
	Paths []string
}

func (ShaderReload) Kind() Kind { return KindShaderReload }
