package window

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

func TestKeyEvent(t *testing.T) {
	press := keyEvent(glfw.KeyR, glfw.Press)
	assert.True(t, press.Pressed(common.KeyR))
	assert.False(t, keyEvent(glfw.KeyR, glfw.Repeat).Pressed(common.KeyR))
	assert.Equal(t, common.KeyActionRelease, keyEvent(glfw.KeyW, glfw.Release).Action)
	assert.Equal(t, common.KeyLeftShift, keyEvent(glfw.KeyLeftShift, glfw.Press).Key)
}

func TestButtonEvent(t *testing.T) {
	e := buttonEvent(10, 20, glfw.MouseButtonMiddle, glfw.Press)
	assert.True(t, e.ButtonChanged)
	assert.Equal(t, common.MouseButtonMiddle, e.Button)
	assert.Equal(t, common.KeyActionPress, e.Action)
	assert.Equal(t, 10.0, e.X)
}

func TestResizedPublishes(t *testing.T) {
	bus := event.NewBus()
	var got []event.Resize
	event.Subscribe(bus, func(e event.Resize) { got = append(got, e) })

	w := &engineWindow{bus: bus}
	w.resized(800, 600)
	w.resized(0, 0)

	assert.Equal(t, []event.Resize{{Width: 800, Height: 600}, {}}, got)
	assert.True(t, got[1].Minimized())
	assert.Equal(t, gpu.Extent2D{}, w.Extent())
}
