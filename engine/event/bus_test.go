package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

func TestSubscribeDeliversTypedEvents(t *testing.T) {
	bus := NewBus()

	var resizes []Resize
	var keys []KeyInput
	Subscribe(bus, func(e Resize) { resizes = append(resizes, e) })
	Subscribe(bus, func(e KeyInput) { keys = append(keys, e) })

	bus.Publish(Resize{Width: 800, Height: 600})
	bus.Publish(KeyInput{Key: common.KeyR, Action: common.KeyActionPress})
	bus.Publish(CameraUpdate{})

	assert.Equal(t, []Resize{{Width: 800, Height: 600}}, resizes)
	assert.Len(t, keys, 1)
	assert.True(t, keys[0].Pressed(common.KeyR))
	assert.False(t, keys[0].Pressed(common.KeyT))
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	for i := range 3 {
		Subscribe(bus, func(CameraUpdate) { order = append(order, i) })
	}
	bus.Publish(CameraUpdate{})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	first := Subscribe(bus, func(ShaderReload) { calls++ })
	Subscribe(bus, func(ShaderReload) { calls += 10 })
	assert.Equal(t, 2, bus.Count(KindShaderReload))

	first.Unsubscribe()
	first.Unsubscribe()
	bus.Publish(ShaderReload{})
	assert.Equal(t, 10, calls)
	assert.Equal(t, 1, bus.Count(KindShaderReload))
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	calls := 0
	var sub Subscription
	sub = Subscribe(bus, func(Resize) {
		calls++
		sub.Unsubscribe()
	})
	Subscribe(bus, func(Resize) { calls++ })

	bus.Publish(Resize{Width: 1, Height: 1})
	bus.Publish(Resize{Width: 1, Height: 1})
	assert.Equal(t, 3, calls)
}

func TestResizeMinimized(t *testing.T) {
	assert.True(t, Resize{Width: 0, Height: 720}.Minimized())
	assert.False(t, Resize{Width: 1, Height: 1}.Minimized())
	assert.Equal(t, "MouseInput", KindMouseInput.String())
}
