package frame

import (
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// LoopBuilderOption is a functional option applied to a Loop during construction via NewLoop.
type LoopBuilderOption func(*Loop)

// WithEventBus publishes an event.Resize on bus whenever the swapchain is out of date or
// suboptimal.
//
// Parameters:
//   - bus: the event bus
//
// Returns:
//   - LoopBuilderOption: a function that applies the bus option to a Loop
func WithEventBus(bus *event.Bus) LoopBuilderOption {
	return func(l *Loop) {
		l.bus = bus
	}
}

// WithExtentSource sets the function queried for the size carried by resize requests,
// usually the window framebuffer size.
//
// Parameters:
//   - extent: returns the current drawable extent
//
// Returns:
//   - LoopBuilderOption: a function that applies the extent option to a Loop
func WithExtentSource(extent func() gpu.Extent2D) LoopBuilderOption {
	return func(l *Loop) {
		l.extent = extent
	}
}
