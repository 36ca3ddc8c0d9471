package camera

import (
	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
)

// System maps key and mouse input to the camera controller once per frame and publishes
// event.CameraUpdate whenever the view changed.
type System struct {
	camera Camera
	bus    *event.Bus
	subs   []event.Subscription

	held     map[common.Key]bool
	dragging bool
	cursor   [2]float64
	hasPrev  bool
	orbit    [2]float32
	zoom     float32

	// MoveSpeed is the planar movement in world units per second.
	MoveSpeed float32
}

// NewSystem subscribes a camera system to input events on bus.
//
// Parameters:
//   - cam: the camera to drive, which must have a controller
//   - bus: the event bus carrying input and receiving camera updates
//
// Returns:
//   - *System: the subscribed system
func NewSystem(cam Camera, bus *event.Bus) *System {
	s := &System{
		camera:    cam,
		bus:       bus,
		held:      make(map[common.Key]bool),
		MoveSpeed: 4,
	}
	s.subs = append(s.subs,
		event.Subscribe(bus, s.onKey),
		event.Subscribe(bus, s.onMouse),
	)
	return s
}

func (s *System) onKey(e event.KeyInput) {
	switch e.Action {
	case common.KeyActionPress, common.KeyActionRepeat:
		s.held[e.Key] = true
	case common.KeyActionRelease:
		delete(s.held, e.Key)
	}
}

func (s *System) onMouse(e event.MouseInput) {
	if e.ButtonChanged && (e.Button == common.MouseButtonLeft || e.Button == common.MouseButtonRight) {
		s.dragging = e.Action == common.KeyActionPress
		s.hasPrev = false
	}
	s.zoom += e.Scroll
	if s.dragging {
		if s.hasPrev {
			s.orbit[0] -= float32(e.X - s.cursor[0])
			s.orbit[1] += float32(e.Y - s.cursor[1])
		}
		s.hasPrev = true
	}
	s.cursor = [2]float64{e.X, e.Y}
}

func (s *System) axis(positive, negative common.Key) float32 {
	var v float32
	if s.held[positive] {
		v++
	}
	if s.held[negative] {
		v--
	}
	return v
}

// Update applies the input gathered since the last call.
//
// Parameters:
//   - dt: seconds since the last update
//
// Returns:
//   - bool: true when the camera moved and CameraUpdate was published
func (s *System) Update(dt float32) bool {
	ctrl := s.camera.Controller()
	if ctrl != nil {
		step := s.MoveSpeed * dt
		right := s.axis(common.KeyD, common.KeyA) * step
		up := s.axis(common.KeyE, common.KeyQ) * step
		forward := s.axis(common.KeyW, common.KeyS) * step
		if right != 0 || up != 0 || forward != 0 {
			ctrl.Pan(right, up, forward)
		}
		if s.orbit != [2]float32{} {
			sens := ctrl.MouseSensitivity()
			ctrl.Orbit(s.orbit[0]*sens, s.orbit[1]*sens)
		}
		if s.zoom != 0 {
			ctrl.Zoom(s.zoom)
		}
	}
	s.orbit = [2]float32{}
	s.zoom = 0

	if !s.camera.Update() {
		return false
	}
	s.bus.Publish(event.CameraUpdate{})
	return true
}

// Close unsubscribes the system from the bus.
func (s *System) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}
