package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
)

func TestUniformLayout(t *testing.T) {
	var u GPUCameraUniform
	assert.Equal(t, GPUCameraUniformSize, u.Size())

	cam := NewCamera(WithLookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}))
	u = cam.Uniform(640, 480)
	buf := u.Marshal()
	require.Len(t, buf, GPUCameraUniformSize)
	assert.Equal(t, mgl32.Vec2{640, 480}, u.Extent)

	// sky matrix ignores translation
	assert.True(t, u.SkyViewProjection.ApproxEqualThreshold(u.Projection.Mul4(common.RotationOnly(u.View)), 1e-5))
	assert.True(t, u.ViewProjection.Mul4(u.InverseViewProjection).ApproxEqualThreshold(mgl32.Ident4(), 1e-2))
}

func TestUpdateReportsChanges(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10))
	cam := NewCamera(WithController(ctrl))
	assert.False(t, cam.Update(), "no movement since construction")

	ctrl.Orbit(0.3, 0)
	assert.True(t, cam.Update())
	assert.False(t, cam.Update())
	assert.InDelta(t, 10, cam.Position().Sub(ctrl.Target()).Len(), 1e-4)
}

func TestControllerClampsZoom(t *testing.T) {
	ctrl := NewCameraController(WithRadius(2), WithRadiusBounds(1, 3), WithZoomSpeed(1))
	ctrl.Zoom(5)
	assert.Equal(t, float32(1), ctrl.Radius())
	ctrl.Zoom(-10)
	assert.Equal(t, float32(3), ctrl.Radius())
}

func TestPanMovesTargetAndPosition(t *testing.T) {
	ctrl := NewCameraController(WithRadius(5), WithElevation(0))
	before := ctrl.Position()
	ctrl.Pan(0, 0, 1)
	delta := ctrl.Position().Sub(before)
	assert.InDelta(t, 1, delta.Len(), 1e-5)
	assert.InDelta(t, 5, ctrl.Position().Sub(ctrl.Target()).Len(), 1e-4)
}

func TestSystemPublishesCameraUpdate(t *testing.T) {
	bus := event.NewBus()
	cam := NewCamera(WithController(NewCameraController()))
	sys := NewSystem(cam, bus)
	defer sys.Close()

	updates := 0
	event.Subscribe(bus, func(event.CameraUpdate) { updates++ })

	assert.False(t, sys.Update(0.016))
	assert.Zero(t, updates)

	bus.Publish(event.KeyInput{Key: common.KeyW, Action: common.KeyActionPress})
	assert.True(t, sys.Update(0.016))
	assert.True(t, sys.Update(0.016), "held key keeps moving")

	bus.Publish(event.KeyInput{Key: common.KeyW, Action: common.KeyActionRelease})
	assert.False(t, sys.Update(0.016))
	assert.Equal(t, 2, updates)

	bus.Publish(event.MouseInput{Scroll: 1})
	assert.True(t, sys.Update(0.016))
}

func TestCubeFaceUniformLooksDownFace(t *testing.T) {
	state := State{Position: mgl32.Vec3{1, 2, 3}, Near: 0.1, Far: 100}
	for face := range 6 {
		u := CubeFaceUniform(state, face, 32)
		dir := common.CubeFaceDirection(face, 0, 0)
		clip := u.ViewProjection.Mul4x1(state.Position.Add(dir).Vec4(1))
		assert.InDelta(t, 0, clip.X()/clip.W(), 1e-4, "face %d", face)
		assert.InDelta(t, 0, clip.Y()/clip.W(), 1e-4, "face %d", face)
	}
}
