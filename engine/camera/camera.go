package camera

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	position mgl32.Vec3
	target   mgl32.Vec3

	view       mgl32.Mat4
	projection mgl32.Mat4

	controller CameraController
}

// Camera holds perspective settings and the view derived from an attached CameraController.
type Camera interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// View returns the world-to-view matrix.
	View() mgl32.Mat4

	// Projection returns the view-to-clip matrix with WebGPU [0,1] depth.
	Projection() mgl32.Mat4

	// Uniform builds the GPU camera uniform for a render target of the given size.
	//
	// Parameters:
	//   - width, height: render target size in pixels
	//
	// Returns:
	//   - GPUCameraUniform: the uniform ready to marshal
	Uniform(width, height uint32) GPUCameraUniform

	// State returns a value copy of the camera placement.
	//
	// Returns:
	//   - State: position and clip planes
	State() State

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)

	// SetAspect sets the aspect ratio and recomputes the projection.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetFov sets the vertical field of view in radians and recomputes the projection.
	SetFov(fov float32)

	// Update reads position and target from the controller and recomputes the view.
	//
	// Returns:
	//   - bool: true when the view changed
	Update() bool
}

// State is the placement of a camera, copied by value into components that render from a
// fixed viewpoint.
type State struct {
	Position mgl32.Vec3
	Near     float32
	Far      float32
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      mgl32.DegToRad(60),
		aspect:   1,
		near:     0.1,
		far:      1000,
		position: mgl32.Vec3{0, 0, 5},
		view:     mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateView()
	c.updateProjection()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) View() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) Projection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) Uniform(width, height uint32) GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewGPUCameraUniform(c.view, c.projection, c.position, mgl32.Vec2{float32(width), float32(height)}, c.near, c.far)
}

func (c *cameraImpl) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Position: c.position, Near: c.near, Far: c.far}
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateProjection()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateProjection()
}

func (c *cameraImpl) Update() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return false
	}
	position, target := c.controller.Position(), c.controller.Target()
	if position.ApproxEqual(c.position) && target.ApproxEqual(c.target) {
		return false
	}
	c.position, c.target = position, target
	c.updateView()
	return true
}

// updateView recomputes the view matrix. Caller must hold the mutex.
func (c *cameraImpl) updateView() {
	if c.position.ApproxEqual(c.target) {
		c.view = mgl32.Translate3D(-c.position.X(), -c.position.Y(), -c.position.Z())
		return
	}
	c.view = mgl32.LookAtV(c.position, c.target, c.up)
}

// updateProjection recomputes the projection matrix. Caller must hold the mutex.
func (c *cameraImpl) updateProjection() {
	c.projection = common.Perspective(c.fov, c.aspect, c.near, c.far)
}

// cubeFaceUps are the up vectors of the six cube-map faces in +X, -X, +Y, -Y, +Z, -Z order.
var cubeFaceUps = [6]mgl32.Vec3{
	{0, -1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}, {0, -1, 0}, {0, -1, 0},
}

// CubeFaceUniform builds the uniform of a 90 degree camera looking down one cube-map face
// from state's position.
//
// Parameters:
//   - state: the eye position and clip planes
//   - face: the face index in +X, -X, +Y, -Y, +Z, -Z order
//   - size: the face extent in pixels
//
// Returns:
//   - GPUCameraUniform: the face uniform
func CubeFaceUniform(state State, face int, size uint32) GPUCameraUniform {
	dir := common.CubeFaceDirection(face, 0, 0)
	view := mgl32.LookAtV(state.Position, state.Position.Add(dir), cubeFaceUps[face])
	projection := common.Perspective(math32.Pi/2, 1, state.Near, state.Far)
	return NewGPUCameraUniform(view, projection, state.Position, mgl32.Vec2{float32(size), float32(size)}, state.Near, state.Far)
}
