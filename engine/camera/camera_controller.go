package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController drives a camera position and target. It supports orbiting around the
// target and planar movement along the camera's local axes at the same time.
type CameraController interface {
	// Position returns the world-space camera position.
	//
	// Returns:
	//   - mgl32.Vec3: the camera position
	Position() mgl32.Vec3

	// Target returns the world-space point the camera looks at.
	//
	// Returns:
	//   - mgl32.Vec3: the look-at target
	Target() mgl32.Vec3

	// SetTarget moves the orbit center and recomputes the position.
	//
	// Parameters:
	//   - target: the new look-at target
	SetTarget(target mgl32.Vec3)

	// Orbit rotates the camera around the target.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians, clamped to the elevation bounds
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the camera toward (positive) or away from (negative) the target.
	//
	// Parameters:
	//   - delta: zoom steps, scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates both position and target along the camera's right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: distances scaled by the pan speed
	Pan(right, up, forward float32)

	// Radius returns the distance between position and target.
	Radius() float32

	// MouseSensitivity returns the radians of orbit per pixel of mouse movement.
	MouseSensitivity() float32
}
