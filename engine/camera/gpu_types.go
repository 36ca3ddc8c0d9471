package camera

import (
	_ "embed"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (352 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the per-frame camera buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
type GPUCameraUniform struct {
	View                  mgl32.Mat4 // offset   0
	Projection            mgl32.Mat4 // offset  64
	ViewProjection        mgl32.Mat4 // offset 128
	InverseViewProjection mgl32.Mat4 // offset 192
	SkyViewProjection     mgl32.Mat4 // offset 256: projection * rotation-only view
	Position              mgl32.Vec3 // offset 320
	Exposure              float32    // offset 332
	Extent                mgl32.Vec2 // offset 336: render target size in pixels
	Near                  float32    // offset 344
	Far                   float32    // offset 348
}

// GPUCameraUniformSize is the byte size of GPUCameraUniform.
const GPUCameraUniformSize = 352

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (352)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, 0, GPUCameraUniformSize)
	buf = common.AppendMat4(buf, g.View)
	buf = common.AppendMat4(buf, g.Projection)
	buf = common.AppendMat4(buf, g.ViewProjection)
	buf = common.AppendMat4(buf, g.InverseViewProjection)
	buf = common.AppendMat4(buf, g.SkyViewProjection)
	buf = common.AppendFloat32(buf, g.Position[0], g.Position[1], g.Position[2], g.Exposure)
	buf = common.AppendFloat32(buf, g.Extent[0], g.Extent[1], g.Near, g.Far)
	return buf
}

// NewGPUCameraUniform derives every matrix of the uniform from a view and projection pair.
//
// Parameters:
//   - view: the world-to-view matrix
//   - projection: the view-to-clip matrix
//   - position: the world-space eye position
//   - extent: the render target size in pixels
//   - near, far: the clip planes
//
// Returns:
//   - GPUCameraUniform: the filled uniform with exposure 1
func NewGPUCameraUniform(view, projection mgl32.Mat4, position mgl32.Vec3, extent mgl32.Vec2, near, far float32) GPUCameraUniform {
	viewProj := projection.Mul4(view)
	return GPUCameraUniform{
		View:                  view,
		Projection:            projection,
		ViewProjection:        viewProj,
		InverseViewProjection: viewProj.Inv(),
		SkyViewProjection:     projection.Mul4(common.RotationOnly(view)),
		Position:              position,
		Exposure:              1,
		Extent:                extent,
		Near:                  near,
		Far:                   far,
	}
}
