package common

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Perspective creates a right-handed perspective projection that maps view depth
// into the WebGPU clip range [0, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1 / math32.Tan(fovY/2)

	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = near * far / (near - far)
	return m
}

// RotationOnly strips the translation from a view matrix so geometry drawn with it
// stays centered on the camera (environment cube).
func RotationOnly(view mgl32.Mat4) mgl32.Mat4 {
	return view.Mat3().Mat4()
}

// ComposeTRS builds a model matrix as T * R * S.
func ComposeTRS(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	t := mgl32.Translate3D(translation.X(), translation.Y(), translation.Z())
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return t.Mul4(rotation.Normalize().Mat4()).Mul4(s)
}

// AffineRows returns the upper three rows of an affine transform, the 3x4 layout
// used by acceleration structure instance records.
func AffineRows(m mgl32.Mat4) [3]mgl32.Vec4 {
	return [3]mgl32.Vec4{m.Row(0), m.Row(1), m.Row(2)}
}

// AppendFloat32 appends values to dst in little-endian order.
func AppendFloat32(dst []byte, values ...float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// AppendUint32 appends values to dst in little-endian order.
func AppendUint32(dst []byte, values ...uint32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}

// AppendInt32 appends values to dst in little-endian two's complement.
func AppendInt32(dst []byte, values ...int32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
	}
	return dst
}

// AppendMat4 appends a column-major matrix to dst.
func AppendMat4(dst []byte, m mgl32.Mat4) []byte {
	return AppendFloat32(dst, m[:]...)
}

// AppendVec4 appends a vec4 to dst.
func AppendVec4(dst []byte, v mgl32.Vec4) []byte {
	return AppendFloat32(dst, v[:]...)
}

// PadTo appends zero bytes until len(dst) is a multiple of align.
func PadTo(dst []byte, align int) []byte {
	for len(dst)%align != 0 {
		dst = append(dst, 0)
	}
	return dst
}

// Float16 widens an IEEE 754 half precision value, as stored in RGBA16Float images.
func Float16(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0:
		// subnormal, or signed zero when mant is 0
		f := float32(mant) / (1 << 24)
		if sign != 0 {
			return -f
		}
		return f
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}
