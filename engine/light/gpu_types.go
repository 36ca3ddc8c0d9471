package light

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxLightCount is the capacity of the light uniform buffer. Scenes with more enabled
// lights have the excess dropped at marshal time.
const MaxLightCount = 64

// GPULightSize is the byte size of one packed light.
const GPULightSize = 32

// LightBufferSize is the byte size of the light uniform buffer.
const LightBufferSize = MaxLightCount * GPULightSize

// GPULightSource is the canonical WGSL definition of the Light and Lights structs.
// Matches GPULight layout exactly (32 bytes per light).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULight is the GPU-aligned representation of a single light source.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
//
// Layout:
//
//	vec4<f32> location  (16 bytes, offset  0) xyz + w: 0 directional, 1 point
//	vec4<f32> color     (16 bytes, offset 16) rgb * intensity + w: range
type GPULight struct {
	Location mgl32.Vec4
	Color    mgl32.Vec4
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPULight) Size() int {
	return GPULightSize
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 0, GPULightSize)
	buf = common.AppendVec4(buf, g.Location)
	return common.AppendVec4(buf, g.Color)
}

// ToGPULight converts a Light into the packed GPULight record. Directional lights store
// the direction towards the light so shaders can use it as the light vector directly.
//
// Parameters:
//   - l: the Light to convert
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(l Light) GPULight {
	var location mgl32.Vec4
	switch l.Type() {
	case LightTypePoint:
		location = l.Position().Vec4(1)
	default:
		location = l.Direction().Mul(-1).Vec4(0)
	}
	return GPULight{
		Location: location,
		Color:    l.Color().Mul(l.Intensity()).Vec4(l.Range()),
	}
}

// Enabled returns the enabled lights in order, truncated to MaxLightCount.
//
// Parameters:
//   - lights: every light of the scene
//
// Returns:
//   - []Light: the lights the GPU evaluates
func Enabled(lights []Light) []Light {
	out := make([]Light, 0, len(lights))
	for _, l := range lights {
		if !l.Enabled() {
			continue
		}
		if len(out) == MaxLightCount {
			break
		}
		out = append(out, l)
	}
	return out
}

// CountByType returns how many of the enabled lights are of the given type.
func CountByType(lights []Light, t LightType) uint32 {
	var n uint32
	for _, l := range Enabled(lights) {
		if l.Type() == t {
			n++
		}
	}
	return n
}

// MarshalLightBuffer packs the enabled lights into the layout of the WGSL Lights struct.
// Only the populated prefix is returned; shaders bound the loop with the LIGHT_COUNT
// constant so the rest of the buffer is never read.
//
// Parameters:
//   - lights: the full slice of lights (only enabled lights are included)
//
// Returns:
//   - []byte: the packed lights, len = count * GPULightSize
func MarshalLightBuffer(lights []Light) []byte {
	enabled := Enabled(lights)
	buf := make([]byte, 0, len(enabled)*GPULightSize)
	for _, l := range enabled {
		g := ToGPULight(l)
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
