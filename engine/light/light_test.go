package light

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFloat(buf []byte, index int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[index*4:]))
}

func TestToGPULightEncodesType(t *testing.T) {
	sun := NewLight(LightTypeDirectional, WithDirection(mgl32.Vec3{0, -2, 0}), WithColor(mgl32.Vec3{1, 0.5, 0}), WithIntensity(2))
	bulb := NewLight(LightTypePoint, WithPosition(mgl32.Vec3{1, 2, 3}), WithRange(7))

	g := ToGPULight(sun)
	assert.Equal(t, mgl32.Vec4{0, 1, 0, 0}, g.Location)
	assert.Equal(t, mgl32.Vec4{2, 1, 0, 10}, g.Color)

	g = ToGPULight(bulb)
	assert.Equal(t, mgl32.Vec4{1, 2, 3, 1}, g.Location)
	assert.Equal(t, float32(7), g.Color[3])
}

func TestMarshalLightBufferSkipsDisabled(t *testing.T) {
	lights := []Light{
		NewLight(LightTypePoint, WithPosition(mgl32.Vec3{1, 0, 0})),
		NewLight(LightTypePoint, WithEnabled(false)),
		NewLight(LightTypeDirectional),
	}

	buf := MarshalLightBuffer(lights)
	require.Len(t, buf, 2*GPULightSize)
	assert.Equal(t, float32(1), readFloat(buf, 0))
	assert.Equal(t, float32(1), readFloat(buf, 3), "first record is the point light")
	assert.Equal(t, float32(0), readFloat(buf, 8+3), "second record is the directional light")

	assert.Equal(t, uint32(1), CountByType(lights, LightTypePoint))
	assert.Equal(t, uint32(1), CountByType(lights, LightTypeDirectional))
}

func TestMarshalLightBufferTruncates(t *testing.T) {
	lights := make([]Light, MaxLightCount+5)
	for i := range lights {
		lights[i] = NewLight(LightTypePoint)
	}
	assert.Len(t, MarshalLightBuffer(lights), LightBufferSize)
}

func TestGridVolumeSingleCell(t *testing.T) {
	v, err := GridVolume(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, [3]int{2, 2, 2})
	require.NoError(t, err)

	assert.Len(t, v.Positions, 8)
	require.Len(t, v.Tetrahedra, 6)
	assert.Len(t, v.Coefficients, 8)

	linked := 0
	for _, tet := range v.Tetrahedra {
		for _, n := range tet.Neighbors {
			if n >= 0 {
				linked++
			}
		}
		b := tet.Barycentric(v.Positions[tet.Vertices[0]])
		assert.InDelta(t, 1, b[0], 1e-5)
		assert.InDelta(t, 0, b[3], 1e-5)
	}
	// Six tetrahedra around one diagonal share two faces each.
	assert.Equal(t, 12, linked)

	assert.GreaterOrEqual(t, v.Locate(mgl32.Vec3{0.2, 0.5, 0.7}), 0)
	assert.Equal(t, -1, v.Locate(mgl32.Vec3{2, 2, 2}))
}

func TestGridVolumeRejectsDegenerate(t *testing.T) {
	_, err := GridVolume(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, [3]int{1, 2, 2})
	assert.ErrorIs(t, err, ErrInvalidVolume)

	_, err = GridVolume(mgl32.Vec3{}, mgl32.Vec3{1, 0, 1}, [3]int{2, 2, 2})
	assert.ErrorIs(t, err, ErrInvalidVolume)
}

func TestVolumeMarshalSizes(t *testing.T) {
	v, err := GridVolume(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, [3]int{3, 2, 2})
	require.NoError(t, err)

	assert.Len(t, v.MarshalPositions(), len(v.Positions)*16)
	assert.Len(t, v.MarshalTetrahedra(), len(v.Tetrahedra)*GPUTetrahedronSize)
	assert.Len(t, v.MarshalCoefficients(), len(v.Positions)*CoefficientCount*16)
}

func TestProjectCubemapConstantRadiance(t *testing.T) {
	tex := common.TextureData{Width: 8, Height: 8, Layers: 6, Pixels: make([]byte, 6*8*8*4)}
	for i := range tex.Pixels {
		tex.Pixels[i] = 255
	}

	sh, err := ProjectCubemap(tex)
	require.NoError(t, err)

	// A constant unit radiance only has a DC term of Y00 * 4 pi.
	assert.InDelta(t, 0.282095*4*math.Pi, sh[0][0], 1e-3)
	for i := 1; i < CoefficientCount; i++ {
		assert.InDelta(t, 0, sh[i][0], 1e-3, "coefficient %d", i)
	}

	// A white Lambertian surface under uniform unit radiance reflects unit radiance.
	for _, n := range []mgl32.Vec3{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}} {
		assert.InDelta(t, 1, sh.Irradiance(n)[1], 1e-2)
	}

	_, err = ProjectCubemap(common.SolidTexture(1, 2, 3, 4))
	assert.ErrorIs(t, err, ErrInvalidVolume)
}

func TestProjectRadianceFollowsDirection(t *testing.T) {
	const size = 4
	cube := RadianceCube{Size: size, Texels: make([]mgl32.Vec3, 6*size*size)}
	// only the +Y face is lit
	for i := 2 * size * size; i < 3*size*size; i++ {
		cube.Texels[i] = mgl32.Vec3{2, 2, 2}
	}

	sh, err := ProjectRadiance(cube)
	require.NoError(t, err)
	up := sh.Irradiance(mgl32.Vec3{0, 1, 0})
	down := sh.Irradiance(mgl32.Vec3{0, -1, 0})
	assert.Greater(t, up[0], down[0]+0.5)

	_, err = ProjectRadiance(RadianceCube{Size: size, Texels: cube.Texels[1:]})
	assert.ErrorIs(t, err, ErrInvalidVolume)
}

func TestDecodeRadianceRGBA16F(t *testing.T) {
	var data []byte
	for range 6 {
		// one texel per face: r = 1, g = 2, b = 0.5, a = 1
		for _, h := range []uint16{0x3c00, 0x4000, 0x3800, 0x3c00} {
			data = binary.LittleEndian.AppendUint16(data, h)
		}
	}

	cube, err := DecodeRadianceRGBA16F(1, data)
	require.NoError(t, err)
	require.Len(t, cube.Texels, 6)
	assert.Equal(t, mgl32.Vec3{1, 2, 0.5}, cube.Texels[5])

	_, err = DecodeRadianceRGBA16F(2, data)
	assert.ErrorIs(t, err, ErrInvalidVolume)
}
