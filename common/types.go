// Package common contains plain data types and helpers shared by every engine package.
package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// TextureData holds RGBA8 pixel data pending GPU upload. Cubemaps store their six faces
// back to back in +X, -X, +Y, -Y, +Z, -Z order with Layers set to 6.
type TextureData struct {
	// Pixels is the tightly packed RGBA8 data for every layer.
	Pixels []byte
	// Width and Height are the dimensions of one layer in pixels.
	Width, Height uint32
	// Layers is the array layer count, 1 for plain 2D textures.
	Layers uint32
}

// SolidTexture returns a 1x1 texture of the given color.
func SolidTexture(r, g, b, a uint8) TextureData {
	return TextureData{Pixels: []byte{r, g, b, a}, Width: 1, Height: 1, Layers: 1}
}

// CheckerTexture returns a size x size checkerboard alternating between two colors every cell pixels.
//
// Parameters:
//   - size: width and height of the texture
//   - cell: checker cell size in pixels
//   - a, b: the two RGBA colors
//
// Returns:
//   - TextureData: the generated texture
func CheckerTexture(size, cell uint32, a, b [4]uint8) TextureData {
	pixels := make([]byte, 0, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			pixels = append(pixels, c[:]...)
		}
	}
	return TextureData{Pixels: pixels, Width: size, Height: size, Layers: 1}
}

// CubeFaceDirection returns the unnormalized world direction through texel coordinate
// (u, v) in [-1, 1] of the given cube face.
func CubeFaceDirection(face int, u, v float32) mgl32.Vec3 {
	switch face {
	case 0:
		return mgl32.Vec3{1, -v, -u}
	case 1:
		return mgl32.Vec3{-1, -v, u}
	case 2:
		return mgl32.Vec3{u, 1, v}
	case 3:
		return mgl32.Vec3{u, -1, -v}
	case 4:
		return mgl32.Vec3{u, -v, 1}
	default:
		return mgl32.Vec3{-u, -v, -1}
	}
}

// GradientCubemap generates a sky cubemap blending from ground to horizon to zenith
// by the elevation of each texel direction.
//
// Parameters:
//   - size: edge length of each face in pixels
//   - zenith, horizon, ground: linear RGB colors in [0, 1]
//
// Returns:
//   - TextureData: six-layer RGBA8 cubemap
func GradientCubemap(size uint32, zenith, horizon, ground mgl32.Vec3) TextureData {
	pixels := make([]byte, 0, 6*size*size*4)
	for face := 0; face < 6; face++ {
		for y := uint32(0); y < size; y++ {
			for x := uint32(0); x < size; x++ {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				elevation := CubeFaceDirection(face, u, v).Normalize().Y()

				var c mgl32.Vec3
				if elevation >= 0 {
					t := math32.Sqrt(elevation)
					c = horizon.Mul(1 - t).Add(zenith.Mul(t))
				} else {
					t := math32.Min(-elevation*4, 1)
					c = horizon.Mul(1 - t).Add(ground.Mul(t))
				}
				pixels = append(pixels, toUnorm8(c.X()), toUnorm8(c.Y()), toUnorm8(c.Z()), 255)
			}
		}
	}
	return TextureData{Pixels: pixels, Width: size, Height: size, Layers: 6}
}

func toUnorm8(v float32) uint8 {
	return uint8(math32.Round(mgl32.Clamp(v, 0, 1) * 255))
}
