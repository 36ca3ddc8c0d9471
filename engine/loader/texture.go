package loader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// DefaultMaxTextureSize bounds the longest edge of an imported texture.
const DefaultMaxTextureSize = 1024

// decodeTexture decodes a PNG, JPEG or WebP image into straight-alpha RGBA8. Images whose
// longest edge exceeds maxSize are downscaled with a Catmull-Rom filter, keeping the aspect.
//
// Parameters:
//   - data: the encoded image
//   - maxSize: the longest allowed edge, 0 for no limit
//
// Returns:
//   - common.TextureData: a single-layer texture
//   - error: error if the image cannot be decoded
func decodeTexture(data []byte, maxSize uint32) (common.TextureData, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return common.TextureData{}, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitSize(uint32(b.Dx()), uint32(b.Dy()), maxSize)
	dst := image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))
	switch n, ok := src.(*image.NRGBA); {
	case ok && int(w) == b.Dx() && int(h) == b.Dy():
		// Straight copy; going through draw would round-trip premultiplied alpha.
		for y := range int(h) {
			off := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:], n.Pix[off:off+int(w)*4])
		}
	case int(w) == b.Dx() && int(h) == b.Dy():
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	default:
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		common.Logger().Debug("texture downscaled", "format", format, "from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), "to", fmt.Sprintf("%dx%d", w, h))
	}
	return common.TextureData{Pixels: dst.Pix, Width: w, Height: h, Layers: 1}, nil
}

// fitSize scales w x h down so neither edge exceeds limit. Edges never drop below one pixel.
func fitSize(w, h, limit uint32) (uint32, uint32) {
	if limit == 0 || (w <= limit && h <= limit) {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return limit, max(uint32(uint64(h)*uint64(limit)/uint64(w)), 1)
	}
	return max(uint32(uint64(w)*uint64(limit)/uint64(h)), 1), limit
}
