package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

const (
	irradianceFaceSize = 16
	specularBRDFSize   = 32
)

// Texture is an uploaded image and the view shaders sample it through.
type Texture struct {
	Image gpu.Image
	View  gpu.ImageView
}

// NewTexture uploads RGBA8 texel data into a new sampled image.
//
// Parameters:
//   - dev: the device that owns the image
//   - label: debug label
//   - data: the texels of every layer
//   - dim: the view dimension, ViewDimensionCube requires six layers
//
// Returns:
//   - *Texture: the uploaded texture
//   - error: an error if the data is malformed or allocation failed
func NewTexture(dev gpu.Device, label string, data common.TextureData, dim gpu.ViewDimension) (*Texture, error) {
	layers := max(data.Layers, 1)
	if want := int(data.Width * data.Height * layers * 4); want == 0 || len(data.Pixels) != want {
		return nil, fmt.Errorf("scene: texture %q has %d bytes for %dx%dx%d texels", label, len(data.Pixels), data.Width, data.Height, layers)
	}
	if dim == gpu.ViewDimensionCube && layers != 6 {
		return nil, fmt.Errorf("scene: cube texture %q has %d layers", label, layers)
	}

	img, err := dev.CreateImage(gpu.ImageDesc{
		Label:  label,
		Extent: gpu.Extent2D{Width: data.Width, Height: data.Height},
		Layers: layers,
		Format: gpu.FormatRGBA8Unorm,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return nil, fmt.Errorf("scene: texture %q: %w", label, err)
	}
	dev.WriteImage(img, data.Pixels)

	view, err := dev.CreateImageView(img, gpu.ViewDesc{Label: label + "View", Dimension: dim})
	if err != nil {
		img.Release()
		return nil, fmt.Errorf("scene: texture %q view: %w", label, err)
	}
	return &Texture{Image: img, View: view}, nil
}

// Release destroys the view and its image.
func (t *Texture) Release() {
	t.View.Release()
	t.Image.Release()
}

// PackTextureArray resamples textures to the size of the largest one and stacks them as the
// layers of one array texture. An empty list yields a single white layer.
//
// Parameters:
//   - textures: single-layer RGBA8 textures
//
// Returns:
//   - common.TextureData: the array texture
//   - error: an error if a texture is not a single well-formed layer
func PackTextureArray(textures []common.TextureData) (common.TextureData, error) {
	if len(textures) == 0 {
		return common.SolidTexture(255, 255, 255, 255), nil
	}
	var width, height uint32
	for i, t := range textures {
		if max(t.Layers, 1) != 1 || len(t.Pixels) != int(t.Width*t.Height*4) || t.Width == 0 || t.Height == 0 {
			return common.TextureData{}, fmt.Errorf("scene: texture %d is not a single RGBA8 layer", i)
		}
		width, height = max(width, t.Width), max(height, t.Height)
	}

	out := common.TextureData{Width: width, Height: height, Layers: uint32(len(textures))}
	out.Pixels = make([]byte, 0, int(width*height*4)*len(textures))
	for _, t := range textures {
		for y := range height {
			sy := y * t.Height / height
			for x := range width {
				sx := x * t.Width / width
				i := (sy*t.Width + sx) * 4
				out.Pixels = append(out.Pixels, t.Pixels[i:i+4]...)
			}
		}
	}
	return out, nil
}

// Environment is the image-based lighting of a scene: the sky cubemap, its diffuse irradiance,
// a prefiltered reflection cubemap and the split-sum specular BRDF table.
type Environment struct {
	// Source is the sky cubemap.
	Source common.TextureData
	// Irradiance is the spherical harmonic projection of Source.
	Irradiance light.SH9

	EnvironmentMap *Texture
	IrradianceMap  *Texture
	ReflectionMap  *Texture
	SpecularBRDF   *Texture
	Sampler        gpu.Sampler
}

// NewEnvironment creates an environment from a cubemap.
//
// Parameters:
//   - source: a six-layer square RGBA8 cubemap
//
// Returns:
//   - *Environment: the environment, not yet uploaded
//   - error: an error if source is not a cubemap
func NewEnvironment(source common.TextureData) (*Environment, error) {
	sh, err := light.ProjectCubemap(source)
	if err != nil {
		return nil, fmt.Errorf("scene: environment: %w", err)
	}
	return &Environment{Source: source, Irradiance: sh}, nil
}

// DefaultEnvironment returns a procedural sky used when a scene has none.
func DefaultEnvironment() *Environment {
	env, err := NewEnvironment(common.GradientCubemap(32,
		mgl32.Vec3{0.25, 0.45, 0.85},
		mgl32.Vec3{0.75, 0.8, 0.9},
		mgl32.Vec3{0.2, 0.18, 0.16},
	))
	if err != nil {
		panic(err)
	}
	return env
}

// Uploaded reports whether the GPU images exist.
func (e *Environment) Uploaded() bool {
	return e.EnvironmentMap != nil
}

// Upload creates the environment images and sampler. Uploading twice is a no-op.
//
// Parameters:
//   - dev: the device that owns the images
//
// Returns:
//   - error: an error if any image could not be created; nothing is left allocated
func (e *Environment) Upload(dev gpu.Device) (err error) {
	if e.Uploaded() {
		return nil
	}
	defer func() {
		if err != nil {
			e.Release()
		}
	}()

	if e.EnvironmentMap, err = NewTexture(dev, "Environment Map", e.Source, gpu.ViewDimensionCube); err != nil {
		return err
	}
	if e.IrradianceMap, err = NewTexture(dev, "Irradiance Map", irradianceCubemap(e.Irradiance, irradianceFaceSize), gpu.ViewDimensionCube); err != nil {
		return err
	}
	if e.ReflectionMap, err = NewTexture(dev, "Reflection Map", downsampleCubemap(e.Source), gpu.ViewDimensionCube); err != nil {
		return err
	}
	if e.SpecularBRDF, err = NewTexture(dev, "Specular BRDF", SpecularBRDFTable(specularBRDFSize), gpu.ViewDimension2D); err != nil {
		return err
	}
	if e.Sampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: "Environment Sampler", Filter: gpu.FilterModeLinear, Address: gpu.AddressModeClampToEdge}); err != nil {
		return fmt.Errorf("scene: environment sampler: %w", err)
	}
	return nil
}

// Release destroys the uploaded images. The CPU data is kept so the environment can be
// uploaded again.
func (e *Environment) Release() {
	for _, t := range []**Texture{&e.EnvironmentMap, &e.IrradianceMap, &e.ReflectionMap, &e.SpecularBRDF} {
		if *t != nil {
			(*t).Release()
			*t = nil
		}
	}
	if e.Sampler != nil {
		e.Sampler.Release()
		e.Sampler = nil
	}
}

func irradianceCubemap(sh light.SH9, size uint32) common.TextureData {
	out := common.TextureData{Width: size, Height: size, Layers: 6, Pixels: make([]byte, 0, 6*size*size*4)}
	for face := range 6 {
		for y := range size {
			for x := range size {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				c := sh.Irradiance(common.CubeFaceDirection(face, u, v).Normalize())
				out.Pixels = append(out.Pixels, unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), 255)
			}
		}
	}
	return out
}

// downsampleCubemap box-filters each face to half resolution, stopping at one texel.
func downsampleCubemap(src common.TextureData) common.TextureData {
	if src.Width <= 1 {
		return src
	}
	size := src.Width / 2
	out := common.TextureData{Width: size, Height: size, Layers: 6, Pixels: make([]byte, 0, 6*size*size*4)}
	faceBytes := src.Width * src.Width * 4
	for face := range uint32(6) {
		base := face * faceBytes
		for y := range size {
			for x := range size {
				var sum [4]uint32
				for _, o := range [4][2]uint32{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
					i := base + ((2*y+o[1])*src.Width+2*x+o[0])*4
					for c := range 4 {
						sum[c] += uint32(src.Pixels[i+uint32(c)])
					}
				}
				out.Pixels = append(out.Pixels, uint8(sum[0]/4), uint8(sum[1]/4), uint8(sum[2]/4), uint8(sum[3]/4))
			}
		}
	}
	return out
}

// SpecularBRDFTable generates the split-sum scale (red) and bias (green) table indexed by
// NdotV along x and roughness along y, using the analytic fit for mobile hardware.
//
// Parameters:
//   - size: width and height of the table
//
// Returns:
//   - common.TextureData: the RGBA8 table
func SpecularBRDFTable(size uint32) common.TextureData {
	out := common.TextureData{Width: size, Height: size, Layers: 1, Pixels: make([]byte, 0, size*size*4)}
	c0 := mgl32.Vec4{-1, -0.0275, -0.572, 0.022}
	c1 := mgl32.Vec4{1, 0.0425, 1.04, -0.04}
	for y := range size {
		roughness := (float32(y) + 0.5) / float32(size)
		r := c0.Mul(roughness).Add(c1)
		for x := range size {
			nv := (float32(x) + 0.5) / float32(size)
			a004 := math32.Min(r[0]*r[0], math32.Exp2(-9.28*nv))*r[0] + r[1]
			scale := -1.04*a004 + r[2]
			bias := 1.04*a004 + r[3]
			out.Pixels = append(out.Pixels, unorm8(scale), unorm8(bias), 0, 255)
		}
	}
	return out
}

func unorm8(v float32) uint8 {
	return uint8(math32.Round(mgl32.Clamp(v, 0, 1) * 255))
}
