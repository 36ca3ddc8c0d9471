package scene

import (
	_ "embed"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// GPUMaterialSource is the canonical WGSL definition of the MaterialData struct and the
// material flag constants. Matches GPUMaterial layout exactly (80 bytes).
//
//go:embed assets/material.wgsl
var GPUMaterialSource string

// GPUMaterialSize is the byte size of one MaterialData record.
const GPUMaterialSize = 80

// NoTexture marks an unused texture slot of a material.
const NoTexture int32 = -1

// MaterialFlags selects the pipeline variant a material is drawn with.
type MaterialFlags uint32

const (
	MaterialDoubleSided MaterialFlags = 1 << iota
	MaterialAlphaTest
	MaterialAlphaBlend
	MaterialNormalMapping
)

var materialFlagNames = [...]string{"DOUBLE_SIDED", "ALPHA_TEST", "ALPHA_BLEND", "NORMAL_MAPPING"}

// Has reports whether every bit of other is set.
func (f MaterialFlags) Has(other MaterialFlags) bool {
	return f&other == other
}

func (f MaterialFlags) String() string {
	if f == 0 {
		return "OPAQUE"
	}
	var parts []string
	for i, name := range materialFlagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Defines returns the shader defines of a pipeline variant: one presence define per set flag.
//
// Returns:
//   - map[string]any: define names mapped to nil
func (f MaterialFlags) Defines() map[string]any {
	defines := make(map[string]any, len(materialFlagNames))
	for i, name := range materialFlagNames {
		if f&(1<<i) != 0 {
			defines[name] = nil
		}
	}
	return defines
}

// Material is the surface description of a render object. Texture fields index the scene
// texture array, NoTexture when unused.
type Material struct {
	Name  string
	Flags MaterialFlags

	BaseColorFactor mgl32.Vec4
	EmissionFactor  mgl32.Vec3

	BaseColorTexture         int32
	RoughnessMetallicTexture int32
	NormalTexture            int32
	OcclusionTexture         int32
	EmissionTexture          int32

	RoughnessFactor   float32
	MetallicFactor    float32
	NormalScale       float32
	OcclusionStrength float32
	AlphaCutoff       float32
}

// NewMaterial returns an untextured opaque material of the given color.
//
// Parameters:
//   - name: the material name
//   - baseColor: linear RGBA base color
//
// Returns:
//   - Material: the material with glTF default factors
func NewMaterial(name string, baseColor mgl32.Vec4) Material {
	return Material{
		Name:                     name,
		BaseColorFactor:          baseColor,
		BaseColorTexture:         NoTexture,
		RoughnessMetallicTexture: NoTexture,
		NormalTexture:            NoTexture,
		OcclusionTexture:         NoTexture,
		EmissionTexture:          NoTexture,
		RoughnessFactor:          1,
		MetallicFactor:           0,
		NormalScale:              1,
		OcclusionStrength:        1,
		AlphaCutoff:              0.5,
	}
}

// GPUMaterial is the GPU-aligned representation of a Material.
// Matches the WGSL MaterialData struct layout exactly (see GPUMaterialSource).
type GPUMaterial struct {
	BaseColorFactor mgl32.Vec4 // offset  0
	EmissionFactor  mgl32.Vec4 // offset 16: w unused

	BaseColorTexture         int32 // offset 32
	RoughnessMetallicTexture int32 // offset 36
	NormalTexture            int32 // offset 40
	OcclusionTexture         int32 // offset 44
	EmissionTexture          int32 // offset 48

	RoughnessFactor   float32 // offset 52
	MetallicFactor    float32 // offset 56
	NormalScale       float32 // offset 60
	OcclusionStrength float32 // offset 64
	AlphaCutoff       float32 // offset 68
	_                 [2]float32
}

// GPU converts the material to its buffer record.
func (m Material) GPU() GPUMaterial {
	return GPUMaterial{
		BaseColorFactor:          m.BaseColorFactor,
		EmissionFactor:           m.EmissionFactor.Vec4(0),
		BaseColorTexture:         m.BaseColorTexture,
		RoughnessMetallicTexture: m.RoughnessMetallicTexture,
		NormalTexture:            m.NormalTexture,
		OcclusionTexture:         m.OcclusionTexture,
		EmissionTexture:          m.EmissionTexture,
		RoughnessFactor:          m.RoughnessFactor,
		MetallicFactor:           m.MetallicFactor,
		NormalScale:              m.NormalScale,
		OcclusionStrength:        m.OcclusionStrength,
		AlphaCutoff:              m.AlphaCutoff,
	}
}

// Marshal serializes the GPUMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the 80-byte record
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, 0, GPUMaterialSize)
	buf = common.AppendVec4(buf, g.BaseColorFactor)
	buf = common.AppendVec4(buf, g.EmissionFactor)
	buf = common.AppendInt32(buf, g.BaseColorTexture, g.RoughnessMetallicTexture, g.NormalTexture, g.OcclusionTexture, g.EmissionTexture)
	buf = common.AppendFloat32(buf, g.RoughnessFactor, g.MetallicFactor, g.NormalScale, g.OcclusionStrength, g.AlphaCutoff)
	return common.PadTo(buf, 16)
}

// MarshalMaterialBuffer packs materials in scene order. An empty list yields one default
// record so the storage binding is never empty.
//
// Parameters:
//   - materials: the scene materials
//
// Returns:
//   - []byte: len(materials) * GPUMaterialSize bytes
func MarshalMaterialBuffer(materials []Material) []byte {
	if len(materials) == 0 {
		materials = []Material{NewMaterial("default", mgl32.Vec4{1, 1, 1, 1})}
	}
	buf := make([]byte, 0, len(materials)*GPUMaterialSize)
	for _, m := range materials {
		g := m.GPU()
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
