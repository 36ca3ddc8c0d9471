package loader

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser

	// slots maps a glTF image index to its layer in the asset texture array.
	slots  map[int]int32
	images []int
}

// gltfMaterialExtractor converts glTF materials into scene materials. Texture references are
// renumbered into a dense list of referenced images, one texture array layer each.
type gltfMaterialExtractor interface {
	// ExtractMaterial converts one material, assigning texture slots to the images it uses.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - scene.Material: the converted material
	//   - error: error if the material or one of its textures is invalid
	ExtractMaterial(materialIndex int) (scene.Material, error)

	// Images returns the glTF image index of every assigned texture slot, in slot order.
	Images() []int
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

func newGLTFMaterialExtractor(parser gltfParser) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser, slots: make(map[int]int32)}
}

func (e *gltfMaterialExtractorImpl) Images() []int {
	return e.images
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (scene.Material, error) {
	doc := e.parser.Document()
	if doc == nil {
		return scene.Material{}, errors.New("no document loaded")
	}
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return scene.Material{}, fmt.Errorf("material index %d out of range", materialIndex)
	}
	src := &doc.Materials[materialIndex]

	name := common.Coalesce(src.Name, fmt.Sprintf("material_%d", materialIndex))
	m := scene.NewMaterial(name, mgl32.Vec4{1, 1, 1, 1})
	m.MetallicFactor = 1

	var err error
	if pbr := src.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			m.BaseColorFactor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			m.MetallicFactor = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			m.RoughnessFactor = *pbr.RoughnessFactor
		}
		if m.BaseColorTexture, err = e.slot(pbr.BaseColorTexture); err != nil {
			return scene.Material{}, fmt.Errorf("material %q: base color texture: %w", name, err)
		}
		if m.RoughnessMetallicTexture, err = e.slot(pbr.MetallicRoughnessTexture); err != nil {
			return scene.Material{}, fmt.Errorf("material %q: metallic-roughness texture: %w", name, err)
		}
	}

	if src.NormalTexture != nil {
		if m.NormalTexture, err = e.slot(&src.NormalTexture.gltfTextureInfo); err != nil {
			return scene.Material{}, fmt.Errorf("material %q: normal texture: %w", name, err)
		}
		if src.NormalTexture.Scale != nil {
			m.NormalScale = *src.NormalTexture.Scale
		}
		if m.NormalTexture != scene.NoTexture {
			m.Flags |= scene.MaterialNormalMapping
		}
	}
	if src.OcclusionTexture != nil {
		if m.OcclusionTexture, err = e.slot(&src.OcclusionTexture.gltfTextureInfo); err != nil {
			return scene.Material{}, fmt.Errorf("material %q: occlusion texture: %w", name, err)
		}
		if src.OcclusionTexture.Strength != nil {
			m.OcclusionStrength = *src.OcclusionTexture.Strength
		}
	}
	if m.EmissionTexture, err = e.slot(src.EmissiveTexture); err != nil {
		return scene.Material{}, fmt.Errorf("material %q: emissive texture: %w", name, err)
	}
	if src.EmissiveFactor != nil {
		m.EmissionFactor = *src.EmissiveFactor
	}
	if ext := src.Extensions.EmissiveStrength; ext != nil {
		m.EmissionFactor = m.EmissionFactor.Mul(ext.EmissiveStrength)
	}

	switch src.AlphaMode {
	case "", gltfAlphaOpaque:
	case gltfAlphaMask:
		m.Flags |= scene.MaterialAlphaTest
		if src.AlphaCutoff != nil {
			m.AlphaCutoff = *src.AlphaCutoff
		}
	case gltfAlphaBlend:
		m.Flags |= scene.MaterialAlphaBlend
	default:
		return scene.Material{}, fmt.Errorf("material %q: unknown alpha mode %q", name, src.AlphaMode)
	}
	if src.DoubleSided {
		m.Flags |= scene.MaterialDoubleSided
	}
	return m, nil
}

// slot resolves a texture reference to its array layer, assigning one on first use.
func (e *gltfMaterialExtractorImpl) slot(info *gltfTextureInfo) (int32, error) {
	if info == nil {
		return scene.NoTexture, nil
	}
	doc := e.parser.Document()
	if info.Index < 0 || info.Index >= len(doc.Textures) {
		return scene.NoTexture, fmt.Errorf("texture index %d out of range", info.Index)
	}
	if info.TexCoord != 0 {
		common.Logger().Warn("texture uses a secondary UV set, sampling TEXCOORD_0", "texture", info.Index, "texCoord", info.TexCoord)
	}

	tex := &doc.Textures[info.Index]
	var image int
	switch {
	case tex.Extensions.WebP != nil:
		image = tex.Extensions.WebP.Source
	case tex.Source != nil:
		image = *tex.Source
	default:
		return scene.NoTexture, nil
	}
	if image < 0 || image >= len(doc.Images) {
		return scene.NoTexture, fmt.Errorf("image index %d out of range", image)
	}

	if s, ok := e.slots[image]; ok {
		return s, nil
	}
	s := int32(len(e.images))
	e.slots[image] = s
	e.images = append(e.images, image)
	return s, nil
}
