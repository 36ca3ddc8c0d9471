package scene

import (
	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *Scene)

// WithMeshes appends meshes. Render objects reference them by index in the order added.
//
// Parameters:
//   - meshes: the meshes to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMeshes(meshes ...*Mesh) SceneBuilderOption {
	return func(s *Scene) {
		s.meshes = append(s.meshes, meshes...)
	}
}

// WithMaterials appends materials.
//
// Parameters:
//   - materials: the materials to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMaterials(materials ...Material) SceneBuilderOption {
	return func(s *Scene) {
		s.materials = append(s.materials, materials...)
	}
}

// WithTextures appends single-layer textures referenced by material texture indices.
func WithTextures(textures ...common.TextureData) SceneBuilderOption {
	return func(s *Scene) {
		s.textureData = append(s.textureData, textures...)
	}
}

// WithRenderObjects appends render objects.
func WithRenderObjects(objects ...RenderObject) SceneBuilderOption {
	return func(s *Scene) {
		s.objects = append(s.objects, objects...)
	}
}

// WithLights appends lights.
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *Scene) {
		s.lights = append(s.lights, lights...)
	}
}

// WithCamera sets the scene camera.
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *Scene) {
		s.cam = cam
	}
}

// WithEnvironment sets the image-based lighting of the scene.
func WithEnvironment(env *Environment) SceneBuilderOption {
	return func(s *Scene) {
		s.environment = env
	}
}

// WithLightVolume attaches a tetrahedral light volume. When every probe still has zero coefficients
// they are filled from the environment irradiance at upload.
//
// Parameters:
//   - vol: the light volume
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLightVolume(vol *light.Volume) SceneBuilderOption {
	return func(s *Scene) {
		s.volume = vol
	}
}

// WithComputeWorkers sets the number of worker goroutines that build bottom-level acceleration
// structures. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *Scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}
