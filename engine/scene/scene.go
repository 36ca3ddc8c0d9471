// Package scene holds the structural data a renderer draws: primitives, materials, textures,
// render objects, lights and the context singletons (camera, environment, ray tracing and
// light volume components) reached through typed accessors. The renderer never changes the
// topology of a scene; it only attaches and detaches the components it owns.
package scene

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// RenderObject places one primitive with one material in the world.
type RenderObject struct {
	PrimitiveIndex uint32
	MaterialIndex  uint32
	Transform      mgl32.Mat4
}

// RenderComponent exposes the per-scene GPU buffers a renderer owns and binds into the scene
// while it is registered.
type RenderComponent interface {
	// LightBuffer returns the uniform buffer holding the light records.
	LightBuffer() gpu.Buffer

	// MaterialBuffer returns the storage buffer holding one record per material.
	MaterialBuffer() gpu.Buffer

	// FrameBuffers returns the camera uniform buffers, one per swapchain image.
	FrameBuffers() []gpu.Buffer
}

// Scene is static structural scene data. It is read and mutated only from the render goroutine.
type Scene struct {
	name string

	meshes     []*Mesh
	primitives []*Primitive
	materials  []Material
	objects    []RenderObject
	lights     []light.Light

	textureData    []common.TextureData
	textures       *Texture
	textureSampler gpu.Sampler

	cam         camera.Camera
	environment *Environment

	volume      *light.Volume
	lightVolume *LightVolumeComponent
	rayTracing  *RayTracingComponent
	render      RenderComponent

	// computePool builds bottom-level acceleration structures in parallel. Workers persist for
	// the life of the scene.
	computePool    worker.DynamicWorkerPool
	computeWorkers int

	uploaded bool
}

// NewScene creates a scene from the given options. GPU resources are created by Upload.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options populating the scene
//
// Returns:
//   - *Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) *Scene {
	s := &Scene{
		name:           name,
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}

	// Initialize the compute pool after options so WithComputeWorkers can override the default.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	return s
}

// Name returns the scene's identifier.
func (s *Scene) Name() string {
	return s.name
}

// Camera returns the scene camera, or nil before EnsureDefaults when none was given.
func (s *Scene) Camera() camera.Camera {
	return s.cam
}

// SetCamera replaces the scene camera.
func (s *Scene) SetCamera(cam camera.Camera) {
	s.cam = cam
}

// Environment returns the image-based lighting of the scene, or nil when none was given.
func (s *Scene) Environment() *Environment {
	return s.environment
}

// SetEnvironment replaces the environment. The caller releases the previous one.
func (s *Scene) SetEnvironment(env *Environment) {
	s.environment = env
}

// RayTracing returns the acceleration structures of the scene while a ray tracing renderer
// has it registered.
//
// Returns:
//   - *RayTracingComponent: the component, or nil
//   - bool: whether the component is present
func (s *Scene) RayTracing() (*RayTracingComponent, bool) {
	return s.rayTracing, s.rayTracing != nil
}

// SetRayTracing attaches or, with nil, detaches the ray tracing component.
func (s *Scene) SetRayTracing(c *RayTracingComponent) {
	s.rayTracing = c
}

// LightVolume returns the uploaded light volume, present only when the scene was given one.
//
// Returns:
//   - *LightVolumeComponent: the component, or nil
//   - bool: whether the component is present
func (s *Scene) LightVolume() (*LightVolumeComponent, bool) {
	return s.lightVolume, s.lightVolume != nil
}

// BakeLightVolume replaces the light volume coefficients with radiance captured by src at
// every probe, using the clip planes of the scene camera or of a default one.
//
// Parameters:
//   - dev: the device the scene was uploaded to
//   - src: renders the radiance seen from a point
//
// Returns:
//   - error: ErrNoLightVolume before Upload or without a volume, or the capture error
func (s *Scene) BakeLightVolume(dev gpu.Device, src RadianceSource) error {
	if s.lightVolume == nil {
		return ErrNoLightVolume
	}
	cam := s.cam
	if cam == nil {
		cam = camera.NewCamera()
	}
	return s.lightVolume.Bake(dev, src, cam.State())
}

// RenderComponent returns the renderer buffers bound into the scene, or nil when unregistered.
func (s *Scene) RenderComponent() RenderComponent {
	return s.render
}

// SetRenderComponent binds or, with nil, unbinds the renderer buffers.
func (s *Scene) SetRenderComponent(c RenderComponent) {
	s.render = c
}

// RenderObjects returns the render objects in scene order. The slice is shared.
func (s *Scene) RenderObjects() []RenderObject {
	return s.objects
}

// SetTransform moves a render object.
//
// Parameters:
//   - index: the render object index
//   - transform: the new object to world transform
func (s *Scene) SetTransform(index int, transform mgl32.Mat4) {
	s.objects[index].Transform = transform
}

// Lights returns the scene lights.
func (s *Scene) Lights() []light.Light {
	return s.lights
}

// Materials returns the materials in scene order.
func (s *Scene) Materials() []Material {
	return s.materials
}

// MaterialFlags returns the flags of the material a render object is drawn with.
func (s *Scene) MaterialFlags(obj RenderObject) MaterialFlags {
	return s.materials[obj.MaterialIndex].Flags
}

// Primitives returns the uploaded primitives, empty before Upload.
func (s *Scene) Primitives() []*Primitive {
	return s.primitives
}

// Textures returns the scene texture array and its sampler, nil before Upload.
func (s *Scene) Textures() (*Texture, gpu.Sampler) {
	return s.textures, s.textureSampler
}

// EnsureDefaults adds a default camera and environment when the scene has none.
func (s *Scene) EnsureDefaults() {
	if s.cam == nil {
		s.cam = camera.NewCamera()
	}
	if s.environment == nil {
		s.environment = DefaultEnvironment()
	}
}

// Uploaded reports whether Upload completed.
func (s *Scene) Uploaded() bool {
	return s.uploaded
}

// Upload validates the scene and creates its GPU resources: primitive buffers, the texture
// array, the environment images and the light volume buffers. Uploading twice is a no-op.
//
// Parameters:
//   - dev: the device that owns the resources
//
// Returns:
//   - error: an error if the scene is inconsistent or allocation failed; nothing is left
//     allocated on error
func (s *Scene) Upload(dev gpu.Device) (err error) {
	if s.uploaded {
		return nil
	}
	if err := s.validate(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.releaseResources()
		}
	}()

	for _, mesh := range s.meshes {
		prim, err := NewPrimitive(dev, mesh)
		if err != nil {
			return err
		}
		s.primitives = append(s.primitives, prim)
	}

	array, err := PackTextureArray(s.textureData)
	if err != nil {
		return err
	}
	if s.textures, err = NewTexture(dev, s.name+" Textures", array, gpu.ViewDimension2DArray); err != nil {
		return err
	}
	if s.textureSampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: s.name + " Texture Sampler", Filter: gpu.FilterModeLinear, Address: gpu.AddressModeRepeat}); err != nil {
		return fmt.Errorf("scene: texture sampler: %w", err)
	}

	if s.environment != nil {
		if err := s.environment.Upload(dev); err != nil {
			return err
		}
	}

	if s.volume != nil {
		if s.volume.Unlit() && s.environment != nil {
			s.volume.SetUniformCoefficients(s.environment.Irradiance)
		}
		if s.lightVolume, err = NewLightVolumeComponent(dev, s.volume); err != nil {
			return err
		}
	}

	s.uploaded = true
	common.Logger().Debug("scene uploaded", "scene", s.name, "primitives", len(s.primitives),
		"materials", len(s.materials), "objects", len(s.objects), "textures", len(s.textureData))
	return nil
}

func (s *Scene) validate() error {
	for i, obj := range s.objects {
		if int(obj.PrimitiveIndex) >= len(s.meshes) {
			return fmt.Errorf("scene: render object %d references primitive %d of %d", i, obj.PrimitiveIndex, len(s.meshes))
		}
		if int(obj.MaterialIndex) >= len(s.materials) {
			return fmt.Errorf("scene: render object %d references material %d of %d", i, obj.MaterialIndex, len(s.materials))
		}
	}
	for i, m := range s.materials {
		for _, tex := range []int32{m.BaseColorTexture, m.RoughnessMetallicTexture, m.NormalTexture, m.OcclusionTexture, m.EmissionTexture} {
			if tex != NoTexture && (tex < 0 || int(tex) >= len(s.textureData)) {
				return fmt.Errorf("scene: material %d (%s) references texture %d of %d", i, m.Name, tex, len(s.textureData))
			}
		}
	}
	return nil
}

// Release destroys every GPU resource the scene created or was handed, including an attached
// ray tracing component.
func (s *Scene) Release() {
	if s.rayTracing != nil {
		s.rayTracing.Release()
		s.rayTracing = nil
	}
	s.releaseResources()
	s.uploaded = false
}

func (s *Scene) releaseResources() {
	for _, p := range s.primitives {
		p.Release()
	}
	s.primitives = nil
	if s.textures != nil {
		s.textures.Release()
		s.textures = nil
	}
	if s.textureSampler != nil {
		s.textureSampler.Release()
		s.textureSampler = nil
	}
	if s.environment != nil {
		s.environment.Release()
	}
	if s.lightVolume != nil {
		s.lightVolume.Release()
		s.lightVolume = nil
	}
}
