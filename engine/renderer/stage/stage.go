// Package stage implements the render graph of the hybrid renderer: the G-buffer fill, the
// deferred lighting compute pass and the forward pass that draws the sky and transparent
// geometry. Stages record commands only; the frame loop owns submission and presentation.
package stage

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/descriptor"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// Shader files of the stages, relative to the shader file system.
const (
	GBufferShader     = "gbuffer.wgsl"
	LightingShader    = "lighting.wgsl"
	ForwardShader     = "forward.wgsl"
	EnvironmentShader = "environment.wgsl"
	PathTracingShader = "pathtracing.wgsl"
)

// Binding names shared by several stages.
const (
	CameraBinding   = "camera"
	OutputBinding   = "output"
	MaterialBinding = "materials"
	TextureBinding  = "textures"
)

var (
	// ErrNoRenderComponent is returned when a scene is registered before a scene renderer
	// bound its buffers into it.
	ErrNoRenderComponent = errors.New("stage: scene has no render component")
	// ErrNilScene is returned when a nil scene is registered.
	ErrNilScene = errors.New("stage: nil scene")
	// ErrNotUploaded is returned when a scene is registered before its GPU resources exist.
	ErrNotUploaded = errors.New("stage: scene is not uploaded")
	// ErrContract reports two consecutive stages that disagree on the layout of the swapchain image.
	ErrContract = errors.New("stage: image layout contract broken")
)

// Stage is one node of the render graph.
//
// RegisterScene and RemoveScene are symmetric: everything RegisterScene creates is destroyed
// exactly once by RemoveScene, and both are idempotent. Execute only records commands.
type Stage interface {
	// Name returns the stage name used in logs and debug labels.
	Name() string

	// Contract returns the layouts the stage expects the swapchain image in on entry and
	// leaves it in on exit.
	Contract() ImageContract

	// RegisterScene builds the scene dependent pipelines and descriptor sets. A different
	// scene that is already registered is removed first.
	//
	// Parameters:
	//   - s: an uploaded scene with a render component
	//
	// Returns:
	//   - error: an error if a shader or GPU object could not be created; the stage is left
	//     without a scene
	RegisterScene(s *scene.Scene) error

	// RemoveScene destroys everything RegisterScene created. Does nothing without a scene.
	RemoveScene()

	// Resize recreates the extent dependent resources for new swapchain views.
	//
	// Parameters:
	//   - views: one view per swapchain image
	//
	// Returns:
	//   - error: an error if a resource could not be created
	Resize(views []gpu.ImageView) error

	// ReloadShaders rebuilds the pipelines from the current shader sources. A failed build is
	// logged and the previous pipelines are kept.
	ReloadShaders()

	// Execute records the stage into cmd for the given swapchain image.
	Execute(cmd gpu.CommandBuffer, imageIndex uint32)

	// Release removes the scene and destroys every resource of the stage.
	Release()
}

// ImageContract declares how a stage uses the swapchain image. The zero value marks a stage
// that does not touch it. An Entry of gpu.ImageLayoutUndefined accepts any layout and
// discards the contents.
type ImageContract struct {
	Entry gpu.ImageLayout
	Exit  gpu.ImageLayout
}

// Untouched reports whether the stage leaves the swapchain image alone.
func (c ImageContract) Untouched() bool {
	return c == ImageContract{}
}

// CheckContracts verifies that stages executed in order hand the swapchain image to each other
// in matching layouts, starting and ending in gpu.ImageLayoutPresentSrc.
//
// Parameters:
//   - stages: the stages in execution order
//
// Returns:
//   - error: an error wrapping ErrContract naming the first mismatch
func CheckContracts(stages ...Stage) error {
	layout := gpu.ImageLayoutPresentSrc
	for _, s := range stages {
		c := s.Contract()
		if c.Untouched() {
			continue
		}
		if c.Entry != gpu.ImageLayoutUndefined && c.Entry != layout {
			return fmt.Errorf("%w: %s expects %s, previous stage left %s", ErrContract, s.Name(), c.Entry, layout)
		}
		layout = c.Exit
	}
	if layout != gpu.ImageLayoutPresentSrc {
		return fmt.Errorf("%w: frame ends in %s", ErrContract, layout)
	}
	return nil
}

// ExtentOf returns the extent of the images behind views, zero without views.
func ExtentOf(views []gpu.ImageView) gpu.Extent2D {
	if len(views) == 0 {
		return gpu.Extent2D{}
	}
	return views[0].Image().Desc().Extent
}

// CameraData is a set of camera uniform buffers: one per swapchain image, or one per cube face
// for probe captures.
type CameraData struct {
	Buffers []gpu.Buffer
}

// NewCameraData creates count camera uniform buffers.
//
// Parameters:
//   - dev: the device that owns the buffers
//   - label: debug label prefix
//   - count: the number of buffers
//
// Returns:
//   - *CameraData: the buffers
//   - error: an error if a buffer could not be created; nothing is left allocated
func NewCameraData(dev gpu.Device, label string, count uint32) (*CameraData, error) {
	c := &CameraData{Buffers: make([]gpu.Buffer, 0, count)}
	for i := range count {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{
			Label: fmt.Sprintf("%s Camera %d", label, i),
			Size:  camera.GPUCameraUniformSize,
			Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			c.Release()
			return nil, fmt.Errorf("stage: %s camera buffer %d: %w", label, i, err)
		}
		c.Buffers = append(c.Buffers, buf)
	}
	return c, nil
}

// Write uploads the uniform of one buffer.
func (c *CameraData) Write(dev gpu.Device, index uint32, uniform camera.GPUCameraUniform) {
	dev.WriteBuffer(c.Buffers[index], 0, uniform.Marshal())
}

// Push binds buffer i to instance i of the named slice binding.
func (c *CameraData) Push(provider descriptor.FrameDescriptorProvider, name string) {
	for _, buf := range c.Buffers {
		provider.PushSliceData(name, buf)
	}
}

// Release destroys the buffers.
func (c *CameraData) Release() {
	for _, buf := range c.Buffers {
		buf.Release()
	}
	c.Buffers = nil
}

// PushFrameData binds the scene renderer's per-image camera buffers to the camera binding
// when the provider declares it.
//
// Parameters:
//   - provider: the stage's descriptor provider
//   - s: the registered scene
func PushFrameData(provider descriptor.FrameDescriptorProvider, s *scene.Scene) {
	if !provider.Has(CameraBinding) {
		return
	}
	for _, buf := range s.RenderComponent().FrameBuffers() {
		provider.PushSliceData(CameraBinding, buf)
	}
}

// PushMaterialData binds the material buffer and the scene texture array when the provider
// declares them.
func PushMaterialData(provider descriptor.FrameDescriptorProvider, s *scene.Scene) {
	if provider.Has(MaterialBinding) {
		provider.PushGlobalData(MaterialBinding, s.RenderComponent().MaterialBuffer())
	}
	if provider.Has(TextureBinding) {
		tex, sampler := s.Textures()
		provider.PushTexture(TextureBinding, tex.View, sampler)
	}
}

// PushEnvironmentData binds every scene lighting resource the provider declares: the light
// buffer, the image-based lighting textures, the sky cubemap, the top-level acceleration
// structure and the light volume buffers.
//
// Parameters:
//   - provider: the stage's descriptor provider
//   - s: the registered scene
func PushEnvironmentData(provider descriptor.FrameDescriptorProvider, s *scene.Scene) {
	if provider.Has("lights") {
		provider.PushGlobalData("lights", s.RenderComponent().LightBuffer())
	}

	if env := s.Environment(); env != nil {
		textures := []struct {
			name string
			tex  *scene.Texture
		}{
			{"environmentMap", env.EnvironmentMap},
			{"irradianceMap", env.IrradianceMap},
			{"reflectionMap", env.ReflectionMap},
			{"specularBRDF", env.SpecularBRDF},
		}
		for _, t := range textures {
			if provider.Has(t.name) {
				provider.PushTexture(t.name, t.tex.View, env.Sampler)
			}
		}
	}

	if rt, ok := s.RayTracing(); ok && provider.Has("tlas") {
		provider.PushGlobalData("tlas", rt.TLAS)
	}

	if vol, ok := s.LightVolume(); ok {
		for name, buf := range map[string]gpu.Buffer{
			"positions":    vol.Positions,
			"tetrahedral":  vol.Tetrahedral,
			"coefficients": vol.Coefficients,
		} {
			if provider.Has(name) {
				provider.PushGlobalData(name, buf)
			}
		}
	}
}

// SceneDefines returns the defines every scene lighting shader is compiled with: the
// RAY_TRACING_ENABLED and LIGHT_VOLUME_ENABLED switches when the scene has the components.
func SceneDefines(s *scene.Scene) shader.Defines {
	defines := shader.Defines{}
	if _, ok := s.RayTracing(); ok {
		defines["RAY_TRACING_ENABLED"] = nil
	}
	if _, ok := s.LightVolume(); ok {
		defines["LIGHT_VOLUME_ENABLED"] = nil
	}
	return defines
}

// checkScene returns an error if s cannot be registered.
func checkScene(s *scene.Scene) error {
	if !s.Uploaded() {
		return fmt.Errorf("%w: %s", ErrNotUploaded, s.Name())
	}
	if s.RenderComponent() == nil {
		return fmt.Errorf("%w: %s", ErrNoRenderComponent, s.Name())
	}
	return nil
}

// MaterialPipelines maps material flags to the pipeline drawing them. Flags lists the keys in
// the order their first material appears in the scene.
type MaterialPipelines struct {
	Flags     []scene.MaterialFlags
	Pipelines map[scene.MaterialFlags]pipeline.Pipeline
}

// Get returns the pipeline of the given flags, nil when none was created.
func (m *MaterialPipelines) Get(flags scene.MaterialFlags) pipeline.Pipeline {
	return m.Pipelines[flags]
}

// Len returns the number of pipelines.
func (m *MaterialPipelines) Len() int {
	return len(m.Flags)
}

// CreateMaterialPipelines creates one pipeline per distinct flags value among the materials
// accepted by pred.
//
// Parameters:
//   - materials: the scene materials
//   - pred: selects the flags the stage draws, nil accepts every material
//   - create: builds the pipeline of one flags value
//
// Returns:
//   - *MaterialPipelines: the pipelines, also returned with the pipelines built before a
//     failure so the caller can release them
//   - error: the first error returned by create
func CreateMaterialPipelines(materials []scene.Material, pred func(scene.MaterialFlags) bool, create func(scene.MaterialFlags) (pipeline.Pipeline, error)) (*MaterialPipelines, error) {
	out := &MaterialPipelines{Pipelines: make(map[scene.MaterialFlags]pipeline.Pipeline)}
	for _, m := range materials {
		if pred != nil && !pred(m.Flags) {
			continue
		}
		if _, ok := out.Pipelines[m.Flags]; ok {
			continue
		}
		p, err := create(m.Flags)
		if err != nil {
			return out, fmt.Errorf("material pipeline %s: %w", m.Flags, err)
		}
		out.Flags = append(out.Flags, m.Flags)
		out.Pipelines[m.Flags] = p
	}
	return out, nil
}
