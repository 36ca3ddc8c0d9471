package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/descriptor"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// Bundle holds everything a stage builds from shader sources for one scene: the shader
// modules, the pipelines and the descriptor provider created from the modules' bindings.
// Shader reloads build a new bundle and swap it in only when every part was created.
type Bundle struct {
	dev     gpu.Device
	shaders *shader.Manager

	modules   []*shader.Module
	pipelines []pipeline.Pipeline

	// Provider resolves the bindings of every module of the bundle.
	Provider descriptor.FrameDescriptorProvider
	// Materials holds the per-flags pipelines of a material stage.
	Materials *MaterialPipelines
}

// NewBundle creates an empty bundle.
func NewBundle(dev gpu.Device, shaders *shader.Manager) *Bundle {
	return &Bundle{dev: dev, shaders: shaders}
}

// Module compiles a shader module owned by the bundle.
//
// Parameters:
//   - stage: the shader stage
//   - path: the shader file
//   - defines: constants and switches
//   - spec: override values
//
// Returns:
//   - *shader.Module: the module, destroyed by Create or Release
//   - error: an error wrapping shader.ErrCompile
func (b *Bundle) Module(stage gpu.ShaderStage, path string, defines shader.Defines, spec shader.Specialization) (*shader.Module, error) {
	m, err := b.shaders.CreateShaderModule(stage, path, defines, spec)
	if err != nil {
		return nil, err
	}
	b.modules = append(b.modules, m)
	return m, nil
}

// Add registers a pipeline created by Create.
func (b *Bundle) Add(p pipeline.Pipeline) pipeline.Pipeline {
	b.pipelines = append(b.pipelines, p)
	return p
}

// Pipelines returns the pipelines of the bundle in the order they were added.
func (b *Bundle) Pipelines() []pipeline.Pipeline {
	return b.pipelines
}

// Create merges the bindings of the modules into a descriptor provider, creates every pipeline
// with its layouts and destroys the shader modules, which pipelines no longer need.
//
// Parameters:
//   - label: the provider's debug label
//   - imageCount: the number of per-image descriptor sets
//
// Returns:
//   - error: an error if the modules disagree on a binding or a GPU object failed
func (b *Bundle) Create(label string, imageCount uint32) error {
	bindings, err := shader.MergeBindings(b.modules...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if b.Provider, err = descriptor.NewFrameDescriptorProvider(b.dev, bindings, imageCount, descriptor.WithLabel(label)); err != nil {
		return err
	}
	for _, p := range b.pipelines {
		if err := p.Create(b.dev, b.Provider.Layouts()); err != nil {
			return err
		}
	}
	b.destroyModules()
	return nil
}

func (b *Bundle) destroyModules() {
	for _, m := range b.modules {
		b.shaders.DestroyShaderModule(m)
	}
	b.modules = nil
}

// Release destroys the pipelines, the remaining modules and the provider.
func (b *Bundle) Release() {
	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	b.destroyModules()
	if b.Provider != nil {
		b.Provider.Release()
		b.Provider = nil
	}
}

// Base implements the scene lifecycle shared by the stages. The owning stage supplies Build,
// which compiles the scene's shaders into a bundle, and Push, which binds the scene and extent
// dependent data to the bundle's provider. Both must be set before RegisterScene.
type Base struct {
	name    string
	dev     gpu.Device
	shaders *shader.Manager

	views  []gpu.ImageView
	extent gpu.Extent2D

	scene  *scene.Scene
	bundle *Bundle

	Build func(s *scene.Scene) (*Bundle, error)
	Push  func(b *Bundle) error
}

// NewBase creates the lifecycle of a stage rendering into views.
//
// Parameters:
//   - name: the stage name used in logs and errors
//   - dev: the device
//   - shaders: the shader manager bundles are compiled with
//   - views: the images the stage renders to, one per descriptor slice
//
// Returns:
//   - Base: the lifecycle, without a scene
func NewBase(name string, dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView) Base {
	return Base{
		name:    name,
		dev:     dev,
		shaders: shaders,
		views:   views,
		extent:  ExtentOf(views),
	}
}

func (b *Base) Name() string {
	return b.name
}

// Device returns the device the stage creates its resources on.
func (b *Base) Device() gpu.Device {
	return b.dev
}

// Shaders returns the shader manager.
func (b *Base) Shaders() *shader.Manager {
	return b.shaders
}

// Views returns the views the stage renders to.
func (b *Base) Views() []gpu.ImageView {
	return b.views
}

// Scene returns the registered scene, nil when none is registered.
func (b *Base) Scene() *scene.Scene {
	return b.scene
}

// Bundle returns the pipelines and descriptors built for the registered scene.
func (b *Base) Bundle() *Bundle {
	return b.bundle
}

// Extent returns the extent of the swapchain images the stage renders to.
func (b *Base) Extent() gpu.Extent2D {
	return b.extent
}

// Ready reports whether a scene is registered and its descriptor sets exist.
func (b *Base) Ready() bool {
	return b.scene != nil && b.bundle.Provider.Flushed()
}

// ImageCount returns the number of views, which is the number of descriptor slices.
func (b *Base) ImageCount() uint32 {
	return uint32(len(b.views))
}

// load builds and fills a bundle for s. Nothing is left allocated on error.
func (b *Base) load(s *scene.Scene) (*Bundle, error) {
	bundle, err := b.Build(s)
	if err != nil {
		if bundle != nil {
			bundle.Release()
		}
		return nil, err
	}

	prev := b.scene
	b.scene = s
	err = b.fill(bundle)
	b.scene = prev
	if err != nil {
		bundle.Release()
		return nil, err
	}
	return bundle, nil
}

// fill pushes the data of the current scene and extent and creates the descriptor sets.
func (b *Base) fill(bundle *Bundle) error {
	bundle.Provider.Clear()
	if err := b.Push(bundle); err != nil {
		return err
	}
	return bundle.Provider.FlushData()
}

func (b *Base) RegisterScene(s *scene.Scene) error {
	if s == nil {
		return fmt.Errorf("stage %s: register: %w", b.name, ErrNilScene)
	}
	if s == b.scene {
		return nil
	}
	b.RemoveScene()
	if err := checkScene(s); err != nil {
		return err
	}

	bundle, err := b.load(s)
	if err != nil {
		return fmt.Errorf("stage %s: register %s: %w", b.name, s.Name(), err)
	}
	b.scene = s
	b.bundle = bundle
	common.Logger().Debug("scene registered", "stage", b.name, "scene", s.Name(), "pipelines", len(bundle.pipelines))
	return nil
}

func (b *Base) RemoveScene() {
	if b.scene == nil {
		return
	}
	b.bundle.Release()
	common.Logger().Debug("scene removed", "stage", b.name, "scene", b.scene.Name())
	b.bundle = nil
	b.scene = nil
}

func (b *Base) ReloadShaders() {
	if b.scene == nil {
		return
	}
	bundle, err := b.load(b.scene)
	if err != nil {
		common.Logger().Warn("shader reload failed, keeping previous pipelines", "stage", b.name, "error", err)
		return
	}
	b.bundle.Release()
	b.bundle = bundle
	common.Logger().Info("shaders reloaded", "stage", b.name, "pipelines", len(bundle.pipelines))
}

// ResizeData stores the new views and refreshes the descriptor sets of a registered scene.
// A changed image count rebuilds the bundle since the provider is sized by it.
func (b *Base) ResizeData(views []gpu.ImageView) error {
	b.views = views
	b.extent = ExtentOf(views)
	if b.scene == nil {
		return nil
	}
	if b.bundle.Provider.ImageCount() == b.ImageCount() {
		if err := b.fill(b.bundle); err != nil {
			return fmt.Errorf("stage %s: resize: %w", b.name, err)
		}
		return nil
	}

	bundle, err := b.load(b.scene)
	if err != nil {
		return fmt.Errorf("stage %s: resize: %w", b.name, err)
	}
	b.bundle.Release()
	b.bundle = bundle
	return nil
}
