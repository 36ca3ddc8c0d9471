// Package renderer drives the render graph for one scene: it owns the per-scene GPU buffers,
// the hybrid stages and the optional path tracer, and records them into the frame loop's
// command buffer.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pathtracing"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/stage"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/swapchain"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// RenderMode selects which stages draw a frame.
type RenderMode int

const (
	// RenderModeHybrid runs the G-buffer, lighting and forward stages.
	RenderModeHybrid RenderMode = iota
	// RenderModePathTracing runs the progressive path tracer alone.
	RenderModePathTracing
)

func (m RenderMode) String() string {
	switch m {
	case RenderModeHybrid:
		return "hybrid"
	case RenderModePathTracing:
		return "path_tracing"
	default:
		return fmt.Sprintf("RenderMode(%d)", int(m))
	}
}

// ParseRenderMode returns the mode named by s, as written in the configuration.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "hybrid":
		return RenderModeHybrid, nil
	case "path_tracing":
		return RenderModePathTracing, nil
	default:
		return 0, fmt.Errorf("renderer: unknown render mode %q", s)
	}
}

// ErrNoPathTracer is returned when path tracing is requested from a renderer built without it.
var ErrNoPathTracer = errors.New("renderer: path tracing is not available")

// sceneRenderer is the implementation of the SceneRenderer interface.
type sceneRenderer struct {
	mu *sync.Mutex

	dev       gpu.Device
	shaders   *shader.Manager
	swapchain *swapchain.Swapchain

	// Pre-creation config collected from builder options
	mode               RenderMode
	rayTracing         bool
	lightingTile       [2]uint32
	pathTracingOptions []pathtracing.RendererOption
	bus                *event.Bus

	component  *RenderSceneComponent
	gbuffer    *stage.GBufferStage
	lighting   *stage.LightingStage
	forward    *stage.ForwardStage
	pathTracer *pathtracing.Renderer

	scene *scene.Scene
	subs  []event.Subscription

	// Requests queued by event handlers and applied between frames.
	reloadRequested bool
	toggleRequested bool
}

// SceneRenderer records the render graph of one registered scene into a frame's command
// buffer. It owns the RenderSceneComponent bound into the scene, the hybrid stages and, on
// devices with ray tracing, the path tracer.
type SceneRenderer interface {
	// RegisterScene binds the renderer's buffers into the scene, generates its acceleration
	// structures when ray tracing is enabled and registers the scene with every stage. A
	// different registered scene is removed first.
	//
	// Parameters:
	//   - s: an uploaded scene
	//
	// Returns:
	//   - error: an error if a stage could not build the scene; the renderer is left without one
	RegisterScene(s *scene.Scene) error

	// RemoveScene unregisters the scene from every stage and detaches the renderer's
	// components from it. Does nothing without a scene.
	RemoveScene()

	// Scene returns the registered scene, or nil.
	Scene() *scene.Scene

	// Component returns the per-scene buffers owned by the renderer.
	//
	// Returns:
	//   - *RenderSceneComponent: the buffers and their dirty flags
	Component() *RenderSceneComponent

	// Mode returns the active render mode.
	Mode() RenderMode

	// SetMode switches the stages that draw the next frame.
	//
	// Parameters:
	//   - mode: the new mode
	//
	// Returns:
	//   - error: ErrNoPathTracer when path tracing is requested but unavailable
	SetMode(mode RenderMode) error

	// Stages returns the stages of the active mode in execution order.
	Stages() []stage.Stage

	// PathTracer returns the path tracer, or nil when ray tracing is disabled.
	PathTracer() *pathtracing.Renderer

	// Render uploads the frame data of imageIndex and records the active stages.
	//
	// Parameters:
	//   - cmd: a recording command buffer
	//   - imageIndex: the acquired swapchain image
	Render(cmd gpu.CommandBuffer, imageIndex uint32)

	// Resize waits for the device, recreates the swapchain at extent and resizes the stages,
	// G-buffer first. A zero extent is ignored.
	//
	// Parameters:
	//   - extent: the new drawable extent
	//
	// Returns:
	//   - error: an error if the swapchain or a stage could not be recreated
	Resize(extent gpu.Extent2D) error

	// ReloadShaders waits for the device and rebuilds every stage's pipelines. Stages whose
	// shaders fail to build keep their previous pipelines.
	//
	// Returns:
	//   - error: an error if waiting for the device failed
	ReloadShaders() error

	// ApplyRequests applies the mode toggles and shader reloads queued by input events.
	// Called between frames.
	//
	// Returns:
	//   - error: an error if a queued reload could not wait for the device
	ApplyRequests() error

	// Release removes the scene, destroys the stages and the per-scene buffers and drops the
	// event subscriptions.
	Release()
}

var _ SceneRenderer = &sceneRenderer{}

// NewSceneRenderer creates the hybrid stages for the swapchain and, when ray tracing is both
// requested and supported, the path tracer.
//
// Parameters:
//   - dev: the device
//   - shaders: the shader manager shared by the stages
//   - sc: the swapchain the stages render into
//   - options: functional options
//
// Returns:
//   - SceneRenderer: the renderer, without a scene
//   - error: an error if a stage could not be created or the stages disagree on image layouts
func NewSceneRenderer(dev gpu.Device, shaders *shader.Manager, sc *swapchain.Swapchain, options ...SceneRendererBuilderOption) (SceneRenderer, error) {
	r := &sceneRenderer{
		mu:           &sync.Mutex{},
		dev:          dev,
		shaders:      shaders,
		swapchain:    sc,
		rayTracing:   true,
		lightingTile: stage.DefaultLightingTile,
	}
	for _, option := range options {
		option(r)
	}

	if err := r.create(); err != nil {
		r.releaseStages()
		return nil, err
	}

	if r.mode == RenderModePathTracing && r.pathTracer == nil {
		common.Logger().Warn("path tracing unavailable, falling back to hybrid rendering")
		r.mode = RenderModeHybrid
	}

	if r.bus != nil {
		r.subscribe(r.bus)
	}

	common.Logger().Info("scene renderer created", "mode", r.mode, "ray_tracing", r.pathTracer != nil,
		"extent", sc.Extent(), "images", sc.ImageCount())
	return r, nil
}

func (r *sceneRenderer) create() error {
	views := r.swapchain.Views()

	var err error
	if r.component, err = newRenderSceneComponent(r.dev, r.swapchain.ImageCount()); err != nil {
		return err
	}
	if r.gbuffer, err = stage.NewGBufferStage(r.dev, r.shaders, views); err != nil {
		return err
	}
	r.lighting = stage.NewLightingStage(r.dev, r.shaders, views, r.gbuffer, stage.WithWorkgroupTile(r.lightingTile))
	if r.forward, err = stage.NewForwardStage(r.dev, r.shaders, views, r.gbuffer); err != nil {
		return err
	}
	if err := stage.CheckContracts(r.gbuffer, r.lighting, r.forward); err != nil {
		return err
	}

	if r.rayTracing && r.dev.Capabilities().RayTracing {
		if r.pathTracer, err = pathtracing.NewRenderer(r.dev, r.shaders, views, r.pathTracingOptions...); err != nil {
			return err
		}
		if err := stage.CheckContracts(r.pathTracer); err != nil {
			return err
		}
	}
	return nil
}

// subscribe routes input and reload events to the renderer.
func (r *sceneRenderer) subscribe(bus *event.Bus) {
	r.subs = append(r.subs,
		event.Subscribe(bus, func(e event.KeyInput) {
			switch {
			case e.Pressed(common.KeyT):
				r.request(func() { r.toggleRequested = true })
			case e.Pressed(common.KeyR):
				r.request(func() { r.reloadRequested = true })
			}
		}),
		event.Subscribe(bus, func(event.ShaderReload) {
			r.request(func() { r.reloadRequested = true })
		}),
		event.Subscribe(bus, func(event.CameraUpdate) {
			if r.pathTracer != nil {
				r.pathTracer.Reset()
			}
		}),
	)
}

func (r *sceneRenderer) request(set func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set()
}

// hybrid returns the hybrid stages in execution order.
func (r *sceneRenderer) hybrid() []stage.Stage {
	return []stage.Stage{r.gbuffer, r.lighting, r.forward}
}

// all returns every stage in resize order.
func (r *sceneRenderer) all() []stage.Stage {
	stages := r.hybrid()
	if r.pathTracer != nil {
		stages = append(stages, r.pathTracer)
	}
	return stages
}

func (r *sceneRenderer) RegisterScene(s *scene.Scene) error {
	if r.scene == s {
		return nil
	}
	r.RemoveScene()

	if err := r.component.reserveMaterials(len(s.Materials())); err != nil {
		return err
	}
	s.SetRenderComponent(r.component)
	r.component.UpdateLightBuffer = true
	r.component.UpdateMaterialBuffer = true

	if r.pathTracer != nil {
		rt, err := s.GenerateTLAS(r.dev)
		if err != nil {
			s.SetRenderComponent(nil)
			return fmt.Errorf("renderer: acceleration structures for %s: %w", s.Name(), err)
		}
		s.SetRayTracing(rt)
	}

	if cam := s.Camera(); cam != nil {
		cam.SetAspect(r.swapchain.Extent().Aspect())
	}

	r.scene = s
	for _, st := range r.all() {
		if err := st.RegisterScene(s); err != nil {
			r.RemoveScene()
			return fmt.Errorf("renderer: register %s with %s: %w", s.Name(), st.Name(), err)
		}
	}

	common.Logger().Info("scene registered", "scene", s.Name(), "objects", len(s.RenderObjects()),
		"materials", len(s.Materials()), "lights", len(s.Lights()))
	return nil
}

func (r *sceneRenderer) RemoveScene() {
	s := r.scene
	if s == nil {
		return
	}
	for _, st := range r.all() {
		st.RemoveScene()
	}
	if rt, ok := s.RayTracing(); ok {
		rt.Release()
		s.SetRayTracing(nil)
	}
	s.SetRenderComponent(nil)
	r.scene = nil
	common.Logger().Info("scene removed", "scene", s.Name())
}

func (r *sceneRenderer) Scene() *scene.Scene {
	return r.scene
}

func (r *sceneRenderer) Component() *RenderSceneComponent {
	return r.component
}

func (r *sceneRenderer) Mode() RenderMode {
	return r.mode
}

func (r *sceneRenderer) SetMode(mode RenderMode) error {
	if mode == RenderModePathTracing && r.pathTracer == nil {
		return ErrNoPathTracer
	}
	if mode == r.mode {
		return nil
	}
	r.mode = mode
	if r.pathTracer != nil {
		r.pathTracer.Reset()
	}
	common.Logger().Info("render mode changed", "mode", mode)
	return nil
}

func (r *sceneRenderer) Stages() []stage.Stage {
	if r.mode == RenderModePathTracing {
		return []stage.Stage{r.pathTracer}
	}
	return r.hybrid()
}

func (r *sceneRenderer) PathTracer() *pathtracing.Renderer {
	return r.pathTracer
}

func (r *sceneRenderer) Render(cmd gpu.CommandBuffer, imageIndex uint32) {
	s := r.scene
	if s == nil {
		return
	}
	r.component.upload(s, imageIndex, r.swapchain.Extent())

	if rt, ok := s.RayTracing(); ok {
		cmd.BuildTopLevel(rt.TLAS, rt.Instances(s.RenderObjects()))
		cmd.PipelineBarrier(gpu.PipelineBarrier{Src: gpu.ScopeASBuild, Dst: gpu.ScopeASTrace})
	}

	for _, st := range r.Stages() {
		st.Execute(cmd, imageIndex)
	}
}

func (r *sceneRenderer) Resize(extent gpu.Extent2D) error {
	if extent.IsZero() {
		return nil
	}
	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("renderer: resize: %w", err)
	}
	if err := r.swapchain.Recreate(extent); err != nil {
		return err
	}
	if err := r.component.resizeFrames(r.swapchain.ImageCount()); err != nil {
		return err
	}

	views := r.swapchain.Views()
	for _, st := range r.all() {
		if err := st.Resize(views); err != nil {
			return fmt.Errorf("renderer: resize %s: %w", st.Name(), err)
		}
	}
	if r.scene != nil {
		if cam := r.scene.Camera(); cam != nil {
			cam.SetAspect(r.swapchain.Extent().Aspect())
		}
	}

	common.Logger().Info("renderer resized", "extent", r.swapchain.Extent(), "images", r.swapchain.ImageCount())
	return nil
}

func (r *sceneRenderer) ReloadShaders() error {
	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("renderer: shader reload: %w", err)
	}
	for _, st := range r.all() {
		st.ReloadShaders()
	}
	common.Logger().Info("shaders reloaded")
	return nil
}

func (r *sceneRenderer) ApplyRequests() error {
	r.mu.Lock()
	toggle, reload := r.toggleRequested, r.reloadRequested
	r.toggleRequested, r.reloadRequested = false, false
	r.mu.Unlock()

	if toggle {
		next := RenderModePathTracing
		if r.mode == RenderModePathTracing {
			next = RenderModeHybrid
		}
		if err := r.SetMode(next); err != nil {
			common.Logger().Warn("render mode not changed", "requested", next, "error", err)
		}
	}
	if reload {
		return r.ReloadShaders()
	}
	return nil
}

// releaseStages destroys whatever create built, in reverse order.
func (r *sceneRenderer) releaseStages() {
	if r.pathTracer != nil {
		r.pathTracer.Release()
		r.pathTracer = nil
	}
	if r.forward != nil {
		r.forward.Release()
		r.forward = nil
	}
	if r.lighting != nil {
		r.lighting.Release()
		r.lighting = nil
	}
	if r.gbuffer != nil {
		r.gbuffer.Release()
		r.gbuffer = nil
	}
	if r.component != nil {
		r.component.Release()
		r.component = nil
	}
}

func (r *sceneRenderer) Release() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
	r.RemoveScene()
	r.releaseStages()
}
