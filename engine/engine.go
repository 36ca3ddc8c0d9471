// Package engine is the application context. It creates the window, device, swapchain, scene
// renderer and frame loop in order, drives frames from a single goroutine and tears everything
// down in reverse.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/config"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/profiler"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pathtracing"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/swapchain"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/window"
)

// ErrNoScene is returned by NewEngine when no scene was given.
var ErrNoScene = errors.New("engine: no scene")

// engine implements the Engine interface.
// Owns every subsystem it created and the order they are torn down in.
type engine struct {
	cfg config.Config

	bus    *event.Bus
	window window.Window

	dev       gpu.Device
	surface   gpu.Surface
	ownDevice bool
	ownWindow bool

	shaders   *shader.Manager
	swapchain *swapchain.Swapchain
	scene     *scene.Scene
	renderer  renderer.SceneRenderer
	loop      *frame.Loop
	system    *camera.System
	watcher   *shader.Watcher
	probe     *pathtracing.ProbeCapture

	profiler         *profiler.Profiler
	profilingEnabled bool

	subs []event.Subscription

	// Requests queued by bus handlers, applied between frames on the Run goroutine.
	resizePending  bool
	resizeExtent   gpu.Extent2D
	probeRequested bool
	bakeRequested  bool

	quit      chan struct{}
	quitOnce  sync.Once
	closeOnce sync.Once
}

// Engine is the main entry point for the renderer.
// It owns the window, the device and the frame loop of one scene.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Bus returns the event bus input, resize and reload events are published on.
	Bus() *event.Bus

	// Device returns the graphics device.
	Device() gpu.Device

	// Renderer returns the scene renderer.
	Renderer() renderer.SceneRenderer

	// Scene returns the rendered scene.
	Scene() *scene.Scene

	// Config returns the configuration the engine was created with.
	Config() config.Config

	// Profiler returns the frame statistics collector, or nil when profiling is disabled.
	Profiler() *profiler.Profiler

	// CaptureProbe traces the scene into the six faces of a cube probe at the camera position.
	// The probe is created on first use.
	//
	// Returns:
	//   - *pathtracing.ProbeCapture: the probe holding the captured faces
	//   - error: gpu.ErrUnsupported without ray tracing, or the capture error
	CaptureProbe() (*pathtracing.ProbeCapture, error)

	// BakeLightVolume captures the radiance at every light volume probe with the probe path
	// tracer and replaces the volume coefficients with its spherical harmonics projection.
	//
	// Returns:
	//   - error: gpu.ErrUnsupported without ray tracing, scene.ErrNoLightVolume when the scene
	//     has no volume, or the capture error
	BakeLightVolume() error

	// Run drives frames on the calling goroutine until the window closes, Quit is called or
	// ctx is cancelled. The OS thread is locked for the duration of the call.
	//
	// Parameters:
	//   - ctx: cancels the loop and any blocking fence wait
	//
	// Returns:
	//   - error: a fatal frame error such as device loss, or nil on a clean stop
	Run(ctx context.Context) error

	// Quit makes Run return after the current frame.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Close waits for the device and releases everything the engine created, in reverse
	// creation order. Safe to call multiple times.
	//
	// Returns:
	//   - error: the error closing the window, if any
	Close() error
}

var _ Engine = &engine{}

// NewEngine creates every subsystem in order: logger, window, device, shader manager,
// swapchain, scene upload, scene renderer, frame loop, camera system, shader watcher and
// profiler. Anything created before a failure is released again.
//
// Parameters:
//   - options: functional options; WithScene is required
//
// Returns:
//   - Engine: the ready engine
//   - error: ErrNoScene, config.ErrInvalid or the first creation error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		cfg:  config.Default(),
		quit: make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}

	if err := e.init(); err != nil {
		_ = e.Close()
		return nil, err
	}
	common.Logger().Info("engine ready",
		"mode", e.renderer.Mode(),
		"extent", e.swapchain.Extent(),
		"images", e.swapchain.ImageCount(),
		"ray_tracing", e.dev.Capabilities().RayTracing)
	return e, nil
}

func (e *engine) init() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if e.scene == nil {
		return ErrNoScene
	}
	level, err := e.cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if e.bus == nil {
		e.bus = event.NewBus()
	}
	if e.window == nil {
		w, err := window.NewWindow(
			window.WithTitle(e.cfg.Window.Title),
			window.WithSize(e.cfg.Window.Width, e.cfg.Window.Height),
			window.WithEventBus(e.bus),
		)
		if err != nil {
			return fmt.Errorf("engine: window: %w", err)
		}
		e.window = w
		e.ownWindow = true
	}

	if e.dev == nil {
		dev, err := backend.NewDevice(e.window.SurfaceDescriptor(),
			backend.WithLabel(e.cfg.Window.Title),
			backend.WithSoftwareRayTracing(e.cfg.Render.RayTracing),
		)
		if err != nil {
			return fmt.Errorf("engine: device: %w", err)
		}
		e.dev = dev
		e.surface = dev.Surface()
		e.ownDevice = true
	}

	e.shaders = shader.NewManager(e.dev, e.shaderSource(), e.shaderOptions()...)

	if e.swapchain, err = swapchain.NewSwapchain(e.dev, e.surface,
		swapchain.WithExtent(e.window.Extent()),
		swapchain.WithVSync(e.cfg.Window.VSync),
		swapchain.WithMinImageCount(e.cfg.Render.MinImageCount),
	); err != nil {
		return err
	}

	e.scene.EnsureDefaults()
	cam := e.scene.Camera()
	if cam.Controller() == nil {
		cam.SetController(camera.NewCameraController())
	}
	if err := e.scene.Upload(e.dev); err != nil {
		return fmt.Errorf("engine: scene upload: %w", err)
	}

	if err := e.createRenderer(); err != nil {
		return err
	}

	if e.loop, err = frame.NewLoop(e.dev, e.surface, e.swapchain.ImageCount(),
		frame.WithEventBus(e.bus),
		frame.WithExtentSource(e.window.Extent),
	); err != nil {
		return err
	}

	e.system = camera.NewSystem(cam, e.bus)
	e.subscribe()

	if _, ok := e.scene.LightVolume(); ok && e.cfg.PathTracing.BakeLightVolume && e.cfg.Render.RayTracing && e.dev.Capabilities().RayTracing {
		if err := e.BakeLightVolume(); err != nil {
			common.Logger().Warn("light volume bake failed, keeping environment irradiance", "error", err)
		}
	}

	if e.cfg.Shader.HotReload && e.cfg.Shader.Dir != "" {
		if e.watcher, err = shader.NewWatcher(e.cfg.Shader.Dir); err != nil {
			return err
		}
	}

	if e.profilingEnabled || e.cfg.Profiling.Enabled {
		e.profiler = profiler.NewProfiler(profiler.WithInterval(time.Duration(e.cfg.Profiling.IntervalSeconds * float64(time.Second))))
	}
	return nil
}

func (e *engine) shaderSource() fs.FS {
	if e.cfg.Shader.Dir != "" {
		return shader.SourceFS(e.cfg.Shader.Dir)
	}
	return shader.Embedded()
}

func (e *engine) shaderOptions() []shader.ManagerOption {
	if !e.cfg.Shader.Validate {
		return nil
	}
	return []shader.ManagerOption{shader.WithValidator(shader.NagaValidator{})}
}

// pathTracingOptions maps the path_tracing section onto renderer options.
func (e *engine) pathTracingOptions() []pathtracing.RendererOption {
	return []pathtracing.RendererOption{
		pathtracing.WithMaxBounces(e.cfg.PathTracing.MaxBounces),
		pathtracing.WithTraceTile(e.cfg.PathTracing.TraceTile),
	}
}

func (e *engine) createRenderer() error {
	mode, err := renderer.ParseRenderMode(e.cfg.Render.Mode)
	if err != nil {
		return err
	}
	if e.renderer, err = renderer.NewSceneRenderer(e.dev, e.shaders, e.swapchain,
		renderer.WithRenderMode(mode),
		renderer.WithRayTracing(e.cfg.Render.RayTracing),
		renderer.WithLightingTile(e.cfg.Render.LightingTile),
		renderer.WithPathTracingOptions(e.pathTracingOptions()...),
		renderer.WithEventBus(e.bus),
	); err != nil {
		return err
	}
	return e.renderer.RegisterScene(e.scene)
}

// subscribe queues resize, probe and bake requests. Handlers run on the goroutine that polls
// the window, which is the Run goroutine.
func (e *engine) subscribe() {
	e.subs = append(e.subs,
		event.Subscribe(e.bus, func(r event.Resize) {
			e.resizePending = true
			e.resizeExtent = gpu.Extent2D{Width: r.Width, Height: r.Height}
		}),
		event.Subscribe(e.bus, func(k event.KeyInput) {
			switch {
			case k.Pressed(common.KeyP):
				e.probeRequested = true
			case k.Pressed(common.KeyL):
				e.bakeRequested = true
			case k.Pressed(common.KeyR):
				e.reloadProbe()
			}
		}),
		event.Subscribe(e.bus, func(event.ShaderReload) {
			e.reloadProbe()
		}),
	)
}

// reloadProbe rebuilds the probe pipeline alongside the renderer stages, which reload on
// the same key and event.
func (e *engine) reloadProbe() {
	if e.probe != nil {
		e.probe.ReloadShaders()
	}
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Bus() *event.Bus {
	return e.bus
}

func (e *engine) Device() gpu.Device {
	return e.dev
}

func (e *engine) Renderer() renderer.SceneRenderer {
	return e.renderer
}

func (e *engine) Scene() *scene.Scene {
	return e.scene
}

func (e *engine) Config() config.Config {
	return e.cfg
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run(ctx context.Context) (err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// A panic in a stage or the backend is logged and ends the loop instead of the process.
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render loop recovered from panic", "panic", r)
			err = fmt.Errorf("engine: panic: %v", r)
			e.Quit()
		}
	}()

	last := time.Now()
	for e.window.IsRunning() {
		select {
		case <-e.quit:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		e.window.PollEvents()
		if e.window.Extent().IsZero() {
			e.window.WaitEvents()
			last = time.Now()
			continue
		}

		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		if err := e.frame(ctx, dt); err != nil {
			return err
		}
	}
	return nil
}

// frame applies the requests queued since the last frame and draws one frame.
func (e *engine) frame(ctx context.Context, dt float32) error {
	e.drainWatcher()
	e.system.Update(dt)

	if err := e.renderer.ApplyRequests(); err != nil {
		return err
	}
	if err := e.applyResize(); err != nil {
		return err
	}
	e.applyProbe()
	e.applyBake()

	err := e.loop.Draw(ctx, e.renderer.Render)
	switch {
	case errors.Is(err, frame.ErrFrameSkipped):
		if e.profiler != nil {
			e.profiler.Skip()
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case err != nil:
		return fmt.Errorf("engine: %w", err)
	}

	if e.profiler != nil {
		e.profiler.Tick()
	}
	return nil
}

// drainWatcher turns every batch of changed shader files into a ShaderReload event.
func (e *engine) drainWatcher() {
	if e.watcher == nil {
		return
	}
	for {
		select {
		case paths, ok := <-e.watcher.Changes():
			if !ok {
				e.watcher = nil
				return
			}
			common.Logger().Info("shader sources changed", "paths", paths)
			e.bus.Publish(event.ShaderReload{Paths: paths})
		default:
			return
		}
	}
}

// applyResize recreates the swapchain and then the frame slots, whose count follows the
// image count. A zero extent leaves everything as is until the window is restored.
func (e *engine) applyResize() error {
	if !e.resizePending {
		return nil
	}
	e.resizePending = false

	extent := e.resizeExtent
	if extent.IsZero() {
		extent = e.window.Extent()
	}
	if extent.IsZero() {
		return nil
	}
	if err := e.renderer.Resize(extent); err != nil {
		return err
	}
	return e.loop.Resize(e.swapchain.ImageCount())
}

func (e *engine) applyProbe() {
	if !e.probeRequested {
		return
	}
	e.probeRequested = false
	if _, err := e.CaptureProbe(); err != nil {
		common.Logger().Warn("probe capture failed", "error", err)
	}
}

func (e *engine) applyBake() {
	if !e.bakeRequested {
		return
	}
	e.bakeRequested = false
	if err := e.BakeLightVolume(); err != nil {
		common.Logger().Warn("light volume bake failed", "error", err)
	}
}

// ensureProbe creates the probe and registers the scene with it on first use.
func (e *engine) ensureProbe() error {
	if !e.dev.Capabilities().RayTracing {
		return fmt.Errorf("engine: probe: %w", gpu.ErrUnsupported)
	}
	if _, ok := e.scene.RayTracing(); !ok {
		return pathtracing.ErrNoRayTracing
	}
	if e.probe != nil {
		return nil
	}
	options := append(e.pathTracingOptions(), pathtracing.WithSampleCount(e.cfg.PathTracing.ProbeSampleCount))
	p, err := pathtracing.NewProbeCapture(e.dev, e.shaders, e.cfg.PathTracing.ProbeExtent, options...)
	if err != nil {
		return err
	}
	if err := p.RegisterScene(e.scene); err != nil {
		p.Release()
		return err
	}
	e.probe = p
	return nil
}

func (e *engine) CaptureProbe() (*pathtracing.ProbeCapture, error) {
	if err := e.ensureProbe(); err != nil {
		return nil, err
	}
	if err := e.probe.Capture(e.scene.Camera().State()); err != nil {
		return nil, err
	}
	return e.probe, nil
}

func (e *engine) BakeLightVolume() error {
	lv, ok := e.scene.LightVolume()
	if !ok {
		return scene.ErrNoLightVolume
	}
	if err := e.ensureProbe(); err != nil {
		return err
	}
	start := time.Now()
	if err := e.scene.BakeLightVolume(e.dev, e.probe); err != nil {
		return err
	}
	common.Logger().Info("light volume baked", "probes", len(lv.Volume.Positions), "elapsed", time.Since(start))
	return nil
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

func (e *engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.close()
	})
	return err
}

func (e *engine) close() error {
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			common.Logger().Warn("shader watcher close failed", "error", err)
		}
		e.watcher = nil
	}
	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.subs = nil
	if e.system != nil {
		e.system.Close()
	}

	if e.dev != nil {
		if err := e.dev.WaitIdle(); err != nil {
			common.Logger().Warn("wait idle before teardown failed", "error", err)
		}
	}
	if e.probe != nil {
		e.probe.Release()
		e.probe = nil
	}
	if e.loop != nil {
		e.loop.Release()
	}
	if e.renderer != nil {
		e.renderer.Release()
	}
	if e.scene != nil {
		e.scene.Release()
	}
	if e.swapchain != nil {
		e.swapchain.Release()
	}
	if e.dev != nil && e.ownDevice {
		e.dev.Release()
	}

	if e.window != nil && e.ownWindow {
		return e.window.Close()
	}
	return nil
}
