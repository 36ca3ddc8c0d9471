package engine

import (
	"github.com/Carmen-Shannon/oxy-hybrid/engine/config"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig replaces the default configuration. It is validated by NewEngine.
//
// Parameters:
//   - cfg: the configuration, usually from config.Load
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
	}
}

// WithProfiling enables the periodic frame statistics report regardless of the configuration.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. The engine does not close a window it did not create.
// Pass the bus the window publishes to with WithEventBus.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithEventBus sets the bus shared by the window, the renderer and the camera system.
func WithEventBus(bus *event.Bus) EngineBuilderOption {
	return func(e *engine) {
		e.bus = bus
	}
}

// WithDevice renders with an existing device and surface instead of creating the WebGPU
// backend from the window. The engine does not release a device it did not create.
//
// Parameters:
//   - dev: the device
//   - surface: the presentation surface of dev
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(dev gpu.Device, surface gpu.Surface) EngineBuilderOption {
	return func(e *engine) {
		e.dev = dev
		e.surface = surface
	}
}

// WithScene sets the scene to render. The engine uploads it and releases it on Close.
//
// Parameters:
//   - s: the Scene to render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s *scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}
