package renderer

import (
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pathtracing"
)

// SceneRendererBuilderOption is a functional option applied to a scene renderer during
// construction via NewSceneRenderer.
type SceneRendererBuilderOption func(*sceneRenderer)

// WithRenderMode sets the initial render mode. Path tracing falls back to hybrid rendering
// when the device has no ray tracing.
//
// Parameters:
//   - mode: the initial RenderMode
//
// Returns:
//   - SceneRendererBuilderOption: a function that applies the mode option to a scene renderer
func WithRenderMode(mode RenderMode) SceneRendererBuilderOption {
	return func(r *sceneRenderer) {
		r.mode = mode
	}
}

// WithRayTracing enables or disables the acceleration structures and the path tracer.
// Enabled by default; ignored on devices without ray tracing.
//
// Parameters:
//   - enabled: whether ray tracing is used
//
// Returns:
//   - SceneRendererBuilderOption: a function that applies the ray tracing option to a scene renderer
func WithRayTracing(enabled bool) SceneRendererBuilderOption {
	return func(r *sceneRenderer) {
		r.rayTracing = enabled
	}
}

// WithLightingTile sets the workgroup size requested by the lighting pass.
//
// Parameters:
//   - tile: the requested workgroup width and height
//
// Returns:
//   - SceneRendererBuilderOption: a function that applies the tile option to a scene renderer
func WithLightingTile(tile [2]uint32) SceneRendererBuilderOption {
	return func(r *sceneRenderer) {
		if tile[0] > 0 && tile[1] > 0 {
			r.lightingTile = tile
		}
	}
}

// WithPathTracingOptions passes options through to the path tracer.
func WithPathTracingOptions(options ...pathtracing.RendererOption) SceneRendererBuilderOption {
	return func(r *sceneRenderer) {
		r.pathTracingOptions = append(r.pathTracingOptions, options...)
	}
}

// WithEventBus subscribes the renderer to key, shader reload and camera events: T toggles
// the render mode, R reloads the shaders and camera updates restart path tracing accumulation.
//
// Parameters:
//   - bus: the event bus
//
// Returns:
//   - SceneRendererBuilderOption: a function that applies the bus option to a scene renderer
func WithEventBus(bus *event.Bus) SceneRendererBuilderOption {
	return func(r *sceneRenderer) {
		r.bus = bus
	}
}
