// Package window owns the GLFW window and translates its input into events on the engine bus.
package window

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// Window provides platform windowing. Resizes, key presses and mouse input are published on the
// event bus given at construction instead of being delivered to callbacks.
type Window interface {
	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// PollEvents processes pending window events without blocking. Handlers on the bus run
	// on the calling goroutine.
	PollEvents()

	// WaitEvents blocks until at least one window event arrives, used while minimized.
	WaitEvents()

	// Extent returns the current framebuffer size in pixels, zero while minimized.
	Extent() gpu.Extent2D

	// SetTitle changes the title bar text.
	SetTitle(title string)

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error
}

// engineWindow is the implementation of the Window interface.
// Holds window configuration, GLFW state and the bus input is published on.
type engineWindow struct {
	// title is the window title displayed in the title bar.
	title string

	// maxWidth and maxHeight bound the window size during resize.
	maxWidth, maxHeight int

	// minWidth and minHeight bound the window size during resize.
	minWidth, minHeight int

	// width and height are the current framebuffer size in pixels.
	width, height int

	// bus receives Resize, KeyInput and MouseInput events.
	bus *event.Bus

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window with the specified options.
// Applies default values first, then each option in order. Must be called from the
// goroutine that will poll events, with the OS thread locked.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the spawned window
//   - error: an error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "Oxy Hybrid",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.bus == nil {
		w.bus = event.NewBus()
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) PollEvents() {
	platformProcessMessages(w, false)
}

func (w *engineWindow) WaitEvents() {
	platformProcessMessages(w, true)
}

func (w *engineWindow) Extent() gpu.Extent2D {
	return gpu.Extent2D{Width: uint32(max(w.width, 0)), Height: uint32(max(w.height, 0))}
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

// resized records a framebuffer size change and publishes it.
func (w *engineWindow) resized(width, height int) {
	w.width = width
	w.height = height
	w.bus.Publish(event.Resize{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))})
}
