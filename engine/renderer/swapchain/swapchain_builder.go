package swapchain

import "github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"

// SwapchainOption is a functional option used to configure a Swapchain during construction.
type SwapchainOption func(*Swapchain)

// WithExtent sets the requested extent, used when the surface follows the swapchain size.
//
// Parameters:
//   - extent: the window framebuffer size
//
// Returns:
//   - SwapchainOption: a function that sets the requested extent
func WithExtent(extent gpu.Extent2D) SwapchainOption {
	return func(s *Swapchain) {
		s.extent = extent
	}
}

// WithVSync selects Fifo presentation when enabled. Enabled by default.
func WithVSync(enabled bool) SwapchainOption {
	return func(s *Swapchain) {
		s.vsync = enabled
	}
}

// WithMinImageCount sets the requested image count, DefaultMinImageCount by default.
func WithMinImageCount(count uint32) SwapchainOption {
	return func(s *Swapchain) {
		s.minImageCount = count
	}
}

// WithPreferredFormats sets the formats to pick from in preference order. Without it the
// surface's first format is used.
//
// Parameters:
//   - formats: the formats in preference order
//
// Returns:
//   - SwapchainOption: a function that sets the preferred formats
func WithPreferredFormats(formats ...gpu.Format) SwapchainOption {
	return func(s *Swapchain) {
		s.preferredFormats = formats
	}
}
