// Package swapchain owns the presentable images of a surface and recreates them on resize.
package swapchain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// DefaultMinImageCount is the image count requested when the surface allows it.
const DefaultMinImageCount uint32 = 3

// ErrNoFormat is returned when the surface supports none of the preferred formats.
var ErrNoFormat = errors.New("swapchain: no supported surface format")

// Usage is the usage of every swapchain image: stages render into it as a color attachment
// and the lighting and path tracing passes write it as a storage image.
const Usage = gpu.ImageUsageColorAttachment | gpu.ImageUsageStorage

// Swapchain owns the images and views of a configured surface.
type Swapchain struct {
	dev     gpu.Device
	surface gpu.Surface

	// The following properties are the requested configuration and can be set with the builder options.

	extent           gpu.Extent2D
	vsync            bool
	minImageCount    uint32
	preferredFormats []gpu.Format

	// The following properties are selected from the surface capabilities by Recreate.

	format      gpu.Format
	presentMode gpu.PresentMode
	actual      gpu.Extent2D
	images      []gpu.Image
	views       []gpu.ImageView
}

// NewSwapchain configures the surface and creates views for its images. Every image is
// transitioned to gpu.ImageLayoutPresentSrc before the call returns.
//
// Parameters:
//   - dev: the device the images are used on
//   - surface: the presentation surface
//   - options: functional options
//
// Returns:
//   - *Swapchain: the configured swapchain
//   - error: an error if the surface cannot be configured
func NewSwapchain(dev gpu.Device, surface gpu.Surface, options ...SwapchainOption) (*Swapchain, error) {
	s := &Swapchain{
		dev:           dev,
		surface:       surface,
		vsync:         true,
		minImageCount: DefaultMinImageCount,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.Recreate(s.extent); err != nil {
		return nil, err
	}
	return s, nil
}

// SelectFormat returns the first preferred format the surface supports. An empty preference
// list, or gpu.FormatUndefined in it, accepts the surface's first format.
//
// Parameters:
//   - supported: the surface formats in surface preference order
//   - preferred: the formats in application preference order
//
// Returns:
//   - gpu.Format: the selected format
//   - error: ErrNoFormat when nothing matches
func SelectFormat(supported, preferred []gpu.Format) (gpu.Format, error) {
	if len(supported) == 0 {
		return gpu.FormatUndefined, ErrNoFormat
	}
	if len(preferred) == 0 {
		return supported[0], nil
	}
	for _, f := range preferred {
		if f == gpu.FormatUndefined {
			return supported[0], nil
		}
		if slices.Contains(supported, f) {
			return f, nil
		}
	}
	return gpu.FormatUndefined, fmt.Errorf("%w: want one of %v, surface has %v", ErrNoFormat, preferred, supported)
}

// SelectExtent returns the surface's current extent, or the requested extent clamped to the
// surface limits when the surface follows the swapchain size.
func SelectExtent(caps gpu.SurfaceCapabilities, requested gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  min(max(requested.Width, caps.MinExtent.Width), caps.MaxExtent.Width),
		Height: min(max(requested.Height, caps.MinExtent.Height), caps.MaxExtent.Height),
	}
}

// SelectPresentMode returns Fifo with vsync, otherwise Mailbox when supported and Immediate
// when not.
func SelectPresentMode(supported []gpu.PresentMode, vsync bool) gpu.PresentMode {
	switch {
	case vsync:
		return gpu.PresentModeFifo
	case slices.Contains(supported, gpu.PresentModeMailbox):
		return gpu.PresentModeMailbox
	default:
		return gpu.PresentModeImmediate
	}
}

// SelectImageCount returns the requested count limited by the surface maximum and raised to
// the surface minimum.
func SelectImageCount(caps gpu.SurfaceCapabilities, requested uint32) uint32 {
	count := requested
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}
	return max(count, caps.MinImageCount, 1)
}

// Recreate destroys the current views and reconfigures the surface at the given extent.
// The caller waits for the device to be idle first.
//
// Parameters:
//   - extent: the requested extent, usually the window framebuffer size
//
// Returns:
//   - error: an error if the surface cannot be configured
func (s *Swapchain) Recreate(extent gpu.Extent2D) error {
	caps, err := s.surface.Capabilities()
	if err != nil {
		return fmt.Errorf("swapchain: capabilities: %w", err)
	}
	format, err := SelectFormat(caps.Formats, s.preferredFormats)
	if err != nil {
		return err
	}

	config := gpu.SurfaceConfig{
		Format:      format,
		Extent:      SelectExtent(caps, extent),
		PresentMode: SelectPresentMode(caps.PresentModes, s.vsync),
		ImageCount:  SelectImageCount(caps, s.minImageCount),
		Usage:       Usage,
	}

	s.destroyViews()
	images, err := s.surface.Configure(config)
	if err != nil {
		return fmt.Errorf("swapchain: configure %s: %w", config.Extent, err)
	}

	views := make([]gpu.ImageView, 0, len(images))
	for i, img := range images {
		view, err := s.dev.CreateImageView(img, gpu.ViewDesc{Label: fmt.Sprintf("Swapchain_%d View", i)})
		if err != nil {
			for _, v := range views {
				v.Release()
			}
			s.surface.Unconfigure()
			return fmt.Errorf("swapchain: view %d: %w", i, err)
		}
		views = append(views, view)
	}

	err = s.dev.ExecuteImmediate(func(cmd gpu.CommandBuffer) {
		barriers := make([]gpu.ImageBarrier, len(images))
		for i, img := range images {
			barriers[i] = gpu.ImageBarrier{Image: img, Transition: gpu.LayoutTransition{
				Old:     gpu.ImageLayoutUndefined,
				New:     gpu.ImageLayoutPresentSrc,
				Barrier: gpu.BarrierEmpty,
			}}
		}
		cmd.PipelineBarrier(gpu.BarrierEmpty, barriers...)
	})
	if err != nil {
		for _, v := range views {
			v.Release()
		}
		s.surface.Unconfigure()
		return fmt.Errorf("swapchain: initial transition: %w", err)
	}

	s.format = config.Format
	s.presentMode = config.PresentMode
	s.actual = config.Extent
	s.extent = extent
	s.images = images
	s.views = views

	common.Logger().Debug("swapchain created", "extent", config.Extent, "format", config.Format, "present_mode", config.PresentMode, "images", len(images))
	return nil
}

// SetVSync changes the present mode used by the next Recreate.
func (s *Swapchain) SetVSync(enabled bool) {
	s.vsync = enabled
}

// Extent returns the extent of the images.
func (s *Swapchain) Extent() gpu.Extent2D {
	return s.actual
}

// Format returns the format of the images.
func (s *Swapchain) Format() gpu.Format {
	return s.format
}

// PresentMode returns the selected present mode.
func (s *Swapchain) PresentMode() gpu.PresentMode {
	return s.presentMode
}

// ImageCount returns the number of images, which is also the number of frames in flight.
func (s *Swapchain) ImageCount() uint32 {
	return uint32(len(s.images))
}

// Images returns the presentable images, owned by the surface.
func (s *Swapchain) Images() []gpu.Image {
	return s.images
}

// Views returns one view per image, owned by the swapchain.
func (s *Swapchain) Views() []gpu.ImageView {
	return s.views
}

// Surface returns the presentation surface.
func (s *Swapchain) Surface() gpu.Surface {
	return s.surface
}

func (s *Swapchain) destroyViews() {
	for _, v := range s.views {
		v.Release()
	}
	s.views = nil
	s.images = nil
}

// Release destroys the views and unconfigures the surface.
func (s *Swapchain) Release() {
	s.destroyViews()
	s.surface.Unconfigure()
}
