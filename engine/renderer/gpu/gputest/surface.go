package gputest

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// Surface is a scriptable gpu.Surface. Queued errors are returned by successive Acquire and
// Present calls; a nil entry means success.
type Surface struct {
	dev    *Device
	caps   gpu.SurfaceCapabilities
	config gpu.SurfaceConfig
	images []gpu.Image
	next   uint32

	AcquireErrors []error
	PresentErrors []error
	// Presented lists the presented image indices in order.
	Presented []uint32
	// Configurations lists every accepted configuration.
	Configurations []gpu.SurfaceConfig
}

var _ gpu.Surface = &Surface{}

// DefaultSurfaceCapabilities reports a surface that follows the window size.
var DefaultSurfaceCapabilities = gpu.SurfaceCapabilities{
	MinImageCount: 2,
	MaxImageCount: 4,
	CurrentExtent: gpu.UndefinedExtent,
	MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
	MaxExtent:     gpu.Extent2D{Width: 8192, Height: 8192},
	Formats:       []gpu.Format{gpu.FormatBGRA8Unorm, gpu.FormatRGBA8Unorm},
	PresentModes:  []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate},
}

// NewSurface creates a surface on dev with the given capabilities.
func NewSurface(dev *Device, caps gpu.SurfaceCapabilities) *Surface {
	return &Surface{dev: dev, caps: caps}
}

// Config returns the active configuration.
func (s *Surface) Config() gpu.SurfaceConfig { return s.config }

func (s *Surface) Capabilities() (gpu.SurfaceCapabilities, error) {
	return s.caps, nil
}

func (s *Surface) Configure(config gpu.SurfaceConfig) ([]gpu.Image, error) {
	if config.ImageCount == 0 || config.Extent.IsZero() {
		return nil, fmt.Errorf("gputest: invalid surface configuration %+v", config)
	}
	s.Unconfigure()
	s.config = config
	s.Configurations = append(s.Configurations, config)
	for i := range config.ImageCount {
		img, err := s.dev.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("Swapchain_%d", i),
			Extent: config.Extent,
			Layers: 1,
			Format: config.Format,
			Usage:  config.Usage,
		})
		if err != nil {
			return nil, err
		}
		s.images = append(s.images, img)
	}
	s.next = 0
	return append([]gpu.Image(nil), s.images...), nil
}

func (s *Surface) Unconfigure() {
	for _, img := range s.images {
		s.dev.Tracker.Forget(img)
		img.Release()
	}
	s.images = nil
}

func (s *Surface) Acquire(ctx context.Context, signal gpu.Semaphore) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(s.AcquireErrors) > 0 {
		err := s.AcquireErrors[0]
		s.AcquireErrors = s.AcquireErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.images) == 0 {
		return 0, gpu.ErrSwapchainOutOfDate
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return idx, nil
}

func (s *Surface) Present(imageIndex uint32, wait gpu.Semaphore) error {
	s.Presented = append(s.Presented, imageIndex)
	if len(s.PresentErrors) > 0 {
		err := s.PresentErrors[0]
		s.PresentErrors = s.PresentErrors[1:]
		return err
	}
	return nil
}
