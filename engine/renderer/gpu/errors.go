package gpu

import "errors"

var (
	// ErrSwapchainOutOfDate is returned by acquire and present when the surface changed
	// and the swapchain must be recreated before the next frame.
	ErrSwapchainOutOfDate = errors.New("gpu: swapchain out of date")
	// ErrSwapchainSuboptimal is returned by present when the swapchain still works but
	// no longer matches the surface.
	ErrSwapchainSuboptimal = errors.New("gpu: swapchain suboptimal")
	// ErrDeviceLost reports a lost device or a failed queue submission.
	ErrDeviceLost = errors.New("gpu: device lost")
	// ErrLayoutMismatch reports a barrier or render pass whose expected layout does not
	// match the tracked layout of the image.
	ErrLayoutMismatch = errors.New("gpu: image layout mismatch")
	// ErrUnsupported reports a request for a feature the device does not provide.
	ErrUnsupported = errors.New("gpu: unsupported")
	// ErrNotRecording reports a command recorded outside Begin/End.
	ErrNotRecording = errors.New("gpu: command buffer not recording")
)
