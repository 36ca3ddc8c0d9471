// Package frame drives the per-frame acquire, record, submit and present cycle.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/event"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// ErrFrameSkipped is returned by Draw when no image could be acquired. The caller applies
// the pending resize and draws the next frame.
var ErrFrameSkipped = errors.New("frame: skipped")

// RecordFunc records one frame into cmd for the acquired swapchain image.
type RecordFunc func(cmd gpu.CommandBuffer, imageIndex uint32)

// slot is one frame in flight. The fence is created signaled so the first wait returns.
type slot struct {
	cmd      gpu.CommandBuffer
	acquired gpu.Semaphore
	rendered gpu.Semaphore
	inFlight gpu.Fence
}

func (s *slot) release() {
	for _, h := range []gpu.Handle{s.cmd, s.acquired, s.rendered, s.inFlight} {
		if h != nil {
			h.Release()
		}
	}
	*s = slot{}
}

// Loop owns the command buffers and synchronization objects of the frames in flight.
type Loop struct {
	dev     gpu.Device
	surface gpu.Surface
	bus     *event.Bus
	extent  func() gpu.Extent2D

	slots   []slot
	current int

	drawn   uint64
	skipped uint64
}

// NewLoop creates a loop with slotCount frames in flight.
//
// Parameters:
//   - dev: the device that records and submits
//   - surface: the surface images are acquired from and presented to
//   - slotCount: the number of frames in flight, usually the swapchain image count
//   - options: functional options
//
// Returns:
//   - *Loop: the frame loop
//   - error: an error if a synchronization object could not be created
func NewLoop(dev gpu.Device, surface gpu.Surface, slotCount uint32, options ...LoopBuilderOption) (*Loop, error) {
	l := &Loop{dev: dev, surface: surface}
	for _, opt := range options {
		opt(l)
	}
	if err := l.Resize(slotCount); err != nil {
		return nil, err
	}
	return l, nil
}

// Draw renders one frame: it waits for the current slot, acquires an image, calls record
// exactly once, submits and presents. An out-of-date acquire publishes a resize request and
// returns an error wrapping ErrFrameSkipped without calling record. A submit failure wraps
// gpu.ErrDeviceLost and is fatal. An out-of-date or suboptimal present only publishes a
// resize request.
func (l *Loop) Draw(ctx context.Context, record RecordFunc) error {
	if len(l.slots) == 0 {
		return fmt.Errorf("%w: no frames in flight", ErrFrameSkipped)
	}
	s := &l.slots[l.current]

	if err := l.dev.WaitForFence(ctx, s.inFlight); err != nil {
		return fmt.Errorf("frame: wait for slot %d: %w", l.current, err)
	}

	imageIndex, err := l.surface.Acquire(ctx, s.acquired)
	switch {
	case errors.Is(err, gpu.ErrSwapchainOutOfDate):
		l.skipped++
		l.requestResize("acquire")
		return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
	case err != nil:
		return fmt.Errorf("frame: acquire: %w", err)
	}

	// reset only once work is certain to be submitted, otherwise the next wait never returns
	if err := l.dev.ResetFence(s.inFlight); err != nil {
		return fmt.Errorf("frame: reset fence: %w", err)
	}

	if err := s.cmd.Begin(); err != nil {
		return fmt.Errorf("frame: begin: %w", err)
	}
	record(s.cmd, imageIndex)
	if err := s.cmd.End(); err != nil {
		return fmt.Errorf("frame: record image %d: %w", imageIndex, err)
	}

	err = l.dev.Submit(gpu.SubmitInfo{
		Commands:   []gpu.CommandBuffer{s.cmd},
		Wait:       []gpu.Semaphore{s.acquired},
		WaitStages: []gpu.PipelineStage{gpu.StageColorAttachmentOutput | gpu.StageComputeShader | gpu.StageRayTracingShader},
		Signal:     []gpu.Semaphore{s.rendered},
		Fence:      s.inFlight,
	})
	if err != nil {
		return fmt.Errorf("frame: submit: %w: %w", gpu.ErrDeviceLost, err)
	}
	l.current = (l.current + 1) % len(l.slots)

	err = l.surface.Present(imageIndex, s.rendered)
	switch {
	case errors.Is(err, gpu.ErrSwapchainOutOfDate), errors.Is(err, gpu.ErrSwapchainSuboptimal):
		l.requestResize("present")
	case err != nil:
		return fmt.Errorf("frame: present: %w", err)
	}
	l.drawn++
	return nil
}

// Resize recreates the slots when the number of frames in flight changes. The device must be
// idle.
//
// Parameters:
//   - slotCount: the new number of frames in flight
//
// Returns:
//   - error: an error if a synchronization object could not be created
func (l *Loop) Resize(slotCount uint32) error {
	if slotCount == 0 {
		return errors.New("frame: slot count must be positive")
	}
	if int(slotCount) == len(l.slots) {
		return nil
	}
	l.releaseSlots()

	slots := make([]slot, slotCount)
	for i := range slots {
		if err := l.createSlot(&slots[i], i); err != nil {
			for j := range slots[:i+1] {
				slots[j].release()
			}
			return err
		}
	}
	l.slots = slots
	l.current = 0
	common.Logger().Debug("frame slots created", "count", slotCount)
	return nil
}

func (l *Loop) createSlot(s *slot, i int) error {
	var err error
	if s.cmd, err = l.dev.CreateCommandBuffer(fmt.Sprintf("Frame_%d", i)); err != nil {
		return fmt.Errorf("frame: command buffer %d: %w", i, err)
	}
	if s.acquired, err = l.dev.CreateSemaphore(fmt.Sprintf("ImageAvailable_%d", i)); err != nil {
		return fmt.Errorf("frame: semaphore %d: %w", i, err)
	}
	if s.rendered, err = l.dev.CreateSemaphore(fmt.Sprintf("RenderFinished_%d", i)); err != nil {
		return fmt.Errorf("frame: semaphore %d: %w", i, err)
	}
	if s.inFlight, err = l.dev.CreateFence(fmt.Sprintf("InFlight_%d", i), true); err != nil {
		return fmt.Errorf("frame: fence %d: %w", i, err)
	}
	return nil
}

func (l *Loop) requestResize(at string) {
	var extent gpu.Extent2D
	if l.extent != nil {
		extent = l.extent()
	}
	common.Logger().Debug("swapchain out of date", "at", at, "extent", extent)
	if l.bus != nil {
		l.bus.Publish(event.Resize{Width: extent.Width, Height: extent.Height})
	}
}

// SlotCount returns the number of frames in flight.
func (l *Loop) SlotCount() uint32 {
	return uint32(len(l.slots))
}

// Drawn returns the number of presented frames.
func (l *Loop) Drawn() uint64 {
	return l.drawn
}

// Skipped returns the number of frames skipped because no image could be acquired.
func (l *Loop) Skipped() uint64 {
	return l.skipped
}

func (l *Loop) releaseSlots() {
	for i := range l.slots {
		l.slots[i].release()
	}
	l.slots = nil
}

// Release destroys the slots. The device must be idle.
func (l *Loop) Release() {
	l.releaseSlots()
}
