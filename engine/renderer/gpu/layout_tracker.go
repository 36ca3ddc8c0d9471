package gpu

import (
	"fmt"
	"sync"
)

// LayoutTracker follows the layout of every image through recorded barriers and render passes.
// Backends whose API synchronizes implicitly use it to enforce the same entry/exit contract an
// explicit API would, so a stage leaving an image in the wrong layout fails in every backend.
type LayoutTracker struct {
	mu      sync.Mutex
	layouts map[Image]ImageLayout
}

// NewLayoutTracker returns an empty tracker. Untracked images are in ImageLayoutUndefined.
func NewLayoutTracker() *LayoutTracker {
	return &LayoutTracker{layouts: make(map[Image]ImageLayout)}
}

// Layout returns the tracked layout of img.
func (t *LayoutTracker) Layout(img Image) ImageLayout {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layouts[img]
}

// Set forces the tracked layout of img.
func (t *LayoutTracker) Set(img Image, layout ImageLayout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layouts[img] = layout
}

// Forget drops img from the tracker, called when the image is released.
func (t *LayoutTracker) Forget(img Image) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.layouts, img)
}

// Apply validates and applies one image barrier. A transition from ImageLayoutUndefined
// discards the contents and is valid from any layout.
//
// Parameters:
//   - b: the barrier to apply
//
// Returns:
//   - error: wraps ErrLayoutMismatch when the image is not in the barrier's old layout
func (t *LayoutTracker) Apply(b ImageBarrier) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.layouts[b.Image]
	if b.Transition.Old != ImageLayoutUndefined && b.Transition.Old != current {
		return fmt.Errorf("%w: %s is %s, barrier expects %s", ErrLayoutMismatch, b.Image.Label(), current, b.Transition.Old)
	}
	t.layouts[b.Image] = b.Transition.New
	return nil
}

// BeginPass validates the initial layouts of a framebuffer's attachments and moves them to
// their actual layouts.
func (t *LayoutTracker) BeginPass(fb Framebuffer) error {
	attachments := fb.Pass().Desc().Attachments
	views := fb.Attachments()
	if len(attachments) != len(views) {
		return fmt.Errorf("framebuffer %s has %d views for %d attachments", fb.Label(), len(views), len(attachments))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range attachments {
		img := views[i].Image()
		current := t.layouts[img]
		if a.InitialLayout != ImageLayoutUndefined && a.InitialLayout != current {
			return fmt.Errorf("%w: %s is %s, pass %s expects %s", ErrLayoutMismatch, img.Label(), current, fb.Pass().Label(), a.InitialLayout)
		}
		t.layouts[img] = a.ActualLayout
	}
	return nil
}

// EndPass moves a framebuffer's attachments to their final layouts.
func (t *LayoutTracker) EndPass(fb Framebuffer) {
	attachments := fb.Pass().Desc().Attachments
	views := fb.Attachments()

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range attachments {
		if i < len(views) {
			t.layouts[views[i].Image()] = a.FinalLayout
		}
	}
}
