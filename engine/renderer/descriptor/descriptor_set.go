package descriptor

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// DescriptorSet is one descriptor set together with the layout it was created from. The layout
// is owned by the provider that created the set.
type DescriptorSet struct {
	Layout gpu.DescriptorSetLayout
	Set    gpu.DescriptorSet
}

// newDescriptorSet creates a set for layout from the given writes.
//
// Parameters:
//   - dev: the device that owns the set
//   - layout: the layout the set conforms to
//   - writes: one write per binding of the layout
//
// Returns:
//   - DescriptorSet: the created set
//   - error: an error if the device rejected the writes
func newDescriptorSet(dev gpu.Device, layout gpu.DescriptorSetLayout, writes []gpu.DescriptorWrite) (DescriptorSet, error) {
	set, err := dev.CreateDescriptorSet(layout, writes)
	if err != nil {
		return DescriptorSet{}, fmt.Errorf("descriptor: %s: %w", layout.Label(), err)
	}
	return DescriptorSet{Layout: layout, Set: set}, nil
}

// Release destroys the set, leaving the layout alive.
func (s *DescriptorSet) Release() {
	if s.Set != nil {
		s.Set.Release()
		s.Set = nil
	}
}

// MultiDescriptorSet is N parallel instances of one layout, one per swapchain image, so a
// frame in flight never sees data written for another image.
type MultiDescriptorSet struct {
	Layout gpu.DescriptorSetLayout
	Sets   []gpu.DescriptorSet
}

// At returns the instance for an image index.
func (m *MultiDescriptorSet) At(imageIndex uint32) gpu.DescriptorSet {
	return m.Sets[imageIndex]
}

// Len returns the number of instances.
func (m *MultiDescriptorSet) Len() int {
	return len(m.Sets)
}

// Release destroys every instance, leaving the layout alive.
func (m *MultiDescriptorSet) Release() {
	for _, s := range m.Sets {
		if s != nil {
			s.Release()
		}
	}
	m.Sets = nil
}
