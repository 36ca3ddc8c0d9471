package descriptor

// FrameDescriptorProviderOption is a functional option used to configure a FrameDescriptorProvider during construction.
type FrameDescriptorProviderOption func(*frameDescriptorProvider)

// WithLabel sets the debug label prefixed to the layouts and sets of the provider.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - FrameDescriptorProviderOption: a function that sets the label
func WithLabel(label string) FrameDescriptorProviderOption {
	return func(p *frameDescriptorProvider) {
		p.label = label
	}
}

// WithSliceSet selects the set index that holds per-image data. Set 0 is used by default.
//
// Parameters:
//   - set: the set index instantiated once per swapchain image
//
// Returns:
//   - FrameDescriptorProviderOption: a function that sets the slice set
func WithSliceSet(set uint32) FrameDescriptorProviderOption {
	return func(p *frameDescriptorProvider) {
		p.sliceSet = set
	}
}
