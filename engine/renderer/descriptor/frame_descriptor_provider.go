// Package descriptor binds named resources to the descriptor sets of a render stage. A
// FrameDescriptorProvider is built from the reflected bindings of a stage's shaders, owns the
// set layouts its pipelines are created with, and keeps one instance of the per-frame set for
// every swapchain image.
package descriptor

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// samplerSuffix names the sampler binding paired with a texture binding.
const samplerSuffix = "Sampler"

// frameDescriptorProvider is the unexported implementation of FrameDescriptorProvider.
type frameDescriptorProvider struct {
	// label is a debug label prefixed to every layout and set.
	label string
	dev   gpu.Device

	// imageCount is the number of instances of the slice set.
	imageCount uint32
	// sliceSet is the set index holding per-image data.
	sliceSet uint32

	// bindings holds every reflected binding keyed by name.
	bindings map[string]gpu.Binding
	// layouts holds one layout per set index, including empty sets between used ones.
	layouts []gpu.DescriptorSetLayout

	// global holds data pushed once for every image.
	global map[string]gpu.Handle
	// slice holds data pushed once per image, in image order.
	slice map[string][]gpu.Handle

	// The following fields are GPU allocated and recreated by every FlushData.

	// sets holds the created sets keyed by set index; the slice set is absent.
	sets map[uint32]DescriptorSet
	// frames holds the instances of the slice set.
	frames MultiDescriptorSet
	// slices holds the descriptor slice of every image index.
	slices  [][]gpu.DescriptorSet
	flushed bool
}

// FrameDescriptorProvider resolves named resources against the reflected bindings of a stage
// and turns them into descriptor sets.
//
// Usage pattern:
//  1. The stage creates the provider from the merged bindings of its shaders
//  2. Pipelines are created with Layouts()
//  3. The stage pushes resources by binding name: PushGlobalData for data shared by every
//     image, PushSliceData once per image for per-frame data
//  4. FlushData creates the sets
//  5. Execute binds GetDescriptorSlice(imageIndex)
//
// Pushing a name no binding declares, or a resource of the wrong kind, is a configuration
// error and panics.
type FrameDescriptorProvider interface {
	// Label returns the debug label of the provider.
	Label() string

	// ImageCount returns the number of per-image instances of the slice set.
	ImageCount() uint32

	// Bindings returns every binding the provider resolves names against, sorted by set and
	// binding.
	//
	// Returns:
	//   - []gpu.Binding: the bindings
	Bindings() []gpu.Binding

	// Has reports whether a binding with the given name exists.
	Has(name string) bool

	// Layouts returns the set layouts indexed by set number, for pipeline creation.
	//
	// Returns:
	//   - []gpu.DescriptorSetLayout: one layout per set, owned by the provider
	Layouts() []gpu.DescriptorSetLayout

	// PushGlobalData binds a resource for every image. A binding of the slice set receives
	// the same resource in every instance.
	//
	// Parameters:
	//   - name: the binding name declared by the shader
	//   - resource: a gpu.Buffer, gpu.ImageView, gpu.Sampler or gpu.AccelerationStructure
	PushGlobalData(name string, resource gpu.Handle)

	// PushSliceData binds a resource for the next image index. It must be called exactly
	// ImageCount times per name, in image order, and only for bindings of the slice set.
	//
	// Parameters:
	//   - name: the binding name declared by the shader
	//   - resource: the resource of the next image
	PushSliceData(name string, resource gpu.Handle)

	// PushTexture binds an image view for every image, and its sampler to the paired
	// <name>Sampler binding when the shader declares one.
	//
	// Parameters:
	//   - name: the texture binding name
	//   - view: the texture view
	//   - sampler: the sampler, ignored without a paired binding
	PushTexture(name string, view gpu.ImageView, sampler gpu.Sampler)

	// FlushData creates the descriptor sets from the pushed data, replacing the sets of a
	// previous flush.
	//
	// Returns:
	//   - error: an error if a binding has no data or the device rejected a set
	FlushData() error

	// Flushed reports whether the sets reflect the pushed data.
	Flushed() bool

	// GetDescriptorSlice returns the sets to bind for an image: every global set plus the
	// instance of the slice set, in set index order. Panics with ErrNotFlushed before a
	// successful FlushData.
	//
	// Parameters:
	//   - imageIndex: the swapchain image index
	//
	// Returns:
	//   - []gpu.DescriptorSet: the sets starting at set 0
	GetDescriptorSlice(imageIndex uint32) []gpu.DescriptorSet

	// Clear releases the sets and forgets the pushed data. The layouts are kept so pipelines
	// created from them stay valid.
	Clear()

	// Release releases the sets and the layouts.
	Release()
}

// Compile-time check that frameDescriptorProvider implements FrameDescriptorProvider
var _ FrameDescriptorProvider = &frameDescriptorProvider{}

// NewFrameDescriptorProvider creates the layouts of every set the bindings use. Set indices
// between used sets get empty layouts so the layouts can be bound contiguously from set 0.
//
// Parameters:
//   - dev: the device that owns the layouts and sets
//   - bindings: the merged bindings of the stage's shaders
//   - imageCount: the number of per-image instances of the slice set
//   - options: functional options
//
// Returns:
//   - FrameDescriptorProvider: the provider, with no data pushed
//   - error: an error for duplicate names or a failed layout creation
func NewFrameDescriptorProvider(dev gpu.Device, bindings []gpu.Binding, imageCount uint32, options ...FrameDescriptorProviderOption) (FrameDescriptorProvider, error) {
	p := &frameDescriptorProvider{
		label:      "Descriptors",
		dev:        dev,
		imageCount: max(imageCount, 1),
		bindings:   make(map[string]gpu.Binding, len(bindings)),
		global:     make(map[string]gpu.Handle),
		slice:      make(map[string][]gpu.Handle),
		sets:       make(map[uint32]DescriptorSet),
	}
	for _, opt := range options {
		opt(p)
	}

	var setCount uint32
	bySet := make(map[uint32][]gpu.Binding)
	for _, b := range bindings {
		if _, dup := p.bindings[b.Name]; dup {
			return nil, fmt.Errorf("descriptor: %s: binding %q declared twice", p.label, b.Name)
		}
		p.bindings[b.Name] = b
		bySet[b.Set] = append(bySet[b.Set], b)
		setCount = max(setCount, b.Set+1)
	}

	for set := range setCount {
		layout, err := dev.CreateDescriptorSetLayout(gpu.SetLayoutDesc{
			Label:    fmt.Sprintf("%s Set %d", p.label, set),
			Set:      set,
			Bindings: bySet[set],
		})
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("descriptor: %s set %d layout: %w", p.label, set, err)
		}
		p.layouts = append(p.layouts, layout)
	}
	return p, nil
}

func (p *frameDescriptorProvider) Label() string {
	return p.label
}

func (p *frameDescriptorProvider) ImageCount() uint32 {
	return p.imageCount
}

func (p *frameDescriptorProvider) Bindings() []gpu.Binding {
	var out []gpu.Binding
	for _, layout := range p.layouts {
		out = append(out, layout.Desc().Bindings...)
	}
	return out
}

func (p *frameDescriptorProvider) Has(name string) bool {
	_, ok := p.bindings[name]
	return ok
}

func (p *frameDescriptorProvider) Layouts() []gpu.DescriptorSetLayout {
	return p.layouts
}

// binding resolves a name, panicking for names no shader declares.
func (p *frameDescriptorProvider) binding(name string) gpu.Binding {
	b, ok := p.bindings[name]
	if !ok {
		panic(fmt.Errorf("%w: %s has no binding %q", ErrUnknownBinding, p.label, name))
	}
	return b
}

func (p *frameDescriptorProvider) PushGlobalData(name string, resource gpu.Handle) {
	b := p.binding(name)
	checkResource(p.label, b, resource)
	p.global[name] = resource
	delete(p.slice, name)
	p.flushed = false
}

func (p *frameDescriptorProvider) PushSliceData(name string, resource gpu.Handle) {
	b := p.binding(name)
	if b.Set != p.sliceSet {
		panic(fmt.Errorf("%w: %s binding %q is in set %d, not the per-image set %d", ErrResourceMismatch, p.label, name, b.Set, p.sliceSet))
	}
	checkResource(p.label, b, resource)
	if uint32(len(p.slice[name])) == p.imageCount {
		panic(fmt.Errorf("%w: %s binding %q pushed more than %d times", ErrResourceMismatch, p.label, name, p.imageCount))
	}
	p.slice[name] = append(p.slice[name], resource)
	delete(p.global, name)
	p.flushed = false
}

func (p *frameDescriptorProvider) PushTexture(name string, view gpu.ImageView, sampler gpu.Sampler) {
	p.PushGlobalData(name, view)
	if p.Has(name + samplerSuffix) {
		p.PushGlobalData(name+samplerSuffix, sampler)
	}
}

// checkResource panics when resource cannot be written to b.
func checkResource(label string, b gpu.Binding, resource gpu.Handle) {
	if _, ok := toWrite(b, resource); !ok {
		panic(fmt.Errorf("%w: %s binding %q (%s) cannot hold %T", ErrResourceMismatch, label, b.Name, b.Type, resource))
	}
	if buf, ok := resource.(gpu.Buffer); ok && b.MinSize > 0 && buf.Size() < b.MinSize {
		panic(fmt.Errorf("%w: %s binding %q needs %d bytes, buffer %q has %d", ErrResourceMismatch, label, b.Name, b.MinSize, buf.Label(), buf.Size()))
	}
}

// toWrite converts a resource to the write of binding b.
func toWrite(b gpu.Binding, resource gpu.Handle) (gpu.DescriptorWrite, bool) {
	w := gpu.DescriptorWrite{Binding: b.Binding, Type: b.Type}
	var ok bool
	switch {
	case b.Type.IsBuffer():
		w.Buffer, ok = resource.(gpu.Buffer)
		ok = ok && w.Buffer != nil
	case b.Type.IsImage():
		w.View, ok = resource.(gpu.ImageView)
		ok = ok && w.View != nil
	case b.Type.IsSampler():
		w.Sampler, ok = resource.(gpu.Sampler)
		ok = ok && w.Sampler != nil
	case b.Type == gpu.BindingAccelerationStructure:
		w.AccelerationStructure, ok = resource.(gpu.AccelerationStructure)
		ok = ok && w.AccelerationStructure != nil
	}
	return w, ok
}

// writes builds the writes of one set for an image index.
func (p *frameDescriptorProvider) writes(layout gpu.DescriptorSetLayout, imageIndex uint32) ([]gpu.DescriptorWrite, error) {
	desc := layout.Desc()
	out := make([]gpu.DescriptorWrite, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		resource, ok := p.global[b.Name]
		if !ok {
			frames := p.slice[b.Name]
			if uint32(len(frames)) != p.imageCount {
				return nil, fmt.Errorf("descriptor: %s binding %q has data for %d of %d images", p.label, b.Name, len(frames), p.imageCount)
			}
			resource = frames[imageIndex]
		}
		w, _ := toWrite(b, resource)
		out = append(out, w)
	}
	return out, nil
}

func (p *frameDescriptorProvider) FlushData() error {
	p.releaseSets()

	for set, layout := range p.layouts {
		index := uint32(set)
		if index == p.sliceSet {
			p.frames.Layout = layout
			for i := range p.imageCount {
				writes, err := p.writes(layout, i)
				if err != nil {
					p.releaseSets()
					return err
				}
				ds, err := newDescriptorSet(p.dev, layout, writes)
				if err != nil {
					p.releaseSets()
					return err
				}
				p.frames.Sets = append(p.frames.Sets, ds.Set)
			}
			continue
		}

		writes, err := p.writes(layout, 0)
		if err != nil {
			p.releaseSets()
			return err
		}
		ds, err := newDescriptorSet(p.dev, layout, writes)
		if err != nil {
			p.releaseSets()
			return err
		}
		p.sets[index] = ds
	}

	p.slices = make([][]gpu.DescriptorSet, p.imageCount)
	for i := range p.imageCount {
		slice := make([]gpu.DescriptorSet, len(p.layouts))
		for set := range p.layouts {
			if uint32(set) == p.sliceSet {
				slice[set] = p.frames.At(i)
			} else {
				slice[set] = p.sets[uint32(set)].Set
			}
		}
		p.slices[i] = slice
	}
	p.flushed = true

	common.Logger().Debug("descriptor sets flushed", "provider", p.label, "sets", len(p.layouts), "images", p.imageCount)
	return nil
}

func (p *frameDescriptorProvider) Flushed() bool {
	return p.flushed
}

func (p *frameDescriptorProvider) GetDescriptorSlice(imageIndex uint32) []gpu.DescriptorSet {
	if !p.flushed {
		panic(fmt.Errorf("%w: %s", ErrNotFlushed, p.label))
	}
	return p.slices[imageIndex]
}

// releaseSets destroys the sets of the last flush.
func (p *frameDescriptorProvider) releaseSets() {
	for set, ds := range p.sets {
		ds.Release()
		delete(p.sets, set)
	}
	p.frames.Release()
	p.slices = nil
	p.flushed = false
}

func (p *frameDescriptorProvider) Clear() {
	p.releaseSets()
	clear(p.global)
	clear(p.slice)
}

func (p *frameDescriptorProvider) Release() {
	p.Clear()
	for _, layout := range p.layouts {
		layout.Release()
	}
	p.layouts = nil
}
