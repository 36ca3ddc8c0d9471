// Package gputest provides an in-memory gpu.Device and gpu.Surface that record every call.
// Handles are counted by class so tests can assert that lifecycles release exactly what
// they created, and recorded commands can be inspected in order.
package gputest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// Option configures a Device.
type Option func(*Device)

// WithCapabilities overrides the reported device capabilities.
func WithCapabilities(caps gpu.Capabilities) Option {
	return func(d *Device) {
		d.caps = caps
	}
}

// WithRayTracing toggles ray tracing support.
func WithRayTracing(enabled bool) Option {
	return func(d *Device) {
		d.caps.RayTracing = enabled
	}
}

// DefaultCapabilities are the capabilities a new Device reports.
var DefaultCapabilities = gpu.Capabilities{
	RayTracing:                     true,
	MaxComputeWorkgroupInvocations: 256,
	MaxComputeWorkgroupSize:        [3]uint32{256, 256, 64},
	MaxPushConstantSize:            128,
}

// Device is a recording gpu.Device. GPU work completes the moment it is submitted.
type Device struct {
	mu      sync.Mutex
	caps    gpu.Capabilities
	nextID  int
	live    map[gpu.HandleClass]int
	created map[gpu.HandleClass]int

	// Tracker follows image layouts through every recorded command buffer.
	Tracker *gpu.LayoutTracker

	// ShaderError, when set, is consulted by CreateShaderModule and may fail the compile.
	ShaderError func(desc gpu.ShaderModuleDesc) error
	// SubmitError, when set, is returned by Submit.
	SubmitError error

	submits    []gpu.SubmitInfo
	immediates int
	reads      int
	idleWaits  int
	released   bool
}

var _ gpu.Device = &Device{}

// NewDevice creates a recording device.
func NewDevice(options ...Option) *Device {
	d := &Device{
		caps:    DefaultCapabilities,
		live:    make(map[gpu.HandleClass]int),
		created: make(map[gpu.HandleClass]int),
		Tracker: gpu.NewLayoutTracker(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Live returns the number of unreleased handles per class, omitting classes with none.
func (d *Device) Live() map[gpu.HandleClass]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[gpu.HandleClass]int, len(d.live))
	for class, n := range d.live {
		if n != 0 {
			out[class] = n
		}
	}
	return out
}

// LiveCount returns the number of unreleased handles of one class.
func (d *Device) LiveCount(class gpu.HandleClass) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[class]
}

// Created returns the total number of handles ever created per class.
func (d *Device) Created() map[gpu.HandleClass]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.created)
}

// Submits returns every submission made so far.
func (d *Device) Submits() []gpu.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.SubmitInfo(nil), d.submits...)
}

// ImmediateCount returns how many ExecuteImmediate calls completed.
func (d *Device) ImmediateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.immediates
}

// ReadCount returns the number of ReadImage calls.
func (d *Device) ReadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// WaitIdleCount returns how many times WaitIdle was called.
func (d *Device) WaitIdleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

func (d *Device) newHandle(class gpu.HandleClass, label string) handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.live[class]++
	d.created[class]++
	return handle{dev: d, id: d.nextID, class: class, label: label}
}

func (d *Device) release(h *handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.released {
		panic(fmt.Sprintf("gputest: %s %q (#%d) released twice", h.class, h.label, h.id))
	}
	h.released = true
	d.live[h.class]--
}

func (d *Device) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("gputest: buffer %q has zero size", desc.Label)
	}
	return &Buffer{handle: d.newHandle(gpu.ClassBuffer, desc.Label), desc: desc, Data: make([]byte, desc.Size)}, nil
}

func (d *Device) WriteBuffer(buffer gpu.Buffer, offset uint64, data []byte) {
	b := buffer.(*Buffer)
	if offset+uint64(len(data)) > b.desc.Size {
		panic(fmt.Sprintf("gputest: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.desc.Label, b.desc.Size))
	}
	copy(b.Data[offset:], data)
	b.WriteCount++
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.IsZero() {
		return nil, fmt.Errorf("gputest: image %q has zero extent", desc.Label)
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	return &Image{handle: d.newHandle(gpu.ClassImage, desc.Label), desc: desc}, nil
}

func (d *Device) WriteImage(image gpu.Image, data []byte) {
	img := image.(*Image)
	img.Data = append(img.Data[:0], data...)
}

// ReadImage returns the bytes last written to the image, or zeros when nothing was written.
func (d *Device) ReadImage(image gpu.Image) ([]byte, error) {
	img := image.(*Image)
	if img.desc.Usage&gpu.ImageUsageTransferSrc == 0 {
		return nil, fmt.Errorf("gputest: read of image %q without transfer source usage", img.desc.Label)
	}
	d.mu.Lock()
	d.reads++
	d.mu.Unlock()
	if img.Data != nil {
		return slices.Clone(img.Data), nil
	}
	desc := img.desc
	return make([]byte, desc.Extent.Width*desc.Extent.Height*max(desc.Layers, 1)*desc.Format.TexelSize()), nil
}

func (d *Device) CreateImageView(image gpu.Image, desc gpu.ViewDesc) (gpu.ImageView, error) {
	if image == nil {
		return nil, errors.New("gputest: view of nil image")
	}
	label := desc.Label
	if label == "" {
		label = image.Label() + "View"
	}
	return &ImageView{handle: d.newHandle(gpu.ClassImageView, label), image: image, dim: desc.Dimension, BaseLayer: desc.BaseLayer}, nil
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	return &Sampler{handle: d.newHandle(gpu.ClassSampler, desc.Label), Desc: desc}, nil
}

func (d *Device) CreateShaderModule(desc gpu.ShaderModuleDesc) (gpu.ShaderModule, error) {
	if d.ShaderError != nil {
		if err := d.ShaderError(desc); err != nil {
			return nil, err
		}
	}
	return &ShaderModule{handle: d.newHandle(gpu.ClassShaderModule, desc.Label), Desc: desc}, nil
}

func (d *Device) CreateDescriptorSetLayout(desc gpu.SetLayoutDesc) (gpu.DescriptorSetLayout, error) {
	return &SetLayout{handle: d.newHandle(gpu.ClassDescriptorSetLayout, desc.Label), desc: desc}, nil
}

func (d *Device) CreateDescriptorSet(layout gpu.DescriptorSetLayout, writes []gpu.DescriptorWrite) (gpu.DescriptorSet, error) {
	desc := layout.Desc()
	if len(writes) != len(desc.Bindings) {
		return nil, fmt.Errorf("gputest: set %q has %d writes for %d bindings", desc.Label, len(writes), len(desc.Bindings))
	}
	for _, b := range desc.Bindings {
		w, ok := findWrite(writes, b.Binding)
		if !ok {
			return nil, fmt.Errorf("gputest: set %q binding %d (%s) not written", desc.Label, b.Binding, b.Name)
		}
		if err := checkWrite(b, w); err != nil {
			return nil, fmt.Errorf("gputest: set %q: %w", desc.Label, err)
		}
	}
	return &DescriptorSet{
		handle: d.newHandle(gpu.ClassDescriptorSet, desc.Label),
		layout: layout,
		writes: append([]gpu.DescriptorWrite(nil), writes...),
	}, nil
}

func findWrite(writes []gpu.DescriptorWrite, binding uint32) (gpu.DescriptorWrite, bool) {
	for _, w := range writes {
		if w.Binding == binding {
			return w, true
		}
	}
	return gpu.DescriptorWrite{}, false
}

func checkWrite(b gpu.Binding, w gpu.DescriptorWrite) error {
	switch {
	case b.Type.IsBuffer() && w.Buffer == nil,
		b.Type.IsImage() && w.View == nil,
		b.Type.IsSampler() && w.Sampler == nil,
		b.Type == gpu.BindingAccelerationStructure && w.AccelerationStructure == nil:
		return fmt.Errorf("binding %d (%s) expects %s", b.Binding, b.Name, b.Type)
	}
	if r := w.Resource(); r != nil {
		if h, ok := r.(interface{ isReleased() bool }); ok && h.isReleased() {
			return fmt.Errorf("binding %d (%s) references released %s %q", b.Binding, b.Name, r.Class(), r.Label())
		}
	}
	return nil
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if len(desc.Attachments) == 0 {
		return nil, fmt.Errorf("gputest: render pass %q has no attachments", desc.Label)
	}
	return &RenderPass{handle: d.newHandle(gpu.ClassRenderPass, desc.Label), desc: desc}, nil
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	if n := len(desc.Pass.Desc().Attachments); n != len(desc.Attachments) {
		return nil, fmt.Errorf("gputest: framebuffer %q has %d views for %d attachments", desc.Label, len(desc.Attachments), n)
	}
	return &Framebuffer{handle: d.newHandle(gpu.ClassFramebuffer, desc.Label), desc: desc}, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if desc.RenderPass == nil || desc.Vertex == nil {
		return nil, fmt.Errorf("gputest: graphics pipeline %q needs a render pass and a vertex module", desc.Label)
	}
	return &Pipeline{
		handle:    d.newHandle(gpu.ClassPipeline, desc.Label),
		bindPoint: gpu.BindPointGraphics,
		layouts:   desc.SetLayouts,
		Graphics:  &desc,
	}, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	if desc.Module == nil {
		return nil, fmt.Errorf("gputest: compute pipeline %q has no module", desc.Label)
	}
	return &Pipeline{
		handle:    d.newHandle(gpu.ClassPipeline, desc.Label),
		bindPoint: gpu.BindPointCompute,
		layouts:   desc.SetLayouts,
		Compute:   &desc,
	}, nil
}

func (d *Device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	if !d.caps.RayTracing {
		return nil, gpu.ErrUnsupported
	}
	return &Pipeline{
		handle:     d.newHandle(gpu.ClassPipeline, desc.Label),
		bindPoint:  gpu.BindPointRayTracing,
		layouts:    desc.SetLayouts,
		RayTracing: &desc,
	}, nil
}

func (d *Device) CreateAccelerationStructure(desc gpu.AccelerationStructureDesc) (gpu.AccelerationStructure, error) {
	if !d.caps.RayTracing {
		return nil, gpu.ErrUnsupported
	}
	if desc.Level == gpu.AccelerationBottomLevel && (desc.Geometry == nil || len(desc.Geometry.Indices) == 0) {
		return nil, fmt.Errorf("gputest: bottom level structure %q has no geometry", desc.Label)
	}
	return &AccelerationStructure{handle: d.newHandle(gpu.ClassAccelerationStructure, desc.Label), Desc: desc}, nil
}

func (d *Device) CreateCommandBuffer(label string) (gpu.CommandBuffer, error) {
	return &CommandBuffer{handle: d.newHandle(gpu.ClassCommandBuffer, label)}, nil
}

func (d *Device) CreateSemaphore(label string) (gpu.Semaphore, error) {
	return &Semaphore{handle: d.newHandle(gpu.ClassSemaphore, label)}, nil
}

func (d *Device) CreateFence(label string, signaled bool) (gpu.Fence, error) {
	return &Fence{handle: d.newHandle(gpu.ClassFence, label), Signaled: signaled}, nil
}

func (d *Device) WaitForFence(ctx context.Context, fence gpu.Fence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := fence.(*Fence)
	d.mu.Lock()
	defer d.mu.Unlock()
	f.Waits++
	if !f.Signaled {
		return fmt.Errorf("gputest: wait on fence %q that no submission will signal", f.label)
	}
	return nil
}

func (d *Device) ResetFence(fence gpu.Fence) error {
	f := fence.(*Fence)
	d.mu.Lock()
	defer d.mu.Unlock()
	f.Signaled = false
	return nil
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	if d.SubmitError != nil {
		return d.SubmitError
	}
	for _, c := range info.Commands {
		cb := c.(*CommandBuffer)
		if cb.recording {
			return fmt.Errorf("gputest: submit of %q while still recording", cb.label)
		}
		cb.Submitted++
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits = append(d.submits, info)
	if info.Fence != nil {
		info.Fence.(*Fence).Signaled = true
	}
	return nil
}

func (d *Device) ExecuteImmediate(record func(cmd gpu.CommandBuffer)) error {
	cmd, err := d.CreateCommandBuffer("Immediate")
	if err != nil {
		return err
	}
	defer cmd.Release()

	if err := cmd.Begin(); err != nil {
		return err
	}
	record(cmd)
	if err := cmd.End(); err != nil {
		return err
	}

	d.mu.Lock()
	d.immediates++
	d.mu.Unlock()
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleWaits++
	return nil
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}
