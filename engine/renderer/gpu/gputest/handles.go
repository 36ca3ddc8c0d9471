package gputest

import "github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"

type handle struct {
	dev      *Device
	id       int
	class    gpu.HandleClass
	label    string
	released bool
}

func (h *handle) Class() gpu.HandleClass { return h.class }
func (h *handle) Label() string          { return h.label }
func (h *handle) Release()               { h.dev.release(h) }

// ID returns the creation order of the handle, unique per device.
func (h *handle) ID() int { return h.id }

func (h *handle) isReleased() bool {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	return h.released
}

// Buffer is a recorded buffer. Data holds the bytes written through WriteBuffer.
type Buffer struct {
	handle
	desc       gpu.BufferDesc
	Data       []byte
	WriteCount int
}

func (b *Buffer) Size() uint64           { return b.desc.Size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.desc.Usage }

// Image is a recorded image.
type Image struct {
	handle
	desc gpu.ImageDesc
	Data []byte
}

func (i *Image) Desc() gpu.ImageDesc { return i.desc }

// ImageView is a recorded image view.
type ImageView struct {
	handle
	image gpu.Image
	dim   gpu.ViewDimension
	// BaseLayer is the first layer of the view.
	BaseLayer uint32
}

func (v *ImageView) Image() gpu.Image             { return v.image }
func (v *ImageView) Dimension() gpu.ViewDimension { return v.dim }

// Sampler is a recorded sampler.
type Sampler struct {
	handle
	Desc gpu.SamplerDesc
}

// ShaderModule is a recorded shader module.
type ShaderModule struct {
	handle
	Desc gpu.ShaderModuleDesc
}

func (m *ShaderModule) Stage() gpu.ShaderStage { return m.Desc.Stage }

// SetLayout is a recorded descriptor set layout.
type SetLayout struct {
	handle
	desc gpu.SetLayoutDesc
}

func (l *SetLayout) Desc() gpu.SetLayoutDesc { return l.desc }

// DescriptorSet is a recorded descriptor set.
type DescriptorSet struct {
	handle
	layout gpu.DescriptorSetLayout
	writes []gpu.DescriptorWrite
}

func (s *DescriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }
func (s *DescriptorSet) Writes() []gpu.DescriptorWrite   { return s.writes }

// RenderPass is a recorded render pass.
type RenderPass struct {
	handle
	desc gpu.RenderPassDesc
}

func (p *RenderPass) Desc() gpu.RenderPassDesc { return p.desc }

// Framebuffer is a recorded framebuffer.
type Framebuffer struct {
	handle
	desc gpu.FramebufferDesc
}

func (f *Framebuffer) Pass() gpu.RenderPass         { return f.desc.Pass }
func (f *Framebuffer) Attachments() []gpu.ImageView { return f.desc.Attachments }
func (f *Framebuffer) Extent() gpu.Extent2D         { return f.desc.Extent }

// Pipeline is a recorded pipeline. Exactly one of Graphics, Compute or RayTracing holds the
// description it was created from.
type Pipeline struct {
	handle
	bindPoint  gpu.BindPoint
	layouts    []gpu.DescriptorSetLayout
	Graphics   *gpu.GraphicsPipelineDesc
	Compute    *gpu.ComputePipelineDesc
	RayTracing *gpu.RayTracingPipelineDesc
}

func (p *Pipeline) BindPoint() gpu.BindPoint              { return p.bindPoint }
func (p *Pipeline) SetLayouts() []gpu.DescriptorSetLayout { return p.layouts }

// Semaphore is a recorded semaphore.
type Semaphore struct {
	handle
}

// Fence is a recorded fence. Submissions signal it immediately.
type Fence struct {
	handle
	Signaled bool
	Waits    int
}

// AccelerationStructure is a recorded acceleration structure. Instances holds the last
// top-level build.
type AccelerationStructure struct {
	handle
	Desc      gpu.AccelerationStructureDesc
	Instances []gpu.Instance
	Builds    int
}

func (a *AccelerationStructure) Level() gpu.AccelerationLevel { return a.Desc.Level }
