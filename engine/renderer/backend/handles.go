package backend

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/accel"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// handle carries the class and label every wrapper reports.
type handle struct {
	class gpu.HandleClass
	label string
}

func (h handle) Class() gpu.HandleClass { return h.class }
func (h handle) Label() string { return h.label }

type buffer struct {
	handle
	buf   *wgpu.Buffer
	size  uint64
	usage gpu.BufferUsage
}

func (b *buffer) Size() uint64 { return b.size }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *buffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type image struct {
	handle
	tex     *wgpu.Texture
	desc    gpu.ImageDesc
	tracker *gpu.LayoutTracker
}

func (i *image) Desc() gpu.ImageDesc { return i.desc }

func (i *image) Release() {
	if i.tex != nil {
		i.tracker.Forget(i)
		i.tex.Release()
		i.tex = nil
	}
}

type imageView struct {
	handle
	view      *wgpu.TextureView
	image     *image
	dimension gpu.ViewDimension
}

func (v *imageView) Image() gpu.Image { return v.image }
func (v *imageView) Dimension() gpu.ViewDimension { return v.dimension }

func (v *imageView) Release() {
	if v.view != nil {
		v.view.Release()
		v.view = nil
	}
}

type sampler struct {
	handle
	sampler *wgpu.Sampler
}

func (s *sampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

// shaderModule keeps the entry point pipelines are created with.
type shaderModule struct {
	handle
	module     *wgpu.ShaderModule
	stage      gpu.ShaderStage
	entryPoint string
}

func (m *shaderModule) Stage() gpu.ShaderStage { return m.stage }

func (m *shaderModule) Release() {
	if m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

type setLayout struct {
	handle
	layout *wgpu.BindGroupLayout
	desc   gpu.SetLayoutDesc
}

func (l *setLayout) Desc() gpu.SetLayoutDesc { return l.desc }

func (l *setLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

type descriptorSet struct {
	handle
	group  *wgpu.BindGroup
	layout *setLayout
	writes []gpu.DescriptorWrite
}

func (s *descriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }
func (s *descriptorSet) Writes() []gpu.DescriptorWrite { return s.writes }

func (s *descriptorSet) Release() {
	if s.group != nil {
		s.group.Release()
		s.group = nil
	}
}

// renderPass has no native object: WebGPU describes attachments when a pass begins.
type renderPass struct {
	handle
	desc gpu.RenderPassDesc
}

func (p *renderPass) Desc() gpu.RenderPassDesc { return p.desc }
func (p *renderPass) Release() {}

type framebuffer struct {
	handle
	pass        *renderPass
	attachments []gpu.ImageView
	extent      gpu.Extent2D
}

func (f *framebuffer) Pass() gpu.RenderPass { return f.pass }
func (f *framebuffer) Attachments() []gpu.ImageView { return f.attachments }
func (f *framebuffer) Extent() gpu.Extent2D { return f.extent }
func (f *framebuffer) Release() {}

// pipeline wraps either a render or a compute pipeline. Ray tracing pipelines are compute
// pipelines dispatched over workgroup tiles.
type pipeline struct {
	handle
	bindPoint gpu.BindPoint
	render    *wgpu.RenderPipeline
	compute   *wgpu.ComputePipeline
	layout    *wgpu.PipelineLayout
	sets      []gpu.DescriptorSetLayout
	// groups is the number of bind group slots of the layout, including gaps and the push slot.
	groups    uint32
	pushSize  uint32
	workgroup [2]uint32
}

func (p *pipeline) BindPoint() gpu.BindPoint { return p.bindPoint }
func (p *pipeline) SetLayouts() []gpu.DescriptorSetLayout { return p.sets }

func (p *pipeline) Release() {
	if p.render != nil {
		p.render.Release()
		p.render = nil
	}
	if p.compute != nil {
		p.compute.Release()
		p.compute = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}

// semaphore is an ordering token; a single WebGPU queue executes submissions in order.
type semaphore struct {
	handle
}

func (s *semaphore) Release() {}

// fence tracks whether a submission that signals it is outstanding.
type fence struct {
	handle
	signaled bool
	pending  bool
}

func (f *fence) Release() {}

// accelerationStructure is a software structure. A bottom level holds its hierarchy; a top
// level holds the encoded hierarchy of all its bottoms in one storage buffer.
type accelerationStructure struct {
	handle
	level gpu.AccelerationLevel

	bvh *accel.BVH

	topLevel *accel.TopLevel
	bottoms  map[gpu.AccelerationStructure]int
	buf      *buffer
}

func (a *accelerationStructure) Level() gpu.AccelerationLevel { return a.level }

func (a *accelerationStructure) Release() {
	if a.buf != nil {
		a.buf.Release()
		a.buf = nil
	}
	a.bvh = nil
	a.topLevel = nil
}

var (
	_ gpu.Buffer                = &buffer{}
	_ gpu.Image                 = &image{}
	_ gpu.ImageView             = &imageView{}
	_ gpu.Sampler               = &sampler{}
	_ gpu.ShaderModule          = &shaderModule{}
	_ gpu.DescriptorSetLayout   = &setLayout{}
	_ gpu.DescriptorSet         = &descriptorSet{}
	_ gpu.RenderPass            = &renderPass{}
	_ gpu.Framebuffer           = &framebuffer{}
	_ gpu.Pipeline              = &pipeline{}
	_ gpu.Semaphore             = &semaphore{}
	_ gpu.Fence                 = &fence{}
	_ gpu.AccelerationStructure = &accelerationStructure{}
)
