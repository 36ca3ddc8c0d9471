package gpu

import "fmt"

// HandleClass identifies the kind of GPU object a handle refers to.
type HandleClass int

const (
	ClassBuffer HandleClass = iota
	ClassImage
	ClassImageView
	ClassSampler
	ClassShaderModule
	ClassDescriptorSetLayout
	ClassDescriptorSet
	ClassRenderPass
	ClassFramebuffer
	ClassPipeline
	ClassSemaphore
	ClassFence
	ClassCommandBuffer
	ClassAccelerationStructure
)

var classNames = [...]string{
	"Buffer", "Image", "ImageView", "Sampler", "ShaderModule", "DescriptorSetLayout",
	"DescriptorSet", "RenderPass", "Framebuffer", "Pipeline", "Semaphore", "Fence",
	"CommandBuffer", "AccelerationStructure",
}

func (c HandleClass) String() string {
	if int(c) >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("HandleClass(%d)", int(c))
}

// Handle is a GPU object owned by whoever created it. Release destroys the object;
// releasing twice is a programming error.
type Handle interface {
	Class() HandleClass
	Label() string
	Release()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Handle
	Size() uint64
	Usage() BufferUsage
}

// Image is a GPU image with one or more array layers.
type Image interface {
	Handle
	Desc() ImageDesc
}

// ImageView is a typed view onto an image.
type ImageView interface {
	Handle
	Image() Image
	Dimension() ViewDimension
}

// Sampler is a texture sampler.
type Sampler interface {
	Handle
}

// ShaderModule is a compiled shader for one stage.
type ShaderModule interface {
	Handle
	Stage() ShaderStage
}

// DescriptorSetLayout describes the bindings of one descriptor set.
type DescriptorSetLayout interface {
	Handle
	Desc() SetLayoutDesc
}

// DescriptorSet is an immutable set of resource bindings matching a layout.
type DescriptorSet interface {
	Handle
	Layout() DescriptorSetLayout
	Writes() []DescriptorWrite
}

// RenderPass describes attachments, their layouts and the dependencies around the pass.
type RenderPass interface {
	Handle
	Desc() RenderPassDesc
}

// Framebuffer binds image views to the attachments of a render pass.
type Framebuffer interface {
	Handle
	Pass() RenderPass
	Attachments() []ImageView
	Extent() Extent2D
}

// BindPoint is the kind of work a pipeline performs.
type BindPoint int

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
	BindPointRayTracing
)

// Pipeline is a compiled graphics, compute or ray tracing pipeline with its layout.
type Pipeline interface {
	Handle
	BindPoint() BindPoint
	SetLayouts() []DescriptorSetLayout
}

// Semaphore orders GPU work between submissions and presentation.
type Semaphore interface {
	Handle
}

// Fence signals the CPU that a submission completed.
type Fence interface {
	Handle
}

// AccelerationLevel distinguishes bottom-level (geometry) from top-level (instance) structures.
type AccelerationLevel int

const (
	AccelerationBottomLevel AccelerationLevel = iota
	AccelerationTopLevel
)

// AccelerationStructure is a ray tracing acceleration structure.
type AccelerationStructure interface {
	Handle
	Level() AccelerationLevel
}
