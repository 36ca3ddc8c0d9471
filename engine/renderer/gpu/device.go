package gpu

import "context"

// Device is the opaque device and memory service the renderer is written against. It creates
// and uploads resources, records and submits command buffers, and exposes fences for CPU waits.
// All methods are called from the render goroutine.
type Device interface {
	// Capabilities returns the limits and optional features of the device.
	//
	// Returns:
	//   - Capabilities: the device capabilities
	Capabilities() Capabilities

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: size, usage and debug label of the buffer
	//
	// Returns:
	//   - Buffer: the new buffer, owned by the caller
	//   - error: an error if the allocation failed
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// WriteBuffer uploads data into a buffer at the given offset. The write is ordered before
	// any command buffer submitted afterwards.
	//
	// Parameters:
	//   - buffer: the destination buffer, created with BufferUsageCopyDst
	//   - offset: byte offset into the buffer
	//   - data: the bytes to copy
	WriteBuffer(buffer Buffer, offset uint64, data []byte)

	// CreateImage allocates an image.
	//
	// Parameters:
	//   - desc: extent, layer count, format and usage of the image
	//
	// Returns:
	//   - Image: the new image, in ImageLayoutUndefined
	//   - error: an error if the allocation failed
	CreateImage(desc ImageDesc) (Image, error)

	// WriteImage uploads tightly packed texels covering every layer of an image.
	WriteImage(image Image, data []byte)

	// ReadImage copies every layer of an image back to the host. It waits for all submitted
	// work, so it suits one-off captures rather than per-frame use.
	//
	// Parameters:
	//   - image: the source image, created with ImageUsageTransferSrc
	//
	// Returns:
	//   - []byte: tightly packed texels, layer after layer
	//   - error: an error if the image cannot be copied or the mapping failed
	ReadImage(image Image) ([]byte, error)

	// CreateImageView creates a view onto an image.
	CreateImageView(image Image, desc ViewDesc) (ImageView, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDesc) (Sampler, error)

	// CreateShaderModule compiles a shader module.
	//
	// Parameters:
	//   - desc: stage, entry point and source of the module
	//
	// Returns:
	//   - ShaderModule: the compiled module
	//   - error: an error if compilation failed
	CreateShaderModule(desc ShaderModuleDesc) (ShaderModule, error)

	// CreateDescriptorSetLayout creates a set layout from reflected bindings.
	CreateDescriptorSetLayout(desc SetLayoutDesc) (DescriptorSetLayout, error)

	// CreateDescriptorSet creates a descriptor set with every binding of the layout written.
	//
	// Parameters:
	//   - layout: the layout the set conforms to
	//   - writes: one write per binding of the layout
	//
	// Returns:
	//   - DescriptorSet: the new set
	//   - error: an error if a write does not match the layout
	CreateDescriptorSet(layout DescriptorSetLayout, writes []DescriptorWrite) (DescriptorSet, error)

	// CreateRenderPass creates a render pass.
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)

	// CreateFramebuffer binds views to a render pass.
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)

	// CreateGraphicsPipeline creates a graphics pipeline.
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)

	// CreateRayTracingPipeline creates a ray tracing pipeline. Returns ErrUnsupported when
	// Capabilities().RayTracing is false.
	CreateRayTracingPipeline(desc RayTracingPipelineDesc) (Pipeline, error)

	// CreateAccelerationStructure creates an acceleration structure. Bottom-level structures
	// are built immediately from their geometry.
	CreateAccelerationStructure(desc AccelerationStructureDesc) (AccelerationStructure, error)

	// CreateCommandBuffer creates a reusable command buffer.
	CreateCommandBuffer(label string) (CommandBuffer, error)

	// CreateSemaphore creates a semaphore.
	CreateSemaphore(label string) (Semaphore, error)

	// CreateFence creates a fence, optionally already signaled.
	CreateFence(label string, signaled bool) (Fence, error)

	// WaitForFence blocks until the fence is signaled or ctx is done.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - fence: the fence to wait on
	//
	// Returns:
	//   - error: ctx.Err() if the wait was abandoned, ErrDeviceLost if the device was lost
	WaitForFence(ctx context.Context, fence Fence) error

	// ResetFence returns a signaled fence to the unsignaled state.
	ResetFence(fence Fence) error

	// Submit submits recorded command buffers. A failure means the device is lost.
	Submit(info SubmitInfo) error

	// ExecuteImmediate records commands into a one-shot command buffer, submits it and
	// waits for completion.
	//
	// Parameters:
	//   - record: called once with a command buffer that is already recording
	//
	// Returns:
	//   - error: an error if recording or submission failed
	ExecuteImmediate(record func(cmd CommandBuffer)) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Release destroys the device. Every handle must be released first.
	Release()
}

// CommandBuffer records GPU work. Recording errors are sticky and reported by End.
type CommandBuffer interface {
	Handle

	// Begin starts recording, discarding previously recorded commands.
	Begin() error

	// End finishes recording and returns the first error encountered while recording.
	End() error

	// PipelineBarrier orders work and transitions image layouts.
	PipelineBarrier(barrier PipelineBarrier, images ...ImageBarrier)

	// BeginRenderPass begins a render pass on the framebuffer. Attachments move from their
	// initial to their actual layout; clears holds one value per attachment.
	BeginRenderPass(framebuffer Framebuffer, clears []ClearValue)

	// EndRenderPass ends the current render pass, leaving attachments in their final layout.
	EndRenderPass()

	BindPipeline(pipeline Pipeline)
	BindDescriptorSets(pipeline Pipeline, firstSet uint32, sets []DescriptorSet)
	PushConstants(pipeline Pipeline, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers ...Buffer)
	BindIndexBuffer(buffer Buffer, format IndexFormat)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	// TraceRays launches width x height x depth rays with the bound ray tracing pipeline.
	TraceRays(pipeline Pipeline, width, height, depth uint32)

	// BuildTopLevel rebuilds a top-level acceleration structure from instances.
	BuildTopLevel(tlas AccelerationStructure, instances []Instance)
}

// SurfaceCapabilities reports what a surface supports.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount is 0 when the surface imposes no maximum.
	MaxImageCount uint32
	// CurrentExtent is UndefinedExtent when the swapchain extent decides the surface size.
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []Format
	PresentModes  []PresentMode
}

// UndefinedExtent marks a surface whose size follows the swapchain.
var UndefinedExtent = Extent2D{Width: ^uint32(0), Height: ^uint32(0)}

// SurfaceConfig configures a surface for presentation.
type SurfaceConfig struct {
	Format      Format
	Extent      Extent2D
	PresentMode PresentMode
	ImageCount  uint32
	Usage       ImageUsage
}

// Surface is a presentation target.
type Surface interface {
	// Capabilities queries the surface.
	Capabilities() (SurfaceCapabilities, error)

	// Configure (re)creates the presentable images. Previously returned images become invalid.
	//
	// Parameters:
	//   - config: format, extent, present mode and image count
	//
	// Returns:
	//   - []Image: the presentable images, owned by the surface
	//   - error: an error if the configuration is not supported
	Configure(config SurfaceConfig) ([]Image, error)

	// Unconfigure destroys the presentable images.
	Unconfigure()

	// Acquire returns the index of the next presentable image and signals the semaphore when
	// it may be written. Returns ErrSwapchainOutOfDate when the swapchain must be recreated.
	Acquire(ctx context.Context, signal Semaphore) (uint32, error)

	// Present queues the image for presentation once wait is signaled. Returns
	// ErrSwapchainOutOfDate or ErrSwapchainSuboptimal when the swapchain should be recreated.
	Present(imageIndex uint32, wait Semaphore) error
}
