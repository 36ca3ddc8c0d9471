package gpu

import "github.com/go-gl/mathgl/mgl32"

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label  string
	Extent Extent2D
	Layers uint32
	Format Format
	Usage  ImageUsage
}

// ViewDesc describes an image view. A zero value views a single-layer 2D image.
type ViewDesc struct {
	Label     string
	Dimension ViewDimension
	// BaseLayer is the layer a 2D view of a layered image starts at.
	BaseLayer uint32
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label   string
	Filter  FilterMode
	Address AddressMode
	// Compare enables depth comparison sampling.
	Compare bool
}

// ShaderModuleDesc describes a shader module compiled from WGSL source.
type ShaderModuleDesc struct {
	Label      string
	Stage      ShaderStage
	Source     string
	EntryPoint string
}

// BindingType is the kind of resource a descriptor binding holds.
type BindingType int

const (
	BindingUniformBuffer BindingType = iota
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampledImage
	BindingDepthImage
	BindingStorageImage
	BindingSampler
	BindingComparisonSampler
	BindingAccelerationStructure
)

var bindingTypeNames = [...]string{
	"uniform", "storage", "read-only-storage", "sampled-image", "depth-image",
	"storage-image", "sampler", "comparison-sampler", "acceleration-structure",
}

func (t BindingType) String() string {
	if int(t) >= 0 && int(t) < len(bindingTypeNames) {
		return bindingTypeNames[t]
	}
	return "unknown"
}

// IsBuffer reports whether the binding takes a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingUniformBuffer || t == BindingStorageBuffer || t == BindingReadOnlyStorageBuffer
}

// IsImage reports whether the binding takes an image view.
func (t BindingType) IsImage() bool {
	return t == BindingSampledImage || t == BindingDepthImage || t == BindingStorageImage
}

// IsSampler reports whether the binding takes a sampler.
func (t BindingType) IsSampler() bool {
	return t == BindingSampler || t == BindingComparisonSampler
}

// Binding is one reflected descriptor binding.
type Binding struct {
	Set           uint32
	Binding       uint32
	Name          string
	Type          BindingType
	Stages        ShaderStage
	ViewDimension ViewDimension
	// StorageFormat is the texel format of a storage image binding.
	StorageFormat Format
	// MinSize is the minimum byte size of a buffer binding, 0 when unknown.
	MinSize uint64
}

// SetLayoutDesc describes a descriptor set layout.
type SetLayoutDesc struct {
	Label    string
	Set      uint32
	Bindings []Binding
}

// Find returns the binding with the given name.
func (d SetLayoutDesc) Find(name string) (Binding, bool) {
	for _, b := range d.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// DescriptorWrite fills one binding of a descriptor set. Exactly one resource field is set.
type DescriptorWrite struct {
	Binding uint32
	Type    BindingType

	Buffer Buffer
	// Offset and Size select a buffer range; Size 0 binds the remainder of the buffer.
	Offset, Size uint64

	View                  ImageView
	Sampler               Sampler
	AccelerationStructure AccelerationStructure
}

// Resource returns the handle bound by the write.
func (w DescriptorWrite) Resource() Handle {
	switch {
	case w.Buffer != nil:
		return w.Buffer
	case w.View != nil:
		return w.View
	case w.Sampler != nil:
		return w.Sampler
	case w.AccelerationStructure != nil:
		return w.AccelerationStructure
	default:
		return nil
	}
}

// AttachmentUsage is the role of a render pass attachment.
type AttachmentUsage int

const (
	AttachmentColor AttachmentUsage = iota
	AttachmentDepth
)

// Attachment describes one render pass attachment and the layouts it moves through.
type Attachment struct {
	Usage   AttachmentUsage
	Format  Format
	LoadOp  LoadOp
	StoreOp StoreOp
	// InitialLayout is the layout the image must be in when the pass begins.
	InitialLayout ImageLayout
	// ActualLayout is the layout used while the pass runs.
	ActualLayout ImageLayout
	// FinalLayout is the layout the image is left in when the pass ends.
	FinalLayout ImageLayout
}

// RenderPassDesc describes a render pass. Previous orders earlier work before the pass,
// Following orders the pass before later work.
type RenderPassDesc struct {
	Label       string
	Attachments []Attachment
	Previous    *PipelineBarrier
	Following   *PipelineBarrier
}

// FramebufferDesc binds views to a render pass.
type FramebufferDesc struct {
	Label       string
	Pass        RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// ClearValue is the clear color or depth of one attachment.
type ClearValue struct {
	Color [4]float32
	Depth float32
}

// PushConstantSet is the descriptor set index reserved for push constants. Shaders declare their
// push block as `@group(3) @binding(0) var<uniform> push: T;` and backends without native push
// constants bind a uniform ring there.
const PushConstantSet = 3

// PushConstantRange declares a push constant block.
type PushConstantRange struct {
	Stages ShaderStage
	Size   uint32
}

// DepthState configures depth testing. A nil *DepthState disables the depth test.
type DepthState struct {
	Compare CompareOp
	Write   bool
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label         string
	RenderPass    RenderPass
	Vertex        ShaderModule
	Fragment      ShaderModule
	VertexInputs  []VertexInput
	Topology      Topology
	CullMode      CullMode
	FrontFace     FrontFace
	Depth         *DepthState
	Blend         []BlendMode
	SetLayouts    []DescriptorSetLayout
	PushConstants PushConstantRange
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label         string
	Module        ShaderModule
	SetLayouts    []DescriptorSetLayout
	PushConstants PushConstantRange
}

// RayTracingPipelineDesc describes a ray tracing pipeline. Backends without dedicated
// miss and hit stages fold them into the ray generation module.
type RayTracingPipelineDesc struct {
	Label         string
	RayGen        ShaderModule
	Miss          []ShaderModule
	ClosestHit    []ShaderModule
	SetLayouts    []DescriptorSetLayout
	PushConstants PushConstantRange
	// WorkgroupSize is the tile traced by one invocation group on compute-emulated backends.
	WorkgroupSize [2]uint32
}

// Geometry is the triangle data a bottom-level acceleration structure is built from.
type Geometry struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2
	Indices   []uint32
}

// AccelerationStructureDesc describes an acceleration structure. Bottom-level structures
// are built from Geometry at creation; top-level structures reserve MaxInstances records
// and may reference any structure in Bottoms.
type AccelerationStructureDesc struct {
	Label        string
	Level        AccelerationLevel
	Geometry     *Geometry
	MaxInstances uint32
	Bottoms      []AccelerationStructure
}

// Instance places a bottom-level structure in a top-level structure.
type Instance struct {
	Transform   mgl32.Mat4
	Bottom      AccelerationStructure
	CustomIndex uint32
	Mask        uint8
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	Commands   []CommandBuffer
	Wait       []Semaphore
	WaitStages []PipelineStage
	Signal     []Semaphore
	Fence      Fence
}
