// Package gpu defines the device abstraction the render graph is written against: resource handles,
// explicit image layouts and barriers, command recording, submission and presentation. Backends
// implement Device and Surface; the stages never see a concrete graphics API.
package gpu

import "fmt"

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width, Height uint32
}

// IsZero reports whether the extent has zero area, as a minimized window does.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns width / height, or 1 for a zero-area extent.
func (e Extent2D) Aspect() float32 {
	if e.IsZero() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Format is a texel format.
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatDepth32Float
	FormatDepth24Plus
)

var formatNames = map[Format]string{
	FormatUndefined:      "undefined",
	FormatRGBA8Unorm:     "rgba8unorm",
	FormatRGBA8UnormSrgb: "rgba8unorm-srgb",
	FormatBGRA8Unorm:     "bgra8unorm",
	FormatBGRA8UnormSrgb: "bgra8unorm-srgb",
	FormatRGBA16Float:    "rgba16float",
	FormatRGBA32Float:    "rgba32float",
	FormatR32Float:       "r32float",
	FormatDepth32Float:   "depth32float",
	FormatDepth24Plus:    "depth24plus",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// IsDepth reports whether the format is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth32Float || f == FormatDepth24Plus
}

// TexelSize returns the size of one texel in bytes, 0 for formats that cannot be uploaded.
func (f Format) TexelSize() uint32 {
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8UnormSrgb, FormatBGRA8Unorm, FormatBGRA8UnormSrgb, FormatR32Float, FormatDepth32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// BufferUsage is a bit set describing how a buffer will be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageIndirect
)

// ImageUsage is a bit set describing how an image will be used.
type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthAttachment
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

// ShaderStage is a bit set of programmable stages.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageRayGen
	ShaderStageMiss
	ShaderStageClosestHit

	ShaderStageNone          ShaderStage = 0
	ShaderStageAllGraphics               = ShaderStageVertex | ShaderStageFragment
	ShaderStageAllRayTracing             = ShaderStageRayGen | ShaderStageMiss | ShaderStageClosestHit
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	case ShaderStageRayGen:
		return "raygen"
	case ShaderStageMiss:
		return "miss"
	case ShaderStageClosestHit:
		return "closesthit"
	default:
		return fmt.Sprintf("ShaderStage(%#x)", uint32(s))
	}
}

// ViewDimension is the dimensionality of an image view.
type ViewDimension int

const (
	ViewDimension2D ViewDimension = iota
	ViewDimension2DArray
	ViewDimensionCube
)

// CullMode selects which faces are discarded by rasterization.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// FrontFace selects the winding of front-facing triangles.
type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

// Topology is the primitive topology of a graphics pipeline.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

// CompareOp is a depth comparison function.
type CompareOp int

const (
	CompareOpLess CompareOp = iota
	CompareOpLessOrEqual
	CompareOpEqual
	CompareOpGreater
	CompareOpAlways
)

// BlendMode is the color blend state of one attachment.
type BlendMode int

const (
	BlendModeDisabled BlendMode = iota
	BlendModeAlpha
)

// LoadOp is an attachment load operation.
type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

// StoreOp is an attachment store operation.
type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// IndexFormat is the element type of an index buffer.
type IndexFormat int

const (
	IndexFormatUint32 IndexFormat = iota
	IndexFormatUint16
)

// FilterMode is a sampler filter.
type FilterMode int

const (
	FilterModeLinear FilterMode = iota
	FilterModeNearest
)

// AddressMode is a sampler address mode.
type AddressMode int

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
)

// VertexFormat is the type of one vertex attribute.
type VertexFormat int

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32
)

// Size returns the byte size of the format.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFormatFloat32, VertexFormatUint32:
		return 4
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	default:
		return 16
	}
}

// VertexAttribute is one attribute of a vertex input.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// VertexInput describes one vertex buffer binding.
type VertexInput struct {
	Stride      uint32
	PerInstance bool
	Attributes  []VertexAttribute
}

// PresentMode selects how presented images reach the display.
type PresentMode int

const (
	PresentModeFifo PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFifo:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	default:
		return "immediate"
	}
}

// Capabilities reports device limits and optional features.
type Capabilities struct {
	// RayTracing reports whether acceleration structures and ray tracing pipelines are available.
	RayTracing bool
	// MaxComputeWorkgroupInvocations is the maximum product of a workgroup's dimensions.
	MaxComputeWorkgroupInvocations uint32
	// MaxComputeWorkgroupSize is the per-axis workgroup size limit.
	MaxComputeWorkgroupSize [3]uint32
	// MaxPushConstantSize is the largest push constant block a pipeline may declare.
	MaxPushConstantSize uint32
}
