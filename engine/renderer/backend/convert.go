package backend

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

var textureFormats = map[gpu.Format]wgpu.TextureFormat{
	gpu.FormatUndefined:      wgpu.TextureFormatUndefined,
	gpu.FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gpu.FormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gpu.FormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gpu.FormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	gpu.FormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	gpu.FormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	gpu.FormatR32Float:       wgpu.TextureFormatR32Float,
	gpu.FormatDepth32Float:   wgpu.TextureFormatDepth32Float,
	gpu.FormatDepth24Plus:    wgpu.TextureFormatDepth24Plus,
}

func textureFormat(f gpu.Format) wgpu.TextureFormat {
	return textureFormats[f]
}

func bufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	for bit, usage := range map[gpu.BufferUsage]wgpu.BufferUsage{
		gpu.BufferUsageVertex:   wgpu.BufferUsageVertex,
		gpu.BufferUsageIndex:    wgpu.BufferUsageIndex,
		gpu.BufferUsageUniform:  wgpu.BufferUsageUniform,
		gpu.BufferUsageStorage:  wgpu.BufferUsageStorage,
		gpu.BufferUsageCopySrc:  wgpu.BufferUsageCopySrc,
		gpu.BufferUsageCopyDst:  wgpu.BufferUsageCopyDst,
		gpu.BufferUsageIndirect: wgpu.BufferUsageIndirect,
	} {
		if u&bit != 0 {
			out |= usage
		}
	}
	return out
}

func textureUsage(u gpu.ImageUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&(gpu.ImageUsageColorAttachment|gpu.ImageUsageDepthAttachment) != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&gpu.ImageUsageSampled != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpu.ImageUsageStorage != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&gpu.ImageUsageTransferSrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func shaderStages(s gpu.ShaderStage) wgpu.ShaderStage {
	out := wgpu.ShaderStageNone
	if s&gpu.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	// ray tracing stages run as compute on this backend
	if s&(gpu.ShaderStageCompute|gpu.ShaderStageAllRayTracing) != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func viewDimension(d gpu.ViewDimension) wgpu.TextureViewDimension {
	switch d {
	case gpu.ViewDimension2DArray:
		return wgpu.TextureViewDimension2DArray
	case gpu.ViewDimensionCube:
		return wgpu.TextureViewDimensionCube
	default:
		return wgpu.TextureViewDimension2D
	}
}

func cullMode(m gpu.CullMode) wgpu.CullMode {
	switch m {
	case gpu.CullModeFront:
		return wgpu.CullModeFront
	case gpu.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func frontFace(f gpu.FrontFace) wgpu.FrontFace {
	if f == gpu.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func topology(t gpu.Topology) wgpu.PrimitiveTopology {
	if t == gpu.TopologyLineList {
		return wgpu.PrimitiveTopologyLineList
	}
	return wgpu.PrimitiveTopologyTriangleList
}

func compareFunction(op gpu.CompareOp) wgpu.CompareFunction {
	switch op {
	case gpu.CompareOpLessOrEqual:
		return wgpu.CompareFunctionLessEqual
	case gpu.CompareOpEqual:
		return wgpu.CompareFunctionEqual
	case gpu.CompareOpGreater:
		return wgpu.CompareFunctionGreater
	case gpu.CompareOpAlways:
		return wgpu.CompareFunctionAlways
	default:
		return wgpu.CompareFunctionLess
	}
}

// alphaBlend is straight alpha over the existing color.
var alphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

func blendState(m gpu.BlendMode) *wgpu.BlendState {
	if m == gpu.BlendModeAlpha {
		state := alphaBlend
		return &state
	}
	return nil
}

func loadOp(op gpu.LoadOp) wgpu.LoadOp {
	if op == gpu.LoadOpLoad {
		return wgpu.LoadOpLoad
	}
	// WebGPU has no don't-care load; clearing is the cheapest defined contents
	return wgpu.LoadOpClear
}

func storeOp(op gpu.StoreOp) wgpu.StoreOp {
	if op == gpu.StoreOpDontCare {
		return wgpu.StoreOpDiscard
	}
	return wgpu.StoreOpStore
}

func indexFormat(f gpu.IndexFormat) wgpu.IndexFormat {
	if f == gpu.IndexFormatUint16 {
		return wgpu.IndexFormatUint16
	}
	return wgpu.IndexFormatUint32
}

func vertexFormat(f gpu.VertexFormat) wgpu.VertexFormat {
	switch f {
	case gpu.VertexFormatFloat32:
		return wgpu.VertexFormatFloat32
	case gpu.VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case gpu.VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case gpu.VertexFormatUint32:
		return wgpu.VertexFormatUint32
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func filterMode(f gpu.FilterMode) (wgpu.FilterMode, wgpu.MipmapFilterMode) {
	if f == gpu.FilterModeNearest {
		return wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	}
	return wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
}

func addressMode(a gpu.AddressMode) wgpu.AddressMode {
	if a == gpu.AddressModeClampToEdge {
		return wgpu.AddressModeClampToEdge
	}
	return wgpu.AddressModeRepeat
}

var presentModes = map[gpu.PresentMode]wgpu.PresentMode{
	gpu.PresentModeFifo:      wgpu.PresentModeFifo,
	gpu.PresentModeMailbox:   wgpu.PresentModeMailbox,
	gpu.PresentModeImmediate: wgpu.PresentModeImmediate,
}

func presentMode(m gpu.PresentMode) wgpu.PresentMode {
	return presentModes[m]
}

// fromPresentModes keeps the modes the gpu package can express, in surface order.
func fromPresentModes(modes []wgpu.PresentMode) []gpu.PresentMode {
	out := make([]gpu.PresentMode, 0, len(modes))
	for _, m := range modes {
		for mode, native := range presentModes {
			if native == m {
				out = append(out, mode)
			}
		}
	}
	return out
}

// bindGroupLayoutEntry converts one reflected binding. Acceleration structures are read-only
// storage buffers holding the encoded hierarchy.
func bindGroupLayoutEntry(b gpu.Binding) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    b.Binding,
		Visibility: shaderStages(b.Stages),
	}
	switch b.Type {
	case gpu.BindingUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = b.MinSize
	case gpu.BindingStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		entry.Buffer.MinBindingSize = b.MinSize
	case gpu.BindingReadOnlyStorageBuffer, gpu.BindingAccelerationStructure:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	case gpu.BindingSampledImage:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = viewDimension(b.ViewDimension)
	case gpu.BindingDepthImage:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = viewDimension(b.ViewDimension)
	case gpu.BindingStorageImage:
		entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		entry.StorageTexture.Format = textureFormat(b.StorageFormat)
		entry.StorageTexture.ViewDimension = viewDimension(b.ViewDimension)
	case gpu.BindingSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case gpu.BindingComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	}
	return entry
}
