package pipeline

import (
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - m: the vertex module to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(m *shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = m
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - m: the fragment module to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(m *shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = m
	}
}

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - m: the compute module to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(m *shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = m
	}
}

// WithRayGenShader sets the ray generation shader for this pipeline.
//
// Parameters:
//   - m: the ray generation module to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the ray generation shader for this pipeline
func WithRayGenShader(m *shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.rayGenShader = m
	}
}

// WithMissShaders sets the miss shaders of a ray tracing pipeline.
func WithMissShaders(m ...*shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.missShaders = m
	}
}

// WithClosestHitShaders sets the closest hit shaders of a ray tracing pipeline.
func WithClosestHitShaders(m ...*shader.Module) PipelineBuilderOption {
	return func(p *pipeline) {
		p.closestHitShaders = m
	}
}

// WithRenderPass sets the render pass a graphics pipeline renders in. The color attachments of the
// pass decide the number of blend states.
//
// Parameters:
//   - pass: the render pass
//
// Returns:
//   - PipelineBuilderOption: a function that sets the render pass for this pipeline
func WithRenderPass(pass gpu.RenderPass) PipelineBuilderOption {
	return func(p *pipeline) {
		p.renderPass = pass
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithDepthCompare sets the depth comparison for this pipeline.
//
// Parameters:
//   - op: the comparison, gpu.CompareOpLess by default
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth comparison for this pipeline
func WithDepthCompare(op gpu.CompareOp) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthCompare = op
	}
}

// WithBlendEnabled sets whether alpha blending is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend enabled state for this pipeline
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendEnabled = enabled
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (e.g., gpu.CullModeNone, gpu.CullModeFront, gpu.CullModeBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode gpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
//
// Parameters:
//   - topology: the primitive topology to use for this pipeline (e.g., gpu.TopologyTriangleList, gpu.TopologyLineList)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology gpu.Topology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: the front face to use for this pipeline (e.g., gpu.FrontFaceCCW, gpu.FrontFaceCW)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the front face for this pipeline
func WithFrontFace(frontFace gpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}
