// Package pipeline wraps graphics, compute and ray tracing pipelines together with the shader
// modules and fixed-function state they are created from.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
)

// PipelineType identifies the kind of work a pipeline performs.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeGraphics indicates a graphics pipeline with vertex and fragment shader entry points.
	PipelineTypeGraphics

	// PipelineTypeRayTracing indicates a ray tracing pipeline with a ray generation entry point.
	PipelineTypeRayTracing
)

func (t PipelineType) String() string {
	switch t {
	case PipelineTypeCompute:
		return "compute"
	case PipelineTypeGraphics:
		return "graphics"
	case PipelineTypeRayTracing:
		return "ray-tracing"
	default:
		return fmt.Sprintf("PipelineType(%d)", int(t))
	}
}

// ErrIncomplete is returned by Create when a pipeline lacks a module or render pass its type needs.
var ErrIncomplete = errors.New("pipeline: incomplete description")

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute, graphics or ray tracing
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used as the debug label and for lookups
	pipelineKey string

	// the following modules are used for pipeline creation, the ones the pipeline type needs must be set before Create.

	vertexShader, fragmentShader, computeShader, rayGenShader *shader.Module
	missShaders, closestHitShaders                             []*shader.Module

	// renderPass is the pass a graphics pipeline renders in
	renderPass gpu.RenderPass

	// handle is the device pipeline, nil until Create succeeds
	handle gpu.Pipeline

	// The following properties configure graphics pipelines during creation and can be set with the builder options.
	// Compute and ray tracing pipelines still carry defaults but do not use them.

	depthTestEnabled  bool
	depthWriteEnabled bool
	depthCompare      gpu.CompareOp
	blendEnabled      bool
	cullMode          gpu.CullMode
	topology          gpu.Topology
	frontFace         gpu.FrontFace
}

// Pipeline defines a GPU pipeline: a graphics pipeline (vertex + fragment modules in a render pass),
// a compute pipeline (compute module) or a ray tracing pipeline (ray generation module). It holds the
// configuration required for creation and the created device pipeline.
type Pipeline interface {
	// Type returns the type of the pipeline.
	//
	// Returns:
	//   - PipelineType: the type of the pipeline
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the module of the given stage, nil if not set. Miss and closest hit
	// stages return the first module.
	//
	// Parameters:
	//   - stage: a single shader stage
	//
	// Returns:
	//   - *shader.Module: the module of the stage, or nil
	Shader(stage gpu.ShaderStage) *shader.Module

	// Modules returns every module of the pipeline.
	Modules() []*shader.Module

	// Handle returns the device pipeline, nil before Create.
	Handle() gpu.Pipeline

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	DepthWriteEnabled() bool

	// DepthCompare returns the depth comparison of this pipeline.
	DepthCompare() gpu.CompareOp

	// BlendEnabled returns whether alpha blending is enabled on the color attachments.
	BlendEnabled() bool

	// CullMode returns the cull mode configured for this pipeline.
	CullMode() gpu.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	Topology() gpu.Topology

	// FrontFace returns the front face winding order configured for this pipeline.
	FrontFace() gpu.FrontFace

	// PushConstants returns the push constant range of the pipeline's modules.
	//
	// Returns:
	//   - gpu.PushConstantRange: the range, zero when no module declares one
	PushConstants() gpu.PushConstantRange

	// Create creates the device pipeline with the given set layouts. A pipeline already created
	// is replaced once the new one exists.
	//
	// Parameters:
	//   - dev: the device to create the pipeline on
	//   - layouts: the descriptor set layouts indexed by set number
	//
	// Returns:
	//   - error: ErrIncomplete for a missing module or pass, or the device error
	Create(dev gpu.Device, layouts []gpu.DescriptorSetLayout) error

	// Bind records binding the pipeline and its descriptor sets starting at set 0.
	//
	// Parameters:
	//   - cmd: the recording command buffer
	//   - sets: the descriptor sets, may be empty
	Bind(cmd gpu.CommandBuffer, sets []gpu.DescriptorSet)

	// Release destroys the device pipeline. The modules are owned by the caller.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline. The device pipeline is created
// by Create once the modules and render pass are configured.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      gpu.CompareOpLess,
		blendEnabled:      false,
		cullMode:          gpu.CullModeNone,
		topology:          gpu.TopologyTriangleList,
		frontFace:         gpu.FrontFaceCCW,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(stage gpu.ShaderStage) *shader.Module {
	switch stage {
	case gpu.ShaderStageVertex:
		return p.vertexShader
	case gpu.ShaderStageFragment:
		return p.fragmentShader
	case gpu.ShaderStageCompute:
		return p.computeShader
	case gpu.ShaderStageRayGen:
		return p.rayGenShader
	case gpu.ShaderStageMiss:
		if len(p.missShaders) > 0 {
			return p.missShaders[0]
		}
	case gpu.ShaderStageClosestHit:
		if len(p.closestHitShaders) > 0 {
			return p.closestHitShaders[0]
		}
	}
	return nil
}

func (p *pipeline) Modules() []*shader.Module {
	var out []*shader.Module
	for _, m := range []*shader.Module{p.vertexShader, p.fragmentShader, p.computeShader, p.rayGenShader} {
		if m != nil {
			out = append(out, m)
		}
	}
	out = append(out, p.missShaders...)
	return append(out, p.closestHitShaders...)
}

func (p *pipeline) Handle() gpu.Pipeline {
	return p.handle
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthCompare() gpu.CompareOp {
	return p.depthCompare
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() gpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() gpu.Topology {
	return p.topology
}

func (p *pipeline) FrontFace() gpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) PushConstants() gpu.PushConstantRange {
	return shader.PushConstants(p.Modules()...)
}

func (p *pipeline) Create(dev gpu.Device, layouts []gpu.DescriptorSetLayout) error {
	var (
		handle gpu.Pipeline
		err    error
	)
	switch p.pipelineType {
	case PipelineTypeGraphics:
		handle, err = p.createGraphics(dev, layouts)
	case PipelineTypeCompute:
		handle, err = p.createCompute(dev, layouts)
	case PipelineTypeRayTracing:
		handle, err = p.createRayTracing(dev, layouts)
	default:
		err = fmt.Errorf("%w: unknown type %s", ErrIncomplete, p.pipelineType)
	}
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.pipelineKey, err)
	}

	if p.handle != nil {
		p.handle.Release()
	}
	p.handle = handle
	common.Logger().Debug("pipeline created", "key", p.pipelineKey, "type", p.pipelineType, "sets", len(layouts))
	return nil
}

func (p *pipeline) createGraphics(dev gpu.Device, layouts []gpu.DescriptorSetLayout) (gpu.Pipeline, error) {
	if p.vertexShader == nil || p.renderPass == nil {
		return nil, fmt.Errorf("%w: graphics pipelines need a vertex shader and a render pass", ErrIncomplete)
	}

	desc := gpu.GraphicsPipelineDesc{
		Label:         p.pipelineKey,
		RenderPass:    p.renderPass,
		Vertex:        p.vertexShader.Handle(),
		VertexInputs:  p.vertexShader.VertexInputs,
		Topology:      p.topology,
		CullMode:      p.cullMode,
		FrontFace:     p.frontFace,
		SetLayouts:    layouts,
		PushConstants: p.PushConstants(),
	}
	if p.fragmentShader != nil {
		desc.Fragment = p.fragmentShader.Handle()
	}

	hasDepth := false
	for _, a := range p.renderPass.Desc().Attachments {
		if a.Usage == gpu.AttachmentDepth {
			hasDepth = true
			continue
		}
		if p.blendEnabled {
			desc.Blend = append(desc.Blend, gpu.BlendModeAlpha)
		} else {
			desc.Blend = append(desc.Blend, gpu.BlendModeDisabled)
		}
	}
	if hasDepth && p.depthTestEnabled {
		desc.Depth = &gpu.DepthState{Compare: p.depthCompare, Write: p.depthWriteEnabled}
	}
	return dev.CreateGraphicsPipeline(desc)
}

func (p *pipeline) createCompute(dev gpu.Device, layouts []gpu.DescriptorSetLayout) (gpu.Pipeline, error) {
	if p.computeShader == nil {
		return nil, fmt.Errorf("%w: compute pipelines need a compute shader", ErrIncomplete)
	}
	return dev.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:         p.pipelineKey,
		Module:        p.computeShader.Handle(),
		SetLayouts:    layouts,
		PushConstants: p.PushConstants(),
	})
}

func (p *pipeline) createRayTracing(dev gpu.Device, layouts []gpu.DescriptorSetLayout) (gpu.Pipeline, error) {
	if p.rayGenShader == nil {
		return nil, fmt.Errorf("%w: ray tracing pipelines need a ray generation shader", ErrIncomplete)
	}
	desc := gpu.RayTracingPipelineDesc{
		Label:         p.pipelineKey,
		RayGen:        p.rayGenShader.Handle(),
		SetLayouts:    layouts,
		PushConstants: p.PushConstants(),
		WorkgroupSize: [2]uint32{p.rayGenShader.WorkgroupSize[0], p.rayGenShader.WorkgroupSize[1]},
	}
	for _, m := range p.missShaders {
		desc.Miss = append(desc.Miss, m.Handle())
	}
	for _, m := range p.closestHitShaders {
		desc.ClosestHit = append(desc.ClosestHit, m.Handle())
	}
	return dev.CreateRayTracingPipeline(desc)
}

func (p *pipeline) Bind(cmd gpu.CommandBuffer, sets []gpu.DescriptorSet) {
	cmd.BindPipeline(p.handle)
	if len(sets) > 0 {
		cmd.BindDescriptorSets(p.handle, 0, sets)
	}
}

func (p *pipeline) Release() {
	if p.handle != nil {
		p.handle.Release()
		p.handle = nil
	}
}
