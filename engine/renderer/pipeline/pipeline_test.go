package pipeline

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
)

const drawSource = `
struct Camera {
    viewProjection: mat4x4<f32>,
}
struct DrawPush {
    model: mat4x4<f32>,
    materialIndex: u32,
    padding0: u32,
    padding1: u32,
    padding2: u32,
}
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
    @location(3) tangent: vec4<f32>,
}
struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
}
@group(0) @binding(0) var<uniform> camera: Camera;
@group(3) @binding(0) var<uniform> push: DrawPush;
@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = camera.viewProjection * push.model * vec4<f32>(in.position, 1.0);
    return out;
}
@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

const traceSource = `
struct TracePush {
    accumulationIndex: u32,
    sampleCount: u32,
    maxBounces: u32,
    seed: u32,
}
@group(0) @binding(0) var output: texture_storage_2d<rgba8unorm, write>;
@group(3) @binding(0) var<uniform> push: TracePush;
@compute @workgroup_size(8, 4, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    textureStore(output, gid.xy, vec4<f32>(f32(push.seed)));
}
`

type fixture struct {
	dev *gputest.Device
	mgr *shader.Manager
}

func newFixture(t *testing.T, options ...gputest.Option) *fixture {
	t.Helper()
	dev := gputest.NewDevice(options...)
	return &fixture{
		dev: dev,
		mgr: shader.NewManager(dev, fstest.MapFS{
			"draw.wgsl":  {Data: []byte(drawSource)},
			"trace.wgsl": {Data: []byte(traceSource)},
		}),
	}
}

func (f *fixture) module(t *testing.T, stage gpu.ShaderStage, path string) *shader.Module {
	t.Helper()
	m, err := f.mgr.CreateShaderModule(stage, path, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.mgr.DestroyShaderModule(m) })
	return m
}

func (f *fixture) layouts(t *testing.T, modules ...*shader.Module) []gpu.DescriptorSetLayout {
	t.Helper()
	bindings, err := shader.MergeBindings(modules...)
	require.NoError(t, err)
	layout, err := f.dev.CreateDescriptorSetLayout(gpu.SetLayoutDesc{Label: "Set 0", Bindings: bindings})
	require.NoError(t, err)
	t.Cleanup(layout.Release)
	return []gpu.DescriptorSetLayout{layout}
}

func (f *fixture) pass(t *testing.T) gpu.RenderPass {
	t.Helper()
	color := gpu.Attachment{Usage: gpu.AttachmentColor, Format: gpu.FormatRGBA8Unorm, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore}
	depth := gpu.Attachment{Usage: gpu.AttachmentDepth, Format: gpu.FormatDepth32Float, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore}
	pass, err := f.dev.CreateRenderPass(gpu.RenderPassDesc{Label: "Pass", Attachments: []gpu.Attachment{color, color, depth}})
	require.NoError(t, err)
	t.Cleanup(pass.Release)
	return pass
}

func TestGraphicsPipeline(t *testing.T) {
	f := newFixture(t)
	vs := f.module(t, gpu.ShaderStageVertex, "draw.wgsl")
	fs := f.module(t, gpu.ShaderStageFragment, "draw.wgsl")
	layouts := f.layouts(t, vs, fs)

	p := NewPipeline("GBuffer AlphaTest", PipelineTypeGraphics,
		WithVertexShader(vs),
		WithFragmentShader(fs),
		WithRenderPass(f.pass(t)),
		WithCullMode(gpu.CullModeBack),
		WithDepthCompare(gpu.CompareOpLessOrEqual),
		WithDepthWriteEnabled(false),
		WithBlendEnabled(true),
	)
	assert.Nil(t, p.Handle())
	assert.Same(t, vs, p.Shader(gpu.ShaderStageVertex))
	assert.Nil(t, p.Shader(gpu.ShaderStageCompute))
	assert.Len(t, p.Modules(), 2)
	assert.Equal(t, gpu.PushConstantRange{Stages: gpu.ShaderStageAllGraphics, Size: 80}, p.PushConstants())

	require.NoError(t, p.Create(f.dev, layouts))
	desc := p.Handle().(*gputest.Pipeline).Graphics
	require.NotNil(t, desc)
	assert.Equal(t, "GBuffer AlphaTest", desc.Label)
	assert.Equal(t, []gpu.BlendMode{gpu.BlendModeAlpha, gpu.BlendModeAlpha}, desc.Blend)
	assert.Equal(t, &gpu.DepthState{Compare: gpu.CompareOpLessOrEqual, Write: false}, desc.Depth)
	assert.Equal(t, gpu.CullModeBack, desc.CullMode)
	assert.Equal(t, gpu.FrontFaceCCW, desc.FrontFace)
	require.Len(t, desc.VertexInputs, 1)
	assert.Equal(t, uint32(48), desc.VertexInputs[0].Stride)
	assert.Equal(t, layouts, desc.SetLayouts)

	p.Release()
	p.Release()
	assert.Nil(t, p.Handle())
	assert.Zero(t, f.dev.LiveCount(gpu.ClassPipeline))
}

func TestGraphicsPipelineDepthDisabled(t *testing.T) {
	f := newFixture(t)
	vs := f.module(t, gpu.ShaderStageVertex, "draw.wgsl")

	p := NewPipeline("Depth Off", PipelineTypeGraphics, WithVertexShader(vs), WithRenderPass(f.pass(t)), WithDepthTestEnabled(false))
	require.NoError(t, p.Create(f.dev, f.layouts(t, vs)))
	defer p.Release()

	desc := p.Handle().(*gputest.Pipeline).Graphics
	assert.Nil(t, desc.Depth)
	assert.Nil(t, desc.Fragment)
	assert.Equal(t, []gpu.BlendMode{gpu.BlendModeDisabled, gpu.BlendModeDisabled}, desc.Blend)
}

func TestComputePipelineBind(t *testing.T) {
	f := newFixture(t)
	cs := f.module(t, gpu.ShaderStageCompute, "trace.wgsl")
	layouts := f.layouts(t, cs)

	p := NewPipeline("Lighting", PipelineTypeCompute, WithComputeShader(cs))
	require.NoError(t, p.Create(f.dev, layouts))
	defer p.Release()
	assert.Equal(t, gpu.BindPointCompute, p.Handle().BindPoint())
	assert.Equal(t, uint32(16), p.PushConstants().Size)

	img, err := f.dev.CreateImage(gpu.ImageDesc{Label: "Out", Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gpu.FormatRGBA8Unorm, Usage: gpu.ImageUsageStorage})
	require.NoError(t, err)
	view, err := f.dev.CreateImageView(img, gpu.ViewDesc{})
	require.NoError(t, err)
	set, err := f.dev.CreateDescriptorSet(layouts[0], []gpu.DescriptorWrite{{Binding: 0, Type: gpu.BindingStorageImage, View: view}})
	require.NoError(t, err)

	cmd, err := f.dev.CreateCommandBuffer("Test")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	p.Bind(cmd, []gpu.DescriptorSet{set})
	cmd.Dispatch(1, 1, 1)
	require.NoError(t, cmd.End())
	assert.Equal(t, []string{"BindPipeline", "BindDescriptorSets", "Dispatch"}, cmd.(*gputest.CommandBuffer).Names())
}

func TestRayTracingPipeline(t *testing.T) {
	f := newFixture(t)
	rg := f.module(t, gpu.ShaderStageRayGen, "trace.wgsl")

	p := NewPipeline("PathTracing", PipelineTypeRayTracing, WithRayGenShader(rg))
	require.NoError(t, p.Create(f.dev, f.layouts(t, rg)))
	defer p.Release()

	desc := p.Handle().(*gputest.Pipeline).RayTracing
	require.NotNil(t, desc)
	assert.Equal(t, [2]uint32{8, 4}, desc.WorkgroupSize)
	assert.Equal(t, gpu.PushConstantRange{Stages: gpu.ShaderStageRayGen, Size: 16}, desc.PushConstants)
	assert.Same(t, rg, p.Shader(gpu.ShaderStageRayGen))
	assert.Nil(t, p.Shader(gpu.ShaderStageMiss))
}

func TestRayTracingUnsupported(t *testing.T) {
	f := newFixture(t, gputest.WithRayTracing(false))
	rg := f.module(t, gpu.ShaderStageRayGen, "trace.wgsl")

	p := NewPipeline("PathTracing", PipelineTypeRayTracing, WithRayGenShader(rg))
	err := p.Create(f.dev, f.layouts(t, rg))
	assert.True(t, errors.Is(err, gpu.ErrUnsupported))
	assert.Nil(t, p.Handle())
}

func TestCreateReplacesPipeline(t *testing.T) {
	f := newFixture(t)
	cs := f.module(t, gpu.ShaderStageCompute, "trace.wgsl")
	layouts := f.layouts(t, cs)

	p := NewPipeline("Lighting", PipelineTypeCompute, WithComputeShader(cs))
	require.NoError(t, p.Create(f.dev, layouts))
	first := p.Handle()
	require.NoError(t, p.Create(f.dev, layouts))
	assert.NotSame(t, first, p.Handle())
	assert.Equal(t, 1, f.dev.LiveCount(gpu.ClassPipeline))

	p.Release()
	assert.Zero(t, f.dev.LiveCount(gpu.ClassPipeline))
}

func TestCreateIncomplete(t *testing.T) {
	f := newFixture(t)
	vs := f.module(t, gpu.ShaderStageVertex, "draw.wgsl")

	tests := []struct {
		name string
		p    Pipeline
	}{
		{"graphics without pass", NewPipeline("a", PipelineTypeGraphics, WithVertexShader(vs))},
		{"graphics without vertex", NewPipeline("b", PipelineTypeGraphics, WithRenderPass(f.pass(t)))},
		{"compute without module", NewPipeline("c", PipelineTypeCompute)},
		{"ray tracing without raygen", NewPipeline("d", PipelineTypeRayTracing)},
		{"unknown type", NewPipeline("e", PipelineType(9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Create(f.dev, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIncomplete)
			assert.Contains(t, err.Error(), "pipeline "+tt.p.PipelineKey())
			assert.Nil(t, tt.p.Handle())
		})
	}
	assert.Zero(t, f.dev.LiveCount(gpu.ClassPipeline))
}

func TestPipelineTypeString(t *testing.T) {
	assert.Equal(t, "graphics", PipelineTypeGraphics.String())
	assert.Equal(t, "compute", PipelineTypeCompute.String())
	assert.Equal(t, "ray-tracing", PipelineTypeRayTracing.String())
	assert.Equal(t, "PipelineType(9)", PipelineType(9).String())
}
