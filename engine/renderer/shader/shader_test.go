package shader

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
)

const computeSource = `
override TILE: u32 = 8u;
@group(0) @binding(0) var<storage, read_write> values: array<f32>;
@compute @workgroup_size(TILE)
fn cs_main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x < COUNT) {
        values[gid.x] = 1.0;
    }
}
`

func TestManagerCreateAndDestroy(t *testing.T) {
	dev := gputest.NewDevice()
	m := NewManager(dev, fstest.MapFS{"fill.wgsl": {Data: []byte(computeSource)}})

	mod, err := m.CreateShaderModule(gpu.ShaderStageCompute, "fill.wgsl", Defines{"COUNT": uint32(2)}, Specialization{"TILE": 16})
	require.NoError(t, err)

	assert.Equal(t, "cs_main", mod.EntryPoint)
	assert.Equal(t, [3]uint32{16, 1, 1}, mod.WorkgroupSize)
	assert.Contains(t, mod.Source, "const COUNT = 2u;")
	assert.Equal(t, []string{"fill.wgsl"}, mod.Files)

	handle := mod.Handle().(*gputest.ShaderModule)
	assert.Equal(t, "fill.wgsl:compute", handle.Desc.Label)
	assert.Equal(t, "cs_main", handle.Desc.EntryPoint)
	assert.Equal(t, gpu.ShaderStageCompute, handle.Desc.Stage)

	b, ok := mod.Binding("values")
	require.True(t, ok)
	assert.Equal(t, gpu.BindingStorageBuffer, b.Type)
	_, ok = mod.Binding("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, m.Live())
	assert.Equal(t, 1, dev.LiveCount(gpu.ClassShaderModule))

	m.DestroyShaderModule(mod)
	m.DestroyShaderModule(mod)
	m.DestroyShaderModule(nil)
	assert.Nil(t, mod.Handle())
	assert.Zero(t, m.Live())
	assert.Empty(t, dev.Live())
}

func TestManagerCompileErrors(t *testing.T) {
	files := fstest.MapFS{
		"fill.wgsl":    {Data: []byte(computeSource)},
		"broken.wgsl":  {Data: []byte("#ifdef A\n")},
		"noentry.wgsl": {Data: []byte("fn helper() {}\n")},
	}
	deviceErr := errors.New("device rejected module")

	tests := []struct {
		name      string
		path      string
		options   []ManagerOption
		deviceErr error
	}{
		{name: "missing file", path: "nowhere.wgsl"},
		{name: "pre-processor", path: "broken.wgsl"},
		{name: "reflection", path: "noentry.wgsl"},
		{
			name: "validator",
			path: "fill.wgsl",
			options: []ManagerOption{WithValidator(ValidatorFunc(func(name, source string) error {
				return errors.New("bad source")
			}))},
		},
		{name: "device", path: "fill.wgsl", deviceErr: deviceErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			dev.ShaderError = func(gpu.ShaderModuleDesc) error { return tt.deviceErr }
			m := NewManager(dev, files, tt.options...)

			mod, err := m.CreateShaderModule(gpu.ShaderStageCompute, tt.path, Defines{"COUNT": uint32(1)}, nil)
			assert.Nil(t, mod)
			assert.ErrorIs(t, err, ErrCompile)
			if tt.deviceErr != nil {
				assert.ErrorIs(t, err, tt.deviceErr)
			}
			assert.Zero(t, m.Live())
			assert.Empty(t, dev.Live())
		})
	}
}

func TestManagerValidatorSeesProcessedSource(t *testing.T) {
	var seen string
	m := NewManager(gputest.NewDevice(), fstest.MapFS{"fill.wgsl": {Data: []byte(computeSource)}},
		WithValidator(ValidatorFunc(func(name, source string) error {
			seen = source
			return nil
		})))

	_, err := m.CreateShaderModule(gpu.ShaderStageCompute, "fill.wgsl", Defines{"COUNT": uint32(1)}, nil)
	require.NoError(t, err)
	assert.Contains(t, seen, "const TILE: u32 = 8u;")
	assert.NotContains(t, seen, "override")
}

func TestManagerHeaderOption(t *testing.T) {
	files := fstest.MapFS{"main.wgsl": {Data: []byte("//@oxy:include shared\n@compute @workgroup_size(1) fn cs_main() {}\n")}}
	m := NewManager(gputest.NewDevice(), files, WithHeader("shared", "const SHARED: u32 = 7u;"))

	mod, err := m.CreateShaderModule(gpu.ShaderStageCompute, "main.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, mod.Source, "const SHARED: u32 = 7u;")
}

func TestNagaValidatorReportsSyntaxErrors(t *testing.T) {
	err := NagaValidator{}.Validate("broken.wgsl", "fn main( {")
	assert.ErrorContains(t, err, "broken.wgsl")
}

func TestMergeBindings(t *testing.T) {
	vertex := &Module{Path: "a.wgsl", Stage: gpu.ShaderStageVertex, Reflection: Reflection{
		Bindings: []gpu.Binding{
			{Set: 1, Binding: 0, Name: "materials", Type: gpu.BindingReadOnlyStorageBuffer, Stages: gpu.ShaderStageVertex, MinSize: 16},
			{Set: 0, Binding: 0, Name: "camera", Type: gpu.BindingUniformBuffer, Stages: gpu.ShaderStageVertex, MinSize: 352},
		},
		PushConstantSize: 80,
	}}
	fragment := &Module{Path: "a.wgsl", Stage: gpu.ShaderStageFragment, Reflection: Reflection{
		Bindings: []gpu.Binding{
			{Set: 1, Binding: 0, Name: "materials", Type: gpu.BindingReadOnlyStorageBuffer, Stages: gpu.ShaderStageFragment, MinSize: 80},
			{Set: 1, Binding: 1, Name: "textures", Type: gpu.BindingSampledImage, Stages: gpu.ShaderStageFragment},
		},
		PushConstantSize: 80,
	}}

	merged, err := MergeBindings(vertex, nil, fragment)
	require.NoError(t, err)
	assert.Equal(t, []gpu.Binding{
		{Set: 0, Binding: 0, Name: "camera", Type: gpu.BindingUniformBuffer, Stages: gpu.ShaderStageVertex, MinSize: 352},
		{Set: 1, Binding: 0, Name: "materials", Type: gpu.BindingReadOnlyStorageBuffer, Stages: gpu.ShaderStageAllGraphics, MinSize: 80},
		{Set: 1, Binding: 1, Name: "textures", Type: gpu.BindingSampledImage, Stages: gpu.ShaderStageFragment},
	}, merged)
	assert.Equal(t, gpu.PushConstantRange{Stages: gpu.ShaderStageAllGraphics, Size: 80}, PushConstants(vertex, fragment))

	conflict := &Module{Path: "b.wgsl", Stage: gpu.ShaderStageFragment, Reflection: Reflection{
		Bindings: []gpu.Binding{{Set: 0, Binding: 0, Name: "lights", Type: gpu.BindingUniformBuffer}},
	}}
	_, err = MergeBindings(vertex, conflict)
	assert.ErrorContains(t, err, "b.wgsl")
}

func bindingNames(bindings []gpu.Binding) map[uint32][]string {
	out := make(map[uint32][]string)
	for _, b := range bindings {
		out[b.Set] = append(out[b.Set], b.Name)
	}
	return out
}

var sceneLightingNames = []string{
	"lights", "irradianceMap", "irradianceMapSampler", "reflectionMap", "reflectionMapSampler",
	"specularBRDF", "specularBRDFSampler",
}

func TestEmbeddedShaders(t *testing.T) {
	materialNames := []string{"materials", "textures", "texturesSampler"}
	withRT := append(append([]string(nil), sceneLightingNames...), "tlas", "positions", "tetrahedral", "coefficients")

	tests := []struct {
		name      string
		stage     gpu.ShaderStage
		path      string
		defines   Defines
		spec      Specialization
		bindings  map[uint32][]string
		push      uint32
		workgroup [3]uint32
	}{
		{
			name: "gbuffer vertex", stage: gpu.ShaderStageVertex, path: "gbuffer.wgsl",
			bindings: map[uint32][]string{0: {"camera"}, 1: materialNames},
			push:     80, workgroup: [3]uint32{1, 1, 1},
		},
		{
			name: "gbuffer fragment", stage: gpu.ShaderStageFragment, path: "gbuffer.wgsl",
			defines:  Defines{"ALPHA_TEST": nil, "DOUBLE_SIDED": nil, "NORMAL_MAPPING": nil},
			bindings: map[uint32][]string{0: {"camera"}, 1: materialNames},
			push:     80, workgroup: [3]uint32{1, 1, 1},
		},
		{
			name: "lighting", stage: gpu.ShaderStageCompute, path: "lighting.wgsl",
			defines: Defines{"POINT_LIGHT_COUNT": uint32(2)},
			spec:    Specialization{"TILE_X": uint32(8), "TILE_Y": uint32(8), "LOAD_X": uint32(1), "LOAD_Y": uint32(1)},
			bindings: map[uint32][]string{
				0: {"camera", "output"},
				1: {"gbufferBaseColor", "gbufferNormal", "gbufferEmission", "gbufferMisc", "gbufferDepth"},
				2: sceneLightingNames,
			},
			workgroup: [3]uint32{8, 8, 1},
		},
		{
			name: "lighting with ray tracing and light volume", stage: gpu.ShaderStageCompute, path: "lighting.wgsl",
			defines: Defines{"POINT_LIGHT_COUNT": uint32(2), "RAY_TRACING_ENABLED": nil, "LIGHT_VOLUME_ENABLED": nil},
			spec:    Specialization{"TILE_X": uint32(4), "LOAD_X": uint32(2)},
			bindings: map[uint32][]string{
				0: {"camera", "output"},
				1: {"gbufferBaseColor", "gbufferNormal", "gbufferEmission", "gbufferMisc", "gbufferDepth"},
				2: withRT,
			},
			workgroup: [3]uint32{4, 8, 1},
		},
		{
			name: "environment fragment", stage: gpu.ShaderStageFragment, path: "environment.wgsl",
			bindings:  map[uint32][]string{0: {"camera"}, 2: {"environmentMap", "environmentMapSampler"}},
			workgroup: [3]uint32{1, 1, 1},
		},
		{
			name: "forward fragment", stage: gpu.ShaderStageFragment, path: "forward.wgsl",
			defines:   Defines{"LIGHT_COUNT": uint32(1), "MATERIAL_COUNT": uint32(3), "ALPHA_BLEND": nil},
			bindings:  map[uint32][]string{0: {"camera"}, 1: materialNames, 2: sceneLightingNames},
			push:      80,
			workgroup: [3]uint32{1, 1, 1},
		},
		{
			name: "path tracing", stage: gpu.ShaderStageRayGen, path: "pathtracing.wgsl",
			defines: Defines{"LIGHT_COUNT": uint32(1), "RAY_TRACING_ENABLED": nil},
			bindings: map[uint32][]string{
				0: {"camera", "output"},
				1: append(append([]string(nil), materialNames...), "accumulation"),
				2: append(append([]string(nil), sceneLightingNames...), "tlas", "environmentMap", "environmentMapSampler"),
			},
			push:      16,
			workgroup: [3]uint32{8, 8, 1},
		},
		{
			name: "path tracing probe", stage: gpu.ShaderStageRayGen, path: "pathtracing.wgsl",
			defines: Defines{"LIGHT_COUNT": uint32(1), "RAY_TRACING_ENABLED": nil, "PROBE": nil},
			bindings: map[uint32][]string{
				0: {"camera", "output"},
				1: materialNames,
				2: append(append([]string(nil), sceneLightingNames...), "tlas", "environmentMap", "environmentMapSampler"),
			},
			push:      16,
			workgroup: [3]uint32{8, 8, 1},
		},
	}

	dev := gputest.NewDevice()
	m := NewManager(dev, Embedded())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := m.CreateShaderModule(tt.stage, tt.path, tt.defines, tt.spec)
			require.NoError(t, err)
			defer m.DestroyShaderModule(mod)

			assert.Equal(t, tt.bindings, bindingNames(mod.Bindings))
			assert.Equal(t, tt.push, mod.PushConstantSize)
			assert.Equal(t, tt.workgroup, mod.WorkgroupSize)
		})
	}
}

func TestEmbeddedStorageFormats(t *testing.T) {
	m := NewManager(gputest.NewDevice(), Embedded())
	for define, want := range map[string]gpu.Format{"": gpu.FormatRGBA8Unorm, "PROBE": gpu.FormatRGBA16Float} {
		defines := Defines{"LIGHT_COUNT": uint32(1), "RAY_TRACING_ENABLED": nil}
		if define != "" {
			defines[define] = nil
		}
		mod, err := m.CreateShaderModule(gpu.ShaderStageRayGen, "pathtracing.wgsl", defines, nil)
		require.NoError(t, err)
		b, ok := mod.Binding("output")
		require.True(t, ok)
		assert.Equal(t, want, b.StorageFormat)
		m.DestroyShaderModule(mod)
	}
}

func TestEmbeddedVertexLayout(t *testing.T) {
	m := NewManager(gputest.NewDevice(), Embedded())
	mod, err := m.CreateShaderModule(gpu.ShaderStageVertex, "gbuffer.wgsl", nil, nil)
	require.NoError(t, err)
	require.Len(t, mod.VertexInputs, 1)
	assert.Equal(t, uint32(48), mod.VertexInputs[0].Stride)

	env, err := m.CreateShaderModule(gpu.ShaderStageVertex, "environment.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, env.VertexInputs)
}
