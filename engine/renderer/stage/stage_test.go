package stage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

var (
	fullHD = gpu.Extent2D{Width: 1920, Height: 1080}
	hd     = gpu.Extent2D{Width: 1280, Height: 720}
)

// testRender stands in for the scene renderer's per-scene buffers.
type testRender struct {
	lights    gpu.Buffer
	materials gpu.Buffer
	frames    []gpu.Buffer
}

func newTestRender(t *testing.T, dev gpu.Device, s *scene.Scene, imageCount int) *testRender {
	t.Helper()
	r := &testRender{}
	var err error
	r.lights, err = dev.CreateBuffer(gpu.BufferDesc{Label: "Lights", Size: light.LightBufferSize, Usage: gpu.BufferUsageUniform})
	require.NoError(t, err)
	r.materials, err = dev.CreateBuffer(gpu.BufferDesc{Label: "Materials", Size: uint64(len(s.Materials()) * scene.GPUMaterialSize), Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)
	for i := range imageCount {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: fmt.Sprintf("Camera %d", i), Size: camera.GPUCameraUniformSize, Usage: gpu.BufferUsageUniform})
		require.NoError(t, err)
		r.frames = append(r.frames, buf)
	}
	return r
}

func (r *testRender) LightBuffer() gpu.Buffer    { return r.lights }
func (r *testRender) MaterialBuffer() gpu.Buffer { return r.materials }
func (r *testRender) FrameBuffers() []gpu.Buffer { return r.frames }

func (r *testRender) Release() {
	r.lights.Release()
	r.materials.Release()
	for _, b := range r.frames {
		b.Release()
	}
}

func withFlags(m scene.Material, flags scene.MaterialFlags) scene.Material {
	m.Flags = flags
	return m
}

// newTestScene builds an uploaded scene with two opaque and one alpha-tested material drawn
// by the G-buffer and two blended materials drawn by the forward pass.
func newTestScene(t *testing.T, dev gpu.Device, imageCount int, options ...scene.SceneBuilderOption) (*scene.Scene, *testRender) {
	t.Helper()
	opts := []scene.SceneBuilderOption{
		scene.WithMeshes(scene.CubeMesh(1), scene.PlaneMesh(10)),
		scene.WithMaterials(
			scene.NewMaterial("stone", mgl32.Vec4{0.5, 0.5, 0.5, 1}),
			withFlags(scene.NewMaterial("glass", mgl32.Vec4{0.8, 0.9, 1, 0.3}), scene.MaterialAlphaBlend),
			withFlags(scene.NewMaterial("leaves", mgl32.Vec4{0.2, 0.6, 0.1, 1}), scene.MaterialAlphaTest|scene.MaterialDoubleSided),
			scene.NewMaterial("brick", mgl32.Vec4{0.6, 0.2, 0.1, 1}),
			withFlags(scene.NewMaterial("film", mgl32.Vec4{1, 1, 1, 0.5}), scene.MaterialAlphaBlend|scene.MaterialDoubleSided),
		),
		scene.WithRenderObjects(
			scene.RenderObject{PrimitiveIndex: 0, MaterialIndex: 0, Transform: mgl32.Translate3D(0, 1, 0)},
			scene.RenderObject{PrimitiveIndex: 0, MaterialIndex: 1, Transform: mgl32.Translate3D(2, 1, 0)},
			scene.RenderObject{PrimitiveIndex: 1, MaterialIndex: 2, Transform: mgl32.Ident4()},
			scene.RenderObject{PrimitiveIndex: 0, MaterialIndex: 3, Transform: mgl32.Translate3D(-2, 1, 0)},
			scene.RenderObject{PrimitiveIndex: 1, MaterialIndex: 4, Transform: mgl32.Translate3D(0, 3, 0)},
			scene.RenderObject{PrimitiveIndex: 0, MaterialIndex: 1, Transform: mgl32.Translate3D(4, 1, 0)},
		),
		scene.WithLights(
			light.NewLight(light.LightTypeDirectional),
			light.NewLight(light.LightTypePoint, light.WithPosition(mgl32.Vec3{0, 4, 0})),
		),
		scene.WithComputeWorkers(1),
	}
	s := scene.NewScene("stage test", append(opts, options...)...)
	s.EnsureDefaults()
	require.NoError(t, s.Upload(dev))
	r := newTestRender(t, dev, s, imageCount)
	s.SetRenderComponent(r)
	return s, r
}

func testViews(t *testing.T, dev *gputest.Device, extent gpu.Extent2D, count int) []gpu.ImageView {
	t.Helper()
	views := make([]gpu.ImageView, 0, count)
	for i := range count {
		img, err := dev.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("Swapchain %d", i),
			Extent: extent,
			Format: gpu.FormatBGRA8Unorm,
			Usage:  gpu.ImageUsageColorAttachment | gpu.ImageUsageStorage,
		})
		require.NoError(t, err)
		dev.Tracker.Set(img, gpu.ImageLayoutPresentSrc)
		view, err := dev.CreateImageView(img, gpu.ViewDesc{})
		require.NoError(t, err)
		views = append(views, view)
	}
	return views
}

func releaseViews(views []gpu.ImageView) {
	for _, v := range views {
		img := v.Image()
		v.Release()
		img.Release()
	}
}

type fixture struct {
	dev      *gputest.Device
	shaders  *shader.Manager
	views    []gpu.ImageView
	gbuffer  *GBufferStage
	lighting *LightingStage
	forward  *ForwardStage
}

func newFixture(t *testing.T, extent gpu.Extent2D, options ...gputest.Option) *fixture {
	t.Helper()
	f := &fixture{dev: gputest.NewDevice(options...)}
	f.shaders = shader.NewManager(f.dev, shader.Embedded())
	f.views = testViews(t, f.dev, extent, 3)

	var err error
	f.gbuffer, err = NewGBufferStage(f.dev, f.shaders, f.views)
	require.NoError(t, err)
	f.lighting = NewLightingStage(f.dev, f.shaders, f.views, f.gbuffer)
	f.forward, err = NewForwardStage(f.dev, f.shaders, f.views, f.gbuffer)
	require.NoError(t, err)
	return f
}

func (f *fixture) stages() []Stage {
	return []Stage{f.gbuffer, f.lighting, f.forward}
}

func (f *fixture) register(t *testing.T, s *scene.Scene) {
	t.Helper()
	for _, st := range f.stages() {
		require.NoError(t, st.RegisterScene(s))
	}
}

func (f *fixture) resize(t *testing.T, views []gpu.ImageView) {
	t.Helper()
	for _, st := range f.stages() {
		require.NoError(t, st.Resize(views))
	}
	f.views = views
}

// frame records every stage for one image and returns the recorded commands.
func (f *fixture) frame(t *testing.T, imageIndex uint32) *gputest.CommandBuffer {
	t.Helper()
	handle, err := f.dev.CreateCommandBuffer("Frame")
	require.NoError(t, err)
	cmd := handle.(*gputest.CommandBuffer)
	require.NoError(t, cmd.Begin())
	for _, st := range f.stages() {
		st.Execute(cmd, imageIndex)
	}
	require.NoError(t, cmd.End())
	cmd.Release()
	return cmd
}

func (f *fixture) release() {
	for _, st := range f.stages() {
		st.Release()
	}
	releaseViews(f.views)
}

func TestCheckContracts(t *testing.T) {
	f := newFixture(t, fullHD)
	defer f.release()

	assert.NoError(t, CheckContracts(f.gbuffer, f.lighting, f.forward))
	assert.NoError(t, CheckContracts())
	assert.True(t, f.gbuffer.Contract().Untouched())

	err := CheckContracts(f.forward)
	assert.ErrorIs(t, err, ErrContract)
	assert.ErrorContains(t, err, "forward")

	assert.ErrorIs(t, CheckContracts(f.gbuffer, f.lighting), ErrContract)
	assert.ErrorIs(t, CheckContracts(f.forward, f.lighting), ErrContract)
}

func TestCreateMaterialPipelinesDedup(t *testing.T) {
	a := scene.MaterialAlphaTest
	b := scene.MaterialDoubleSided
	materials := []scene.Material{
		withFlags(scene.Material{Name: "a1"}, a),
		withFlags(scene.Material{Name: "a2"}, a),
		withFlags(scene.Material{Name: "b"}, b),
		withFlags(scene.Material{Name: "a3"}, a),
	}

	var created []scene.MaterialFlags
	create := func(flags scene.MaterialFlags) (pipeline.Pipeline, error) {
		created = append(created, flags)
		return pipeline.NewPipeline(flags.String(), pipeline.PipelineTypeGraphics), nil
	}

	pipes, err := CreateMaterialPipelines(materials, nil, create)
	require.NoError(t, err)
	assert.Equal(t, 2, pipes.Len())
	assert.Equal(t, []scene.MaterialFlags{a, b}, pipes.Flags)
	assert.Equal(t, []scene.MaterialFlags{a, b}, created)
	assert.Equal(t, "ALPHA_TEST", pipes.Get(a).PipelineKey())
	assert.Nil(t, pipes.Get(scene.MaterialAlphaBlend))

	created = nil
	pipes, err = CreateMaterialPipelines(materials, func(f scene.MaterialFlags) bool { return f != a }, create)
	require.NoError(t, err)
	assert.Equal(t, []scene.MaterialFlags{b}, pipes.Flags)

	boom := errors.New("boom")
	pipes, err = CreateMaterialPipelines(materials, nil, func(flags scene.MaterialFlags) (pipeline.Pipeline, error) {
		if flags == b {
			return nil, boom
		}
		return pipeline.NewPipeline(flags.String(), pipeline.PipelineTypeGraphics), nil
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "DOUBLE_SIDED")
	assert.Equal(t, 1, pipes.Len())
}

func TestLightingWorkgroups(t *testing.T) {
	tests := []struct {
		name   string
		extent gpu.Extent2D
		caps   gpu.Capabilities
		tile   gpu.WorkgroupTile
		groups [3]uint32
	}{
		{"full hd", fullHD, gputest.DefaultCapabilities, gpu.WorkgroupTile{Size: [2]uint32{8, 8}, LoadCount: [2]uint32{1, 1}}, [3]uint32{240, 135, 1}},
		{"smaller than a tile", gpu.Extent2D{Width: 7, Height: 7}, gputest.DefaultCapabilities, gpu.WorkgroupTile{Size: [2]uint32{8, 8}, LoadCount: [2]uint32{1, 1}}, [3]uint32{1, 1, 1}},
		{
			"constrained device", fullHD,
			gpu.Capabilities{MaxComputeWorkgroupInvocations: 16, MaxComputeWorkgroupSize: [3]uint32{16, 16, 1}},
			gpu.WorkgroupTile{Size: [2]uint32{4, 4}, LoadCount: [2]uint32{2, 2}},
			[3]uint32{240, 135, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.extent, gputest.WithCapabilities(tt.caps))
			defer f.release()

			assert.Equal(t, tt.tile, f.lighting.Tile())
			assert.Equal(t, tt.groups, f.lighting.Groups())
		})
	}
}

func TestFrameRecording(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	f.register(t, s)

	for _, imageIndex := range []uint32{0, 1, 0} {
		cmd := f.frame(t, imageIndex)
		assert.Equal(t, gpu.ImageLayoutPresentSrc, f.dev.Tracker.Layout(f.views[imageIndex].Image()))
		assert.Equal(t, gpu.ImageLayoutDepthAttachment, f.dev.Tracker.Layout(f.gbuffer.DepthView().Image()))
		assert.Equal(t, gpu.ImageLayoutGeneral, f.dev.Tracker.Layout(f.gbuffer.Target(GBufferNormal).Image()))

		dispatch := cmd.Filter("Dispatch")
		require.Len(t, dispatch, 1)
		assert.Equal(t, [5]uint32{240, 135, 1}, dispatch[0].Args)

		barriers := cmd.Filter("PipelineBarrier")
		require.Len(t, barriers, 2)
		assert.Equal(t, gpu.LayoutTransition{
			Old: gpu.ImageLayoutPresentSrc, New: gpu.ImageLayoutGeneral, Barrier: gpu.WaitForNone(gpu.ScopeComputeWrite),
		}, barriers[0].Images[0].Transition)
		assert.Same(t, f.views[imageIndex].Image(), barriers[1].Images[0].Image)
		assert.Equal(t, gpu.ImageLayoutColorAttachment, barriers[1].Images[0].Transition.New)

		passes := cmd.Filter("BeginRenderPass")
		require.Len(t, passes, 2)
		assert.Same(t, f.gbuffer.framebuffer, passes[0].Framebuffer)
		assert.Same(t, f.forward.framebuffers[imageIndex], passes[1].Framebuffer)
		assert.Equal(t, float32(1), passes[0].Clears[GBufferColorCount].Depth)
	}

	cmd := f.frame(t, 2)
	// The G-buffer draws stone and brick, then leaves. The forward pass draws glass, film and
	// glass again in scene order.
	var counts []uint32
	for _, d := range cmd.Filter("DrawIndexed") {
		counts = append(counts, d.Args[0])
	}
	assert.Equal(t, []uint32{36, 36, 6, 36, 6, 36}, counts)

	sky := cmd.Filter("Draw")
	require.Len(t, sky, 1)
	assert.Equal(t, uint32(skyVertexCount), sky[0].Args[0])

	// Two G-buffer variants, one lighting pipeline, the sky and three forward switches.
	assert.Len(t, cmd.Filter("BindPipeline"), 7)

	push := cmd.Filter("PushConstants")
	require.Len(t, push, 6)
	assert.Equal(t, scene.MarshalDrawPush(mgl32.Translate3D(0, 1, 0), 0), push[0].Data)
	assert.Equal(t, scene.MarshalDrawPush(mgl32.Translate3D(2, 1, 0), 1), push[3].Data)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestPipelineState(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	defer func() {
		f.release()
		s.Release()
		r.Release()
	}()
	f.register(t, s)

	graphics := func(p pipeline.Pipeline) *gpu.GraphicsPipelineDesc {
		return p.Handle().(*gputest.Pipeline).Graphics
	}

	gb := f.gbuffer.Bundle().Materials
	require.Equal(t, 2, gb.Len())
	opaque := graphics(gb.Get(0))
	assert.Equal(t, gpu.CullModeBack, opaque.CullMode)
	assert.Equal(t, &gpu.DepthState{Compare: gpu.CompareOpLess, Write: true}, opaque.Depth)
	assert.Equal(t, []gpu.BlendMode{gpu.BlendModeDisabled, gpu.BlendModeDisabled, gpu.BlendModeDisabled, gpu.BlendModeDisabled}, opaque.Blend)
	assert.Equal(t, gpu.CullModeNone, graphics(gb.Get(scene.MaterialAlphaTest|scene.MaterialDoubleSided)).CullMode)

	sky := graphics(f.forward.skyPipeline())
	assert.Equal(t, gpu.CullModeFront, sky.CullMode)
	assert.Equal(t, &gpu.DepthState{Compare: gpu.CompareOpLessOrEqual}, sky.Depth)
	assert.Equal(t, []gpu.BlendMode{gpu.BlendModeDisabled}, sky.Blend)
	assert.Empty(t, sky.VertexInputs)

	fw := f.forward.Bundle().Materials
	require.Equal(t, 2, fw.Len())
	glass := graphics(fw.Get(scene.MaterialAlphaBlend))
	assert.Equal(t, gpu.CullModeBack, glass.CullMode)
	assert.Equal(t, []gpu.BlendMode{gpu.BlendModeAlpha}, glass.Blend)
	assert.False(t, glass.Depth.Write)
	assert.Equal(t, gpu.CullModeNone, graphics(fw.Get(scene.MaterialAlphaBlend|scene.MaterialDoubleSided)).CullMode)

	lighting := f.lighting.Bundle().Pipelines()[0].Handle().(*gputest.Pipeline)
	require.NotNil(t, lighting.Compute)
	assert.Len(t, lighting.Compute.SetLayouts, 3)
}

func TestRegisterRemoveRoundTrip(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	baseline := f.dev.Live()

	f.register(t, s)
	assert.Zero(t, f.shaders.Live(), "modules are destroyed once the pipelines exist")
	assert.Zero(t, f.dev.LiveCount(gpu.ClassShaderModule))
	assert.Equal(t, 2+1+3, f.dev.LiveCount(gpu.ClassPipeline))
	for _, st := range []*Base{&f.gbuffer.Base, &f.lighting.Base, &f.forward.Base} {
		assert.Same(t, s, st.Scene())
		assert.True(t, st.Ready())
	}

	created := f.dev.Created()[gpu.ClassPipeline]
	f.register(t, s)
	assert.Equal(t, created, f.dev.Created()[gpu.ClassPipeline], "registering the same scene twice is a no-op")

	for _, st := range f.stages() {
		st.RemoveScene()
		st.RemoveScene()
	}
	assert.Equal(t, baseline, f.dev.Live())
	assert.Nil(t, f.gbuffer.Scene())

	// Rendering without a scene records nothing.
	cmd := f.frame(t, 0)
	assert.Empty(t, cmd.Commands)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestRegisterSwitchesScenes(t *testing.T) {
	f := newFixture(t, fullHD)
	first, r1 := newTestScene(t, f.dev, 3)
	second, r2 := newTestScene(t, f.dev, 3)

	f.register(t, first)
	live := f.dev.Live()
	f.register(t, second)
	assert.Same(t, second, f.lighting.Scene())
	assert.Equal(t, live, f.dev.Live())

	f.release()
	first.Release()
	second.Release()
	r1.Release()
	r2.Release()
	assert.Empty(t, f.dev.Live())
}

func TestRegisterRejectsIncompleteScenes(t *testing.T) {
	f := newFixture(t, fullHD)
	defer f.release()
	baseline := f.dev.Live()

	pending := scene.NewScene("pending", scene.WithComputeWorkers(1))
	assert.ErrorIs(t, f.gbuffer.RegisterScene(pending), ErrNotUploaded)

	s, r := newTestScene(t, f.dev, 3)
	s.SetRenderComponent(nil)
	assert.ErrorIs(t, f.lighting.RegisterScene(s), ErrNoRenderComponent)
	assert.Nil(t, f.lighting.Scene())

	s.Release()
	r.Release()
	assert.Equal(t, baseline, f.dev.Live())
}

func TestRegisterNilSceneKeepsCurrent(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	f.register(t, s)
	live := f.dev.Live()

	for _, st := range f.stages() {
		assert.ErrorIs(t, st.RegisterScene(nil), ErrNilScene)
	}
	for _, b := range []*Base{&f.gbuffer.Base, &f.lighting.Base, &f.forward.Base} {
		assert.Same(t, s, b.Scene())
		assert.True(t, b.Ready())
	}
	assert.Equal(t, live, f.dev.Live())

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestRegisterFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	baseline := f.dev.Live()

	f.dev.ShaderError = func(desc gpu.ShaderModuleDesc) error {
		if desc.Stage == gpu.ShaderStageFragment {
			return errors.New("syntax error")
		}
		return nil
	}
	err := f.gbuffer.RegisterScene(s)
	assert.ErrorIs(t, err, shader.ErrCompile)
	assert.ErrorContains(t, err, "stage gbuffer")
	assert.Nil(t, f.gbuffer.Scene())
	assert.Zero(t, f.shaders.Live())
	assert.Equal(t, baseline, f.dev.Live())

	f.release()
	s.Release()
	r.Release()
}

func TestReloadShadersKeepsPipelinesOnFailure(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	f.register(t, s)

	before := f.forward.Bundle()
	live := f.dev.Live()

	f.dev.ShaderError = func(gpu.ShaderModuleDesc) error { return errors.New("unexpected token") }
	for _, st := range f.stages() {
		st.ReloadShaders()
	}
	assert.Same(t, before, f.forward.Bundle())
	assert.Equal(t, live, f.dev.Live())
	f.frame(t, 0)

	f.dev.ShaderError = nil
	for _, st := range f.stages() {
		st.ReloadShaders()
	}
	assert.NotSame(t, before, f.forward.Bundle())
	assert.Equal(t, live, f.dev.Live(), "the previous bundle is released")
	f.frame(t, 1)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestResize(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	f.register(t, s)
	f.frame(t, 0)

	old := f.views
	views := testViews(t, f.dev, hd, 3)
	f.resize(t, views)
	releaseViews(old)

	assert.Equal(t, hd, f.gbuffer.Extent())
	for _, img := range f.gbuffer.Images() {
		assert.Equal(t, hd, img.Desc().Extent)
	}
	assert.Equal(t, [3]uint32{160, 90, 1}, f.lighting.Groups())
	require.Len(t, f.forward.framebuffers, 3)
	assert.Equal(t, hd, f.forward.framebuffers[0].Extent())

	live := f.dev.Live()
	f.resize(t, views)
	assert.Equal(t, live, f.dev.Live(), "resizing to the same views is idempotent")

	cmd := f.frame(t, 1)
	assert.Equal(t, [5]uint32{160, 90, 1}, cmd.Filter("Dispatch")[0].Args)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestResizeChangedImageCount(t *testing.T) {
	f := newFixture(t, fullHD)
	s, r := newTestScene(t, f.dev, 3)
	f.register(t, s)

	// The scene renderer resizes its per-image buffers before the stages.
	r.frames[2].Release()
	r.frames = r.frames[:2]

	old := f.views
	f.resize(t, testViews(t, f.dev, fullHD, 2))
	releaseViews(old)

	assert.Equal(t, uint32(2), f.lighting.Bundle().Provider.ImageCount())
	f.frame(t, 1)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestSceneComponentsReachShaders(t *testing.T) {
	f := newFixture(t, fullHD)
	vol, err := light.GridVolume(mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{1, 2, 1}, [3]int{2, 2, 2})
	require.NoError(t, err)
	s, r := newTestScene(t, f.dev, 3, scene.WithLightVolume(vol))
	rt, err := s.GenerateTLAS(f.dev)
	require.NoError(t, err)
	s.SetRayTracing(rt)

	defines := SceneDefines(s)
	assert.Contains(t, defines, "RAY_TRACING_ENABLED")
	assert.Contains(t, defines, "LIGHT_VOLUME_ENABLED")

	f.register(t, s)
	provider := f.lighting.Bundle().Provider
	for _, name := range []string{"tlas", "positions", "tetrahedral", "coefficients", "irradianceMapSampler"} {
		assert.True(t, provider.Has(name), name)
	}
	assert.False(t, provider.Has("environmentMap"))
	assert.True(t, f.forward.Bundle().Provider.Has("environmentMap"))
	f.frame(t, 0)

	f.release()
	s.Release()
	r.Release()
	assert.Empty(t, f.dev.Live())
}

func TestCameraData(t *testing.T) {
	dev := gputest.NewDevice()
	data, err := NewCameraData(dev, "Probe", 6)
	require.NoError(t, err)
	require.Len(t, data.Buffers, 6)
	assert.Equal(t, "Probe Camera 5", data.Buffers[5].Label())

	cam := camera.NewCamera()
	data.Write(dev, 2, cam.Uniform(64, 64))
	assert.Equal(t, 1, data.Buffers[2].(*gputest.Buffer).WriteCount)

	data.Release()
	assert.Empty(t, dev.Live())
}
