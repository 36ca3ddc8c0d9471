package pathtracing

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
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

func (r *testRender) LightBuffer() gpu.Buffer    { return r.lights }
func (r *testRender) MaterialBuffer() gpu.Buffer { return r.materials }
func (r *testRender) FrameBuffers() []gpu.Buffer { return r.frames }

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

// newTestScene builds an uploaded scene with acceleration structures attached.
func newTestScene(t *testing.T, dev gpu.Device, imageCount int) *scene.Scene {
	t.Helper()
	s := scene.NewScene("pathtracing test",
		scene.WithMeshes(scene.CubeMesh(1), scene.PlaneMesh(10)),
		scene.WithMaterials(
			scene.NewMaterial("stone", mgl32.Vec4{0.5, 0.5, 0.5, 1}),
			scene.NewMaterial("brick", mgl32.Vec4{0.6, 0.2, 0.1, 1}),
		),
		scene.WithRenderObjects(
			scene.RenderObject{PrimitiveIndex: 0, MaterialIndex: 0, Transform: mgl32.Translate3D(0, 1, 0)},
			scene.RenderObject{PrimitiveIndex: 1, MaterialIndex: 1, Transform: mgl32.Ident4()},
		),
		scene.WithLights(light.NewLight(light.LightTypeDirectional)),
		scene.WithComputeWorkers(1),
	)
	s.EnsureDefaults()
	require.NoError(t, s.Upload(dev))
	s.SetRenderComponent(newTestRender(t, dev, s, imageCount))

	rt, err := s.GenerateTLAS(dev)
	require.NoError(t, err)
	s.SetRayTracing(rt)
	return s
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

// frame records one Execute for imageIndex and returns the recorded commands.
func frame(t *testing.T, dev *gputest.Device, r *Renderer, imageIndex uint32) *gputest.CommandBuffer {
	t.Helper()
	handle, err := dev.CreateCommandBuffer("Frame")
	require.NoError(t, err)
	cmd := handle.(*gputest.CommandBuffer)
	require.NoError(t, cmd.Begin())
	r.Execute(cmd, imageIndex)
	require.NoError(t, cmd.End())
	cmd.Release()
	return cmd
}

// pushedIndex decodes the accumulation index from a recorded push block.
func pushedIndex(t *testing.T, cmd *gputest.CommandBuffer) uint32 {
	t.Helper()
	pushes := cmd.Filter("PushConstants")
	require.Len(t, pushes, 1)
	require.Len(t, pushes[0].Data, pushSize)
	return binary.LittleEndian.Uint32(pushes[0].Data)
}

func newTestRenderer(t *testing.T, dev *gputest.Device, views []gpu.ImageView, options ...RendererOption) *Renderer {
	t.Helper()
	r, err := NewRenderer(dev, shader.NewManager(dev, shader.Embedded()), views, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestNewRendererRequiresRayTracing(t *testing.T) {
	dev := gputest.NewDevice(gputest.WithRayTracing(false))
	_, err := NewRenderer(dev, shader.NewManager(dev, shader.Embedded()), testViews(t, dev, hd, 2))
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
	assert.Zero(t, dev.LiveCount(gpu.ClassBuffer))
}

func TestRendererContract(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, testViews(t, dev, hd, 2))

	assert.Equal(t, ModeSwapchain, r.Mode())
	assert.Equal(t, gpu.ImageLayoutUndefined, r.Contract().Entry)
	assert.Equal(t, gpu.ImageLayoutPresentSrc, r.Contract().Exit)
	require.NotNil(t, r.Accumulation())
	assert.Equal(t, uint64(hd.Width)*uint64(hd.Height)*accumulationTexelSize, r.Accumulation().(*gputest.Buffer).Size())
}

func TestRegisterRejectsSceneWithoutRayTracing(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, testViews(t, dev, hd, 2))
	s := newTestScene(t, dev, 2)
	s.SetRayTracing(nil)

	assert.ErrorIs(t, r.RegisterScene(s), ErrNoRayTracing)
	assert.False(t, r.Ready())
}

func TestExecuteAccumulates(t *testing.T) {
	dev := gputest.NewDevice()
	views := testViews(t, dev, hd, 2)
	r := newTestRenderer(t, dev, views, WithMaxBounces(2), WithSeed(7))
	require.NoError(t, r.RegisterScene(newTestScene(t, dev, 2)))

	for i := range uint32(3) {
		cmd := frame(t, dev, r, i%2)
		assert.Equal(t, i, pushedIndex(t, cmd), "frame %d pushes the samples accumulated so far", i)

		traces := cmd.Filter("TraceRays")
		require.Len(t, traces, 1)
		assert.Equal(t, [5]uint32{hd.Width, hd.Height, 1}, traces[0].Args)

		data := cmd.Filter("PushConstants")[0].Data
		assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[4:]), "sample count")
		assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[8:]), "bounces")
		assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[12:]), "seed")
	}
	assert.Equal(t, uint32(3), r.AccumulationIndex())
	assert.Equal(t, gpu.ImageLayoutPresentSrc, dev.Tracker.Layout(views[0].Image()))
}

func TestExecuteWithoutSceneRecordsNothing(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, testViews(t, dev, hd, 2))

	cmd := frame(t, dev, r, 0)
	assert.Empty(t, cmd.Commands)
	assert.Zero(t, r.AccumulationIndex())
}

func TestResizeResetsAccumulation(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, testViews(t, dev, hd, 2))
	require.NoError(t, r.RegisterScene(newTestScene(t, dev, 2)))
	frame(t, dev, r, 0)
	frame(t, dev, r, 1)
	require.Equal(t, uint32(2), r.AccumulationIndex())
	before := r.Accumulation()

	require.NoError(t, r.Resize(testViews(t, dev, fullHD, 2)))
	assert.Zero(t, r.AccumulationIndex())
	assert.NotSame(t, before, r.Accumulation(), "a new extent recreates the running mean")
	assert.Equal(t, uint64(fullHD.Width)*uint64(fullHD.Height)*accumulationTexelSize, r.Accumulation().(*gputest.Buffer).Size())

	cmd := frame(t, dev, r, 0)
	assert.Zero(t, pushedIndex(t, cmd))
	assert.Equal(t, [5]uint32{fullHD.Width, fullHD.Height, 1}, cmd.Filter("TraceRays")[0].Args)

	same := r.Accumulation()
	require.NoError(t, r.Resize(testViews(t, dev, fullHD, 2)))
	assert.Same(t, same, r.Accumulation(), "an unchanged extent keeps the buffer")
	assert.Zero(t, r.AccumulationIndex())
}

func TestReloadShadersResetsAccumulation(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, testViews(t, dev, hd, 2))
	require.NoError(t, r.RegisterScene(newTestScene(t, dev, 2)))
	frame(t, dev, r, 0)
	require.NotZero(t, r.AccumulationIndex())

	r.ReloadShaders()
	assert.Zero(t, r.AccumulationIndex())
	assert.True(t, r.Ready())
}

func TestTraceTile(t *testing.T) {
	dev := gputest.NewDevice(gputest.WithCapabilities(gpu.Capabilities{
		RayTracing:                     true,
		MaxComputeWorkgroupInvocations: 64,
		MaxComputeWorkgroupSize:        [3]uint32{64, 64, 64},
	}))
	views := testViews(t, dev, hd, 2)

	r := newTestRenderer(t, dev, views, WithTraceTile([2]uint32{16, 16}))
	assert.Equal(t, [2]uint32{8, 8}, r.Tile().Size)
	assert.Equal(t, [2]uint32{2, 2}, r.Tile().LoadCount)

	r = newTestRenderer(t, dev, views, WithTraceTile([2]uint32{0, 32}))
	assert.Equal(t, DefaultTraceTile, r.Tile().Size, "a zero axis keeps the default tile")
}

func TestProbeCapture(t *testing.T) {
	dev := gputest.NewDevice()
	p, err := NewProbeCapture(dev, shader.NewManager(dev, shader.Embedded()), 32, WithSampleCount(4))
	require.NoError(t, err)

	assert.Equal(t, ModeProbe, p.Renderer().Mode())
	assert.True(t, p.Renderer().Contract().Untouched())
	assert.Nil(t, p.Renderer().Accumulation())
	assert.Len(t, p.Faces(), cubeFaces)

	state := camera.State{Position: mgl32.Vec3{0, 2, 0}, Near: 0.1, Far: 100}
	assert.ErrorIs(t, p.Capture(state), ErrNoScene)

	require.NoError(t, p.RegisterScene(newTestScene(t, dev, 2)))
	immediates := dev.ImmediateCount()
	require.NoError(t, p.Capture(state))
	require.NoError(t, p.Capture(state))

	assert.Equal(t, 2, p.Captures())
	assert.Equal(t, immediates+2, dev.ImmediateCount())
	assert.Equal(t, state, p.State())
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, dev.Tracker.Layout(p.Image()))

	// a probe renderer is never driven by the frame loop
	assert.Empty(t, frame(t, dev, p.Renderer(), 0).Commands)

	p.RemoveScene()
	assert.ErrorIs(t, p.Capture(state), ErrNoScene)

	images, views := dev.LiveCount(gpu.ClassImage), dev.LiveCount(gpu.ClassImageView)
	p.Release()
	assert.Equal(t, images-1, dev.LiveCount(gpu.ClassImage))
	assert.Equal(t, views-1-cubeFaces, dev.LiveCount(gpu.ClassImageView))
}

func TestCaptureRadiance(t *testing.T) {
	dev := gputest.NewDevice()
	p, err := NewProbeCapture(dev, shader.NewManager(dev, shader.Embedded()), 2, WithSampleCount(1))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	state := camera.State{Position: mgl32.Vec3{0, 2, 0}, Near: 0.1, Far: 100}
	_, err = p.CaptureRadiance(state)
	assert.ErrorIs(t, err, ErrNoScene)
	require.NoError(t, p.RegisterScene(newTestScene(t, dev, 1)))

	// stand in for the traced result: r = 1, g = 0.5 on every texel
	var data []byte
	for range 6 * 2 * 2 {
		for _, h := range []uint16{0x3c00, 0x3800, 0, 0x3c00} {
			data = binary.LittleEndian.AppendUint16(data, h)
		}
	}
	dev.WriteImage(p.Image(), data)

	cube, err := p.CaptureRadiance(state)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cube.Size)
	require.Len(t, cube.Texels, 6*2*2)
	assert.Equal(t, mgl32.Vec3{1, 0.5, 0}, cube.Texels[len(cube.Texels)-1])
	assert.Equal(t, 1, dev.ReadCount())
	assert.Equal(t, 1, p.Captures())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "swapchain", ModeSwapchain.String())
	assert.Equal(t, "probe", ModeProbe.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
