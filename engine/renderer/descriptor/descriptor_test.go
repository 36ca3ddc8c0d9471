package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
)

// testBindings is a lighting-like layout: a per-image set 0 and a shared set 2 with a gap.
var testBindings = []gpu.Binding{
	{Set: 0, Binding: 0, Name: "camera", Type: gpu.BindingUniformBuffer, Stages: gpu.ShaderStageCompute, MinSize: 64},
	{Set: 0, Binding: 1, Name: "output", Type: gpu.BindingStorageImage, Stages: gpu.ShaderStageCompute},
	{Set: 2, Binding: 0, Name: "lights", Type: gpu.BindingUniformBuffer, Stages: gpu.ShaderStageCompute},
	{Set: 2, Binding: 1, Name: "irradianceMap", Type: gpu.BindingSampledImage, Stages: gpu.ShaderStageCompute},
	{Set: 2, Binding: 2, Name: "irradianceMapSampler", Type: gpu.BindingSampler, Stages: gpu.ShaderStageCompute},
}

type fixture struct {
	dev     *gputest.Device
	cameras []gpu.Buffer
	outputs []gpu.ImageView
	lights  gpu.Buffer
	view    gpu.ImageView
	sampler gpu.Sampler
}

func newFixture(t *testing.T, images int) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	f := &fixture{dev: dev}
	for range images {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "Camera", Size: 64, Usage: gpu.BufferUsageUniform})
		require.NoError(t, err)
		f.cameras = append(f.cameras, buf)

		img, err := dev.CreateImage(gpu.ImageDesc{Label: "Output", Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatRGBA8Unorm, Usage: gpu.ImageUsageStorage})
		require.NoError(t, err)
		view, err := dev.CreateImageView(img, gpu.ViewDesc{})
		require.NoError(t, err)
		f.outputs = append(f.outputs, view)
	}

	var err error
	f.lights, err = dev.CreateBuffer(gpu.BufferDesc{Label: "Lights", Size: 2048, Usage: gpu.BufferUsageUniform})
	require.NoError(t, err)
	img, err := dev.CreateImage(gpu.ImageDesc{Label: "Irradiance", Extent: gpu.Extent2D{Width: 4, Height: 4}, Layers: 6, Format: gpu.FormatRGBA16Float, Usage: gpu.ImageUsageSampled})
	require.NoError(t, err)
	f.view, err = dev.CreateImageView(img, gpu.ViewDesc{Dimension: gpu.ViewDimensionCube})
	require.NoError(t, err)
	f.sampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: "Linear"})
	require.NoError(t, err)
	return f
}

// push fills every binding of testBindings.
func (f *fixture) push(p FrameDescriptorProvider) {
	for i := range f.cameras {
		p.PushSliceData("camera", f.cameras[i])
		p.PushSliceData("output", f.outputs[i])
	}
	p.PushGlobalData("lights", f.lights)
	p.PushTexture("irradianceMap", f.view, f.sampler)
}

// panicError runs fn and returns the error it panicked with.
func panicError(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		err = e
	}()
	fn()
	return nil
}

func TestProviderLayouts(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2, WithLabel("Lighting"))
	require.NoError(t, err)

	layouts := p.Layouts()
	require.Len(t, layouts, 3)
	assert.Equal(t, "Lighting Set 0", layouts[0].Label())
	assert.Len(t, layouts[0].Desc().Bindings, 2)
	assert.Empty(t, layouts[1].Desc().Bindings)
	assert.Len(t, layouts[2].Desc().Bindings, 3)
	assert.Equal(t, uint32(2), p.ImageCount())
	assert.Equal(t, "Lighting", p.Label())
	assert.Len(t, p.Bindings(), len(testBindings))
	assert.True(t, p.Has("lights"))
	assert.False(t, p.Has("shadowMap"))
	assert.False(t, p.Flushed())

	p.Release()
	assert.Empty(t, f.dev.Live()[gpu.ClassDescriptorSetLayout])
}

func TestProviderDuplicateBinding(t *testing.T) {
	dev := gputest.NewDevice()
	bindings := append([]gpu.Binding{}, testBindings...)
	bindings = append(bindings, gpu.Binding{Set: 1, Binding: 0, Name: "camera", Type: gpu.BindingUniformBuffer})

	_, err := NewFrameDescriptorProvider(dev, bindings, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"camera"`)
	assert.Zero(t, dev.LiveCount(gpu.ClassDescriptorSetLayout))
}

func TestProviderSliceIsolation(t *testing.T) {
	f := newFixture(t, 3)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 3)
	require.NoError(t, err)
	defer p.Release()

	f.push(p)
	require.NoError(t, p.FlushData())
	assert.True(t, p.Flushed())

	// 3 instances of set 0 plus one each of sets 1 and 2.
	assert.Equal(t, 5, f.dev.LiveCount(gpu.ClassDescriptorSet))

	for i := range uint32(3) {
		slice := p.GetDescriptorSlice(i)
		require.Len(t, slice, 3)
		for set, ds := range slice {
			assert.Same(t, p.Layouts()[set], ds.Layout())
		}

		writes := slice[0].Writes()
		require.Len(t, writes, 2)
		assert.Same(t, f.cameras[i], writes[0].Buffer)
		assert.Same(t, f.outputs[i], writes[1].View)
	}
	assert.NotSame(t, p.GetDescriptorSlice(0)[0], p.GetDescriptorSlice(1)[0])
	assert.Same(t, p.GetDescriptorSlice(0)[2], p.GetDescriptorSlice(2)[2])
}

func TestProviderGlobalBroadcast(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2)
	require.NoError(t, err)
	defer p.Release()

	p.PushGlobalData("camera", f.cameras[0])
	for _, out := range f.outputs {
		p.PushSliceData("output", out)
	}
	p.PushGlobalData("lights", f.lights)
	p.PushTexture("irradianceMap", f.view, f.sampler)
	require.NoError(t, p.FlushData())

	for i := range uint32(2) {
		assert.Same(t, f.cameras[0], p.GetDescriptorSlice(i)[0].Writes()[0].Buffer)
	}
}

func TestProviderPushTexturePairsSampler(t *testing.T) {
	f := newFixture(t, 1)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 1)
	require.NoError(t, err)
	defer p.Release()

	f.push(p)
	require.NoError(t, p.FlushData())

	writes := p.GetDescriptorSlice(0)[2].Writes()
	require.Len(t, writes, 3)
	assert.Same(t, f.view, writes[1].View)
	assert.Same(t, f.sampler, writes[2].Sampler)

	// A texture without a paired sampler binding ignores the sampler.
	bindings := []gpu.Binding{{Set: 0, Binding: 0, Name: "gbufferNormal", Type: gpu.BindingSampledImage}}
	q, err := NewFrameDescriptorProvider(f.dev, bindings, 1)
	require.NoError(t, err)
	defer q.Release()
	q.PushTexture("gbufferNormal", f.view, f.sampler)
	require.NoError(t, q.FlushData())
}

func TestProviderPanics(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2, WithLabel("Lighting"))
	require.NoError(t, err)
	defer p.Release()

	tests := []struct {
		name string
		fn   func()
		want error
	}{
		{"unknown name", func() { p.PushGlobalData("shadowMap", f.lights) }, ErrUnknownBinding},
		{"wrong kind", func() { p.PushGlobalData("lights", f.view) }, ErrResourceMismatch},
		{"nil resource", func() { p.PushGlobalData("lights", nil) }, ErrResourceMismatch},
		{"buffer too small", func() {
			small, err := f.dev.CreateBuffer(gpu.BufferDesc{Label: "Small", Size: 16})
			require.NoError(t, err)
			defer small.Release()
			p.PushGlobalData("camera", small)
		}, ErrResourceMismatch},
		{"slice push outside slice set", func() { p.PushSliceData("lights", f.lights) }, ErrResourceMismatch},
		{"not flushed", func() { p.GetDescriptorSlice(0) }, ErrNotFlushed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := panicError(t, tt.fn)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), "Lighting")
		})
	}
}

func TestProviderTooManySlicePushes(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2)
	require.NoError(t, err)
	defer p.Release()

	p.PushSliceData("camera", f.cameras[0])
	p.PushSliceData("camera", f.cameras[1])
	err = panicError(t, func() { p.PushSliceData("camera", f.cameras[0]) })
	assert.ErrorIs(t, err, ErrResourceMismatch)
}

func TestProviderFlushMissingData(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2)
	require.NoError(t, err)
	defer p.Release()

	p.PushSliceData("camera", f.cameras[0])
	p.PushSliceData("camera", f.cameras[1])
	p.PushSliceData("output", f.outputs[0])

	err = p.FlushData()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"output"`)
	assert.False(t, p.Flushed())
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSet))

	p.PushSliceData("output", f.outputs[1])
	err = p.FlushData()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"lights"`)
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSet))
}

func TestProviderReflushReleasesSets(t *testing.T) {
	f := newFixture(t, 2)
	p, err := NewFrameDescriptorProvider(f.dev, testBindings, 2)
	require.NoError(t, err)

	f.push(p)
	require.NoError(t, p.FlushData())
	first := p.GetDescriptorSlice(0)[2]

	lights, err := f.dev.CreateBuffer(gpu.BufferDesc{Label: "Lights2", Size: 2048})
	require.NoError(t, err)
	p.PushGlobalData("lights", lights)
	assert.False(t, p.Flushed())
	require.NoError(t, p.FlushData())

	assert.Equal(t, 4, f.dev.LiveCount(gpu.ClassDescriptorSet))
	assert.NotSame(t, first, p.GetDescriptorSlice(0)[2])
	assert.Same(t, lights, p.GetDescriptorSlice(1)[2].Writes()[0].Buffer)

	p.Clear()
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSet))
	assert.Equal(t, 3, f.dev.LiveCount(gpu.ClassDescriptorSetLayout))
	assert.False(t, p.Flushed())
	assert.Error(t, p.FlushData())

	p.Release()
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSetLayout))
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSet))
}

func TestMultiDescriptorSet(t *testing.T) {
	f := newFixture(t, 1)
	layout, err := f.dev.CreateDescriptorSetLayout(gpu.SetLayoutDesc{Label: "Lights", Bindings: testBindings[2:3]})
	require.NoError(t, err)

	m := MultiDescriptorSet{Layout: layout}
	for range 2 {
		ds, err := newDescriptorSet(f.dev, layout, []gpu.DescriptorWrite{{Binding: 0, Type: gpu.BindingUniformBuffer, Buffer: f.lights}})
		require.NoError(t, err)
		m.Sets = append(m.Sets, ds.Set)
	}
	assert.Equal(t, 2, m.Len())
	assert.NotSame(t, m.At(0), m.At(1))

	m.Release()
	assert.Zero(t, m.Len())
	assert.Zero(t, f.dev.LiveCount(gpu.ClassDescriptorSet))

	_, err = newDescriptorSet(f.dev, layout, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "descriptor: Lights")
}
