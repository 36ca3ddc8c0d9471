package gputest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

func TestDeviceCountsHandles(t *testing.T) {
	dev := NewDevice()
	buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "Uniforms", Size: 64, Usage: gpu.BufferUsageUniform})
	require.NoError(t, err)
	img, err := dev.CreateImage(gpu.ImageDesc{Label: "Color", Extent: gpu.Extent2D{Width: 2, Height: 2}})
	require.NoError(t, err)

	assert.Equal(t, map[gpu.HandleClass]int{gpu.ClassBuffer: 1, gpu.ClassImage: 1}, dev.Live())

	buf.Release()
	img.Release()
	assert.Empty(t, dev.Live())
	assert.Equal(t, 1, dev.Created()[gpu.ClassBuffer])
	assert.Panics(t, func() { buf.Release() })
}

func TestDeviceRejectsInvalidResources(t *testing.T) {
	dev := NewDevice()
	_, err := dev.CreateBuffer(gpu.BufferDesc{Label: "Empty"})
	assert.Error(t, err)
	_, err = dev.CreateImage(gpu.ImageDesc{Label: "Empty"})
	assert.Error(t, err)

	noRT := NewDevice(WithRayTracing(false))
	_, err = noRT.CreateRayTracingPipeline(gpu.RayTracingPipelineDesc{Label: "RT"})
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
	_, err = noRT.CreateAccelerationStructure(gpu.AccelerationStructureDesc{Level: gpu.AccelerationTopLevel})
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
}

func TestWriteBuffer(t *testing.T) {
	dev := NewDevice()
	buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "Data", Size: 8})
	require.NoError(t, err)

	dev.WriteBuffer(buf, 4, []byte{1, 2, 3, 4})
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, buf.(*Buffer).Data)
	assert.Equal(t, 1, buf.(*Buffer).WriteCount)
	assert.Panics(t, func() { dev.WriteBuffer(buf, 6, []byte{1, 2, 3}) })
}

func TestReadImage(t *testing.T) {
	dev := NewDevice()
	desc := gpu.ImageDesc{Label: "Faces", Extent: gpu.Extent2D{Width: 2, Height: 2}, Layers: 6, Format: gpu.FormatRGBA16Float, Usage: gpu.ImageUsageTransferSrc}
	img, err := dev.CreateImage(desc)
	require.NoError(t, err)
	defer img.Release()

	data, err := dev.ReadImage(img)
	require.NoError(t, err)
	assert.Len(t, data, 2*2*6*8)

	dev.WriteImage(img, []byte{1, 2, 3})
	data, err = dev.ReadImage(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, 2, dev.ReadCount())

	desc.Usage = gpu.ImageUsageSampled
	sampled, err := dev.CreateImage(desc)
	require.NoError(t, err)
	defer sampled.Release()
	_, err = dev.ReadImage(sampled)
	assert.Error(t, err)
}

func TestDescriptorSetValidation(t *testing.T) {
	dev := NewDevice()
	layout, err := dev.CreateDescriptorSetLayout(gpu.SetLayoutDesc{
		Label: "Frame",
		Bindings: []gpu.Binding{
			{Binding: 0, Name: "camera", Type: gpu.BindingUniformBuffer},
		},
	})
	require.NoError(t, err)
	buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "Camera", Size: 16})
	require.NoError(t, err)

	_, err = dev.CreateDescriptorSet(layout, nil)
	assert.Error(t, err)

	set, err := dev.CreateDescriptorSet(layout, []gpu.DescriptorWrite{{Binding: 0, Type: gpu.BindingUniformBuffer, Buffer: buf, Size: 16}})
	require.NoError(t, err)
	assert.Len(t, set.Writes(), 1)

	buf.Release()
	_, err = dev.CreateDescriptorSet(layout, []gpu.DescriptorWrite{{Binding: 0, Type: gpu.BindingUniformBuffer, Buffer: buf, Size: 16}})
	assert.ErrorContains(t, err, "released")
}

func TestCommandBufferRecording(t *testing.T) {
	dev := NewDevice()
	module, err := dev.CreateShaderModule(gpu.ShaderModuleDesc{Label: "Lighting", Stage: gpu.ShaderStageCompute})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(gpu.ComputePipelineDesc{Label: "Lighting", Module: module})
	require.NoError(t, err)

	c, err := dev.CreateCommandBuffer("Frame")
	require.NoError(t, err)
	cmd := c.(*CommandBuffer)

	cmd.Dispatch(1, 1, 1)
	require.NoError(t, cmd.Begin())
	assert.Empty(t, cmd.Commands, "commands before Begin are not recorded")

	cmd.BindPipeline(pipeline)
	cmd.Dispatch(4, 2, 1)
	require.NoError(t, cmd.End())
	assert.Equal(t, []string{"BindPipeline", "Dispatch"}, cmd.Names())
	assert.Equal(t, [5]uint32{4, 2, 1}, cmd.Filter("Dispatch")[0].Args)

	require.NoError(t, cmd.Begin())
	cmd.Dispatch(1, 1, 1)
	assert.ErrorContains(t, cmd.End(), "pipeline")

	fence, err := dev.CreateFence("InFlight", false)
	require.NoError(t, err)
	require.NoError(t, dev.Submit(gpu.SubmitInfo{Commands: []gpu.CommandBuffer{cmd}, Fence: fence}))
	assert.Equal(t, 1, cmd.Submitted)
	require.NoError(t, dev.WaitForFence(context.Background(), fence))
	require.NoError(t, dev.ResetFence(fence))
	assert.Error(t, dev.WaitForFence(context.Background(), fence))
}

func TestSurfaceRoundRobin(t *testing.T) {
	dev := NewDevice()
	surface := NewSurface(dev, DefaultSurfaceCapabilities)

	images, err := surface.Configure(gpu.SurfaceConfig{
		Format:     gpu.FormatBGRA8Unorm,
		Extent:     gpu.Extent2D{Width: 64, Height: 32},
		ImageCount: 3,
	})
	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, 3, dev.LiveCount(gpu.ClassImage))

	ctx := context.Background()
	for _, want := range []uint32{0, 1, 2, 0} {
		idx, err := surface.Acquire(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}

	surface.AcquireErrors = []error{gpu.ErrSwapchainOutOfDate}
	_, err = surface.Acquire(ctx, nil)
	assert.ErrorIs(t, err, gpu.ErrSwapchainOutOfDate)

	surface.Unconfigure()
	assert.Zero(t, dev.LiveCount(gpu.ClassImage))
}
