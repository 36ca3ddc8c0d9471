package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
)

func TestWorkgroupCount(t *testing.T) {
	cases := []struct {
		name   string
		extent gpu.Extent2D
		tile   [2]uint32
		want   [3]uint32
	}{
		{"exact", gpu.Extent2D{Width: 1920, Height: 1080}, [2]uint32{8, 8}, [3]uint32{240, 135, 1}},
		{"round up", gpu.Extent2D{Width: 1921, Height: 1081}, [2]uint32{8, 8}, [3]uint32{241, 136, 1}},
		{"smaller than tile", gpu.Extent2D{Width: 7, Height: 7}, [2]uint32{8, 8}, [3]uint32{1, 1, 1}},
		{"zero extent", gpu.Extent2D{}, [2]uint32{8, 8}, [3]uint32{1, 1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gpu.WorkgroupCount(tc.extent, tc.tile))
		})
	}
}

func TestFitWorkgroupTile(t *testing.T) {
	caps := gpu.Capabilities{MaxComputeWorkgroupInvocations: 256, MaxComputeWorkgroupSize: [3]uint32{256, 256, 64}}

	fitted := gpu.FitWorkgroupTile([2]uint32{16, 16}, caps)
	assert.Equal(t, [2]uint32{16, 16}, fitted.Size)
	assert.Equal(t, [2]uint32{1, 1}, fitted.LoadCount)

	caps.MaxComputeWorkgroupInvocations = 64
	fitted = gpu.FitWorkgroupTile([2]uint32{16, 16}, caps)
	assert.Equal(t, uint32(64), fitted.Size[0]*fitted.Size[1])
	assert.Equal(t, [2]uint32{16, 16}, fitted.Area())

	caps = gpu.Capabilities{MaxComputeWorkgroupInvocations: 1024, MaxComputeWorkgroupSize: [3]uint32{8, 64, 1}}
	fitted = gpu.FitWorkgroupTile([2]uint32{32, 4}, caps)
	assert.Equal(t, [2]uint32{8, 4}, fitted.Size)
	assert.Equal(t, [2]uint32{4, 1}, fitted.LoadCount)
}

func TestLayoutTrackerApply(t *testing.T) {
	dev := gputest.NewDevice()
	img, err := dev.CreateImage(gpu.ImageDesc{Label: "Color", Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)

	tracker := gpu.NewLayoutTracker()
	assert.Equal(t, gpu.ImageLayoutUndefined, tracker.Layout(img))

	require.NoError(t, tracker.Apply(gpu.ImageBarrier{Image: img, Transition: gpu.LayoutTransition{
		Old: gpu.ImageLayoutUndefined, New: gpu.ImageLayoutGeneral,
	}}))
	assert.Equal(t, gpu.ImageLayoutGeneral, tracker.Layout(img))

	err = tracker.Apply(gpu.ImageBarrier{Image: img, Transition: gpu.LayoutTransition{
		Old: gpu.ImageLayoutColorAttachment, New: gpu.ImageLayoutShaderReadOnly,
	}})
	assert.ErrorIs(t, err, gpu.ErrLayoutMismatch)
	assert.Equal(t, gpu.ImageLayoutGeneral, tracker.Layout(img))

	// discarding contents is valid from any layout
	require.NoError(t, tracker.Apply(gpu.ImageBarrier{Image: img, Transition: gpu.LayoutTransition{
		Old: gpu.ImageLayoutUndefined, New: gpu.ImageLayoutColorAttachment,
	}}))

	tracker.Forget(img)
	assert.Equal(t, gpu.ImageLayoutUndefined, tracker.Layout(img))
}

func newPassFixture(t *testing.T, dev *gputest.Device, initial gpu.ImageLayout) (gpu.Image, gpu.Framebuffer) {
	t.Helper()
	img, err := dev.CreateImage(gpu.ImageDesc{Label: "Target", Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gpu.FormatRGBA16Float})
	require.NoError(t, err)
	view, err := dev.CreateImageView(img, gpu.ViewDesc{})
	require.NoError(t, err)
	pass, err := dev.CreateRenderPass(gpu.RenderPassDesc{
		Label: "Pass",
		Attachments: []gpu.Attachment{{
			Usage:         gpu.AttachmentColor,
			Format:        gpu.FormatRGBA16Float,
			LoadOp:        gpu.LoadOpLoad,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: initial,
			ActualLayout:  gpu.ImageLayoutColorAttachment,
			FinalLayout:   gpu.ImageLayoutShaderReadOnly,
		}},
	})
	require.NoError(t, err)
	fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{Label: "Fb", Pass: pass, Attachments: []gpu.ImageView{view}, Extent: gpu.Extent2D{Width: 8, Height: 8}})
	require.NoError(t, err)
	return img, fb
}

func TestLayoutTrackerPass(t *testing.T) {
	dev := gputest.NewDevice()
	img, fb := newPassFixture(t, dev, gpu.ImageLayoutGeneral)

	tracker := gpu.NewLayoutTracker()
	assert.ErrorIs(t, tracker.BeginPass(fb), gpu.ErrLayoutMismatch)

	tracker.Set(img, gpu.ImageLayoutGeneral)
	require.NoError(t, tracker.BeginPass(fb))
	assert.Equal(t, gpu.ImageLayoutColorAttachment, tracker.Layout(img))
	tracker.EndPass(fb)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, tracker.Layout(img))
}

func TestRecordedPassLayouts(t *testing.T) {
	dev := gputest.NewDevice()
	img, fb := newPassFixture(t, dev, gpu.ImageLayoutGeneral)

	err := dev.ExecuteImmediate(func(cmd gpu.CommandBuffer) {
		cmd.PipelineBarrier(gpu.WaitForNone(gpu.ScopeColorAttachmentWrite), gpu.ImageBarrier{
			Image:      img,
			Transition: gpu.LayoutTransition{Old: gpu.ImageLayoutUndefined, New: gpu.ImageLayoutGeneral},
		})
		cmd.BeginRenderPass(fb, []gpu.ClearValue{{}})
		cmd.EndRenderPass()
	})
	require.NoError(t, err)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, dev.Tracker.Layout(img))
	assert.Equal(t, 1, dev.ImmediateCount())
	assert.Zero(t, dev.LiveCount(gpu.ClassCommandBuffer))

	// the pass expects General but the image is now ShaderReadOnly
	err = dev.ExecuteImmediate(func(cmd gpu.CommandBuffer) {
		cmd.BeginRenderPass(fb, []gpu.ClearValue{{}})
		cmd.EndRenderPass()
	})
	assert.ErrorIs(t, err, gpu.ErrLayoutMismatch)
}

func TestBarrierPresets(t *testing.T) {
	b := gpu.WaitForNone(gpu.ScopeComputeRead)
	assert.Equal(t, gpu.ScopeWaitForNone, b.Src)
	assert.Equal(t, gpu.ScopeComputeRead, b.Dst)

	b = gpu.BlockNone(gpu.ScopeColorAttachmentWrite)
	assert.Equal(t, gpu.ScopeBlockNone, b.Dst)
	assert.Equal(t, gpu.AccessNone, gpu.BarrierEmpty.Src.Access)
}
