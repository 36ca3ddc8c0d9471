package backend

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

//go:embed assets/blit.wgsl
var blitSource string

// offscreenFormats are the swapchain formats offered to the renderer. Surface formats are
// usually BGRA, which WebGPU cannot bind as a storage texture, so the renderer draws into
// offscreen images that Present copies onto the surface texture.
var offscreenFormats = []gpu.Format{gpu.FormatRGBA8Unorm, gpu.FormatRGBA16Float}

// wgpuSurface presents offscreen images through a blit onto the current surface texture.
// Acquire hands images out round robin; WebGPU keeps at most one surface texture in flight.
type wgpuSurface struct {
	dev     *wgpuDevice
	surface *wgpu.Surface

	config       gpu.SurfaceConfig
	configured   bool
	nativeFormat wgpu.TextureFormat
	images       []*image
	views        []*wgpu.TextureView
	next         uint32

	blitModule   *wgpu.ShaderModule
	blitLayout   *wgpu.BindGroupLayout
	blitPipeline *wgpu.RenderPipeline
	blitSampler  *wgpu.Sampler
	blitGroups   []*wgpu.BindGroup
}

var _ gpu.Surface = &wgpuSurface{}

func newSurface(d *wgpuDevice, surface *wgpu.Surface) *wgpuSurface {
	return &wgpuSurface{dev: d, surface: surface}
}

func (s *wgpuSurface) Capabilities() (gpu.SurfaceCapabilities, error) {
	if s.surface == nil {
		return gpu.SurfaceCapabilities{}, errNoSurface
	}
	native := s.surface.GetCapabilities(s.dev.adapter)
	if len(native.Formats) == 0 {
		return gpu.SurfaceCapabilities{}, fmt.Errorf("backend: surface reports no formats")
	}
	maxDim := s.dev.limits.MaxTextureDimension2D
	return gpu.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 0,
		CurrentExtent: gpu.UndefinedExtent,
		MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
		MaxExtent:     gpu.Extent2D{Width: maxDim, Height: maxDim},
		Formats:       slices.Clone(offscreenFormats),
		PresentModes:  fromPresentModes(native.PresentModes),
	}, nil
}

// selectNativeFormat prefers a linear surface format so the blit copies texels unchanged.
func selectNativeFormat(formats []wgpu.TextureFormat) wgpu.TextureFormat {
	for _, f := range formats {
		if f != wgpu.TextureFormatBGRA8UnormSrgb && f != wgpu.TextureFormatRGBA8UnormSrgb {
			return f
		}
	}
	return formats[0]
}

func (s *wgpuSurface) Configure(config gpu.SurfaceConfig) ([]gpu.Image, error) {
	if s.surface == nil {
		return nil, errNoSurface
	}
	if !slices.Contains(offscreenFormats, config.Format) {
		return nil, fmt.Errorf("backend: surface format %s not supported", config.Format)
	}
	if config.Extent.IsZero() {
		return nil, fmt.Errorf("backend: surface extent %s", config.Extent)
	}
	if config.ImageCount == 0 {
		return nil, fmt.Errorf("backend: surface configured with no images")
	}
	s.Unconfigure()

	native := s.surface.GetCapabilities(s.dev.adapter)
	if len(native.Formats) == 0 || len(native.AlphaModes) == 0 {
		return nil, fmt.Errorf("backend: surface reports no formats")
	}
	nativeFormat := selectNativeFormat(native.Formats)
	s.surface.Configure(s.dev.adapter, s.dev.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      nativeFormat,
		Width:       config.Extent.Width,
		Height:      config.Extent.Height,
		PresentMode: presentMode(config.PresentMode),
		AlphaMode:   native.AlphaModes[0],
	})
	if err := s.ensureBlitPipeline(nativeFormat); err != nil {
		return nil, err
	}

	out := make([]gpu.Image, 0, config.ImageCount)
	for i := range config.ImageCount {
		img, err := s.dev.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("Swapchain Image %d", i),
			Extent: config.Extent,
			Layers: 1,
			Format: config.Format,
			Usage:  config.Usage | gpu.ImageUsageSampled,
		})
		if err != nil {
			s.Unconfigure()
			return nil, err
		}
		offscreen := img.(*image)
		s.images = append(s.images, offscreen)
		out = append(out, img)

		view, err := offscreen.tex.CreateView(nil)
		if err != nil {
			s.Unconfigure()
			return nil, fmt.Errorf("backend: swapchain view %d: %w", i, err)
		}
		s.views = append(s.views, view)

		group, err := s.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("Blit %d", i),
			Layout: s.blitLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: view},
				{Binding: 1, Sampler: s.blitSampler},
			},
		})
		if err != nil {
			s.Unconfigure()
			return nil, fmt.Errorf("backend: blit group %d: %w", i, err)
		}
		s.blitGroups = append(s.blitGroups, group)
	}

	s.config = config
	s.configured = true
	s.next = 0
	common.Logger().Debug("surface configured", "format", config.Format, "extent", config.Extent, "images", config.ImageCount, "present_mode", config.PresentMode)
	return out, nil
}

func (s *wgpuSurface) ensureBlitPipeline(format wgpu.TextureFormat) error {
	if s.blitPipeline != nil && s.nativeFormat == format {
		return nil
	}
	s.releaseBlitPipeline()

	var err error
	if s.blitModule == nil {
		s.blitModule, err = s.dev.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          "Blit",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: blitSource},
		})
		if err != nil {
			return fmt.Errorf("backend: blit shader: %w", err)
		}
	}
	if s.blitSampler == nil {
		s.blitSampler, err = s.dev.device.CreateSampler(&wgpu.SamplerDescriptor{
			Label:         "Blit",
			AddressModeU:  wgpu.AddressModeClampToEdge,
			AddressModeV:  wgpu.AddressModeClampToEdge,
			AddressModeW:  wgpu.AddressModeClampToEdge,
			MagFilter:     wgpu.FilterModeNearest,
			MinFilter:     wgpu.FilterModeNearest,
			MipmapFilter:  wgpu.MipmapFilterModeNearest,
			LodMaxClamp:   1,
			MaxAnisotropy: 1,
		})
		if err != nil {
			return fmt.Errorf("backend: blit sampler: %w", err)
		}
	}
	if s.blitLayout == nil {
		s.blitLayout, err = s.dev.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label: "Blit",
			Entries: []wgpu.BindGroupLayoutEntry{
				{
					Binding:    0,
					Visibility: wgpu.ShaderStageFragment,
					Texture: wgpu.TextureBindingLayout{
						SampleType:    wgpu.TextureSampleTypeFloat,
						ViewDimension: wgpu.TextureViewDimension2D,
					},
				},
				{
					Binding:    1,
					Visibility: wgpu.ShaderStageFragment,
					Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("backend: blit layout: %w", err)
		}
	}

	layout, err := s.dev.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Blit",
		BindGroupLayouts: []*wgpu.BindGroupLayout{s.blitLayout},
	})
	if err != nil {
		return fmt.Errorf("backend: blit pipeline layout: %w", err)
	}
	defer layout.Release()

	s.blitPipeline, err = s.dev.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Blit",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     s.blitModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     s.blitModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("backend: blit pipeline: %w", err)
	}
	s.nativeFormat = format
	return nil
}

func (s *wgpuSurface) releaseBlitPipeline() {
	if s.blitPipeline != nil {
		s.blitPipeline.Release()
		s.blitPipeline = nil
	}
}

func (s *wgpuSurface) Unconfigure() {
	for _, g := range s.blitGroups {
		g.Release()
	}
	for _, v := range s.views {
		v.Release()
	}
	for _, img := range s.images {
		img.Release()
	}
	s.blitGroups, s.views, s.images = nil, nil, nil
	s.configured = false
}

func (s *wgpuSurface) Acquire(ctx context.Context, signal gpu.Semaphore) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !s.configured {
		return 0, gpu.ErrSwapchainOutOfDate
	}
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return index, nil
}

// Present copies the image onto the surface texture. Work submitted before the call has
// already been queued, so the wait semaphore needs no handling.
func (s *wgpuSurface) Present(imageIndex uint32, wait gpu.Semaphore) error {
	if !s.configured {
		return gpu.ErrSwapchainOutOfDate
	}
	if imageIndex >= uint32(len(s.images)) {
		return fmt.Errorf("backend: present of image %d, swapchain has %d", imageIndex, len(s.images))
	}
	img := s.images[imageIndex]
	if layout := s.dev.tracker.Layout(img); layout != gpu.ImageLayoutPresentSrc {
		return fmt.Errorf("%w: %s is %s at present", gpu.ErrLayoutMismatch, img.label, layout)
	}

	surfaceTexture, err := s.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("%w: %w", gpu.ErrSwapchainOutOfDate, err)
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("backend: surface view: %w", err)
	}
	defer view.Release()

	encoder, err := s.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("backend: blit encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(s.blitPipeline)
	pass.SetBindGroup(0, s.blitGroups[imageIndex], nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("backend: blit finish: %w", err)
	}
	s.dev.queue.Submit(commandBuffer)
	commandBuffer.Release()

	s.surface.Present()
	return nil
}

func (s *wgpuSurface) release() {
	s.Unconfigure()
	s.releaseBlitPipeline()
	if s.blitLayout != nil {
		s.blitLayout.Release()
		s.blitLayout = nil
	}
	if s.blitSampler != nil {
		s.blitSampler.Release()
		s.blitSampler = nil
	}
	if s.blitModule != nil {
		s.blitModule.Release()
		s.blitModule = nil
	}
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
}
