// Package backend implements the gpu device and surface on WebGPU. WebGPU synchronizes
// implicitly, so barriers are validated against a gpu.LayoutTracker instead of being issued,
// push constants are emulated with a uniform ring and acceleration structures are software
// hierarchies traced by compute shaders.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/accel"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

const (
	// PushBlockSize is the largest push constant block a pipeline may declare.
	PushBlockSize = 128
	// DefaultPushRingSize is the per command buffer ring size, enough for 4096 pushed draws
	// at the usual 256 byte alignment.
	DefaultPushRingSize = 1 << 20
	// copyRowAlignment is the row pitch alignment of texture to buffer copies.
	copyRowAlignment = 256
	// defaultTraceTile is the workgroup tile of ray tracing pipelines that do not declare one.
	defaultTraceTile = 8
)

// Device is a gpu.Device backed by a WebGPU adapter, together with the surface it was
// created for.
type Device interface {
	gpu.Device

	// Surface returns the presentation surface of the window the device was created for.
	//
	// Returns:
	//   - gpu.Surface: the surface
	Surface() gpu.Surface

	// Tracker returns the layout tracker every command buffer validates barriers against.
	Tracker() *gpu.LayoutTracker
}

type wgpuDevice struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	limits   wgpu.Limits

	surface *wgpuSurface
	tracker *gpu.LayoutTracker

	label                string
	forceFallbackAdapter bool
	rayTracing           bool
	pushRingSize         uint32

	// pushLayout and emptyLayout are shared by every pipeline layout; WebGPU accepts bind
	// groups created from any layout with identical entries.
	pushLayout  *wgpu.BindGroupLayout
	emptyLayout *wgpu.BindGroupLayout
	emptyGroup  *wgpu.BindGroup
}

var _ Device = &wgpuDevice{}

// NewDevice creates a WebGPU instance, a surface for the window described by
// surfaceDescriptor, and an adapter and device compatible with it.
//
// Parameters:
//   - surfaceDescriptor: the native window surface, usually from wgpuglfw
//   - options: functional options
//
// Returns:
//   - Device: the device and its surface
//   - error: an error if no adapter or device could be obtained
func NewDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...DeviceBuilderOption) (Device, error) {
	d := &wgpuDevice{
		mu:           &sync.Mutex{},
		tracker:      gpu.NewLayoutTracker(),
		label:        "Main Device",
		rayTracing:   true,
		pushRingSize: DefaultPushRingSize,
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	nativeSurface := d.instance.CreateSurface(surfaceDescriptor)

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    nativeSurface,
	})
	if err != nil {
		nativeSurface.Release()
		d.instance.Release()
		return nil, fmt.Errorf("backend: request adapter: %w", err)
	}
	d.adapter = adapter

	// group 3 holds push constants, so four groups are always needed
	d.limits = wgpu.DefaultLimits()
	d.limits.MaxBindGroups = max(d.limits.MaxBindGroups, gpu.PushConstantSet+1)

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          d.label,
		RequiredLimits: &wgpu.RequiredLimits{Limits: d.limits},
	})
	if err != nil {
		nativeSurface.Release()
		d.adapter.Release()
		d.instance.Release()
		return nil, fmt.Errorf("backend: request device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()

	if err := d.createSharedLayouts(); err != nil {
		nativeSurface.Release()
		d.Release()
		return nil, err
	}
	d.surface = newSurface(d, nativeSurface)

	common.Logger().Info("webgpu device created", "label", d.label, "ray_tracing", d.rayTracing, "fallback", d.forceFallbackAdapter)
	return d, nil
}

func (d *wgpuDevice) createSharedLayouts() error {
	var err error
	d.pushLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Push Constants",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   PushBlockSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("backend: push constant layout: %w", err)
	}
	d.emptyLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: "Empty"})
	if err != nil {
		return fmt.Errorf("backend: empty layout: %w", err)
	}
	d.emptyGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: "Empty", Layout: d.emptyLayout})
	if err != nil {
		return fmt.Errorf("backend: empty group: %w", err)
	}
	return nil
}

func (d *wgpuDevice) Surface() gpu.Surface {
	return d.surface
}

func (d *wgpuDevice) Tracker() *gpu.LayoutTracker {
	return d.tracker
}

func (d *wgpuDevice) Capabilities() gpu.Capabilities {
	return gpu.Capabilities{
		RayTracing:                     d.rayTracing,
		MaxComputeWorkgroupInvocations: d.limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSize: [3]uint32{
			d.limits.MaxComputeWorkgroupSizeX,
			d.limits.MaxComputeWorkgroupSizeY,
			d.limits.MaxComputeWorkgroupSizeZ,
		},
		MaxPushConstantSize: PushBlockSize,
	}
}

func (d *wgpuDevice) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("backend: buffer %q has zero size", desc.Label)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		// queue writes operate on 4 byte multiples
		Size:             uint64(alignUp(uint32(desc.Size), 4)),
		Usage:            bufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: buffer %q: %w", desc.Label, err)
	}
	return &buffer{
		handle: handle{class: gpu.ClassBuffer, label: desc.Label},
		buf:    buf,
		size:   desc.Size,
		usage:  desc.Usage,
	}, nil
}

func (d *wgpuDevice) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) {
	buf := b.(*buffer)
	if offset+uint64(len(data)) > buf.size {
		panic(fmt.Sprintf("backend: write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, buf.label, buf.size))
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(slices.Clip(data), make([]byte, 4-pad)...)
	}
	d.queue.WriteBuffer(buf.buf, offset, data)
}

func (d *wgpuDevice) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.IsZero() {
		return nil, fmt.Errorf("backend: image %q has zero extent", desc.Label)
	}
	desc.Layers = max(desc.Layers, 1)
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("backend: image %q: %w", desc.Label, err)
	}
	return &image{
		handle:  handle{class: gpu.ClassImage, label: desc.Label},
		tex:     tex,
		desc:    desc,
		tracker: d.tracker,
	}, nil
}

func (d *wgpuDevice) WriteImage(img gpu.Image, data []byte) {
	i := img.(*image)
	texel := i.desc.Format.TexelSize()
	want := int(i.desc.Extent.Width * i.desc.Extent.Height * i.desc.Layers * texel)
	if texel == 0 || len(data) != want {
		panic(fmt.Sprintf("backend: image %q upload has %d bytes, want %d", i.label, len(data), want))
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  i.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  i.desc.Extent.Width * texel,
			RowsPerImage: i.desc.Extent.Height,
		},
		&wgpu.Extent3D{
			Width:              i.desc.Extent.Width,
			Height:             i.desc.Extent.Height,
			DepthOrArrayLayers: i.desc.Layers,
		},
	)
}

// ReadImage copies the image into a mappable staging buffer whose rows are padded to the
// copy alignment, then strips the padding while reading it back.
func (d *wgpuDevice) ReadImage(img gpu.Image) ([]byte, error) {
	if d.device == nil {
		return nil, gpu.ErrDeviceLost
	}
	i := img.(*image)
	if i.desc.Usage&gpu.ImageUsageTransferSrc == 0 {
		return nil, fmt.Errorf("backend: read of image %q without transfer source usage", i.label)
	}
	texel := i.desc.Format.TexelSize()
	if texel == 0 {
		return nil, fmt.Errorf("backend: read of image %q with format %v", i.label, i.desc.Format)
	}
	width, height, layers := i.desc.Extent.Width, i.desc.Extent.Height, i.desc.Layers
	row := width * texel
	paddedRow := alignUp(row, copyRowAlignment)
	size := uint64(paddedRow) * uint64(height) * uint64(layers)

	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: i.label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: readback buffer for %q: %w", i.label, err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: i.label + " Readback"})
	if err != nil {
		return nil, fmt.Errorf("backend: readback encoder: %w", err)
	}
	defer encoder.Release()
	err = encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: i.tex, Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyBuffer{
			Buffer: staging,
			Layout: wgpu.TextureDataLayout{BytesPerRow: paddedRow, RowsPerImage: height},
		},
		&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: layers},
	)
	if err != nil {
		return nil, fmt.Errorf("backend: copy %q to readback buffer: %w", i.label, err)
	}
	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("backend: readback finish: %w", err)
	}
	d.queue.Submit(commands)
	commands.Release()

	var status wgpu.BufferMapAsyncStatus
	called := false
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status, called = s, true
	}); err != nil {
		return nil, fmt.Errorf("backend: map readback of %q: %w", i.label, err)
	}
	d.device.Poll(true, nil)
	if !called {
		return nil, fmt.Errorf("backend: map readback of %q did not complete", i.label)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("backend: map readback of %q: status %s", i.label, status.String())
	}
	defer staging.Unmap()

	return unpadRows(staging.GetMappedRange(0, uint(size)), row, paddedRow, height*layers), nil
}

// unpadRows copies rows of row bytes out of data laid out with a pitch of paddedRow.
func unpadRows(data []byte, row, paddedRow, rows uint32) []byte {
	out := make([]byte, 0, row*rows)
	for r := range rows {
		start := r * paddedRow
		out = append(out, data[start:start+row]...)
	}
	return out
}

func (d *wgpuDevice) CreateImageView(img gpu.Image, desc gpu.ViewDesc) (gpu.ImageView, error) {
	i := img.(*image)
	viewDesc := wgpu.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          textureFormat(i.desc.Format),
		Dimension:       viewDimension(desc.Dimension),
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  desc.BaseLayer,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	}
	switch desc.Dimension {
	case gpu.ViewDimension2DArray:
		viewDesc.BaseArrayLayer = 0
		viewDesc.ArrayLayerCount = i.desc.Layers
	case gpu.ViewDimensionCube:
		if i.desc.Layers != 6 {
			return nil, fmt.Errorf("backend: cube view %q of image with %d layers", desc.Label, i.desc.Layers)
		}
		viewDesc.BaseArrayLayer = 0
		viewDesc.ArrayLayerCount = 6
	default:
		if desc.BaseLayer >= i.desc.Layers {
			return nil, fmt.Errorf("backend: view %q of layer %d, image has %d", desc.Label, desc.BaseLayer, i.desc.Layers)
		}
	}

	view, err := i.tex.CreateView(&viewDesc)
	if err != nil {
		return nil, fmt.Errorf("backend: view %q: %w", desc.Label, err)
	}
	return &imageView{
		handle:    handle{class: gpu.ClassImageView, label: desc.Label},
		view:      view,
		image:     i,
		dimension: desc.Dimension,
	}, nil
}

func (d *wgpuDevice) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	filter, mipmap := filterMode(desc.Filter)
	address := addressMode(desc.Address)
	samplerDesc := wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipmap,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if desc.Compare {
		samplerDesc.Compare = wgpu.CompareFunctionLessEqual
	}
	s, err := d.device.CreateSampler(&samplerDesc)
	if err != nil {
		return nil, fmt.Errorf("backend: sampler %q: %w", desc.Label, err)
	}
	return &sampler{handle: handle{class: gpu.ClassSampler, label: desc.Label}, sampler: s}, nil
}

func (d *wgpuDevice) CreateShaderModule(desc gpu.ShaderModuleDesc) (gpu.ShaderModule, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backend: shader module %q: %w", desc.Label, err)
	}
	return &shaderModule{
		handle:     handle{class: gpu.ClassShaderModule, label: desc.Label},
		module:     module,
		stage:      desc.Stage,
		entryPoint: desc.EntryPoint,
	}, nil
}

func (d *wgpuDevice) CreateDescriptorSetLayout(desc gpu.SetLayoutDesc) (gpu.DescriptorSetLayout, error) {
	if desc.Set >= gpu.PushConstantSet {
		return nil, fmt.Errorf("backend: set layout %q uses set %d, sets from %d are reserved", desc.Label, desc.Set, gpu.PushConstantSet)
	}
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		entries = append(entries, bindGroupLayoutEntry(b))
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: set layout %q: %w", desc.Label, err)
	}
	return &setLayout{
		handle: handle{class: gpu.ClassDescriptorSetLayout, label: desc.Label},
		layout: layout,
		desc:   desc,
	}, nil
}

func (d *wgpuDevice) CreateDescriptorSet(layout gpu.DescriptorSetLayout, writes []gpu.DescriptorWrite) (gpu.DescriptorSet, error) {
	l := layout.(*setLayout)
	if err := validateWrites(l.desc, writes); err != nil {
		return nil, err
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(writes))
	for _, w := range writes {
		entry := wgpu.BindGroupEntry{Binding: w.Binding}
		switch {
		case w.Buffer != nil:
			entry.Buffer = w.Buffer.(*buffer).buf
			entry.Offset = w.Offset
			entry.Size = wgpu.WholeSize
			if w.Size > 0 {
				entry.Size = w.Size
			}
		case w.View != nil:
			entry.TextureView = w.View.(*imageView).view
		case w.Sampler != nil:
			entry.Sampler = w.Sampler.(*sampler).sampler
		case w.AccelerationStructure != nil:
			as := w.AccelerationStructure.(*accelerationStructure)
			if as.level != gpu.AccelerationTopLevel {
				return nil, fmt.Errorf("backend: binding %d of %q takes a top-level structure", w.Binding, l.label)
			}
			entry.Buffer = as.buf.buf
			entry.Size = wgpu.WholeSize
		}
		entries = append(entries, entry)
	}

	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   l.label,
		Layout:  l.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: descriptor set %q: %w", l.label, err)
	}
	return &descriptorSet{
		handle: handle{class: gpu.ClassDescriptorSet, label: l.label},
		group:  group,
		layout: l,
		writes: slices.Clone(writes),
	}, nil
}

// validateWrites checks that writes fill every binding of desc exactly once with a resource
// of the declared type.
func validateWrites(desc gpu.SetLayoutDesc, writes []gpu.DescriptorWrite) error {
	if len(writes) != len(desc.Bindings) {
		return fmt.Errorf("backend: set %q has %d bindings, got %d writes", desc.Label, len(desc.Bindings), len(writes))
	}
	seen := make(map[uint32]bool, len(writes))
	for _, w := range writes {
		var binding *gpu.Binding
		for i := range desc.Bindings {
			if desc.Bindings[i].Binding == w.Binding {
				binding = &desc.Bindings[i]
			}
		}
		switch {
		case binding == nil:
			return fmt.Errorf("backend: set %q has no binding %d", desc.Label, w.Binding)
		case seen[w.Binding]:
			return fmt.Errorf("backend: binding %d of set %q written twice", w.Binding, desc.Label)
		case w.Resource() == nil:
			return fmt.Errorf("backend: binding %d (%s) of set %q has no resource", w.Binding, binding.Name, desc.Label)
		case binding.Type.IsBuffer() && w.Buffer == nil,
			binding.Type.IsImage() && w.View == nil,
			binding.Type.IsSampler() && w.Sampler == nil,
			binding.Type == gpu.BindingAccelerationStructure && w.AccelerationStructure == nil:
			return fmt.Errorf("backend: binding %d (%s) of set %q expects %s", w.Binding, binding.Name, desc.Label, binding.Type)
		}
		seen[w.Binding] = true
	}
	return nil
}

func (d *wgpuDevice) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if len(desc.Attachments) == 0 {
		return nil, fmt.Errorf("backend: render pass %q has no attachments", desc.Label)
	}
	depth := 0
	for _, a := range desc.Attachments {
		if a.Usage == gpu.AttachmentDepth {
			depth++
		}
	}
	if depth > 1 {
		return nil, fmt.Errorf("backend: render pass %q has %d depth attachments", desc.Label, depth)
	}
	return &renderPass{handle: handle{class: gpu.ClassRenderPass, label: desc.Label}, desc: desc}, nil
}

func (d *wgpuDevice) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	pass := desc.Pass.(*renderPass)
	if len(desc.Attachments) != len(pass.desc.Attachments) {
		return nil, fmt.Errorf("backend: framebuffer %q has %d views for %d attachments", desc.Label, len(desc.Attachments), len(pass.desc.Attachments))
	}
	return &framebuffer{
		handle:      handle{class: gpu.ClassFramebuffer, label: desc.Label},
		pass:        pass,
		attachments: slices.Clone(desc.Attachments),
		extent:      desc.Extent,
	}, nil
}

// groupCount returns the number of bind group slots a pipeline layout needs for sets and,
// when push is set, the push constant slot.
func groupCount(sets []gpu.DescriptorSetLayout, push bool) (uint32, error) {
	var count uint32
	seen := make(map[uint32]bool, len(sets))
	for _, s := range sets {
		set := s.Desc().Set
		if set >= gpu.PushConstantSet {
			return 0, fmt.Errorf("backend: set %d is reserved", set)
		}
		if seen[set] {
			return 0, fmt.Errorf("backend: set %d declared twice", set)
		}
		seen[set] = true
		count = max(count, set+1)
	}
	if push {
		count = gpu.PushConstantSet + 1
	}
	return count, nil
}

func (d *wgpuDevice) pipelineLayout(label string, sets []gpu.DescriptorSetLayout, push gpu.PushConstantRange) (*wgpu.PipelineLayout, uint32, error) {
	if push.Size > PushBlockSize {
		return nil, 0, fmt.Errorf("backend: pipeline %q pushes %d bytes, limit %d", label, push.Size, PushBlockSize)
	}
	count, err := groupCount(sets, push.Size > 0)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: pipeline %q: %w", label, err)
	}

	layouts := make([]*wgpu.BindGroupLayout, count)
	for i := range layouts {
		layouts[i] = d.emptyLayout
	}
	for _, s := range sets {
		layouts[s.Desc().Set] = s.(*setLayout).layout
	}
	if push.Size > 0 {
		layouts[gpu.PushConstantSet] = d.pushLayout
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("backend: pipeline layout %q: %w", label, err)
	}
	return layout, count, nil
}

func (d *wgpuDevice) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if desc.Vertex == nil || desc.Fragment == nil || desc.RenderPass == nil {
		return nil, fmt.Errorf("backend: graphics pipeline %q needs vertex and fragment modules and a render pass", desc.Label)
	}
	pass := desc.RenderPass.(*renderPass)
	layout, groups, err := d.pipelineLayout(desc.Label, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, err
	}

	var targets []wgpu.ColorTargetState
	var depthStencil *wgpu.DepthStencilState
	for _, a := range pass.desc.Attachments {
		if a.Usage == gpu.AttachmentDepth {
			// a pass with a depth attachment needs matching state even without a depth test
			state := &wgpu.DepthStencilState{
				Format:            textureFormat(a.Format),
				DepthWriteEnabled: false,
				DepthCompare:      wgpu.CompareFunctionAlways,
				StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
				StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			}
			if desc.Depth != nil {
				state.DepthWriteEnabled = desc.Depth.Write
				state.DepthCompare = compareFunction(desc.Depth.Compare)
			}
			depthStencil = state
			continue
		}
		blend := gpu.BlendModeDisabled
		if i := len(targets); i < len(desc.Blend) {
			blend = desc.Blend[i]
		}
		targets = append(targets, wgpu.ColorTargetState{
			Format:    textureFormat(a.Format),
			Blend:     blendState(blend),
			WriteMask: wgpu.ColorWriteMaskAll,
		})
	}

	buffers := make([]wgpu.VertexBufferLayout, 0, len(desc.VertexInputs))
	for _, in := range desc.VertexInputs {
		attributes := make([]wgpu.VertexAttribute, 0, len(in.Attributes))
		for _, a := range in.Attributes {
			attributes = append(attributes, wgpu.VertexAttribute{
				Format:         vertexFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			})
		}
		step := wgpu.VertexStepModeVertex
		if in.PerInstance {
			step = wgpu.VertexStepModeInstance
		}
		buffers = append(buffers, wgpu.VertexBufferLayout{
			ArrayStride: uint64(in.Stride),
			StepMode:    step,
			Attributes:  attributes,
		})
	}

	vertex := desc.Vertex.(*shaderModule)
	fragment := desc.Fragment.(*shaderModule)
	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vertex.module,
			EntryPoint: vertex.entryPoint,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fragment.module,
			EntryPoint: fragment.entryPoint,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(desc.Topology),
			FrontFace: frontFace(desc.FrontFace),
			CullMode:  cullMode(desc.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("backend: graphics pipeline %q: %w", desc.Label, err)
	}
	return &pipeline{
		handle:    handle{class: gpu.ClassPipeline, label: desc.Label},
		bindPoint: gpu.BindPointGraphics,
		render:    created,
		layout:    layout,
		sets:      slices.Clone(desc.SetLayouts),
		groups:    groups,
		pushSize:  desc.PushConstants.Size,
	}, nil
}

func (d *wgpuDevice) computePipeline(label string, module gpu.ShaderModule, sets []gpu.DescriptorSetLayout, push gpu.PushConstantRange) (*pipeline, error) {
	if module == nil {
		return nil, fmt.Errorf("backend: compute pipeline %q has no module", label)
	}
	layout, groups, err := d.pipelineLayout(label, sets, push)
	if err != nil {
		return nil, err
	}
	m := module.(*shaderModule)
	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     m.module,
			EntryPoint: m.entryPoint,
		},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("backend: compute pipeline %q: %w", label, err)
	}
	return &pipeline{
		handle:    handle{class: gpu.ClassPipeline, label: label},
		bindPoint: gpu.BindPointCompute,
		compute:   created,
		layout:    layout,
		sets:      slices.Clone(sets),
		groups:    groups,
		pushSize:  push.Size,
	}, nil
}

func (d *wgpuDevice) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return d.computePipeline(desc.Label, desc.Module, desc.SetLayouts, desc.PushConstants)
}

// CreateRayTracingPipeline builds the ray generation module as a compute pipeline. Miss and
// closest hit shading live in the ray generation source on this backend.
func (d *wgpuDevice) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	if !d.rayTracing {
		return nil, gpu.ErrUnsupported
	}
	p, err := d.computePipeline(desc.Label, desc.RayGen, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, err
	}
	p.bindPoint = gpu.BindPointRayTracing
	p.workgroup = desc.WorkgroupSize
	if p.workgroup[0] == 0 || p.workgroup[1] == 0 {
		p.workgroup = [2]uint32{defaultTraceTile, defaultTraceTile}
	}
	return p, nil
}

func (d *wgpuDevice) CreateAccelerationStructure(desc gpu.AccelerationStructureDesc) (gpu.AccelerationStructure, error) {
	if !d.rayTracing {
		return nil, gpu.ErrUnsupported
	}
	as := &accelerationStructure{
		handle: handle{class: gpu.ClassAccelerationStructure, label: desc.Label},
		level:  desc.Level,
	}

	if desc.Level == gpu.AccelerationBottomLevel {
		bvh, err := accel.Build(desc.Geometry)
		if err != nil {
			return nil, fmt.Errorf("backend: bottom level %q: %w", desc.Label, err)
		}
		as.bvh = bvh
		return as, nil
	}

	bottoms := make([]*accel.BVH, 0, len(desc.Bottoms))
	as.bottoms = make(map[gpu.AccelerationStructure]int, len(desc.Bottoms))
	for i, b := range desc.Bottoms {
		bottom, ok := b.(*accelerationStructure)
		if !ok || bottom.level != gpu.AccelerationBottomLevel || bottom.bvh == nil {
			return nil, fmt.Errorf("backend: top level %q: bottom %d is not a built bottom-level structure", desc.Label, i)
		}
		as.bottoms[b] = i
		bottoms = append(bottoms, bottom.bvh)
	}
	as.topLevel = accel.NewTopLevel(desc.MaxInstances, bottoms)

	buf, err := d.CreateBuffer(gpu.BufferDesc{
		Label: desc.Label,
		Size:  as.topLevel.Size(),
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	as.buf = buf.(*buffer)

	header, err := as.topLevel.EncodeInstances(nil)
	if err != nil {
		as.Release()
		return nil, err
	}
	d.WriteBuffer(buf, 0, header)
	if static := as.topLevel.StaticData(); len(static) > 0 {
		d.WriteBuffer(buf, as.topLevel.StaticOffset(), static)
	}
	return as, nil
}

// encodeInstances maps device instances onto the bottoms of a top-level structure.
func (a *accelerationStructure) encodeInstances(instances []gpu.Instance) ([]byte, error) {
	mapped := make([]accel.Instance, 0, len(instances))
	for i, inst := range instances {
		bottom, ok := a.bottoms[inst.Bottom]
		if !ok {
			return nil, fmt.Errorf("backend: instance %d of %q references a structure it was not created with", i, a.label)
		}
		mapped = append(mapped, accel.Instance{
			Transform:   inst.Transform,
			Bottom:      bottom,
			CustomIndex: inst.CustomIndex,
			Mask:        inst.Mask,
		})
	}
	return a.topLevel.EncodeInstances(mapped)
}

func (d *wgpuDevice) CreateCommandBuffer(label string) (gpu.CommandBuffer, error) {
	return newCommandBuffer(d, label)
}

func (d *wgpuDevice) CreateSemaphore(label string) (gpu.Semaphore, error) {
	return &semaphore{handle: handle{class: gpu.ClassSemaphore, label: label}}, nil
}

func (d *wgpuDevice) CreateFence(label string, signaled bool) (gpu.Fence, error) {
	return &fence{handle: handle{class: gpu.ClassFence, label: label}, signaled: signaled}, nil
}

// WaitForFence blocks on the device poll. WebGPU exposes no per-submission wait through the
// gpu interface, so the wait covers all submitted work.
func (d *wgpuDevice) WaitForFence(ctx context.Context, f gpu.Fence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fc := f.(*fence)
	if fc.signaled {
		return nil
	}
	if !fc.pending {
		return fmt.Errorf("backend: wait on fence %q that no submission will signal", fc.label)
	}
	d.device.Poll(true, nil)
	fc.signaled = true
	fc.pending = false
	return nil
}

func (d *wgpuDevice) ResetFence(f gpu.Fence) error {
	fc := f.(*fence)
	if fc.pending {
		return fmt.Errorf("backend: reset of fence %q with a pending submission", fc.label)
	}
	fc.signaled = false
	return nil
}

func (d *wgpuDevice) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return gpu.ErrDeviceLost
	}
	finished := make([]*wgpu.CommandBuffer, 0, len(info.Commands))
	for _, c := range info.Commands {
		cb := c.(*commandBuffer)
		if cb.finished == nil {
			return fmt.Errorf("backend: submit of %q which was not ended", cb.label)
		}
		finished = append(finished, cb.finished)
		cb.finished = nil
	}

	d.queue.Submit(finished...)
	for _, f := range finished {
		f.Release()
	}
	if info.Fence != nil {
		fc := info.Fence.(*fence)
		fc.signaled = false
		fc.pending = true
	}
	return nil
}

func (d *wgpuDevice) ExecuteImmediate(record func(cmd gpu.CommandBuffer)) error {
	cmd, err := d.CreateCommandBuffer("Immediate")
	if err != nil {
		return err
	}
	defer cmd.Release()

	if err := cmd.Begin(); err != nil {
		return err
	}
	record(cmd)
	if err := cmd.End(); err != nil {
		return err
	}
	if err := d.Submit(gpu.SubmitInfo{Commands: []gpu.CommandBuffer{cmd}}); err != nil {
		return err
	}
	return d.WaitIdle()
}

func (d *wgpuDevice) WaitIdle() error {
	if d.device == nil {
		return gpu.ErrDeviceLost
	}
	d.device.Poll(true, nil)
	return nil
}

func (d *wgpuDevice) Release() {
	if d.surface != nil {
		d.surface.release()
		d.surface = nil
	}
	if d.emptyGroup != nil {
		d.emptyGroup.Release()
		d.emptyGroup = nil
	}
	if d.emptyLayout != nil {
		d.emptyLayout.Release()
		d.emptyLayout = nil
	}
	if d.pushLayout != nil {
		d.pushLayout.Release()
		d.pushLayout = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// errNoSurface is returned by surface operations after the device was released.
var errNoSurface = errors.New("backend: surface released")
