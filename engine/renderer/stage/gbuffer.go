package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// DepthFormat is the format of the G-buffer depth image, shared with the forward pass.
const DepthFormat = gpu.FormatDepth32Float

// GBufferTarget indexes the color attachments of the G-buffer.
type GBufferTarget int

const (
	GBufferBaseColor GBufferTarget = iota
	GBufferNormal
	GBufferEmission
	// GBufferMisc holds roughness, metallic and occlusion.
	GBufferMisc

	// GBufferColorCount is the number of color attachments.
	GBufferColorCount
)

// gbufferTargets lists the label, binding name and format of every color attachment.
var gbufferTargets = [GBufferColorCount]struct {
	label   string
	binding string
	format  gpu.Format
}{
	GBufferBaseColor: {"BaseColor", "gbufferBaseColor", gpu.FormatRGBA8Unorm},
	GBufferNormal:    {"Normal", "gbufferNormal", gpu.FormatRGBA16Float},
	GBufferEmission:  {"Emission", "gbufferEmission", gpu.FormatRGBA16Float},
	GBufferMisc:      {"Misc", "gbufferMisc", gpu.FormatRGBA8Unorm},
}

// GBufferDepthBinding is the binding name of the depth image in the lighting shader.
const GBufferDepthBinding = "gbufferDepth"

// union combines two scopes into one.
func union(a, b gpu.SyncScope) gpu.SyncScope {
	return gpu.SyncScope{Stages: a.Stages | b.Stages, Access: a.Access | b.Access}
}

// GBufferStage rasterizes the opaque and alpha-tested geometry of the scene into four color
// targets and a depth image. One pipeline is built per distinct material flags value.
type GBufferStage struct {
	Base

	pass gpu.RenderPass

	// The following resources are sized to the swapchain extent and recreated by Resize.

	images      []gpu.Image
	targets     []gpu.ImageView
	framebuffer gpu.Framebuffer

	clears   []gpu.ClearValue
	drawPush []byte
}

// Compile-time check that GBufferStage implements Stage
var _ Stage = &GBufferStage{}

// NewGBufferStage creates the G-buffer render pass and targets.
//
// Parameters:
//   - dev: the device
//   - shaders: the shader manager the pipelines are compiled with
//   - views: the swapchain views, which decide the extent and image count
//
// Returns:
//   - *GBufferStage: the stage, without a scene
//   - error: an error if a GPU object could not be created
func NewGBufferStage(dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView) (*GBufferStage, error) {
	g := &GBufferStage{
		Base:     NewBase("gbuffer", dev, shaders, views),
		clears:   make([]gpu.ClearValue, GBufferColorCount+1),
		drawPush: make([]byte, 0, scene.DrawPushSize),
	}
	g.clears[GBufferColorCount] = gpu.ClearValue{Depth: 1}
	g.Build = g.buildBundle
	g.Push = g.pushData

	attachments := make([]gpu.Attachment, 0, GBufferColorCount+1)
	for _, t := range gbufferTargets {
		attachments = append(attachments, gpu.Attachment{
			Usage:         gpu.AttachmentColor,
			Format:        t.format,
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.ImageLayoutGeneral,
			ActualLayout:  gpu.ImageLayoutColorAttachment,
			FinalLayout:   gpu.ImageLayoutGeneral,
		})
	}
	attachments = append(attachments, gpu.Attachment{
		Usage:         gpu.AttachmentDepth,
		Format:        DepthFormat,
		LoadOp:        gpu.LoadOpClear,
		StoreOp:       gpu.StoreOpStore,
		InitialLayout: gpu.ImageLayoutDepthAttachment,
		ActualLayout:  gpu.ImageLayoutDepthAttachment,
		FinalLayout:   gpu.ImageLayoutShaderReadOnly,
	})

	writes := union(gpu.ScopeColorAttachmentWrite, gpu.ScopeDepthWrite)
	pass, err := dev.CreateRenderPass(gpu.RenderPassDesc{
		Label:       "GBuffer Pass",
		Attachments: attachments,
		Previous:    &gpu.PipelineBarrier{Src: gpu.ScopeComputeRead, Dst: writes},
		Following:   &gpu.PipelineBarrier{Src: writes, Dst: gpu.ScopeComputeRead},
	})
	if err != nil {
		return nil, fmt.Errorf("stage gbuffer: render pass: %w", err)
	}
	g.pass = pass

	if err := g.createTargets(); err != nil {
		pass.Release()
		return nil, err
	}
	return g, nil
}

func (g *GBufferStage) Contract() ImageContract {
	return ImageContract{}
}

// RenderPass returns the G-buffer render pass.
func (g *GBufferStage) RenderPass() gpu.RenderPass {
	return g.pass
}

// Target returns the view of one color attachment.
func (g *GBufferStage) Target(t GBufferTarget) gpu.ImageView {
	return g.targets[t]
}

// DepthView returns the view of the depth image, left in gpu.ImageLayoutShaderReadOnly by the
// pass.
func (g *GBufferStage) DepthView() gpu.ImageView {
	return g.targets[GBufferColorCount]
}

// Images returns the color images followed by the depth image.
func (g *GBufferStage) Images() []gpu.Image {
	return g.images
}

// PushTargets binds the G-buffer views to the lighting shader bindings.
func (g *GBufferStage) PushTargets(push func(name string, view gpu.ImageView)) {
	for i, t := range gbufferTargets {
		push(t.binding, g.targets[i])
	}
	push(GBufferDepthBinding, g.DepthView())
}

// createTargets creates the attachments and framebuffer at the current extent and moves the
// images to the layouts the render pass starts from.
func (g *GBufferStage) createTargets() error {
	if g.extent.IsZero() {
		return nil
	}

	create := func(label string, format gpu.Format, usage gpu.ImageUsage) error {
		img, err := g.dev.CreateImage(gpu.ImageDesc{
			Label:  "GBuffer " + label,
			Extent: g.extent,
			Format: format,
			Usage:  usage | gpu.ImageUsageSampled,
		})
		if err != nil {
			return fmt.Errorf("stage gbuffer: %s image: %w", label, err)
		}
		g.images = append(g.images, img)
		view, err := g.dev.CreateImageView(img, gpu.ViewDesc{Label: "GBuffer " + label + " View"})
		if err != nil {
			return fmt.Errorf("stage gbuffer: %s view: %w", label, err)
		}
		g.targets = append(g.targets, view)
		return nil
	}

	for _, t := range gbufferTargets {
		if err := create(t.label, t.format, gpu.ImageUsageColorAttachment); err != nil {
			g.destroyTargets()
			return err
		}
	}
	if err := create("Depth", DepthFormat, gpu.ImageUsageDepthAttachment); err != nil {
		g.destroyTargets()
		return err
	}

	fb, err := g.dev.CreateFramebuffer(gpu.FramebufferDesc{
		Label:       "GBuffer Framebuffer",
		Pass:        g.pass,
		Attachments: g.targets,
		Extent:      g.extent,
	})
	if err != nil {
		g.destroyTargets()
		return fmt.Errorf("stage gbuffer: framebuffer: %w", err)
	}
	g.framebuffer = fb

	err = g.dev.ExecuteImmediate(func(cmd gpu.CommandBuffer) {
		barriers := make([]gpu.ImageBarrier, 0, len(g.images))
		for i, img := range g.images {
			layout := gpu.ImageLayoutGeneral
			if i == int(GBufferColorCount) {
				layout = gpu.ImageLayoutDepthAttachment
			}
			barriers = append(barriers, gpu.ImageBarrier{Image: img, Transition: gpu.LayoutTransition{
				Old:     gpu.ImageLayoutUndefined,
				New:     layout,
				Barrier: gpu.BarrierEmpty,
			}})
		}
		cmd.PipelineBarrier(gpu.BarrierEmpty, barriers...)
	})
	if err != nil {
		g.destroyTargets()
		return fmt.Errorf("stage gbuffer: initial transition: %w", err)
	}
	return nil
}

func (g *GBufferStage) destroyTargets() {
	if g.framebuffer != nil {
		g.framebuffer.Release()
		g.framebuffer = nil
	}
	for _, v := range g.targets {
		v.Release()
	}
	for _, img := range g.images {
		img.Release()
	}
	g.targets = nil
	g.images = nil
}

func (g *GBufferStage) buildBundle(s *scene.Scene) (*Bundle, error) {
	b := NewBundle(g.dev, g.shaders)
	materialCount := uint32(len(s.Materials()))

	pipes, err := CreateMaterialPipelines(s.Materials(),
		func(flags scene.MaterialFlags) bool { return !flags.Has(scene.MaterialAlphaBlend) },
		func(flags scene.MaterialFlags) (pipeline.Pipeline, error) {
			defines := shader.Defines(flags.Defines())
			defines["MATERIAL_COUNT"] = materialCount

			vs, err := b.Module(gpu.ShaderStageVertex, GBufferShader, defines, nil)
			if err != nil {
				return nil, err
			}
			fs, err := b.Module(gpu.ShaderStageFragment, GBufferShader, defines, nil)
			if err != nil {
				return nil, err
			}

			cull := gpu.CullModeBack
			if flags&(scene.MaterialAlphaTest|scene.MaterialDoubleSided) != 0 {
				cull = gpu.CullModeNone
			}
			return b.Add(pipeline.NewPipeline("GBuffer "+flags.String(), pipeline.PipelineTypeGraphics,
				pipeline.WithVertexShader(vs),
				pipeline.WithFragmentShader(fs),
				pipeline.WithRenderPass(g.pass),
				pipeline.WithCullMode(cull),
				pipeline.WithDepthCompare(gpu.CompareOpLess),
			)), nil
		})
	b.Materials = pipes
	if err != nil {
		return b, err
	}
	return b, b.Create("GBuffer", g.ImageCount())
}

func (g *GBufferStage) pushData(b *Bundle) error {
	PushFrameData(b.Provider, g.scene)
	PushMaterialData(b.Provider, g.scene)
	return nil
}

// Resize recreates the targets at the extent of views. The lighting and forward stages read
// the targets and are resized after this stage.
func (g *GBufferStage) Resize(views []gpu.ImageView) error {
	g.destroyTargets()
	if err := g.ResizeData(views); err != nil {
		return err
	}
	return g.createTargets()
}

func (g *GBufferStage) Execute(cmd gpu.CommandBuffer, imageIndex uint32) {
	if !g.Ready() || g.framebuffer == nil {
		return
	}

	sets := g.bundle.Provider.GetDescriptorSlice(imageIndex)
	objects := g.scene.RenderObjects()
	primitives := g.scene.Primitives()
	pipes := g.bundle.Materials

	cmd.BeginRenderPass(g.framebuffer, g.clears)
	for _, flags := range pipes.Flags {
		p := pipes.Pipelines[flags]
		p.Bind(cmd, sets)
		for _, obj := range objects {
			if g.scene.MaterialFlags(obj) != flags {
				continue
			}
			prim := primitives[obj.PrimitiveIndex]
			g.drawPush = scene.AppendDrawPush(g.drawPush[:0], obj.Transform, obj.MaterialIndex)
			cmd.PushConstants(p.Handle(), gpu.ShaderStageAllGraphics, 0, g.drawPush)
			cmd.BindVertexBuffers(0, prim.VertexBuffer)
			cmd.BindIndexBuffer(prim.IndexBuffer, gpu.IndexFormatUint32)
			cmd.DrawIndexed(prim.IndexCount, 1, 0, 0, 0)
		}
	}
	cmd.EndRenderPass()
}

func (g *GBufferStage) Release() {
	g.RemoveScene()
	g.destroyTargets()
	if g.pass != nil {
		g.pass.Release()
		g.pass = nil
	}
}
