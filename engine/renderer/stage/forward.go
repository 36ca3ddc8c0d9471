package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// skyVertexCount is the vertex count of the sky cube generated in the environment shader.
const skyVertexCount = 36

// ForwardStage draws the sky and the alpha blended geometry over the lit image, depth tested
// against the G-buffer depth, and leaves the swapchain image ready to present.
type ForwardStage struct {
	Base

	gbuffer *GBufferStage

	format       gpu.Format
	pass         gpu.RenderPass
	framebuffers []gpu.Framebuffer
	clears       []gpu.ClearValue

	drawPush []byte
}

// Compile-time check that ForwardStage implements Stage
var _ Stage = &ForwardStage{}

// NewForwardStage creates the forward pass.
//
// Parameters:
//   - dev: the device
//   - shaders: the shader manager
//   - views: the swapchain views
//   - gbuffer: the stage owning the depth image the pass tests against
//
// Returns:
//   - *ForwardStage: the stage, without a scene
//   - error: an error if the render pass or a framebuffer could not be created
func NewForwardStage(dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView, gbuffer *GBufferStage) (*ForwardStage, error) {
	f := &ForwardStage{
		Base:     NewBase("forward", dev, shaders, views),
		gbuffer:  gbuffer,
		clears:   make([]gpu.ClearValue, 2),
		drawPush: make([]byte, 0, scene.DrawPushSize),
	}
	f.Build = f.buildBundle
	f.Push = f.pushData

	if err := f.createPass(formatOf(views)); err != nil {
		return nil, err
	}
	if err := f.createFramebuffers(); err != nil {
		f.pass.Release()
		return nil, err
	}
	return f, nil
}

func formatOf(views []gpu.ImageView) gpu.Format {
	if len(views) == 0 {
		return gpu.FormatUndefined
	}
	return views[0].Image().Desc().Format
}

func (f *ForwardStage) Contract() ImageContract {
	return ImageContract{Entry: gpu.ImageLayoutColorAttachment, Exit: gpu.ImageLayoutPresentSrc}
}

// RenderPass returns the forward render pass.
func (f *ForwardStage) RenderPass() gpu.RenderPass {
	return f.pass
}

func (f *ForwardStage) createPass(format gpu.Format) error {
	pass, err := f.dev.CreateRenderPass(gpu.RenderPassDesc{
		Label: "Forward Pass",
		Attachments: []gpu.Attachment{
			{
				Usage:         gpu.AttachmentColor,
				Format:        format,
				LoadOp:        gpu.LoadOpLoad,
				StoreOp:       gpu.StoreOpStore,
				InitialLayout: gpu.ImageLayoutColorAttachment,
				ActualLayout:  gpu.ImageLayoutColorAttachment,
				FinalLayout:   gpu.ImageLayoutPresentSrc,
			},
			{
				Usage:         gpu.AttachmentDepth,
				Format:        DepthFormat,
				LoadOp:        gpu.LoadOpLoad,
				StoreOp:       gpu.StoreOpDontCare,
				InitialLayout: gpu.ImageLayoutShaderReadOnly,
				ActualLayout:  gpu.ImageLayoutDepthAttachment,
				FinalLayout:   gpu.ImageLayoutDepthAttachment,
			},
		},
		Previous: &gpu.PipelineBarrier{
			Src: union(gpu.ScopeComputeWrite, gpu.ScopeDepthWrite),
			Dst: union(gpu.ScopeColorAttachmentWrite, gpu.ScopeDepthRead),
		},
		Following: &gpu.PipelineBarrier{Src: gpu.ScopeColorAttachmentWrite, Dst: gpu.ScopeColorAttachmentWrite},
	})
	if err != nil {
		return fmt.Errorf("stage forward: render pass: %w", err)
	}
	f.pass = pass
	f.format = format
	return nil
}

func (f *ForwardStage) createFramebuffers() error {
	if f.extent.IsZero() || len(f.gbuffer.targets) == 0 {
		return nil
	}
	depth := f.gbuffer.DepthView()
	for i, v := range f.views {
		fb, err := f.dev.CreateFramebuffer(gpu.FramebufferDesc{
			Label:       fmt.Sprintf("Forward Framebuffer %d", i),
			Pass:        f.pass,
			Attachments: []gpu.ImageView{v, depth},
			Extent:      f.extent,
		})
		if err != nil {
			f.destroyFramebuffers()
			return fmt.Errorf("stage forward: framebuffer %d: %w", i, err)
		}
		f.framebuffers = append(f.framebuffers, fb)
	}
	return nil
}

func (f *ForwardStage) destroyFramebuffers() {
	for _, fb := range f.framebuffers {
		fb.Release()
	}
	f.framebuffers = nil
}

func (f *ForwardStage) buildBundle(s *scene.Scene) (*Bundle, error) {
	b := NewBundle(f.dev, f.shaders)

	skyVS, err := b.Module(gpu.ShaderStageVertex, EnvironmentShader, nil, nil)
	if err != nil {
		return b, err
	}
	skyFS, err := b.Module(gpu.ShaderStageFragment, EnvironmentShader, nil, nil)
	if err != nil {
		return b, err
	}
	b.Add(pipeline.NewPipeline("Environment", pipeline.PipelineTypeGraphics,
		pipeline.WithVertexShader(skyVS),
		pipeline.WithFragmentShader(skyFS),
		pipeline.WithRenderPass(f.pass),
		pipeline.WithCullMode(gpu.CullModeFront),
		pipeline.WithDepthCompare(gpu.CompareOpLessOrEqual),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithBlendEnabled(false),
	))

	lightCount := uint32(len(light.Enabled(s.Lights())))
	materialCount := uint32(len(s.Materials()))
	sceneDefines := SceneDefines(s)

	pipes, err := CreateMaterialPipelines(s.Materials(),
		func(flags scene.MaterialFlags) bool { return flags.Has(scene.MaterialAlphaBlend) },
		func(flags scene.MaterialFlags) (pipeline.Pipeline, error) {
			defines := shader.Defines(flags.Defines())
			for k, v := range sceneDefines {
				defines[k] = v
			}
			defines["LIGHT_COUNT"] = lightCount
			defines["MATERIAL_COUNT"] = materialCount

			vs, err := b.Module(gpu.ShaderStageVertex, ForwardShader, defines, nil)
			if err != nil {
				return nil, err
			}
			fs, err := b.Module(gpu.ShaderStageFragment, ForwardShader, defines, nil)
			if err != nil {
				return nil, err
			}

			cull := gpu.CullModeBack
			if flags.Has(scene.MaterialDoubleSided) {
				cull = gpu.CullModeNone
			}
			return b.Add(pipeline.NewPipeline("Forward "+flags.String(), pipeline.PipelineTypeGraphics,
				pipeline.WithVertexShader(vs),
				pipeline.WithFragmentShader(fs),
				pipeline.WithRenderPass(f.pass),
				pipeline.WithCullMode(cull),
				pipeline.WithDepthCompare(gpu.CompareOpLess),
				pipeline.WithDepthWriteEnabled(false),
				pipeline.WithBlendEnabled(true),
			)), nil
		})
	b.Materials = pipes
	if err != nil {
		return b, err
	}
	return b, b.Create("Forward", f.ImageCount())
}

func (f *ForwardStage) pushData(b *Bundle) error {
	PushFrameData(b.Provider, f.scene)
	PushMaterialData(b.Provider, f.scene)
	PushEnvironmentData(b.Provider, f.scene)
	return nil
}

// skyPipeline returns the environment pipeline of the current bundle, the first one added.
func (f *ForwardStage) skyPipeline() pipeline.Pipeline {
	return f.bundle.Pipelines()[0]
}

// Resize recreates the framebuffers around the new swapchain views and the G-buffer depth
// image, so the G-buffer must be resized first. A changed swapchain format recreates the
// render pass and rebuilds the pipelines.
func (f *ForwardStage) Resize(views []gpu.ImageView) error {
	f.destroyFramebuffers()

	if format := formatOf(views); format != f.format {
		s := f.scene
		f.RemoveScene()
		f.pass.Release()
		f.pass = nil
		if err := f.createPass(format); err != nil {
			return err
		}
		if err := f.ResizeData(views); err != nil {
			return err
		}
		if err := f.createFramebuffers(); err != nil {
			return err
		}
		if s != nil {
			return f.RegisterScene(s)
		}
		return nil
	}

	if err := f.ResizeData(views); err != nil {
		return err
	}
	return f.createFramebuffers()
}

func (f *ForwardStage) Execute(cmd gpu.CommandBuffer, imageIndex uint32) {
	if !f.Ready() || len(f.framebuffers) == 0 {
		return
	}

	sets := f.bundle.Provider.GetDescriptorSlice(imageIndex)
	pipes := f.bundle.Materials
	primitives := f.scene.Primitives()

	cmd.BeginRenderPass(f.framebuffers[imageIndex], f.clears)

	f.skyPipeline().Bind(cmd, sets)
	cmd.Draw(skyVertexCount, 1, 0, 0)

	var bound pipeline.Pipeline
	for _, obj := range f.scene.RenderObjects() {
		p := pipes.Get(f.scene.MaterialFlags(obj))
		if p == nil {
			continue
		}
		if p != bound {
			p.Bind(cmd, sets)
			bound = p
		}
		prim := primitives[obj.PrimitiveIndex]
		f.drawPush = scene.AppendDrawPush(f.drawPush[:0], obj.Transform, obj.MaterialIndex)
		cmd.PushConstants(p.Handle(), gpu.ShaderStageAllGraphics, 0, f.drawPush)
		cmd.BindVertexBuffers(0, prim.VertexBuffer)
		cmd.BindIndexBuffer(prim.IndexBuffer, gpu.IndexFormatUint32)
		cmd.DrawIndexed(prim.IndexCount, 1, 0, 0, 0)
	}

	cmd.EndRenderPass()
}

func (f *ForwardStage) Release() {
	f.RemoveScene()
	f.destroyFramebuffers()
	if f.pass != nil {
		f.pass.Release()
		f.pass = nil
	}
}
