// Package pathtracing implements the progressive path tracer that replaces the rasterized
// stages when the renderer runs in path tracing mode, and the probe capture built on it.
package pathtracing

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/stage"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// AccumulationBinding is the binding of the running mean in the path tracing shader.
const AccumulationBinding = "accumulation"

// accumulationTexelSize is the size of one RGBA32F accumulation texel.
const accumulationTexelSize = 16

// pushSize is the size of the path tracing push block.
const pushSize = 16

var (
	// ErrNoRayTracing is returned when a scene without a ray tracing component is registered.
	ErrNoRayTracing = errors.New("pathtracing: scene has no ray tracing component")

	errNoAccumulation = errors.New("pathtracing: no accumulation buffer at zero extent")
)

// Mode selects what the renderer traces into.
type Mode int

const (
	// ModeSwapchain traces into the swapchain image and accumulates samples across frames.
	ModeSwapchain Mode = iota
	// ModeProbe traces the faces of a cube image with a fixed sample count per face.
	ModeProbe
)

func (m Mode) String() string {
	switch m {
	case ModeSwapchain:
		return "swapchain"
	case ModeProbe:
		return "probe"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Renderer traces the registered scene with one ray generation pipeline. In swapchain mode it
// is a stage.Stage that owns the swapchain image for the whole frame.
type Renderer struct {
	stage.Base

	mode        Mode
	maxBounces  uint32
	sampleCount uint32
	seed        uint32
	requested   [2]uint32
	tile        gpu.WorkgroupTile

	// cameras replaces the scene renderer's camera buffers in probe mode.
	cameras *stage.CameraData

	accumulation      gpu.Buffer
	accumulationIndex uint32

	push  []byte
	entry []gpu.ImageBarrier
	exit  []gpu.ImageBarrier
}

// Compile-time check that Renderer implements stage.Stage
var _ stage.Stage = &Renderer{}

// NewRenderer creates a swapchain mode path tracer.
//
// Parameters:
//   - dev: the device, which must support ray tracing
//   - shaders: the shader manager
//   - views: the swapchain views
//   - options: functional options
//
// Returns:
//   - *Renderer: the renderer, without a scene
//   - error: gpu.ErrUnsupported without ray tracing, or an error creating the accumulation buffer
func NewRenderer(dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView, options ...RendererOption) (*Renderer, error) {
	r, err := newRenderer(ModeSwapchain, dev, shaders, views, options)
	if err != nil {
		return nil, err
	}
	if err := r.createAccumulation(r.Extent()); err != nil {
		return nil, err
	}
	r.updateBarriers()
	return r, nil
}

// newProbeRenderer creates a probe mode path tracer writing one face per view with the
// given per-face cameras. The views and cameras stay owned by the caller.
func newProbeRenderer(dev gpu.Device, shaders *shader.Manager, faces []gpu.ImageView, cameras *stage.CameraData, options []RendererOption) (*Renderer, error) {
	r, err := newRenderer(ModeProbe, dev, shaders, faces, options)
	if err != nil {
		return nil, err
	}
	r.cameras = cameras
	return r, nil
}

func newRenderer(mode Mode, dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView, options []RendererOption) (*Renderer, error) {
	if !dev.Capabilities().RayTracing {
		return nil, fmt.Errorf("pathtracing: %w: device has no ray tracing", gpu.ErrUnsupported)
	}
	r := &Renderer{
		Base:        stage.NewBase("pathtracing", dev, shaders, views),
		mode:        mode,
		maxBounces:  DefaultMaxBounces,
		sampleCount: 1,
		requested:   DefaultTraceTile,
		push:        make([]byte, 0, pushSize),
	}
	if mode == ModeProbe {
		r.Base = stage.NewBase("probe", dev, shaders, views)
		r.sampleCount = DefaultProbeSampleCount
	}
	for _, opt := range options {
		opt(r)
	}
	r.tile = gpu.FitWorkgroupTile(r.requested, dev.Capabilities())
	r.Build = r.buildBundle
	r.Push = r.pushData
	return r, nil
}

// Mode returns the mode the renderer was created in.
func (r *Renderer) Mode() Mode {
	return r.mode
}

// Contract declares that the renderer discards the swapchain image and leaves it ready to
// present. Probe renderers do not touch the swapchain.
func (r *Renderer) Contract() stage.ImageContract {
	if r.mode == ModeProbe {
		return stage.ImageContract{}
	}
	return stage.ImageContract{Entry: gpu.ImageLayoutUndefined, Exit: gpu.ImageLayoutPresentSrc}
}

// Tile returns the ray generation workgroup fitted to the device limits.
func (r *Renderer) Tile() gpu.WorkgroupTile {
	return r.tile
}

// AccumulationIndex returns the number of samples accumulated since the last reset, which is
// the index the next Execute pushes.
func (r *Renderer) AccumulationIndex() uint32 {
	return r.accumulationIndex
}

// Reset restarts accumulation. The next frame overwrites the running mean.
func (r *Renderer) Reset() {
	r.accumulationIndex = 0
}

// Accumulation returns the running mean buffer, nil in probe mode or at zero extent.
func (r *Renderer) Accumulation() gpu.Buffer {
	return r.accumulation
}

// createAccumulation creates the running mean buffer for extent.
func (r *Renderer) createAccumulation(extent gpu.Extent2D) error {
	if r.mode == ModeProbe || extent.IsZero() {
		return nil
	}
	buf, err := r.Device().CreateBuffer(gpu.BufferDesc{
		Label: "PathTracing Accumulation",
		Size:  uint64(extent.Width) * uint64(extent.Height) * accumulationTexelSize,
		Usage: gpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("pathtracing: accumulation buffer: %w", err)
	}
	r.accumulation = buf
	return nil
}

func (r *Renderer) releaseAccumulation() {
	if r.accumulation != nil {
		r.accumulation.Release()
		r.accumulation = nil
	}
}

// updateBarriers builds the swapchain transitions around the trace of every image.
func (r *Renderer) updateBarriers() {
	r.entry = r.entry[:0]
	r.exit = r.exit[:0]
	if r.mode == ModeProbe {
		return
	}
	for _, v := range r.Views() {
		r.entry = append(r.entry, gpu.ImageBarrier{Image: v.Image(), Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutUndefined,
			New:     gpu.ImageLayoutGeneral,
			Barrier: gpu.WaitForNone(gpu.ScopeRayTracingWrite),
		}})
		r.exit = append(r.exit, gpu.ImageBarrier{Image: v.Image(), Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutGeneral,
			New:     gpu.ImageLayoutPresentSrc,
			Barrier: gpu.BlockNone(gpu.ScopeRayTracingWrite),
		}})
	}
}

func (r *Renderer) buildBundle(s *scene.Scene) (*stage.Bundle, error) {
	if _, ok := s.RayTracing(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRayTracing, s.Name())
	}
	b := stage.NewBundle(r.Device(), r.Shaders())

	defines := stage.SceneDefines(s)
	defines["LIGHT_COUNT"] = uint32(len(light.Enabled(s.Lights())))
	if r.mode == ModeProbe {
		defines["PROBE"] = nil
	}

	spec := shader.Specialization{"TRACE_X": r.tile.Size[0], "TRACE_Y": r.tile.Size[1]}
	rg, err := b.Module(gpu.ShaderStageRayGen, stage.PathTracingShader, defines, spec)
	if err != nil {
		return b, err
	}
	b.Add(pipeline.NewPipeline("PathTracing "+r.mode.String(), pipeline.PipelineTypeRayTracing, pipeline.WithRayGenShader(rg)))
	return b, b.Create("PathTracing", r.ImageCount())
}

func (r *Renderer) pushData(b *stage.Bundle) error {
	s := r.Scene()
	provider := b.Provider

	if r.mode == ModeProbe {
		r.cameras.Push(provider, stage.CameraBinding)
	} else {
		if r.accumulation == nil {
			return errNoAccumulation
		}
		stage.PushFrameData(provider, s)
		provider.PushGlobalData(AccumulationBinding, r.accumulation)
	}
	for _, v := range r.Views() {
		provider.PushSliceData(stage.OutputBinding, v)
	}
	stage.PushMaterialData(provider, s)
	stage.PushEnvironmentData(provider, s)
	return nil
}

// ReloadShaders rebuilds the pipeline and restarts accumulation.
func (r *Renderer) ReloadShaders() {
	r.Base.ReloadShaders()
	r.Reset()
}

// Resize recreates the accumulation buffer when the extent changed and restarts accumulation.
func (r *Renderer) Resize(views []gpu.ImageView) error {
	if extent := stage.ExtentOf(views); extent != r.Extent() || r.accumulation == nil {
		r.releaseAccumulation()
		if err := r.createAccumulation(extent); err != nil {
			return err
		}
	}
	if err := r.ResizeData(views); err != nil {
		return err
	}
	r.updateBarriers()
	r.Reset()
	return nil
}

// Execute traces one frame into the swapchain image and advances the accumulation index.
func (r *Renderer) Execute(cmd gpu.CommandBuffer, imageIndex uint32) {
	if r.mode == ModeProbe || !r.Ready() || r.accumulation == nil {
		return
	}
	i := imageIndex
	cmd.PipelineBarrier(r.entry[i].Transition.Barrier, r.entry[i:i+1]...)
	r.trace(cmd, imageIndex, r.accumulationIndex)
	cmd.PipelineBarrier(r.exit[i].Transition.Barrier, r.exit[i:i+1]...)
	r.accumulationIndex++
}

// trace records one full-extent trace with the descriptor slice of index.
func (r *Renderer) trace(cmd gpu.CommandBuffer, index, accumulationIndex uint32) {
	p := r.Bundle().Pipelines()[0]
	extent := r.Extent()

	p.Bind(cmd, r.Bundle().Provider.GetDescriptorSlice(index))
	r.push = common.AppendUint32(r.push[:0], accumulationIndex, r.sampleCount, r.maxBounces, r.seed)
	cmd.PushConstants(p.Handle(), gpu.ShaderStageRayGen, 0, r.push)
	cmd.TraceRays(p.Handle(), extent.Width, extent.Height, 1)
}

func (r *Renderer) Release() {
	r.RemoveScene()
	r.releaseAccumulation()
}

// String describes the renderer for logs.
func (r *Renderer) String() string {
	return fmt.Sprintf("pathtracing %s %s samples %d bounces %d accumulated %d",
		r.mode, r.Extent(), r.sampleCount, r.maxBounces, r.accumulationIndex)
}
