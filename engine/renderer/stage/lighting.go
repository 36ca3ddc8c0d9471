package stage

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// DefaultLightingTile is the workgroup size the lighting pass requests before it is fitted to
// the device limits.
var DefaultLightingTile = [2]uint32{8, 8}

// errNoTargets is returned when the lighting pass is filled before the G-buffer has targets.
var errNoTargets = errors.New("stage lighting: G-buffer has no targets")

// LightingStage shades the G-buffer in a compute pass and writes the lit image straight into
// the swapchain image.
type LightingStage struct {
	Base

	gbuffer *GBufferStage

	requested [2]uint32
	tile      gpu.WorkgroupTile
	groups    [3]uint32

	// entry and exit hold one swapchain image transition per image index.
	entry []gpu.ImageBarrier
	exit  []gpu.ImageBarrier
}

// Compile-time check that LightingStage implements Stage
var _ Stage = &LightingStage{}

// NewLightingStage creates the deferred lighting stage.
//
// Parameters:
//   - dev: the device
//   - shaders: the shader manager
//   - views: the swapchain views
//   - gbuffer: the stage whose targets are shaded
//   - options: functional options
//
// Returns:
//   - *LightingStage: the stage, without a scene
func NewLightingStage(dev gpu.Device, shaders *shader.Manager, views []gpu.ImageView, gbuffer *GBufferStage, options ...LightingOption) *LightingStage {
	l := &LightingStage{
		Base:      NewBase("lighting", dev, shaders, views),
		gbuffer:   gbuffer,
		requested: DefaultLightingTile,
	}
	for _, opt := range options {
		opt(l)
	}
	l.Build = l.buildBundle
	l.Push = l.pushData

	l.tile = gpu.FitWorkgroupTile(l.requested, dev.Capabilities())
	l.updateExtent()
	return l
}

func (l *LightingStage) Contract() ImageContract {
	return ImageContract{Entry: gpu.ImageLayoutPresentSrc, Exit: gpu.ImageLayoutColorAttachment}
}

// Tile returns the fitted workgroup tile.
func (l *LightingStage) Tile() gpu.WorkgroupTile {
	return l.tile
}

// Groups returns the dispatch size for the current extent.
func (l *LightingStage) Groups() [3]uint32 {
	return l.groups
}

// updateExtent recomputes the dispatch size and the swapchain barriers.
func (l *LightingStage) updateExtent() {
	l.groups = gpu.WorkgroupCount(l.extent, l.tile.Area())

	l.entry = l.entry[:0]
	l.exit = l.exit[:0]
	for _, v := range l.views {
		l.entry = append(l.entry, gpu.ImageBarrier{Image: v.Image(), Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutPresentSrc,
			New:     gpu.ImageLayoutGeneral,
			Barrier: gpu.WaitForNone(gpu.ScopeComputeWrite),
		}})
		l.exit = append(l.exit, gpu.ImageBarrier{Image: v.Image(), Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutGeneral,
			New:     gpu.ImageLayoutColorAttachment,
			Barrier: gpu.PipelineBarrier{Src: gpu.ScopeComputeWrite, Dst: gpu.ScopeColorAttachmentWrite},
		}})
	}
}

func (l *LightingStage) buildBundle(s *scene.Scene) (*Bundle, error) {
	b := NewBundle(l.dev, l.shaders)

	defines := SceneDefines(s)
	defines["POINT_LIGHT_COUNT"] = uint32(len(light.Enabled(s.Lights())))
	spec := shader.Specialization{
		"TILE_X": l.tile.Size[0],
		"TILE_Y": l.tile.Size[1],
		"LOAD_X": l.tile.LoadCount[0],
		"LOAD_Y": l.tile.LoadCount[1],
	}

	cs, err := b.Module(gpu.ShaderStageCompute, LightingShader, defines, spec)
	if err != nil {
		return b, err
	}
	b.Add(pipeline.NewPipeline("Lighting", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs)))
	return b, b.Create("Lighting", l.ImageCount())
}

func (l *LightingStage) pushData(b *Bundle) error {
	if len(l.gbuffer.targets) == 0 {
		return errNoTargets
	}
	PushFrameData(b.Provider, l.scene)
	for _, v := range l.views {
		b.Provider.PushSliceData(OutputBinding, v)
	}
	l.gbuffer.PushTargets(func(name string, view gpu.ImageView) {
		b.Provider.PushGlobalData(name, view)
	})
	PushEnvironmentData(b.Provider, l.scene)
	return nil
}

// Resize follows the swapchain and the G-buffer, which must be resized first.
func (l *LightingStage) Resize(views []gpu.ImageView) error {
	if err := l.ResizeData(views); err != nil {
		return err
	}
	l.updateExtent()
	return nil
}

func (l *LightingStage) Execute(cmd gpu.CommandBuffer, imageIndex uint32) {
	if !l.Ready() {
		return
	}
	i := imageIndex
	p := l.bundle.Pipelines()[0]

	cmd.PipelineBarrier(l.entry[i].Transition.Barrier, l.entry[i:i+1]...)
	p.Bind(cmd, l.bundle.Provider.GetDescriptorSlice(imageIndex))
	cmd.Dispatch(l.groups[0], l.groups[1], l.groups[2])
	cmd.PipelineBarrier(l.exit[i].Transition.Barrier, l.exit[i:i+1]...)
}

func (l *LightingStage) Release() {
	l.RemoveScene()
}

// String describes the dispatch for logs.
func (l *LightingStage) String() string {
	return fmt.Sprintf("lighting %s tile %v x%v groups %v", l.extent, l.tile.Size, l.tile.LoadCount, l.groups)
}
