package pathtracing

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/stage"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// ProbeFormat is the format of captured probe faces.
const ProbeFormat = gpu.FormatRGBA16Float

// cubeFaces is the number of faces of a probe.
const cubeFaces = 6

// ErrNoScene is returned by Capture before a scene is registered.
var ErrNoScene = errors.New("pathtracing: probe has no scene")

// ProbeCapture renders the radiance seen from a point into the six faces of a cube image. It
// pairs the capture position with a probe mode Renderer that owns no swapchain.
type ProbeCapture struct {
	dev  gpu.Device
	size uint32

	state    camera.State
	renderer *Renderer

	image   gpu.Image
	cube    gpu.ImageView
	faces   []gpu.ImageView
	cameras *stage.CameraData

	captures int
}

var _ scene.RadianceSource = &ProbeCapture{}

// NewProbeCapture creates the cube image, the per-face camera buffers and the renderer.
//
// Parameters:
//   - dev: the device, which must support ray tracing
//   - shaders: the shader manager
//   - size: the width and height of each face
//   - options: renderer options, WithSampleCount sets the paths per texel
//
// Returns:
//   - *ProbeCapture: the capture, without a scene
//   - error: an error if a resource could not be created; nothing is left allocated
func NewProbeCapture(dev gpu.Device, shaders *shader.Manager, size uint32, options ...RendererOption) (*ProbeCapture, error) {
	p := &ProbeCapture{dev: dev, size: size}
	if err := p.create(shaders, options); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *ProbeCapture) create(shaders *shader.Manager, options []RendererOption) error {
	img, err := p.dev.CreateImage(gpu.ImageDesc{
		Label:  "Probe",
		Extent: gpu.Extent2D{Width: p.size, Height: p.size},
		Layers: cubeFaces,
		Format: ProbeFormat,
		Usage:  gpu.ImageUsageStorage | gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc,
	})
	if err != nil {
		return fmt.Errorf("pathtracing: probe image: %w", err)
	}
	p.image = img

	if p.cube, err = p.dev.CreateImageView(img, gpu.ViewDesc{Label: "Probe Cube", Dimension: gpu.ViewDimensionCube}); err != nil {
		return fmt.Errorf("pathtracing: probe cube view: %w", err)
	}
	for face := range uint32(cubeFaces) {
		view, err := p.dev.CreateImageView(img, gpu.ViewDesc{
			Label:     fmt.Sprintf("Probe Face %d", face),
			Dimension: gpu.ViewDimension2D,
			BaseLayer: face,
		})
		if err != nil {
			return fmt.Errorf("pathtracing: probe face %d: %w", face, err)
		}
		p.faces = append(p.faces, view)
	}

	if p.cameras, err = stage.NewCameraData(p.dev, "Probe", cubeFaces); err != nil {
		return err
	}
	p.renderer, err = newProbeRenderer(p.dev, shaders, p.faces, p.cameras, options)
	return err
}

// Size returns the face extent in pixels.
func (p *ProbeCapture) Size() uint32 {
	return p.size
}

// State returns the camera state of the last capture.
func (p *ProbeCapture) State() camera.State {
	return p.state
}

// Image returns the cube image, in gpu.ImageLayoutShaderReadOnly after a capture.
func (p *ProbeCapture) Image() gpu.Image {
	return p.image
}

// View returns the cube view of the image.
func (p *ProbeCapture) View() gpu.ImageView {
	return p.cube
}

// Faces returns the per-face views in +X, -X, +Y, -Y, +Z, -Z order.
func (p *ProbeCapture) Faces() []gpu.ImageView {
	return p.faces
}

// Renderer returns the probe mode renderer.
func (p *ProbeCapture) Renderer() *Renderer {
	return p.renderer
}

// Captures returns the number of completed captures.
func (p *ProbeCapture) Captures() int {
	return p.captures
}

// RegisterScene builds the probe pipeline for s.
func (p *ProbeCapture) RegisterScene(s *scene.Scene) error {
	return p.renderer.RegisterScene(s)
}

// RemoveScene destroys the probe pipeline.
func (p *ProbeCapture) RemoveScene() {
	p.renderer.RemoveScene()
}

// ReloadShaders rebuilds the probe pipeline, keeping the previous one on failure.
func (p *ProbeCapture) ReloadShaders() {
	p.renderer.ReloadShaders()
}

// Capture traces every face from state and waits for the result.
//
// Parameters:
//   - state: the capture position and clip planes
//
// Returns:
//   - error: ErrNoScene without a registered scene, or the submission error
func (p *ProbeCapture) Capture(state camera.State) error {
	if !p.renderer.Ready() {
		return ErrNoScene
	}
	for face := range uint32(cubeFaces) {
		p.cameras.Write(p.dev, face, camera.CubeFaceUniform(state, int(face), p.size))
	}

	err := p.dev.ExecuteImmediate(func(cmd gpu.CommandBuffer) {
		cmd.PipelineBarrier(gpu.WaitForNone(gpu.ScopeRayTracingWrite), gpu.ImageBarrier{Image: p.image, Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutUndefined,
			New:     gpu.ImageLayoutGeneral,
			Barrier: gpu.WaitForNone(gpu.ScopeRayTracingWrite),
		}})
		for face := range uint32(cubeFaces) {
			p.renderer.trace(cmd, face, 0)
		}
		done := gpu.PipelineBarrier{Src: gpu.ScopeRayTracingWrite, Dst: gpu.ScopeFragmentRead}
		cmd.PipelineBarrier(done, gpu.ImageBarrier{Image: p.image, Transition: gpu.LayoutTransition{
			Old:     gpu.ImageLayoutGeneral,
			New:     gpu.ImageLayoutShaderReadOnly,
			Barrier: done,
		}})
	})
	if err != nil {
		return fmt.Errorf("pathtracing: probe capture: %w", err)
	}

	p.state = state
	p.captures++
	common.Logger().Debug("probe captured", "position", state.Position, "size", p.size, "samples", p.renderer.sampleCount)
	return nil
}

// CaptureRadiance captures from state and reads the faces back as linear radiance.
//
// Parameters:
//   - state: the capture position and clip planes
//
// Returns:
//   - light.RadianceCube: the six faces in +X, -X, +Y, -Y, +Z, -Z order
//   - error: the capture, readback or decode error
func (p *ProbeCapture) CaptureRadiance(state camera.State) (light.RadianceCube, error) {
	if err := p.Capture(state); err != nil {
		return light.RadianceCube{}, err
	}
	data, err := p.dev.ReadImage(p.image)
	if err != nil {
		return light.RadianceCube{}, fmt.Errorf("pathtracing: probe readback: %w", err)
	}
	return light.DecodeRadianceRGBA16F(p.size, data)
}

// Release destroys the renderer, the camera buffers and the cube image.
func (p *ProbeCapture) Release() {
	if p.renderer != nil {
		p.renderer.Release()
		p.renderer = nil
	}
	if p.cameras != nil {
		p.cameras.Release()
		p.cameras = nil
	}
	for _, v := range p.faces {
		v.Release()
	}
	p.faces = nil
	if p.cube != nil {
		p.cube.Release()
		p.cube = nil
	}
	if p.image != nil {
		p.image.Release()
		p.image = nil
	}
}
