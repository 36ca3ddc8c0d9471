package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/stage"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// RenderSceneComponent holds the per-scene buffers a SceneRenderer owns: the light uniform
// buffer, the material storage buffer and one camera uniform buffer per swapchain image.
// It is created once per renderer and bound into whichever scene is registered.
type RenderSceneComponent struct {
	dev gpu.Device

	lights           gpu.Buffer
	materials        gpu.Buffer
	materialCapacity int
	frames           *stage.CameraData

	// UpdateLightBuffer requests a light upload on the next frame.
	UpdateLightBuffer bool
	// UpdateMaterialBuffer requests a material upload on the next frame.
	UpdateMaterialBuffer bool
}

// Compile-time check that RenderSceneComponent implements scene.RenderComponent
var _ scene.RenderComponent = &RenderSceneComponent{}

// newRenderSceneComponent creates the light buffer, a single-record material buffer and
// imageCount camera buffers.
func newRenderSceneComponent(dev gpu.Device, imageCount uint32) (*RenderSceneComponent, error) {
	c := &RenderSceneComponent{dev: dev}

	lights, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: "Scene Lights",
		Size:  light.LightBufferSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: light buffer: %w", err)
	}
	c.lights = lights

	if err := c.reserveMaterials(1); err != nil {
		c.Release()
		return nil, err
	}
	if err := c.resizeFrames(imageCount); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

// reserveMaterials grows the material buffer to hold count records. A buffer that is large
// enough is kept.
func (c *RenderSceneComponent) reserveMaterials(count int) error {
	count = max(count, 1)
	if c.materials != nil && count <= c.materialCapacity {
		return nil
	}
	buf, err := c.dev.CreateBuffer(gpu.BufferDesc{
		Label: "Scene Materials",
		Size:  uint64(count * scene.GPUMaterialSize),
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("renderer: material buffer for %d materials: %w", count, err)
	}
	if c.materials != nil {
		c.materials.Release()
	}
	c.materials = buf
	c.materialCapacity = count
	return nil
}

// resizeFrames recreates the camera buffers when the image count changed.
func (c *RenderSceneComponent) resizeFrames(imageCount uint32) error {
	if c.frames != nil && len(c.frames.Buffers) == int(imageCount) {
		return nil
	}
	frames, err := stage.NewCameraData(c.dev, "Scene", imageCount)
	if err != nil {
		return err
	}
	if c.frames != nil {
		c.frames.Release()
	}
	c.frames = frames
	return nil
}

// upload writes the camera uniform of imageIndex and, when flagged, the lights and materials
// of s, clearing the flags.
func (c *RenderSceneComponent) upload(s *scene.Scene, imageIndex uint32, extent gpu.Extent2D) {
	if cam := s.Camera(); cam != nil && int(imageIndex) < len(c.frames.Buffers) {
		c.frames.Write(c.dev, imageIndex, cam.Uniform(extent.Width, extent.Height))
	}
	if c.UpdateLightBuffer {
		if data := light.MarshalLightBuffer(s.Lights()); len(data) > 0 {
			c.dev.WriteBuffer(c.lights, 0, data)
		}
		c.UpdateLightBuffer = false
		common.Logger().Debug("light buffer uploaded", "scene", s.Name(), "lights", len(light.Enabled(s.Lights())))
	}
	if c.UpdateMaterialBuffer {
		c.dev.WriteBuffer(c.materials, 0, scene.MarshalMaterialBuffer(s.Materials()))
		c.UpdateMaterialBuffer = false
		common.Logger().Debug("material buffer uploaded", "scene", s.Name(), "materials", len(s.Materials()))
	}
}

func (c *RenderSceneComponent) LightBuffer() gpu.Buffer {
	return c.lights
}

func (c *RenderSceneComponent) MaterialBuffer() gpu.Buffer {
	return c.materials
}

func (c *RenderSceneComponent) FrameBuffers() []gpu.Buffer {
	if c.frames == nil {
		return nil
	}
	return c.frames.Buffers
}

// Release destroys every buffer of the component.
func (c *RenderSceneComponent) Release() {
	if c.lights != nil {
		c.lights.Release()
		c.lights = nil
	}
	if c.materials != nil {
		c.materials.Release()
		c.materials = nil
		c.materialCapacity = 0
	}
	if c.frames != nil {
		c.frames.Release()
		c.frames = nil
	}
}
