package scene

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// ErrNoLightVolume is returned when baking a scene that has no uploaded light volume.
var ErrNoLightVolume = errors.New("scene: no uploaded light volume")

// LightVolumeComponent holds the GPU buffers of a tetrahedral light volume: probe positions,
// tetrahedra with neighbor links, and nine SH coefficients per probe.
type LightVolumeComponent struct {
	Volume *light.Volume

	Positions    gpu.Buffer
	Tetrahedral  gpu.Buffer
	Coefficients gpu.Buffer
}

// NewLightVolumeComponent uploads a light volume.
//
// Parameters:
//   - dev: the device that owns the buffers
//   - vol: the volume, with coefficients for every probe
//
// Returns:
//   - *LightVolumeComponent: the uploaded volume
//   - error: an error if the volume is empty or allocation failed
func NewLightVolumeComponent(dev gpu.Device, vol *light.Volume) (*LightVolumeComponent, error) {
	if len(vol.Positions) == 0 || len(vol.Tetrahedra) == 0 || len(vol.Coefficients) != len(vol.Positions) {
		return nil, fmt.Errorf("%w: %d probes, %d tetrahedra, %d coefficient sets",
			light.ErrInvalidVolume, len(vol.Positions), len(vol.Tetrahedra), len(vol.Coefficients))
	}

	c := &LightVolumeComponent{Volume: vol}
	uploads := []struct {
		dst   *gpu.Buffer
		label string
		data  []byte
	}{
		{&c.Positions, "Light Volume Positions", vol.MarshalPositions()},
		{&c.Tetrahedral, "Light Volume Tetrahedra", vol.MarshalTetrahedra()},
		{&c.Coefficients, "Light Volume Coefficients", vol.MarshalCoefficients()},
	}
	for _, u := range uploads {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{
			Label: u.label,
			Size:  uint64(len(u.data)),
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			c.Release()
			return nil, fmt.Errorf("scene: %s: %w", u.label, err)
		}
		dev.WriteBuffer(buf, 0, u.data)
		*u.dst = buf
	}
	return c, nil
}

// RadianceSource renders the radiance arriving at a point into six cube faces.
type RadianceSource interface {
	CaptureRadiance(state camera.State) (light.RadianceCube, error)
}

// Bake captures the radiance at every probe position, projects it onto spherical harmonics
// and uploads the new coefficients. The volume keeps its previous coefficients when any
// capture fails.
//
// Parameters:
//   - dev: the device owning the coefficients buffer
//   - src: renders the radiance seen from each probe
//   - clip: the near and far planes used for every capture; the position is replaced
//
// Returns:
//   - error: the first capture or projection error
func (c *LightVolumeComponent) Bake(dev gpu.Device, src RadianceSource, clip camera.State) error {
	baked := make([]light.SH9, len(c.Volume.Positions))
	for i, p := range c.Volume.Positions {
		clip.Position = p
		cube, err := src.CaptureRadiance(clip)
		if err != nil {
			return fmt.Errorf("scene: bake light volume probe %d: %w", i, err)
		}
		if baked[i], err = light.ProjectRadiance(cube); err != nil {
			return fmt.Errorf("scene: bake light volume probe %d: %w", i, err)
		}
	}

	copy(c.Volume.Coefficients, baked)
	dev.WriteBuffer(c.Coefficients, 0, c.Volume.MarshalCoefficients())
	common.Logger().Debug("light volume baked", "probes", len(baked))
	return nil
}

// Release destroys the volume buffers.
func (c *LightVolumeComponent) Release() {
	for _, b := range []*gpu.Buffer{&c.Positions, &c.Tetrahedral, &c.Coefficients} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}
