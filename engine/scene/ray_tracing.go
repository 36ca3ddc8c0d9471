package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// RayTracingComponent owns the acceleration structures of a registered scene: one bottom-level
// structure per primitive and a top-level structure rebuilt every frame from the render
// object transforms.
type RayTracingComponent struct {
	TLAS    gpu.AccelerationStructure
	Bottoms []gpu.AccelerationStructure

	instances []gpu.Instance
}

// Instances returns the instance records for the current render object transforms. The
// custom index of each instance is its material index.
//
// Parameters:
//   - objects: the scene render objects
//
// Returns:
//   - []gpu.Instance: one instance per object, reusing an internal slice
func (c *RayTracingComponent) Instances(objects []RenderObject) []gpu.Instance {
	c.instances = c.instances[:0]
	for _, obj := range objects {
		c.instances = append(c.instances, gpu.Instance{
			Transform:   obj.Transform,
			Bottom:      c.Bottoms[obj.PrimitiveIndex],
			CustomIndex: obj.MaterialIndex,
			Mask:        0xff,
		})
	}
	return c.instances
}

// Release destroys the top-level and every bottom-level structure.
func (c *RayTracingComponent) Release() {
	if c.TLAS != nil {
		c.TLAS.Release()
		c.TLAS = nil
	}
	for _, b := range c.Bottoms {
		if b != nil {
			b.Release()
		}
	}
	c.Bottoms = nil
}

// GenerateTLAS builds one bottom-level structure per primitive on the scene's worker pool and
// creates the top-level structure sized for every render object.
//
// Parameters:
//   - dev: the device that owns the structures, with ray tracing support
//
// Returns:
//   - *RayTracingComponent: the structures, not yet attached to the scene
//   - error: gpu.ErrUnsupported without ray tracing, or the first build error; nothing is
//     left allocated on error
func (s *Scene) GenerateTLAS(dev gpu.Device) (*RayTracingComponent, error) {
	if !dev.Capabilities().RayTracing {
		return nil, gpu.ErrUnsupported
	}

	c := &RayTracingComponent{Bottoms: make([]gpu.AccelerationStructure, len(s.primitives))}
	errs := make([]error, len(s.primitives))

	var wg sync.WaitGroup
	wg.Add(len(s.primitives))
	for i, prim := range s.primitives {
		s.computePool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				blas, err := dev.CreateAccelerationStructure(gpu.AccelerationStructureDesc{
					Label:    prim.Mesh.Name + " BLAS",
					Level:    gpu.AccelerationBottomLevel,
					Geometry: prim.Mesh.Geometry(),
				})
				c.Bottoms[i], errs[i] = blas, err
				return blas, err
			},
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		c.Release()
		return nil, fmt.Errorf("scene: bottom level build: %w", err)
	}

	tlas, err := dev.CreateAccelerationStructure(gpu.AccelerationStructureDesc{
		Label:        s.name + " TLAS",
		Level:        gpu.AccelerationTopLevel,
		MaxInstances: uint32(max(len(s.objects), 1)),
		Bottoms:      c.Bottoms,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("scene: top level: %w", err)
	}
	c.TLAS = tlas

	common.Logger().Debug("acceleration structures generated", "scene", s.name, "bottoms", len(c.Bottoms), "instances", len(s.objects))
	return c, nil
}
