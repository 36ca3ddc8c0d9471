// Package accel builds software ray tracing acceleration structures: a bounding volume
// hierarchy per mesh (bottom level) and a flat instance table referencing them (top level),
// both encoded as vec4 arrays that the WGSL traversal in GPUAccelSource walks.
package accel

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyAABB returns a box that any Extend replaces.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{Min: mgl32.Vec3{inf, inf, inf}, Max: mgl32.Vec3{-inf, -inf, -inf}}
}

// Extend grows the box to contain p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	for a := range 3 {
		b.Min[a] = math32.Min(b.Min[a], p[a])
		b.Max[a] = math32.Max(b.Max[a], p[a])
	}
	return b
}

// Union returns a box bounding both boxes.
func (b AABB) Union(other AABB) AABB {
	return b.Extend(other.Min).Extend(other.Max)
}

// Center returns the center point of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// LongestAxis returns the axis (0=X, 1=Y, 2=Z) with the longest extent.
func (b AABB) LongestAxis() int {
	size := b.Max.Sub(b.Min)
	if size[0] > size[1] && size[0] > size[2] {
		return 0
	}
	if size[1] > size[2] {
		return 1
	}
	return 2
}

// Transform returns the world-space bounds of the box moved by m.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	out := EmptyAABB()
	for i := range 8 {
		corner := mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.Extend(mgl32.TransformCoordinate(corner, m))
	}
	return out
}

// Ray is a half line starting at Origin.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// Hit tests the ray against the box with the slab method within [tMin, tMax].
func (b AABB) Hit(ray Ray, tMin, tMax float32) bool {
	for a := range 3 {
		inv := 1 / ray.Direction[a]
		t1 := (b.Min[a] - ray.Origin[a]) * inv
		t2 := (b.Max[a] - ray.Origin[a]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math32.Max(tMin, t1)
		tMax = math32.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}
	return true
}
