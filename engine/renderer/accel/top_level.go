package accel

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// GPUAccelSource is the WGSL traversal of an encoded top-level structure. It declares the
// AccelerationStructure alias and expects the including shader to bind a global named tlas.
//
//go:embed assets/accel.wgsl
var GPUAccelSource string

// HeaderVec4s and InstanceVec4s are the encoded sizes of the header and of one instance record.
const (
	HeaderVec4s   = 1
	InstanceVec4s = 9
)

// Instance places bottom-level hierarchy Bottom in the world.
type Instance struct {
	Transform   mgl32.Mat4
	Bottom      int
	CustomIndex uint32
	Mask        uint8
}

// TopLevel is the layout of one encoded top-level structure: a header, MaxInstances instance
// records, then the nodes and triangles of every bottom-level hierarchy it may reference. The
// bottom-level region is written once; instance records are rewritten on every build.
type TopLevel struct {
	MaxInstances uint32
	Bottoms      []*BVH

	// nodeOffsets is the vec4 index of node 0 of each bottom.
	nodeOffsets  []uint32
	triangleBase uint32
	static       []byte
}

// NewTopLevel lays out a top-level structure.
//
// Parameters:
//   - maxInstances: the capacity of the instance table, at least 1
//   - bottoms: the hierarchies instances may reference
//
// Returns:
//   - *TopLevel: the layout with its bottom-level region encoded
func NewTopLevel(maxInstances uint32, bottoms []*BVH) *TopLevel {
	t := &TopLevel{MaxInstances: max(maxInstances, 1), Bottoms: bottoms, nodeOffsets: make([]uint32, len(bottoms))}

	next := uint32(HeaderVec4s + InstanceVec4s*t.MaxInstances)
	var triangles uint32
	for i, b := range bottoms {
		t.nodeOffsets[i] = next
		next += uint32(len(b.Nodes) * NodeVec4s)
		triangles += uint32(len(b.Triangles))
	}
	t.triangleBase = next

	t.static = make([]byte, 0, (int(next-t.staticStart())+int(triangles)*TriangleVec4s)*16)
	var triangleIndex uint32
	for _, b := range bottoms {
		t.static = b.EncodeNodes(t.static, triangleIndex)
		triangleIndex += uint32(len(b.Triangles))
	}
	for _, b := range bottoms {
		t.static = b.EncodeTriangles(t.static)
	}
	return t
}

func (t *TopLevel) staticStart() uint32 {
	return HeaderVec4s + InstanceVec4s*t.MaxInstances
}

// StaticOffset returns the byte offset of the bottom-level region.
func (t *TopLevel) StaticOffset() uint64 {
	return uint64(t.staticStart()) * 16
}

// StaticData returns the encoded bottom-level region.
func (t *TopLevel) StaticData() []byte {
	return t.static
}

// Size returns the byte size of the whole encoded structure.
func (t *TopLevel) Size() uint64 {
	return t.StaticOffset() + uint64(len(t.static))
}

// EncodeInstances encodes the header and instance records, to be written at offset 0.
//
// Parameters:
//   - instances: at most MaxInstances instances
//
// Returns:
//   - []byte: (HeaderVec4s + len(instances)*InstanceVec4s) * 16 bytes
//   - error: an error if the table overflows or an instance references an unknown bottom
func (t *TopLevel) EncodeInstances(instances []Instance) ([]byte, error) {
	if uint32(len(instances)) > t.MaxInstances {
		return nil, fmt.Errorf("accel: %d instances exceed capacity %d", len(instances), t.MaxInstances)
	}
	buf := make([]byte, 0, (HeaderVec4s+len(instances)*InstanceVec4s)*16)
	buf = common.AppendUint32(buf, uint32(len(instances)), t.MaxInstances, t.triangleBase, 0)
	for i, inst := range instances {
		if inst.Bottom < 0 || inst.Bottom >= len(t.Bottoms) {
			return nil, fmt.Errorf("accel: instance %d references bottom %d of %d", i, inst.Bottom, len(t.Bottoms))
		}
		inverse := inst.Transform.Inv()
		for _, row := range common.AffineRows(inverse) {
			buf = common.AppendVec4(buf, row)
		}
		for _, row := range common.AffineRows(inst.Transform) {
			buf = common.AppendVec4(buf, row)
		}
		buf = common.AppendUint32(buf, t.nodeOffsets[inst.Bottom], inst.CustomIndex, uint32(inst.Mask), 0)
		bounds := t.Bottoms[inst.Bottom].Bounds().Transform(inst.Transform)
		buf = common.AppendVec4(buf, bounds.Min.Vec4(0))
		buf = common.AppendVec4(buf, bounds.Max.Vec4(0))
	}
	return buf, nil
}

// InstanceHit is the closest intersection of a ray with a set of instances.
type InstanceHit struct {
	Hit
	Instance int
	// Normal is the interpolated world-space shading normal.
	Normal mgl32.Vec3
}

// Intersect traces a world-space ray against instances the way the WGSL traversal does.
//
// Parameters:
//   - instances: the instances of the structure
//   - ray: the world-space ray
//   - tMin, tMax: the valid distance interval
//
// Returns:
//   - InstanceHit: the closest hit
//   - bool: whether anything was hit
func (t *TopLevel) Intersect(instances []Instance, ray Ray, tMin, tMax float32) (InstanceHit, bool) {
	best := InstanceHit{Hit: Hit{T: tMax}}
	found := false
	for i, inst := range instances {
		bottom := t.Bottoms[inst.Bottom]
		if !bottom.Bounds().Transform(inst.Transform).Hit(ray, tMin, best.T) {
			continue
		}
		inverse := inst.Transform.Inv()
		local := Ray{
			Origin:    mgl32.TransformCoordinate(ray.Origin, inverse),
			Direction: mgl32.TransformNormal(ray.Direction, inverse),
		}
		// The direction is left unnormalized so hit distances stay in world units.
		hit, ok := bottom.Intersect(local, tMin, best.T)
		if !ok {
			continue
		}
		tri := bottom.Triangles[hit.Triangle]
		w := hit.Barycentrics
		n := tri.Normals[0].Mul(1 - w[0] - w[1]).Add(tri.Normals[1].Mul(w[0])).Add(tri.Normals[2].Mul(w[1]))
		world := inverse.Transpose().Mul4x1(n.Vec4(0)).Vec3()
		if world.Len() > 0 {
			world = world.Normalize()
		}
		best = InstanceHit{Hit: hit, Instance: i, Normal: world}
		found = true
	}
	return best, found
}
