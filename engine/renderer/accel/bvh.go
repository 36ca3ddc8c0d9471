package accel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// leafThreshold is the largest triangle count stored in a single leaf.
const leafThreshold = 4

// ErrEmptyGeometry is returned when a bottom-level build has no triangles.
var ErrEmptyGeometry = errors.New("accel: geometry has no triangles")

// Triangle is one triangle with its shading attributes.
type Triangle struct {
	Positions [3]mgl32.Vec3
	Normals   [3]mgl32.Vec3
	UVs       [3]mgl32.Vec2
}

func (t *Triangle) bounds() AABB {
	return EmptyAABB().Extend(t.Positions[0]).Extend(t.Positions[1]).Extend(t.Positions[2])
}

// Node is one node of a flattened hierarchy. An inner node's left child directly follows it
// and Right holds the right child; a leaf covers Count triangles starting at First.
type Node struct {
	Bounds AABB
	// Right is the index of the right child of an inner node.
	Right uint32
	// First is the index of the first triangle of a leaf.
	First uint32
	// Count is the number of triangles of a leaf, 0 for inner nodes.
	Count uint32
}

// Leaf reports whether the node stores triangles.
func (n Node) Leaf() bool {
	return n.Count > 0
}

// BVH is a bounding volume hierarchy over the triangles of one mesh, flattened depth first.
type BVH struct {
	Nodes     []Node
	Triangles []Triangle
}

// Bounds returns the bounds of the whole mesh.
func (b *BVH) Bounds() AABB {
	return b.Nodes[0].Bounds
}

// Build constructs a hierarchy with median splits along the longest centroid axis.
//
// Parameters:
//   - g: indexed triangle geometry; normals and texture coordinates are optional
//
// Returns:
//   - *BVH: the flattened hierarchy
//   - error: ErrEmptyGeometry, or an error for out of range indices
func Build(g *gpu.Geometry) (*BVH, error) {
	if g == nil || len(g.Indices) < 3 {
		return nil, ErrEmptyGeometry
	}
	tris := make([]Triangle, 0, len(g.Indices)/3)
	for i := 0; i+2 < len(g.Indices); i += 3 {
		var t Triangle
		for k := range 3 {
			idx := g.Indices[i+k]
			if int(idx) >= len(g.Positions) {
				return nil, fmt.Errorf("accel: index %d out of range of %d positions", idx, len(g.Positions))
			}
			t.Positions[k] = g.Positions[idx]
			if int(idx) < len(g.Normals) {
				t.Normals[k] = g.Normals[idx]
			}
			if int(idx) < len(g.TexCoords) {
				t.UVs[k] = g.TexCoords[idx]
			}
		}
		tris = append(tris, t)
	}

	b := &BVH{Triangles: tris, Nodes: make([]Node, 0, 2*len(tris)/leafThreshold+1)}
	b.build(0, uint32(len(tris)))
	return b, nil
}

func (b *BVH) build(first, count uint32) uint32 {
	bounds := EmptyAABB()
	centroids := EmptyAABB()
	for i := first; i < first+count; i++ {
		tb := b.Triangles[i].bounds()
		bounds = bounds.Union(tb)
		centroids = centroids.Extend(tb.Center())
	}

	index := uint32(len(b.Nodes))
	b.Nodes = append(b.Nodes, Node{Bounds: bounds})
	if count <= leafThreshold {
		b.Nodes[index].First = first
		b.Nodes[index].Count = count
		return index
	}

	axis := centroids.LongestAxis()
	span := b.Triangles[first : first+count]
	slices.SortFunc(span, func(x, y Triangle) int {
		cx, cy := x.bounds().Center()[axis], y.bounds().Center()[axis]
		switch {
		case cx < cy:
			return -1
		case cx > cy:
			return 1
		default:
			return 0
		}
	})

	mid := count / 2
	b.build(first, mid)
	right := b.build(first+mid, count-mid)
	b.Nodes[index].Right = right
	return index
}

// Hit is the closest intersection of a ray.
type Hit struct {
	T        float32
	Triangle uint32
	// Barycentrics are the weights of the second and third vertex.
	Barycentrics mgl32.Vec2
}

// Intersect finds the closest triangle hit within (tMin, tMax).
//
// Parameters:
//   - ray: the ray in mesh space
//   - tMin, tMax: the valid distance interval
//
// Returns:
//   - Hit: the closest hit
//   - bool: whether any triangle was hit
func (b *BVH) Intersect(ray Ray, tMin, tMax float32) (Hit, bool) {
	best := Hit{T: tMax}
	found := false
	stack := make([]uint32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := b.Nodes[idx]
		if !n.Bounds.Hit(ray, tMin, best.T) {
			continue
		}
		if !n.Leaf() {
			stack = append(stack, n.Right, idx+1)
			continue
		}
		for i := n.First; i < n.First+n.Count; i++ {
			if t, uv, ok := intersectTriangle(ray, &b.Triangles[i]); ok && t > tMin && t < best.T {
				best = Hit{T: t, Triangle: i, Barycentrics: uv}
				found = true
			}
		}
	}
	return best, found
}

// intersectTriangle is the Moller-Trumbore test.
func intersectTriangle(ray Ray, t *Triangle) (float32, mgl32.Vec2, bool) {
	e1 := t.Positions[1].Sub(t.Positions[0])
	e2 := t.Positions[2].Sub(t.Positions[0])
	p := ray.Direction.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < 1e-9 {
		return 0, mgl32.Vec2{}, false
	}
	inv := 1 / det
	s := ray.Origin.Sub(t.Positions[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, mgl32.Vec2{}, false
	}
	q := s.Cross(e1)
	v := ray.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, mgl32.Vec2{}, false
	}
	return e2.Dot(q) * inv, mgl32.Vec2{u, v}, true
}

// NodeVec4s and TriangleVec4s are the encoded sizes of a node and a triangle in vec4 units.
const (
	NodeVec4s     = 2
	TriangleVec4s = 6
)

// EncodeNodes appends the nodes as vec4 pairs: (min, bitcast right) and (max, bitcast count),
// with leaves storing their first triangle in place of right. Child links stay relative to
// node 0 of this hierarchy.
//
// Parameters:
//   - dst: the destination
//   - triangleBase: the triangle index added to leaf ranges
//
// Returns:
//   - []byte: dst with len(Nodes)*NodeVec4s*16 bytes appended
func (b *BVH) EncodeNodes(dst []byte, triangleBase uint32) []byte {
	for _, n := range b.Nodes {
		link := n.Right
		if n.Leaf() {
			link = triangleBase + n.First
		}
		dst = common.AppendFloat32(dst, n.Bounds.Min[:]...)
		dst = common.AppendUint32(dst, link)
		dst = common.AppendFloat32(dst, n.Bounds.Max[:]...)
		dst = common.AppendUint32(dst, n.Count)
	}
	return dst
}

// EncodeTriangles appends each triangle as six vec4: three positions and three normals with
// the texture coordinates packed into their w components.
func (b *BVH) EncodeTriangles(dst []byte) []byte {
	for _, t := range b.Triangles {
		dst = common.AppendVec4(dst, t.Positions[0].Vec4(t.UVs[0][0]))
		dst = common.AppendVec4(dst, t.Positions[1].Vec4(t.UVs[0][1]))
		dst = common.AppendVec4(dst, t.Positions[2].Vec4(t.UVs[1][0]))
		dst = common.AppendVec4(dst, t.Normals[0].Vec4(t.UVs[1][1]))
		dst = common.AppendVec4(dst, t.Normals[1].Vec4(t.UVs[2][0]))
		dst = common.AppendVec4(dst, t.Normals[2].Vec4(t.UVs[2][1]))
	}
	return dst
}
