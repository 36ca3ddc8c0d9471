package accel

import (
	"encoding/binary"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// gridGeometry returns an n x n grid of unit quads in the XY plane facing +Z.
func gridGeometry(n int) *gpu.Geometry {
	g := &gpu.Geometry{}
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			g.Positions = append(g.Positions, mgl32.Vec3{float32(x), float32(y), 0})
			g.Normals = append(g.Normals, mgl32.Vec3{0, 0, 1})
			g.TexCoords = append(g.TexCoords, mgl32.Vec2{float32(x) / float32(n), float32(y) / float32(n)})
		}
	}
	stride := uint32(n + 1)
	for y := range uint32(n) {
		for x := range uint32(n) {
			a := y*stride + x
			g.Indices = append(g.Indices, a, a+1, a+stride+1, a, a+stride+1, a+stride)
		}
	}
	return g
}

func TestBuildInvariants(t *testing.T) {
	b, err := Build(gridGeometry(8))
	require.NoError(t, err)
	require.Len(t, b.Triangles, 128)

	covered := make([]int, len(b.Triangles))
	for i, n := range b.Nodes {
		if n.Leaf() {
			assert.LessOrEqual(t, n.Count, uint32(leafThreshold))
			for k := n.First; k < n.First+n.Count; k++ {
				covered[k]++
				tb := b.Triangles[k].bounds()
				assert.True(t, n.Bounds.Union(tb) == n.Bounds, "leaf %d does not contain triangle %d", i, k)
			}
			continue
		}
		// Depth-first layout: the left child follows its parent.
		left, right := b.Nodes[i+1], b.Nodes[n.Right]
		assert.Greater(t, n.Right, uint32(i+1))
		assert.Equal(t, n.Bounds, n.Bounds.Union(left.Bounds).Union(right.Bounds))
	}
	for k, c := range covered {
		assert.Equal(t, 1, c, "triangle %d", k)
	}
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, b.Bounds().Min)
	assert.Equal(t, mgl32.Vec3{8, 8, 0}, b.Bounds().Max)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
	_, err = Build(&gpu.Geometry{Positions: []mgl32.Vec3{{}}, Indices: []uint32{0, 0, 3}})
	assert.ErrorContains(t, err, "out of range")
}

func TestIntersect(t *testing.T) {
	b, err := Build(gridGeometry(4))
	require.NoError(t, err)

	hit, ok := b.Intersect(Ray{Origin: mgl32.Vec3{1.25, 2.75, 5}, Direction: mgl32.Vec3{0, 0, -1}}, 0, 100)
	require.True(t, ok)
	assert.InDelta(t, 5, hit.T, 1e-5)
	tri := b.Triangles[hit.Triangle]
	w := hit.Barycentrics
	p := tri.Positions[0].Mul(1 - w[0] - w[1]).Add(tri.Positions[1].Mul(w[0])).Add(tri.Positions[2].Mul(w[1]))
	assert.InDelta(t, 1.25, p[0], 1e-5)
	assert.InDelta(t, 2.75, p[1], 1e-5)

	_, ok = b.Intersect(Ray{Origin: mgl32.Vec3{5, 5, 5}, Direction: mgl32.Vec3{0, 0, -1}}, 0, 100)
	assert.False(t, ok)
	_, ok = b.Intersect(Ray{Origin: mgl32.Vec3{1, 1, 5}, Direction: mgl32.Vec3{0, 0, -1}}, 0, 4)
	assert.False(t, ok, "hit beyond tMax")
}

func TestTopLevelLayout(t *testing.T) {
	a, err := Build(gridGeometry(2))
	require.NoError(t, err)
	b, err := Build(gridGeometry(3))
	require.NoError(t, err)

	top := NewTopLevel(4, []*BVH{a, b})
	assert.Equal(t, uint64((HeaderVec4s+4*InstanceVec4s)*16), top.StaticOffset())
	nodes := len(a.Nodes) + len(b.Nodes)
	tris := len(a.Triangles) + len(b.Triangles)
	assert.Len(t, top.StaticData(), (nodes*NodeVec4s+tris*TriangleVec4s)*16)
	assert.Equal(t, top.StaticOffset()+uint64(len(top.StaticData())), top.Size())

	instances := []Instance{
		{Transform: mgl32.Ident4(), Bottom: 0, CustomIndex: 7, Mask: 0xff},
		{Transform: mgl32.Translate3D(10, 0, 0), Bottom: 1, CustomIndex: 3, Mask: 1},
	}
	buf, err := top.EncodeInstances(instances)
	require.NoError(t, err)
	require.Len(t, buf, (HeaderVec4s+2*InstanceVec4s)*16)

	u32 := func(vec4, lane int) uint32 { return binary.LittleEndian.Uint32(buf[vec4*16+lane*4:]) }
	assert.Equal(t, uint32(2), u32(0, 0))
	assert.Equal(t, uint32(4), u32(0, 1))
	assert.Equal(t, uint32(HeaderVec4s+4*InstanceVec4s+nodes*NodeVec4s), u32(0, 2))
	// Second instance: node offset of bottom 1 and its custom index.
	assert.Equal(t, uint32(HeaderVec4s+4*InstanceVec4s+len(a.Nodes)*NodeVec4s), u32(1+InstanceVec4s+6, 0))
	assert.Equal(t, uint32(3), u32(1+InstanceVec4s+6, 1))
	assert.Equal(t, uint32(1), u32(1+InstanceVec4s+6, 2))

	_, err = top.EncodeInstances(make([]Instance, 5))
	assert.Error(t, err)
	_, err = top.EncodeInstances([]Instance{{Transform: mgl32.Ident4(), Bottom: 2}})
	assert.ErrorContains(t, err, "bottom 2")
}

func TestTopLevelIntersect(t *testing.T) {
	quad, err := Build(gridGeometry(1))
	require.NoError(t, err)
	top := NewTopLevel(2, []*BVH{quad})

	instances := []Instance{
		{Transform: mgl32.Translate3D(0, 0, -2), Bottom: 0},
		// Rotated to face +X and moved in front of the first one.
		{Transform: mgl32.Translate3D(0, 0, -1).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))), Bottom: 0, CustomIndex: 1},
	}

	hit, ok := top.Intersect(instances, Ray{Origin: mgl32.Vec3{0.5, 0.5, 5}, Direction: mgl32.Vec3{0, 0, -1}}, 0, 100)
	require.True(t, ok)
	assert.Equal(t, 0, hit.Instance)
	assert.InDelta(t, 7, hit.T, 1e-4)
	assert.InDelta(t, 1, hit.Normal.Z(), 1e-5)

	hit, ok = top.Intersect(instances, Ray{Origin: mgl32.Vec3{5, 0.5, -1.5}, Direction: mgl32.Vec3{-1, 0, 0}}, 0, 100)
	require.True(t, ok)
	assert.Equal(t, 1, hit.Instance)
	assert.InDelta(t, 5, hit.T, 1e-4)
	assert.InDelta(t, 1, hit.Normal.X(), 1e-5)
}
