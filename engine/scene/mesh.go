package scene

import (
	_ "embed"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// GPUVertexSource is the canonical WGSL definition of the VertexInput struct and the DrawPush
// push constant block of mesh pipelines. Matches Vertex and DrawPushSize exactly.
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// VertexStride is the byte size of one Vertex.
const VertexStride = 48

// DrawPushSize is the byte size of the per-draw push constants: model matrix and material index.
const DrawPushSize = 80

// Vertex is one mesh vertex as laid out in the vertex buffer.
type Vertex struct {
	Position mgl32.Vec3 // offset  0
	Normal   mgl32.Vec3 // offset 12
	UV       mgl32.Vec2 // offset 24
	Tangent  mgl32.Vec4 // offset 32: xyz tangent, w handedness
}

// VertexLayout is the vertex input of every mesh pipeline.
var VertexLayout = gpu.VertexInput{
	Stride: VertexStride,
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Format: gpu.VertexFormatFloat32x3, Offset: 0},
		{Location: 1, Format: gpu.VertexFormatFloat32x3, Offset: 12},
		{Location: 2, Format: gpu.VertexFormatFloat32x2, Offset: 24},
		{Location: 3, Format: gpu.VertexFormatFloat32x4, Offset: 32},
	},
}

// MarshalDrawPush packs the per-draw push constants.
//
// Parameters:
//   - model: the object to world transform
//   - materialIndex: index into the material buffer
//
// Returns:
//   - []byte: DrawPushSize bytes
func MarshalDrawPush(model mgl32.Mat4, materialIndex uint32) []byte {
	return AppendDrawPush(make([]byte, 0, DrawPushSize), model, materialIndex)
}

// AppendDrawPush appends the per-draw push constants to dst.
func AppendDrawPush(dst []byte, model mgl32.Mat4, materialIndex uint32) []byte {
	dst = common.AppendMat4(dst, model)
	return common.AppendUint32(dst, materialIndex, 0, 0, 0)
}

// Mesh is CPU-side indexed triangle geometry.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// MarshalVertices packs the vertices for upload.
func (m *Mesh) MarshalVertices() []byte {
	buf := make([]byte, 0, len(m.Vertices)*VertexStride)
	for _, v := range m.Vertices {
		buf = common.AppendFloat32(buf, v.Position[0], v.Position[1], v.Position[2])
		buf = common.AppendFloat32(buf, v.Normal[0], v.Normal[1], v.Normal[2])
		buf = common.AppendFloat32(buf, v.UV[0], v.UV[1])
		buf = common.AppendVec4(buf, v.Tangent)
	}
	return buf
}

// Geometry returns the triangle data acceleration structures are built from.
func (m *Mesh) Geometry() *gpu.Geometry {
	g := &gpu.Geometry{
		Positions: make([]mgl32.Vec3, len(m.Vertices)),
		Normals:   make([]mgl32.Vec3, len(m.Vertices)),
		TexCoords: make([]mgl32.Vec2, len(m.Vertices)),
		Indices:   m.Indices,
	}
	for i, v := range m.Vertices {
		g.Positions[i] = v.Position
		g.Normals[i] = v.Normal
		g.TexCoords[i] = v.UV
	}
	return g
}

// Bounds returns the axis-aligned bounds of the mesh.
func (m *Mesh) Bounds() (minCorner, maxCorner mgl32.Vec3) {
	if len(m.Vertices) == 0 {
		return
	}
	minCorner, maxCorner = m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for a := range 3 {
			minCorner[a] = math32.Min(minCorner[a], v.Position[a])
			maxCorner[a] = math32.Max(maxCorner[a], v.Position[a])
		}
	}
	return
}

// Primitive is a mesh uploaded to the GPU. The CPU mesh is kept for acceleration builds.
type Primitive struct {
	Mesh         *Mesh
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	IndexCount   uint32
}

// NewPrimitive uploads a mesh into new vertex and index buffers.
//
// Parameters:
//   - dev: the device that owns the buffers
//   - mesh: the geometry to upload, with at least one triangle
//
// Returns:
//   - *Primitive: the uploaded primitive
//   - error: an error if the mesh is empty or allocation failed
func NewPrimitive(dev gpu.Device, mesh *Mesh) (*Primitive, error) {
	if len(mesh.Vertices) == 0 || len(mesh.Indices) < 3 {
		return nil, fmt.Errorf("scene: mesh %q has no triangles", mesh.Name)
	}
	vertices := mesh.MarshalVertices()
	vb, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: mesh.Name + " Vertices",
		Size:  uint64(len(vertices)),
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("scene: mesh %q vertex buffer: %w", mesh.Name, err)
	}
	indices := common.AppendUint32(nil, mesh.Indices...)
	ib, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: mesh.Name + " Indices",
		Size:  uint64(len(indices)),
		Usage: gpu.BufferUsageIndex | gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		vb.Release()
		return nil, fmt.Errorf("scene: mesh %q index buffer: %w", mesh.Name, err)
	}
	dev.WriteBuffer(vb, 0, vertices)
	dev.WriteBuffer(ib, 0, indices)
	return &Primitive{Mesh: mesh, VertexBuffer: vb, IndexBuffer: ib, IndexCount: uint32(len(mesh.Indices))}, nil
}

// Release destroys the primitive's buffers.
func (p *Primitive) Release() {
	p.VertexBuffer.Release()
	p.IndexBuffer.Release()
}

// cubeFaces lists normal, tangent and bitangent of each cube face.
var cubeFaces = [6][3]mgl32.Vec3{
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
}

// CubeMesh returns an axis-aligned cube centered on the origin with 24 vertices so every face
// has its own normal.
//
// Parameters:
//   - size: edge length
//
// Returns:
//   - *Mesh: the cube
func CubeMesh(size float32) *Mesh {
	h := size / 2
	m := &Mesh{Name: "Cube"}
	for _, f := range cubeFaces {
		n, t, b := f[0], f[1], f[2]
		base := uint32(len(m.Vertices))
		for _, c := range [4]mgl32.Vec2{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := n.Add(t.Mul(c[0])).Add(b.Mul(c[1])).Mul(h)
			m.Vertices = append(m.Vertices, Vertex{
				Position: p,
				Normal:   n,
				UV:       mgl32.Vec2{(c[0] + 1) / 2, (1 - c[1]) / 2},
				Tangent:  t.Vec4(1),
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// PlaneMesh returns a square in the XZ plane facing +Y.
//
// Parameters:
//   - size: edge length
//
// Returns:
//   - *Mesh: the plane
func PlaneMesh(size float32) *Mesh {
	h := size / 2
	m := &Mesh{Name: "Plane"}
	for _, c := range [4]mgl32.Vec2{{-1, 1}, {1, 1}, {1, -1}, {-1, -1}} {
		m.Vertices = append(m.Vertices, Vertex{
			Position: mgl32.Vec3{c[0] * h, 0, c[1] * h},
			Normal:   mgl32.Vec3{0, 1, 0},
			UV:       mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
			Tangent:  mgl32.Vec4{1, 0, 0, 1},
		})
	}
	m.Indices = []uint32{0, 1, 2, 0, 2, 3}
	return m
}

// SphereMesh returns a UV sphere centered on the origin.
//
// Parameters:
//   - radius: sphere radius
//   - segments: subdivisions around the Y axis, at least 3
//   - rings: subdivisions from pole to pole, at least 2
//
// Returns:
//   - *Mesh: the sphere
func SphereMesh(radius float32, segments, rings int) *Mesh {
	segments = max(segments, 3)
	rings = max(rings, 2)
	m := &Mesh{Name: "Sphere"}
	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		theta := v * math32.Pi
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			phi := u * 2 * math32.Pi
			n := mgl32.Vec3{math32.Sin(theta) * math32.Cos(phi), math32.Cos(theta), math32.Sin(theta) * math32.Sin(phi)}
			m.Vertices = append(m.Vertices, Vertex{
				Position: n.Mul(radius),
				Normal:   n,
				UV:       mgl32.Vec2{u, v},
				Tangent:  mgl32.Vec4{-math32.Sin(phi), 0, math32.Cos(phi), 1},
			})
		}
	}
	stride := uint32(segments + 1)
	for r := range uint32(rings) {
		for s := range uint32(segments) {
			a := r*stride + s
			b := a + stride
			m.Indices = append(m.Indices, a, a+1, b, a+1, b+1, b)
		}
	}
	return m
}
