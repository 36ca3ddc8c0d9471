package loader

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// importedPrimitive is one glTF primitive converted to a scene mesh. Material is the glTF
// material index, -1 for the default material.
type importedPrimitive struct {
	Mesh     *scene.Mesh
	Material int
}

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor converts glTF meshes into scene meshes.
type gltfMeshExtractor interface {
	// ExtractMesh extracts every primitive of one mesh. glTF meshes may hold several
	// primitives with different materials; each becomes its own scene mesh.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh to extract
	//
	// Returns:
	//   - []importedPrimitive: one entry per primitive
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int) ([]importedPrimitive, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) ([]importedPrimitive, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}

	mesh := &doc.Meshes[meshIndex]
	name := common.Coalesce(mesh.Name, fmt.Sprintf("mesh_%d", meshIndex))

	out := make([]importedPrimitive, 0, len(mesh.Primitives))
	for i := range mesh.Primitives {
		primName := name
		if len(mesh.Primitives) > 1 {
			primName = fmt.Sprintf("%s_prim%d", name, i)
		}
		imported, err := e.extractPrimitive(&mesh.Primitives[i], primName)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, i, err)
		}
		out = append(out, imported)
	}
	return out, nil
}

func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltfPrimitive, name string) (importedPrimitive, error) {
	mode := gltfModeTriangles
	if prim.Mode != nil {
		mode = *prim.Mode
	}
	if mode != gltfModeTriangles && mode != gltfModeTriangleStrip && mode != gltfModeTriangleFan {
		return importedPrimitive{}, fmt.Errorf("unsupported primitive mode %d", mode)
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return importedPrimitive{}, errors.New("primitive has no POSITION attribute")
	}
	raw, err := e.parser.ReadFloats(posAccessor, 3)
	if err != nil {
		return importedPrimitive{}, fmt.Errorf("positions: %w", err)
	}
	positions := toVec3(raw)
	vertices := make([]scene.Vertex, len(positions))
	for i, p := range positions {
		vertices[i].Position = p
	}

	hasNormals, err := e.readAttribute(prim, "NORMAL", 3, func(f []float32) {
		for i, n := range toVec3(f) {
			if i < len(vertices) {
				vertices[i].Normal = n
			}
		}
	})
	if err != nil {
		return importedPrimitive{}, err
	}
	if _, err := e.readAttribute(prim, "TEXCOORD_0", 2, func(f []float32) {
		for i, uv := range toVec2(f) {
			if i < len(vertices) {
				vertices[i].UV = uv
			}
		}
	}); err != nil {
		return importedPrimitive{}, err
	}
	hasTangents, err := e.readAttribute(prim, "TANGENT", 4, func(f []float32) {
		for i, t := range toVec4(f) {
			if i < len(vertices) {
				vertices[i].Tangent = t
			}
		}
	})
	if err != nil {
		return importedPrimitive{}, err
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = e.parser.ReadIndices(*prim.Indices); err != nil {
			return importedPrimitive{}, fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	indices = triangulate(indices, mode)
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			return importedPrimitive{}, fmt.Errorf("index %d out of range of %d vertices", idx, len(vertices))
		}
	}
	if len(indices) < 3 {
		return importedPrimitive{}, errors.New("primitive has no triangles")
	}

	// Tangents are orthonormalized against the normal, so normals come first.
	if !hasNormals {
		generateNormals(vertices, indices)
	}
	if !hasTangents {
		generateTangents(vertices, indices)
	}

	material := -1
	if prim.Material != nil {
		material = *prim.Material
	}
	return importedPrimitive{
		Mesh:     &scene.Mesh{Name: name, Vertices: vertices, Indices: indices},
		Material: material,
	}, nil
}

// readAttribute reads an optional attribute into apply and reports whether it was present.
func (e *gltfMeshExtractorImpl) readAttribute(prim *gltfPrimitive, semantic string, components int, apply func([]float32)) (bool, error) {
	accessor, ok := prim.Attributes[semantic]
	if !ok {
		return false, nil
	}
	data, err := e.parser.ReadFloats(accessor, components)
	if err != nil {
		return false, fmt.Errorf("%s: %w", semantic, err)
	}
	apply(data)
	return true, nil
}

// triangulate converts strip and fan index lists to a triangle list.
func triangulate(indices []uint32, mode int) []uint32 {
	if mode == gltfModeTriangles || len(indices) < 3 {
		return indices[:len(indices)/3*3]
	}
	out := make([]uint32, 0, (len(indices)-2)*3)
	for i := 2; i < len(indices); i++ {
		switch {
		case mode == gltfModeTriangleFan:
			out = append(out, indices[0], indices[i-1], indices[i])
		case i%2 == 0:
			out = append(out, indices[i-2], indices[i-1], indices[i])
		default:
			out = append(out, indices[i-1], indices[i-2], indices[i])
		}
	}
	return out
}

// generateNormals writes smooth vertex normals accumulated from area-weighted face normals.
// Vertices touched by no triangle get +Y.
func generateNormals(vertices []scene.Vertex, indices []uint32) {
	accum := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := vertices[i0].Position
		face := vertices[i1].Position.Sub(p0).Cross(vertices[i2].Position.Sub(p0))
		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}
	for i, n := range accum {
		if n.Len() < 1e-6 {
			vertices[i].Normal = mgl32.Vec3{0, 1, 0}
			continue
		}
		vertices[i].Normal = n.Normalize()
	}
}

// generateTangents derives per-vertex tangents from UV gradients, orthonormalized against the
// vertex normal. W holds the bitangent handedness such that bitangent = cross(N, T) * W.
func generateTangents(vertices []scene.Vertex, indices []uint32) {
	tan := make([]mgl32.Vec3, len(vertices))
	bitan := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		v0, v1, v2 := vertices[i0], vertices[i1], vertices[i2]

		e1, e2 := v1.Position.Sub(v0.Position), v2.Position.Sub(v0.Position)
		d1, d2 := v1.UV.Sub(v0.UV), v2.UV.Sub(v0.UV)
		det := d1[0]*d2[1] - d1[1]*d2[0]
		if det == 0 {
			continue
		}
		r := 1 / det
		t := e1.Mul(d2[1]).Sub(e2.Mul(d1[1])).Mul(r)
		b := e2.Mul(d1[0]).Sub(e1.Mul(d2[0])).Mul(r)
		for _, idx := range [3]uint32{i0, i1, i2} {
			tan[idx] = tan[idx].Add(t)
			bitan[idx] = bitan[idx].Add(b)
		}
	}

	for i := range vertices {
		n := vertices[i].Normal
		t := tan[i].Sub(n.Mul(n.Dot(tan[i])))
		if t.Len() < 1e-6 {
			vertices[i].Tangent = mgl32.Vec4{1, 0, 0, 1}
			continue
		}
		t = t.Normalize()
		// glTF V runs down the image; the bitangent points toward decreasing V.
		w := float32(1)
		if n.Cross(t).Dot(bitan[i]) > 0 {
			w = -1
		}
		vertices[i].Tangent = t.Vec4(w)
	}
}
