package light

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CoefficientCount is the number of spherical harmonics coefficients stored per probe.
const CoefficientCount = 9

// GPUTetrahedronSize is the byte size of one packed tetrahedron.
const GPUTetrahedronSize = 80

// GPULightVolumeSource is the canonical WGSL definition of the Tetrahedron struct.
//
//go:embed assets/light_volume.wgsl
var GPULightVolumeSource string

// ErrInvalidVolume is returned when a light volume cannot be built from its parameters.
var ErrInvalidVolume = errors.New("light: invalid light volume")

// SH9 holds RGB spherical harmonics coefficients up to band 2.
type SH9 [CoefficientCount]mgl32.Vec3

// Tetrahedron is one cell of the probe tetrahedralization. Neighbors[i] is the cell
// across the face opposite Vertices[i], or -1 on the volume boundary.
type Tetrahedron struct {
	Vertices  [4]int32
	Neighbors [4]int32
	// Matrix rows map a world position p to the first three barycentric coordinates
	// as Matrix[r].Dot(p, 1).
	Matrix [3]mgl32.Vec4
}

// Barycentric returns the four barycentric coordinates of p in the tetrahedron.
func (t Tetrahedron) Barycentric(p mgl32.Vec3) mgl32.Vec4 {
	h := p.Vec4(1)
	b0, b1, b2 := t.Matrix[0].Dot(h), t.Matrix[1].Dot(h), t.Matrix[2].Dot(h)
	return mgl32.Vec4{b0, b1, b2, 1 - b0 - b1 - b2}
}

// Volume is a set of irradiance probes connected into a tetrahedral mesh. Shaders walk
// the mesh from cell to cell towards the shaded point and blend the probes of the
// containing cell by barycentric weight.
type Volume struct {
	Positions    []mgl32.Vec3
	Tetrahedra   []Tetrahedron
	Coefficients []SH9
}

// GridVolume places probes on a regular grid spanning the box and splits every grid cell
// into six tetrahedra along its main diagonal. All cells share the diagonal direction so
// neighboring cells meet face to face.
//
// Parameters:
//   - minCorner, maxCorner: the world-space box covered by the volume
//   - counts: probes per axis, at least 2 on each axis
//
// Returns:
//   - *Volume: the volume with zeroed coefficients
//   - error: ErrInvalidVolume for degenerate boxes or counts
func GridVolume(minCorner, maxCorner mgl32.Vec3, counts [3]int) (*Volume, error) {
	for axis := range 3 {
		if counts[axis] < 2 {
			return nil, fmt.Errorf("%w: %d probes on axis %d", ErrInvalidVolume, counts[axis], axis)
		}
		if maxCorner[axis] <= minCorner[axis] {
			return nil, fmt.Errorf("%w: empty extent on axis %d", ErrInvalidVolume, axis)
		}
	}

	v := &Volume{}
	index := func(x, y, z int) int32 {
		return int32((z*counts[1]+y)*counts[0] + x)
	}

	step := maxCorner.Sub(minCorner)
	for z := range counts[2] {
		for y := range counts[1] {
			for x := range counts[0] {
				t := mgl32.Vec3{
					float32(x) / float32(counts[0]-1),
					float32(y) / float32(counts[1]-1),
					float32(z) / float32(counts[2]-1),
				}
				v.Positions = append(v.Positions, minCorner.Add(mgl32.Vec3{step[0] * t[0], step[1] * t[1], step[2] * t[2]}))
			}
		}
	}

	axes := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for z := range counts[2] - 1 {
		for y := range counts[1] - 1 {
			for x := range counts[0] - 1 {
				for _, perm := range axes {
					c := [3]int{x, y, z}
					var verts [4]int32
					verts[0] = index(c[0], c[1], c[2])
					for i, axis := range perm {
						c[axis]++
						verts[i+1] = index(c[0], c[1], c[2])
					}
					tet, err := v.newTetrahedron(verts)
					if err != nil {
						return nil, err
					}
					v.Tetrahedra = append(v.Tetrahedra, tet)
				}
			}
		}
	}

	v.linkNeighbors()
	v.Coefficients = make([]SH9, len(v.Positions))
	return v, nil
}

func (v *Volume) newTetrahedron(verts [4]int32) (Tetrahedron, error) {
	p := func(i int) mgl32.Vec3 { return v.Positions[verts[i]] }
	m := mgl32.Mat3FromCols(p(0).Sub(p(3)), p(1).Sub(p(3)), p(2).Sub(p(3)))
	if math32.Abs(m.Det()) < 1e-12 {
		return Tetrahedron{}, fmt.Errorf("%w: degenerate tetrahedron %v", ErrInvalidVolume, verts)
	}
	inv := m.Inv()
	offset := inv.Mul3x1(p(3)).Mul(-1)

	tet := Tetrahedron{Vertices: verts, Neighbors: [4]int32{-1, -1, -1, -1}}
	for r := range 3 {
		tet.Matrix[r] = inv.Row(r).Vec4(offset[r])
	}
	return tet, nil
}

type faceKey [3]int32

func makeFaceKey(verts [4]int32, opposite int) faceKey {
	var k faceKey
	n := 0
	for i, vert := range verts {
		if i != opposite {
			k[n] = vert
			n++
		}
	}
	slices.Sort(k[:])
	return k
}

// linkNeighbors pairs the tetrahedra sharing a face.
func (v *Volume) linkNeighbors() {
	type side struct{ tet, face int }
	open := make(map[faceKey]side)
	for ti := range v.Tetrahedra {
		for fi := range 4 {
			key := makeFaceKey(v.Tetrahedra[ti].Vertices, fi)
			if other, ok := open[key]; ok {
				v.Tetrahedra[ti].Neighbors[fi] = int32(other.tet)
				v.Tetrahedra[other.tet].Neighbors[other.face] = int32(ti)
				delete(open, key)
				continue
			}
			open[key] = side{ti, fi}
		}
	}
}

// Locate returns the index of the tetrahedron containing p, or -1 when p is outside the
// volume.
func (v *Volume) Locate(p mgl32.Vec3) int {
	const eps = 1e-4
	for i, t := range v.Tetrahedra {
		b := t.Barycentric(p)
		if b[0] >= -eps && b[1] >= -eps && b[2] >= -eps && b[3] >= -eps {
			return i
		}
	}
	return -1
}

// Unlit reports whether every probe still has zero coefficients.
func (v *Volume) Unlit() bool {
	for _, sh := range v.Coefficients {
		if sh != (SH9{}) {
			return false
		}
	}
	return true
}

// SetUniformCoefficients assigns the same coefficients to every probe.
func (v *Volume) SetUniformCoefficients(sh SH9) {
	for i := range v.Coefficients {
		v.Coefficients[i] = sh
	}
}

// MarshalPositions packs the probe positions as vec4 with w = 1.
func (v *Volume) MarshalPositions() []byte {
	buf := make([]byte, 0, len(v.Positions)*16)
	for _, p := range v.Positions {
		buf = common.AppendVec4(buf, p.Vec4(1))
	}
	return buf
}

// MarshalTetrahedra packs the tetrahedra in the layout of the WGSL Tetrahedron struct.
func (v *Volume) MarshalTetrahedra() []byte {
	buf := make([]byte, 0, len(v.Tetrahedra)*GPUTetrahedronSize)
	for _, t := range v.Tetrahedra {
		buf = common.AppendInt32(buf, t.Vertices[:]...)
		buf = common.AppendInt32(buf, t.Neighbors[:]...)
		for _, row := range t.Matrix {
			buf = common.AppendVec4(buf, row)
		}
	}
	return buf
}

// MarshalCoefficients packs CoefficientCount vec4 per probe, rgb in xyz.
func (v *Volume) MarshalCoefficients() []byte {
	buf := make([]byte, 0, len(v.Coefficients)*CoefficientCount*16)
	for _, sh := range v.Coefficients {
		for _, c := range sh {
			buf = common.AppendVec4(buf, c.Vec4(0))
		}
	}
	return buf
}

// shBasis evaluates the nine real spherical harmonics basis functions for a unit direction.
func shBasis(d mgl32.Vec3) [CoefficientCount]float32 {
	x, y, z := d[0], d[1], d[2]
	return [CoefficientCount]float32{
		0.282095,
		0.488603 * y,
		0.488603 * z,
		0.488603 * x,
		1.092548 * x * y,
		1.092548 * y * z,
		0.315392 * (3*z*z - 1),
		1.092548 * x * z,
		0.546274 * (x*x - y*y),
	}
}

// RadianceCube is linear radiance over the six faces of a cube, Size x Size texels per face
// in the face order of common.CubeFaceDirection.
type RadianceCube struct {
	Size   uint32
	Texels []mgl32.Vec3
}

// DecodeRadianceRGBA16F unpacks six tightly packed RGBA16Float faces into a RadianceCube.
// Alpha is dropped.
//
// Parameters:
//   - size: the face width and height in texels
//   - data: the image contents, 8 bytes per texel
//
// Returns:
//   - RadianceCube: the decoded faces
//   - error: ErrInvalidVolume if data does not hold six faces of size
func DecodeRadianceRGBA16F(size uint32, data []byte) (RadianceCube, error) {
	texels := int(6 * size * size)
	if size == 0 || len(data) != texels*8 {
		return RadianceCube{}, fmt.Errorf("%w: %d bytes for six %dx%d half float faces", ErrInvalidVolume, len(data), size, size)
	}
	cube := RadianceCube{Size: size, Texels: make([]mgl32.Vec3, texels)}
	for i := range cube.Texels {
		px := data[i*8:]
		cube.Texels[i] = mgl32.Vec3{
			common.Float16(binary.LittleEndian.Uint16(px)),
			common.Float16(binary.LittleEndian.Uint16(px[2:])),
			common.Float16(binary.LittleEndian.Uint16(px[4:])),
		}
	}
	return cube, nil
}

// ProjectCubemap projects the radiance of an RGBA8 cubemap onto spherical harmonics.
//
// Parameters:
//   - tex: a six-layer cubemap in the face order of common.CubeFaceDirection
//
// Returns:
//   - SH9: the projected coefficients
//   - error: ErrInvalidVolume if tex is not a complete cubemap
func ProjectCubemap(tex common.TextureData) (SH9, error) {
	size := tex.Width
	if tex.Layers != 6 || size == 0 || tex.Height != size || len(tex.Pixels) != int(6*size*size*4) {
		return SH9{}, fmt.Errorf("%w: cubemap %dx%dx%d", ErrInvalidVolume, tex.Width, tex.Height, tex.Layers)
	}
	cube := RadianceCube{Size: size, Texels: make([]mgl32.Vec3, 6*size*size)}
	for i := range cube.Texels {
		px := tex.Pixels[i*4:]
		cube.Texels[i] = mgl32.Vec3{float32(px[0]) / 255, float32(px[1]) / 255, float32(px[2]) / 255}
	}
	return ProjectRadiance(cube)
}

// ProjectRadiance projects cube radiance onto spherical harmonics, weighting every texel by
// the solid angle it subtends.
//
// Parameters:
//   - cube: the radiance of all six faces
//
// Returns:
//   - SH9: the projected coefficients
//   - error: ErrInvalidVolume if cube does not hold six square faces
func ProjectRadiance(cube RadianceCube) (SH9, error) {
	size := cube.Size
	if size == 0 || len(cube.Texels) != int(6*size*size) {
		return SH9{}, fmt.Errorf("%w: %d texels for six %dx%d faces", ErrInvalidVolume, len(cube.Texels), size, size)
	}

	var sh SH9
	var total float32
	texel := 0
	for face := range 6 {
		for y := range size {
			for x := range size {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				dir := common.CubeFaceDirection(face, u, v)
				r2 := 1 + u*u + v*v
				weight := 4 / (float32(size*size) * r2 * math32.Sqrt(r2))
				total += weight

				radiance := cube.Texels[texel]
				texel++

				for i, b := range shBasis(dir.Normalize()) {
					sh[i] = sh[i].Add(radiance.Mul(b * weight))
				}
			}
		}
	}

	// Normalize the quadrature so the weights integrate to exactly 4 pi.
	scale := 4 * math32.Pi / total
	for i := range sh {
		sh[i] = sh[i].Mul(scale)
	}
	return sh, nil
}

// shBandWeights are the cosine-lobe convolution factors of the three SH bands divided by pi,
// so Irradiance returns the diffuse radiance of a white Lambertian surface.
var shBandWeights = [CoefficientCount]float32{1, 2.0 / 3, 2.0 / 3, 2.0 / 3, 0.25, 0.25, 0.25, 0.25, 0.25}

// Irradiance evaluates the cosine-convolved radiance encoded by sh for surface normal n.
//
// Parameters:
//   - n: the unit surface normal
//
// Returns:
//   - mgl32.Vec3: the diffuse radiance, clamped to zero
func (sh SH9) Irradiance(n mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i, b := range shBasis(n) {
		out = out.Add(sh[i].Mul(b * shBandWeights[i]))
	}
	for i := range out {
		out[i] = math32.Max(out[i], 0)
	}
	return out
}
