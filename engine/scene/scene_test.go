package scene

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu/gputest"
)

func testScene(options ...SceneBuilderOption) *Scene {
	base := []SceneBuilderOption{
		WithMeshes(CubeMesh(1), PlaneMesh(10)),
		WithMaterials(NewMaterial("red", mgl32.Vec4{1, 0, 0, 1}), NewMaterial("floor", mgl32.Vec4{0.5, 0.5, 0.5, 1})),
		WithRenderObjects(
			RenderObject{PrimitiveIndex: 0, MaterialIndex: 0, Transform: mgl32.Translate3D(0, 1, 0)},
			RenderObject{PrimitiveIndex: 0, MaterialIndex: 0, Transform: mgl32.Translate3D(2, 1, 0)},
			RenderObject{PrimitiveIndex: 1, MaterialIndex: 1, Transform: mgl32.Ident4()},
		),
		WithComputeWorkers(2),
	}
	return NewScene("test", append(base, options...)...)
}

func TestMaterialLayout(t *testing.T) {
	m := NewMaterial("m", mgl32.Vec4{1, 0.5, 0.25, 1})
	m.BaseColorTexture = 3
	g := m.GPU()
	buf := g.Marshal()
	require.Len(t, buf, GPUMaterialSize)

	assert.Equal(t, common.AppendInt32(nil, 3, NoTexture), buf[32:40])
	assert.Equal(t, common.AppendFloat32(nil, 0.5), buf[68:72])

	assert.Len(t, MarshalMaterialBuffer(nil), GPUMaterialSize)
	assert.Len(t, MarshalMaterialBuffer([]Material{m, m, m}), 3*GPUMaterialSize)
}

func TestMaterialFlags(t *testing.T) {
	f := MaterialDoubleSided | MaterialAlphaBlend
	assert.True(t, f.Has(MaterialAlphaBlend))
	assert.False(t, f.Has(MaterialAlphaTest))
	assert.Equal(t, "DOUBLE_SIDED|ALPHA_BLEND", f.String())
	assert.Equal(t, "OPAQUE", MaterialFlags(0).String())

	defines := f.Defines()
	assert.Len(t, defines, 2)
	assert.Contains(t, defines, "DOUBLE_SIDED")
	assert.Contains(t, defines, "ALPHA_BLEND")
}

func TestProceduralMeshes(t *testing.T) {
	tests := []struct {
		name     string
		mesh     *Mesh
		vertices int
		indices  int
	}{
		{"cube", CubeMesh(2), 24, 36},
		{"plane", PlaneMesh(1), 4, 6},
		{"sphere", SphereMesh(1, 8, 4), 9 * 5, 8 * 4 * 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.mesh.Vertices, tt.vertices)
			assert.Len(t, tt.mesh.Indices, tt.indices)
			assert.Len(t, tt.mesh.MarshalVertices(), tt.vertices*VertexStride)
			for _, idx := range tt.mesh.Indices {
				assert.Less(t, int(idx), tt.vertices)
			}
			g := tt.mesh.Geometry()
			assert.Len(t, g.Positions, tt.vertices)
			assert.Equal(t, tt.mesh.Indices, g.Indices)
		})
	}

	lo, hi := CubeMesh(2).Bounds()
	assert.Equal(t, mgl32.Vec3{-1, -1, -1}, lo)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, hi)
	assert.Len(t, MarshalDrawPush(mgl32.Ident4(), 7), DrawPushSize)
}

func TestPackTextureArray(t *testing.T) {
	small := common.SolidTexture(10, 20, 30, 255)
	checker := common.CheckerTexture(4, 2, [4]uint8{255, 255, 255, 255}, [4]uint8{0, 0, 0, 255})

	array, err := PackTextureArray([]common.TextureData{small, checker})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), array.Width)
	assert.Equal(t, uint32(2), array.Layers)
	require.Len(t, array.Pixels, 4*4*4*2)
	// The 1x1 layer is stretched over every texel.
	assert.Equal(t, []byte{10, 20, 30, 255}, array.Pixels[60:64])
	assert.Equal(t, checker.Pixels, array.Pixels[64:])

	empty, err := PackTextureArray(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), empty.Layers)

	_, err = PackTextureArray([]common.TextureData{common.GradientCubemap(2, mgl32.Vec3{}, mgl32.Vec3{}, mgl32.Vec3{})})
	assert.Error(t, err)
}

func TestUploadReleaseRoundTrip(t *testing.T) {
	dev := gputest.NewDevice()
	s := testScene()
	s.EnsureDefaults()
	require.NotNil(t, s.Camera())
	require.NotNil(t, s.Environment())

	require.NoError(t, s.Upload(dev))
	require.NoError(t, s.Upload(dev))
	assert.True(t, s.Uploaded())
	assert.Len(t, s.Primitives(), 2)
	assert.Equal(t, 4, dev.LiveCount(gpu.ClassBuffer))
	// Texture array plus four environment images.
	assert.Equal(t, 5, dev.LiveCount(gpu.ClassImage))
	tex, sampler := s.Textures()
	assert.NotNil(t, tex)
	assert.NotNil(t, sampler)
	_, ok := s.LightVolume()
	assert.False(t, ok)

	s.Release()
	assert.Empty(t, dev.Live())
	assert.False(t, s.Uploaded())

	// A released scene uploads again.
	require.NoError(t, s.Upload(dev))
	s.Release()
	assert.Empty(t, dev.Live())
}

func TestUploadRejectsDanglingIndices(t *testing.T) {
	dev := gputest.NewDevice()

	s := testScene(WithRenderObjects(RenderObject{PrimitiveIndex: 5}))
	assert.ErrorContains(t, s.Upload(dev), "primitive 5")

	bad := NewMaterial("bad", mgl32.Vec4{1, 1, 1, 1})
	bad.NormalTexture = 0
	s = testScene(WithMaterials(bad))
	assert.ErrorContains(t, s.Upload(dev), "texture 0")

	assert.Empty(t, dev.Live())
}

func TestUploadFailureReleasesPartialWork(t *testing.T) {
	dev := gputest.NewDevice()
	s := testScene(WithMeshes(&Mesh{Name: "empty"}))
	require.Error(t, s.Upload(dev))
	assert.Empty(t, dev.Live())
	assert.Empty(t, s.Primitives())
}

func TestGenerateTLAS(t *testing.T) {
	dev := gputest.NewDevice()
	s := testScene()
	require.NoError(t, s.Upload(dev))

	rt, err := s.GenerateTLAS(dev)
	require.NoError(t, err)
	require.Len(t, rt.Bottoms, 2)
	assert.Equal(t, 3, dev.LiveCount(gpu.ClassAccelerationStructure))

	tlas := rt.TLAS.(*gputest.AccelerationStructure)
	assert.Equal(t, uint32(3), tlas.Desc.MaxInstances)
	for i, b := range rt.Bottoms {
		blas := b.(*gputest.AccelerationStructure)
		assert.Equal(t, s.Primitives()[i].Mesh.Indices, blas.Desc.Geometry.Indices)
	}

	instances := rt.Instances(s.RenderObjects())
	require.Len(t, instances, 3)
	assert.Same(t, rt.Bottoms[0], instances[1].Bottom)
	assert.Same(t, rt.Bottoms[1], instances[2].Bottom)
	assert.Equal(t, uint32(1), instances[2].CustomIndex)
	assert.Equal(t, mgl32.Translate3D(2, 1, 0), instances[1].Transform)

	s.SetRayTracing(rt)
	got, ok := s.RayTracing()
	assert.True(t, ok)
	assert.Same(t, rt, got)

	s.Release()
	_, ok = s.RayTracing()
	assert.False(t, ok)
	assert.Empty(t, dev.Live())
}

func TestGenerateTLASWithoutRayTracing(t *testing.T) {
	dev := gputest.NewDevice(gputest.WithRayTracing(false))
	s := testScene()
	require.NoError(t, s.Upload(dev))

	_, err := s.GenerateTLAS(dev)
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
	s.Release()
	assert.Empty(t, dev.Live())
}

func TestLightVolumeFromEnvironment(t *testing.T) {
	dev := gputest.NewDevice()
	vol, err := light.GridVolume(mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{1, 2, 1}, [3]int{2, 2, 2})
	require.NoError(t, err)

	s := testScene(WithLightVolume(vol), WithEnvironment(DefaultEnvironment()))
	require.NoError(t, s.Upload(dev))

	lv, ok := s.LightVolume()
	require.True(t, ok)
	require.Len(t, vol.Coefficients, len(vol.Positions))
	assert.Equal(t, s.Environment().Irradiance, vol.Coefficients[0])

	coefficients := lv.Coefficients.(*gputest.Buffer)
	assert.Len(t, coefficients.Data, len(vol.Positions)*light.CoefficientCount*16)
	assert.Len(t, lv.Tetrahedral.(*gputest.Buffer).Data, len(vol.Tetrahedra)*light.GPUTetrahedronSize)

	s.Release()
	assert.Empty(t, dev.Live())
}

// skyAbove lights the +Y face of every capture taken above height and the -Y face of the
// others.
type skyAbove struct {
	height   float32
	captured []camera.State
	err      error
}

func (s *skyAbove) CaptureRadiance(state camera.State) (light.RadianceCube, error) {
	s.captured = append(s.captured, state)
	if s.err != nil {
		return light.RadianceCube{}, s.err
	}
	const size = 4
	cube := light.RadianceCube{Size: size, Texels: make([]mgl32.Vec3, 6*size*size)}
	face := 3
	if state.Position.Y() > s.height {
		face = 2
	}
	for i := face * size * size; i < (face+1)*size*size; i++ {
		cube.Texels[i] = mgl32.Vec3{1, 1, 1}
	}
	return cube, nil
}

func TestBakeLightVolume(t *testing.T) {
	dev := gputest.NewDevice()
	vol, err := light.GridVolume(mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{1, 2, 1}, [3]int{2, 2, 2})
	require.NoError(t, err)
	s := testScene(WithLightVolume(vol), WithEnvironment(DefaultEnvironment()))
	require.NoError(t, s.Upload(dev))
	defer s.Release()

	lv, _ := s.LightVolume()
	buf := lv.Coefficients.(*gputest.Buffer)
	writes := buf.WriteCount

	src := &skyAbove{height: 1}
	require.NoError(t, s.BakeLightVolume(dev, src))
	require.Len(t, src.captured, len(vol.Positions))
	for i, state := range src.captured {
		assert.Equal(t, vol.Positions[i], state.Position)
		assert.Equal(t, camera.NewCamera().State().Far, state.Far, "scene without a camera bakes with the default clip planes")
	}

	// GridVolume orders probes x fastest, so probe 0 is at the floor and the last at the top.
	low, high := vol.Coefficients[0], vol.Coefficients[len(vol.Coefficients)-1]
	assert.NotEqual(t, low, high)
	up := mgl32.Vec3{0, 1, 0}
	down := mgl32.Vec3{0, -1, 0}
	assert.Greater(t, high.Irradiance(up)[0], high.Irradiance(down)[0])
	assert.Greater(t, low.Irradiance(down)[0], low.Irradiance(up)[0])
	assert.NotEqual(t, s.Environment().Irradiance, high)

	assert.Equal(t, writes+1, buf.WriteCount)
	assert.Equal(t, vol.MarshalCoefficients(), buf.Data)
}

func TestBakeLightVolumeKeepsCoefficientsOnFailure(t *testing.T) {
	dev := gputest.NewDevice()
	vol, err := light.GridVolume(mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{1, 2, 1}, [3]int{2, 2, 2})
	require.NoError(t, err)
	s := testScene(WithLightVolume(vol), WithEnvironment(DefaultEnvironment()))
	assert.ErrorIs(t, s.BakeLightVolume(dev, &skyAbove{}), ErrNoLightVolume)

	require.NoError(t, s.Upload(dev))
	defer s.Release()
	before := slices.Clone(vol.Coefficients)

	boom := errors.New("capture failed")
	assert.ErrorIs(t, s.BakeLightVolume(dev, &skyAbove{err: boom}), boom)
	assert.Equal(t, before, vol.Coefficients)

	bare := testScene()
	require.NoError(t, bare.Upload(dev))
	defer bare.Release()
	assert.ErrorIs(t, bare.BakeLightVolume(dev, &skyAbove{}), ErrNoLightVolume)
}

func TestSpecularBRDFTable(t *testing.T) {
	lut := SpecularBRDFTable(8)
	require.Len(t, lut.Pixels, 8*8*4)
	// Smooth surfaces at grazing-free angles reflect almost everything through the scale term.
	last := (7*8 + 7) * 4
	first := 7 * 4
	assert.Greater(t, lut.Pixels[first], lut.Pixels[last])
}
