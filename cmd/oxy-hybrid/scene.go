package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/config"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/loader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// demoScene builds a checkered floor with a row of cubes and spheres, a sun, two point lights and a
// glass cube drawn by the forward stage.
func demoScene(cfg config.Config) (*scene.Scene, error) {
	glass := scene.NewMaterial("glass", mgl32.Vec4{0.7, 0.85, 1, 0.35})
	glass.Flags = scene.MaterialAlphaBlend
	lamp := scene.NewMaterial("lamp", mgl32.Vec4{1, 0.9, 0.7, 1})
	lamp.EmissionFactor = mgl32.Vec3{4, 3.4, 2.4}
	metal := scene.NewMaterial("metal", mgl32.Vec4{0.9, 0.9, 0.92, 1})
	metal.MetallicFactor = 1
	metal.RoughnessFactor = 0.25

	floor := scene.NewMaterial("floor", mgl32.Vec4{0.55, 0.55, 0.5, 1})
	floor.BaseColorTexture = 0

	materials := []scene.Material{
		floor,
		scene.NewMaterial("brick", mgl32.Vec4{0.62, 0.22, 0.12, 1}),
		metal,
		glass,
		lamp,
	}

	const (
		cube = iota
		plane
		sphere
	)
	objects := []scene.RenderObject{
		{PrimitiveIndex: plane, MaterialIndex: 0, Transform: mgl32.Ident4()},
		{PrimitiveIndex: sphere, MaterialIndex: 4, Transform: mgl32.Translate3D(0, 4, 0).Mul4(mgl32.Scale3D(0.3, 0.3, 0.3))},
	}
	for i := range 5 {
		x := float32(i-2) * 2.5
		objects = append(objects,
			scene.RenderObject{PrimitiveIndex: cube, MaterialIndex: 1, Transform: mgl32.Translate3D(x, 0.5, -2).Mul4(mgl32.HomogRotate3DY(float32(i) * 0.3))},
			scene.RenderObject{PrimitiveIndex: sphere, MaterialIndex: 2, Transform: mgl32.Translate3D(x, 0.75, 1.5).Mul4(mgl32.Scale3D(0.75, 0.75, 0.75))},
		)
	}
	objects = append(objects, scene.RenderObject{PrimitiveIndex: cube, MaterialIndex: 3, Transform: mgl32.Translate3D(0, 1, 4).Mul4(mgl32.Scale3D(1.5, 2, 0.2))})

	options := []scene.SceneBuilderOption{
		scene.WithMeshes(scene.CubeMesh(1), scene.PlaneMesh(30), scene.SphereMesh(1, 32, 16)),
		scene.WithMaterials(materials...),
		scene.WithTextures(common.CheckerTexture(256, 32, [4]uint8{235, 235, 228, 255}, [4]uint8{120, 120, 115, 255})),
		scene.WithRenderObjects(objects...),
		scene.WithLights(demoLights()...),
		scene.WithCamera(orbitCamera(mgl32.Vec3{0, 1, 0}, 14)),
		scene.WithEnvironment(scene.DefaultEnvironment()),
	}
	if cfg.Render.LightVolume {
		vol, err := light.GridVolume(mgl32.Vec3{-15, 0, -15}, mgl32.Vec3{15, 8, 15}, [3]int{4, 3, 4})
		if err != nil {
			return nil, err
		}
		options = append(options, scene.WithLightVolume(vol))
	}
	return scene.NewScene("demo", options...), nil
}

// modelScene places an imported model on a floor sized to its bounds, lit like the demo scene.
func modelScene(cfg config.Config, l loader.Loader) (*scene.Scene, error) {
	asset, err := l.Load(cfg.Scene.Model)
	if err != nil {
		return nil, err
	}
	lo, hi := asset.Bounds()
	center := lo.Add(hi).Mul(0.5)
	size := max(hi.Sub(lo).Len(), 1)

	// The asset's options come first so its indices stay valid.
	options := append(asset.SceneOptions(),
		scene.WithMeshes(scene.PlaneMesh(size*4)),
		scene.WithMaterials(scene.NewMaterial("floor", mgl32.Vec4{0.55, 0.55, 0.5, 1})),
		scene.WithRenderObjects(scene.RenderObject{
			PrimitiveIndex: uint32(len(asset.Meshes)),
			MaterialIndex:  uint32(len(asset.Materials)),
			Transform:      mgl32.Translate3D(center.X(), lo.Y(), center.Z()),
		}),
		scene.WithLights(demoLights()...),
		scene.WithCamera(orbitCamera(center, size*1.5)),
		scene.WithEnvironment(scene.DefaultEnvironment()),
	)
	if cfg.Render.LightVolume {
		margin := mgl32.Vec3{size, size, size}.Mul(0.25)
		vol, err := light.GridVolume(lo.Sub(margin), hi.Add(margin), [3]int{3, 3, 3})
		if err != nil {
			return nil, err
		}
		options = append(options, scene.WithLightVolume(vol))
	}
	return scene.NewScene(asset.Name, options...), nil
}

func orbitCamera(target mgl32.Vec3, radius float32) camera.Camera {
	return camera.NewCamera(
		camera.WithFov(float32(60*math.Pi/180)),
		camera.WithClipPlanes(0.1, max(200, radius*20)),
		camera.WithController(camera.NewCameraController(
			camera.WithRadius(radius),
			camera.WithTarget(target),
			camera.WithElevation(0.45),
			camera.WithAzimuth(0.6),
			camera.WithRadiusBounds(radius/7, radius*6),
			camera.WithMouseSensitivity(0.003),
		)),
	)
}

// demoLights returns a warm sun and two colored point lights.
func demoLights() []light.Light {
	return []light.Light{
		light.NewLight(light.LightTypeDirectional,
			light.WithDirection(mgl32.Vec3{-0.4, -1, -0.3}),
			light.WithColor(mgl32.Vec3{1, 0.95, 0.85}),
			light.WithIntensity(2.5),
		),
		light.NewLight(light.LightTypePoint,
			light.WithPosition(mgl32.Vec3{-5, 3, 3}),
			light.WithColor(mgl32.Vec3{0.2, 0.4, 1}),
			light.WithIntensity(6),
			light.WithRange(12),
		),
		light.NewLight(light.LightTypePoint,
			light.WithPosition(mgl32.Vec3{5, 3, -3}),
			light.WithColor(mgl32.Vec3{1, 0.5, 0.1}),
			light.WithIntensity(6),
			light.WithRange(12),
		),
	}
}
