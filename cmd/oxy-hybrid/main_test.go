package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/config"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/loader"
)

func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var got config.Config
	cmd := newRootCommand(func(_ context.Context, cfg config.Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return got, err
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg, err := parse(t, "--vsync=false", "--log-level", "debug", "--shader-dir", "shaders")
	require.NoError(t, err)
	assert.False(t, cfg.Window.VSync)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "shaders", cfg.Shader.Dir)
	assert.True(t, cfg.Shader.HotReload)
	assert.True(t, cfg.Render.RayTracing, "unset flags keep the default")
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nmode = \"path_tracing\"\n[window]\nvsync = false\n"), 0o644))

	cfg, err := parse(t, "--config", path, "--vsync")
	require.NoError(t, err)
	assert.Equal(t, config.ModePathTracing, cfg.Render.Mode)
	assert.True(t, cfg.Window.VSync)
}

func TestFlagsAreValidated(t *testing.T) {
	_, err := parse(t, "--mode", "path_tracing", "--ray-tracing=false")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestDemoScene(t *testing.T) {
	cfg := config.Default()
	cfg.Render.LightVolume = true
	s, err := demoScene(cfg)
	require.NoError(t, err)
	assert.Len(t, s.Materials(), 5)
	assert.Len(t, s.RenderObjects(), 13)
	assert.Len(t, s.Lights(), 3)
	assert.NotNil(t, s.Camera())
	assert.Equal(t, int32(0), s.Materials()[0].BaseColorTexture, "checkered floor")
}

func TestModelFlag(t *testing.T) {
	cfg, err := parse(t, "-m", "helmet.glb")
	require.NoError(t, err)
	assert.Equal(t, "helmet.glb", cfg.Scene.Model)
}

// writeTriangle writes a self-contained glTF holding one triangle and returns its path.
func writeTriangle(t *testing.T) string {
	t.Helper()
	var bin []byte
	for _, v := range []float32{0, 0, 0, 2, 0, 0, 0, 2, 0} {
		bin = binary.LittleEndian.AppendUint32(bin, math.Float32bits(v))
	}
	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "buffers": [{"byteLength": %d, "uri": "data:application/octet-stream;base64,%s"}],
  "bufferViews": [{"buffer": 0, "byteLength": %d}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "meshes": [{"name": "tri", "primitives": [{"attributes": {"POSITION": 0}}]}],
  "nodes": [{"mesh": 0, "translation": [0, 1, 0]}]
}`, len(bin), base64.StdEncoding.EncodeToString(bin), len(bin))

	path := filepath.Join(t.TempDir(), "tri.gltf")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestModelScene(t *testing.T) {
	cfg := config.Default()
	cfg.Scene.Model = writeTriangle(t)
	cfg.Render.LightVolume = true

	s, err := modelScene(cfg, loader.NewLoader())
	require.NoError(t, err)
	objects := s.RenderObjects()
	require.Len(t, objects, 2, "model and floor")
	assert.Equal(t, uint32(1), objects[1].PrimitiveIndex)
	assert.Equal(t, uint32(1), objects[1].MaterialIndex, "floor follows the default material")
	assert.Equal(t, "floor", s.Materials()[1].Name)
	assert.Len(t, s.Lights(), 3)

	cfg.Scene.Model = filepath.Join(t.TempDir(), "missing.glb")
	_, err = modelScene(cfg, loader.NewLoader())
	assert.Error(t, err)
}
