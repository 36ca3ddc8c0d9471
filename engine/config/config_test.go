package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseTOML(t *testing.T) {
	src := `
[window]
width = 1920
height = 1080
vsync = false

[render]
mode = "path_tracing"
lighting_tile = [16, 16]

[path_tracing]
bake_light_volume = false

[log]
level = "debug"
`
	cfg, err := Parse([]byte(src), ".toml")
	require.NoError(t, err)
	assert.Equal(t, 1920, cfg.Window.Width)
	assert.False(t, cfg.Window.VSync)
	assert.Equal(t, ModePathTracing, cfg.Render.Mode)
	assert.Equal(t, [2]uint32{16, 16}, cfg.Render.LightingTile)
	assert.False(t, cfg.PathTracing.BakeLightVolume)
	assert.True(t, Default().PathTracing.BakeLightVolume)
	assert.Equal(t, "oxy-hybrid", cfg.Window.Title, "unset keys keep their defaults")

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseYAML(t *testing.T) {
	src := `
render:
  ray_tracing: false
shader:
  dir: assets/shaders
  hot_reload: true
scene:
  model: models/helmet.glb
`
	cfg, err := Parse([]byte(src), "yml")
	require.NoError(t, err)
	assert.False(t, cfg.Render.RayTracing)
	assert.True(t, cfg.Shader.HotReload)
	assert.Equal(t, "assets/shaders", cfg.Shader.Dir)
	assert.Equal(t, "models/helmet.glb", cfg.Scene.Model)
	assert.Equal(t, uint32(1024), cfg.Scene.MaxTextureSize)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown mode":            func(c *Config) { c.Render.Mode = "raster" },
		"path tracing without rt": func(c *Config) { c.Render.Mode = ModePathTracing; c.Render.RayTracing = false },
		"one image":               func(c *Config) { c.Render.MinImageCount = 1 },
		"zero tile":               func(c *Config) { c.Render.LightingTile = [2]uint32{0, 8} },
		"bad level":               func(c *Config) { c.Log.Level = "loud" },
		"zero probe":              func(c *Config) { c.PathTracing.ProbeExtent = 0 },
		"hot reload without dir":  func(c *Config) { c.Shader.HotReload = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  title: probe\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "probe", cfg.Window.Title)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
	_, err = Parse(nil, ".json")
	assert.ErrorContains(t, err, "unsupported")
}
