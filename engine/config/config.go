// Package config holds the renderer configuration and loads it from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full application configuration.
type Config struct {
	Window      Window      `toml:"window" yaml:"window"`
	Render      Render      `toml:"render" yaml:"render"`
	PathTracing PathTracing `toml:"path_tracing" yaml:"path_tracing"`
	Shader      Shader      `toml:"shader" yaml:"shader"`
	Scene       Scene       `toml:"scene" yaml:"scene"`
	Log         Log         `toml:"log" yaml:"log"`
	Profiling   Profiling   `toml:"profiling" yaml:"profiling"`
}

// Window configures the platform window and presentation.
type Window struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
	VSync  bool   `toml:"vsync" yaml:"vsync"`
}

// Render configures the hybrid renderer.
type Render struct {
	// Mode is the initial render mode, "hybrid" or "path_tracing".
	Mode        string `toml:"mode" yaml:"mode"`
	RayTracing  bool   `toml:"ray_tracing" yaml:"ray_tracing"`
	LightVolume bool   `toml:"light_volume" yaml:"light_volume"`
	// MinImageCount is the swapchain image count requested from the surface, which also
	// bounds the frames in flight.
	MinImageCount uint32    `toml:"min_image_count" yaml:"min_image_count"`
	LightingTile  [2]uint32 `toml:"lighting_tile" yaml:"lighting_tile"`
}

// PathTracing configures the path tracer and probe capture.
type PathTracing struct {
	TraceTile        [2]uint32 `toml:"trace_tile" yaml:"trace_tile"`
	ProbeExtent      uint32    `toml:"probe_extent" yaml:"probe_extent"`
	ProbeSampleCount uint32    `toml:"probe_sample_count" yaml:"probe_sample_count"`
	MaxBounces       uint32    `toml:"max_bounces" yaml:"max_bounces"`
	// BakeLightVolume captures the light volume probes with the path tracer once the scene
	// is registered. Without it the volume keeps the environment irradiance until baked
	// with the L key.
	BakeLightVolume bool `toml:"bake_light_volume" yaml:"bake_light_volume"`
}

// Shader configures shader loading.
type Shader struct {
	// Dir overrides the embedded shader sources with files from a directory. Empty uses the
	// sources built into the binary.
	Dir       string `toml:"dir" yaml:"dir"`
	HotReload bool   `toml:"hot_reload" yaml:"hot_reload"`
	Validate  bool   `toml:"validate" yaml:"validate"`
}

// Scene selects what the demo binary renders.
type Scene struct {
	// Model is a .gltf or .glb file shown instead of the built-in demo objects.
	Model string `toml:"model" yaml:"model"`
	// MaxTextureSize bounds the longest edge of imported textures, 0 for no limit.
	MaxTextureSize uint32 `toml:"max_texture_size" yaml:"max_texture_size"`
}

// Log configures the engine logger.
type Log struct {
	Level string `toml:"level" yaml:"level"`
}

// Profiling configures the periodic frame statistics report.
type Profiling struct {
	Enabled         bool    `toml:"enabled" yaml:"enabled"`
	IntervalSeconds float64 `toml:"interval_seconds" yaml:"interval_seconds"`
}

// Render modes accepted by Render.Mode.
const (
	ModeHybrid      = "hybrid"
	ModePathTracing = "path_tracing"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Window: Window{Title: "oxy-hybrid", Width: 1280, Height: 720, VSync: true},
		Render: Render{
			Mode:          ModeHybrid,
			RayTracing:    true,
			MinImageCount: 3,
			LightingTile:  [2]uint32{8, 8},
		},
		PathTracing: PathTracing{
			TraceTile:        [2]uint32{8, 8},
			ProbeExtent:      64,
			ProbeSampleCount: 16,
			MaxBounces:       4,
			BakeLightVolume:  true,
		},
		Shader:    Shader{Validate: true},
		Scene:     Scene{MaxTextureSize: 1024},
		Log:       Log{Level: "info"},
		Profiling: Profiling{IntervalSeconds: 1},
	}
}

// Load reads path over Default. The format is chosen by extension: .toml, .yaml or .yml.
//
// Parameters:
//   - path: the configuration file
//
// Returns:
//   - Config: the merged and validated configuration
//   - error: read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext over Default and validates the result.
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config: unsupported format %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Window.Width < 0 || c.Window.Height < 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d is negative", c.Window.Width, c.Window.Height))
	}
	if c.Render.Mode != ModeHybrid && c.Render.Mode != ModePathTracing {
		errs = append(errs, fmt.Errorf("render.mode %q is not %q or %q", c.Render.Mode, ModeHybrid, ModePathTracing))
	}
	if c.Render.Mode == ModePathTracing && !c.Render.RayTracing {
		errs = append(errs, errors.New("render.mode path_tracing requires render.ray_tracing"))
	}
	if c.Render.MinImageCount < 2 {
		errs = append(errs, fmt.Errorf("render.min_image_count %d is below 2", c.Render.MinImageCount))
	}
	for name, tile := range map[string][2]uint32{
		"render.lighting_tile":    c.Render.LightingTile,
		"path_tracing.trace_tile": c.PathTracing.TraceTile,
	} {
		if tile[0] == 0 || tile[1] == 0 {
			errs = append(errs, fmt.Errorf("%s %v has a zero axis", name, tile))
		}
	}
	if c.PathTracing.ProbeExtent == 0 || c.PathTracing.ProbeSampleCount == 0 {
		errs = append(errs, errors.New("path_tracing probe extent and sample count must be positive"))
	}
	if c.Shader.HotReload && c.Shader.Dir == "" {
		errs = append(errs, errors.New("shader.hot_reload requires shader.dir"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Profiling.Enabled && c.Profiling.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("profiling.interval_seconds %v must be positive", c.Profiling.IntervalSeconds))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// SlogLevel parses Level into a slog.Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
