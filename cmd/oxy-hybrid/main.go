// Command oxy-hybrid opens a window and renders a demo scene, or a glTF model given with
// --model, with the hybrid renderer.
//
// Keys: T toggles path tracing, R reloads shaders, P captures a radiance probe at the camera,
// L rebakes the light volume, WASD/QE move and the left mouse button orbits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Carmen-Shannon/oxy-hybrid/engine"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/config"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/loader"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

type flags struct {
	config     string
	rayTracing bool
	vsync      bool
	logLevel   string
	mode       string
	shaderDir  string
	profile    bool
	model      string
}

func main() {
	if err := newRootCommand(run).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command; start receives the merged configuration.
func newRootCommand(start func(context.Context, config.Config) error) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "oxy-hybrid",
		Short:        "Render a demo scene with the hybrid rasterizer and path tracer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return start(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "configuration file (.toml, .yaml or .yml)")
	cmd.Flags().BoolVar(&f.rayTracing, "ray-tracing", true, "enable the software path tracer")
	cmd.Flags().BoolVar(&f.vsync, "vsync", true, "wait for vertical sync when presenting")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	cmd.Flags().StringVar(&f.mode, "mode", config.ModeHybrid, "initial render mode: hybrid or path_tracing")
	cmd.Flags().StringVar(&f.shaderDir, "shader-dir", "", "load shaders from a directory and reload them on change")
	cmd.Flags().BoolVar(&f.profile, "profile", false, "log frame statistics every second")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "render a .gltf or .glb file instead of the demo objects")
	return cmd
}

// loadConfig reads the config file, then applies the flags the user set explicitly.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return config.Config{}, err
		}
	}

	set := cmd.Flags().Changed
	if set("ray-tracing") {
		cfg.Render.RayTracing = f.rayTracing
	}
	if set("vsync") {
		cfg.Window.VSync = f.vsync
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("mode") {
		cfg.Render.Mode = f.mode
	}
	if set("shader-dir") {
		cfg.Shader.Dir = f.shaderDir
		cfg.Shader.HotReload = f.shaderDir != ""
	}
	if set("profile") {
		cfg.Profiling.Enabled = f.profile
	}
	if set("model") {
		cfg.Scene.Model = f.model
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var (
		s   *scene.Scene
		err error
	)
	if cfg.Scene.Model != "" {
		s, err = modelScene(cfg, loader.NewLoader(loader.WithMaxTextureSize(cfg.Scene.MaxTextureSize)))
	} else {
		s, err = demoScene(cfg)
	}
	if err != nil {
		return err
	}
	e, err := engine.NewEngine(engine.WithConfig(cfg), engine.WithScene(s))
	if err != nil {
		s.Release()
		return fmt.Errorf("oxy-hybrid: %w", err)
	}
	runErr := e.Run(ctx)
	if err := e.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
