// Package shader loads WGSL modules for the render stages. A Manager pre-processes a shader file
// (includes, conditionals, defines, specialization), optionally validates the result, reflects
// its descriptor interface and compiles it on the device.
package shader

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// ErrCompile is wrapped by every failure to produce a shader module.
var ErrCompile = errors.New("shader: compile failed")

//go:embed wgsl
var embedded embed.FS

// Embedded returns the shader sources built into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "wgsl")
	if err != nil {
		panic(err)
	}
	return sub
}

// SourceFS returns the file system shaders are loaded from: dir when set, the embedded sources
// otherwise.
func SourceFS(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Module is a compiled shader module with its reflected interface.
type Module struct {
	Reflection

	// Path is the shader file the module was built from.
	Path string
	// Stage is the stage the module was compiled for.
	Stage gpu.ShaderStage
	// Source is the pre-processed WGSL source.
	Source string
	// Files lists the shader files the module depends on.
	Files []string

	handle gpu.ShaderModule
}

// Handle returns the device module, nil after DestroyShaderModule.
func (m *Module) Handle() gpu.ShaderModule {
	return m.handle
}

// Binding returns the reflected binding with the given name.
func (m *Module) Binding(name string) (gpu.Binding, bool) {
	for _, b := range m.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return gpu.Binding{}, false
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(m *Manager)

// WithHeader registers an include header in addition to the built-in layouts.
//
// Parameters:
//   - name: the include name used by //@oxy:include
//   - source: the WGSL text injected
//
// Returns:
//   - ManagerOption: option function to apply
func WithHeader(name, source string) ManagerOption {
	return func(m *Manager) {
		m.headers[name] = source
	}
}

// WithValidator validates every pre-processed source before it reaches the device.
func WithValidator(v Validator) ManagerOption {
	return func(m *Manager) {
		m.validator = v
	}
}

// Manager creates and destroys shader modules on one device.
type Manager struct {
	dev       gpu.Device
	fsys      fs.FS
	headers   map[string]string
	validator Validator
	pp        *PreProcessor

	mu   sync.Mutex
	live map[*Module]struct{}
}

// NewManager creates a shader manager.
//
// Parameters:
//   - dev: the device modules are compiled on
//   - fsys: the shader file system, see SourceFS
//   - options: functional options
//
// Returns:
//   - *Manager: the manager
func NewManager(dev gpu.Device, fsys fs.FS, options ...ManagerOption) *Manager {
	m := &Manager{
		dev:     dev,
		fsys:    fsys,
		headers: make(map[string]string),
		live:    make(map[*Module]struct{}),
	}
	for _, opt := range options {
		opt(m)
	}
	m.pp = NewPreProcessor(fsys, m.headers)
	return m
}

// CreateShaderModule pre-processes, validates, reflects and compiles one stage of a shader file.
//
// Parameters:
//   - stage: the stage to compile
//   - path: the shader file
//   - defines: constants and conditional switches
//   - spec: values for override declarations
//
// Returns:
//   - *Module: the compiled module, destroyed with DestroyShaderModule
//   - error: an error wrapping ErrCompile
func (m *Manager) CreateShaderModule(stage gpu.ShaderStage, path string, defines Defines, spec Specialization) (*Module, error) {
	processed, err := m.pp.Process(path, defines, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if m.validator != nil {
		if err := m.validator.Validate(path, processed.Source); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompile, err)
		}
	}
	refl, err := Reflect(processed.Source, stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompile, path, err)
	}

	handle, err := m.dev.CreateShaderModule(gpu.ShaderModuleDesc{
		Label:      fmt.Sprintf("%s:%s", path, stage),
		Stage:      stage,
		Source:     processed.Source,
		EntryPoint: refl.EntryPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompile, path, err)
	}

	mod := &Module{
		Reflection: refl,
		Path:       path,
		Stage:      stage,
		Source:     processed.Source,
		Files:      processed.Files,
		handle:     handle,
	}
	m.mu.Lock()
	m.live[mod] = struct{}{}
	m.mu.Unlock()

	common.Logger().Debug("shader module created", "path", path, "stage", stage, "entry", refl.EntryPoint, "bindings", len(refl.Bindings))
	return mod, nil
}

// DestroyShaderModule releases the device module. Destroying nil or an already destroyed module
// does nothing.
func (m *Manager) DestroyShaderModule(mod *Module) {
	if mod == nil || mod.handle == nil {
		return
	}
	mod.handle.Release()
	mod.handle = nil

	m.mu.Lock()
	delete(m.live, mod)
	m.mu.Unlock()
}

// Live returns the number of modules created and not yet destroyed.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// MergeBindings combines the bindings of the modules of one pipeline. Bindings declared by
// several modules must agree on name and type; their stages are combined.
//
// Parameters:
//   - modules: the modules of the pipeline, nil entries are skipped
//
// Returns:
//   - []gpu.Binding: the bindings sorted by set then binding
//   - error: an error if two modules declare the same slot differently
func MergeBindings(modules ...*Module) ([]gpu.Binding, error) {
	var merged []gpu.Binding
	index := make(map[[2]uint32]int)
	for _, mod := range modules {
		if mod == nil {
			continue
		}
		for _, b := range mod.Bindings {
			key := [2]uint32{b.Set, b.Binding}
			i, ok := index[key]
			if !ok {
				index[key] = len(merged)
				merged = append(merged, b)
				continue
			}
			prev := &merged[i]
			if prev.Name != b.Name || prev.Type != b.Type {
				return nil, fmt.Errorf("set %d binding %d is %s %s in one stage and %s %s in %s",
					b.Set, b.Binding, prev.Name, prev.Type, b.Name, b.Type, mod.Path)
			}
			prev.Stages |= b.Stages
			prev.MinSize = max(prev.MinSize, b.MinSize)
		}
	}
	sortBindings(merged)
	return merged, nil
}

// PushConstants returns the push constant range of the modules of one pipeline.
func PushConstants(modules ...*Module) gpu.PushConstantRange {
	var r gpu.PushConstantRange
	for _, mod := range modules {
		if mod == nil || mod.PushConstantSize == 0 {
			continue
		}
		r.Stages |= mod.Stage
		r.Size = max(r.Size, mod.PushConstantSize)
	}
	return r
}
