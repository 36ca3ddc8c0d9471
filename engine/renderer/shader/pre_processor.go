// pre_processor.go implements the Oxy WGSL pre-processor. It expands include annotations from
// a header registry or the shader file system, evaluates conditional blocks against the
// defines of a module, prepends the defines as WGSL constants and bakes specialization
// constants into the override declarations they replace.
package shader

import (
	"fmt"
	"io/fs"
	"maps"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/camera"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/light"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/accel"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// Defines are compile-time values of a module. Every define with a non-nil value is emitted as
// a WGSL constant; #ifdef tests presence, where a define set to false counts as absent.
type Defines map[string]any

// Specialization holds values for override declarations. Overrides are baked into constants;
// overrides without a value keep their default.
type Specialization map[string]any

var (
	// identifierRegex matches a WGSL identifier.
	identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// overrideRegex captures the name, optional type and optional default of an override declaration.
	overrideRegex = regexp.MustCompile(`(?m)^[ \t]*(?:@id\(\s*\d+\s*\)\s*)?override\s+(\w+)\s*(?::\s*(\w+)\s*)?(?:=\s*([^;]+?)\s*)?;`)
)

// defaultHeaders returns the WGSL headers shared with the Go GPU layouts, keyed by include name.
func defaultHeaders() map[string]string {
	return map[string]string{
		"camera":       camera.GPUCameraUniformSource,
		"light":        light.GPULightSource,
		"light_volume": light.GPULightVolumeSource,
		"material":     scene.GPUMaterialSource,
		"vertex":       scene.GPUVertexSource,
		"accel":        accel.GPUAccelSource,
	}
}

// PreProcessor turns shader files into complete WGSL modules.
type PreProcessor struct {
	fsys    fs.FS
	headers map[string]string
}

// NewPreProcessor creates a pre-processor reading files from fsys with the built-in headers plus
// any extra headers registered.
//
// Parameters:
//   - fsys: the shader file system; include paths are relative to the including file
//   - extra: additional headers by include name, overriding built-in ones
//
// Returns:
//   - *PreProcessor: the ready-to-use pre-processor
func NewPreProcessor(fsys fs.FS, extra map[string]string) *PreProcessor {
	headers := defaultHeaders()
	maps.Copy(headers, extra)
	return &PreProcessor{fsys: fsys, headers: headers}
}

// Processed is the result of pre-processing one shader file.
type Processed struct {
	// Source is the complete WGSL module.
	Source string
	// Files lists every file read, the root first.
	Files []string
}

// Process expands the shader file at name.
//
// Parameters:
//   - name: the slash-separated path of the shader in the file system
//   - defines: constants and conditional switches of the module
//   - spec: values for override declarations
//
// Returns:
//   - Processed: the module source and the files it was built from
//   - error: a read, directive, define or specialization error
func (p *PreProcessor) Process(name string, defines Defines, spec Specialization) (Processed, error) {
	prelude, err := definePrelude(defines)
	if err != nil {
		return Processed{}, err
	}

	e := &expansion{pp: p, defines: defines, included: make(map[string]bool)}
	e.included[name] = true
	if err := e.file(name); err != nil {
		return Processed{}, err
	}

	source, err := specialize(prelude+e.out.String(), spec)
	if err != nil {
		return Processed{}, fmt.Errorf("%s: %w", name, err)
	}
	return Processed{Source: source, Files: e.files}, nil
}

// expansion is the state of one Process call.
type expansion struct {
	pp       *PreProcessor
	defines  Defines
	included map[string]bool
	stack    []string
	files    []string
	out      strings.Builder
}

// condFrame is one open conditional block.
type condFrame struct {
	parent   bool
	taken    bool
	active   bool
	elseSeen bool
	line     int
}

func (e *expansion) file(name string) error {
	data, err := fs.ReadFile(e.pp.fsys, name)
	if err != nil {
		return err
	}
	e.files = append(e.files, name)
	e.stack = append(e.stack, name)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()
	return e.text(name, string(data))
}

func (e *expansion) defined(name string) bool {
	v, ok := e.defines[name]
	if !ok {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// text copies the active lines of one source, expanding includes.
func (e *expansion) text(name, src string) error {
	var conds []condFrame
	active := func() bool {
		return len(conds) == 0 || conds[len(conds)-1].active
	}

	lines := strings.Split(src, "\n")
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, line := range lines {
		d, err := parseDirective(line, i+1)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		switch d.kind {
		case directiveNone:
			if active() {
				e.out.WriteString(line)
				e.out.WriteByte('\n')
			}
		case directiveIfdef, directiveIfndef:
			cond := e.defined(d.arg)
			if d.kind == directiveIfndef {
				cond = !cond
			}
			parent := active()
			conds = append(conds, condFrame{parent: parent, taken: cond, active: parent && cond, line: d.line})
		case directiveElse:
			if len(conds) == 0 || conds[len(conds)-1].elseSeen {
				return fmt.Errorf("%s: line %d: unexpected #else", name, d.line)
			}
			top := &conds[len(conds)-1]
			top.elseSeen = true
			top.active = top.parent && !top.taken
		case directiveEndif:
			if len(conds) == 0 {
				return fmt.Errorf("%s: line %d: unexpected #endif", name, d.line)
			}
			conds = conds[:len(conds)-1]
		case directiveInclude:
			if !active() {
				continue
			}
			if err := e.include(name, d); err != nil {
				return err
			}
		}
	}

	if len(conds) > 0 {
		return fmt.Errorf("%s: line %d: unterminated conditional", name, conds[len(conds)-1].line)
	}
	return nil
}

func (e *expansion) include(from string, d directive) error {
	if header, ok := e.pp.headers[d.arg]; ok {
		key := "header:" + d.arg
		if e.included[key] {
			return nil
		}
		e.included[key] = true
		return e.text(d.arg, header)
	}

	target := path.Join(path.Dir(from), d.arg)
	if slices.Contains(e.stack, target) {
		return fmt.Errorf("%s: line %d: include cycle through %s", from, d.line, target)
	}
	if e.included[target] {
		return nil
	}
	e.included[target] = true
	if err := e.file(target); err != nil {
		return fmt.Errorf("%s: line %d: include %s: %w", from, d.line, d.arg, err)
	}
	return nil
}

// definePrelude renders the defines with values as WGSL constants in name order.
func definePrelude(defines Defines) (string, error) {
	var sb strings.Builder
	for _, name := range slices.Sorted(maps.Keys(defines)) {
		if !identifierRegex.MatchString(name) {
			return "", fmt.Errorf("define %q is not an identifier", name)
		}
		v := defines[name]
		if v == nil {
			continue
		}
		lit, err := literal(v, "")
		if err != nil {
			return "", fmt.Errorf("define %s: %w", name, err)
		}
		fmt.Fprintf(&sb, "const %s = %s;\n", name, lit)
	}
	return sb.String(), nil
}

// specialize replaces every override declaration with a constant holding its specialized or
// default value.
func specialize(source string, spec Specialization) (string, error) {
	used := make(map[string]bool, len(spec))
	var sb strings.Builder
	last := 0
	for _, m := range overrideRegex.FindAllStringSubmatchIndex(source, -1) {
		name := source[m[2]:m[3]]
		var typ, def string
		if m[4] >= 0 {
			typ = source[m[4]:m[5]]
		}
		if m[6] >= 0 {
			def = source[m[6]:m[7]]
		}

		value := def
		if v, ok := spec[name]; ok {
			lit, err := literal(v, typ)
			if err != nil {
				return "", fmt.Errorf("specialization %s: %w", name, err)
			}
			value = lit
			used[name] = true
		}
		if value == "" {
			return "", fmt.Errorf("override %s has no value", name)
		}

		sb.WriteString(source[last:m[0]])
		if typ != "" {
			fmt.Fprintf(&sb, "const %s: %s = %s;", name, typ, value)
		} else {
			fmt.Fprintf(&sb, "const %s = %s;", name, value)
		}
		last = m[1]
	}
	sb.WriteString(source[last:])

	for _, name := range slices.Sorted(maps.Keys(spec)) {
		if !used[name] {
			return "", fmt.Errorf("specialization %s matches no override", name)
		}
	}
	return sb.String(), nil
}

// literal renders a Go value as a WGSL literal. An empty typ infers the WGSL type from the Go
// type: unsigned integers become u32, signed integers i32, floats f32.
func literal(v any, typ string) (string, error) {
	if b, ok := v.(bool); ok {
		if typ != "" && typ != "bool" {
			return "", fmt.Errorf("bool value for %s", typ)
		}
		return strconv.FormatBool(b), nil
	}

	if typ == "" {
		switch v.(type) {
		case uint, uint8, uint16, uint32, uint64:
			typ = "u32"
		case int, int8, int16, int32, int64:
			typ = "i32"
		case float32, float64:
			typ = "f32"
		default:
			return "", fmt.Errorf("unsupported value %v (%T)", v, v)
		}
	}

	switch typ {
	case "u32":
		n, ok := integer(v)
		if !ok || n < 0 {
			return "", fmt.Errorf("%v is not a u32", v)
		}
		return strconv.FormatInt(n, 10) + "u", nil
	case "i32":
		n, ok := integer(v)
		if !ok {
			return "", fmt.Errorf("%v is not an i32", v)
		}
		return strconv.FormatInt(n, 10) + "i", nil
	case "f32":
		f, ok := float(v)
		if !ok {
			return "", fmt.Errorf("%v is not an f32", v)
		}
		return strconv.FormatFloat(f, 'g', -1, 32) + "f", nil
	default:
		return "", fmt.Errorf("unsupported type %s", typ)
	}
}

func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func float(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		n, ok := integer(v)
		return float64(n), ok
	}
}
