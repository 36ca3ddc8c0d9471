package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {gpu.VertexFormatFloat32, 4},
	"vec2f":     {gpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {gpu.VertexFormatFloat32x2, 8},
	"vec3f":     {gpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {gpu.VertexFormatFloat32x3, 12},
	"vec4f":     {gpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {gpu.VertexFormatFloat32x4, 16},
	"u32":       {gpu.VertexFormatUint32, 4},
}

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension
var wgslSampledTextureMap = map[string]gpu.ViewDimension{
	"texture_2d":             gpu.ViewDimension2D,
	"texture_2d_array":       gpu.ViewDimension2DArray,
	"texture_cube":           gpu.ViewDimensionCube,
	"texture_depth_2d":       gpu.ViewDimension2D,
	"texture_depth_2d_array": gpu.ViewDimension2DArray,
	"texture_depth_cube":     gpu.ViewDimensionCube,
}

// wgslStorageTextureDimMap maps WGSL storage texture base names to their view dimension
var wgslStorageTextureDimMap = map[string]gpu.ViewDimension{
	"texture_storage_2d":       gpu.ViewDimension2D,
	"texture_storage_2d_array": gpu.ViewDimension2DArray,
}

// wgslTexelFormatMap maps WGSL texel format strings to the storage formats the device supports.
var wgslTexelFormatMap = map[string]gpu.Format{
	"rgba8unorm":  gpu.FormatRGBA8Unorm,
	"bgra8unorm":  gpu.FormatBGRA8Unorm,
	"rgba16float": gpu.FormatRGBA16Float,
	"rgba32float": gpu.FormatRGBA32Float,
	"r32float":    gpu.FormatR32Float,
}

// accelerationStructureTypes are the WGSL types bound as acceleration structures. The alias is
// declared by the software traversal header.
var accelerationStructureTypes = map[string]bool{
	"AccelerationStructure":  true,
	"acceleration_structure": true,
}

// pushConstantName is the variable name of the push constant block.
const pushConstantName = "push"

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// computeEntryRegex matches @compute functions and captures the entry point name
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 dimensions from @workgroup_size(x[, y[, z]]). Dimensions
	// may be integer literals or the names of constants declared in the module.
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\w+)\s*(?:,\s*(\w+)\s*(?:,\s*(\w+)\s*)?)?\)`)

	// constRegex captures module-scope integer constants used as workgroup dimensions.
	constRegex = regexp.MustCompile(`\bconst\s+(\w+)\s*(?::\s*\w+\s*)?=\s*(\d+)[ui]?\s*;`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	// or handle types: @group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// Reflect derives the entry point, descriptor bindings, push constant size, workgroup size and
// vertex inputs of one stage from preprocessed WGSL source. Every binding is given the stage as
// its visibility; MergeBindings combines the stages of a pipeline.
//
// Parameters:
//   - source: the preprocessed WGSL source
//   - stage: the stage whose entry point to look up
//
// Returns:
//   - Reflection: the reflected interface of the stage
//   - error: an error if the entry point is missing or a binding has an unsupported type
func Reflect(source string, stage gpu.ShaderStage) (Reflection, error) {
	cleaned := stripComments(source)

	r := Reflection{
		EntryPoint:    parseEntryPoint(cleaned, stage),
		WorkgroupSize: [3]uint32{1, 1, 1},
	}
	if r.EntryPoint == "" {
		return Reflection{}, fmt.Errorf("no %s entry point", stage)
	}
	switch stage {
	case gpu.ShaderStageCompute, gpu.ShaderStageRayGen:
		wg, err := parseWorkgroupSize(cleaned)
		if err != nil {
			return Reflection{}, err
		}
		r.WorkgroupSize = wg
	case gpu.ShaderStageVertex:
		r.VertexInputs = parseVertexLayouts(cleaned)
	}

	structSizes := computeStructSizes(parseStructBlocks(cleaned))
	seen := make(map[[2]uint32]string)
	for _, d := range parseBindGroupDecls(cleaned) {
		key := [2]uint32{d.group, d.binding}
		if other, ok := seen[key]; ok {
			return Reflection{}, fmt.Errorf("@group(%d) @binding(%d) declared by both %s and %s", d.group, d.binding, other, d.name)
		}
		seen[key] = d.name

		if d.group == gpu.PushConstantSet {
			if d.name != pushConstantName || d.addressSpace != "uniform" {
				return Reflection{}, fmt.Errorf("@group(%d) is reserved for var<uniform> %s, found %s", gpu.PushConstantSet, pushConstantName, d.name)
			}
			layout, ok := resolveTypeLayout(d.typeName, structSizes)
			if !ok {
				return Reflection{}, fmt.Errorf("push constant type %s has no fixed size", d.typeName)
			}
			r.PushConstantSize = uint32(layout.size)
			continue
		}

		b, err := classifyResource(d, stage)
		if err != nil {
			return Reflection{}, err
		}
		if b.Type.IsBuffer() {
			if layout, ok := resolveTypeLayout(d.typeName, structSizes); ok {
				b.MinSize = layout.size
			}
		}
		r.Bindings = append(r.Bindings, b)
	}
	sortBindings(r.Bindings)
	return r, nil
}

func sortBindings(bindings []gpu.Binding) {
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Set != bindings[j].Set {
			return bindings[i].Set < bindings[j].Set
		}
		return bindings[i].Binding < bindings[j].Binding
	})
}

// parseBindGroupDecls extracts all @group(N) @binding(M) resource declarations in source order.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedDecl: the declarations found
func parseBindGroupDecls(source string) []parsedDecl {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(source, -1)
	decls := make([]parsedDecl, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		decls = append(decls, parsedDecl{
			group:        uint32(group),
			binding:      uint32(binding),
			addressSpace: strings.TrimSpace(match[3]),
			name:         strings.TrimSpace(match[4]),
			typeName:     strings.TrimSpace(match[5]),
		})
	}
	return decls
}

// parseVertexLayouts extracts vertex buffer layouts from WGSL source code.
// Only structs taken as parameters of the @vertex entry point are considered, and of those only
// pure vertex inputs (@location attributes but no @builtin fields). Structs containing
// unrecognized WGSL types are skipped.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []gpu.VertexInput: vertex layouts in parameter order
func parseVertexLayouts(source string) []gpu.VertexInput {
	structs := make(map[string]parsedStruct)
	for _, ps := range parseStructBlocks(source) {
		structs[ps.name] = ps
	}

	var result []gpu.VertexInput
	for _, param := range vertexEntryParams(source) {
		_, typeName, ok := strings.Cut(param, ":")
		if !ok {
			continue
		}
		ps, ok := structs[strings.TrimSpace(typeName)]
		if !ok || !isVertexInputStruct(ps) {
			continue
		}
		layout, ok := buildVertexInput(ps)
		if !ok {
			continue
		}
		result = append(result, layout)
	}
	return result
}

// vertexEntryParams returns the parameter declarations of the @vertex entry point.
func vertexEntryParams(source string) []string {
	loc := vertexEntryRegex.FindStringIndex(source)
	if loc == nil {
		return nil
	}
	open := strings.IndexByte(source[loc[1]:], '(')
	if open < 0 {
		return nil
	}
	start := loc[1] + open + 1
	depth := 1
	for i := start; i < len(source); i++ {
		switch source[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				var params []string
				for _, p := range splitAtTopLevelCommas(source[start:i]) {
					if p = strings.TrimSpace(p); p != "" {
						params = append(params, p)
					}
				}
				return params
			}
		}
	}
	return nil
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1, as in WGSL. Named dimensions are resolved
// against module-scope constants, which is how baked specialization constants appear.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
//   - error: an error if a named dimension is not an integer constant
func parseWorkgroupSize(source string) ([3]uint32, error) {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(source)
	if match == nil {
		return result, nil
	}

	consts := make(map[string]uint32)
	for _, c := range constRegex.FindAllStringSubmatch(source, -1) {
		if v, err := strconv.ParseUint(c[2], 10, 32); err == nil {
			consts[c[1]] = uint32(v)
		}
	}

	for axis := range 3 {
		dim := match[axis+1]
		if dim == "" {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimRight(dim, "ui"), 10, 32); err == nil {
			result[axis] = uint32(v)
			continue
		}
		v, ok := consts[dim]
		if !ok {
			return result, fmt.Errorf("workgroup size %s is not an integer constant", dim)
		}
		result[axis] = v
	}
	return result, nil
}

// parseEntryPoint extracts the entry point function name for the given stage from WGSL source.
// Ray generation stages are emulated with compute entry points. Returns an empty string if no
// matching entry point annotation is found.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//   - stage: the stage to search for
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, stage gpu.ShaderStage) string {
	var re *regexp.Regexp
	switch stage {
	case gpu.ShaderStageVertex:
		re = vertexEntryRegex
	case gpu.ShaderStageFragment:
		re = fragmentEntryRegex
	case gpu.ShaderStageCompute, gpu.ShaderStageRayGen:
		re = computeEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(source); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
