package shader

import "github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"

// vertexFormatInfo holds the vertex format of a WGSL vertex attribute type and its byte size for offset calculation
type vertexFormatInfo struct {
	format gpu.VertexFormat
	size   uint32
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
// Used to compute MinSize for buffer bindings and the push constant size.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedDecl is one @group/@binding resource declaration.
type parsedDecl struct {
	group        uint32
	binding      uint32
	addressSpace string
	name         string
	typeName     string
}

// Reflection is everything derived from a processed WGSL source for one stage.
type Reflection struct {
	// EntryPoint is the name of the entry function of the stage.
	EntryPoint string

	// Bindings are the descriptor bindings, sorted by set then binding, excluding the push
	// constant block.
	Bindings []gpu.Binding

	// PushConstantSize is the byte size of the block declared at gpu.PushConstantSet, 0 if none.
	PushConstantSize uint32

	// WorkgroupSize is the @workgroup_size of compute entry points, [1,1,1] otherwise.
	WorkgroupSize [3]uint32

	// VertexInputs are the vertex buffer layouts of a vertex stage, one per input struct.
	VertexInputs []gpu.VertexInput
}
