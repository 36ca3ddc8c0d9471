// annotations.go defines the directives understood by the WGSL pre-processor. Directives are
// whole lines: the include annotation is a WGSL comment so unprocessed sources stay valid, and
// the conditional directives follow the C pre-processor spelling.
//
//	//@oxy:include camera          inject a registered header
//	//@oxy:include common.wgsl     inject a file relative to the including file
//	#ifdef RAY_TRACING_ENABLED     keep the following lines when the define is set
//	#ifndef RAY_TRACING_ENABLED    keep the following lines when the define is not set
//	#else
//	#endif
package shader

import (
	"fmt"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// directiveKind identifies the kind of directive parsed from a source line.
type directiveKind int

const (
	directiveNone directiveKind = iota
	directiveInclude
	directiveIfdef
	directiveIfndef
	directiveElse
	directiveEndif
)

var directiveNames = map[string]directiveKind{
	"#ifdef":  directiveIfdef,
	"#ifndef": directiveIfndef,
	"#else":   directiveElse,
	"#endif":  directiveEndif,
}

// directive is one parsed directive line.
type directive struct {
	kind directiveKind
	arg  string
	line int
}

// parseDirective parses a single source line. Lines that are not directives return a directive
// of kind directiveNone.
//
// Parameters:
//   - line: the raw source line
//   - lineNo: the 1-based line number, for error messages
//
// Returns:
//   - directive: the parsed directive
//   - error: an error for malformed or unknown directives
func parseDirective(line string, lineNo int) (directive, error) {
	trimmed := strings.TrimSpace(line)

	if comment, ok := strings.CutPrefix(trimmed, "//"); ok {
		body, ok := strings.CutPrefix(strings.TrimSpace(comment), annotationPrefix)
		if !ok {
			return directive{}, nil
		}
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return directive{}, fmt.Errorf("line %d: empty annotation", lineNo)
		}
		if fields[0] != "include" {
			return directive{}, fmt.Errorf("line %d: unknown annotation %s%s", lineNo, annotationPrefix, fields[0])
		}
		if len(fields) != 2 {
			return directive{}, fmt.Errorf("line %d: %sinclude takes exactly one argument", lineNo, annotationPrefix)
		}
		return directive{kind: directiveInclude, arg: fields[1], line: lineNo}, nil
	}

	if !strings.HasPrefix(trimmed, "#") {
		return directive{}, nil
	}
	fields := strings.Fields(trimmed)
	kind, ok := directiveNames[fields[0]]
	if !ok {
		return directive{}, fmt.Errorf("line %d: unknown directive %s", lineNo, fields[0])
	}
	d := directive{kind: kind, line: lineNo}
	switch kind {
	case directiveIfdef, directiveIfndef:
		if len(fields) != 2 {
			return directive{}, fmt.Errorf("line %d: %s takes exactly one name", lineNo, fields[0])
		}
		d.arg = fields[1]
	default:
		if len(fields) != 1 {
			return directive{}, fmt.Errorf("line %d: %s takes no arguments", lineNo, fields[0])
		}
	}
	return d, nil
}
