package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// Validator checks a pre-processed source before it is compiled on the device.
type Validator interface {
	Validate(name, source string) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(name, source string) error

func (f ValidatorFunc) Validate(name, source string) error {
	return f(name, source)
}

// unsupportedMarkers identify naga failures about language features the frontend lacks rather
// than errors in the source.
var unsupportedMarkers = []string{"not supported", "unsupported", "not implemented", "not yet"}

// NagaValidator compiles the source with the naga WGSL frontend so a broken edit is reported with
// a source diagnostic before it reaches the device. Failures caused by features naga does not
// implement are logged and let through.
type NagaValidator struct{}

func (NagaValidator) Validate(name, source string) error {
	if _, err := naga.Compile(source); err != nil {
		msg := strings.ToLower(err.Error())
		for _, marker := range unsupportedMarkers {
			if strings.Contains(msg, marker) {
				common.Logger().Debug("naga skipped shader", "path", name, "reason", err)
				return nil
			}
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
