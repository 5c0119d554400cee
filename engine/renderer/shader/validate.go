package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// ErrInvalidWGSL is returned by Validate when the WGSL front end rejects a source.
var ErrInvalidWGSL = errors.New("invalid WGSL")

// Validate compiles WGSL through naga and discards the output, surfacing syntax and type
// errors before a device pipeline is created. Device drivers report errors late and with poor
// locations; naga reports them with line information.
//
// Parameters:
//   - source: the pre-processed WGSL
//
// Returns:
//   - error: wraps ErrInvalidWGSL with the compiler diagnostic
func Validate(source string) error {
	if _, err := naga.Compile(source); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWGSL, err)
	}
	return nil
}
