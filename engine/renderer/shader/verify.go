package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
)

// VerifyStruct checks that the WGSL struct named like the contract declares the contract's
// fields in order with matching types. This catches hand-edited shader overrides that drift
// from the host record layout.
//
// Parameters:
//   - source: the pre-processed WGSL
//   - contract: the layout contract
//
// Returns:
//   - error: wraps layout.ErrLayoutMismatch on any difference
func VerifyStruct(source string, contract layout.Struct) error {
	ps, ok := findStruct(source, contract.Name())
	if !ok {
		return fmt.Errorf("%w: shader does not declare struct %s", layout.ErrLayoutMismatch, contract.Name())
	}

	want := contract.Fields()
	if len(ps.fields) != len(want) {
		return fmt.Errorf("%w: shader struct %s has %d fields, contract has %d", layout.ErrLayoutMismatch, ps.name, len(ps.fields), len(want))
	}
	for i, f := range ps.fields {
		if f.name != want[i].Name {
			return fmt.Errorf("%w: shader struct %s field %d is %q, contract expects %q", layout.ErrLayoutMismatch, ps.name, i, f.name, want[i].Name)
		}
		if f.typeName != want[i].Type.WGSL() {
			return fmt.Errorf("%w: shader field %s.%s is %s, contract expects %s", layout.ErrLayoutMismatch, ps.name, f.name, f.typeName, want[i].Type.WGSL())
		}
	}
	return nil
}

// DeclaresStruct reports whether the source declares a struct with the given name.
func DeclaresStruct(source, name string) bool {
	_, ok := findStruct(source, name)
	return ok
}
