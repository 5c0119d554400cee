package layout

import (
	"fmt"
	"reflect"
	"strings"
)

// Verify checks that the Go type T byte-matches the contract: same field count and order,
// same packed offsets, compatible element types and identical total size. Field names are
// compared ignoring case and underscores, so a Go field TextureIndex matches texture_index.
//
// Parameters:
//   - s: the layout contract
//
// Returns:
//   - error: nil when T matches, otherwise an error wrapping ErrLayoutMismatch
func Verify[T any](s Struct) error {
	return VerifyType(reflect.TypeFor[T](), s)
}

// VerifyType is the reflect.Type form of Verify.
//
// Parameters:
//   - t: the host record type, which must be a struct
//   - s: the layout contract
//
// Returns:
//   - error: nil when t matches, otherwise an error wrapping ErrLayoutMismatch
func VerifyType(t reflect.Type, s Struct) error {
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s is not a struct", ErrLayoutMismatch, t)
	}
	if uint64(t.Size()) != s.size {
		return fmt.Errorf("%w: %s is %d bytes, contract %s is %d bytes", ErrLayoutMismatch, t, t.Size(), s.name, s.size)
	}
	if t.NumField() != len(s.fields) {
		return fmt.Errorf("%w: %s has %d fields, contract %s has %d", ErrLayoutMismatch, t, t.NumField(), s.name, len(s.fields))
	}

	for i, want := range s.fields {
		got := t.Field(i)
		if normalizeName(got.Name) != normalizeName(want.Name) {
			return fmt.Errorf("%w: %s field %d is %q, contract expects %q", ErrLayoutMismatch, t, i, got.Name, want.Name)
		}
		if uint64(got.Offset) != want.Offset {
			return fmt.Errorf("%w: %s.%s at offset %d, contract expects %d", ErrLayoutMismatch, t, got.Name, got.Offset, want.Offset)
		}
		if !hostTypeMatches(got.Type, want.Type) {
			return fmt.Errorf("%w: %s.%s has host type %s, contract expects %s", ErrLayoutMismatch, t, got.Name, got.Type, want.Type)
		}
	}
	return nil
}

// hostTypeMatches reports whether a Go field type stores the given contract type.
func hostTypeMatches(t reflect.Type, ft FieldType) bool {
	switch ft {
	case FieldFloat32:
		return t.Kind() == reflect.Float32
	case FieldUint32:
		return t.Kind() == reflect.Uint32
	case FieldAddress:
		return t.Kind() == reflect.Uint64
	case FieldVec2:
		return isFloatArray(t, 2)
	case FieldVec3:
		return isFloatArray(t, 3)
	case FieldVec4:
		return isFloatArray(t, 4)
	case FieldMat4:
		return isFloatArray(t, 16)
	}
	return false
}

func isFloatArray(t reflect.Type, n int) bool {
	return t.Kind() == reflect.Array && t.Len() == n && t.Elem().Kind() == reflect.Float32
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
