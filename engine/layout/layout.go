// Package layout defines the single source of truth for every record that is shared between
// host code and shader code. A Struct descriptor lists fields in order with packed (scalar)
// offsets; the same descriptor drives Go struct verification, buffer strides, WGSL struct
// declarations and the WGSL loader functions that read records out of the device heap.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLayoutMismatch is returned whenever a host type or shader declaration disagrees with a contract.
var ErrLayoutMismatch = errors.New("layout mismatch")

// FieldType enumerates the scalar, vector and matrix types allowed in a layout contract.
type FieldType int

const (
	// FieldFloat32 is a single f32.
	FieldFloat32 FieldType = iota

	// FieldUint32 is a single u32.
	FieldUint32

	// FieldVec2 is vec2<f32>.
	FieldVec2

	// FieldVec3 is vec3<f32>, packed to 12 bytes.
	FieldVec3

	// FieldVec4 is vec4<f32>.
	FieldVec4

	// FieldMat4 is mat4x4<f32>, column-major.
	FieldMat4

	// FieldAddress is a 64-bit device address, declared as vec2<u32> in WGSL (low word first).
	FieldAddress
)

// Size returns the packed byte size of the field type.
func (t FieldType) Size() uint64 {
	switch t {
	case FieldFloat32, FieldUint32:
		return 4
	case FieldVec2, FieldAddress:
		return 8
	case FieldVec3:
		return 12
	case FieldVec4:
		return 16
	case FieldMat4:
		return 64
	}
	return 0
}

// Words returns the number of 32-bit words occupied by the field type.
func (t FieldType) Words() uint64 {
	return t.Size() / 4
}

// WGSL returns the WGSL type name used in generated declarations.
func (t FieldType) WGSL() string {
	switch t {
	case FieldFloat32:
		return "f32"
	case FieldUint32:
		return "u32"
	case FieldVec2:
		return "vec2<f32>"
	case FieldVec3:
		return "vec3<f32>"
	case FieldVec4:
		return "vec4<f32>"
	case FieldMat4:
		return "mat4x4<f32>"
	case FieldAddress:
		return "vec2<u32>"
	}
	return ""
}

func (t FieldType) String() string {
	if s := t.WGSL(); s != "" {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Field is a single named member of a layout contract.
type Field struct {
	// Name is the snake_case member name shared by host and shader.
	Name string

	// Type is the member type.
	Type FieldType

	// Offset is the packed byte offset from the start of the record. Computed by NewStruct.
	Offset uint64
}

// F declares a field for NewStruct. The offset is computed by NewStruct.
func F(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// Struct is an ordered, packed record layout. Instances are immutable after NewStruct.
type Struct struct {
	name   string
	fields []Field
	size   uint64
}

// NewStruct builds a packed layout from the given fields in declaration order.
// Offsets are assigned with no implicit padding, matching the scalar block layout the
// shaders use when reading records by address.
//
// Parameters:
//   - name: the WGSL struct name (e.g. "Vertex", "Camera")
//   - fields: the ordered fields, usually created with F
//
// Returns:
//   - Struct: the immutable layout descriptor
func NewStruct(name string, fields ...Field) Struct {
	s := Struct{name: name, fields: make([]Field, len(fields))}
	var offset uint64
	for i, f := range fields {
		f.Offset = offset
		s.fields[i] = f
		offset += f.Type.Size()
	}
	s.size = offset
	return s
}

// Name returns the WGSL struct name.
func (s Struct) Name() string { return s.name }

// Size returns the packed record size in bytes, which is also the array stride.
func (s Struct) Size() uint64 { return s.size }

// Words returns the record size in 32-bit words.
func (s Struct) Words() uint64 { return s.size / 4 }

// Fields returns a copy of the ordered fields.
func (s Struct) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name.
//
// Parameters:
//   - name: the field name
//
// Returns:
//   - Field: the field descriptor
//   - bool: false if the contract has no such field
func (s Struct) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Require looks up a field by name and type, returning ErrLayoutMismatch when the contract
// does not declare it with the expected type.
//
// Parameters:
//   - name: the field name
//   - t: the expected field type
//
// Returns:
//   - Field: the field descriptor
//   - error: ErrLayoutMismatch if the field is absent or has another type
func (s Struct) Require(name string, t FieldType) (Field, error) {
	f, ok := s.Field(name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s has no field %q", ErrLayoutMismatch, s.name, name)
	}
	if f.Type != t {
		return Field{}, fmt.Errorf("%w: %s.%s is %s, want %s", ErrLayoutMismatch, s.name, name, f.Type, t)
	}
	return f, nil
}

// Equal reports whether two contracts have the same name, field order, types and offsets.
func (s Struct) Equal(o Struct) bool {
	if s.name != o.name || s.size != o.size || len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// Compatible reports whether two contracts describe the same bytes, ignoring the struct name.
func (s Struct) Compatible(o Struct) bool {
	if s.size != o.size || len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (s Struct) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{", s.name)
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s @%d", f.Name, f.Type, f.Offset)
	}
	fmt.Fprintf(&b, "} (%d bytes)", s.size)
	return b.String()
}
