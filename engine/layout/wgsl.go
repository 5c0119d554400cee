package layout

import (
	"fmt"
	"strings"
	"unicode"
)

// heapAccessors is the WGSL prelude every generated loader depends on. It expects a
// storage binding named heap of type array<u32> to be declared by the including shader.
const heapAccessors = `fn heap_word(address: vec2<u32>) -> u32 {
    return address.x >> 2u;
}

fn heap_f32(word: u32) -> f32 {
    return bitcast<f32>(heap[word]);
}

fn heap_u32(word: u32) -> u32 {
    return heap[word];
}

fn heap_vec2(word: u32) -> vec2<f32> {
    return vec2<f32>(heap_f32(word), heap_f32(word + 1u));
}

fn heap_vec3(word: u32) -> vec3<f32> {
    return vec3<f32>(heap_f32(word), heap_f32(word + 1u), heap_f32(word + 2u));
}

fn heap_vec4(word: u32) -> vec4<f32> {
    return vec4<f32>(heap_f32(word), heap_f32(word + 1u), heap_f32(word + 2u), heap_f32(word + 3u));
}

fn heap_mat4(word: u32) -> mat4x4<f32> {
    return mat4x4<f32>(heap_vec4(word), heap_vec4(word + 4u), heap_vec4(word + 8u), heap_vec4(word + 12u));
}

fn heap_address(word: u32) -> vec2<u32> {
    return vec2<u32>(heap[word], heap[word + 1u]);
}
`

// HeapAccessors returns the WGSL helper functions used by generated loaders to read
// packed values out of the heap storage buffer.
func HeapAccessors() string {
	return heapAccessors
}

// WGSLDecl returns the WGSL struct declaration for the contract. The declaration is a value
// type for shader code; memory reads go through the loader from WGSLLoader.
func (s Struct) WGSLDecl() string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s {\n", s.name)
	for _, f := range s.fields {
		fmt.Fprintf(&b, "    %s: %s,\n", f.Name, f.Type.WGSL())
	}
	b.WriteString("}\n")
	return b.String()
}

// LoaderName returns the name of the generated loader function, e.g. "load_vertex".
func (s Struct) LoaderName() string {
	return "load_" + snakeCase(s.name)
}

// WGSLLoader returns a WGSL function that reads element index of an array of this record
// type starting at a device address. The stride and field offsets come straight from the
// packed layout, so the shader reads exactly the bytes the host wrote.
func (s Struct) WGSLLoader() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s(base: vec2<u32>, index: u32) -> %s {\n", s.LoaderName(), s.name)
	fmt.Fprintf(&b, "    let w = heap_word(base) + index * %du;\n", s.Words())
	fmt.Fprintf(&b, "    var r: %s;\n", s.name)
	for _, f := range s.fields {
		fmt.Fprintf(&b, "    r.%s = %s(w + %du);\n", f.Name, heapReader(f.Type), f.Offset/4)
	}
	b.WriteString("    return r;\n}\n")
	return b.String()
}

// WGSL returns the struct declaration followed by its loader.
func (s Struct) WGSL() string {
	return s.WGSLDecl() + "\n" + s.WGSLLoader()
}

func heapReader(t FieldType) string {
	switch t {
	case FieldFloat32:
		return "heap_f32"
	case FieldUint32:
		return "heap_u32"
	case FieldVec2:
		return "heap_vec2"
	case FieldVec3:
		return "heap_vec3"
	case FieldVec4:
		return "heap_vec4"
	case FieldMat4:
		return "heap_mat4"
	case FieldAddress:
		return "heap_address"
	}
	return ""
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
