package layout

import (
	"encoding/binary"
	"math"
)

// The Read helpers decode packed little-endian values from a record's bytes. They mirror the
// heap_* accessors emitted for shaders and are used by the reference device programs.

// ReadFloat32 decodes an f32 at off.
func ReadFloat32(b []byte, off uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

// ReadUint32 decodes a u32 at off.
func ReadUint32(b []byte, off uint64) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

// ReadVec2 decodes a vec2<f32> at off.
func ReadVec2(b []byte, off uint64) [2]float32 {
	return [2]float32{ReadFloat32(b, off), ReadFloat32(b, off+4)}
}

// ReadVec3 decodes a packed vec3<f32> at off.
func ReadVec3(b []byte, off uint64) [3]float32 {
	return [3]float32{ReadFloat32(b, off), ReadFloat32(b, off+4), ReadFloat32(b, off+8)}
}

// ReadVec4 decodes a vec4<f32> at off.
func ReadVec4(b []byte, off uint64) [4]float32 {
	return [4]float32{ReadFloat32(b, off), ReadFloat32(b, off+4), ReadFloat32(b, off+8), ReadFloat32(b, off+12)}
}

// ReadMat4 decodes a column-major mat4x4<f32> at off.
func ReadMat4(b []byte, off uint64) [16]float32 {
	var m [16]float32
	for i := range m {
		m[i] = ReadFloat32(b, off+uint64(i)*4)
	}
	return m
}

// ReadAddress decodes a 64-bit address at off.
func ReadAddress(b []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}
