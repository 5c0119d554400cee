package layout

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testVertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
}

type testInstance struct {
	Model        [16]float32
	TextureIndex uint32
}

type swappedVertex struct {
	Normal   [3]float32
	Position [3]float32
	TexCoord [2]float32
}

type paddedAddresses struct {
	Flag    uint32
	Address uint64
}

var testVertexLayout = NewStruct("Vertex",
	F("position", FieldVec3),
	F("normal", FieldVec3),
	F("tex_coord", FieldVec2),
)

func TestNewStructPackedOffsets(t *testing.T) {
	fields := testVertexLayout.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, uint64(0), fields[0].Offset)
	assert.Equal(t, uint64(12), fields[1].Offset)
	assert.Equal(t, uint64(24), fields[2].Offset)
	assert.Equal(t, uint64(32), testVertexLayout.Size())
	assert.Equal(t, uint64(8), testVertexLayout.Words())
}

func TestVerify(t *testing.T) {
	instance := NewStruct("Instance", F("model", FieldMat4), F("texture_index", FieldUint32))

	tests := []struct {
		name    string
		verify  func() error
		wantErr bool
	}{
		{"matching vertex", func() error { return Verify[testVertex](testVertexLayout) }, false},
		{"matching instance", func() error { return Verify[testInstance](instance) }, false},
		{"field order swapped", func() error { return Verify[swappedVertex](testVertexLayout) }, true},
		{"wrong size", func() error { return Verify[testInstance](testVertexLayout) }, true},
		{"not a struct", func() error { return Verify[uint32](testVertexLayout) }, true},
		{
			"implicit padding",
			func() error {
				return Verify[paddedAddresses](NewStruct("P", F("flag", FieldUint32), F("address", FieldAddress)))
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verify()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLayoutMismatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRequire(t *testing.T) {
	f, err := testVertexLayout.Require("normal", FieldVec3)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), f.Offset)

	_, err = testVertexLayout.Require("normal", FieldVec4)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = testVertexLayout.Require("color", FieldVec3)
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestEqualAndCompatible(t *testing.T) {
	same := NewStruct("Vertex", F("position", FieldVec3), F("normal", FieldVec3), F("tex_coord", FieldVec2))
	renamed := NewStruct("Other", F("position", FieldVec3), F("normal", FieldVec3), F("tex_coord", FieldVec2))
	shorter := NewStruct("Vertex", F("position", FieldVec3), F("normal", FieldVec3))

	assert.True(t, testVertexLayout.Equal(same))
	assert.False(t, testVertexLayout.Equal(renamed))
	assert.True(t, testVertexLayout.Compatible(renamed))
	assert.False(t, testVertexLayout.Compatible(shorter))
}

func TestWGSLGeneration(t *testing.T) {
	src := testVertexLayout.WGSL()

	assert.Contains(t, src, "struct Vertex {")
	assert.Contains(t, src, "    tex_coord: vec2<f32>,")
	assert.Contains(t, src, "fn load_vertex(base: vec2<u32>, index: u32) -> Vertex {")
	assert.Contains(t, src, "let w = heap_word(base) + index * 8u;")
	assert.Contains(t, src, "r.normal = heap_vec3(w + 3u);")
	assert.Contains(t, src, "r.tex_coord = heap_vec2(w + 6u);")
	assert.True(t, strings.Index(src, "r.position") < strings.Index(src, "r.normal"))

	assert.Equal(t, "load_texture_instance", NewStruct("TextureInstance").LoaderName())
	assert.Contains(t, HeapAccessors(), "fn heap_mat4(word: u32) -> mat4x4<f32>")
}

func TestReadHelpers(t *testing.T) {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(-2))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(3))
	binary.LittleEndian.PutUint32(b[12:], 7)
	binary.LittleEndian.PutUint64(b[16:], 0x1122334455667788)

	assert.Equal(t, [3]float32{1.5, -2, 3}, ReadVec3(b, 0))
	assert.Equal(t, [2]float32{-2, 3}, ReadVec2(b, 4))
	assert.Equal(t, uint32(7), ReadUint32(b, 12))
	assert.Equal(t, uint64(0x1122334455667788), ReadAddress(b, 16))
}
