// Package address assembles the resource address table: the fixed 24-byte push payload of
// vertex, instance and camera buffer addresses that every pipeline variant reads first.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
)

var (
	// ErrStaleTable is returned when a source was resized after the table was assembled.
	ErrStaleTable = errors.New("address table references a resized buffer")

	// ErrEmptyCamera is returned when the camera source has no records.
	ErrEmptyCamera = errors.New("camera buffer is empty")
)

// Size is the payload size in bytes. It is identical for every variant.
const Size = 24

// Layout is the push payload contract shared by every pipeline variant.
var Layout = layout.NewStruct("PushConstants",
	layout.F("vertex", layout.FieldAddress),
	layout.F("instance", layout.FieldAddress),
	layout.F("camera", layout.FieldAddress),
)

// Source is anything whose device address can be placed in a table.
// buffer.StructuredBuffer satisfies it for every element type.
type Source interface {
	Label() string
	Layout() layout.Struct
	Len() int
	Generation() uint64
	Capture(frame *lifetime.Frame) (gpumem.Address, error)
}

// Table is one draw's push payload. Field order is the wire order.
type Table struct {
	Vertex   gpumem.Address
	Instance gpumem.Address
	Camera   gpumem.Address

	sources     [3]Source
	generations [3]uint64
}

// Assemble captures the three sources into frame, in fixed order, and records their generations.
// If a later source fails to capture, the earlier captures stay pinned to frame and are released
// with it once its fence signals. Callers either submit or abandon the frame, so nothing leaks.
//
// Parameters:
//   - frame: the frame the draw belongs to
//   - vertices: the vertex buffer
//   - instances: the instance buffer
//   - camera: the camera buffer
//
// Returns:
//   - Table: the assembled payload
//   - error: ErrEmptyCamera or a capture error
func Assemble(frame *lifetime.Frame, vertices, instances, camera Source) (Table, error) {
	if camera.Len() == 0 {
		return Table{}, fmt.Errorf("assemble %s: %w", camera.Label(), ErrEmptyCamera)
	}

	t := Table{sources: [3]Source{vertices, instances, camera}}
	addrs := [3]*gpumem.Address{&t.Vertex, &t.Instance, &t.Camera}
	for i, src := range t.sources {
		t.generations[i] = src.Generation()
		addr, err := src.Capture(frame)
		if err != nil {
			return Table{}, fmt.Errorf("assemble address table: %w", err)
		}
		*addrs[i] = addr
	}
	return t, nil
}

// Validate reports ErrStaleTable if any source has been resized since Assemble.
func (t Table) Validate() error {
	for i, src := range t.sources {
		if src == nil {
			continue
		}
		if src.Generation() != t.generations[i] {
			return fmt.Errorf("%s generation %d, table assembled at %d: %w", src.Label(), src.Generation(), t.generations[i], ErrStaleTable)
		}
	}
	return nil
}

// Bytes encodes the payload as three little-endian u64 values in wire order.
func (t Table) Bytes() []byte {
	out := make([]byte, Size)
	binary.LittleEndian.PutUint64(out[0:], uint64(t.Vertex))
	binary.LittleEndian.PutUint64(out[8:], uint64(t.Instance))
	binary.LittleEndian.PutUint64(out[16:], uint64(t.Camera))
	return out
}

// Decode parses a payload produced by Bytes. Source tracking is not carried over the wire.
//
// Parameters:
//   - b: the payload bytes (at least Size long)
//
// Returns:
//   - Table: the decoded addresses
//   - error: if b is too short
func Decode(b []byte) (Table, error) {
	if len(b) < Size {
		return Table{}, fmt.Errorf("decode address table: %d bytes, want %d", len(b), Size)
	}
	return Table{
		Vertex:   gpumem.Address(layout.ReadAddress(b, Layout.Fields()[0].Offset)),
		Instance: gpumem.Address(layout.ReadAddress(b, Layout.Fields()[1].Offset)),
		Camera:   gpumem.Address(layout.ReadAddress(b, Layout.Fields()[2].Offset)),
	}, nil
}

// VerifyPayload checks that a variant's declared push struct is the shared payload layout.
//
// Parameters:
//   - s: the push layout declared by a variant
//
// Returns:
//   - error: wraps layout.ErrLayoutMismatch when s differs from Layout
func VerifyPayload(s layout.Struct) error {
	if !s.Equal(Layout) {
		return fmt.Errorf("%w: push payload %s, want %s", layout.ErrLayoutMismatch, s, Layout)
	}
	return nil
}
