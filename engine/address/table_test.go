package address

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/buffer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
)

type record struct {
	Value [4]float32
}

var recordLayout = layout.NewStruct("Record", layout.F("value", layout.FieldVec4))

type fixture struct {
	tracker                     *lifetime.Tracker
	vertices, instances, camera buffer.StructuredBuffer[record]
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)

	mk := func(label string, n int) buffer.StructuredBuffer[record] {
		b, err := buffer.New[record](mem, tracker, recordLayout, 4, buffer.WithLabel(label))
		require.NoError(t, err)
		require.NoError(t, b.WriteRange(context.Background(), 0, make([]record, n)))
		return b
	}
	return fixture{
		tracker:   tracker,
		vertices:  mk("vertices", 3),
		instances: mk("instances", 1),
		camera:    mk("camera", 1),
	}
}

func TestLayoutIsThreeAddresses(t *testing.T) {
	assert.Equal(t, uint64(Size), Layout.Size())
	fields := Layout.Fields()
	require.Len(t, fields, 3)
	for i, name := range []string{"vertex", "instance", "camera"} {
		assert.Equal(t, name, fields[i].Name)
		assert.Equal(t, layout.FieldAddress, fields[i].Type)
		assert.Equal(t, uint64(i*8), fields[i].Offset)
	}
	assert.NoError(t, VerifyPayload(Layout))
	assert.ErrorIs(t, VerifyPayload(layout.NewStruct("PushConstants",
		layout.F("camera", layout.FieldAddress),
		layout.F("vertex", layout.FieldAddress),
		layout.F("instance", layout.FieldAddress),
	)), layout.ErrLayoutMismatch)
}

func TestAssembleCapturesInFixedOrder(t *testing.T) {
	f := newFixture(t)
	frame := f.tracker.Begin("frame", lifetime.NewFence("frame"))

	table, err := Assemble(frame, f.vertices, f.instances, f.camera)
	require.NoError(t, err)

	assert.Equal(t, f.vertices.DeviceAddress(), table.Vertex)
	assert.Equal(t, f.instances.DeviceAddress(), table.Instance)
	assert.Equal(t, f.camera.DeviceAddress(), table.Camera)
	assert.Equal(t, 3, frame.Captured())
	assert.True(t, f.tracker.InFlight(table.Camera))

	decoded, err := Decode(table.Bytes())
	require.NoError(t, err)
	assert.Equal(t, table.Vertex, decoded.Vertex)
	assert.Equal(t, table.Instance, decoded.Instance)
	assert.Equal(t, table.Camera, decoded.Camera)
}

func TestResizeMakesTableStale(t *testing.T) {
	f := newFixture(t)
	fence := lifetime.NewFence("frame")
	table, err := Assemble(f.tracker.Begin("frame", fence), f.vertices, f.instances, f.camera)
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	require.NoError(t, f.instances.Resize(16))
	assert.NotEqual(t, table.Instance, f.instances.DeviceAddress())
	assert.ErrorIs(t, table.Validate(), ErrStaleTable)

	fresh, err := Assemble(f.tracker.Begin("frame 2", lifetime.NewFence("frame 2")), f.vertices, f.instances, f.camera)
	require.NoError(t, err)
	assert.NoError(t, fresh.Validate())
	assert.Equal(t, f.instances.DeviceAddress(), fresh.Instance)
}

func TestAssembleRejectsEmptyCamera(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.camera.Truncate(0))

	_, err := Assemble(f.tracker.Begin("frame", lifetime.NewFence("frame")), f.vertices, f.instances, f.camera)
	assert.ErrorIs(t, err, ErrEmptyCamera)
}

func TestAssembleRejectsReleasedBuffer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vertices.Release())

	_, err := Assemble(f.tracker.Begin("frame", lifetime.NewFence("frame")), f.vertices, f.instances, f.camera)
	assert.ErrorIs(t, err, buffer.ErrReleased)
}

func TestFailedAssembleKeepsEarlierCapturesUntilFence(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.instances.Release())

	fence := lifetime.NewFence("frame")
	frame := f.tracker.Begin("frame", fence)
	_, err := Assemble(frame, f.vertices, f.instances, f.camera)
	require.ErrorIs(t, err, buffer.ErrReleased)
	assert.Equal(t, 1, frame.Captured())
	assert.True(t, f.tracker.InFlight(f.vertices.DeviceAddress()))
	assert.False(t, f.tracker.InFlight(f.camera.DeviceAddress()))

	fence.Signal()
	f.tracker.Collect()
	assert.False(t, f.tracker.InFlight(f.vertices.DeviceAddress()))
}

func TestDecodeShortPayload(t *testing.T) {
	_, err := Decode(make([]byte, 8))
	assert.Error(t, err)
}
