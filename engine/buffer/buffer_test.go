package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/lifetime"
)

type point struct {
	Position [3]float32
	Weight   float32
}

var pointLayout = layout.NewStruct("Point",
	layout.F("position", layout.FieldVec3),
	layout.F("weight", layout.FieldFloat32),
)

func read(t *testing.T, mem *gpumem.HostMemory, addr gpumem.Address, size uint64) []byte {
	t.Helper()
	b, err := mem.Read(addr, size)
	require.NoError(t, err)
	return b
}

func TestNewRejectsLayoutMismatch(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	wrong := layout.NewStruct("Point", layout.F("position", layout.FieldVec4))

	_, err := New[point](mem, lifetime.NewTracker(nil), wrong, 4)
	assert.ErrorIs(t, err, layout.ErrLayoutMismatch)
	assert.Zero(t, mem.Live())
}

func TestNewOutOfMemory(t *testing.T) {
	mem := gpumem.NewHostMemory(1024, 256)
	_, err := New[point](mem, lifetime.NewTracker(nil), pointLayout, 1000)
	assert.ErrorIs(t, err, gpumem.ErrOutOfMemory)
}

func TestWriteRange(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	buf, err := New[point](mem, lifetime.NewTracker(nil), pointLayout, 4, WithLabel("points"))
	require.NoError(t, err)

	assert.Equal(t, uint64(16), buf.Stride())
	assert.Zero(t, buf.Len())
	assert.Equal(t, 4, buf.Cap())

	ctx := context.Background()
	require.NoError(t, buf.WriteRange(ctx, 1, []point{{Position: [3]float32{1, 2, 3}, Weight: 4}}))
	assert.Equal(t, 2, buf.Len())

	raw := read(t, mem, buf.DeviceAddress()+16, 16)
	assert.Equal(t, [3]float32{1, 2, 3}, layout.ReadVec3(raw, 0))
	assert.Equal(t, float32(4), layout.ReadFloat32(raw, 12))

	assert.ErrorIs(t, buf.WriteRange(ctx, 3, make([]point, 2)), ErrOutOfRange)
	assert.ErrorIs(t, buf.WriteRange(ctx, -1, make([]point, 1)), ErrOutOfRange)

	require.NoError(t, buf.Truncate(0))
	assert.Zero(t, buf.Len())
	assert.ErrorIs(t, buf.Truncate(5), ErrOutOfRange)
}

func TestReplaceSetsContentsAndLength(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	buf, err := New[point](mem, lifetime.NewTracker(nil), pointLayout, 4)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, buf.WriteRange(ctx, 0, make([]point, 4)))
	require.Equal(t, 4, buf.Len())

	require.NoError(t, buf.Replace(ctx, []point{{Weight: 7}, {Weight: 8}}))
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, float32(8), layout.ReadFloat32(read(t, mem, buf.DeviceAddress()+16, 16), 12))

	require.NoError(t, buf.Replace(ctx, nil))
	assert.Zero(t, buf.Len())
	assert.ErrorIs(t, buf.Replace(ctx, make([]point, 5)), ErrOutOfRange)
	assert.Zero(t, buf.Len(), "a rejected replace leaves the length alone")
}

func TestReplaceIsAtomicToCapture(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 8)
	require.NoError(t, err)

	long := make([]point, 8)
	short := []point{{Weight: 1}}
	for i := range long {
		long[i].Weight = 2
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for i := range 200 {
			if i%2 == 0 {
				assert.NoError(t, buf.Replace(ctx, long))
			} else {
				assert.NoError(t, buf.Replace(ctx, short))
			}
		}
	}()

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		default:
		}
		fence := lifetime.NewFence("frame")
		frame := tracker.Begin("frame", fence)
		addr, err := buf.Capture(frame)
		require.NoError(t, err)
		n := buf.Len()
		first := layout.ReadFloat32(read(t, mem, addr, 16), 12)
		fence.Signal()
		tracker.Collect()
		switch n {
		case 1:
			assert.Equal(t, float32(1), first, "capture %d", i)
		case 8:
			assert.Equal(t, float32(2), first, "capture %d", i)
		}
	}
}

func TestResizeReturnsNewAddressAndKeepsContents(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 2)
	require.NoError(t, err)

	require.NoError(t, buf.WriteRange(context.Background(), 0, []point{{Weight: 1}, {Weight: 2}}))
	before := buf.DeviceAddress()
	gen := buf.Generation()

	require.NoError(t, buf.Resize(8))

	after := buf.DeviceAddress()
	assert.NotEqual(t, before, after)
	assert.Equal(t, gen+1, buf.Generation())
	assert.Equal(t, 8, buf.Cap())
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, float32(2), layout.ReadFloat32(read(t, mem, after+16, 16), 12))
	assert.Equal(t, 1, mem.Live(), "old allocation is freed when nothing captured it")
}

func TestResizeWhileInFlightDefersFree(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 2)
	require.NoError(t, err)

	fence := lifetime.NewFence("frame")
	old, err := buf.Capture(tracker.Begin("frame", fence))
	require.NoError(t, err)

	require.NoError(t, buf.Resize(4))
	assert.NotEqual(t, old, buf.DeviceAddress())
	assert.Equal(t, 2, mem.Live(), "old allocation stays alive while the frame is in flight")

	fence.Signal()
	tracker.Collect()
	assert.Equal(t, 1, mem.Live())
}

func TestReleaseWhileInFlightIsDetected(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 2, WithStrictLifetime(true))
	require.NoError(t, err)

	fence := lifetime.NewFence("frame")
	addr, err := buf.Capture(tracker.Begin("frame", fence))
	require.NoError(t, err)

	err = buf.Release()
	assert.ErrorIs(t, err, lifetime.ErrInFlight)
	assert.True(t, buf.Released())

	_, err = mem.Resolve(addr, 16)
	assert.NoError(t, err, "memory must stay allocated until the fence signals")

	fence.Signal()
	assert.Equal(t, 1, tracker.Collect())
	_, err = mem.Resolve(addr, 16)
	assert.ErrorIs(t, err, gpumem.ErrInvalidAddress)

	assert.ErrorIs(t, buf.Release(), ErrReleased)
	assert.ErrorIs(t, buf.WriteRange(context.Background(), 0, nil), ErrReleased)
	assert.Equal(t, gpumem.NullAddress, buf.DeviceAddress())
}

func TestReleaseWhileInFlightLenient(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 2)
	require.NoError(t, err)

	fence := lifetime.NewFence("frame")
	_, err = buf.Capture(tracker.Begin("frame", fence))
	require.NoError(t, err)

	assert.NoError(t, buf.Release())
	assert.Equal(t, 1, tracker.PendingRetirements())
	fence.Signal()
	tracker.Collect()
	assert.Zero(t, mem.Live())
}

func TestWriteWaitsForInFlightFrame(t *testing.T) {
	mem := gpumem.NewHostMemory(1<<16, 256)
	tracker := lifetime.NewTracker(nil)
	buf, err := New[point](mem, tracker, pointLayout, 2)
	require.NoError(t, err)

	fence := lifetime.NewFence("frame")
	_, err = buf.Capture(tracker.Begin("frame", fence))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, buf.WriteRange(ctx, 0, []point{{Weight: 1}}), context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		fence.Signal()
	}()
	require.NoError(t, buf.WriteRange(context.Background(), 0, []point{{Weight: 1}}))
	assert.Equal(t, 1, buf.Len())
}
