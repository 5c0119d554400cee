package lifetime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
)

func TestFence(t *testing.T) {
	f := NewFence("test")
	assert.False(t, f.Signaled())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	f.Signal()
	f.Signal()
	assert.True(t, f.Signaled())
	assert.NoError(t, f.Wait(context.Background()))
	assert.NotEqual(t, f.ID(), NewFence("other").ID())
}

func TestRetireImmediatelyWhenNotCaptured(t *testing.T) {
	tr := NewTracker(nil)
	freed := false

	deferred := tr.Retire(gpumem.Address(256), func() { freed = true })

	assert.False(t, deferred)
	assert.True(t, freed)
}

func TestRetireDeferredUntilFenceSignals(t *testing.T) {
	tr := NewTracker(nil)
	addr := gpumem.Address(512)

	fence := NewFence("frame 0")
	frame := tr.Begin("frame 0", fence)
	require.NoError(t, frame.Capture(addr))
	assert.True(t, tr.InFlight(addr))

	freed := false
	assert.True(t, tr.Retire(addr, func() { freed = true }))
	assert.Equal(t, 1, tr.PendingRetirements())

	assert.Zero(t, tr.Collect())
	assert.False(t, freed, "free must not run before the fence signals")

	fence.Signal()
	assert.Equal(t, 1, tr.Collect())
	assert.True(t, freed)
	assert.False(t, tr.InFlight(addr))
	assert.Zero(t, tr.PendingFrames())

	assert.ErrorIs(t, frame.Capture(addr), ErrFrameClosed)
}

func TestRetireWaitsForEveryCapturingFrame(t *testing.T) {
	tr := NewTracker(nil)
	addr := gpumem.Address(1024)

	first := NewFence("window 1")
	second := NewFence("window 2")
	require.NoError(t, tr.Begin("window 1", first).Capture(addr))
	require.NoError(t, tr.Begin("window 2", second).Capture(addr))

	freed := false
	tr.Retire(addr, func() { freed = true })

	second.Signal()
	tr.Collect()
	assert.False(t, freed)
	assert.True(t, tr.InFlight(addr))

	first.Signal()
	tr.Collect()
	assert.True(t, freed)
}

func TestWaitFor(t *testing.T) {
	tr := NewTracker(nil)
	addr := gpumem.Address(256)
	fence := NewFence("frame")
	require.NoError(t, tr.Begin("frame", fence).Capture(addr))

	go func() {
		time.Sleep(5 * time.Millisecond)
		fence.Signal()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.WaitFor(ctx, addr))
	assert.False(t, tr.InFlight(addr))
}

func TestWaitForCancelled(t *testing.T) {
	tr := NewTracker(nil)
	addr := gpumem.Address(256)
	require.NoError(t, tr.Begin("frame", NewFence("frame")).Capture(addr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.WaitFor(ctx, addr), context.Canceled)
}

func TestAbandonReleasesCaptures(t *testing.T) {
	tr := NewTracker(nil)
	addr := gpumem.Address(256)
	frame := tr.Begin("dropped", NewFence("dropped"))
	require.NoError(t, frame.Capture(addr))

	frame.Abandon()
	require.NoError(t, tr.WaitIdle(context.Background()))
	assert.False(t, tr.InFlight(addr))
}
