package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickReportsPerWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var out bytes.Buffer
	p := NewProfiler(
		WithClock(clock.now),
		WithInterval(time.Second),
		WithLogger(slog.New(slog.NewTextHandler(&out, nil))),
	)

	p.Record(2, 4*time.Millisecond, false, false)
	p.Record(1, 2*time.Millisecond, false, false)
	p.Record(1, 6*time.Millisecond, false, false)
	p.Record(1, 0, true, false)
	p.Record(2, 0, false, true)

	_, ok := p.Tick()
	assert.False(t, ok, "interval has not elapsed")

	clock.t = clock.t.Add(2 * time.Second)
	report, ok := p.Tick()
	require.True(t, ok)
	require.Len(t, report.Windows, 2)

	w1 := report.Windows[0]
	assert.Equal(t, 1, w1.Window)
	assert.Equal(t, 2, w1.Frames)
	assert.Equal(t, 1, w1.Skipped)
	assert.Equal(t, 4*time.Millisecond, w1.Avg)
	assert.Equal(t, 6*time.Millisecond, w1.Max)
	assert.InDelta(t, 1.0, w1.FPS, 1e-9)

	assert.Equal(t, 1, report.Windows[1].Failed)
	assert.Contains(t, out.String(), "frame stats")

	clock.t = clock.t.Add(time.Second)
	report, ok = p.Tick()
	require.True(t, ok)
	assert.Zero(t, report.Windows[0].Frames, "counters reset after a report")
}
