package profiler

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// WindowStats summarizes the frames of one window over a reporting interval.
type WindowStats struct {
	Window  int
	Frames  int
	Skipped int
	Failed  int
	FPS     float64
	Avg     time.Duration
	Max     time.Duration
}

// Report is one reporting interval.
type Report struct {
	Elapsed     time.Duration
	Windows     []WindowStats
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	MaxPauseUs  uint64
}

type windowCounters struct {
	frames  int
	skipped int
	failed  int
	total   time.Duration
	max     time.Duration
}

// Profiler accumulates per-window frame timings and logs a report at a fixed interval.
type Profiler struct {
	mu *sync.Mutex

	logger         *slog.Logger
	updateInterval time.Duration
	now            func() time.Time

	lastTime       time.Time
	windows        map[int]*windowCounters
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// ProfilerBuilderOption is a functional option used to configure a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets the reporting interval. Defaults to one second.
//
// Parameters:
//   - d: the interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithLogger sets the logger reports are written to.
func WithLogger(l *slog.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.logger = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a Profiler.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		updateInterval: time.Second,
		now:            time.Now,
		windows:        make(map[int]*windowCounters),
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = common.Logger()
	}
	p.lastTime = p.now()
	return p
}

// Record adds one frame of a window.
//
// Parameters:
//   - window: the window ID
//   - frameTime: time spent in Render
//   - skipped: the frame was skipped (zero-size target)
//   - failed: Render returned an error other than a skip
func (p *Profiler) Record(window int, frameTime time.Duration, skipped, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.windows[window]
	if !ok {
		c = &windowCounters{}
		p.windows[window] = c
	}
	switch {
	case skipped:
		c.skipped++
	case failed:
		c.failed++
	default:
		c.frames++
		c.total += frameTime
		c.max = max(c.max, frameTime)
	}
}

// Tick logs and returns a report once the interval has elapsed, resetting the counters.
//
// Returns:
//   - Report: the report, zero when none was due
//   - bool: true if a report was produced
func (p *Profiler) Tick() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	report := Report{Elapsed: elapsed}
	ids := make([]int, 0, len(p.windows))
	for id := range p.windows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := p.windows[id]
		s := WindowStats{
			Window:  id,
			Frames:  c.frames,
			Skipped: c.skipped,
			Failed:  c.failed,
			FPS:     float64(c.frames) / elapsed.Seconds(),
			Max:     c.max,
		}
		if c.frames > 0 {
			s.Avg = c.total / time.Duration(c.frames)
		}
		report.Windows = append(report.Windows, s)
		*c = windowCounters{}
	}

	runtime.ReadMemStats(&p.memStats)
	report.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	report.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()
	report.GCCount = p.memStats.NumGC

	// PauseNs is a circular buffer of the last 256 pauses.
	startIdx := p.lastGCCount
	if report.GCCount-startIdx > 256 {
		startIdx = report.GCCount - 256
	}
	for i := startIdx; i < report.GCCount; i++ {
		report.MaxPauseUs = max(report.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	for _, s := range report.Windows {
		p.logger.Info("frame stats",
			"window", s.Window,
			"fps", s.FPS,
			"avg", s.Avg,
			"max", s.Max,
			"skipped", s.Skipped,
			"failed", s.Failed,
		)
	}
	p.logger.Info("memory stats",
		"heap_mb", report.HeapMB,
		"alloc_rate_mb", report.AllocRateMB,
		"gc", report.GCCount,
		"max_pause_us", report.MaxPauseUs,
	)

	p.lastTime = now
	p.lastGCCount = report.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return report, true
}
