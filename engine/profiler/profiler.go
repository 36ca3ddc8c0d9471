// Package profiler reports frame rate, frame time and memory statistics through the engine logger.
package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// Stats is one report of the profiler.
type Stats struct {
	FPS float64
	// FrameTime is the mean time between ticks over the interval.
	FrameTime time.Duration
	// Skipped counts frames reported as skipped over the interval.
	Skipped int

	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	// LastPause and MaxPause are GC pauses since the previous report.
	LastPause, MaxPause time.Duration
}

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	skipCount      int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	now      func() time.Time
	readMem  func(*runtime.MemStats)
	last     Stats
	reported bool
}

// ProfilerOption is a functional option used to configure a Profiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often statistics are reported. Non-positive values keep the default
// of one second.
//
// Parameters:
//   - interval: the report interval
//
// Returns:
//   - ProfilerOption: a function that sets the interval
func WithInterval(interval time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if interval > 0 {
			p.updateInterval = interval
		}
	}
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
		readMem:        runtime.ReadMemStats,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Skip records a frame that was not drawn, counted in the next report.
func (p *Profiler) Skip() {
	p.skipCount++
}

// Tick should be called once per drawn frame. Logs statistics when the update interval has
// elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	p.readMem(&p.memStats)
	stats := Stats{
		FPS:       float64(p.frameCount) / elapsed.Seconds(),
		FrameTime: elapsed / time.Duration(p.frameCount),
		Skipped:   p.skipCount,
		HeapMB:    float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:     float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:   p.memStats.NumGC,
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	stats.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	if gcCount := p.memStats.NumGC; gcCount > 0 {
		stats.LastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			stats.MaxPause = max(stats.MaxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	common.Logger().Info("profiler",
		"fps", stats.FPS,
		"frame_time", stats.FrameTime,
		"skipped", stats.Skipped,
		"heap_mb", stats.HeapMB,
		"alloc_rate_mb", stats.AllocRateMB,
		"gc", stats.GCCount,
		"gc_last_pause", stats.LastPause,
		"gc_max_pause", stats.MaxPause,
		"sys_mb", stats.SysMB,
	)

	p.frameCount = 0
	p.skipCount = 0
	p.lastTime = currentTime
	p.lastGCCount = stats.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = stats
	p.reported = true
	return true
}

// Last returns the most recent report.
//
// Returns:
//   - Stats: the statistics of the last report
//   - bool: false before the first report
func (p *Profiler) Last() (Stats, bool) {
	return p.last, p.reported
}
