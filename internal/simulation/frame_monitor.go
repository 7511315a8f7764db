package simulation

import (
	"sync"
	"time"
)

// FrameStats summarises observed trace durations and step counts.
type FrameStats struct {
	Frames       int            `json:"frames"`
	Average      time.Duration  `json:"averageNanos"`
	Max          time.Duration  `json:"maxNanos"`
	Last         time.Duration  `json:"lastNanos"`
	AverageSteps float64        `json:"averageSteps"`
	MaxSteps     int            `json:"maxSteps"`
	Terminations map[string]int `json:"terminations"`
}

// AverageFPS derives the frame rate the average trace time would sustain.
func (s FrameStats) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// FrameMonitor accumulates per-trace statistics. It is safe for concurrent use.
type FrameMonitor struct {
	mu           sync.Mutex
	frames       int
	total        time.Duration
	max          time.Duration
	last         time.Duration
	totalSteps   int
	maxSteps     int
	terminations map[Termination]int
}

// NewFrameMonitor constructs an empty monitor.
func NewFrameMonitor() *FrameMonitor {
	return &FrameMonitor{terminations: make(map[Termination]int)}
}

// Observe records how long a trace took and how it ended.
func (m *FrameMonitor) Observe(duration time.Duration, trace Trace) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.totalSteps += trace.Steps
	if trace.Steps > m.maxSteps {
		m.maxSteps = trace.Steps
	}
	m.terminations[trace.Termination]++
}

// Snapshot returns a copy of the aggregated statistics.
func (m *FrameMonitor) Snapshot() FrameStats {
	if m == nil {
		return FrameStats{Terminations: map[string]int{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := FrameStats{
		Frames:       m.frames,
		Max:          m.max,
		Last:         m.last,
		MaxSteps:     m.maxSteps,
		Terminations: make(map[string]int, len(m.terminations)),
	}
	if m.frames > 0 {
		stats.Average = m.total / time.Duration(m.frames)
		stats.AverageSteps = float64(m.totalSteps) / float64(m.frames)
	}
	for term, count := range m.terminations {
		stats.Terminations[term.String()] = count
	}
	return stats
}

// Reset clears the accumulated statistics.
func (m *FrameMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.frames, m.total, m.max, m.last = 0, 0, 0, 0
	m.totalSteps, m.maxSteps = 0, 0
	m.terminations = make(map[Termination]int)
	m.mu.Unlock()
}
