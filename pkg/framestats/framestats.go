// Package framestats derives stability statistics from a rolling window of
// frame times in milliseconds.
package framestats

import (
	"math"
	"sort"
	"sync"

	"github.com/srodi/framelens/pkg/ringbuf"
	"github.com/srodi/framelens/pkg/types"
)

// StutterFactor marks a frame as a stutter when it exceeds this multiple of
// the window mean.
const StutterFactor = 1.5

// Pacing thresholds on the frame-time variance (ms²). Each bound is exclusive.
const (
	excellentVariance = 0.1
	goodVariance      = 0.3
	fairVariance      = 0.5
)

// Window is a bounded frame-time window. It is not safe for concurrent use;
// Registry serializes access per pid.
type Window struct {
	samples *ringbuf.Buffer[float64]
}

// NewWindow returns an empty window holding types.FrameTimeWindowSize samples.
func NewWindow() *Window {
	return &Window{samples: ringbuf.New[float64](types.FrameTimeWindowSize)}
}

// Analyze appends sampleMs, evicting the oldest sample when full, and returns
// statistics over the current window.
func (w *Window) Analyze(sampleMs float64) types.FrameStats {
	w.samples.Push(sampleMs)
	return Compute(w.samples.Values())
}

// Len returns the number of samples held.
func (w *Window) Len() int { return w.samples.Len() }

// Reset empties the window.
func (w *Window) Reset() { w.samples.Reset() }

// Compute returns statistics over samples without retaining them.
func Compute(samples []float64) types.FrameStats {
	n := len(samples)
	if n == 0 {
		return types.FrameStats{Pacing: types.PacingExcellent}
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	avg := sum / float64(n)

	var sq float64
	stutters := 0
	for _, s := range samples {
		d := s - avg
		sq += d * d
		if s > avg*StutterFactor {
			stutters++
		}
	}
	variance := sq / float64(n)

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	return types.FrameStats{
		Samples:      n,
		AvgFrameTime: avg,
		Low1:         Percentile(sorted, 1),
		Low01:        Percentile(sorted, 0.1),
		Variance:     variance,
		Stutters:     stutters,
		Pacing:       PacingFor(variance),
	}
}

// Percentile returns the p-th percentile of ascending sorted values using
// linear interpolation between the closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// PacingFor grades a frame-time variance.
func PacingFor(variance float64) types.Pacing {
	switch {
	case variance < excellentVariance:
		return types.PacingExcellent
	case variance < goodVariance:
		return types.PacingGood
	case variance < fairVariance:
		return types.PacingFair
	default:
		return types.PacingPoor
	}
}

// Rating grades a single frame time.
type Rating string

const (
	RatingGood Rating = "good"
	RatingFair Rating = "fair"
	RatingPoor Rating = "poor"
)

// FrameTimeRating grades ms against the 60 and 30 FPS frame budgets.
func FrameTimeRating(ms float64) Rating {
	switch {
	case ms < 16.7:
		return RatingGood
	case ms < 33.3:
		return RatingFair
	default:
		return RatingPoor
	}
}

// Registry keeps one window per pid.
type Registry struct {
	mu      sync.Mutex
	windows map[int32]*Window
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[int32]*Window)}
}

// Analyze feeds sampleMs into pid's window, creating it on first use.
func (r *Registry) Analyze(pid int32, sampleMs float64) types.FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[pid]
	if !ok {
		w = NewWindow()
		r.windows[pid] = w
	}
	return w.Analyze(sampleMs)
}

// Reset clears pid's samples, used when the monitored process changes.
func (r *Registry) Reset(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.windows[pid]; ok {
		w.Reset()
	}
}

// Forget drops pid's window.
func (r *Registry) Forget(pid int32) {
	r.mu.Lock()
	delete(r.windows, pid)
	r.mu.Unlock()
}

// Len returns the number of samples held for pid.
func (r *Registry) Len(pid int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.windows[pid]; ok {
		return w.Len()
	}
	return 0
}
