package framestats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/srodi/framelens/pkg/types"
)

func TestPacingBoundaries(t *testing.T) {
	cases := []struct {
		variance float64
		want     types.Pacing
	}{
		{0.05, types.PacingExcellent},
		{0.2, types.PacingGood},
		{0.4, types.PacingFair},
		{0.6, types.PacingPoor},
		{0.1, types.PacingGood},
		{0.3, types.PacingFair},
		{0.5, types.PacingPoor},
		{0, types.PacingExcellent},
	}
	for _, tc := range cases {
		if got := PacingFor(tc.variance); got != tc.want {
			t.Fatalf("variance %v: expected %s, got %s", tc.variance, tc.want, got)
		}
	}
}

func TestAnalyzeComputesStatistics(t *testing.T) {
	w := NewWindow()
	var stats types.FrameStats
	for _, ms := range []float64{10, 10, 10, 10, 40} {
		stats = w.Analyze(ms)
	}
	if stats.Samples != 5 || stats.AvgFrameTime != 16 {
		t.Fatalf("unexpected mean %+v", stats)
	}
	if stats.Variance != 144 {
		t.Fatalf("expected population variance 144, got %v", stats.Variance)
	}
	if stats.Stutters != 1 {
		t.Fatalf("expected one stutter, got %d", stats.Stutters)
	}
	if stats.Low1 != 10 || stats.Low01 != 10 {
		t.Fatalf("expected lows of 10, got %v / %v", stats.Low1, stats.Low01)
	}
	if stats.Pacing != types.PacingPoor {
		t.Fatalf("expected Poor pacing, got %s", stats.Pacing)
	}
}

func TestStutterCountUsesMeanIncludingNewSample(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := NewWindow()
	var seen []float64
	for i := 0; i < 400; i++ {
		ms := 8 + rng.Float64()*20
		if i%37 == 0 {
			ms *= 3
		}
		stats := w.Analyze(ms)
		seen = append(seen, ms)
		if len(seen) > types.FrameTimeWindowSize {
			seen = seen[1:]
		}

		var sum float64
		for _, s := range seen {
			sum += s
		}
		threshold := sum / float64(len(seen)) * StutterFactor
		want := 0
		for _, s := range seen {
			if s > threshold {
				want++
			}
		}
		if stats.Stutters != want {
			t.Fatalf("step %d: expected %d stutters, got %d", i, want, stats.Stutters)
		}
	}
}

func TestStutterIsStrictlyGreater(t *testing.T) {
	// mean 12, threshold 18: a sample of exactly 18 does not count.
	stats := Compute([]float64{9, 9, 18})
	if stats.Stutters != 0 {
		t.Fatalf("sample equal to the threshold must not count, got %d", stats.Stutters)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	sorted := make([]float64, 100)
	for i := range sorted {
		sorted[i] = float64(i + 1)
	}
	if got := Percentile(sorted, 1); math.Abs(got-1.99) > 1e-9 {
		t.Fatalf("p1: expected 1.99, got %v", got)
	}
	if got := Percentile(sorted, 0.1); math.Abs(got-1.099) > 1e-9 {
		t.Fatalf("p0.1: expected 1.099, got %v", got)
	}
	if got := Percentile([]float64{5}, 1); got != 5 {
		t.Fatalf("single sample: expected 5, got %v", got)
	}
	if got := Percentile(nil, 1); got != 0 {
		t.Fatalf("empty: expected 0, got %v", got)
	}
}

func TestWindowIsBounded(t *testing.T) {
	w := NewWindow()
	var stats types.FrameStats
	for i := 0; i <= types.FrameTimeWindowSize; i++ {
		stats = w.Analyze(float64(i))
	}
	if stats.Samples != types.FrameTimeWindowSize || w.Len() != types.FrameTimeWindowSize {
		t.Fatalf("expected %d samples, got %d", types.FrameTimeWindowSize, stats.Samples)
	}
	values := w.samples.Values()
	if values[0] != 1 || values[len(values)-1] != float64(types.FrameTimeWindowSize) {
		t.Fatalf("expected oldest evicted, got first %v last %v", values[0], values[len(values)-1])
	}
}

func TestComputeEmpty(t *testing.T) {
	stats := Compute(nil)
	if stats.Samples != 0 || stats.Stutters != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFrameTimeRating(t *testing.T) {
	cases := []struct {
		ms   float64
		want Rating
	}{
		{8.3, RatingGood},
		{16.69, RatingGood},
		{16.7, RatingFair},
		{33.29, RatingFair},
		{33.3, RatingPoor},
		{100, RatingPoor},
	}
	for _, tc := range cases {
		if got := FrameTimeRating(tc.ms); got != tc.want {
			t.Fatalf("%v ms: expected %s, got %s", tc.ms, tc.want, got)
		}
	}
}

func TestRegistryKeepsWindowsPerPid(t *testing.T) {
	r := NewRegistry()
	r.Analyze(1, 16)
	r.Analyze(1, 17)
	r.Analyze(2, 33)
	if r.Len(1) != 2 || r.Len(2) != 1 {
		t.Fatalf("unexpected lengths %d/%d", r.Len(1), r.Len(2))
	}

	r.Reset(1)
	if r.Len(1) != 0 {
		t.Fatalf("reset should empty the window, got %d", r.Len(1))
	}
	if stats := r.Analyze(1, 20); stats.Samples != 1 || stats.AvgFrameTime != 20 {
		t.Fatalf("window should restart after reset, got %+v", stats)
	}

	r.Forget(2)
	if r.Len(2) != 0 {
		t.Fatalf("forget should drop the window")
	}
	r.Forget(99)
	r.Reset(99)
}
