package fps

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srodi/framelens/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeFinder struct {
	window Window
	usable bool
	err    error
	finds  int
}

func (f *fakeFinder) Find(int32) (Window, error) {
	f.finds++
	return f.window, f.err
}

func (f *fakeFinder) Usable(w Window) bool { return f.usable && w == f.window }

func newTestEstimator(finder WindowFinder, clock *fakeClock, alive func(context.Context, int32) bool) *Estimator {
	if alive == nil {
		alive = func(context.Context, int32) bool { return true }
	}
	return newEstimator(Options{Finder: finder, Now: clock.Now, Alive: alive})
}

func TestSampleConstantRateConverges(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{window: 7, usable: true}, clock, nil)

	if fps := e.Sample(1); fps != 0 {
		t.Fatalf("first observation should only start tracking, got %d", fps)
	}
	for i := 0; i < 20; i++ {
		clock.Advance(20 * time.Millisecond)
		if fps := e.Sample(1); fps != 50 {
			t.Fatalf("sample %d: expected 50, got %d", i, fps)
		}
		st, _ := e.State(1)
		if math.Abs(st.SmoothedFPS-50) > 1e-6 {
			t.Fatalf("sample %d: smoothed drifted to %v", i, st.SmoothedFPS)
		}
	}
}

func TestSampleSeedsThenSmooths(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{window: 7, usable: true}, clock, nil)
	e.Sample(1)

	clock.Advance(20 * time.Millisecond)
	e.Sample(1)
	st, _ := e.State(1)
	if !st.Seeded || math.Abs(st.SmoothedFPS-50) > 1e-9 {
		t.Fatalf("first sample must seed directly, got %+v", st)
	}

	clock.Advance(40 * time.Millisecond)
	fps := e.Sample(1)
	// history mean 30ms -> 33.33 fps; 0.1*33.33 + 0.9*50
	want := 0.1*(1/0.03) + 0.9*50
	st, _ = e.State(1)
	if math.Abs(st.SmoothedFPS-want) > 1e-6 {
		t.Fatalf("expected smoothed %v, got %v", want, st.SmoothedFPS)
	}
	if fps != 48 {
		t.Fatalf("expected rounded 48, got %d", fps)
	}
}

func TestFrameHistoryIsBounded(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{window: 7, usable: true}, clock, nil)
	e.Sample(1)
	for i := 1; i <= 100; i++ {
		clock.Advance(time.Duration(i) * time.Millisecond)
		e.Sample(1)
	}
	st, _ := e.State(1)
	if len(st.FrameTimes) != types.FrameHistorySize {
		t.Fatalf("expected %d frame times, got %d", types.FrameHistorySize, len(st.FrameTimes))
	}
	if math.Abs(st.FrameTimes[0]-0.041) > 1e-9 || math.Abs(st.FrameTimes[59]-0.1) > 1e-9 {
		t.Fatalf("expected oldest-first eviction, got first %v last %v", st.FrameTimes[0], st.FrameTimes[59])
	}
}

func TestSampleWithoutWindowReportsZero(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{err: types.ErrUnsupported}, clock, nil)
	e.Sample(1)
	clock.Advance(time.Second)
	if fps := e.Sample(1); fps != 0 {
		t.Fatalf("expected 0 without a window, got %d", fps)
	}
	st, _ := e.State(1)
	if st.Seeded || len(st.FrameTimes) != 0 || !st.LastSample.Equal(clock.Now()) {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestWindowReprobePolicy(t *testing.T) {
	clock := newFakeClock()
	finder := &fakeFinder{window: 7, usable: true}
	e := newTestEstimator(finder, clock, nil)
	e.Sample(1)

	clock.Advance(100 * time.Millisecond)
	e.Sample(1)
	clock.Advance(100 * time.Millisecond)
	e.Sample(1)
	if finder.finds != 1 {
		t.Fatalf("cached handle should be reused, got %d enumerations", finder.finds)
	}

	clock.Advance(reprobeInterval)
	e.Sample(1)
	if finder.finds != 2 {
		t.Fatalf("stale probe should re-enumerate, got %d enumerations", finder.finds)
	}

	finder.usable = false
	finder.window = 9
	clock.Advance(100 * time.Millisecond)
	e.Sample(1)
	st, _ := e.State(1)
	if finder.finds != 3 || st.Window != 9 {
		t.Fatalf("unusable handle should be replaced, got %d enumerations, window %d", finder.finds, st.Window)
	}
}

func TestFailedReprobeKeepsUsableHandle(t *testing.T) {
	clock := newFakeClock()
	finder := &fakeFinder{window: 7, usable: true}
	e := newTestEstimator(finder, clock, nil)
	e.Sample(1)
	clock.Advance(20 * time.Millisecond)
	e.Sample(1)

	finder.err = errors.New("enumeration failed")
	finder.window = 7
	clock.Advance(3 * time.Second)
	e.Sample(1)
	st, _ := e.State(1)
	if st.Window != 7 || len(st.FrameTimes) != 2 {
		t.Fatalf("expected old handle kept and sample taken, got %+v", st)
	}
}

func TestTickComputesCoarseRate(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{}, clock, nil)
	e.Sample(1)

	for i := 0; i < 9; i++ {
		clock.Advance(100 * time.Millisecond)
		e.tick(context.Background())
	}
	st, _ := e.State(1)
	if st.TickCount != 9 || st.CoarseFPS != 0 {
		t.Fatalf("window should still be open, got %+v", st)
	}

	clock.Advance(100 * time.Millisecond)
	e.tick(context.Background())
	st, _ = e.State(1)
	if math.Abs(st.CoarseFPS-10) > 1e-9 || st.TickCount != 0 || !st.WindowStart.Equal(clock.Now()) {
		t.Fatalf("expected coarse 10 and a reset window, got %+v", st)
	}
}

func TestTickPurgesDeadProcesses(t *testing.T) {
	clock := newFakeClock()
	var checks int
	alive := func(_ context.Context, pid int32) bool {
		checks++
		return pid != 2
	}
	e := newTestEstimator(&fakeFinder{}, clock, alive)
	var purged []int32
	e.OnPurge(func(pid int32) { purged = append(purged, pid) })
	e.Sample(1)
	e.Sample(2)

	clock.Advance(500 * time.Millisecond)
	e.tick(context.Background())
	if checks != 0 {
		t.Fatalf("liveness must only be checked on rollover, got %d checks", checks)
	}

	clock.Advance(500 * time.Millisecond)
	e.tick(context.Background())
	if _, ok := e.State(2); ok {
		t.Fatalf("dead pid should be purged")
	}
	if _, ok := e.State(1); !ok {
		t.Fatalf("live pid should be kept")
	}
	if len(purged) != 1 || purged[0] != 2 {
		t.Fatalf("expected purge notification for 2, got %v", purged)
	}
}

func TestPurgeUnknownPidDoesNotNotify(t *testing.T) {
	e := newTestEstimator(&fakeFinder{}, newFakeClock(), nil)
	called := false
	e.OnPurge(func(int32) { called = true })
	e.Purge(42)
	if called {
		t.Fatalf("unknown pid must not notify")
	}
}

func TestStateReturnsCopy(t *testing.T) {
	clock := newFakeClock()
	e := newTestEstimator(&fakeFinder{window: 1, usable: true}, clock, nil)
	e.Sample(1)
	clock.Advance(10 * time.Millisecond)
	e.Sample(1)

	st, _ := e.State(1)
	st.FrameTimes[0] = 99
	again, _ := e.State(1)
	if again.FrameTimes[0] == 99 {
		t.Fatalf("state copy must not alias internal history")
	}
}

func TestNewAndCloseStopsLoop(t *testing.T) {
	e := New(Options{Finder: &fakeFinder{}, Alive: func(context.Context, int32) bool { return true }})
	e.Sample(3)
	time.Sleep(20 * time.Millisecond)
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-e.done:
	default:
		t.Fatalf("loop should have exited")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// fixedFinder always reports the same usable window and keeps no state.
type fixedFinder struct{ window Window }

func (f fixedFinder) Find(int32) (Window, error) { return f.window, nil }

func (f fixedFinder) Usable(w Window) bool { return w == f.window }

func TestConcurrentAccessWhileLoopRuns(t *testing.T) {
	e := New(Options{
		Finder:   fixedFinder{window: 7},
		TickRate: 2000,
		Alive:    func(context.Context, int32) bool { return false },
	})
	t.Cleanup(func() { _ = e.Close() })

	var purged atomic.Int64
	e.OnPurge(func(int32) { purged.Add(1) })

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				pid := int32(g*10 + i%5 + 1)
				e.Sample(pid)
				if st, ok := e.State(pid); ok && st.FrameTimes != nil && len(st.FrameTimes) > types.FrameHistorySize {
					t.Errorf("pid %d: history exceeded its bound", pid)
					return
				}
				if i%97 == 0 {
					e.Purge(pid)
				}
			}
		}(g)
	}
	wg.Wait()

	deadline := time.Now().Add(3 * time.Second)
	for e.Tracked() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("dead pids still tracked: %d", e.Tracked())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if purged.Load() == 0 {
		t.Fatalf("expected purge notifications")
	}
}
