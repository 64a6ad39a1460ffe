// Package fps infers the frame rate of a process that exposes no render hook.
//
// Two paths feed one per-pid state. A background loop ticks at a fixed rate
// and derives a coarse rate once per second; Sample, called once per poll,
// measures the interval between polls while the process owns a usable window
// and smooths it with an exponential moving average.
package fps

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/srodi/framelens/pkg/collector/process"
	"github.com/srodi/framelens/pkg/ringbuf"
	"github.com/srodi/framelens/pkg/types"
)

const (
	// DefaultTickRate is the coarse loop frequency in Hz.
	DefaultTickRate = 240
	// emaWeight is the weight of the newest instantaneous rate.
	emaWeight       = 0.1
	coarseWindow    = time.Second
	reprobeInterval = 2 * time.Second
	closeTimeout    = time.Second
)

// Window is an opaque native window handle. Zero means none.
type Window uintptr

// WindowFinder locates the window a process renders into.
type WindowFinder interface {
	// Find returns the first visible top-level window owned by pid with a
	// positive client area.
	Find(pid int32) (Window, error)
	// Usable reports whether w still exists and has a positive client area.
	Usable(w Window) bool
}

// Options configures an Estimator. Zero values pick the defaults.
type Options struct {
	Finder   WindowFinder
	TickRate float64
	Now      func() time.Time
	// Alive reports process liveness; checked once per coarse window.
	Alive  func(ctx context.Context, pid int32) bool
	Logger *slog.Logger
}

// State is a copy of the per-pid estimator state.
type State struct {
	TickCount   int
	WindowStart time.Time
	CoarseFPS   float64
	SmoothedFPS float64
	Seeded      bool
	// FrameTimes holds the recent poll intervals in seconds, oldest first.
	FrameTimes []float64
	Window     Window
	LastSample time.Time
	LastProbe  time.Time
}

type tracked struct {
	mu          sync.Mutex
	ticks       int
	windowStart time.Time
	coarse      float64
	smoothed    float64
	seeded      bool
	history     *ringbuf.Buffer[float64]
	window      Window
	lastSample  time.Time
	lastProbe   time.Time
}

// Estimator owns the per-pid FPS state and the coarse background loop.
type Estimator struct {
	finder   WindowFinder
	interval time.Duration
	now      func() time.Time
	alive    func(ctx context.Context, pid int32) bool
	logger   *slog.Logger

	mu     sync.RWMutex
	states map[int32]*tracked

	subMu sync.Mutex
	subs  []func(pid int32)

	unsupported sync.Once
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// New builds an estimator and starts its coarse loop. Call Close to stop it.
func New(opts Options) *Estimator {
	e := newEstimator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(ctx)
	return e
}

func newEstimator(opts Options) *Estimator {
	e := &Estimator{
		finder: opts.Finder,
		now:    opts.Now,
		alive:  opts.Alive,
		logger: opts.Logger,
		states: make(map[int32]*tracked),
		done:   make(chan struct{}),
		cancel: func() {},
	}
	if e.finder == nil {
		e.finder = platformFinder()
	}
	rate := opts.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	e.interval = time.Duration(float64(time.Second) / rate)
	if e.now == nil {
		e.now = time.Now
	}
	if e.alive == nil {
		e.alive = process.Alive
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// OnPurge registers fn to run after a pid's state is discarded.
func (e *Estimator) OnPurge(fn func(pid int32)) {
	e.subMu.Lock()
	e.subs = append(e.subs, fn)
	e.subMu.Unlock()
}

// Sample runs the fine-grained path for pid and returns the smoothed FPS
// rounded to the nearest integer. The first call for a pid only starts
// tracking and returns 0.
func (e *Estimator) Sample(pid int32) int {
	now := e.now()
	st, created := e.track(pid, now)
	if created {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !e.ensureWindow(st, pid, now) {
		// Without a window there is no cadence to measure; restart the
		// interval so the next windowed sample is not one huge frame.
		st.lastSample = now
		return roundFPS(st.smoothed)
	}

	frameTime := now.Sub(st.lastSample).Seconds()
	st.lastSample = now
	if frameTime <= 0 {
		return roundFPS(st.smoothed)
	}
	st.history.Push(frameTime)
	avg := mean(st.history.Values())
	if avg > 0 {
		inst := 1 / avg
		if !st.seeded {
			st.smoothed = inst
			st.seeded = true
		} else {
			st.smoothed = emaWeight*inst + (1-emaWeight)*st.smoothed
		}
	}
	return roundFPS(st.smoothed)
}

// State returns a consistent copy of pid's state.
func (e *Estimator) State(pid int32) (State, bool) {
	e.mu.RLock()
	st, ok := e.states[pid]
	e.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return State{
		TickCount:   st.ticks,
		WindowStart: st.windowStart,
		CoarseFPS:   st.coarse,
		SmoothedFPS: st.smoothed,
		Seeded:      st.seeded,
		FrameTimes:  st.history.Values(),
		Window:      st.window,
		LastSample:  st.lastSample,
		LastProbe:   st.lastProbe,
	}, true
}

// Tracked returns the number of pids with state.
func (e *Estimator) Tracked() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}

// Purge discards pid's state and notifies subscribers. Unknown pids are a
// no-op.
func (e *Estimator) Purge(pid int32) {
	e.mu.Lock()
	_, ok := e.states[pid]
	delete(e.states, pid)
	e.mu.Unlock()
	if !ok {
		return
	}

	e.subMu.Lock()
	subs := append([]func(int32){}, e.subs...)
	e.subMu.Unlock()
	for _, fn := range subs {
		fn(pid)
	}
	e.logger.Debug("fps state purged", "pid", pid)
}

// Close stops the coarse loop and waits for it at most one second.
func (e *Estimator) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		select {
		case <-e.done:
		case <-time.After(closeTimeout):
			err = errors.New("fps loop did not stop in time")
			e.logger.Warn("fps loop shutdown timed out")
		}
	})
	return err
}

func (e *Estimator) track(pid int32, now time.Time) (*tracked, bool) {
	e.mu.RLock()
	st, ok := e.states[pid]
	e.mu.RUnlock()
	if ok {
		return st, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[pid]; ok {
		return st, false
	}
	st = &tracked{
		windowStart: now,
		lastSample:  now,
		history:     ringbuf.New[float64](types.FrameHistorySize),
	}
	e.states[pid] = st
	return st, true
}

// ensureWindow applies the re-probe policy: a cached handle is reused while
// it stays usable and the last probe is younger than reprobeInterval.
// Otherwise the windows are enumerated again; when that finds nothing the old
// handle is kept if it is still usable. Caller holds st.mu.
func (e *Estimator) ensureWindow(st *tracked, pid int32, now time.Time) bool {
	cachedOK := st.window != 0 && e.finder.Usable(st.window)
	if cachedOK && now.Sub(st.lastProbe) < reprobeInterval {
		return true
	}

	st.lastProbe = now
	w, err := e.finder.Find(pid)
	if err == nil && w != 0 {
		st.window = w
		return true
	}
	if errors.Is(err, types.ErrUnsupported) {
		e.unsupported.Do(func() {
			e.logger.Info("window discovery unsupported; fps reported as 0")
		})
	} else if err != nil {
		e.logger.Debug("window enumeration failed", "pid", pid, "err", err)
	}
	if cachedOK {
		return true
	}
	st.window = 0
	return false
}

func (e *Estimator) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick advances every tracked pid by one frame. Liveness is only checked for
// pids whose coarse window rolled over.
func (e *Estimator) tick(ctx context.Context) {
	now := e.now()

	e.mu.RLock()
	pids := make([]int32, 0, len(e.states))
	states := make([]*tracked, 0, len(e.states))
	for pid, st := range e.states {
		pids = append(pids, pid)
		states = append(states, st)
	}
	e.mu.RUnlock()

	var rolled []int32
	for i, st := range states {
		st.mu.Lock()
		st.ticks++
		elapsed := now.Sub(st.windowStart)
		if elapsed >= coarseWindow {
			st.coarse = float64(st.ticks) / elapsed.Seconds()
			st.ticks = 0
			st.windowStart = now
			rolled = append(rolled, pids[i])
		}
		st.mu.Unlock()
	}

	for _, pid := range rolled {
		if ctx.Err() != nil {
			return
		}
		if !e.alive(ctx, pid) {
			e.Purge(pid)
		}
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func roundFPS(v float64) int {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
