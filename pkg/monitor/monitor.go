// Package monitor wires the collectors and estimators into one poll API.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/srodi/framelens/pkg/advisor"
	"github.com/srodi/framelens/pkg/bottleneck"
	"github.com/srodi/framelens/pkg/collector/process"
	"github.com/srodi/framelens/pkg/collector/system"
	"github.com/srodi/framelens/pkg/fps"
	"github.com/srodi/framelens/pkg/framestats"
	"github.com/srodi/framelens/pkg/network"
	"github.com/srodi/framelens/pkg/types"
)

// ProcessSource enumerates games and snapshots one process.
type ProcessSource interface {
	RunningGames(ctx context.Context) ([]types.ProcessRecord, error)
	Snapshot(ctx context.Context, pid int32) (types.ProcessSnapshot, error)
	Forget(pid int32)
}

// SystemSource produces system-wide snapshots.
type SystemSource interface {
	Collect(ctx context.Context) (*types.SystemSnapshot, error)
}

// FPSSource estimates frame rates.
type FPSSource interface {
	Sample(pid int32) int
	State(pid int32) (fps.State, bool)
	OnPurge(fn func(pid int32))
	Close() error
}

// NetworkSource samples per-process network deltas.
type NetworkSource interface {
	Sample(ctx context.Context, pid int32) (types.NetworkDelta, error)
	Forget(pid int32)
}

// Options configures a Monitor. Nil sources are built from the remaining
// fields with their platform defaults.
type Options struct {
	Processes ProcessSource
	System    SystemSource
	FPS       FPSSource
	Network   NetworkSource

	Classifier    *process.Classifier
	SystemConfig  system.Config
	FPSOptions    fps.Options
	NetworkConfig network.Options

	Now    func() time.Time
	Logger *slog.Logger
}

// Result is everything one poll cycle learned about a process. Fields are nil
// when their source had no data.
type Result struct {
	PID       int32
	Name      string
	Time      time.Time
	Process   *types.ProcessSnapshot
	CoarseFPS float64
	System    *types.SystemSnapshot
	Verdict   *types.BottleneckVerdict
	Frames    *types.FrameStats
	Network   *types.NetworkDelta
	Tips      []string
}

// Monitor is the entry point used by the poll cycle.
type Monitor struct {
	procs   ProcessSource
	system  SystemSource
	fps     FPSSource
	network NetworkSource
	frames  *framestats.Registry
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	current int32
}

// New builds a monitor and starts the FPS background loop.
func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		procs:   opts.Processes,
		system:  opts.System,
		fps:     opts.FPS,
		network: opts.Network,
		frames:  framestats.NewRegistry(),
		now:     opts.Now,
		logger:  logger,
	}
	if m.procs == nil {
		m.procs = process.NewCollector(opts.Classifier, logger.With("component", "process"))
	}
	if m.system == nil {
		cfg := opts.SystemConfig
		if cfg.Logger == nil {
			cfg.Logger = logger.With("component", "system")
		}
		m.system = system.NewCollector(cfg)
	}
	if m.network == nil {
		cfg := opts.NetworkConfig
		if cfg.Logger == nil {
			cfg.Logger = logger.With("component", "network")
		}
		m.network = network.NewSampler(cfg)
	}
	if m.fps == nil {
		fo := opts.FPSOptions
		if fo.Logger == nil {
			fo.Logger = logger.With("component", "fps")
		}
		m.fps = fps.New(fo)
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.fps.OnPurge(m.forget)
	return m
}

// forget discards every piece of per-pid state once the process is gone.
func (m *Monitor) forget(pid int32) {
	m.procs.Forget(pid)
	m.network.Forget(pid)
	m.frames.Forget(pid)
	m.logger.Debug("process state discarded", "pid", pid)
}

// RunningGames lists monitorable processes sorted by name.
func (m *Monitor) RunningGames(ctx context.Context) ([]types.ProcessRecord, error) {
	return m.procs.RunningGames(ctx)
}

// ProcessMetrics returns pid's snapshot with its smoothed FPS, or nil when
// the process is unavailable.
func (m *Monitor) ProcessMetrics(ctx context.Context, pid int32) *types.ProcessSnapshot {
	snap, err := m.procs.Snapshot(ctx, pid)
	if err != nil {
		m.logger.Debug("process snapshot unavailable", "pid", pid, "err", err)
		return nil
	}
	snap.FPS = m.fps.Sample(pid)
	return &snap
}

// SystemMetrics returns a system snapshot, or nil when collection failed.
func (m *Monitor) SystemMetrics(ctx context.Context) *types.SystemSnapshot {
	snap, err := m.system.Collect(ctx)
	if err != nil {
		m.logger.Warn("system snapshot unavailable", "err", err)
		return nil
	}
	return snap
}

// Analyze returns the bottleneck verdict for one pair of snapshots.
func (m *Monitor) Analyze(proc types.ProcessSnapshot, sys types.SystemSnapshot) types.BottleneckVerdict {
	return bottleneck.Analyze(proc, sys)
}

// AnalyzeFrameTimes feeds one frame-time sample into pid's window.
func (m *Monitor) AnalyzeFrameTimes(pid int32, sampleMs float64) types.FrameStats {
	return m.frames.Analyze(pid, sampleMs)
}

// NetworkMetrics returns pid's network delta, or nil when unavailable.
func (m *Monitor) NetworkMetrics(ctx context.Context, pid int32) *types.NetworkDelta {
	delta, err := m.network.Sample(ctx, pid)
	if err != nil {
		m.logger.Debug("network sample unavailable", "pid", pid, "err", err)
		return nil
	}
	return &delta
}

// OptimizationTips returns the tips for a process.
func (m *Monitor) OptimizationTips(name string, proc types.ProcessSnapshot, sys *types.SystemSnapshot) []string {
	return advisor.Tips(name, proc, sys)
}

// Poll runs one poll cycle for pid. Switching to a different pid restarts
// that pid's frame statistics.
func (m *Monitor) Poll(ctx context.Context, pid int32, name string) Result {
	m.switchTo(pid)
	res := Result{PID: pid, Name: name, Time: m.now()}

	res.Process = m.ProcessMetrics(ctx, pid)
	res.System = m.SystemMetrics(ctx)
	if st, ok := m.fps.State(pid); ok {
		res.CoarseFPS = st.CoarseFPS
	}
	if res.Process == nil {
		return res
	}

	if res.System != nil {
		verdict := m.Analyze(*res.Process, *res.System)
		res.Verdict = &verdict
	}
	if ms := res.Process.FrameTimeMs(); ms > 0 {
		stats := m.AnalyzeFrameTimes(pid, ms)
		res.Frames = &stats
	}
	res.Network = m.NetworkMetrics(ctx, pid)
	res.Tips = m.OptimizationTips(name, *res.Process, res.System)
	return res
}

func (m *Monitor) switchTo(pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == pid {
		return
	}
	m.current = pid
	m.frames.Reset(pid)
}

// Close stops the FPS loop. Teardown is bounded and never blocks for long.
func (m *Monitor) Close() error {
	if err := m.fps.Close(); err != nil {
		return fmt.Errorf("closing fps estimator: %w", err)
	}
	return nil
}
