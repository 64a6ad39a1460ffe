// Package process enumerates OS processes, classifies monitorable games and
// samples per-process CPU and memory usage.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/framelens/pkg/types"
)

// maxDescendants bounds the child-process walk of a single snapshot.
const maxDescendants = 256

type processInfo interface {
	NameWithContext(ctx context.Context) (string, error)
	ExeWithContext(ctx context.Context) (string, error)
}

type rawProcess struct {
	PID  int32
	Info processInfo
}

// handle is the per-process view Snapshot needs. CPU percent is a delta since
// the previous call on the same handle (the first call reports zero), so
// handles are cached.
type handle interface {
	cpuPercent(ctx context.Context) (float64, error)
	memoryPercent(ctx context.Context) (float64, error)
	childPIDs(ctx context.Context) ([]int32, error)
}

// listProcesses and openProcess allow tests to stub the OS.
var (
	listProcesses = listGopsutilProcesses
	openProcess   = openGopsutilProcess
)

// Collector enumerates games and samples per-process usage.
type Collector struct {
	classifier *Classifier
	logger     *slog.Logger

	mu       sync.Mutex
	handles  map[int32]handle
	children map[int32][]int32
}

// NewCollector returns a collector using classifier. A nil classifier means
// the built-in lists; a nil logger means slog.Default().
func NewCollector(classifier *Classifier, logger *slog.Logger) *Collector {
	if classifier == nil {
		classifier = DefaultClassifier(nil, nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		classifier: classifier,
		logger:     logger,
		handles:    make(map[int32]handle),
		children:   make(map[int32][]int32),
	}
}

// RunningGames returns every monitorable process sorted by case-insensitive
// name. Processes that vanish or deny access mid-scan are skipped.
func (c *Collector) RunningGames(ctx context.Context) ([]types.ProcessRecord, error) {
	procs, err := listProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating processes: %w", err)
	}

	games := make([]types.ProcessRecord, 0, 16)
	for _, p := range procs {
		if p.Info == nil || p.PID <= 0 {
			continue
		}
		name, err := p.Info.NameWithContext(ctx)
		if err != nil {
			continue
		}
		path, err := p.Info.ExeWithContext(ctx)
		if err != nil || !hasExeSuffix(path) {
			continue
		}
		class := c.classifier.Classify(name, path)
		if !class.Included() {
			continue
		}
		games = append(games, types.ProcessRecord{
			PID:            p.PID,
			Name:           name,
			Path:           path,
			Classification: class,
		})
	}

	sort.SliceStable(games, func(i, j int) bool {
		a, b := strings.ToLower(games[i].Name), strings.ToLower(games[j].Name)
		if a == b {
			return games[i].PID < games[j].PID
		}
		return a < b
	})
	return games, nil
}

// Snapshot samples CPU and memory usage of pid. CPU includes all descendant
// processes; both percentages are clamped to [0,100]. FPS is left zero.
func (c *Collector) Snapshot(ctx context.Context, pid int32) (types.ProcessSnapshot, error) {
	h, err := c.handle(ctx, pid)
	if err != nil {
		return types.ProcessSnapshot{}, fmt.Errorf("pid %d: %w: %v", pid, types.ErrProcessUnavailable, err)
	}

	cpuPct, err := h.cpuPercent(ctx)
	if err != nil {
		c.Forget(pid)
		return types.ProcessSnapshot{}, fmt.Errorf("pid %d cpu: %w: %v", pid, types.ErrProcessUnavailable, err)
	}
	memPct, err := h.memoryPercent(ctx)
	if err != nil {
		c.logger.Debug("memory percent unavailable", "pid", pid, "err", err)
		memPct = 0
	}

	kids := c.descendants(ctx, h)
	c.replaceChildren(pid, kids)
	for _, child := range kids {
		ch, err := c.handle(ctx, child)
		if err != nil {
			continue
		}
		pct, err := ch.cpuPercent(ctx)
		if err != nil {
			c.Forget(child)
			continue
		}
		cpuPct += pct
	}

	return types.ProcessSnapshot{
		CPUPercent:    clampPercent(cpuPct),
		MemoryPercent: clampPercent(memPct),
	}, nil
}

// Forget drops the cached handles of pid and of the descendants found by
// its last snapshot.
func (c *Collector) Forget(pid int32) {
	c.mu.Lock()
	for _, kid := range c.children[pid] {
		delete(c.handles, kid)
	}
	delete(c.children, pid)
	delete(c.handles, pid)
	c.mu.Unlock()
}

// replaceChildren records the descendants of root and drops the handles of
// descendants the walk no longer found.
func (c *Collector) replaceChildren(root int32, kids []int32) {
	current := make(map[int32]struct{}, len(kids))
	for _, kid := range kids {
		current[kid] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, old := range c.children[root] {
		if _, ok := current[old]; !ok {
			delete(c.handles, old)
		}
	}
	if len(kids) == 0 {
		delete(c.children, root)
		return
	}
	c.children[root] = kids
}

func (c *Collector) handle(ctx context.Context, pid int32) (handle, error) {
	c.mu.Lock()
	h, ok := c.handles[pid]
	c.mu.Unlock()
	if ok {
		return h, nil
	}

	h, err := openProcess(ctx, pid)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if existing, ok := c.handles[pid]; ok {
		h = existing
	} else {
		c.handles[pid] = h
	}
	c.mu.Unlock()
	return h, nil
}

// descendants walks the process tree below h breadth first.
func (c *Collector) descendants(ctx context.Context, h handle) []int32 {
	var out []int32
	seen := make(map[int32]struct{})
	queue := []handle{h}
	for len(queue) > 0 && len(out) < maxDescendants {
		cur := queue[0]
		queue = queue[1:]
		kids, err := cur.childPIDs(ctx)
		if err != nil {
			continue
		}
		for _, kid := range kids {
			if _, dup := seen[kid]; dup {
				continue
			}
			seen[kid] = struct{}{}
			out = append(out, kid)
			if kh, err := c.handle(ctx, kid); err == nil {
				queue = append(queue, kh)
			}
			if len(out) >= maxDescendants {
				break
			}
		}
	}
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func listGopsutilProcesses(ctx context.Context) ([]rawProcess, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawProcess, 0, len(procs))
	for _, p := range procs {
		if p == nil {
			continue
		}
		out = append(out, rawProcess{PID: p.Pid, Info: p})
	}
	return out, nil
}

type gopsutilHandle struct {
	proc *gopsproc.Process
}

func openGopsutilProcess(ctx context.Context, pid int32) (handle, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	return &gopsutilHandle{proc: p}, nil
}

func (h *gopsutilHandle) cpuPercent(ctx context.Context) (float64, error) {
	return h.proc.PercentWithContext(ctx, time.Duration(0))
}

func (h *gopsutilHandle) memoryPercent(ctx context.Context) (float64, error) {
	pct, err := h.proc.MemoryPercentWithContext(ctx)
	return float64(pct), err
}

func (h *gopsutilHandle) childPIDs(ctx context.Context) ([]int32, error) {
	kids, err := h.proc.ChildrenWithContext(ctx)
	if err != nil {
		return nil, err
	}
	pids := make([]int32, 0, len(kids))
	for _, k := range kids {
		pids = append(pids, k.Pid)
	}
	return pids, nil
}

// Alive reports whether pid still names a running process.
func Alive(ctx context.Context, pid int32) bool {
	ok, err := gopsproc.PidExistsWithContext(ctx, pid)
	return err == nil && ok
}
