// Package system gathers system-wide CPU, memory, GPU, temperature and storage
// readings. Every source is isolated: one failing reading degrades its own
// field and never the rest of the snapshot.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/srodi/framelens/pkg/types"
)

// Stubbable gopsutil entry points.
var (
	cpuPercent     = cpu.PercentWithContext
	virtualMemory  = mem.VirtualMemoryWithContext
	diskPartitions = disk.PartitionsWithContext
	diskUsage      = disk.UsageWithContext
)

// Config selects providers. Zero values pick the platform defaults.
type Config struct {
	Temperature []TemperatureProvider
	GPU         []GPUProvider
	NvidiaSMI   NvidiaSMI
	Logger      *slog.Logger
}

// Collector produces SystemSnapshots.
type Collector struct {
	temps  []TemperatureProvider
	gpus   []GPUProvider
	logger *slog.Logger
}

// NewCollector builds a collector from cfg.
func NewCollector(cfg Config) *Collector {
	c := &Collector{
		temps:  cfg.Temperature,
		gpus:   cfg.GPU,
		logger: cfg.Logger,
	}
	if c.temps == nil {
		c.temps = TemperatureChain(runtime.GOOS)
	}
	if c.gpus == nil {
		c.gpus = GPUChain(runtime.GOOS, cfg.NvidiaSMI)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Collect gathers one snapshot. Sources run concurrently; only a cancelled
// context fails the whole collection.
func (c *Collector) Collect(ctx context.Context) (*types.SystemSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collecting system metrics: %w", err)
	}

	snap := &types.SystemSnapshot{}
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.CPU.Utilization = c.cpuUtilization(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.CPU.Temperature = c.cpuTemperature(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.GPU = c.gpu(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Memory = c.memory(ctx)
		snap.Storage = c.storage(ctx)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collecting system metrics: %w", err)
	}
	return snap, nil
}

func (c *Collector) cpuUtilization(ctx context.Context) float64 {
	pcts, err := cpuPercent(ctx, 0, false)
	if err != nil || len(pcts) == 0 {
		c.logger.Debug("cpu utilization unavailable", "err", err)
		return 0
	}
	return pcts[0]
}

func (c *Collector) cpuTemperature(ctx context.Context) types.Reading {
	reading, source, err := FirstTemperature(ctx, c.temps)
	if err != nil {
		c.logger.Debug("cpu temperature unavailable", "err", err)
		return types.Reading{}
	}
	c.logger.Debug("cpu temperature", "source", source, "celsius", reading.Value)
	return reading
}

func (c *Collector) gpu(ctx context.Context) types.GPUStats {
	stats, err := FirstGPU(ctx, c.gpus)
	if err != nil {
		c.logger.Debug("gpu metrics unavailable", "err", err)
	}
	return stats
}

func (c *Collector) memory(ctx context.Context) types.MemoryStats {
	vm, err := virtualMemory(ctx)
	if err != nil || vm == nil {
		c.logger.Debug("memory totals unavailable", "err", err)
		return types.MemoryStats{}
	}
	return types.MemoryStats{
		Total:     vm.Total,
		Available: vm.Available,
		Used:      vm.Used,
		Percent:   vm.UsedPercent,
	}
}

// storage reports usage per device; inaccessible volumes are skipped.
func (c *Collector) storage(ctx context.Context) map[string]types.VolumeUsage {
	volumes := make(map[string]types.VolumeUsage)
	parts, err := diskPartitions(ctx, false)
	if err != nil {
		c.logger.Debug("partition enumeration failed", "err", err)
		return volumes
	}
	for _, p := range parts {
		if _, seen := volumes[p.Device]; seen {
			continue
		}
		usage, err := diskUsage(ctx, p.Mountpoint)
		if err != nil || usage == nil {
			continue
		}
		volumes[p.Device] = types.VolumeUsage{
			Total:   usage.Total,
			Used:    usage.Used,
			Free:    usage.Free,
			Percent: usage.UsedPercent,
		}
	}
	return volumes
}
