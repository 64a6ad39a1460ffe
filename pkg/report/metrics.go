package report

import (
	"fmt"
	"strings"

	"github.com/srodi/framelens/pkg/framestats"
	"github.com/srodi/framelens/pkg/monitor"
	"github.com/srodi/framelens/pkg/types"
)

// Thresholds are the warning levels; percentages except Temp, which is °C.
type Thresholds struct {
	CPU  float64
	GPU  float64
	RAM  float64
	Temp float64
}

// DefaultThresholds matches the defaults of the configuration file.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 90, GPU: 90, RAM: 90, Temp: 80}
}

// MetricRow is one display-ready line of the metric table.
type MetricRow struct {
	Label string
	Value string
	Warn  bool
}

// BuildMetricRows condenses a poll result into table rows. Unknown sensor
// readings render as "n/a", never as zero.
func BuildMetricRows(res monitor.Result, th Thresholds) []MetricRow {
	var rows []MetricRow
	if p := res.Process; p != nil {
		rows = append(rows,
			MetricRow{Label: "FPS", Value: fmt.Sprintf("%d (coarse %.0f)", p.FPS, res.CoarseFPS)},
			MetricRow{Label: "Frame time", Value: frameTime(p.FrameTimeMs())},
			MetricRow{Label: "Process CPU", Value: percent(p.CPUPercent), Warn: p.CPUPercent > th.CPU},
			MetricRow{Label: "Process memory", Value: percent(p.MemoryPercent), Warn: p.MemoryPercent > th.RAM},
		)
	}
	if s := res.System; s != nil {
		rows = append(rows,
			MetricRow{Label: "System CPU", Value: percent(s.CPU.Utilization), Warn: s.CPU.Utilization > th.CPU},
			MetricRow{Label: "CPU temp", Value: celsius(s.CPU.Temperature), Warn: s.CPU.Temperature.Known && s.CPU.Temperature.Value > th.Temp},
			MetricRow{Label: "System RAM", Value: memory(s.Memory), Warn: s.Memory.Percent > th.RAM},
			MetricRow{Label: "GPU", Value: gpuName(s.GPU)},
			MetricRow{Label: "GPU load", Value: reading(s.GPU.Utilization, "%.1f%%"), Warn: s.GPU.Utilization.Known && s.GPU.Utilization.Value > th.GPU},
			MetricRow{Label: "GPU temp", Value: celsius(s.GPU.Temperature), Warn: s.GPU.Temperature.Known && s.GPU.Temperature.Value > th.Temp},
		)
		if s.GPU.MemoryTotal > 0 {
			rows = append(rows, MetricRow{
				Label: "GPU memory",
				Value: fmt.Sprintf("%.0f / %.0f MiB (%.1f%%)", s.GPU.MemoryUsed, s.GPU.MemoryTotal, s.GPU.MemoryPercent),
			})
		}
	}
	return rows
}

// Warnings lists every reading above its threshold.
func Warnings(res monitor.Result, th Thresholds) []string {
	var out []string
	if p := res.Process; p != nil {
		if p.CPUPercent > th.CPU {
			out = append(out, fmt.Sprintf("process CPU at %.1f%% (warning above %.0f%%)", p.CPUPercent, th.CPU))
		}
		if p.MemoryPercent > th.RAM {
			out = append(out, fmt.Sprintf("process memory at %.1f%% (warning above %.0f%%)", p.MemoryPercent, th.RAM))
		}
	}
	if s := res.System; s != nil {
		if s.Memory.Percent > th.RAM {
			out = append(out, fmt.Sprintf("system RAM at %.1f%% (warning above %.0f%%)", s.Memory.Percent, th.RAM))
		}
		if s.GPU.Utilization.Known && s.GPU.Utilization.Value > th.GPU {
			out = append(out, fmt.Sprintf("GPU load at %.1f%% (warning above %.0f%%)", s.GPU.Utilization.Value, th.GPU))
		}
		if s.CPU.Temperature.Known && s.CPU.Temperature.Value > th.Temp {
			out = append(out, fmt.Sprintf("CPU temperature %.1f°C (warning above %.0f°C)", s.CPU.Temperature.Value, th.Temp))
		}
		if s.GPU.Temperature.Known && s.GPU.Temperature.Value > th.Temp {
			out = append(out, fmt.Sprintf("GPU temperature %.1f°C (warning above %.0f°C)", s.GPU.Temperature.Value, th.Temp))
		}
	}
	return out
}

// SelectGame picks the process to monitor: an exact pid, then a
// case-insensitive name, then the first allow-listed game, then the first
// game. It returns nil for an empty list or when an explicit choice is absent.
func SelectGame(games []types.ProcessRecord, pid int32, name string) *types.ProcessRecord {
	if len(games) == 0 {
		return nil
	}
	if pid > 0 {
		for _, g := range games {
			if g.PID == pid {
				rec := g
				return &rec
			}
		}
		return nil
	}
	if name != "" {
		for _, g := range games {
			if strings.EqualFold(g.Name, name) {
				rec := g
				return &rec
			}
		}
		return nil
	}
	for _, g := range games {
		if g.Classification == types.ClassAllowed {
			rec := g
			return &rec
		}
	}
	rec := games[0]
	return &rec
}

// FocusSummary returns a short explanation of the verdict for the status line.
func FocusSummary(v types.BottleneckVerdict, proc types.ProcessSnapshot, sys *types.SystemSnapshot) string {
	gpu := types.Reading{}
	if sys != nil {
		gpu = sys.GPU.Utilization
	}
	switch v.Component {
	case types.ComponentCPU:
		return fmt.Sprintf("%.1f%% CPU while the GPU idles at %s, severity %.0f%%",
			proc.CPUPercent, reading(gpu, "%.1f%%"), v.Severity*100)
	case types.ComponentGPU:
		return fmt.Sprintf("GPU at %s with only %.1f%% CPU, severity %.0f%%",
			reading(gpu, "%.1f%%"), proc.CPUPercent, v.Severity*100)
	case types.ComponentRAM:
		return fmt.Sprintf("memory at %.1f%%, severity %.0f%%",
			proc.MemoryPercent, v.Severity*100)
	default:
		return fmt.Sprintf("%.1f%% CPU, GPU %s, %.1f%% memory",
			proc.CPUPercent, reading(gpu, "%.1f%%"), proc.MemoryPercent)
	}
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func frameTime(ms float64) string {
	if ms <= 0 {
		return "--"
	}
	return fmt.Sprintf("%.1f ms (%s)", ms, framestats.FrameTimeRating(ms))
}

func percent(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func celsius(r types.Reading) string { return reading(r, "%.1f°C") }

func reading(r types.Reading, format string) string {
	if !r.Known {
		return "n/a"
	}
	return fmt.Sprintf(format, r.Value)
}

func memory(m types.MemoryStats) string {
	if m.Total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", FormatBytes(m.Used), FormatBytes(m.Total), m.Percent)
}

func gpuName(g types.GPUStats) string {
	name := g.Name
	if name == "" {
		name = "unknown"
	}
	if g.Source == "" {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, g.Source)
}

func classificationLabel(c types.Classification) string {
	switch c {
	case types.ClassAllowed:
		return "known game"
	case types.ClassHeuristicMatch:
		return "game library"
	default:
		return string(c)
	}
}
