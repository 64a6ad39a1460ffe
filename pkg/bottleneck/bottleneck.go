// Package bottleneck judges which resource limits a monitored process.
package bottleneck

import (
	"math"

	"github.com/srodi/framelens/pkg/types"
)

const (
	// HighUsage is the utilization above which a resource is saturated.
	HighUsage = 90.0
	// LowUsage is the utilization below which a resource is idle.
	LowUsage = 30.0
	// severitySpan maps HighUsage..HighUsage+span onto severity 0..1.
	severitySpan = 10.0
)

// Inputs are the utilization percentages the rules look at.
type Inputs struct {
	CPU    float64
	GPU    float64
	Memory float64
}

// InputsFor takes CPU and memory from the process and GPU from the system.
// An unknown GPU utilization counts as idle.
func InputsFor(proc types.ProcessSnapshot, sys types.SystemSnapshot) Inputs {
	return Inputs{
		CPU:    proc.CPUPercent,
		GPU:    sys.GPU.Utilization.Or(0),
		Memory: proc.MemoryPercent,
	}
}

// Rule is one entry of the ordered rule table.
type Rule struct {
	Component   types.Component
	Description string
	Match       func(Inputs) bool
	// Usage selects the saturated utilization that drives severity.
	Usage func(Inputs) float64
}

// Rules are evaluated in order; the first match wins. A process that
// saturates both CPU and GPU matches none of them.
var Rules = []Rule{
	{
		Component:   types.ComponentCPU,
		Description: "CPU bottleneck detected",
		Match:       func(in Inputs) bool { return in.CPU > HighUsage && in.GPU < LowUsage },
		Usage:       func(in Inputs) float64 { return in.CPU },
	},
	{
		Component:   types.ComponentGPU,
		Description: "GPU bottleneck detected",
		Match:       func(in Inputs) bool { return in.GPU > HighUsage && in.CPU < LowUsage },
		Usage:       func(in Inputs) float64 { return in.GPU },
	},
	{
		Component:   types.ComponentRAM,
		Description: "Memory bottleneck detected",
		Match:       func(in Inputs) bool { return in.Memory > HighUsage },
		Usage:       func(in Inputs) float64 { return in.Memory },
	},
}

// None is the verdict when no rule matches.
var None = types.BottleneckVerdict{
	Component:   types.ComponentNone,
	Description: "No bottleneck detected",
}

// Analyze applies Rules to one pair of snapshots.
func Analyze(proc types.ProcessSnapshot, sys types.SystemSnapshot) types.BottleneckVerdict {
	return Evaluate(Rules, InputsFor(proc, sys))
}

// Evaluate applies rules to in and returns the first match.
func Evaluate(rules []Rule, in Inputs) types.BottleneckVerdict {
	for _, r := range rules {
		if !r.Match(in) {
			continue
		}
		return types.BottleneckVerdict{
			Exists:      true,
			Component:   r.Component,
			Severity:    Severity(r.Usage(in)),
			Description: r.Description,
		}
	}
	return None
}

// Severity maps a saturated utilization to [0,1].
func Severity(usage float64) float64 {
	s := (usage - HighUsage) / severitySpan
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
