// Package advisor turns a poll's readings into optimization tips.
package advisor

import (
	"github.com/srodi/framelens/pkg/types"
)

// Inputs are the readings tip groups look at.
type Inputs struct {
	CPUPercent     float64
	GPUUtilization float64
}

// Group is a heading plus its tips, emitted when Applies holds.
type Group struct {
	Heading string
	Tips    []string
	Applies func(Inputs) bool
}

// Groups are emitted in order.
var Groups = []Group{
	{
		Heading: "High CPU usage detected:",
		Tips: []string{
			"- Close background applications",
			"- Update CPU drivers",
			"- Check CPU thermal paste",
		},
		Applies: func(in Inputs) bool { return in.CPUPercent > 80 },
	},
	{
		Heading: "Low GPU utilization detected:",
		Tips: []string{
			"- Enable GPU scheduling in Windows",
			"- Update GPU drivers",
			"- Check power management settings",
		},
		Applies: func(in Inputs) bool { return in.GPUUtilization < 70 },
	},
}

// Profile holds known-good settings for one game executable.
type Profile struct {
	NvidiaSettings  map[string]string
	WindowsSettings map[string]bool
	Suggestions     []string
}

// Profiles is keyed by exact process name.
var Profiles = map[string]Profile{
	"FortniteClient-Win64-Shipping.exe": {
		NvidiaSettings: map[string]string{
			"prefer_maximum_performance": "on",
			"threaded_optimization":      "On",
			"low_latency_mode":           "Ultra",
		},
		WindowsSettings: map[string]bool{
			"game_mode":                           true,
			"hardware_accelerated_gpu_scheduling": true,
		},
		Suggestions: []string{
			"Set 'Allow for Multithreaded Rendering' in game settings",
			"Disable 'Show FPS' for better performance",
			"Use Performance Mode for competitive play",
		},
	},
}

// Tips returns the applicable tip groups followed by the per-game
// suggestions for name. A nil or GPU-less system snapshot counts as 0% GPU.
func Tips(name string, proc types.ProcessSnapshot, sys *types.SystemSnapshot) []string {
	in := Inputs{CPUPercent: proc.CPUPercent}
	if sys != nil {
		in.GPUUtilization = sys.GPU.Utilization.Or(0)
	}

	var tips []string
	for _, g := range Groups {
		if g.Applies(in) {
			tips = append(tips, g.Heading)
			tips = append(tips, g.Tips...)
		}
	}
	if p, ok := Profiles[name]; ok {
		tips = append(tips, p.Suggestions...)
	}
	return tips
}

// ProfileFor returns the settings profile for name, if one is known.
func ProfileFor(name string) (Profile, bool) {
	p, ok := Profiles[name]
	return p, ok
}
