package types

import "errors"

// Capacities of the rolling buffers kept per tracked process.
const (
	FrameHistorySize    = 60
	FrameTimeWindowSize = 300
)

var (
	// ErrProcessUnavailable reports a pid that exited or denied access.
	ErrProcessUnavailable = errors.New("process unavailable")
	// ErrSensorUnavailable reports that no sensor provider produced a reading.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrToolFailure reports a missing or failing vendor command-line tool.
	ErrToolFailure = errors.New("external tool failure")
	// ErrUnsupported reports a capability the current platform lacks.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// Classification records which rule admitted or rejected a process.
type Classification string

const (
	ClassAllowed        Classification = "allowed"
	ClassExcluded       Classification = "excluded"
	ClassHeuristicMatch Classification = "heuristic-match"
	ClassUnclassified   Classification = "unclassified"
)

// Included reports whether the classification makes a process monitorable.
func (c Classification) Included() bool {
	return c == ClassAllowed || c == ClassHeuristicMatch
}

// ProcessRecord describes one enumerated process.
type ProcessRecord struct {
	PID            int32
	Name           string
	Path           string
	Classification Classification
}

// Reading is a sensor value that may be unavailable. An unknown reading is
// never the same thing as a measured zero.
type Reading struct {
	Value float64
	Known bool
}

// Measured returns a known reading.
func Measured(v float64) Reading {
	return Reading{Value: v, Known: true}
}

// Or returns the value when known and fallback otherwise.
func (r Reading) Or(fallback float64) float64 {
	if !r.Known {
		return fallback
	}
	return r.Value
}

// CPUStats is the system-wide CPU block of a snapshot.
type CPUStats struct {
	Utilization float64
	Temperature Reading
}

// MemoryStats holds system memory totals in bytes.
type MemoryStats struct {
	Total     uint64
	Available uint64
	Used      uint64
	Percent   float64
}

// GPUStats holds the primary adapter's readings. Memory figures are MiB as
// reported by the vendor tool; they stay zero when unavailable.
type GPUStats struct {
	Name          string
	Source        string
	Utilization   Reading
	Temperature   Reading
	MemoryUsed    float64
	MemoryTotal   float64
	MemoryPercent float64
}

// VolumeUsage is the usage of one mounted volume in bytes.
type VolumeUsage struct {
	Total   uint64
	Used    uint64
	Free    uint64
	Percent float64
}

// SystemSnapshot aggregates system-wide readings taken in one collection.
type SystemSnapshot struct {
	CPU     CPUStats
	Memory  MemoryStats
	GPU     GPUStats
	Storage map[string]VolumeUsage
}

// ProcessSnapshot holds the per-process readings of one poll.
type ProcessSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	FPS           int
}

// FrameTimeMs converts the FPS into a frame time in milliseconds, zero when
// no frame rate is known.
func (p ProcessSnapshot) FrameTimeMs() float64 {
	if p.FPS <= 0 {
		return 0
	}
	return 1000 / float64(p.FPS)
}

// Pacing grades frame-time consistency.
type Pacing string

const (
	PacingExcellent Pacing = "Excellent"
	PacingGood      Pacing = "Good"
	PacingFair      Pacing = "Fair"
	PacingPoor      Pacing = "Poor"
)

// FrameStats is derived from a frame-time window; times are milliseconds.
type FrameStats struct {
	Samples      int
	AvgFrameTime float64
	Low1         float64
	Low01        float64
	Variance     float64
	Stutters     int
	Pacing       Pacing
}

// Server is a resolved remote endpoint of a process connection.
type Server struct {
	IP       string
	Port     uint32
	Hostname string
}

// NetworkDelta is the I/O since the previous sample of the same pid.
type NetworkDelta struct {
	BytesSent         uint64
	BytesRecv         uint64
	ActiveConnections int
	Servers           []Server
}

// Component names the resource a bottleneck verdict points at.
type Component string

const (
	ComponentNone Component = "none"
	ComponentCPU  Component = "CPU"
	ComponentGPU  Component = "GPU"
	ComponentRAM  Component = "RAM"
)

// BottleneckVerdict is the result of the bottleneck rules. Severity is in [0,1].
type BottleneckVerdict struct {
	Exists      bool
	Component   Component
	Severity    float64
	Description string
}
