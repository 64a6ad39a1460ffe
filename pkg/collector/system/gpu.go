package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/srodi/framelens/pkg/types"
)

const defaultToolTimeout = time.Second

var nvidiaSMIQuery = []string{
	"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total,name",
	"--format=csv,noheader,nounits",
}

// runCommand and lookPath allow tests to stub the vendor tool.
var (
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
	lookPath = exec.LookPath
)

// GPUProvider is one source of GPU readings.
type GPUProvider interface {
	Name() string
	GPU(ctx context.Context) (types.GPUStats, error)
}

// FirstGPU tries providers in order and returns the first success, tagged with
// the provider name. When all fail the stats carry unknown readings.
func FirstGPU(ctx context.Context, providers []GPUProvider) (types.GPUStats, error) {
	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return types.GPUStats{}, err
		}
		stats, err := p.GPU(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		stats.Source = p.Name()
		return stats, nil
	}
	return types.GPUStats{}, errors.Join(append([]error{types.ErrToolFailure}, errs...)...)
}

// GPUChain returns the provider order used on goos.
func GPUChain(goos string, smi NvidiaSMI) []GPUProvider {
	switch goos {
	case "windows":
		return []GPUProvider{smi, wmiAdapterProvider{}}
	case "linux":
		return []GPUProvider{smi, DRMAdapter{}}
	default:
		return []GPUProvider{smi}
	}
}

// NvidiaSMI queries the NVIDIA command-line tool.
type NvidiaSMI struct {
	// Path to the binary. Empty means the System32 location on Windows and
	// a PATH lookup elsewhere.
	Path    string
	Timeout time.Duration
}

func (NvidiaSMI) Name() string { return "nvidia-smi" }

func (n NvidiaSMI) GPU(ctx context.Context) (types.GPUStats, error) {
	path, err := n.binary()
	if err != nil {
		return types.GPUStats{}, fmt.Errorf("%w: %v", types.ErrToolFailure, err)
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runCommand(ctx, path, nvidiaSMIQuery...)
	if err != nil {
		return types.GPUStats{}, fmt.Errorf("%w: running %s: %v", types.ErrToolFailure, path, err)
	}
	return parseNvidiaSMI(string(out))
}

func (n NvidiaSMI) binary() (string, error) {
	if n.Path != "" {
		return n.Path, nil
	}
	if root := os.Getenv("SystemRoot"); root != "" {
		candidate := filepath.Join(root, "System32", "nvidia-smi.exe")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return lookPath("nvidia-smi")
}

// parseNvidiaSMI reads the first GPU line of a csv,noheader,nounits query:
// utilization, temperature, memory used (MiB), memory total (MiB), name.
func parseNvidiaSMI(output string) (types.GPUStats, error) {
	line := strings.TrimSpace(output)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return types.GPUStats{}, fmt.Errorf("unexpected nvidia-smi output %q", line)
	}

	stats := types.GPUStats{
		Utilization: parseSMIReading(fields[0]),
		Temperature: parseSMIReading(fields[1]),
	}
	used := parseSMIReading(fields[2])
	total := parseSMIReading(fields[3])
	if !stats.Utilization.Known && !stats.Temperature.Known && !used.Known && !total.Known {
		return types.GPUStats{}, fmt.Errorf("nvidia-smi reported no usable fields: %q", line)
	}
	stats.MemoryUsed = used.Or(0)
	stats.MemoryTotal = total.Or(0)
	if stats.MemoryTotal > 0 {
		stats.MemoryPercent = stats.MemoryUsed / stats.MemoryTotal * 100
	}
	if len(fields) > 4 {
		stats.Name = strings.TrimSpace(strings.Join(fields[4:], ","))
	}
	return stats, nil
}

// parseSMIReading maps "[N/A]" and other non-numeric fields to unknown.
func parseSMIReading(field string) types.Reading {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return types.Reading{}
	}
	return types.Measured(v)
}
