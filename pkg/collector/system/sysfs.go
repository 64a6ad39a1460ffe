package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/srodi/framelens/pkg/types"
)

// sysfsRoot allows tests to point sysfs lookups at a fixture tree.
var sysfsRoot = "/sys"

var pciVendors = map[string]string{
	"0x10de": "NVIDIA",
	"0x1002": "AMD",
	"0x8086": "Intel",
}

// readSysUint parses a single unsigned integer from a sysfs attribute.
func readSysUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func readSysString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// thermalZoneProvider reads the first usable kernel thermal zone, which
// reports millidegrees Celsius.
func thermalZoneProvider() TemperatureProvider {
	return TemperatureFunc{Label: "thermal-zone", Fn: func(context.Context) (float64, error) {
		zones, err := filepath.Glob(filepath.Join(sysfsRoot, "class", "thermal", "thermal_zone*"))
		if err != nil {
			return 0, err
		}
		sort.Strings(zones)
		for _, zone := range zones {
			milli, err := readSysUint(filepath.Join(zone, "temp"))
			if err != nil || milli == 0 {
				continue
			}
			return float64(milli) / 1000, nil
		}
		return 0, errors.New("no readable thermal zone")
	}}
}

// DRMAdapter enumerates display adapters under /sys/class/drm. Utilization is
// only known when the driver exposes gpu_busy_percent.
type DRMAdapter struct{}

func (DRMAdapter) Name() string { return "drm-adapter" }

func (DRMAdapter) GPU(context.Context) (types.GPUStats, error) {
	cards, err := filepath.Glob(filepath.Join(sysfsRoot, "class", "drm", "card*"))
	if err != nil {
		return types.GPUStats{}, err
	}
	sort.Strings(cards)
	for _, card := range cards {
		// card0-DP-1 and friends are connectors, not adapters.
		if strings.Contains(filepath.Base(card), "-") {
			continue
		}
		device := filepath.Join(card, "device")
		vendor, err := readSysString(filepath.Join(device, "vendor"))
		if err != nil {
			continue
		}

		stats := types.GPUStats{Name: pciVendors[vendor]}
		if stats.Name == "" {
			stats.Name = vendor
		}
		if busy, err := readSysUint(filepath.Join(device, "gpu_busy_percent")); err == nil {
			stats.Utilization = types.Measured(float64(busy))
		}
		if temps, _ := filepath.Glob(filepath.Join(device, "hwmon", "hwmon*", "temp1_input")); len(temps) > 0 {
			sort.Strings(temps)
			if milli, err := readSysUint(temps[0]); err == nil {
				stats.Temperature = types.Measured(float64(milli) / 1000)
			}
		}
		used, uerr := readSysUint(filepath.Join(device, "mem_info_vram_used"))
		total, terr := readSysUint(filepath.Join(device, "mem_info_vram_total"))
		if uerr == nil && terr == nil && total > 0 {
			stats.MemoryUsed = float64(used) / (1024 * 1024)
			stats.MemoryTotal = float64(total) / (1024 * 1024)
			stats.MemoryPercent = float64(used) / float64(total) * 100
		}
		return stats, nil
	}
	return types.GPUStats{}, fmt.Errorf("no display adapter under %s", filepath.Join(sysfsRoot, "class", "drm"))
}
