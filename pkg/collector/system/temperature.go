package system

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/srodi/framelens/pkg/types"
)

// Readings outside this range are treated as a failed provider.
const (
	minPlausibleCelsius = 0
	maxPlausibleCelsius = 150
)

// sensorTemperatures allows tests to stub gopsutil sensor enumeration.
var sensorTemperatures = host.SensorsTemperaturesWithContext

// TemperatureProvider is one source of CPU temperature in degrees Celsius.
type TemperatureProvider interface {
	Name() string
	Temperature(ctx context.Context) (float64, error)
}

// TemperatureFunc adapts a function to TemperatureProvider.
type TemperatureFunc struct {
	Label string
	Fn    func(ctx context.Context) (float64, error)
}

func (f TemperatureFunc) Name() string { return f.Label }

func (f TemperatureFunc) Temperature(ctx context.Context) (float64, error) {
	return f.Fn(ctx)
}

// FirstTemperature tries providers in order and returns the first plausible
// reading with the provider's name. When every provider fails the reading is
// unknown and the error joins each failure with ErrSensorUnavailable.
func FirstTemperature(ctx context.Context, providers []TemperatureProvider) (types.Reading, string, error) {
	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return types.Reading{}, "", err
		}
		v, err := p.Temperature(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if !plausibleCelsius(v) {
			errs = append(errs, fmt.Errorf("%s: implausible reading %.1f", p.Name(), v))
			continue
		}
		return types.Measured(v), p.Name(), nil
	}
	return types.Reading{}, "", errors.Join(append([]error{types.ErrSensorUnavailable}, errs...)...)
}

func plausibleCelsius(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > minPlausibleCelsius && v <= maxPlausibleCelsius
}

// TemperatureChain returns the provider order used on goos.
func TemperatureChain(goos string) []TemperatureProvider {
	switch goos {
	case "windows":
		return []TemperatureProvider{
			openHardwareMonitorProvider(),
			acpiThermalZoneProvider(),
			perfThermalZoneProvider(),
			knownChipProvider(),
			speedFanProvider(),
		}
	case "linux":
		return []TemperatureProvider{
			sensorLabelProvider(),
			thermalZoneProvider(),
			knownChipProvider(),
		}
	default:
		return []TemperatureProvider{
			sensorLabelProvider(),
			knownChipProvider(),
		}
	}
}

// sensorLabelProvider picks the first sensor labelled as a CPU or package.
func sensorLabelProvider() TemperatureProvider {
	return TemperatureFunc{Label: "sensor-label", Fn: func(ctx context.Context) (float64, error) {
		sensors, err := readSensors(ctx)
		if err != nil {
			return 0, err
		}
		for _, s := range sensors {
			key := strings.ToLower(s.SensorKey)
			if strings.Contains(key, "cpu") || strings.Contains(key, "package") {
				return s.Temperature, nil
			}
		}
		return 0, errors.New("no cpu or package sensor")
	}}
}

// knownChips are probed in this order by knownChipProvider.
var knownChips = []string{"coretemp", "k10temp", "zenpower", "acpitz"}

// knownChipProvider picks the first sensor of a well-known CPU sensor chip.
func knownChipProvider() TemperatureProvider {
	return TemperatureFunc{Label: "known-chip", Fn: func(ctx context.Context) (float64, error) {
		sensors, err := readSensors(ctx)
		if err != nil {
			return 0, err
		}
		for _, chip := range knownChips {
			for _, s := range sensors {
				if strings.HasPrefix(strings.ToLower(s.SensorKey), chip) {
					return s.Temperature, nil
				}
			}
		}
		return 0, errors.New("no known cpu sensor chip")
	}}
}

// readSensors tolerates gopsutil's partial-result warnings.
func readSensors(ctx context.Context) ([]host.TemperatureStat, error) {
	sensors, err := sensorTemperatures(ctx)
	if len(sensors) == 0 {
		if err == nil {
			err = errors.New("no sensors reported")
		}
		return nil, err
	}
	return sensors, nil
}
