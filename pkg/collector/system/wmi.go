package system

import (
	"context"
	"errors"
	"strings"

	"github.com/srodi/framelens/pkg/types"
)

// wmiQuery runs a WQL query into dst. It is only functional on Windows and
// can be stubbed in tests.
var wmiQuery = platformWMIQuery

type ohmSensor struct {
	Name  string
	Value float32
}

type acpiThermalZone struct {
	CurrentTemperature uint32
}

type perfThermalZone struct {
	Temperature uint32
}

type videoController struct {
	Name          string
	AdapterRAM    uint32
	DriverVersion string
}

const kelvinOffset = 273.15

// openHardwareMonitorProvider reads the sensor tree published by a running
// OpenHardwareMonitor instance.
func openHardwareMonitorProvider() TemperatureProvider {
	return TemperatureFunc{Label: "openhardwaremonitor", Fn: func(context.Context) (float64, error) {
		var sensors []ohmSensor
		q := "SELECT Name, Value FROM Sensor WHERE SensorType='Temperature'"
		if err := wmiQuery(q, `root\OpenHardwareMonitor`, &sensors); err != nil {
			return 0, err
		}
		for _, s := range sensors {
			name := strings.ToLower(s.Name)
			if strings.Contains(name, "cpu") || strings.Contains(name, "package") {
				return float64(s.Value), nil
			}
		}
		return 0, errors.New("no cpu sensor published")
	}}
}

// acpiThermalZoneProvider reports tenths of Kelvin.
func acpiThermalZoneProvider() TemperatureProvider {
	return TemperatureFunc{Label: "acpi-thermal-zone", Fn: func(context.Context) (float64, error) {
		var zones []acpiThermalZone
		if err := wmiQuery("SELECT CurrentTemperature FROM MSAcpi_ThermalZoneTemperature", `root\WMI`, &zones); err != nil {
			return 0, err
		}
		if len(zones) == 0 {
			return 0, errors.New("no thermal zones")
		}
		return float64(zones[0].CurrentTemperature)/10 - kelvinOffset, nil
	}}
}

// perfThermalZoneProvider reports whole Kelvin.
func perfThermalZoneProvider() TemperatureProvider {
	return TemperatureFunc{Label: "perf-thermal-zone", Fn: func(context.Context) (float64, error) {
		var zones []perfThermalZone
		q := "SELECT Temperature FROM Win32_PerfFormattedData_Counters_ThermalZoneInformation"
		if err := wmiQuery(q, `root\CIMV2`, &zones); err != nil {
			return 0, err
		}
		if len(zones) == 0 {
			return 0, errors.New("no thermal zone counters")
		}
		return float64(zones[0].Temperature) - kelvinOffset, nil
	}}
}

func speedFanProvider() TemperatureProvider {
	return TemperatureFunc{Label: "speedfan", Fn: func(context.Context) (float64, error) {
		var sensors []ohmSensor
		q := "SELECT Name, Value FROM Sensor WHERE SensorType='Temperature'"
		if err := wmiQuery(q, `root\speedfan`, &sensors); err != nil {
			return 0, err
		}
		if len(sensors) == 0 {
			return 0, errors.New("no speedfan sensors")
		}
		return float64(sensors[0].Value), nil
	}}
}

// wmiAdapterProvider enumerates video controllers. WMI exposes neither load
// nor temperature, so both stay unknown.
type wmiAdapterProvider struct{}

func (wmiAdapterProvider) Name() string { return "wmi-adapter" }

func (wmiAdapterProvider) GPU(context.Context) (types.GPUStats, error) {
	var controllers []videoController
	if err := wmiQuery("SELECT Name, AdapterRAM, DriverVersion FROM Win32_VideoController", `root\CIMV2`, &controllers); err != nil {
		return types.GPUStats{}, err
	}
	if len(controllers) == 0 {
		return types.GPUStats{}, errors.New("no video controllers")
	}
	vc := controllers[0]
	return types.GPUStats{
		Name:        vc.Name,
		MemoryTotal: float64(vc.AdapterRAM) / (1024 * 1024),
	}, nil
}
