// Package config loads the framelens YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRefresh       = 500 * time.Millisecond
	defaultToolTimeout   = time.Second
	defaultLookupTimeout = 500 * time.Millisecond
	defaultCacheTTL      = time.Minute
	defaultTickRate      = 240
	defaultExportEvery   = 10 * time.Second
)

// Config is the full configuration file.
type Config struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Thresholds      Thresholds    `yaml:"thresholds"`
	Classifier      Classifier    `yaml:"classifier"`
	Sensors         Sensors       `yaml:"sensors"`
	FPS             FPS           `yaml:"fps"`
	Network         Network       `yaml:"network"`
	Telemetry       Telemetry     `yaml:"telemetry"`
	Log             Log           `yaml:"log"`
}

// Thresholds are the warning levels of the report, in percent and °C.
type Thresholds struct {
	CPUWarning  float64 `yaml:"cpu_warning"`
	GPUWarning  float64 `yaml:"gpu_warning"`
	RAMWarning  float64 `yaml:"ram_warning"`
	TempWarning float64 `yaml:"temp_warning"`
}

// Classifier extends the built-in process lists.
type Classifier struct {
	Allow         []string `yaml:"allow"`
	Deny          []string `yaml:"deny"`
	PathFragments []string `yaml:"path_fragments"`
}

// Sensors configures the hardware providers.
type Sensors struct {
	NvidiaSMIPath string        `yaml:"nvidia_smi_path"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
}

// FPS configures the frame-rate estimator.
type FPS struct {
	TickRate float64 `yaml:"tick_rate"`
}

// Network configures reverse DNS of remote endpoints.
type Network struct {
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Telemetry configures the OpenTelemetry exporter.
type Telemetry struct {
	Exporter string        `yaml:"exporter"`
	Endpoint string        `yaml:"endpoint"`
	Insecure bool          `yaml:"insecure"`
	Interval time.Duration `yaml:"interval"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RefreshInterval: defaultRefresh,
		Thresholds: Thresholds{
			CPUWarning:  90,
			GPUWarning:  90,
			RAMWarning:  90,
			TempWarning: 80,
		},
		Sensors: Sensors{ToolTimeout: defaultToolTimeout},
		FPS:     FPS{TickRate: defaultTickRate},
		Network: Network{
			LookupTimeout: defaultLookupTimeout,
			CacheTTL:      defaultCacheTTL,
		},
		Telemetry: Telemetry{Exporter: "none", Interval: defaultExportEvery},
		Log:       Log{Level: "warn", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return normalize(cfg)
}

var validExporters = map[string]bool{"none": true, "stdout": true, "otlp-grpc": true, "otlp-http": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func normalize(cfg Config) (Config, error) {
	def := Default()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.Sensors.ToolTimeout <= 0 {
		cfg.Sensors.ToolTimeout = def.Sensors.ToolTimeout
	}
	if cfg.FPS.TickRate <= 0 {
		cfg.FPS.TickRate = def.FPS.TickRate
	}
	if cfg.Network.LookupTimeout <= 0 {
		cfg.Network.LookupTimeout = def.Network.LookupTimeout
	}
	if cfg.Network.CacheTTL <= 0 {
		cfg.Network.CacheTTL = def.Network.CacheTTL
	}
	if cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = def.Telemetry.Interval
	}

	cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = def.Telemetry.Exporter
	}
	if !validExporters[cfg.Telemetry.Exporter] {
		return Config{}, fmt.Errorf("unknown telemetry exporter %q", cfg.Telemetry.Exporter)
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if !validLevels[cfg.Log.Level] {
		return Config{}, fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = def.Log.Format
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}

	cfg.Classifier.Allow = trimAll(cfg.Classifier.Allow)
	cfg.Classifier.Deny = trimAll(cfg.Classifier.Deny)
	cfg.Classifier.PathFragments = trimAll(cfg.Classifier.PathFragments)
	return cfg, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
