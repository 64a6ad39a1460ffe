// Package telemetry exports the derived indicators of the monitored process
// as OpenTelemetry metrics.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/srodi/framelens/pkg/monitor"
)

// ExporterType selects where metrics go.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config holds exporter settings.
type Config struct {
	Exporter       ExporterType
	Endpoint       string
	Insecure       bool
	Interval       time.Duration
	ServiceName    string
	ServiceVersion string
}

// DefaultConfig exports nothing.
func DefaultConfig() Config {
	return Config{
		Exporter:    ExporterNone,
		Interval:    10 * time.Second,
		ServiceName: "framelens",
	}
}

// Metric names.
const (
	NameFPS           = "framelens.fps"
	NameProcessCPU    = "framelens.process.cpu"
	NameProcessMemory = "framelens.process.memory"
	NameSystemCPU     = "framelens.system.cpu"
	NameGPU           = "framelens.gpu.utilization"
	NameSeverity      = "framelens.bottleneck.severity"
	NameStutters      = "framelens.stutters"
	NamePolls         = "framelens.polls"
)

// sample is the last recorded poll, read by the gauge callback.
type sample struct {
	valid     bool
	pid       int32
	name      string
	fps       float64
	procCPU   float64
	procMem   float64
	hasProc   bool
	sysCPU    float64
	hasSystem bool
	gpu       float64
	gpuKnown  bool
	severity  float64
	hasVerd   bool
	stutters  int64
	hasFrames bool
}

// Metrics owns the meter provider and the framelens instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reg      metric.Registration
	polls    metric.Int64Counter

	fps      metric.Float64ObservableGauge
	procCPU  metric.Float64ObservableGauge
	procMem  metric.Float64ObservableGauge
	sysCPU   metric.Float64ObservableGauge
	gpu      metric.Float64ObservableGauge
	severity metric.Float64ObservableGauge
	stutters metric.Int64ObservableGauge

	mu   sync.RWMutex
	last sample
}

// New builds the exporter selected by cfg and registers the instruments.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultConfig().ServiceName
	}
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return newMetrics(cfg, nil)
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metrics exporter: %w", err)
	}
	var opts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.Interval))
	}
	return newMetrics(cfg, sdkmetric.NewPeriodicReader(exporter, opts...))
}

func newMetrics(cfg Config, reader sdkmetric.Reader) (*Metrics, error) {
	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metrics resource: %w", err)
	}
	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	m := &Metrics{provider: sdkmetric.NewMeterProvider(providerOpts...)}
	if err := m.registerInstruments(m.provider.Meter(cfg.ServiceName)); err != nil {
		_ = m.provider.Shutdown(context.Background())
		return nil, err
	}
	return m, nil
}

func createExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		var opts []otlpmetricgrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		var opts []otlpmetrichttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Exporter)
	}
}

func createResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
}

func (m *Metrics) registerInstruments(meter metric.Meter) error {
	gauges := []struct {
		dst        *metric.Float64ObservableGauge
		name, desc string
		unit       string
	}{
		{&m.fps, NameFPS, "Smoothed frame rate of the monitored process", "{frame}/s"},
		{&m.procCPU, NameProcessCPU, "CPU utilization of the monitored process tree", "%"},
		{&m.procMem, NameProcessMemory, "Memory share of the monitored process", "%"},
		{&m.sysCPU, NameSystemCPU, "System-wide CPU utilization", "%"},
		{&m.gpu, NameGPU, "Primary GPU utilization", "%"},
		{&m.severity, NameSeverity, "Severity of the detected bottleneck", "1"},
	}
	observables := make([]metric.Observable, 0, len(gauges)+1)
	for _, g := range gauges {
		inst, err := meter.Float64ObservableGauge(g.name, metric.WithDescription(g.desc), metric.WithUnit(g.unit))
		if err != nil {
			return fmt.Errorf("creating %s gauge: %w", g.name, err)
		}
		*g.dst = inst
		observables = append(observables, inst)
	}

	var err error
	m.stutters, err = meter.Int64ObservableGauge(NameStutters,
		metric.WithDescription("Stutters in the current frame-time window"))
	if err != nil {
		return fmt.Errorf("creating %s gauge: %w", NameStutters, err)
	}
	observables = append(observables, m.stutters)

	m.polls, err = meter.Int64Counter(NamePolls, metric.WithDescription("Poll cycles by outcome"))
	if err != nil {
		return fmt.Errorf("creating %s counter: %w", NamePolls, err)
	}

	m.reg, err = meter.RegisterCallback(m.observe, observables...)
	if err != nil {
		return fmt.Errorf("registering gauge callback: %w", err)
	}
	return nil
}

// Record stores res for the gauges and counts the poll.
func (m *Metrics) Record(ctx context.Context, res monitor.Result) {
	s := sample{valid: true, pid: res.PID, name: res.Name}
	if res.Process != nil {
		s.hasProc = true
		s.fps = float64(res.Process.FPS)
		s.procCPU = res.Process.CPUPercent
		s.procMem = res.Process.MemoryPercent
	}
	if res.System != nil {
		s.hasSystem = true
		s.sysCPU = res.System.CPU.Utilization
		s.gpu = res.System.GPU.Utilization.Value
		s.gpuKnown = res.System.GPU.Utilization.Known
	}
	if res.Verdict != nil {
		s.hasVerd = true
		s.severity = res.Verdict.Severity
	}
	if res.Frames != nil {
		s.hasFrames = true
		s.stutters = int64(res.Frames.Stutters)
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()

	outcome := "ok"
	if res.Process == nil {
		outcome = "unavailable"
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) observe(_ context.Context, o metric.Observer) error {
	m.mu.RLock()
	s := m.last
	m.mu.RUnlock()
	if !s.valid {
		return nil
	}

	proc := metric.WithAttributes(
		semconv.ProcessPID(int(s.pid)),
		semconv.ProcessExecutableName(s.name),
	)
	if s.hasProc {
		o.ObserveFloat64(m.fps, s.fps, proc)
		o.ObserveFloat64(m.procCPU, s.procCPU, proc)
		o.ObserveFloat64(m.procMem, s.procMem, proc)
	}
	if s.hasSystem {
		o.ObserveFloat64(m.sysCPU, s.sysCPU)
		if s.gpuKnown {
			o.ObserveFloat64(m.gpu, s.gpu)
		}
	}
	if s.hasVerd {
		o.ObserveFloat64(m.severity, s.severity, proc)
	}
	if s.hasFrames {
		o.ObserveInt64(m.stutters, s.stutters, proc)
	}
	return nil
}

// Shutdown unregisters the gauges and flushes pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.reg != nil {
		if err := m.reg.Unregister(); err != nil {
			return fmt.Errorf("unregistering gauge callback: %w", err)
		}
	}
	return m.provider.Shutdown(ctx)
}
