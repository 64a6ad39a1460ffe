package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/srodi/framelens/pkg/monitor"
	"github.com/srodi/framelens/pkg/types"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func gaugeValue(t *testing.T, metrics map[string]metricdata.Metrics, name string) float64 {
	t.Helper()
	m, ok := metrics[name]
	if !ok {
		t.Fatalf("metric %s not exported", name)
	}
	g, ok := m.Data.(metricdata.Gauge[float64])
	if !ok || len(g.DataPoints) != 1 {
		t.Fatalf("%s: unexpected data %#v", name, m.Data)
	}
	return g.DataPoints[0].Value
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Exporter != ExporterNone || cfg.ServiceName != "framelens" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestNewWithoutExporter(t *testing.T) {
	m, err := New(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Record(context.Background(), monitor.Result{PID: 1})
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewStdoutExporter(t *testing.T) {
	m, err := New(context.Background(), Config{Exporter: ExporterStdout})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewUnknownExporter(t *testing.T) {
	if _, err := New(context.Background(), Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestRecordExportsGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := newMetrics(DefaultConfig(), reader)
	if err != nil {
		t.Fatalf("newMetrics: %v", err)
	}
	defer m.Shutdown(context.Background())

	sys := &types.SystemSnapshot{CPU: types.CPUStats{Utilization: 35}}
	sys.GPU.Utilization = types.Measured(12)
	m.Record(context.Background(), monitor.Result{
		PID:     42,
		Name:    "game.exe",
		Process: &types.ProcessSnapshot{CPUPercent: 95, MemoryPercent: 20, FPS: 144},
		System:  sys,
		Verdict: &types.BottleneckVerdict{Exists: true, Component: types.ComponentCPU, Severity: 0.5},
		Frames:  &types.FrameStats{Samples: 10, Stutters: 3},
	})

	metrics := collect(t, reader)
	checks := map[string]float64{
		NameFPS:           144,
		NameProcessCPU:    95,
		NameProcessMemory: 20,
		NameSystemCPU:     35,
		NameGPU:           12,
		NameSeverity:      0.5,
	}
	for name, want := range checks {
		if got := gaugeValue(t, metrics, name); got != want {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}

	stutters, ok := metrics[NameStutters].Data.(metricdata.Gauge[int64])
	if !ok || len(stutters.DataPoints) != 1 || stutters.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected stutters %#v", metrics[NameStutters].Data)
	}
	polls, ok := metrics[NamePolls].Data.(metricdata.Sum[int64])
	if !ok || len(polls.DataPoints) != 1 || polls.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected polls %#v", metrics[NamePolls].Data)
	}
}

func TestRecordSkipsUnknownReadings(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := newMetrics(DefaultConfig(), reader)
	if err != nil {
		t.Fatalf("newMetrics: %v", err)
	}
	defer m.Shutdown(context.Background())

	m.Record(context.Background(), monitor.Result{PID: 7, Name: "gone.exe", System: &types.SystemSnapshot{}})
	metrics := collect(t, reader)
	for _, name := range []string{NameFPS, NameGPU, NameSeverity, NameStutters} {
		if m, ok := metrics[name]; ok && dataPoints(m) > 0 {
			t.Fatalf("%s should not be observed without data", name)
		}
	}
	if got := gaugeValue(t, metrics, NameSystemCPU); got != 0 {
		t.Fatalf("system cpu should be observed, got %v", got)
	}
}

func dataPoints(m metricdata.Metrics) int {
	switch d := m.Data.(type) {
	case metricdata.Gauge[float64]:
		return len(d.DataPoints)
	case metricdata.Gauge[int64]:
		return len(d.DataPoints)
	default:
		return 0
	}
}
