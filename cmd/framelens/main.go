package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/srodi/framelens/pkg/collector/process"
	"github.com/srodi/framelens/pkg/collector/system"
	"github.com/srodi/framelens/pkg/config"
	"github.com/srodi/framelens/pkg/fps"
	"github.com/srodi/framelens/pkg/monitor"
	"github.com/srodi/framelens/pkg/network"
	"github.com/srodi/framelens/pkg/report"
	"github.com/srodi/framelens/pkg/telemetry"
	"github.com/srodi/framelens/pkg/types"
	"github.com/srodi/framelens/pkg/ui"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 3 * time.Second
	maxServers      = 8
)

type runConfig struct {
	configPath string
	interval   time.Duration
	pid        int
	name       string
	list       bool
	once       bool
	exporter   string
	logLevel   string
}

func parseConfig(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("framelens", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	interval := fs.Duration("interval", 0, "refresh interval (e.g. 500ms, 2s); overrides the config file")
	pid := fs.Int("pid", 0, "monitor this process id")
	name := fs.String("name", "", "monitor the first process with this executable name (case-insensitive)")
	list := fs.Bool("list", false, "list running games and exit")
	once := fs.Bool("once", false, "print a single report and exit")
	exporter := fs.String("exporter", "", "metrics exporter: none, stdout, otlp-grpc or otlp-http")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}

	cfg := runConfig{
		configPath: strings.TrimSpace(*configPath),
		interval:   *interval,
		pid:        *pid,
		name:       strings.TrimSpace(*name),
		list:       *list,
		once:       *once,
		exporter:   strings.ToLower(strings.TrimSpace(*exporter)),
		logLevel:   strings.ToLower(strings.TrimSpace(*logLevel)),
	}
	if cfg.pid < 0 {
		return runConfig{}, fmt.Errorf("invalid pid %d", cfg.pid)
	}
	if cfg.pid > 0 && cfg.name != "" {
		return runConfig{}, errors.New("-pid and -name are mutually exclusive")
	}
	return cfg, nil
}

// loadSettings reads the config file and layers the command-line flags over it.
func loadSettings(rc runConfig) (config.Config, error) {
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if rc.interval > 0 {
		cfg.RefreshInterval = rc.interval
	}
	if rc.exporter != "" {
		cfg.Telemetry.Exporter = rc.exporter
	}
	if rc.logLevel != "" {
		cfg.Log.Level = rc.logLevel
	}
	return cfg, nil
}

func main() {
	rc, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("parsing flags: %v", err)
	}
	if err := run(rc); err != nil {
		log.Fatal(err)
	}
}

func run(rc runConfig) error {
	cfg, err := loadSettings(rc)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(monitor.Options{
		Classifier: process.DefaultClassifier(cfg.Classifier.Allow, cfg.Classifier.Deny, cfg.Classifier.PathFragments),
		SystemConfig: system.Config{
			NvidiaSMI: system.NvidiaSMI{Path: cfg.Sensors.NvidiaSMIPath, Timeout: cfg.Sensors.ToolTimeout},
		},
		FPSOptions: fps.Options{TickRate: cfg.FPS.TickRate},
		NetworkConfig: network.Options{
			LookupTimeout: cfg.Network.LookupTimeout,
			CacheTTL:      cfg.Network.CacheTTL,
		},
		Logger: logger,
	})
	defer func() {
		if err := mon.Close(); err != nil {
			logger.Warn("monitor shutdown", "err", err)
		}
	}()

	if rc.list {
		games, err := mon.RunningGames(ctx)
		if err != nil {
			return fmt.Errorf("listing games: %w", err)
		}
		return report.RenderGames(os.Stdout, games)
	}

	metrics, err := telemetry.New(ctx, telemetry.Config{
		Exporter:       telemetry.ExporterType(cfg.Telemetry.Exporter),
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Interval:       cfg.Telemetry.Interval,
		ServiceName:    "framelens",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	view := &viewer{
		mon:     mon,
		metrics: metrics,
		logger:  logger,
		pid:     int32(rc.pid),
		name:    rc.name,
		opts: report.Options{
			Interval:   cfg.RefreshInterval,
			MaxServers: maxServers,
			Thresholds: report.Thresholds{
				CPU:  cfg.Thresholds.CPUWarning,
				GPU:  cfg.Thresholds.GPUWarning,
				RAM:  cfg.Thresholds.RAMWarning,
				Temp: cfg.Thresholds.TempWarning,
			},
		},
	}

	if rc.once {
		var buf bytes.Buffer
		if err := view.step(ctx, &buf); err != nil {
			return err
		}
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}

	cleanupTerminal := enableSingleView()
	defer cleanupTerminal()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var buf bytes.Buffer
			buf.WriteString(ui.Banner())
			if err := view.step(ctx, &buf); err != nil {
				logger.Warn("refresh failed", "err", err)
				continue
			}
			clearScreen()
			fmt.Print(buf.String())
		}
	}
}

// viewer holds the process being watched across refreshes.
type viewer struct {
	mon     *monitor.Monitor
	metrics *telemetry.Metrics
	logger  *slog.Logger
	opts    report.Options

	pid    int32
	name   string
	target *types.ProcessRecord
}

// step polls the current target and renders it into w. A target that went
// away is dropped so the next step picks a game again.
func (v *viewer) step(ctx context.Context, w io.Writer) error {
	if v.target == nil {
		games, err := v.mon.RunningGames(ctx)
		if err != nil {
			return fmt.Errorf("listing games: %w", err)
		}
		v.target = report.SelectGame(games, v.pid, v.name)
		if v.target == nil {
			fmt.Fprintf(w, "Waiting for a game (%s)...\n\n", v.describeChoice())
			return report.RenderGames(w, games)
		}
		v.logger.Info("monitoring process", "pid", v.target.PID, "name", v.target.Name)
	}

	res := v.mon.Poll(ctx, v.target.PID, v.target.Name)
	v.metrics.Record(ctx, res)
	if res.Process == nil {
		v.logger.Info("process went away", "pid", v.target.PID, "name", v.target.Name)
		v.target = nil
	}
	return report.Render(w, res, v.opts)
}

func (v *viewer) describeChoice() string {
	switch {
	case v.pid > 0:
		return fmt.Sprintf("pid %d", v.pid)
	case v.name != "":
		return v.name
	default:
		return "any"
	}
}

// newLogger builds the slog logger described by cfg. Without a log file the
// records go to stderr.
func newLogger(cfg config.Log, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out, closeFn := stderr, func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closeFn = f, func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With("service", "framelens", "version", version), closeFn, nil
}
