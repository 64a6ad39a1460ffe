package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/srodi/framelens/pkg/config"
)

func TestParseConfigDefaults(t *testing.T) {
	rc, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if rc.interval != 0 || rc.pid != 0 || rc.name != "" || rc.list || rc.once {
		t.Fatalf("unexpected defaults %+v", rc)
	}
}

func TestParseConfigFlags(t *testing.T) {
	rc, err := parseConfig([]string{"-interval", "2s", "-name", " Game.exe ", "-exporter", "STDOUT", "-once"})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if rc.interval != 2*time.Second || rc.name != "Game.exe" || rc.exporter != "stdout" || !rc.once {
		t.Fatalf("unexpected config %+v", rc)
	}
}

func TestParseConfigRejectsConflicts(t *testing.T) {
	if _, err := parseConfig([]string{"-pid", "10", "-name", "game.exe"}); err == nil {
		t.Fatalf("expected -pid and -name to conflict")
	}
	if _, err := parseConfig([]string{"-pid", "-3"}); err == nil {
		t.Fatalf("expected negative pid to be rejected")
	}
}

func TestLoadSettingsLayersFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framelens.yaml")
	data := "refresh_interval: 1s\ntelemetry:\n  exporter: stdout\nlog:\n  level: info\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadSettings(runConfig{configPath: path})
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if cfg.RefreshInterval != time.Second || cfg.Telemetry.Exporter != "stdout" || cfg.Log.Level != "info" {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	cfg, err = loadSettings(runConfig{configPath: path, interval: 250 * time.Millisecond, exporter: "none", logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if cfg.RefreshInterval != 250*time.Millisecond || cfg.Telemetry.Exporter != "none" || cfg.Log.Level != "debug" {
		t.Fatalf("flags not layered over file: %+v", cfg)
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := loadSettings(runConfig{configPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := newLogger(config.Log{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeLog()

	logger.Info("hidden")
	logger.Warn("shown", "pid", 7)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"pid":7`) {
		t.Fatalf("expected json warn record, got %s", out)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framelens.log")
	logger, closeLog, err := newLogger(config.Log{Level: "debug", Format: "text", File: path}, nil)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("to file")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"to file\"") {
		t.Fatalf("unexpected log file contents %q", data)
	}
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	if _, _, err := newLogger(config.Log{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
