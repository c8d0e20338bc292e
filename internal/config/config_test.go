package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Socket.Path == "" {
		t.Fatal("socket path not set")
	}
	if cfg.Paths.DBPath == "" {
		t.Fatal("db path empty")
	}
	if cfg.Monitor.Thresholds.DiskCrit < cfg.Monitor.Thresholds.DiskWarn {
		t.Fatal("default disk_crit below disk_warn")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Socket.MaxPerSecond != 20 {
		t.Errorf("MaxPerSecond = %d, want default 20", cfg.Socket.MaxPerSecond)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "socket:\n  path: /tmp/custom.sock\n  max_per_second: 50\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Socket.Path != "/tmp/custom.sock" {
		t.Errorf("Socket.Path = %q, want /tmp/custom.sock", cfg.Socket.Path)
	}
	if cfg.Socket.MaxPerSecond != 50 {
		t.Errorf("MaxPerSecond = %d, want 50", cfg.Socket.MaxPerSecond)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Unspecified sections retain defaults.
	if cfg.Monitor.CheckInterval == 0 {
		t.Error("Monitor.CheckInterval lost its default when unset in file")
	}
}

func TestLoadInvalidThresholdsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "monitor:\n  thresholds:\n    disk_warn: 0.9\n    disk_crit: 0.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for disk_crit < disk_warn")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CORTEXD_LOG_LEVEL", "WARN")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn (lowercased)", cfg.Logging.Level)
	}
}
