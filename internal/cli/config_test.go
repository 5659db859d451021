package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if !cfg.EnableConditions {
		t.Error("conditions must default on")
	}
	if !cfg.EnableWatch {
		t.Error("watch must default on")
	}
	if cfg.MaxStackDepth != 100 {
		t.Errorf("MaxStackDepth = %d, want 100", cfg.MaxStackDepth)
	}
	if cfg.EvalTimeout != 5*time.Second {
		t.Errorf("EvalTimeout = %v, want 5s", cfg.EvalTimeout)
	}
	if cfg.StopOnEntry {
		t.Error("StopOnEntry must default off")
	}
	if cfg.LogFile != "" {
		t.Error("logging must default off")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptdbg.yaml")
	data := []byte("stop_on_entry: true\nmax_stack_depth: 25\nlog_level: debug\neval_timeout: 2s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if !cfg.StopOnEntry {
		t.Error("stop_on_entry not applied")
	}
	if cfg.MaxStackDepth != 25 {
		t.Errorf("MaxStackDepth = %d, want 25", cfg.MaxStackDepth)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.EvalTimeout != 2*time.Second {
		t.Errorf("EvalTimeout = %v, want 2s", cfg.EvalTimeout)
	}
	// Unset keys keep their defaults.
	if !cfg.EnableConditions {
		t.Error("unset enable_conditions must keep default")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestNewLoggerNopWithoutFile(t *testing.T) {
	logger, err := NewLogger(Default())
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("nil logger")
	}
	logger.Info("goes nowhere")
}

func TestNewLoggerWritesToFile(t *testing.T) {
	cfg := Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "dbg.log")
	cfg.LogLevel = "debug"

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	logger.Sync()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file empty")
	}
}

func TestNewLoggerBadLevel(t *testing.T) {
	cfg := Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "dbg.log")
	cfg.LogLevel = "chatty"

	if _, err := NewLogger(cfg); err == nil {
		t.Fatal("expected an error for a bad level")
	}
}
