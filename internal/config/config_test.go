package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() accepted an explicitly named missing file")
	}

	// No explicit path: missing file falls back to defaults.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("store.backend = %q, want sqlite default", cfg.Store.Backend)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("scheduler.interval = %s, want 30s default", cfg.Scheduler.Interval)
	}
	if cfg.Server.Addr != ":8487" {
		t.Errorf("server.addr = %q, want :8487 default", cfg.Server.Addr)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "docket.yaml", `
store:
  backend: memory
scheduler:
  interval: 45s
logger:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store.backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Scheduler.Interval != 45*time.Second {
		t.Errorf("scheduler.interval = %s, want 45s", cfg.Scheduler.Interval)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("logger.level = %q, want debug", cfg.Logger.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Connectivity.Attempts != 3 {
		t.Errorf("connectivity.attempts = %d, want 3 default", cfg.Connectivity.Attempts)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "docket.yaml", "store:\n  backend: sqlite\n")
	t.Setenv("DOCKET_STORE_BACKEND", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store.backend = %q, want env override to win", cfg.Store.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = "sqlite"; c.Store.Path = " " }},
		{"remote without url", func(c *Config) { c.Store.Backend = "remote"; c.Store.RemoteURL = "" }},
		{"sub-second scan interval", func(c *Config) { c.Scheduler.Interval = 100 * time.Millisecond }},
		{"unknown logger format", func(c *Config) { c.Logger.Format = "xml" }},
		{"unknown logger output", func(c *Config) { c.Logger.Output = "syslog" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wd, err := os.Getwd()
			if err != nil {
				t.Fatalf("getwd: %v", err)
			}
			if err := os.Chdir(t.TempDir()); err != nil {
				t.Fatalf("chdir: %v", err)
			}
			t.Cleanup(func() { os.Chdir(wd) })
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted a bad config")
			}
		})
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docket.yaml", "logger:\n  level: info\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, func(err error) {
		t.Logf("watch error: %v", err)
	})
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "docket.yaml", "logger:\n  level: debug\n")

	select {
	case cfg := <-changes:
		if cfg.Logger.Level != "debug" {
			t.Errorf("reloaded logger.level = %q, want debug", cfg.Logger.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config write")
	}
}

func TestWatcher_BadReloadGoesToOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docket.yaml", "logger:\n  level: info\n")

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "docket.yaml", "store:\n  backend: dynamo\n")

	select {
	case err := <-errs:
		if err == nil {
			t.Error("onError received nil")
		}
	case cfg := <-changes:
		t.Fatalf("bad config delivered as change: %+v", cfg)
	case <-time.After(3 * time.Second):
		t.Fatal("no error after invalid config write")
	}
}
