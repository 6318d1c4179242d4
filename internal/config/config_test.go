package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.Store.Driver != "bolt" || cfg.Debounce() != 300*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Window.RowSize != 40 || cfg.Window.Overscan != 5 || cfg.Window.Extent != 400 {
		t.Errorf("unexpected window defaults: %+v", cfg.Window)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `listen: ":9090"
aws:
  region: ap-northeast-1
  profile: dev
  group_prefix: /svc/
store:
  driver: sqlite
  path: /tmp/exports.sqlite
debounce_ms: 150
window:
  row_size: 24
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.AWS.Region != "ap-northeast-1" || cfg.AWS.Profile != "dev" || cfg.AWS.GroupPrefix != "/svc/" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/tmp/exports.sqlite" {
		t.Errorf("unexpected store: %+v", cfg.Store)
	}
	if cfg.Debounce() != 150*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce())
	}
	// fields absent from the file keep their defaults
	if cfg.Window.RowSize != 24 || cfg.Window.Overscan != 5 || cfg.RequestTimeoutSec != 60 {
		t.Errorf("unexpected window/timeout: %+v %d", cfg.Window, cfg.RequestTimeoutSec)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "listen: [unclosed"},
		{"negative debounce", "debounce_ms: -1"},
		{"zero row size", "window:\n  row_size: 0"},
		{"empty listen", `listen: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.content)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
