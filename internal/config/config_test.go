package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Parts.BaseURL != DefaultPartsBase {
		t.Errorf("expected base url %s, got %s", DefaultPartsBase, cfg.Parts.BaseURL)
	}
	if cfg.Parts.FetchTimeout != 30*time.Second {
		t.Errorf("expected fetch timeout 30s, got %v", cfg.Parts.FetchTimeout)
	}
	if cfg.Steps.LayerTolerance != 8 {
		t.Errorf("expected layer tolerance 8, got %f", cfg.Steps.LayerTolerance)
	}
	if cfg.Viewport.MinZoom != 0.3 || cfg.Viewport.MaxZoom != 5.0 {
		t.Errorf("expected zoom range [0.3, 5.0], got [%f, %f]", cfg.Viewport.MinZoom, cfg.Viewport.MaxZoom)
	}
	if cfg.Viewport.FOV != 45 {
		t.Errorf("expected fov 45, got %f", cfg.Viewport.FOV)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "brickview.yaml")

	yamlContent := `
parts:
  base_url: "http://mirror.local:8080/ldraw/"
  concurrency: 2

steps:
  layer_tolerance: 12.5

logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Parts.BaseURL != "http://mirror.local:8080/ldraw/" {
		t.Errorf("expected mirror base url, got %s", cfg.Parts.BaseURL)
	}
	if cfg.Parts.Concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", cfg.Parts.Concurrency)
	}
	if cfg.Steps.LayerTolerance != 12.5 {
		t.Errorf("expected tolerance 12.5, got %f", cfg.Steps.LayerTolerance)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}

	// Unset values keep their defaults
	if cfg.Parts.CacheEntries != 2048 {
		t.Errorf("expected default cache entries, got %d", cfg.Parts.CacheEntries)
	}
	if cfg.Viewport.MaxZoom != 5.0 {
		t.Errorf("expected default max zoom, got %f", cfg.Viewport.MaxZoom)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit config path")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("parts: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "brickview.yaml")

	cfg := Default()
	cfg.Viewport.FPS = 60
	cfg.Parts.FetchTimeout = 5 * time.Second

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Viewport.FPS != 60 {
		t.Errorf("expected fps 60, got %d", loaded.Viewport.FPS)
	}
	if loaded.Parts.FetchTimeout != 5*time.Second {
		t.Errorf("expected fetch timeout 5s, got %v", loaded.Parts.FetchTimeout)
	}
}

func TestConfigDirXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on linux and other unix")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := ConfigDir(), filepath.Join("/tmp/xdg", "brickview"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}
