// Package config handles brickview configuration loading and management.
package config

import "time"

// DefaultPartsBase is the public LDraw parts library mirror.
const DefaultPartsBase = "https://raw.githubusercontent.com/gkjohnson/ldraw-parts-library/master/complete/ldraw/"

// Config holds all viewer settings.
type Config struct {
	Parts    PartsConfig    `yaml:"parts"`
	Steps    StepsConfig    `yaml:"steps"`
	Viewport ViewportConfig `yaml:"viewport"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PartsConfig holds parts library settings.
type PartsConfig struct {
	BaseURL      string        `yaml:"base_url"`      // Library root, must end in '/'
	CacheEntries int           `yaml:"cache_entries"` // Max cached files per session
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Concurrency  int           `yaml:"concurrency"` // Parallel sub-file fetches
}

// StepsConfig holds assembly step settings.
type StepsConfig struct {
	LayerTolerance float64 `yaml:"layer_tolerance"` // LDraw units
}

// ViewportConfig holds camera and render loop settings.
type ViewportConfig struct {
	BaseMultiplier float64 `yaml:"base_multiplier"`
	MinZoom        float64 `yaml:"min_zoom"`
	MaxZoom        float64 `yaml:"max_zoom"`
	FPS            int     `yaml:"fps"`
	FOV            float64 `yaml:"fov"` // Degrees
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Parts: PartsConfig{
			BaseURL:      DefaultPartsBase,
			CacheEntries: 2048,
			FetchTimeout: 30 * time.Second,
			Concurrency:  8,
		},
		Steps: StepsConfig{
			LayerTolerance: 8,
		},
		Viewport: ViewportConfig{
			BaseMultiplier: 1.5,
			MinZoom:        0.3,
			MaxZoom:        5.0,
			FPS:            30,
			FOV:            45,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
