package config

import (
	"strings"
	"time"
)

// GetDefaultConfig returns a configuration with all defaults applied.
// The project name is left empty; it has no sensible default and must be
// set by the user.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyCoreDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)
	applyBuildDefaults(&cfg.Build)
	applyWatchDefaults(&cfg.Watch)
	applyAPIDefaults(&cfg.API)
}

func applyCoreDefaults(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = "."
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8000"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = ".shuttle"
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 10 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyBuildDefaults(cfg *BuildConfig) {
	if cfg.GoBinary == "" {
		cfg.GoBinary = "go"
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = ".shuttle/artifacts"
	}
}

func applyWatchDefaults(cfg *WatchConfig) {
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8585
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}
