package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config captures the static configuration of a shuttle deployment.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SHUTTLE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Project is the project name. It becomes part of provisioned resource
	// identifiers and host labels, so it is validated strictly.
	Project string `mapstructure:"project" validate:"required,project_name" yaml:"project"`

	// Source is the directory holding the unit's Go source tree.
	Source string `mapstructure:"source" yaml:"source"`

	// Environment names the deployment environment ("staging", "production").
	Environment string `mapstructure:"environment" yaml:"environment"`

	// Address is the network address the unit serves on.
	Address string `mapstructure:"address" validate:"required" yaml:"address"`

	// WorkDir is the per-project directory for filesystem-backed resources.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	// GracePeriod is the maximum time to wait for graceful shutdown of a
	// serving generation before it is abandoned.
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"required,gt=0" yaml:"grace_period"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Build configures the toolchain used to compile units
	Build BuildConfig `mapstructure:"build" yaml:"build"`

	// Watch configures the source watcher that triggers reloads
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`

	// API contains control API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics controls Prometheus metrics exposure on the control API
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Secrets are user-declared deployment secrets, available to resource
	// configuration templates as {secrets.NAME}.
	Secrets map[string]string `mapstructure:"secrets" yaml:"secrets,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// BuildConfig configures the toolchain that compiles unit source trees.
type BuildConfig struct {
	// GoBinary is the go toolchain binary to invoke.
	// Default: "go" (resolved via PATH)
	GoBinary string `mapstructure:"go_binary" yaml:"go_binary"`

	// ArtifactDir is the directory where built artifacts are published.
	ArtifactDir string `mapstructure:"artifact_dir" yaml:"artifact_dir"`

	// GoVersion, when set, requires the unit's module to declare a
	// compatible go directive. Empty disables the check.
	GoVersion string `mapstructure:"go_version" yaml:"go_version,omitempty"`
}

// WatchConfig configures the filesystem watcher that rebuilds and reloads
// the unit when its source changes.
type WatchConfig struct {
	// Enabled controls whether source watching is active
	// Default: true for the run command
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Debounce is how long to wait after the last change before reloading.
	// Default: 500ms
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// APIConfig configures the control API HTTP server.
type APIConfig struct {
	// Enabled controls whether the control API is served
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the control API
	// Default: 8585
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds request header reads.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds response writes.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// MetricsConfig controls Prometheus metrics exposure.
// Metrics are served on the control API under /metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SHUTTLE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  shuttle init\n\n"+
				"Or specify a custom config file:\n"+
				"  shuttle <command> --config /path/to/shuttle.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  shuttle init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files may carry secrets, keep them owner-only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SHUTTLE_ prefix and underscores.
	// Example: SHUTTLE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SHUTTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("shuttle")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicitly specified config files surface as os.PathError.
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "shuttle")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "shuttle")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "shuttle.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
