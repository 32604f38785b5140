// Package config loads and validates the scribefs configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (SCRIBEFS_*)
//  2. Configuration file (YAML)
//  3. Default values
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

// Config is the full configuration for both daemons. Each binary reads
// only its own section plus the shared ones, so one file can configure
// a whole deployment.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// NameServer configures the metadata daemon.
	NameServer NameServerConfig `mapstructure:"nameserver" yaml:"nameserver"`

	// Storage configures the storage daemon.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Metrics configures the Prometheus registry. When disabled no
	// collectors are registered and the /metrics route is absent.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the name server's read-only admin HTTP surface.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// NameServerConfig configures the name server daemon.
type NameServerConfig struct {
	// ListenAddr is the wire protocol listen address, e.g. ":5555".
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// DataDir is where the catalog persists users and file metadata.
	// Empty disables persistence.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// CacheCapacity is the catalog LRU read-cache size. Zero uses the
	// catalog default.
	CacheCapacity int `mapstructure:"cache_capacity" validate:"gte=0" yaml:"cache_capacity"`

	// ExecCommand is the interpreter for EXEC files, e.g. "/bin/sh".
	// Empty disables EXEC.
	ExecCommand string `mapstructure:"exec_command" yaml:"exec_command"`

	// ExecTimeout bounds a single EXEC run.
	ExecTimeout time.Duration `mapstructure:"exec_timeout" validate:"gte=0" yaml:"exec_timeout"`
}

// StorageConfig configures the storage daemon.
type StorageConfig struct {
	// ListenAddr is the wire protocol listen address, e.g. ":6666".
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// RootDir is the directory holding file contents.
	RootDir string `mapstructure:"root_dir" validate:"required" yaml:"root_dir"`

	// AdvertiseIP and AdvertisePort are what gets registered with the
	// name server and embedded in client redirects. They must be
	// reachable from clients, not just from the name server.
	AdvertiseIP   string `mapstructure:"advertise_ip" validate:"required,ip" yaml:"advertise_ip"`
	AdvertisePort int    `mapstructure:"advertise_port" validate:"required,min=1,max=65535" yaml:"advertise_port"`

	// NameServerAddr is the name server's wire address for registration.
	NameServerAddr string `mapstructure:"nameserver_addr" validate:"required" yaml:"nameserver_addr"`
}

// MetricsConfig configures the Prometheus metrics registry.
type MetricsConfig struct {
	// Enabled turns collector registration on. Disabled means zero
	// overhead: the domain packages see nil collectors.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the admin HTTP server on the name server.
type APIConfig struct {
	// Enabled turns the HTTP listener on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Load loads configuration from file, environment, and defaults. An
// empty configPath searches the default location; a missing file is
// not an error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// SCRIBEFS_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("SCRIBEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets config files spell durations as "30s" or
// "5m" instead of nanosecond integers.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML numbers often arrive as float64.
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// configDir returns $XDG_CONFIG_HOME/scribefs, falling back to
// ~/.config/scribefs or the current directory.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "scribefs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "scribefs")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
