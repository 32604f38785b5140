package config

import (
	"strings"
	"time"
)

// Default wire and admin addresses. The wire ports match what clients
// and storage servers expect out of the box.
const (
	DefaultNameServerAddr = ":5555"
	DefaultStorageAddr    = ":6666"
	DefaultAPIAddr        = ":8080"
)

// DefaultConfig returns a fully populated configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. Explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyNameServerDefaults(&cfg.NameServer)
	applyStorageDefaults(&cfg.Storage)
	applyAPIDefaults(&cfg.API)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyNameServerDefaults(cfg *NameServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultNameServerAddr
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultStorageAddr
	}
	if cfg.RootDir == "" {
		cfg.RootDir = "./data"
	}
	if cfg.AdvertiseIP == "" {
		cfg.AdvertiseIP = "127.0.0.1"
	}
	if cfg.AdvertisePort == 0 {
		cfg.AdvertisePort = 6666
	}
	if cfg.NameServerAddr == "" {
		cfg.NameServerAddr = "127.0.0.1:5555"
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultAPIAddr
	}
}
