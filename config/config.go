// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Program rules: defined in the program config, immutable once the
//     program is initialized, identical for every node serving it
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Program config file (empty = built-in config for the network)
	ProgramFile string `conf:"program.file"`

	// Storage backend
	Storage StorageConfig

	// RPC server
	RPC RPCConfig

	// Prometheus metrics endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	InMemory bool `conf:"storage.memory"` // Keep state in memory only (tests, demos).
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
	Port    int    `conf:"metrics.port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `conf:"log.level"`
	File       string `conf:"log.file"`
	JSON       bool   `conf:"log.json"`
	MaxSizeMB  int    `conf:"log.maxsize"`
	MaxBackups int    `conf:"log.maxbackups"`
	MaxAgeDays int    `conf:"log.maxage"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.pumpbox
//	macOS:   ~/Library/Application Support/PumpBox
//	Windows: %APPDATA%\PumpBox
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pumpbox"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "PumpBox")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "PumpBox")
		}
		return filepath.Join(home, "AppData", "Roaming", "PumpBox")
	default:
		return filepath.Join(home, ".pumpbox")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the program state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "pumpbox.conf")
}
