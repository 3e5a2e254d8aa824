package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to config file keys.
var flagKeys = map[string]string{
	"network":         "network",
	"datadir":         "datadir",
	"program":         "program.file",
	"memory":          "storage.memory",
	"rpc":             "rpc.enabled",
	"rpc-addr":        "rpc.addr",
	"rpc-port":        "rpc.port",
	"rpc-allowed":     "rpc.allowed",
	"rpc-cors":        "rpc.cors",
	"metrics":         "metrics.enabled",
	"metrics-addr":    "metrics.addr",
	"metrics-port":    "metrics.port",
	"log-level":       "log.level",
	"log-file":        "log.file",
	"log-json":        "log.json",
	"log-max-size":    "log.maxsize",
	"log-max-backups": "log.maxbackups",
	"log-max-age":     "log.maxage",
}

// RegisterFlags adds node settings to a flag set. Flags only override the
// config file when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("network", string(Mainnet), "Network: mainnet or testnet")
	fs.String("datadir", "", "Data directory (default: platform-specific)")
	fs.String("config", "", "Config file path (default: <datadir>/pumpbox.conf)")
	fs.String("program", "", "Program config JSON file (default: built-in for network)")
	fs.Bool("memory", false, "Keep program state in memory only")

	fs.Bool("rpc", true, "Enable the JSON-RPC server")
	fs.String("rpc-addr", "", "RPC listen address")
	fs.Int("rpc-port", 0, "RPC port")
	fs.String("rpc-allowed", "", "Comma-separated IPs/CIDRs allowed to call RPC")
	fs.String("rpc-cors", "", "Comma-separated allowed CORS origins")

	fs.Bool("metrics", false, "Enable the Prometheus metrics endpoint")
	fs.String("metrics-addr", "", "Metrics listen address")
	fs.Int("metrics-port", 0, "Metrics port")

	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Log file path (rotated)")
	fs.Bool("log-json", false, "Log JSON to stdout")
	fs.Int("log-max-size", 0, "Log file size in MB before rotation")
	fs.Int("log-max-backups", 0, "Rotated log files to keep")
	fs.Int("log-max-age", 0, "Days to keep rotated log files")
}

// Load builds the node config: defaults for the network, then the config
// file (key = value), then explicitly set flags. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("properties")

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	network := Mainnet
	if s := v.GetString("network"); s != "" {
		network = NetworkType(s)
	}
	cfg := Default(network)
	if s := v.GetString("datadir"); s != "" {
		cfg.DataDir = s
	}

	path := cfg.ConfigFile()
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
	}
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	// The file may name a different network; defaults follow it.
	if s := v.GetString("network"); s != "" && NetworkType(s) != network {
		dataDir := cfg.DataDir
		cfg = Default(NetworkType(s))
		cfg.DataDir = dataDir
	}
	if err := apply(cfg, v); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile merges a config file into v. A missing file is not an error.
func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// apply copies every key set in v onto cfg.
// Only node-operational settings, NOT program rules.
func apply(cfg *Config, v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if err := setConfigValue(cfg, key, v.GetString(key)); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value
	case "program.file":
		cfg.ProgramFile = value
	case "storage.memory":
		cfg.Storage.InMemory = parseBool(value)

	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		cfg.RPC.Port, err = parseInt(value)
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "metrics.port":
		cfg.Metrics.Port, err = parseInt(value)

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	case "log.maxsize":
		cfg.Log.MaxSizeMB, err = parseInt(value)
	case "log.maxbackups":
		cfg.Log.MaxBackups, err = parseInt(value)
	case "log.maxage":
		cfg.Log.MaxAgeDays, err = parseInt(value)

	default:
		return fmt.Errorf("unknown key")
	}
	return err
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# PumpBox Node Configuration
#
# This file contains NODE settings only.
# Program rules (authorities, fees, curve parameters) live in the program
# config and cannot change once the program state is initialized.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.pumpbox)
# datadir = ~/.pumpbox

# Program config JSON (default: built-in for the network)
# program.file = program.json

# Keep state in memory only
# storage.memory = false

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + fmt.Sprint(d.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Metrics
# ============================================================================

metrics.enabled = false
metrics.addr = 127.0.0.1
metrics.port = ` + fmt.Sprint(d.Metrics.Port) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file = ~/.pumpbox/logs/pumpbox.log
log.json = false
log.maxsize = 100
log.maxbackups = 5
log.maxage = 30
`
	return os.WriteFile(path, []byte(content), 0644)
}
