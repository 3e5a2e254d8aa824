package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && !cfg.Storage.InMemory {
		return fmt.Errorf("datadir is required unless storage.memory is set")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be in range [0, 65535]")
	}
	if cfg.RPC.Enabled && cfg.Metrics.Enabled &&
		cfg.RPC.Port != 0 && cfg.RPC.Port == cfg.Metrics.Port && cfg.RPC.Addr == cfg.Metrics.Addr {
		return fmt.Errorf("rpc and metrics cannot share %s:%d", cfg.RPC.Addr, cfg.RPC.Port)
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		if err := validateIPEntry(entry); err != nil {
			return fmt.Errorf("rpc.allowed[%d]: %w", i, err)
		}
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}
	return nil
}

func validateIPEntry(entry string) error {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("invalid CIDR %q", entry)
		}
		return nil
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("invalid IP %q", entry)
	}
	return nil
}
