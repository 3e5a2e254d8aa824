package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(newFlags(t, "--datadir", dir))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Mainnet {
		t.Errorf("Network = %s, want %s", cfg.Network, Mainnet)
	}
	if cfg.RPC.Port != DefaultMainnet().RPC.Port {
		t.Errorf("RPC.Port = %d, want %d", cfg.RPC.Port, DefaultMainnet().RPC.Port)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, dir)
	}
}

func TestLoad_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	content := `# node config
network = testnet
rpc.port = 9100
rpc.allowed = 127.0.0.1, 10.0.0.0/8
metrics.enabled = true
log.level = debug
`
	if err := os.WriteFile(filepath.Join(dir, "pumpbox.conf"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(newFlags(t, "--datadir", dir, "--rpc-port", "9200"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("Network = %s, want %s", cfg.Network, Testnet)
	}
	// Flag wins over file.
	if cfg.RPC.Port != 9200 {
		t.Errorf("RPC.Port = %d, want 9200", cfg.RPC.Port)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("RPC.AllowedIPs = %v", cfg.RPC.AllowedIPs)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Metrics.Port != DefaultTestnet().Metrics.Port {
		t.Errorf("Metrics.Port = %d, want testnet default %d", cfg.Metrics.Port, DefaultTestnet().Metrics.Port)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pumpbox.conf"), []byte("p2p.port = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(newFlags(t, "--datadir", dir)); err == nil {
		t.Error("Load() should reject unknown keys")
	}
}

func TestWriteDefaultConfig_Loads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pumpbox.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig() error: %v", err)
	}
	cfg, err := Load(newFlags(t, "--datadir", dir))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("Network = %s, want %s", cfg.Network, Testnet)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"bad network", func(c *Config) { c.Network = "devnet" }, false},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }, false},
		{"bad allowed ip", func(c *Config) { c.RPC.AllowedIPs = []string{"not-an-ip"} }, false},
		{"cidr ok", func(c *Config) { c.RPC.AllowedIPs = []string{"192.168.0.0/16"} }, true},
		{"port clash", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = c.RPC.Addr
			c.Metrics.Port = c.RPC.Port
		}, false},
		{"no datadir in memory", func(c *Config) { c.DataDir = ""; c.Storage.InMemory = true }, true},
		{"no datadir", func(c *Config) { c.DataDir = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok && err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
