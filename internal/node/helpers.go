package node

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadProgram returns the program config named by cfg, or the built-in one
// for its network.
func loadProgram(cfg *config.Config) (*config.ProgramConfig, error) {
	if cfg.ProgramFile == "" {
		p := config.ProgramFor(cfg.Network)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("built-in %s program: %w", cfg.Network, err)
		}
		return p, nil
	}
	p, err := config.LoadProgram(expandHome(cfg.ProgramFile))
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", cfg.ProgramFile, err)
	}
	return p, nil
}

// openDB opens the state database selected by cfg.
func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.Storage.InMemory {
		return storage.NewMemory(), nil
	}
	dir := cfg.StateDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// listenAddr joins a host and port, keeping IPv6 hosts bracketed.
func listenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
