// PumpBox program daemon.
//
// Usage:
//
//	pumpboxd [--network=testnet --rpc-port=...]   Run node
//	pumpboxd init-config                           Write a default config file
//	pumpboxd program dump                          Print the program config
//	pumpboxd keygen                                Generate a signing key
//	pumpboxd key-info <keyfile>                    Show a key's address
//	pumpboxd reset --yes                           Wipe program state
//	pumpboxd status                                Query a running node
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/node"
)

var rootCmd = &cobra.Command{
	Use:           "pumpboxd",
	Short:         "PumpBox program node",
	Long:          "pumpboxd hosts the PumpBox program: mystery-box minting, bonding-curve trading and fair launches, served over JSON-RPC.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.RunE = runNode
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(programCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(keyInfoCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the node config from the config file and global flags.
func loadConfig() (*config.Config, error) {
	return config.Load(rootCmd.PersistentFlags())
}

func runNode(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-n.Done():
	}

	return n.Stop()
}
