package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/node"
	"github.com/Klingon-tech/pumpbox/internal/rpc"
	"github.com/Klingon-tech/pumpbox/internal/rpcclient"
	"github.com/Klingon-tech/pumpbox/internal/storage"
	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// ── init-config ─────────────────────────────────────────────────────────

var initConfigForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.ConfigFile()
		if _, err := os.Stat(path); err == nil && !initConfigForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
		if err := config.WriteDefaultConfig(path, cfg.Network); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// ── program ─────────────────────────────────────────────────────────────

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Inspect the program config",
}

var programDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective program config as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := config.ProgramFor(cfg.Network)
		if cfg.ProgramFile != "" {
			if p, err = config.LoadProgram(cfg.ProgramFile); err != nil {
				return err
			}
		}
		hash, err := p.Hash()
		if err != nil {
			return err
		}
		out := struct {
			Hash    string                `json:"hash"`
			Program *config.ProgramConfig `json:"program"`
		}{hash.String(), p}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "Overwrite an existing config file")
	programCmd.AddCommand(programDumpCmd)
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "Write the private key (hex) to this file instead of stdout")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm wiping the program state")
	statusCmd.Flags().StringVar(&statusURL, "url", "", "Node RPC URL (default: from config)")
}

// ── keygen ──────────────────────────────────────────────────────────────

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key for an authority or test account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		privHex := hex.EncodeToString(key.Serialize())
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Address:    %s\n", key.Address())
		fmt.Fprintf(w, "Public key: %s\n", hex.EncodeToString(key.PublicKey()))
		if keygenOut == "" {
			fmt.Fprintf(w, "Private key: %s\n", privHex)
			return nil
		}
		if err := os.WriteFile(keygenOut, []byte(privHex+"\n"), 0600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
		fmt.Fprintf(w, "Private key written to %s\n", keygenOut)
		return nil
	},
}

// ── key-info ────────────────────────────────────────────────────────────

var keyInfoCmd = &cobra.Command{
	Use:   "key-info <keyfile>",
	Short: "Print the public key and address of a hex private key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		key, err := crypto.PrivateKeyFromBytes(keyBytes)
		if err != nil {
			return err
		}
		pub := key.PublicKey()
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "pubkey=%s\n", hex.EncodeToString(pub))
		fmt.Fprintf(w, "address=%s\n", crypto.AddressFromPubKey(pub))
		return nil
	},
}

// ── reset ───────────────────────────────────────────────────────────────

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all program state (the node must be stopped)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return errors.New("refusing to wipe state without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.InMemory {
			return errors.New("storage.memory is set; there is no state on disk")
		}
		db, err := storage.NewBadger(cfg.StateDir())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.NewPrefixDB(db, node.StatePrefix).DeleteAll(); err != nil {
			return fmt.Errorf("wipe state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Program state at %s wiped\n", cfg.StateDir())
		return nil
	},
}

// ── status ──────────────────────────────────────────────────────────────

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := statusURL
		if url == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url = "http://" + net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port)) + "/"
		}
		client := rpcclient.New(url)

		var info rpc.ConfigResult
		if err := client.CallContext(cmd.Context(), "program_getConfig", nil, &info); err != nil {
			return err
		}
		var tokens rpc.TokenListResult
		if err := client.CallContext(cmd.Context(), "token_list", nil, &tokens); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Program:     %s (%s)\n", info.Name, info.ProgramID)
		fmt.Fprintf(w, "Config hash: %s\n", info.Hash)
		fmt.Fprintf(w, "Trade fee:   %d bps\n", info.Fees.TradeFeeBps)
		counts := make(map[string]int)
		for _, t := range tokens.Tokens {
			phase := t.Phase.String()
			if t.Inactive {
				phase = "inactive"
			}
			counts[phase]++
		}
		fmt.Fprintf(w, "Tokens:      %d\n", tokens.Count)
		for _, phase := range []string{
			types.PhasePendingGeneration.String(),
			types.PhaseTrading.String(),
			types.PhaseFairLaunch.String(),
			types.PhaseOpen.String(),
			"inactive",
		} {
			if n := counts[phase]; n > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", phase, n)
			}
		}
		return nil
	},
}
