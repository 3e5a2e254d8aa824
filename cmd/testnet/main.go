// Command testnet boots a local program node from scratch and drives one
// token through its whole lifecycle over JSON-RPC.
//
// Usage: go run ./cmd/testnet/
//
// It starts an in-memory testnet node on a random port, then uses the
// well-known testnet keys to create a mystery box, fulfill it as the oracle,
// trade on the curve, run a short fair launch and finalize it. The run fails
// fast on the first unexpected response.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/node"
	"github.com/Klingon-tech/pumpbox/internal/rpc"
	"github.com/Klingon-tech/pumpbox/internal/rpcclient"
	"github.com/Klingon-tech/pumpbox/internal/runtime"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/tx"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

const launchWindow = 3 * time.Second

// session holds the client side of the run.
type session struct {
	ctx       context.Context
	client    *rpcclient.Client
	programID types.Address
	feeTo     types.Address
	logger    zerolog.Logger
	nonce     uint64
}

func main() {
	cfg := config.Default(config.Testnet)
	cfg.DataDir = ""
	cfg.Storage.InMemory = true
	cfg.RPC.Port = 0
	cfg.Log.Level = "info"

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}
	defer n.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := klog.WithComponent("testnet")
	logger.Info().Str("rpc", n.RPCAddr()).Msg("=== PumpBox Local Testnet ===")

	s := &session{
		ctx:       ctx,
		client:    rpcclient.New("http://" + n.RPCAddr() + "/"),
		programID: n.Program().ProgramID,
		feeTo:     n.Program().Authorities.FeeRecipient,
		logger:    logger,
	}
	if err := s.run(); err != nil {
		logger.Error().Err(err).Msg("Scenario failed")
		n.Stop()
		os.Exit(1)
	}
	logger.Info().Msg("=== Scenario complete ===")
}

func (s *session) run() error {
	creator := config.TestnetKey(config.TestnetFaucetKey)
	oracle := config.TestnetKey(config.TestnetOracleKey)
	authority := config.TestnetKey(config.TestnetAuthorityKey)

	// ── Phase 1: Mystery box ─────────────────────────────────────────────

	var next rpc.NextRecordResult
	if err := s.call("token_nextRecord", rpc.CreatorParam{Creator: creator.Address().String()}, &next); err != nil {
		return err
	}
	if _, err := s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.CreateToken{
			Description: "A cat astronaut planting a flag on a cheese moon",
			Preferences: []string{"space", "cats"},
			SocialLink:  "https://x.com/pumpbox",
		}).
		Signer(creator.Address(), true).
		Writable(next.Record), creator); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if _, err := s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.FulfillMysteryBox{Name: "Moon Cat", Ticker: "MCAT", ImageRef: "ar://mooncat"}).
		Signer(oracle.Address(), false).
		Writable(next.Record).
		Writable(s.feeTo), oracle); err != nil {
		return fmt.Errorf("fulfill: %w", err)
	}

	// ── Phase 2: Curve trading ───────────────────────────────────────────

	var quote struct {
		TokensOut uint64 `json:"tokens_out"`
	}
	if err := s.call("token_quoteBuy", rpc.QuoteBuyParam{Address: next.Record.String(), AmountIn: 5 * config.Coin}, &quote); err != nil {
		return err
	}
	rcpt, err := s.buy(creator, next.Record, next.Mint, 5*config.Coin)
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	if rcpt.TokensOut != quote.TokensOut {
		return fmt.Errorf("buy filled %d tokens, quoted %d", rcpt.TokensOut, quote.TokensOut)
	}

	holding, err := state.HoldingAddress(s.programID, next.Mint, creator.Address())
	if err != nil {
		return err
	}
	if _, err := s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.Sell{TokensIn: rcpt.TokensOut / 2}).
		Signer(creator.Address(), true).
		Writable(next.Record).
		Writable(holding).
		Writable(s.feeTo), creator); err != nil {
		return fmt.Errorf("sell: %w", err)
	}

	// ── Phase 3: Fair launch ─────────────────────────────────────────────

	deadline := time.Now().Add(launchWindow).Unix()
	if _, err := s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.StartFairLaunch{
			PerWalletCap: 2 * config.Coin,
			GlobalCap:    100 * config.Coin,
			Deadline:     deadline,
		}).
		Signer(authority.Address(), false).
		Writable(next.Record), authority); err != nil {
		return fmt.Errorf("start launch: %w", err)
	}

	if _, err := s.buy(creator, next.Record, next.Mint, 3*config.Coin); err == nil {
		return fmt.Errorf("launch buy above the wallet cap was accepted")
	} else if rerr, ok := err.(*rpcclient.RPCError); !ok || rerr.Kind() != "cap_exceeded" {
		return fmt.Errorf("launch buy above cap: %w", err)
	}
	if _, err := s.buy(creator, next.Record, next.Mint, 2*config.Coin); err != nil {
		return fmt.Errorf("launch buy: %w", err)
	}

	var alloc rpc.AllocationResult
	if err := s.call("launch_getAllocation", rpc.AllocationParam{
		Mint:        next.Mint.String(),
		Participant: creator.Address().String(),
	}, &alloc); err != nil {
		return err
	}
	s.logger.Info().Uint64("allocated", alloc.Amount).Uint64("remaining", alloc.Remaining).Msg("Fair launch allocation")

	wait := time.Until(time.Unix(deadline, 0)) + time.Second
	s.logger.Info().Dur("wait", wait).Msg("Waiting for the launch deadline")
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-time.After(wait):
	}

	if _, err := s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.FinalizeFairLaunch{}).
		Signer(creator.Address(), false).
		Writable(next.Record), creator); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	// ── Phase 4: Summary ─────────────────────────────────────────────────

	var tok rpc.TokenResult
	if err := s.call("token_get", rpc.TokenParam{Address: next.Record.String()}, &tok); err != nil {
		return err
	}
	var fees rpc.BalanceResult
	if err := s.call("account_getBalance", rpc.AddressParam{Address: s.feeTo.String()}, &fees); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  Token:            %s (%s)\n", tok.Name, tok.Ticker)
	fmt.Printf("  Mint:             %s\n", tok.Mint)
	fmt.Printf("  Phase:            %s\n", tok.Phase)
	fmt.Printf("  Supply:           %d\n", tok.Supply)
	fmt.Printf("  Reserve:          %.6f coins\n", float64(tok.Reserve)/float64(config.Coin))
	fmt.Printf("  Spot price:       %d base units\n", tok.Price)
	fmt.Printf("  Market cap:       %.6f coins\n", float64(tok.MarketCap)/float64(config.Coin))
	fmt.Printf("  Fee recipient:    %.6f coins\n", float64(fees.Balance)/float64(config.Coin))
	fmt.Println()
	return nil
}

func (s *session) call(method string, params, result interface{}) error {
	return s.client.CallContext(s.ctx, method, params, result)
}

// submit signs b with key, sends it and logs the receipt.
func (s *session) submit(b *tx.Builder, key *crypto.PrivateKey) (*runtime.Receipt, error) {
	s.nonce++
	t, err := b.Nonce(s.nonce).Sign(key)
	if err != nil {
		return nil, err
	}
	raw, err := t.Marshal()
	if err != nil {
		return nil, err
	}
	var rcpt runtime.Receipt
	if err := s.call("program_submit", rpc.SubmitParam{Transaction: hex.EncodeToString(raw)}, &rcpt); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("kind", rcpt.Kind).
		Str("phase", rcpt.Phase.String()).
		Uint64("tokens_out", rcpt.TokensOut).
		Uint64("base_out", rcpt.BaseOut).
		Uint64("fee", rcpt.Fee).
		Msg("Committed")
	return &rcpt, nil
}

func (s *session) buy(key *crypto.PrivateKey, record, mint types.Address, amountIn uint64) (*runtime.Receipt, error) {
	owner := key.Address()
	holding, err := state.HoldingAddress(s.programID, mint, owner)
	if err != nil {
		return nil, err
	}
	alloc, err := state.AllocationAddress(s.programID, mint, owner)
	if err != nil {
		return nil, err
	}
	return s.submit(tx.NewBuilder(s.programID).
		Instruction(instruction.Buy{AmountIn: amountIn}).
		Signer(owner, true).
		Writable(record).
		Writable(holding).
		Writable(s.feeTo).
		Writable(alloc), key)
}
