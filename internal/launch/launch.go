// Package launch implements the fair launch allocator: a capped buying phase
// between open curve trading and unrestricted trading.
//
// Allocations are measured in base currency charged to the buyer and are
// cumulative; sells never free up cap space. Caps apply until the launch is
// finalized, even after the deadline has passed.
package launch

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/curve"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/fixed"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Allocator admits buys during a fair launch.
type Allocator struct {
	cfg    *config.ProgramConfig
	engine *curve.Engine
	logger zerolog.Logger
}

// New creates an allocator that settles admitted buys through engine.
func New(cfg *config.ProgramConfig, engine *curve.Engine) *Allocator {
	return &Allocator{cfg: cfg, engine: engine, logger: klog.WithComponent("launch")}
}

// Start moves a trading token into fair launch. The caller must be the
// token creator or the program authority.
func (a *Allocator) Start(cs *state.Changeset, caller types.Address, rec *state.TokenRecord,
	p instruction.StartFairLaunch, now int64) error {
	if caller != rec.Creator && caller != a.cfg.Authorities.Program {
		return fmt.Errorf("%w: %s may not start the launch", state.ErrUnauthorized, caller)
	}
	if rec.Inactive {
		return state.ErrInactive
	}
	if rec.Phase != types.PhaseTrading {
		return fmt.Errorf("%w: launch needs phase trading, have %s", state.ErrInvalidPhase, rec.Phase)
	}
	if p.PerWalletCap == 0 || p.PerWalletCap > p.GlobalCap {
		return fmt.Errorf("%w: need 0 < per-wallet cap %d <= global cap %d",
			state.ErrInvalidLaunchParams, p.PerWalletCap, p.GlobalCap)
	}
	if p.Deadline <= now || p.Deadline-now > a.cfg.Launch.MaxDuration {
		return fmt.Errorf("%w: deadline %d outside (%d, %d]",
			state.ErrInvalidLaunchParams, p.Deadline, now, now+a.cfg.Launch.MaxDuration)
	}

	if err := rec.Advance(types.PhaseFairLaunch); err != nil {
		return err
	}
	rec.Launch = &state.LaunchState{
		PerWalletCap: p.PerWalletCap,
		GlobalCap:    p.GlobalCap,
		Deadline:     p.Deadline,
		StartedAt:    now,
	}
	if err := cs.PutRecord(rec); err != nil {
		return err
	}

	a.logger.Info().
		Str("record", rec.Address.String()).
		Uint64("per_wallet_cap", p.PerWalletCap).
		Uint64("global_cap", p.GlobalCap).
		Int64("deadline", p.Deadline).
		Msg("Fair launch started")
	return nil
}

// Buy admits a buy against the launch caps and settles it on the curve.
// Cap checks use the full amountIn and run before any pricing; the ledger
// records what was actually charged.
func (a *Allocator) Buy(cs *state.Changeset, rec *state.TokenRecord, buyer, holdingAddr, allocAddr types.Address,
	amountIn, minTokensOut uint64, now int64) (*curve.Trade, error) {
	if rec.Phase != types.PhaseFairLaunch || rec.Launch == nil {
		return nil, fmt.Errorf("%w: no fair launch in phase %s", state.ErrInvalidPhase, rec.Phase)
	}
	l := rec.Launch

	entry, err := cs.Allocation(allocAddr)
	if err != nil {
		return nil, err
	}
	wallet, err := fixed.Add(entry.Amount, amountIn)
	if err != nil || wallet > l.PerWalletCap {
		return nil, fmt.Errorf("%w: wallet allocation %d + %d > %d",
			state.ErrCapExceeded, entry.Amount, amountIn, l.PerWalletCap)
	}
	global, err := fixed.Add(l.Allocated, amountIn)
	if err != nil || global > l.GlobalCap {
		return nil, fmt.Errorf("%w: global allocation %d + %d > %d",
			state.ErrCapExceeded, l.Allocated, amountIn, l.GlobalCap)
	}

	trade, err := a.engine.Buy(cs, rec, buyer, holdingAddr, amountIn, minTokensOut, now)
	if err != nil {
		return nil, err
	}

	entry.Mint, entry.Participant = rec.Mint, buyer
	entry.Amount += trade.BaseIn
	l.Allocated += trade.BaseIn
	if err := cs.PutAllocation(allocAddr, entry); err != nil {
		return nil, err
	}
	if err := cs.PutRecord(rec); err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("record", rec.Address.String()).
		Str("participant", buyer.String()).
		Uint64("allocation", entry.Amount).
		Uint64("allocated", l.Allocated).
		Msg("Fair launch allocation")
	return trade, nil
}

// Eligible reports whether the launch of rec may be finalized at now.
func Eligible(rec *state.TokenRecord, now int64) bool {
	l := rec.Launch
	return l != nil && (now >= l.Deadline || l.Allocated >= l.GlobalCap)
}

// Finalize ends the fair launch and opens unrestricted trading. Anyone may
// finalize once the deadline has passed or the global cap is reached.
func (a *Allocator) Finalize(cs *state.Changeset, rec *state.TokenRecord, now int64) error {
	if rec.Inactive {
		return state.ErrInactive
	}
	if rec.Phase != types.PhaseFairLaunch || rec.Launch == nil {
		return fmt.Errorf("%w: no fair launch in phase %s", state.ErrInvalidPhase, rec.Phase)
	}
	if !Eligible(rec, now) {
		return fmt.Errorf("%w: deadline %d, allocated %d of %d",
			state.ErrNotYetEligible, rec.Launch.Deadline, rec.Launch.Allocated, rec.Launch.GlobalCap)
	}

	if err := rec.Advance(types.PhaseOpen); err != nil {
		return err
	}
	rec.FinalizedAt = now
	if err := cs.PutRecord(rec); err != nil {
		return err
	}

	a.logger.Info().
		Str("record", rec.Address.String()).
		Uint64("allocated", rec.Launch.Allocated).
		Msg("Fair launch finalized")
	return nil
}
