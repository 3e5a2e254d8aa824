// Package dispatch decodes program transactions, checks their declared
// accounts and signatures, and routes each instruction to the component
// that implements it.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/curve"
	"github.com/Klingon-tech/pumpbox/internal/events"
	"github.com/Klingon-tech/pumpbox/internal/launch"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/mint"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/tx"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Result is the outcome of one dispatched instruction.
type Result struct {
	TxHash types.Hash
	Kind   instruction.Kind
	Signer types.Address
	Record *state.TokenRecord
	Trade  *curve.Trade
	Topic  string
}

// Event converts the result into the event published after commit.
func (r *Result) Event(at int64) *events.Event {
	ev := &events.Event{
		Topic:  r.Topic,
		TxHash: r.TxHash,
		Kind:   r.Kind.String(),
		Signer: r.Signer,
		Trade:  r.Trade,
		At:     at,
	}
	if r.Record != nil {
		ev.Record = r.Record.Address
		ev.Mint = r.Record.Mint
		ev.Phase = r.Record.Phase
	}
	return ev
}

// Dispatcher routes instructions to the minting, curve and launch components.
type Dispatcher struct {
	cfg    *config.ProgramConfig
	minter *mint.Minter
	engine *curve.Engine
	alloc  *launch.Allocator
	logger zerolog.Logger
}

// New creates a dispatcher and its components from the program rules.
func New(cfg *config.ProgramConfig) *Dispatcher {
	engine := curve.NewEngine(cfg)
	return &Dispatcher{
		cfg:    cfg,
		minter: mint.New(cfg),
		engine: engine,
		alloc:  launch.New(cfg, engine),
		logger: klog.WithComponent("dispatch"),
	}
}

// Engine returns the pricing engine trades settle through.
func (d *Dispatcher) Engine() *curve.Engine {
	return d.engine
}

// Decode checks the transaction structure and decodes its instruction.
func (d *Dispatcher) Decode(t *tx.Transaction) (instruction.Payload, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transaction", state.ErrMalformedRequest)
	}
	if t.ProgramID != d.cfg.ProgramID {
		return nil, fmt.Errorf("%w: program %s, expected %s", state.ErrAccountMismatch, t.ProgramID, d.cfg.ProgramID)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", state.ErrMalformedRequest, err)
	}
	p, err := instruction.Decode(t.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", state.ErrMalformedRequest, err)
	}
	return p, nil
}

// LockSet returns the accounts a transaction must hold exclusively while it
// executes: every declared writable account except the fee recipient, plus
// the ticker key a fulfillment claims. Undecodable transactions lock
// nothing; they fail before touching state.
func (d *Dispatcher) LockSet(t *tx.Transaction) []types.Address {
	p, err := d.Decode(t)
	if err != nil {
		return nil
	}
	layout := layouts[p.Kind()]

	seen := make(map[types.Address]bool, len(t.Accounts)+1)
	var out []types.Address
	add := func(a types.Address) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for i, a := range t.Accounts {
		if !a.IsWritable {
			continue
		}
		if i < len(layout) && layout[i].feeRecipient {
			continue
		}
		add(a.Address)
	}
	if f, ok := p.(instruction.FulfillMysteryBox); ok {
		add(state.TickerLockKey(d.cfg.ProgramID, f.Ticker))
	}
	return out
}

// Dispatch validates t and applies its instruction to cs at time now.
// Nothing is committed; on error the caller discards cs.
func (d *Dispatcher) Dispatch(cs *state.Changeset, t *tx.Transaction, now int64) (*Result, error) {
	p, err := d.Decode(t)
	if err != nil {
		return nil, err
	}
	kind := p.Kind()

	// Accounts and signatures are checked before any state is read.
	if err := checkLayout(kind, t.Accounts, d.cfg.Authorities.FeeRecipient); err != nil {
		return nil, err
	}
	if err := verifySignatures(t); err != nil {
		return nil, err
	}

	// Reject duplicates.
	hash := t.Hash()
	seen, err := cs.Processed(hash)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, fmt.Errorf("%w: %s", state.ErrDuplicateTransaction, hash)
	}

	res := &Result{
		TxHash: hash,
		Kind:   kind,
		Signer: t.Accounts[idxSigner].Address,
	}
	recordAddr := t.Accounts[idxRecord].Address

	if v, ok := p.(instruction.CreateToken); ok {
		rec, err := d.minter.Create(cs, res.Signer, recordAddr, v, now)
		if err != nil {
			return nil, err
		}
		res.Record, res.Topic = rec, events.TopicCreated
	} else {
		rec, err := cs.Record(recordAddr)
		if err != nil {
			return nil, err
		}
		res.Record = rec
		if err := d.route(cs, t, p, res, now); err != nil {
			return nil, err
		}
	}

	cs.MarkProcessed(hash, now)

	d.logger.Debug().
		Str("tx", hash.String()).
		Str("kind", kind.String()).
		Str("record", res.Record.Address.String()).
		Str("phase", res.Record.Phase.String()).
		Msg("Instruction applied")
	return res, nil
}

// route runs an instruction that operates on an existing record.
func (d *Dispatcher) route(cs *state.Changeset, t *tx.Transaction, p instruction.Payload, res *Result, now int64) error {
	rec, signer := res.Record, res.Signer

	switch v := p.(type) {
	case instruction.FulfillMysteryBox:
		res.Topic = events.TopicFulfilled
		return d.minter.Fulfill(cs, signer, rec, v, now)

	case instruction.ReclaimExpired:
		res.Topic = events.TopicReclaimed
		return d.minter.Reclaim(cs, signer, rec, now)

	case instruction.Buy:
		holding := t.Accounts[idxHolding].Address
		if err := d.checkHolding(rec, signer, holding); err != nil {
			return err
		}
		allocAddr, err := state.AllocationAddress(d.cfg.ProgramID, rec.Mint, signer)
		if err != nil {
			return err
		}
		if err := expectAccount("allocation", t.Accounts[idxAllocation].Address, allocAddr); err != nil {
			return err
		}
		res.Topic = events.TopicTrade
		if rec.Phase == types.PhaseFairLaunch {
			res.Trade, err = d.alloc.Buy(cs, rec, signer, holding, allocAddr, v.AmountIn, v.MinTokensOut, now)
		} else {
			res.Trade, err = d.engine.Buy(cs, rec, signer, holding, v.AmountIn, v.MinTokensOut, now)
		}
		return err

	case instruction.Sell:
		holding := t.Accounts[idxHolding].Address
		if err := d.checkHolding(rec, signer, holding); err != nil {
			return err
		}
		res.Topic = events.TopicTrade
		var err error
		res.Trade, err = d.engine.Sell(cs, rec, signer, holding, v.TokensIn, v.MinBaseOut)
		return err

	case instruction.StartFairLaunch:
		res.Topic = events.TopicLaunchStarted
		return d.alloc.Start(cs, signer, rec, v, now)

	case instruction.FinalizeFairLaunch:
		res.Topic = events.TopicLaunchFinalized
		return d.alloc.Finalize(cs, rec, now)
	}
	return fmt.Errorf("%w: unhandled instruction %s", state.ErrMalformedRequest, p.Kind())
}

func (d *Dispatcher) checkHolding(rec *state.TokenRecord, owner, declared types.Address) error {
	want, err := state.HoldingAddress(d.cfg.ProgramID, rec.Mint, owner)
	if err != nil {
		return err
	}
	return expectAccount("holding", declared, want)
}

// verifySignatures maps transaction signature failures onto program errors.
func verifySignatures(t *tx.Transaction) error {
	err := t.VerifySignatures()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tx.ErrMissingSig):
		return fmt.Errorf("%w: %v", state.ErrMissingSignature, err)
	default:
		return fmt.Errorf("%w: %v", state.ErrInvalidSignature, err)
	}
}
