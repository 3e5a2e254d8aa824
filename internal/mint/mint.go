// Package mint implements mystery box minting: a creator opens a box with a
// description and style preferences, the generation oracle later fills in
// the token identity, and an unfulfilled box can be reclaimed after its
// deadline.
package mint

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Minter runs the mystery box lifecycle.
type Minter struct {
	cfg    *config.ProgramConfig
	logger zerolog.Logger
}

// New creates a minter bound to the program rules.
func New(cfg *config.ProgramConfig) *Minter {
	return &Minter{cfg: cfg, logger: klog.WithComponent("mint")}
}

// NonceReader reads a creator's mint nonce.
type NonceReader interface {
	Nonce(creator types.Address) (uint64, error)
}

// NextRecord returns the mint and record address the creator's next box
// will use.
func NextRecord(r NonceReader, programID, creator types.Address) (mint, record types.Address, err error) {
	nonce, err := r.Nonce(creator)
	if err != nil {
		return types.Address{}, types.Address{}, err
	}
	mint = crypto.DeriveMint(creator, nonce)
	record, err = state.RecordAddress(programID, mint)
	return mint, record, err
}

// Create opens a new mystery box for creator. recordAddr is the record
// account the request declared; it must match the derived one.
func (m *Minter) Create(cs *state.Changeset, creator, recordAddr types.Address,
	p instruction.CreateToken, now int64) (*state.TokenRecord, error) {
	desc, err := NormalizeDescription(p.Description)
	if err != nil {
		return nil, err
	}
	prefs, err := NormalizePreferences(p.Preferences)
	if err != nil {
		return nil, err
	}
	if err := ValidateSocialLink(p.SocialLink); err != nil {
		return nil, err
	}

	nonce, err := cs.NextNonce(creator)
	if err != nil {
		return nil, err
	}
	mint := crypto.DeriveMint(creator, nonce)
	addr, err := state.RecordAddress(m.cfg.ProgramID, mint)
	if err != nil {
		return nil, err
	}
	if addr != recordAddr {
		return nil, fmt.Errorf("%w: record %s, expected %s", state.ErrAccountMismatch, recordAddr, addr)
	}
	exists, err := cs.HasRecord(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", state.ErrAlreadyExists, addr)
	}

	fee := m.cfg.Fees.CreationFee
	if err := cs.Debit(creator, fee); err != nil {
		return nil, err
	}

	c := m.cfg.Curve
	rec := &state.TokenRecord{
		Address:         addr,
		Mint:            mint,
		Creator:         creator,
		CreatedAt:       now,
		Description:     desc,
		Preferences:     prefs,
		SocialLink:      p.SocialLink,
		Phase:           types.PhasePendingGeneration,
		FulfillDeadline: now + m.cfg.Mint.FulfillmentWindow,
		FeeEscrow:       fee,
		Curve: state.CurveParams{
			TokenDecimals: c.TokenDecimals,
			MaxSupply:     c.MaxSupply,
			InitialPrice:  c.InitialPrice,
			Slope:         c.Slope,
		},
	}
	if err := cs.PutRecord(rec); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("record", addr.String()).
		Str("mint", mint.String()).
		Str("creator", creator.String()).
		Int64("deadline", rec.FulfillDeadline).
		Msg("Mystery box created")
	return rec, nil
}

// Fulfill sets the generated identity of a pending box. Oracle only; the
// identity is written exactly once.
func (m *Minter) Fulfill(cs *state.Changeset, oracle types.Address, rec *state.TokenRecord,
	p instruction.FulfillMysteryBox, now int64) error {
	if oracle != m.cfg.Authorities.Oracle {
		return fmt.Errorf("%w: %s is not the oracle", state.ErrUnauthorized, oracle)
	}
	if rec.Inactive {
		return state.ErrInactive
	}
	if rec.IdentitySet() || rec.Phase != types.PhasePendingGeneration {
		return state.ErrAlreadyFulfilled
	}
	if now > rec.FulfillDeadline {
		return fmt.Errorf("%w: deadline %d, now %d", state.ErrExpired, rec.FulfillDeadline, now)
	}

	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := ValidateTicker(p.Ticker); err != nil {
		return err
	}
	if err := ValidateImageRef(p.ImageRef); err != nil {
		return err
	}
	if err := cs.ClaimTicker(p.Ticker, rec.Address); err != nil {
		return err
	}

	if err := rec.Advance(types.PhaseTrading); err != nil {
		return err
	}
	rec.Name, rec.Ticker, rec.ImageRef = p.Name, p.Ticker, p.ImageRef
	rec.FulfilledAt = now

	if err := cs.Credit(m.cfg.Authorities.FeeRecipient, rec.FeeEscrow); err != nil {
		return err
	}
	rec.FeeEscrow = 0

	if err := cs.PutRecord(rec); err != nil {
		return err
	}

	m.logger.Info().
		Str("record", rec.Address.String()).
		Str("name", rec.Name).
		Str("ticker", rec.Ticker).
		Msg("Mystery box fulfilled")
	return nil
}

// Reclaim refunds the creation fee of a box the oracle never fulfilled and
// retires the record.
func (m *Minter) Reclaim(cs *state.Changeset, creator types.Address, rec *state.TokenRecord, now int64) error {
	if creator != rec.Creator {
		return fmt.Errorf("%w: %s is not the creator", state.ErrUnauthorized, creator)
	}
	if rec.Inactive {
		return state.ErrInactive
	}
	if rec.Phase != types.PhasePendingGeneration {
		return state.ErrAlreadyFulfilled
	}
	if now <= rec.FulfillDeadline {
		return fmt.Errorf("%w: deadline %d, now %d", state.ErrNotExpired, rec.FulfillDeadline, now)
	}

	if err := cs.Credit(creator, rec.FeeEscrow); err != nil {
		return err
	}
	refund := rec.FeeEscrow
	rec.FeeEscrow = 0
	rec.Inactive = true

	if err := cs.PutRecord(rec); err != nil {
		return err
	}

	m.logger.Info().
		Str("record", rec.Address.String()).
		Uint64("refund", refund).
		Msg("Mystery box reclaimed")
	return nil
}
