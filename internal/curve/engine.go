package curve

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/fixed"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Trade is the settled result of a buy or sell.
type Trade struct {
	TokensIn   uint64 `json:"tokens_in,omitempty"`
	TokensOut  uint64 `json:"tokens_out,omitempty"`
	BaseIn     uint64 `json:"base_in,omitempty"` // Charged to the buyer, fee included.
	BaseOut    uint64 `json:"base_out,omitempty"`
	Fee        uint64 `json:"fee"`
	PriceAfter uint64 `json:"price_after"`
	// PriceAfterScaled is PriceAfter at PriceScale resolution.
	PriceAfterScaled uint64 `json:"price_after_scaled"`
}

// Engine settles trades against token records.
type Engine struct {
	cfg    *config.ProgramConfig
	logger zerolog.Logger
}

// NewEngine creates a pricing engine bound to the program rules.
func NewEngine(cfg *config.ProgramConfig) *Engine {
	return &Engine{cfg: cfg, logger: klog.WithComponent("curve")}
}

// Params returns the curve parameters new tokens start with.
func (e *Engine) Params() state.CurveParams {
	c := e.cfg.Curve
	return state.CurveParams{
		TokenDecimals: c.TokenDecimals,
		MaxSupply:     c.MaxSupply,
		InitialPrice:  c.InitialPrice,
		Slope:         c.Slope,
	}
}

// FeeBps returns the trade fee in basis points.
func (e *Engine) FeeBps() uint16 {
	return e.cfg.Fees.TradeFeeBps
}

// CheckTradable reports whether rec currently accepts buys and sells.
func CheckTradable(rec *state.TokenRecord) error {
	if rec.Inactive {
		return state.ErrInactive
	}
	if !rec.Phase.Tradable() {
		return fmt.Errorf("%w: trading not open in phase %s", state.ErrInvalidPhase, rec.Phase)
	}
	return nil
}

// Buy spends up to amountIn of the buyer's balance on rec. The record is
// updated in place and staged in cs; the holding at holdingAddr is credited.
func (e *Engine) Buy(cs *state.Changeset, rec *state.TokenRecord, buyer, holdingAddr types.Address,
	amountIn, minTokensOut uint64, now int64) (*Trade, error) {
	if err := CheckTradable(rec); err != nil {
		return nil, err
	}

	q, err := QuoteBuy(rec.Curve, rec.Supply, amountIn, e.FeeBps())
	if err != nil {
		return nil, err
	}
	if q.TokensOut < minTokensOut {
		return nil, fmt.Errorf("%w: tokens out %d < min %d", state.ErrSlippageExceeded, q.TokensOut, minTokensOut)
	}

	reserve, err := fixed.Add(rec.Reserve, q.ReserveIn)
	if err != nil {
		return nil, state.ErrOverflow
	}
	holding, err := cs.Holding(holdingAddr)
	if err != nil {
		return nil, err
	}
	held, err := fixed.Add(holding.Amount, q.TokensOut)
	if err != nil {
		return nil, state.ErrOverflow
	}

	if err := cs.Debit(buyer, q.Charged); err != nil {
		return nil, err
	}
	if err := cs.Credit(e.cfg.Authorities.FeeRecipient, q.Fee); err != nil {
		return nil, err
	}

	rec.Reserve = reserve
	rec.Supply += q.TokensOut
	if err := e.markMilestones(rec, now); err != nil {
		return nil, err
	}

	if err := cs.PutHolding(holdingAddr, state.Holding{Mint: rec.Mint, Owner: buyer, Amount: held}); err != nil {
		return nil, err
	}
	if err := cs.PutRecord(rec); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("record", rec.Address.String()).
		Str("buyer", buyer.String()).
		Uint64("amount_in", amountIn).
		Uint64("charged", q.Charged).
		Uint64("tokens_out", q.TokensOut).
		Uint64("supply", rec.Supply).
		Msg("Buy settled")

	return &Trade{
		TokensOut:  q.TokensOut,
		BaseIn:     q.Charged,
		Fee:        q.Fee,
		PriceAfter: q.PriceAfter,

		PriceAfterScaled: q.PriceAfterScaled,
	}, nil
}

// Sell burns tokensIn from the seller's holding against the reserve.
func (e *Engine) Sell(cs *state.Changeset, rec *state.TokenRecord, seller, holdingAddr types.Address,
	tokensIn, minBaseOut uint64) (*Trade, error) {
	if err := CheckTradable(rec); err != nil {
		return nil, err
	}
	if tokensIn == 0 {
		return nil, state.ErrInvalidAmount
	}

	holding, err := cs.Holding(holdingAddr)
	if err != nil {
		return nil, err
	}
	if holding.Amount < tokensIn {
		return nil, fmt.Errorf("%w: holding %d < %d", state.ErrInsufficientBalance, holding.Amount, tokensIn)
	}

	q, err := QuoteSell(rec.Curve, rec.Supply, tokensIn, e.FeeBps())
	if err != nil {
		return nil, err
	}
	if rec.Reserve < q.Gross {
		return nil, fmt.Errorf("%w: reserve %d < %d", state.ErrInsufficientReserve, rec.Reserve, q.Gross)
	}
	if q.BaseOut < minBaseOut {
		return nil, fmt.Errorf("%w: base out %d < min %d", state.ErrSlippageExceeded, q.BaseOut, minBaseOut)
	}

	if err := cs.Credit(seller, q.BaseOut); err != nil {
		return nil, err
	}
	if err := cs.Credit(e.cfg.Authorities.FeeRecipient, q.Fee); err != nil {
		return nil, err
	}

	rec.Reserve -= q.Gross
	rec.Supply -= tokensIn
	holding.Mint, holding.Owner = rec.Mint, seller
	holding.Amount -= tokensIn

	if err := cs.PutHolding(holdingAddr, holding); err != nil {
		return nil, err
	}
	if err := cs.PutRecord(rec); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("record", rec.Address.String()).
		Str("seller", seller.String()).
		Uint64("tokens_in", tokensIn).
		Uint64("base_out", q.BaseOut).
		Uint64("supply", rec.Supply).
		Msg("Sell settled")

	return &Trade{
		TokensIn:   tokensIn,
		BaseOut:    q.BaseOut,
		Fee:        q.Fee,
		PriceAfter: q.PriceAfter,

		PriceAfterScaled: q.PriceAfterScaled,
	}, nil
}

// markMilestones stamps the first time the market cap crosses the
// king-of-the-hill and graduation thresholds. Both are informational and
// write-once.
func (e *Engine) markMilestones(rec *state.TokenRecord, now int64) error {
	c := e.cfg.Curve
	if rec.KingOfTheHillAt != 0 && rec.GraduationReadyAt != 0 {
		return nil
	}
	mcap, err := MarketCap(rec.Curve, rec.Supply)
	if err != nil {
		return err
	}
	if rec.KingOfTheHillAt == 0 && c.KingMarketCap > 0 && mcap >= c.KingMarketCap {
		rec.KingOfTheHillAt = now
		e.logger.Info().Str("record", rec.Address.String()).Uint64("market_cap", mcap).Msg("King of the hill")
	}
	if rec.GraduationReadyAt == 0 && c.GraduationMarketCap > 0 && mcap >= c.GraduationMarketCap {
		rec.GraduationReadyAt = now
		e.logger.Info().Str("record", rec.Address.String()).Uint64("market_cap", mcap).Msg("Graduation ready")
	}
	return nil
}
