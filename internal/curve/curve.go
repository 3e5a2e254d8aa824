// Package curve implements the bonding curve pricing and settlement engine.
//
// The curve is linear in supply. With s in token base units and U = 10^decimals:
//
//	price(s)  = InitialPrice + Slope*s/SlopeScale        (base units per whole token)
//	cost(a,b) = [2*SS*InitialPrice*(b-a) + Slope*(b^2-a^2)] / (2*SS*U)
//
// Buyers pay the ceiling of cost and sellers receive the floor, so rounding
// residue always stays in the reserve.
package curve

import (
	"github.com/holiman/uint256"

	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/fixed"
)

// SlopeScale divides Slope*supply in the price function.
const SlopeScale = 1_000_000_000_000_000

// PriceScale is the resolution of scaled prices: nano base units per whole
// token.
const PriceScale = 1_000_000_000

var (
	priceScale    = uint256.NewInt(PriceScale)
	slopeScale    = uint256.NewInt(SlopeScale)
	twoSlopeScale = uint256.NewInt(2 * SlopeScale)
)

func unit(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}

// costFraction returns numerator and denominator of cost(a,b). Requires a <= b.
func costFraction(p state.CurveParams, a, b uint64) (num, den *uint256.Int, err error) {
	var c fixed.Checked
	ua, ub := fixed.U(a), fixed.U(b)
	delta := new(uint256.Int).Sub(ub, ua)

	linear := c.Mul(c.Mul(twoSlopeScale, fixed.U(p.InitialPrice)), delta)
	squares := new(uint256.Int).Sub(c.Mul(ub, ub), c.Mul(ua, ua))
	num = c.Add(linear, c.Mul(fixed.U(p.Slope), squares))
	den = c.Mul(twoSlopeScale, unit(p.TokenDecimals))
	if err := c.Err(); err != nil {
		return nil, nil, state.ErrOverflow
	}
	return num, den, nil
}

// CostCeil returns ceil(cost(a,b)), what a buyer pays to move supply from a to b.
func CostCeil(p state.CurveParams, a, b uint64) (uint64, error) {
	if a > b {
		return 0, state.ErrOverflow
	}
	num, den, err := costFraction(p, a, b)
	if err != nil {
		return 0, err
	}
	q, _ := fixed.CeilDiv(num, den)
	if !q.IsUint64() {
		return 0, state.ErrOverflow
	}
	return q.Uint64(), nil
}

// CostFloor returns floor(cost(a,b)), what a seller receives for moving
// supply from b down to a.
func CostFloor(p state.CurveParams, a, b uint64) (uint64, error) {
	if a > b {
		return 0, state.ErrOverflow
	}
	num, den, err := costFraction(p, a, b)
	if err != nil {
		return 0, err
	}
	q := num.Div(num, den)
	if !q.IsUint64() {
		return 0, state.ErrOverflow
	}
	return q.Uint64(), nil
}

// priceNumerator returns price(supply) * SlopeScale.
func priceNumerator(c *fixed.Checked, p state.CurveParams, supply uint64) *uint256.Int {
	return c.Add(c.Mul(fixed.U(p.InitialPrice), slopeScale), c.Mul(fixed.U(p.Slope), fixed.U(supply)))
}

// SpotPrice returns floor(price(supply)).
func SpotPrice(p state.CurveParams, supply uint64) (uint64, error) {
	var c fixed.Checked
	scaled := priceNumerator(&c, p, supply)
	if err := c.Err(); err != nil {
		return 0, state.ErrOverflow
	}
	q := scaled.Div(scaled, slopeScale)
	if !q.IsUint64() {
		return 0, state.ErrOverflow
	}
	return q.Uint64(), nil
}

// SpotPriceScaled returns floor(price(supply) * PriceScale). Small trades on
// a fine-grained token move it even when SpotPrice stays put.
func SpotPriceScaled(p state.CurveParams, supply uint64) (uint64, error) {
	var c fixed.Checked
	num := c.Mul(priceNumerator(&c, p, supply), priceScale)
	if err := c.Err(); err != nil {
		return 0, state.ErrOverflow
	}
	q := num.Div(num, slopeScale)
	if !q.IsUint64() {
		return 0, state.ErrOverflow
	}
	return q.Uint64(), nil
}

// MarketCap returns floor(price(supply) * MaxSupply / U): the fully diluted
// value at the current spot price.
func MarketCap(p state.CurveParams, supply uint64) (uint64, error) {
	var c fixed.Checked
	num := c.Mul(priceNumerator(&c, p, supply), fixed.U(p.MaxSupply))
	den := c.Mul(slopeScale, unit(p.TokenDecimals))
	if err := c.Err(); err != nil {
		return 0, state.ErrOverflow
	}
	q := num.Div(num, den)
	if !q.IsUint64() {
		return 0, state.ErrOverflow
	}
	return q.Uint64(), nil
}

// BuyQuote is the outcome of spending AmountIn on the curve.
type BuyQuote struct {
	TokensOut  uint64 `json:"tokens_out"`
	ReserveIn  uint64 `json:"reserve_in"` // Base units added to the reserve.
	Fee        uint64 `json:"fee"`
	Charged    uint64 `json:"charged"` // ReserveIn + Fee; at most AmountIn.
	PriceAfter uint64 `json:"price_after"`
	// PriceAfterScaled is the price after the trade times PriceScale.
	PriceAfterScaled uint64 `json:"price_after_scaled"`
}

// QuoteBuy prices a buy of amountIn base units at the given supply.
//
// The fee is taken off the top; the rest buys the largest token amount whose
// ceiling cost fits. When the max supply caps the amount, only the cost of
// the remaining supply and its fee are charged.
func QuoteBuy(p state.CurveParams, supply, amountIn uint64, feeBps uint16) (*BuyQuote, error) {
	if amountIn == 0 {
		return nil, state.ErrInvalidAmount
	}
	fee, err := fixed.FeeCeil(amountIn, feeBps)
	if err != nil {
		return nil, state.ErrOverflow
	}
	if fee >= amountIn {
		return nil, state.ErrAmountTooSmall
	}
	net := amountIn - fee

	if supply >= p.MaxSupply {
		return nil, state.ErrAmountTooSmall
	}
	remaining := p.MaxSupply - supply

	// Largest delta in [0, remaining] with ceil(cost) <= net.
	lo, hi := uint64(0), remaining
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		cost, err := CostCeil(p, supply, supply+mid)
		if err != nil {
			return nil, err
		}
		if cost <= net {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return nil, state.ErrAmountTooSmall
	}

	q := &BuyQuote{TokensOut: lo, ReserveIn: net, Fee: fee, Charged: amountIn}
	if lo == remaining {
		cost, err := CostCeil(p, supply, p.MaxSupply)
		if err != nil {
			return nil, err
		}
		if cost < net {
			if q.Fee, err = fixed.FeeCeil(cost, feeBps); err != nil {
				return nil, state.ErrOverflow
			}
			q.ReserveIn = cost
			q.Charged = cost + q.Fee
		}
	}
	if q.PriceAfter, err = SpotPrice(p, supply+lo); err != nil {
		return nil, err
	}
	if q.PriceAfterScaled, err = SpotPriceScaled(p, supply+lo); err != nil {
		return nil, err
	}
	return q, nil
}

// SellQuote is the outcome of selling TokensIn back to the curve.
type SellQuote struct {
	Gross      uint64 `json:"gross"` // Base units taken from the reserve.
	Fee        uint64 `json:"fee"`
	BaseOut    uint64 `json:"base_out"` // Gross - Fee, paid to the seller.
	PriceAfter uint64 `json:"price_after"`
	// PriceAfterScaled is the price after the trade times PriceScale.
	PriceAfterScaled uint64 `json:"price_after_scaled"`
}

// QuoteSell prices selling tokensIn at the given supply.
func QuoteSell(p state.CurveParams, supply, tokensIn uint64, feeBps uint16) (*SellQuote, error) {
	if tokensIn == 0 {
		return nil, state.ErrInvalidAmount
	}
	if tokensIn > supply {
		return nil, state.ErrInsufficientBalance
	}
	gross, err := CostFloor(p, supply-tokensIn, supply)
	if err != nil {
		return nil, err
	}
	fee, err := fixed.FeeCeil(gross, feeBps)
	if err != nil {
		return nil, state.ErrOverflow
	}
	if fee > gross {
		fee = gross
	}
	price, err := SpotPrice(p, supply-tokensIn)
	if err != nil {
		return nil, err
	}
	scaled, err := SpotPriceScaled(p, supply-tokensIn)
	if err != nil {
		return nil, err
	}
	return &SellQuote{Gross: gross, Fee: fee, BaseOut: gross - fee, PriceAfter: price, PriceAfterScaled: scaled}, nil
}
