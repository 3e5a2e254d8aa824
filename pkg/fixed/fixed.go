// Package fixed provides overflow-checked integer arithmetic for curve and
// fee math. Intermediates are 256-bit; results must fit in uint64.
package fixed

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale (100% = 10,000 bps).
const BpsDenominator = 10_000

var (
	// ErrOverflow is returned when a result does not fit its target width.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")
	// ErrDivByZero is returned for a zero divisor.
	ErrDivByZero = errors.New("division by zero")
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulDivFloor computes floor(a*b/d) with a 256-bit intermediate.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	p := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	q := p.Div(p, uint256.NewInt(d))
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}

// MulDivCeil computes ceil(a*b/d) with a 256-bit intermediate.
func MulDivCeil(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	p := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	q, ok := CeilDiv(p, uint256.NewInt(d))
	if !ok || !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}

// CeilDiv returns ceil(n/d) as a new value. ok is false when d is zero.
func CeilDiv(n, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return nil, false
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(n, d, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, true
}

// FeeCeil returns ceil(amount*bps/10_000). Rounds toward the fee recipient.
func FeeCeil(amount uint64, bps uint16) (uint64, error) {
	return MulDivCeil(amount, uint64(bps), BpsDenominator)
}

// Checked accumulates 256-bit arithmetic and latches the first overflow.
// Call Err once at the end instead of checking every step.
type Checked struct {
	overflow bool
}

// Mul returns x*y, latching overflow.
func (c *Checked) Mul(x, y *uint256.Int) *uint256.Int {
	z, of := new(uint256.Int).MulOverflow(x, y)
	c.overflow = c.overflow || of
	return z
}

// Add returns x+y, latching overflow.
func (c *Checked) Add(x, y *uint256.Int) *uint256.Int {
	z, of := new(uint256.Int).AddOverflow(x, y)
	c.overflow = c.overflow || of
	return z
}

// Err returns ErrOverflow if any step overflowed.
func (c *Checked) Err() error {
	if c.overflow {
		return ErrOverflow
	}
	return nil
}

// U is shorthand for uint256.NewInt.
func U(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}
