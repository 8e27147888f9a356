package amm

import (
	"fmt"
	"math/big"
)

// Fee is the fraction of every input amount that is credited to the trade.
// A Fee of 997/1000 keeps 0.3% of the input in the pool.
type Fee struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// DefaultFee is the 0.3% trading fee.
var DefaultFee = Fee{Numerator: 997, Denominator: 1000}

// Validate reports whether the fee can be used for pricing.
func (f Fee) Validate() error {
	if f.Denominator == 0 {
		return fmt.Errorf("%w: zero denominator", ErrInvalidFee)
	}
	if f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("%w: numerator %d out of range (0, %d]", ErrInvalidFee, f.Numerator, f.Denominator)
	}
	return nil
}

// Retained returns the part of amountIn that stays in the pool as fee,
// amountIn*(den-num)/den rounded down.
func (f Fee) Retained(amountIn *big.Int) *big.Int {
	if amountIn == nil || f.Denominator == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, new(big.Int).SetUint64(f.Denominator-f.Numerator))
	return fee.Div(fee, new(big.Int).SetUint64(f.Denominator))
}

func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

func (f Fee) num() *big.Int { return new(big.Int).SetUint64(f.Numerator) }
func (f Fee) den() *big.Int { return new(big.Int).SetUint64(f.Denominator) }
