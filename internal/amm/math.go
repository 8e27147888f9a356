// Package amm holds the constant-product pricing formulas. Every function is
// pure: reserves are passed in, nothing is read or written elsewhere.
package amm

import "math/big"

// QuoteOutputGivenInput returns how much of the output asset a trader receives
// for inputAmount, with the fee applied to the input first:
//
//	out = in*num*rOut / (rIn*den + in*num)
//
// The result is rounded down and is always strictly below outputReserve.
func QuoteOutputGivenInput(fee Fee, inputAmount, inputReserve, outputReserve *big.Int) (*big.Int, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if !positive(inputAmount) {
		return nil, ErrInvalidAmount
	}
	if !positive(inputReserve) || !positive(outputReserve) {
		return nil, ErrInsufficientReserve
	}

	effectiveInput := new(big.Int).Mul(inputAmount, fee.num())
	numerator := new(big.Int).Mul(effectiveInput, outputReserve)
	denominator := new(big.Int).Mul(inputReserve, fee.den())
	denominator.Add(denominator, effectiveInput)
	return numerator.Div(numerator, denominator), nil
}

// QuoteInputGivenOutput returns the input needed to take outputAmount out of
// the pool. It is the inverse of QuoteOutputGivenInput on the same fee scale:
//
//	in = rIn*out*den / ((rOut-out)*num)
//
// The division rounds up so the pool never sells below the curve.
func QuoteInputGivenOutput(fee Fee, outputAmount, inputReserve, outputReserve *big.Int) (*big.Int, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if !positive(outputAmount) {
		return nil, ErrInvalidAmount
	}
	if !positive(inputReserve) || !positive(outputReserve) {
		return nil, ErrInsufficientReserve
	}
	if outputAmount.Cmp(outputReserve) >= 0 {
		return nil, ErrInsufficientReserve
	}

	numerator := new(big.Int).Mul(inputReserve, outputAmount)
	numerator.Mul(numerator, fee.den())
	denominator := new(big.Int).Sub(outputReserve, outputAmount)
	denominator.Mul(denominator, fee.num())
	return ceilDiv(numerator, denominator), nil
}

// SpotPrice returns the output received for one whole unit of the input asset
// (unit is usually 10^decimals), fee included.
func SpotPrice(fee Fee, unit, inputReserve, outputReserve *big.Int) (*big.Int, error) {
	return QuoteOutputGivenInput(fee, unit, inputReserve, outputReserve)
}

// Product returns a*b.
func Product(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

func ceilDiv(x, y *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
