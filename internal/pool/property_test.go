package pool

import (
	"context"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"tswap/internal/amm"
	"tswap/internal/ledger"
)

// Property: no sequence of swaps shrinks reserveBase*reserveQuote.
func TestPropertySwapsKeepProduct(t *testing.T) {
	property := func(amounts []uint16, exactOut []bool) bool {
		mem := ledger.NewMemory()
		p, err := New(Config{Account: poolAcct, BaseAsset: baseAsset, QuoteAsset: quoteAsset}, mem, NewManualClock(startTime), nil, nil, nil)
		if err != nil {
			return false
		}
		ctx := context.Background()
		if mem.Mint(quoteAsset, lp, n(50_000)) != nil || mem.Mint(baseAsset, lp, n(50_000)) != nil {
			return false
		}
		if mem.Mint(quoteAsset, trader, n(1<<40)) != nil || mem.Mint(baseAsset, trader, n(1<<40)) != nil {
			return false
		}
		if _, err := p.Deposit(ctx, lp, n(50_000), n(0), n(50_000), deadline); err != nil {
			return false
		}

		for i, a := range amounts {
			base, quote, err := p.Reserves(ctx)
			if err != nil {
				return false
			}
			before := amm.Product(base, quote)

			in, out := baseAsset, quoteAsset
			if i%2 == 1 {
				in, out = out, in
			}
			amount := n(int64(a) + 1)
			if i < len(exactOut) && exactOut[i] {
				_, err = p.SwapExactOutput(ctx, trader, in, out, amount, n(1<<40), deadline)
			} else {
				_, err = p.SwapExactInput(ctx, trader, in, amount, out, nil, deadline)
			}
			if err != nil && !errorsAllowed(err) {
				return false
			}

			base, quote, err = p.Reserves(ctx)
			if err != nil {
				return false
			}
			if amm.Product(base, quote).Cmp(before) < 0 {
				return false
			}
		}
		return true
	}

	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 200}))
}

// errorsAllowed lists rejections a random swap may legitimately hit.
func errorsAllowed(err error) bool {
	switch ErrorKind(err) {
	case "invalid_amount", "insufficient_reserve":
		return true
	}
	return false
}
