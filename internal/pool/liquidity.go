package pool

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/model"
)

// Deposit adds liquidity sized by quoteAmountDesired and returns the shares
// minted to provider. The first deposit sets the price: it takes exactly
// maxBaseAmountToDeposit of base and mints one share per quote unit.
func (p *ExchangePool) Deposit(
	ctx context.Context,
	provider common.Address,
	quoteAmountDesired *big.Int,
	minSharesToMint *big.Int,
	maxBaseAmountToDeposit *big.Int,
	deadline uint64,
) (*big.Int, error) {
	started := time.Now()
	minted, err := p.deposit(ctx, provider, quoteAmountDesired, minSharesToMint, maxBaseAmountToDeposit, deadline)
	return minted, p.observe(opDeposit, started, err)
}

// Withdraw burns sharesToBurn of provider's shares and pays out the
// proportional part of both reserves.
func (p *ExchangePool) Withdraw(
	ctx context.Context,
	provider common.Address,
	sharesToBurn *big.Int,
	minQuoteToReceive *big.Int,
	minBaseToReceive *big.Int,
	deadline uint64,
) (quote, base *big.Int, err error) {
	started := time.Now()
	quote, base, err = p.withdraw(ctx, provider, sharesToBurn, minQuoteToReceive, minBaseToReceive, deadline)
	return quote, base, p.observe(opWithdraw, started, err)
}

func (p *ExchangePool) deposit(
	ctx context.Context,
	provider common.Address,
	quoteDesired, minShares, maxBase *big.Int,
	deadline uint64,
) (*big.Int, error) {
	ctx, exit := p.enter(ctx)
	defer exit()

	if err := p.checkDeadline(ctx, deadline); err != nil {
		return nil, err
	}
	if !positive(quoteDesired) {
		return nil, ErrInvalidAmount
	}
	if floor := p.cfg.MinQuoteDeposit; floor != nil && quoteDesired.Cmp(floor) < 0 {
		return nil, fmt.Errorf("%w: quote deposit %s below minimum %s", ErrInvalidAmount, quoteDesired, floor)
	}
	if maxBase == nil || maxBase.Sign() < 0 {
		return nil, fmt.Errorf("%w: max base bound is required", ErrInvalidAmount)
	}

	reserveBase, reserveQuote, err := p.syncReserves(ctx)
	if err != nil {
		return nil, err
	}

	var baseAmount, minted *big.Int
	if total := p.TotalShares(); total.Sign() == 0 {
		if maxBase.Sign() == 0 {
			return nil, fmt.Errorf("%w: first deposit needs a base amount", ErrInvalidAmount)
		}
		baseAmount = new(big.Int).Set(maxBase)
		minted = new(big.Int).Set(quoteDesired)
	} else {
		if reserveQuote.Sign() == 0 {
			return nil, ErrInsufficientReserve
		}
		baseAmount = new(big.Int).Mul(quoteDesired, reserveBase)
		baseAmount.Quo(baseAmount, reserveQuote)
		if baseAmount.Cmp(maxBase) > 0 {
			return nil, &SlippageError{Bound: BoundMaxBase, Actual: baseAmount, Limit: new(big.Int).Set(maxBase)}
		}
		minted = new(big.Int).Mul(quoteDesired, total)
		minted.Quo(minted, reserveQuote)
	}
	if minted.Sign() == 0 {
		return nil, fmt.Errorf("%w: deposit mints no shares", ErrInvalidAmount)
	}
	if floor := orZero(minShares); minted.Cmp(floor) < 0 {
		return nil, &SlippageError{Bound: BoundMinShares, Actual: minted, Limit: new(big.Int).Set(floor)}
	}

	var j journal
	p.addShares(&j, provider, minted)
	p.addReserve(&j, p.cfg.QuoteAsset, quoteDesired)
	p.addReserve(&j, p.cfg.BaseAsset, baseAmount)

	err = p.settle(ctx, []leg{
		{asset: p.cfg.QuoteAsset, from: provider, to: p.cfg.Account, amount: quoteDesired},
		{asset: p.cfg.BaseAsset, from: provider, to: p.cfg.Account, amount: baseAmount},
	})
	if err != nil {
		j.rollback()
		return nil, err
	}

	p.refresh(ctx)
	p.logger.Info("liquidity added",
		zap.String("provider", provider.Hex()),
		zap.Stringer("quote", quoteDesired),
		zap.Stringer("base", baseAmount),
		zap.Stringer("shares", minted),
	)
	p.emit(ctx, model.LiquidityAdded{
		Provider:    provider.Hex(),
		QuoteAmount: quoteDesired.String(),
		BaseAmount:  baseAmount.String(),
	})
	return minted, nil
}

func (p *ExchangePool) withdraw(
	ctx context.Context,
	provider common.Address,
	shares, minQuote, minBase *big.Int,
	deadline uint64,
) (*big.Int, *big.Int, error) {
	if !positive(shares) {
		return nil, nil, ErrInvalidAmount
	}

	ctx, exit := p.enter(ctx)
	defer exit()

	if held := p.SharesOf(provider); held.Cmp(shares) < 0 {
		return nil, nil, fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientShares, provider.Hex(), held, shares)
	}
	if err := p.checkDeadline(ctx, deadline); err != nil {
		return nil, nil, err
	}

	reserveBase, reserveQuote, err := p.syncReserves(ctx)
	if err != nil {
		return nil, nil, err
	}
	total := p.TotalShares()

	quoteOut := new(big.Int).Mul(shares, reserveQuote)
	quoteOut.Quo(quoteOut, total)
	baseOut := new(big.Int).Mul(shares, reserveBase)
	baseOut.Quo(baseOut, total)

	if floor := orZero(minQuote); quoteOut.Cmp(floor) < 0 {
		return nil, nil, &SlippageError{Bound: BoundMinQuote, Actual: quoteOut, Limit: new(big.Int).Set(floor)}
	}
	if floor := orZero(minBase); baseOut.Cmp(floor) < 0 {
		return nil, nil, &SlippageError{Bound: BoundMinBase, Actual: baseOut, Limit: new(big.Int).Set(floor)}
	}

	var j journal
	p.addShares(&j, provider, new(big.Int).Neg(shares))
	p.addReserve(&j, p.cfg.QuoteAsset, new(big.Int).Neg(quoteOut))
	p.addReserve(&j, p.cfg.BaseAsset, new(big.Int).Neg(baseOut))

	err = p.settle(ctx, []leg{
		{asset: p.cfg.QuoteAsset, from: p.cfg.Account, to: provider, amount: quoteOut},
		{asset: p.cfg.BaseAsset, from: p.cfg.Account, to: provider, amount: baseOut},
	})
	if err != nil {
		j.rollback()
		return nil, nil, err
	}

	p.refresh(ctx)
	p.logger.Info("liquidity removed",
		zap.String("provider", provider.Hex()),
		zap.Stringer("quote", quoteOut),
		zap.Stringer("base", baseOut),
		zap.Stringer("shares", shares),
	)
	p.emit(ctx, model.LiquidityRemoved{
		Provider:    provider.Hex(),
		QuoteAmount: quoteOut.String(),
		BaseAmount:  baseOut.String(),
	})
	return quoteOut, baseOut, nil
}

// refresh re-reads the reserves after settlement. Nested operations leave
// it to the outermost one, whose transfers are still in flight.
func (p *ExchangePool) refresh(ctx context.Context) {
	if p.depth(ctx) > 1 {
		return
	}
	if _, _, err := p.syncReserves(ctx); err != nil {
		p.logger.Warn("refresh reserves", zap.Error(err))
	}
}
