package pool

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/amm"
	"tswap/internal/model"
)

// SwapExactInput sells exactly inputAmount of inputAsset and returns the
// amount of outputAsset sent to trader, which is never below minOutputAmount.
func (p *ExchangePool) SwapExactInput(
	ctx context.Context,
	trader common.Address,
	inputAsset common.Address,
	inputAmount *big.Int,
	outputAsset common.Address,
	minOutputAmount *big.Int,
	deadline uint64,
) (*big.Int, error) {
	started := time.Now()
	out, err := p.swapExactInput(ctx, trader, inputAsset, inputAmount, outputAsset, minOutputAmount, deadline)
	return out, p.observe(opSwapExactInput, started, err)
}

// SwapExactOutput buys exactly outputAmount of outputAsset and returns the
// amount of inputAsset taken from trader, which never exceeds maxInputAmount.
func (p *ExchangePool) SwapExactOutput(
	ctx context.Context,
	trader common.Address,
	inputAsset common.Address,
	outputAsset common.Address,
	outputAmount *big.Int,
	maxInputAmount *big.Int,
	deadline uint64,
) (*big.Int, error) {
	started := time.Now()
	in, err := p.swapExactOutput(ctx, trader, inputAsset, outputAsset, outputAmount, maxInputAmount, deadline)
	return in, p.observe(opSwapExactOutput, started, err)
}

// SellExactAsset sells exactly amount of assetIn for the other pool asset.
// The trade is sized from the input side.
func (p *ExchangePool) SellExactAsset(
	ctx context.Context,
	trader common.Address,
	assetIn common.Address,
	amount *big.Int,
	minAssetOut *big.Int,
	deadline uint64,
) (*big.Int, error) {
	started := time.Now()
	assetOut, err := p.counterpart(assetIn)
	if err != nil {
		return nil, p.observe(opSellExactAsset, started, err)
	}
	out, err := p.swapExactInput(ctx, trader, assetIn, amount, assetOut, minAssetOut, deadline)
	return out, p.observe(opSellExactAsset, started, err)
}

// QuoteOut prices selling amountIn of assetIn against the current reserves.
func (p *ExchangePool) QuoteOut(ctx context.Context, assetIn common.Address, amountIn *big.Int) (*big.Int, error) {
	assetOut, err := p.counterpart(assetIn)
	if err != nil {
		return nil, err
	}
	rIn, rOut, err := p.reservesFor(ctx, assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	return amm.QuoteOutputGivenInput(p.fee, amountIn, rIn, rOut)
}

// QuoteIn prices buying amountOut of the asset opposite assetIn.
func (p *ExchangePool) QuoteIn(ctx context.Context, assetIn common.Address, amountOut *big.Int) (*big.Int, error) {
	assetOut, err := p.counterpart(assetIn)
	if err != nil {
		return nil, err
	}
	rIn, rOut, err := p.reservesFor(ctx, assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	return amm.QuoteInputGivenOutput(p.fee, amountOut, rIn, rOut)
}

// PriceOfOneBaseInQuote returns the quote received for unit of base.
func (p *ExchangePool) PriceOfOneBaseInQuote(ctx context.Context, unit *big.Int) (*big.Int, error) {
	return p.QuoteOut(ctx, p.cfg.BaseAsset, unit)
}

// PriceOfOneQuoteInBase returns the base received for unit of quote.
func (p *ExchangePool) PriceOfOneQuoteInBase(ctx context.Context, unit *big.Int) (*big.Int, error) {
	return p.QuoteOut(ctx, p.cfg.QuoteAsset, unit)
}

func (p *ExchangePool) swapExactInput(
	ctx context.Context,
	trader, inputAsset common.Address,
	inputAmount *big.Int,
	outputAsset common.Address,
	minOutputAmount *big.Int,
	deadline uint64,
) (*big.Int, error) {
	if p.pathHook != nil {
		p.pathHook(opSwapExactInput)
	}
	if !positive(inputAmount) {
		return nil, ErrInvalidAmount
	}
	if err := p.checkPair(inputAsset, outputAsset); err != nil {
		return nil, err
	}

	ctx, exit := p.enter(ctx)
	defer exit()

	if err := p.checkDeadline(ctx, deadline); err != nil {
		return nil, err
	}
	rIn, rOut, err := p.syncedReservesFor(ctx, inputAsset)
	if err != nil {
		return nil, err
	}
	out, err := amm.QuoteOutputGivenInput(p.fee, inputAmount, rIn, rOut)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}
	if floor := orZero(minOutputAmount); out.Cmp(floor) < 0 {
		return nil, &SlippageError{Bound: BoundMinOutput, Actual: out, Limit: new(big.Int).Set(floor)}
	}

	if err := p.executeSwap(ctx, trader, inputAsset, inputAmount, outputAsset, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ExchangePool) swapExactOutput(
	ctx context.Context,
	trader, inputAsset, outputAsset common.Address,
	outputAmount *big.Int,
	maxInputAmount *big.Int,
	deadline uint64,
) (*big.Int, error) {
	if p.pathHook != nil {
		p.pathHook(opSwapExactOutput)
	}
	if !positive(outputAmount) {
		return nil, ErrInvalidAmount
	}
	if maxInputAmount == nil || maxInputAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: max input bound is required", ErrInvalidAmount)
	}
	if err := p.checkPair(inputAsset, outputAsset); err != nil {
		return nil, err
	}

	ctx, exit := p.enter(ctx)
	defer exit()

	if err := p.checkDeadline(ctx, deadline); err != nil {
		return nil, err
	}
	rIn, rOut, err := p.syncedReservesFor(ctx, inputAsset)
	if err != nil {
		return nil, err
	}
	in, err := amm.QuoteInputGivenOutput(p.fee, outputAmount, rIn, rOut)
	if err != nil {
		return nil, err
	}
	if in.Cmp(maxInputAmount) > 0 {
		return nil, &SlippageError{Bound: BoundMaxInput, Actual: in, Limit: new(big.Int).Set(maxInputAmount)}
	}

	if err := p.executeSwap(ctx, trader, inputAsset, in, outputAsset, outputAmount); err != nil {
		return nil, err
	}
	return in, nil
}

// executeSwap applies the reserve change and swap count, then settles both
// legs. Must be called with the operation lock held.
func (p *ExchangePool) executeSwap(ctx context.Context, trader, assetIn common.Address, amountIn *big.Int, assetOut common.Address, amountOut *big.Int) error {
	var j journal
	p.addReserve(&j, assetIn, amountIn)
	p.addReserve(&j, assetOut, new(big.Int).Neg(amountOut))
	count := p.incSwapCount(&j)

	err := p.settle(ctx, []leg{
		{asset: assetIn, from: trader, to: p.cfg.Account, amount: amountIn},
		{asset: assetOut, from: p.cfg.Account, to: trader, amount: amountOut},
	})
	if err != nil {
		j.rollback()
		return err
	}

	p.refresh(ctx)
	p.logger.Info("swap executed",
		zap.String("trader", trader.Hex()),
		zap.String("asset_in", assetIn.Hex()),
		zap.Stringer("amount_in", amountIn),
		zap.String("asset_out", assetOut.Hex()),
		zap.Stringer("amount_out", amountOut),
		zap.Uint64("swap_count", count),
	)
	p.metrics.AddSwapVolume(p.side(assetIn), amountIn)
	p.emit(ctx, model.Swapped{
		Trader:    trader.Hex(),
		AssetIn:   assetIn.Hex(),
		AmountIn:  amountIn.String(),
		AssetOut:  assetOut.Hex(),
		AmountOut: amountOut.String(),
	})

	p.payReward(ctx, trader, count)
	return nil
}

func (p *ExchangePool) checkPair(assetIn, assetOut common.Address) error {
	base, quote := p.cfg.BaseAsset, p.cfg.QuoteAsset
	if (assetIn == base && assetOut == quote) || (assetIn == quote && assetOut == base) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrUnknownAsset, assetIn.Hex(), assetOut.Hex())
}

func (p *ExchangePool) counterpart(asset common.Address) (common.Address, error) {
	switch asset {
	case p.cfg.BaseAsset:
		return p.cfg.QuoteAsset, nil
	case p.cfg.QuoteAsset:
		return p.cfg.BaseAsset, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
}

func (p *ExchangePool) side(asset common.Address) string {
	if asset == p.cfg.BaseAsset {
		return "base"
	}
	return "quote"
}

// reservesFor reads reserves ordered as (input, output) without recording
// them. A quote requested from inside an operation uses the recorded view.
func (p *ExchangePool) reservesFor(ctx context.Context, assetIn, assetOut common.Address) (*big.Int, *big.Int, error) {
	if err := p.checkPair(assetIn, assetOut); err != nil {
		return nil, nil, err
	}
	var (
		base, quote *big.Int
		err         error
	)
	if p.depth(ctx) > 0 {
		base, quote = p.recordedReserves()
	} else if base, quote, err = p.Reserves(ctx); err != nil {
		return nil, nil, err
	}
	if assetIn == p.cfg.BaseAsset {
		return base, quote, nil
	}
	return quote, base, nil
}

func (p *ExchangePool) syncedReservesFor(ctx context.Context, assetIn common.Address) (*big.Int, *big.Int, error) {
	base, quote, err := p.syncReserves(ctx)
	if err != nil {
		return nil, nil, err
	}
	if assetIn == p.cfg.BaseAsset {
		return base, quote, nil
	}
	return quote, base, nil
}
