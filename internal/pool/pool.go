// Package pool implements a two-asset constant-product exchange pool.
//
// Every mutating operation follows the same order: validate, apply internal
// effects (share ledger, recorded reserves, swap counter) into a journal, then
// issue ledger transfers. If a transfer fails, transfers already made are
// compensated and the journal is undone, so the caller observes either the
// whole operation or nothing.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/amm"
	"tswap/internal/metrics"
	"tswap/internal/model"
)

const (
	opSwapExactInput  = "swap_exact_input"
	opSwapExactOutput = "swap_exact_output"
	opSellExactAsset  = "sell_exact_asset"
	opDeposit         = "deposit"
	opWithdraw        = "withdraw"
	opFundRewards     = "fund_rewards"
)

// Config describes a pool. Fee defaults to amm.DefaultFee when left zero.
type Config struct {
	Name            string
	Account         common.Address
	BaseAsset       common.Address
	QuoteAsset      common.Address
	Fee             amm.Fee
	MinQuoteDeposit *big.Int
	Rewards         RewardsConfig
}

func (c *Config) validate() error {
	if c.Account == (common.Address{}) {
		return fmt.Errorf("%w: pool account is required", ErrInvalidConfig)
	}
	if c.BaseAsset == (common.Address{}) || c.QuoteAsset == (common.Address{}) {
		return fmt.Errorf("%w: base and quote assets are required", ErrInvalidConfig)
	}
	if c.BaseAsset == c.QuoteAsset {
		return fmt.Errorf("%w: base and quote assets must differ", ErrInvalidConfig)
	}
	if err := c.Fee.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MinQuoteDeposit != nil && c.MinQuoteDeposit.Sign() < 0 {
		return fmt.Errorf("%w: negative minimum quote deposit", ErrInvalidConfig)
	}
	return c.Rewards.validate(c.Account)
}

// ExchangePool holds the share ledger of a two-asset pool and executes swaps
// and liquidity changes against a Ledger.
type ExchangePool struct {
	cfg     Config
	fee     amm.Fee
	ledger  Ledger
	clock   Clock
	sink    EventSink
	logger  *zap.Logger
	metrics *metrics.Metrics

	// mu serializes operations across goroutines. A call that re-enters the
	// pool from inside one of its own transfers already owns it; see enter.
	mu sync.Mutex

	stateMu      sync.RWMutex
	shares       map[common.Address]*big.Int
	totalShares  *big.Int
	reserveBase  *big.Int
	reserveQuote *big.Int
	swapCount    uint64

	pathHook func(op string)
}

// New builds an ExchangePool. sink, logger and m may be nil.
func New(cfg Config, ledger Ledger, clock Clock, sink EventSink, logger *zap.Logger, m *metrics.Metrics) (*ExchangePool, error) {
	if cfg.Fee == (amm.Fee{}) {
		cfg.Fee = amm.DefaultFee
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger is nil", ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name != "" {
		logger = logger.With(zap.String("pool", cfg.Name))
	}

	return &ExchangePool{
		cfg:          cfg,
		fee:          cfg.Fee,
		ledger:       ledger,
		clock:        clock,
		sink:         sink,
		logger:       logger,
		metrics:      m,
		shares:       make(map[common.Address]*big.Int),
		totalShares:  big.NewInt(0),
		reserveBase:  big.NewInt(0),
		reserveQuote: big.NewInt(0),
	}, nil
}

// Account returns the ledger account holding the pool reserves.
func (p *ExchangePool) Account() common.Address { return p.cfg.Account }

// BaseAsset returns the base asset.
func (p *ExchangePool) BaseAsset() common.Address { return p.cfg.BaseAsset }

// QuoteAsset returns the quote asset.
func (p *ExchangePool) QuoteAsset() common.Address { return p.cfg.QuoteAsset }

// Fee returns the fixed trading fee.
func (p *ExchangePool) Fee() amm.Fee { return p.fee }

// TotalShares returns the outstanding liquidity shares.
func (p *ExchangePool) TotalShares() *big.Int {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return new(big.Int).Set(p.totalShares)
}

// SharesOf returns the shares held by provider.
func (p *ExchangePool) SharesOf(provider common.Address) *big.Int {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if held, ok := p.shares[provider]; ok {
		return new(big.Int).Set(held)
	}
	return big.NewInt(0)
}

// Reserves reads both reserves from the ledger.
func (p *ExchangePool) Reserves(ctx context.Context) (base, quote *big.Int, err error) {
	base, err = p.ledger.BalanceOf(ctx, p.cfg.BaseAsset, p.cfg.Account)
	if err != nil {
		return nil, nil, fmt.Errorf("read base reserve: %w", err)
	}
	quote, err = p.ledger.BalanceOf(ctx, p.cfg.QuoteAsset, p.cfg.Account)
	if err != nil {
		return nil, nil, fmt.Errorf("read quote reserve: %w", err)
	}
	return base, quote, nil
}

// Snapshot returns the current pool state with freshly read reserves.
func (p *ExchangePool) Snapshot(ctx context.Context) (model.PoolSnapshot, error) {
	base, quote, err := p.Reserves(ctx)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("read clock: %w", err)
	}

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return model.PoolSnapshot{
		Address:      p.cfg.Account.Hex(),
		BaseAsset:    p.cfg.BaseAsset.Hex(),
		QuoteAsset:   p.cfg.QuoteAsset.Hex(),
		ReserveBase:  base.String(),
		ReserveQuote: quote.String(),
		TotalShares:  p.totalShares.String(),
		FeeNumerator: p.fee.Numerator,
		FeeDenom:     p.fee.Denominator,
		SwapCount:    p.swapCount,
		Timestamp:    now,
	}, nil
}

type frameKey struct{ p *ExchangePool }

// enter acquires the operation lock unless ctx shows the caller is already
// inside one of this pool's operations (a reentrant call from a transfer).
// The returned context must be passed to every ledger call.
func (p *ExchangePool) enter(ctx context.Context) (context.Context, func()) {
	if depth := p.depth(ctx); depth > 0 {
		return context.WithValue(ctx, frameKey{p}, depth+1), func() {}
	}
	p.mu.Lock()
	return context.WithValue(ctx, frameKey{p}, 1), p.mu.Unlock
}

// depth counts the pool operations ctx is nested in.
func (p *ExchangePool) depth(ctx context.Context) int {
	depth, _ := ctx.Value(frameKey{p}).(int)
	return depth
}

func (p *ExchangePool) checkDeadline(ctx context.Context, deadline uint64) error {
	now, err := p.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	if now > deadline {
		return &DeadlineError{Now: now, Deadline: deadline}
	}
	return nil
}

// syncReserves reads the ledger and records the result as the pool's view.
// Inside a nested operation the ledger may be half settled, so the recorded
// view, which already carries every applied effect, is returned instead.
func (p *ExchangePool) syncReserves(ctx context.Context) (base, quote *big.Int, err error) {
	if p.depth(ctx) > 1 {
		base, quote = p.recordedReserves()
		return base, quote, nil
	}
	base, quote, err = p.Reserves(ctx)
	if err != nil {
		return nil, nil, err
	}
	p.stateMu.Lock()
	p.reserveBase = new(big.Int).Set(base)
	p.reserveQuote = new(big.Int).Set(quote)
	p.stateMu.Unlock()
	return base, quote, nil
}

func (p *ExchangePool) recordedReserves() (base, quote *big.Int) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return new(big.Int).Set(p.reserveBase), new(big.Int).Set(p.reserveQuote)
}

// journal collects undo steps for internal effects.
type journal []func()

func (j *journal) add(undo func()) {
	*j = append(*j, undo)
}

func (j journal) rollback() {
	for i := len(j) - 1; i >= 0; i-- {
		j[i]()
	}
}

func (p *ExchangePool) addShares(j *journal, provider common.Address, delta *big.Int) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.applySharesLocked(provider, delta)
	undo := new(big.Int).Neg(delta)
	j.add(func() {
		p.stateMu.Lock()
		defer p.stateMu.Unlock()
		p.applySharesLocked(provider, undo)
	})
}

func (p *ExchangePool) applySharesLocked(provider common.Address, delta *big.Int) {
	held, ok := p.shares[provider]
	if !ok {
		held = big.NewInt(0)
	}
	held = new(big.Int).Add(held, delta)
	if held.Sign() == 0 {
		delete(p.shares, provider)
	} else {
		p.shares[provider] = held
	}
	p.totalShares = new(big.Int).Add(p.totalShares, delta)
}

func (p *ExchangePool) addReserve(j *journal, asset common.Address, delta *big.Int) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.applyReserveLocked(asset, delta)
	undo := new(big.Int).Neg(delta)
	j.add(func() {
		p.stateMu.Lock()
		defer p.stateMu.Unlock()
		p.applyReserveLocked(asset, undo)
	})
}

func (p *ExchangePool) applyReserveLocked(asset common.Address, delta *big.Int) {
	if asset == p.cfg.BaseAsset {
		p.reserveBase = new(big.Int).Add(p.reserveBase, delta)
	} else {
		p.reserveQuote = new(big.Int).Add(p.reserveQuote, delta)
	}
}

// leg is one ledger transfer of a settlement.
type leg struct {
	asset  common.Address
	from   common.Address
	to     common.Address
	amount *big.Int
}

// settle issues the transfers in order. When one fails, the completed ones
// are reversed newest first.
func (p *ExchangePool) settle(ctx context.Context, legs []leg) error {
	for i, l := range legs {
		if l.amount.Sign() == 0 {
			continue
		}
		err := p.ledger.Transfer(ctx, l.asset, l.from, l.to, l.amount)
		if err == nil {
			continue
		}
		failed := &TransferError{Asset: l.asset, From: l.from, To: l.to, Amount: new(big.Int).Set(l.amount), Err: err}
		if compErr := p.compensate(ctx, legs[:i]); compErr != nil {
			p.logger.Error("compensation failed", zap.Error(compErr))
			return errors.Join(failed, compErr)
		}
		return failed
	}
	return nil
}

func (p *ExchangePool) compensate(ctx context.Context, done []leg) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		l := done[i]
		if l.amount.Sign() == 0 {
			continue
		}
		// The original transfer already succeeded, so the context may be
		// cancelled by now; the reversal must still be attempted.
		if err := p.ledger.Transfer(context.WithoutCancel(ctx), l.asset, l.to, l.from, l.amount); err != nil {
			errs = append(errs, fmt.Errorf("reverse %s of %s to %s: %w", l.amount, l.asset.Hex(), l.from.Hex(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *ExchangePool) emit(ctx context.Context, events ...model.PoolEvent) {
	for _, event := range events {
		if err := p.sink.Emit(ctx, event); err != nil {
			p.logger.Warn("emit event", zap.String("event", event.EventName()), zap.Error(err))
		}
	}
}

// observe records the outcome of an operation and passes err through.
func (p *ExchangePool) observe(op string, started time.Time, err error) error {
	if err != nil {
		p.metrics.ObserveError(op, ErrorKind(err))
		p.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return err
	}
	p.metrics.ObserveOperation(op, started)
	p.stateMu.RLock()
	p.metrics.SetState(p.reserveBase, p.reserveQuote, p.totalShares)
	p.stateMu.RUnlock()
	return nil
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
