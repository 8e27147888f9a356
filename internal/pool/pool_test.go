package pool

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tswap/internal/amm"
	"tswap/internal/ledger"
	"tswap/internal/metrics"
	"tswap/internal/model"
)

var (
	poolAcct    = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	rewardsAcct = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	baseAsset   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	quoteAsset  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lp          = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	lp2         = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	trader      = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	funder      = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

const (
	startTime = uint64(1_000)
	deadline  = uint64(2_000)
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.PoolEvent
	err    error
}

func (s *recordingSink) Emit(_ context.Context, event model.PoolEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	pool   *ExchangePool
	ledger *ledger.Memory
	clock  *ManualClock
	sink   *recordingSink
	reg    *prometheus.Registry
}

func n(v int64) *big.Int { return big.NewInt(v) }

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	cfg := Config{
		Name:       "test",
		Account:    poolAcct,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		ledger: ledger.NewMemory(),
		clock:  NewManualClock(startTime),
		sink:   &recordingSink{},
		reg:    prometheus.NewRegistry(),
	}
	p, err := New(cfg, f.ledger, f.clock, f.sink, nil, metrics.New(f.reg, "test"))
	require.NoError(t, err)
	f.pool = p
	return f
}

func (f *fixture) mint(t *testing.T, asset, account common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(asset, account, n(amount)))
}

func (f *fixture) balance(t *testing.T, asset, account common.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), asset, account)
	require.NoError(t, err)
	return bal
}

// seed makes lp the only provider of a 100/100 pool.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.mint(t, quoteAsset, lp, 100)
	f.mint(t, baseAsset, lp, 100)
	shares, err := f.pool.Deposit(context.Background(), lp, n(100), n(0), n(100), deadline)
	require.NoError(t, err)
	require.Equal(t, n(100), shares)
}

// state is compared as strings; equal big.Ints may differ in internal layout.
type state struct {
	base, quote, shares, lpShares string
	traderBase, traderQuote       string
	swapCount                     uint64
}

func (f *fixture) state(t *testing.T) state {
	t.Helper()
	base, quote, err := f.pool.Reserves(context.Background())
	require.NoError(t, err)
	return state{
		base:        base.String(),
		quote:       quote.String(),
		shares:      f.pool.TotalShares().String(),
		lpShares:    f.pool.SharesOf(lp).String(),
		traderBase:  f.balance(t, baseAsset, trader).String(),
		traderQuote: f.balance(t, quoteAsset, trader).String(),
		swapCount:   f.pool.SwapCount(),
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	mem := ledger.NewMemory()
	valid := func(mutate func(*Config)) Config {
		cfg := Config{Account: poolAcct, BaseAsset: baseAsset, QuoteAsset: quoteAsset}
		mutate(&cfg)
		return cfg
	}
	rewards := RewardsConfig{Enabled: true, Account: rewardsAcct, Asset: quoteAsset, Every: 1, Bonus: n(1)}
	cases := map[string]Config{
		"no account":  valid(func(c *Config) { c.Account = common.Address{} }),
		"same assets": valid(func(c *Config) { c.QuoteAsset = baseAsset }),
		"bad fee":     valid(func(c *Config) { c.Fee = amm.Fee{Numerator: 2, Denominator: 1} }),
		"rewards without account": valid(func(c *Config) {
			c.Rewards = rewards
			c.Rewards.Account = common.Address{}
		}),
		"rewards into pool account": valid(func(c *Config) {
			c.Rewards = rewards
			c.Rewards.Account = poolAcct
		}),
		"rewards without interval": valid(func(c *Config) {
			c.Rewards = rewards
			c.Rewards.Every = 0
		}),
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg, mem, nil, nil, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New(Config{Account: poolAcct, BaseAsset: baseAsset, QuoteAsset: quoteAsset}, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewDefaultsFee(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, amm.DefaultFee, f.pool.Fee())
}

func TestFirstDepositMintsQuoteAmount(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	assert.Equal(t, n(100), f.pool.TotalShares())
	assert.Equal(t, n(100), f.pool.SharesOf(lp))
	assert.Equal(t, n(100), f.balance(t, baseAsset, poolAcct))
	assert.Equal(t, n(100), f.balance(t, quoteAsset, poolAcct))
	assert.Equal(t, []string{model.EventLiquidityAdded}, f.sink.names())

	added := f.sink.events[0].(model.LiquidityAdded)
	assert.Equal(t, model.LiquidityAdded{Provider: lp.Hex(), QuoteAmount: "100", BaseAmount: "100"}, added)
}

func TestFirstDepositNeedsBase(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, quoteAsset, lp, 100)
	_, err := f.pool.Deposit(context.Background(), lp, n(100), n(0), n(0), deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 0, f.pool.TotalShares().Sign())
}

func TestDepositProportional(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, quoteAsset, lp2, 50)
	f.mint(t, baseAsset, lp2, 60)

	minted, err := f.pool.Deposit(context.Background(), lp2, n(50), n(50), n(60), deadline)
	require.NoError(t, err)
	assert.Equal(t, n(50), minted)
	assert.Equal(t, n(150), f.pool.TotalShares())
	assert.Equal(t, n(10), f.balance(t, baseAsset, lp2))
	assert.Equal(t, 0, f.balance(t, quoteAsset, lp2).Sign())
}

func TestDepositSlippage(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, quoteAsset, lp2, 50)
	f.mint(t, baseAsset, lp2, 50)
	before := f.state(t)

	_, err := f.pool.Deposit(context.Background(), lp2, n(50), n(0), n(49), deadline)
	var slip *SlippageError
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMaxBase, slip.Bound)
	assert.Equal(t, n(50), slip.Actual)
	assert.Equal(t, n(49), slip.Limit)

	_, err = f.pool.Deposit(context.Background(), lp2, n(50), n(51), n(50), deadline)
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMinShares, slip.Bound)
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	assert.Equal(t, before, f.state(t))
	assert.Equal(t, 0, f.pool.SharesOf(lp2).Sign())
}

func TestDepositMinimumQuote(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MinQuoteDeposit = n(1_000) })
	f.mint(t, quoteAsset, lp, 100)
	f.mint(t, baseAsset, lp, 100)
	_, err := f.pool.Deposit(context.Background(), lp, n(100), n(0), n(100), deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDepositDeadlineCheckedFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Set(deadline + 1)
	_, err := f.pool.Deposit(context.Background(), lp, n(0), n(0), n(0), deadline)
	var dl *DeadlineError
	require.ErrorAs(t, err, &dl)
	assert.Equal(t, deadline+1, dl.Now)
	assert.ErrorIs(t, err, ErrDeadlineExpired)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	quote, base, err := f.pool.Withdraw(context.Background(), lp, n(40), n(40), n(40), deadline)
	require.NoError(t, err)
	assert.Equal(t, n(40), quote)
	assert.Equal(t, n(40), base)
	assert.Equal(t, n(60), f.pool.SharesOf(lp))
	assert.Equal(t, n(60), f.pool.TotalShares())
	assert.Equal(t, n(40), f.balance(t, quoteAsset, lp))

	removed := f.sink.events[len(f.sink.events)-1].(model.LiquidityRemoved)
	assert.Equal(t, model.LiquidityRemoved{Provider: lp.Hex(), QuoteAmount: "40", BaseAmount: "40"}, removed)
}

func TestWithdrawRejects(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	before := f.state(t)
	ctx := context.Background()

	_, _, err := f.pool.Withdraw(ctx, lp, n(0), nil, nil, deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = f.pool.Withdraw(ctx, lp, n(101), nil, nil, deadline)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = f.pool.Withdraw(ctx, lp2, n(1), nil, nil, deadline)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = f.pool.Withdraw(ctx, lp, n(50), n(51), nil, deadline)
	var slip *SlippageError
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMinQuote, slip.Bound)

	_, _, err = f.pool.Withdraw(ctx, lp, n(50), nil, n(51), deadline)
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMinBase, slip.Bound)

	f.clock.Set(deadline + 1)
	_, _, err = f.pool.Withdraw(ctx, lp, n(50), nil, nil, deadline)
	assert.ErrorIs(t, err, ErrDeadlineExpired)

	assert.Equal(t, before, f.state(t))
}

func TestSwapExactInput(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 10)

	out, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(10), quoteAsset, n(9), deadline)
	require.NoError(t, err)
	assert.Equal(t, n(9), out)

	base, quote, err := f.pool.Reserves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n(110), base)
	assert.Equal(t, n(91), quote)
	assert.Equal(t, n(9), f.balance(t, quoteAsset, trader))
	assert.Equal(t, 0, f.balance(t, baseAsset, trader).Sign())
	assert.Equal(t, uint64(1), f.pool.SwapCount())

	swapped := f.sink.events[len(f.sink.events)-1].(model.Swapped)
	assert.Equal(t, model.Swapped{
		Trader:    trader.Hex(),
		AssetIn:   baseAsset.Hex(),
		AmountIn:  "10",
		AssetOut:  quoteAsset.Hex(),
		AmountOut: "9",
	}, swapped)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.pool.metrics.OperationsTotal.WithLabelValues(opSwapExactInput)))
	assert.Equal(t, 10.0, testutil.ToFloat64(f.pool.metrics.SwapVolume.WithLabelValues("base")))
}

func TestSwapExactOutput(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 20)

	in, err := f.pool.SwapExactOutput(context.Background(), trader, baseAsset, quoteAsset, n(9), n(10), deadline)
	require.NoError(t, err)
	assert.Equal(t, n(10), in)
	assert.Equal(t, n(10), f.balance(t, baseAsset, trader))
	assert.Equal(t, n(9), f.balance(t, quoteAsset, trader))
}

func TestSwapExactOutputRequiresMaxInput(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	_, err := f.pool.SwapExactOutput(context.Background(), trader, baseAsset, quoteAsset, n(9), nil, deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSwapSlippageLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 100)
	before := f.state(t)
	ctx := context.Background()

	_, err := f.pool.SwapExactInput(ctx, trader, baseAsset, n(10), quoteAsset, n(10), deadline)
	var slip *SlippageError
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMinOutput, slip.Bound)
	assert.Equal(t, n(9), slip.Actual)
	assert.Equal(t, n(10), slip.Limit)

	_, err = f.pool.SwapExactOutput(ctx, trader, baseAsset, quoteAsset, n(9), n(9), deadline)
	require.ErrorAs(t, err, &slip)
	assert.Equal(t, BoundMaxInput, slip.Bound)
	assert.Equal(t, n(10), slip.Actual)

	assert.Equal(t, before, f.state(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.pool.metrics.ErrorsTotal.WithLabelValues(opSwapExactInput, "slippage_exceeded")))
}

func TestSwapDeadlineLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 100)
	before := f.state(t)
	f.clock.Advance(deadline)

	_, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(10), quoteAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrDeadlineExpired)
	_, err = f.pool.SwapExactOutput(context.Background(), trader, baseAsset, quoteAsset, n(1), n(100), deadline)
	assert.ErrorIs(t, err, ErrDeadlineExpired)

	assert.Equal(t, before, f.state(t))
}

func TestSwapRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 100)
	ctx := context.Background()
	other := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	_, err := f.pool.SwapExactInput(ctx, trader, baseAsset, n(0), quoteAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.pool.SwapExactInput(ctx, trader, baseAsset, n(10), baseAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrUnknownAsset)
	_, err = f.pool.SwapExactInput(ctx, trader, other, n(10), quoteAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrUnknownAsset)
	_, err = f.pool.SwapExactOutput(ctx, trader, baseAsset, quoteAsset, n(100), n(1_000_000), deadline)
	assert.ErrorIs(t, err, ErrInsufficientReserve)
	_, err = f.pool.SellExactAsset(ctx, trader, other, n(10), nil, deadline)
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestNoFreeOutput(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 1)
	before := f.state(t)

	_, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(1), quoteAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, before, f.state(t))
}

func TestSwapOnEmptyPool(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, baseAsset, trader, 10)
	_, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(10), quoteAsset, nil, deadline)
	assert.ErrorIs(t, err, ErrInsufficientReserve)
}

func TestSellExactAssetUsesExactInputPath(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, quoteAsset, trader, 10)

	var paths []string
	f.pool.pathHook = func(op string) { paths = append(paths, op) }

	out, err := f.pool.SellExactAsset(context.Background(), trader, quoteAsset, n(10), n(9), deadline)
	require.NoError(t, err)
	assert.Equal(t, n(9), out)
	assert.Equal(t, []string{opSwapExactInput}, paths)
}

func TestTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 10)
	before := f.state(t)
	eventsBefore := len(f.sink.names())

	errRejected := errors.New("receiver rejected")
	f.ledger.SetHook(trader, func(_ context.Context, tr ledger.Transfer) error {
		if tr.Asset == quoteAsset {
			return errRejected
		}
		return nil
	})

	_, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(10), quoteAsset, nil, deadline)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, errRejected)

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, quoteAsset, te.Asset)
	assert.Equal(t, trader, te.To)

	assert.Equal(t, before, f.state(t))
	assert.Len(t, f.sink.names(), eventsBefore)
}

func TestDepositTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, quoteAsset, lp, 100)
	f.mint(t, baseAsset, lp, 50)
	before := f.state(t)

	_, err := f.pool.Deposit(context.Background(), lp, n(100), n(0), n(100), deadline)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, before, f.state(t))
	assert.Equal(t, n(100), f.balance(t, quoteAsset, lp))
	assert.Equal(t, 0, f.pool.SharesOf(lp).Sign())
}

func TestReentrantWithdrawFails(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	var nestedErr error
	var reentered bool
	f.ledger.SetHook(lp, func(ctx context.Context, tr ledger.Transfer) error {
		if tr.Asset != quoteAsset || reentered {
			return nil
		}
		reentered = true
		_, _, nestedErr = f.pool.Withdraw(ctx, lp, n(100), nil, nil, deadline)
		return nil
	})

	quote, base, err := f.pool.Withdraw(context.Background(), lp, n(100), nil, nil, deadline)
	require.NoError(t, err)
	require.True(t, reentered)
	assert.ErrorIs(t, nestedErr, ErrInsufficientShares)
	assert.Equal(t, n(100), quote)
	assert.Equal(t, n(100), base)
	assert.Equal(t, 0, f.pool.TotalShares().Sign())
	assert.Equal(t, 0, f.balance(t, quoteAsset, poolAcct).Sign())
}

func TestReentrantSwapDuringWithdrawKeepsProduct(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, quoteAsset, lp, 1100)
	f.mint(t, baseAsset, lp, 1000)
	_, err := f.pool.Deposit(context.Background(), lp, n(1000), n(0), n(1000), deadline)
	require.NoError(t, err)

	var nestedQuote, nestedOut *big.Int
	var nestedErr error
	var reentered bool
	f.ledger.SetHook(lp, func(ctx context.Context, tr ledger.Transfer) error {
		// Fires after the quote leg of the withdrawal; the base leg is pending.
		if tr.Asset != quoteAsset || reentered {
			return nil
		}
		reentered = true
		nestedQuote, nestedErr = f.pool.QuoteOut(ctx, quoteAsset, n(100))
		if nestedErr != nil {
			return nil
		}
		nestedOut, nestedErr = f.pool.SwapExactInput(ctx, lp, quoteAsset, n(100), baseAsset, nil, deadline)
		return nil
	})

	quote, base, err := f.pool.Withdraw(context.Background(), lp, n(500), nil, nil, deadline)
	require.NoError(t, err)
	require.True(t, reentered)
	require.NoError(t, nestedErr)
	assert.Equal(t, n(500), quote)
	assert.Equal(t, n(500), base)

	// Priced against 500/500, what the pool holds once the withdrawal settles.
	want, err := amm.QuoteOutputGivenInput(amm.DefaultFee, n(100), n(500), n(500))
	require.NoError(t, err)
	assert.Equal(t, want.String(), nestedQuote.String())
	assert.Equal(t, want.String(), nestedOut.String())

	reserveBase, reserveQuote, err := f.pool.Reserves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(n(500), want).String(), reserveBase.String())
	assert.Equal(t, "600", reserveQuote.String())
	product := amm.Product(reserveBase, reserveQuote)
	assert.GreaterOrEqual(t, product.Cmp(amm.Product(n(500), n(500))), 0, "product %s", product)

	snap, err := f.pool.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reserveBase.String(), snap.ReserveBase)
	assert.Equal(t, uint64(1), f.pool.SwapCount())
}

func TestReentrantSwapSeesAppliedEffects(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.mint(t, baseAsset, trader, 20)

	var nestedOut *big.Int
	var reentered bool
	f.ledger.SetHook(trader, func(ctx context.Context, tr ledger.Transfer) error {
		if tr.Asset != quoteAsset || reentered {
			return nil
		}
		reentered = true
		out, err := f.pool.SwapExactInput(ctx, trader, baseAsset, n(10), quoteAsset, nil, deadline)
		if err != nil {
			return err
		}
		nestedOut = out
		return nil
	})

	out, err := f.pool.SwapExactInput(context.Background(), trader, baseAsset, n(10), quoteAsset, nil, deadline)
	require.NoError(t, err)
	assert.Equal(t, n(9), out)
	// Nested swap priced against 110/91.
	want, err := amm.QuoteOutputGivenInput(amm.DefaultFee, n(10), n(110), n(91))
	require.NoError(t, err)
	assert.Equal(t, want, nestedOut)
	assert.Equal(t, uint64(2), f.pool.SwapCount())
}

func TestSinkErrorDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.err = errors.New("sink down")
	f.seed(t)
	assert.Equal(t, n(100), f.pool.TotalShares())
}

func TestQuotes(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	ctx := context.Background()

	out, err := f.pool.QuoteOut(ctx, baseAsset, n(10))
	require.NoError(t, err)
	assert.Equal(t, n(9), out)

	in, err := f.pool.QuoteIn(ctx, baseAsset, n(9))
	require.NoError(t, err)
	assert.Equal(t, n(10), in)

	price, err := f.pool.PriceOfOneBaseInQuote(ctx, n(10))
	require.NoError(t, err)
	assert.Equal(t, n(9), price)
	price, err = f.pool.PriceOfOneQuoteInBase(ctx, n(10))
	require.NoError(t, err)
	assert.Equal(t, n(9), price)

	snap, err := f.pool.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", snap.ReserveBase)
	assert.Equal(t, "100", snap.TotalShares)
	assert.Equal(t, startTime, snap.Timestamp)
	assert.Equal(t, uint64(997), snap.FeeNumerator)
}

func TestConcurrentSwapsKeepProduct(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, quoteAsset, lp, 1_000_000)
	f.mint(t, baseAsset, lp, 1_000_000)
	_, err := f.pool.Deposit(context.Background(), lp, n(1_000_000), n(0), n(1_000_000), deadline)
	require.NoError(t, err)
	f.mint(t, baseAsset, trader, 100_000)
	f.mint(t, quoteAsset, trader, 100_000)

	before := amm.Product(n(1_000_000), n(1_000_000))
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, out := baseAsset, quoteAsset
			if i%2 == 1 {
				in, out = out, in
			}
			_, err := f.pool.SwapExactInput(context.Background(), trader, in, n(1_000), out, nil, deadline)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	base, quote, err := f.pool.Reserves(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, amm.Product(base, quote).Cmp(before), 0)
	assert.Equal(t, uint64(32), f.pool.SwapCount())
}
