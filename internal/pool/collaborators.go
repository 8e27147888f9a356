package pool

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tswap/internal/model"
)

// Ledger holds the balances of both pool assets. Balances must be read fresh
// on every call; the pool never prices from a cached value.
type Ledger interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
}

// Clock returns the current time in unix seconds. It is only used for
// deadline checks.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// EventSink receives pool notifications after an operation has settled.
type EventSink interface {
	Emit(ctx context.Context, event model.PoolEvent) error
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

// Set moves the clock to ts.
func (c *ManualClock) Set(ts uint64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds uint64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

type discardSink struct{}

func (discardSink) Emit(context.Context, model.PoolEvent) error { return nil }
