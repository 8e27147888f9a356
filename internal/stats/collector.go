// Package stats aggregates pool events into fixed-size time windows.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tswap/internal/amm"
	"tswap/internal/model"
)

// Clock supplies event timestamps in unix seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Window holds the totals of one time window. Volume and fees are keyed by
// the swap input asset.
type Window struct {
	Start       uint64
	End         uint64
	SwapCount   uint64
	Deposits    uint64
	Withdrawals uint64
	Rewards     uint64
	Volume      map[common.Address]*big.Int
	Fees        map[common.Address]*big.Int
	FirstBlock  uint64
	LastBlock   uint64
}

func newWindow(start, end uint64) *Window {
	return &Window{
		Start:  start,
		End:    end,
		Volume: make(map[common.Address]*big.Int),
		Fees:   make(map[common.Address]*big.Int),
	}
}

func (w *Window) clone() Window {
	out := *w
	out.Volume = cloneAmounts(w.Volume)
	out.Fees = cloneAmounts(w.Fees)
	return out
}

func (w *Window) merge(other *Window) {
	w.SwapCount += other.SwapCount
	w.Deposits += other.Deposits
	w.Withdrawals += other.Withdrawals
	w.Rewards += other.Rewards
	for asset, v := range other.Volume {
		addAmount(w.Volume, asset, v)
	}
	for asset, v := range other.Fees {
		addAmount(w.Fees, asset, v)
	}
	if w.FirstBlock == 0 || (other.FirstBlock != 0 && other.FirstBlock < w.FirstBlock) {
		w.FirstBlock = other.FirstBlock
	}
	if other.LastBlock > w.LastBlock {
		w.LastBlock = other.LastBlock
	}
	if w.Start == 0 || other.Start < w.Start {
		w.Start = other.Start
	}
	if other.End > w.End {
		w.End = other.End
	}
}

// Collector accumulates events into windows of windowSeconds. It can be used
// as a pool event sink.
type Collector struct {
	windowSeconds uint64
	fee           amm.Fee
	clock         Clock

	mu      sync.Mutex
	windows map[uint64]*Window
}

// NewCollector builds a collector. fee is used to derive the fee portion of
// every swap input. clock is only needed when the collector is a sink.
func NewCollector(windowSeconds uint64, fee amm.Fee, clock Clock) (*Collector, error) {
	if windowSeconds == 0 {
		return nil, fmt.Errorf("window seconds must be > 0")
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	return &Collector{
		windowSeconds: windowSeconds,
		fee:           fee,
		clock:         clock,
		windows:       make(map[uint64]*Window),
	}, nil
}

// Emit records event at the clock's current time.
func (c *Collector) Emit(ctx context.Context, event model.PoolEvent) error {
	if c.clock == nil {
		return fmt.Errorf("collector has no clock")
	}
	ts, err := c.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	return c.Add(ts, 0, event)
}

// Add records event at ts.
func (c *Collector) Add(ts, blockNumber uint64, event model.PoolEvent) error {
	start := windowStart(ts, c.windowSeconds)

	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windows[start]
	if w == nil {
		w = newWindow(start, start+c.windowSeconds)
		c.windows[start] = w
	}
	if blockNumber > 0 {
		if w.FirstBlock == 0 || blockNumber < w.FirstBlock {
			w.FirstBlock = blockNumber
		}
		if blockNumber > w.LastBlock {
			w.LastBlock = blockNumber
		}
	}

	switch ev := event.(type) {
	case model.Swapped:
		return c.applySwap(w, ev)
	case model.LiquidityAdded:
		w.Deposits++
	case model.LiquidityRemoved:
		w.Withdrawals++
	case model.RewardPaid:
		w.Rewards++
	default:
		return fmt.Errorf("unsupported event %T", event)
	}
	return nil
}

// AddRecord records a decoded event read back from JSONL.
func (c *Collector) AddRecord(record model.TypedEventRecord) error {
	var (
		event model.PoolEvent
		err   error
	)
	switch record.EventName {
	case model.EventSwapped:
		var ev model.Swapped
		err = json.Unmarshal(record.Decoded, &ev)
		event = ev
	case model.EventLiquidityAdded:
		var ev model.LiquidityAdded
		err = json.Unmarshal(record.Decoded, &ev)
		event = ev
	case model.EventLiquidityRemoved:
		var ev model.LiquidityRemoved
		err = json.Unmarshal(record.Decoded, &ev)
		event = ev
	case model.EventRewardPaid:
		var ev model.RewardPaid
		err = json.Unmarshal(record.Decoded, &ev)
		event = ev
	default:
		return fmt.Errorf("unsupported event name: %s", record.EventName)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", record.EventName, err)
	}
	return c.Add(record.Timestamp, record.BlockNumber, event)
}

func (c *Collector) applySwap(w *Window, swap model.Swapped) error {
	if !common.IsHexAddress(swap.AssetIn) {
		return fmt.Errorf("invalid asset: %s", swap.AssetIn)
	}
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	asset := common.HexToAddress(swap.AssetIn)
	addAmount(w.Volume, asset, amountIn)
	addAmount(w.Fees, asset, c.fee.Retained(amountIn))
	w.SwapCount++
	return nil
}

// Windows returns copies of all windows ordered by start time.
func (c *Collector) Windows() []Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Window, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Totals merges every window into one spanning all of them.
func (c *Collector) Totals() Window {
	total := newWindow(0, 0)
	for _, w := range c.Windows() {
		w := w
		total.merge(&w)
	}
	return *total
}

// WindowSeconds returns the window size.
func (c *Collector) WindowSeconds() uint64 { return c.windowSeconds }

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func addAmount(m map[common.Address]*big.Int, asset common.Address, v *big.Int) {
	if v == nil {
		return
	}
	cur, ok := m[asset]
	if !ok {
		cur = big.NewInt(0)
	}
	m[asset] = new(big.Int).Add(cur, v)
}

func cloneAmounts(m map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}
