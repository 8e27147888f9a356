// Package sim replays scripted operations against an exchange pool backed by
// an in-memory ledger and a manual clock.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/ledger"
	"tswap/internal/pool"
	"tswap/internal/storage"
)

// Operation names accepted in a script.
const (
	OpMint            = "mint"
	OpDeposit         = "deposit"
	OpWithdraw        = "withdraw"
	OpSwapExactInput  = "swap_exact_input"
	OpSwapExactOutput = "swap_exact_output"
	OpSell            = "sell"
	OpFundRewards     = "fund_rewards"
	OpResetSwapCount  = "reset_swap_count"
	OpAdvance         = "advance"
)

// Op is one line of a script. Which fields apply depends on Op:
//
//	mint              asset, account, amount
//	deposit           account, amount (quote), min (shares), max (base)
//	withdraw          account, amount (shares), min (quote), min_base
//	swap_exact_input  account, asset (input), amount, min
//	swap_exact_output account, asset (input), amount (output), max
//	sell              account, asset (input), amount, min
//	fund_rewards      account, amount
//	advance           seconds
//
// Asset is "base", "quote" or a hex address. Deadline is absolute; TTL is
// relative to the clock. A pool operation with neither fails with
// invalid_amount. Expect names the error kind the operation must fail with.
type Op struct {
	Op       string `json:"op"`
	Account  string `json:"account,omitempty"`
	Asset    string `json:"asset,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Min      string `json:"min,omitempty"`
	MinBase  string `json:"min_base,omitempty"`
	Max      string `json:"max,omitempty"`
	Deadline uint64 `json:"deadline,omitempty"`
	TTL      uint64 `json:"ttl,omitempty"`
	Seconds  uint64 `json:"seconds,omitempty"`
	Expect   string `json:"expect,omitempty"`
}

// Result is the outcome of one Op.
type Result struct {
	Line   int               `json:"line"`
	Op     string            `json:"op"`
	OK     bool              `json:"ok"`
	Output map[string]string `json:"output,omitempty"`
	Error  string            `json:"error,omitempty"`
	Kind   string            `json:"kind,omitempty"`
}

// Report summarises a run. Unexpected counts operations whose outcome did
// not match their Expect field.
type Report struct {
	Applied    int      `json:"applied"`
	Failed     int      `json:"failed"`
	Unexpected int      `json:"unexpected"`
	Results    []Result `json:"results"`
}

// ReadScript parses a JSONL script.
func ReadScript(r io.Reader) ([]Op, error) {
	var (
		ops  []Op
		line int
	)
	err := storage.ScanLines(r, func(raw []byte) error {
		line++
		var op Op
		if err := json.Unmarshal(raw, &op); err != nil {
			return fmt.Errorf("script line %d: %w", line, err)
		}
		if op.Op == "" {
			return fmt.Errorf("script line %d: missing op", line)
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// Runner applies Ops to a pool.
type Runner struct {
	pool   *pool.ExchangePool
	ledger *ledger.Memory
	clock  *pool.ManualClock
	logger *zap.Logger
}

// NewRunner builds a Runner. The pool must use led and clock.
func NewRunner(p *pool.ExchangePool, led *ledger.Memory, clock *pool.ManualClock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pool: p, ledger: led, clock: clock, logger: logger}
}

// Run applies every op in order. A failing pool operation does not stop the
// run; a malformed op does.
func (r *Runner) Run(ctx context.Context, ops []Op) (Report, error) {
	var report Report
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out, err := r.apply(ctx, op)
		if err != nil {
			return report, fmt.Errorf("op %d (%s): %w", i+1, op.Op, err)
		}
		opErr := out.err

		res := Result{Line: i + 1, Op: op.Op, Output: out.output}
		if opErr != nil {
			res.Error = opErr.Error()
			res.Kind = pool.ErrorKind(opErr)
		}
		switch {
		case op.Expect == "" && opErr == nil:
			res.OK = true
			report.Applied++
		case op.Expect == "":
			report.Failed++
			r.logger.Warn("operation failed", zap.Int("line", res.Line), zap.String("op", op.Op), zap.Error(opErr))
		case opErr != nil && res.Kind == op.Expect:
			res.OK = true
			report.Failed++
		default:
			report.Unexpected++
			r.logger.Warn("unexpected outcome",
				zap.Int("line", res.Line),
				zap.String("op", op.Op),
				zap.String("expect", op.Expect),
				zap.String("kind", res.Kind),
			)
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// outcome is what a well-formed op produced. err is the pool's rejection,
// if any.
type outcome struct {
	output map[string]string
	err    error
}

func (r *Runner) apply(ctx context.Context, op Op) (outcome, error) {
	switch op.Op {
	case OpAdvance:
		r.clock.Advance(op.Seconds)
		now, _ := r.clock.Now(ctx)
		return outcome{output: map[string]string{"now": fmt.Sprint(now)}}, nil
	case OpResetSwapCount:
		r.pool.ResetSwapCount()
		return outcome{}, nil
	}

	account, err := parseAccount(op.Account)
	if err != nil {
		return outcome{}, err
	}
	amount, err := parseAmount("amount", op.Amount, true)
	if err != nil {
		return outcome{}, err
	}

	switch op.Op {
	case OpMint:
		asset, err := r.resolveAsset(op.Asset)
		if err != nil {
			return outcome{}, err
		}
		return outcome{err: r.ledger.Mint(asset, account, amount)}, nil

	case OpDeposit:
		minShares, err := parseAmount("min", op.Min, false)
		if err != nil {
			return outcome{}, err
		}
		maxBase, err := parseAmount("max", op.Max, true)
		if err != nil {
			return outcome{}, err
		}
		deadline, err := r.deadline(ctx, op)
		if err != nil {
			return outcome{err: err}, nil
		}
		minted, opErr := r.pool.Deposit(ctx, account, amount, minShares, maxBase, deadline)
		return outcome{output: amounts("shares", minted), err: opErr}, nil

	case OpWithdraw:
		minQuote, err := parseAmount("min", op.Min, false)
		if err != nil {
			return outcome{}, err
		}
		minBase, err := parseAmount("min_base", op.MinBase, false)
		if err != nil {
			return outcome{}, err
		}
		deadline, err := r.deadline(ctx, op)
		if err != nil {
			return outcome{err: err}, nil
		}
		quote, base, opErr := r.pool.Withdraw(ctx, account, amount, minQuote, minBase, deadline)
		if opErr != nil {
			return outcome{err: opErr}, nil
		}
		return outcome{output: map[string]string{"quote": quote.String(), "base": base.String()}}, nil

	case OpSwapExactInput, OpSell:
		assetIn, err := r.resolveAsset(op.Asset)
		if err != nil {
			return outcome{}, err
		}
		minOut, err := parseAmount("min", op.Min, false)
		if err != nil {
			return outcome{}, err
		}
		deadline, err := r.deadline(ctx, op)
		if err != nil {
			return outcome{err: err}, nil
		}
		var (
			out   *big.Int
			opErr error
		)
		if op.Op == OpSell {
			out, opErr = r.pool.SellExactAsset(ctx, account, assetIn, amount, minOut, deadline)
		} else {
			out, opErr = r.pool.SwapExactInput(ctx, account, assetIn, amount, r.other(assetIn), minOut, deadline)
		}
		return outcome{output: amounts("amount_out", out), err: opErr}, nil

	case OpSwapExactOutput:
		assetIn, err := r.resolveAsset(op.Asset)
		if err != nil {
			return outcome{}, err
		}
		maxIn, err := parseAmount("max", op.Max, true)
		if err != nil {
			return outcome{}, err
		}
		deadline, err := r.deadline(ctx, op)
		if err != nil {
			return outcome{err: err}, nil
		}
		in, opErr := r.pool.SwapExactOutput(ctx, account, assetIn, r.other(assetIn), amount, maxIn, deadline)
		return outcome{output: amounts("amount_in", in), err: opErr}, nil

	case OpFundRewards:
		return outcome{err: r.pool.FundRewards(ctx, account, amount)}, nil

	default:
		return outcome{}, fmt.Errorf("unknown op %q", op.Op)
	}
}

func (r *Runner) deadline(ctx context.Context, op Op) (uint64, error) {
	if op.Deadline > 0 {
		return op.Deadline, nil
	}
	if op.TTL == 0 {
		return 0, fmt.Errorf("%w: deadline or ttl is required", pool.ErrInvalidAmount)
	}
	now, err := r.clock.Now(ctx)
	if err != nil {
		return 0, err
	}
	return now + op.TTL, nil
}

func (r *Runner) resolveAsset(name string) (common.Address, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "base":
		return r.pool.BaseAsset(), nil
	case "quote":
		return r.pool.QuoteAsset(), nil
	}
	if !common.IsHexAddress(name) {
		return common.Address{}, fmt.Errorf("invalid asset %q", name)
	}
	return common.HexToAddress(name), nil
}

// other returns the pool asset opposite asset. For an asset outside the
// pool it returns base, and the pool rejects the pair.
func (r *Runner) other(asset common.Address) common.Address {
	if asset == r.pool.BaseAsset() {
		return r.pool.QuoteAsset()
	}
	return r.pool.BaseAsset()
}

func parseAccount(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid account %q", value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string, required bool) (*big.Int, error) {
	if value == "" {
		if required {
			return nil, fmt.Errorf("%s is required", field)
		}
		return nil, nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", field, value)
	}
	return v, nil
}

func amounts(key string, v *big.Int) map[string]string {
	if v == nil {
		return nil
	}
	return map[string]string{key: v.String()}
}
