package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tswap/internal/amm"
)

var (
	ErrInvalidAmount       = amm.ErrInvalidAmount
	ErrInsufficientReserve = amm.ErrInsufficientReserve
	ErrSlippageExceeded    = amm.ErrSlippageExceeded
	ErrDeadlineExpired     = amm.ErrDeadlineExpired
	ErrTransferFailed      = amm.ErrTransferFailed

	// ErrUnknownAsset indicates an asset that is not one of the pool's two
	// assets, or the same asset on both sides of a swap.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInsufficientShares indicates a withdrawal of more shares than held.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInvalidConfig indicates a pool that cannot be constructed.
	ErrInvalidConfig = errors.New("invalid pool config")
)

// Bound names reported in a SlippageError.
const (
	BoundMinOutput = "min_output"
	BoundMaxInput  = "max_input"
	BoundMinShares = "min_shares"
	BoundMaxBase   = "max_base"
	BoundMinQuote  = "min_quote"
	BoundMinBase   = "min_base"
)

// SlippageError reports a computed amount that violates a caller bound.
type SlippageError struct {
	Bound  string
	Actual *big.Int
	Limit  *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: %s bound %s, computed %s", e.Bound, e.Limit, e.Actual)
}

func (e *SlippageError) Unwrap() error {
	return ErrSlippageExceeded
}

// DeadlineError reports an operation that ran after its deadline.
type DeadlineError struct {
	Now      uint64
	Deadline uint64
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("deadline expired: now %d > deadline %d", e.Now, e.Deadline)
}

func (e *DeadlineError) Unwrap() error {
	return ErrDeadlineExpired
}

// TransferError reports a ledger transfer that did not complete. It matches
// both ErrTransferFailed and the ledger's own error.
type TransferError struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed: %s of %s from %s to %s: %v", e.Amount, e.Asset.Hex(), e.From.Hex(), e.To.Hex(), e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

// ErrorKind maps an error to a short label used in metrics and scripts.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	default:
		return "other"
	}
}
