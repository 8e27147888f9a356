package amm

import "errors"

var (
	// ErrInvalidAmount indicates a required amount was zero, negative or missing.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientReserve indicates the requested output meets or exceeds the
	// reserve, or a reserve is empty.
	ErrInsufficientReserve = errors.New("insufficient reserve")
	// ErrSlippageExceeded indicates a computed amount violates a caller bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrDeadlineExpired indicates the operation ran after its deadline.
	ErrDeadlineExpired = errors.New("deadline expired")
	// ErrTransferFailed indicates an asset transfer did not complete.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrInvalidFee indicates a fee with a zero denominator or a numerator out of range.
	ErrInvalidFee = errors.New("invalid fee")
)
