package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// HeaderReader reads block headers. *Client implements it.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeadClock reports the timestamp of the latest block, so deadlines are
// judged by chain time rather than the local wall clock.
type HeadClock struct {
	headers    HeaderReader
	maxRetries int
	backoff    time.Duration
}

// NewHeadClock builds a HeadClock that retries failed header reads.
func NewHeadClock(headers HeaderReader, maxRetries int, backoff time.Duration) *HeadClock {
	return &HeadClock{headers: headers, maxRetries: maxRetries, backoff: backoff}
}

// Now returns the latest block timestamp in unix seconds.
func (c *HeadClock) Now(ctx context.Context) (uint64, error) {
	var ts uint64
	err := WithRetry(ctx, c.maxRetries, c.backoff, func(ctx context.Context) error {
		header, err := c.headers.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		if header == nil {
			return fmt.Errorf("latest header is nil")
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("latest block time: %w", err)
	}
	return ts, nil
}
