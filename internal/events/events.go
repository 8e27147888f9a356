// Package events provides sinks for pool notifications.
package events

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"tswap/internal/dex"
	"tswap/internal/model"
	"tswap/internal/storage"
)

// Sink receives pool events. It matches pool.EventSink.
type Sink interface {
	Emit(ctx context.Context, event model.PoolEvent) error
}

// Clock supplies event timestamps in unix seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Multi forwards each event to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event model.PoolEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every event to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event model.PoolEvent) error {
	fields := []zap.Field{zap.String("event", event.EventName())}
	switch ev := event.(type) {
	case model.LiquidityAdded:
		fields = append(fields,
			zap.String("provider", ev.Provider),
			zap.String("quote_amount", ev.QuoteAmount),
			zap.String("base_amount", ev.BaseAmount),
		)
	case model.LiquidityRemoved:
		fields = append(fields,
			zap.String("provider", ev.Provider),
			zap.String("quote_amount", ev.QuoteAmount),
			zap.String("base_amount", ev.BaseAmount),
		)
	case model.Swapped:
		fields = append(fields,
			zap.String("trader", ev.Trader),
			zap.String("asset_in", ev.AssetIn),
			zap.String("amount_in", ev.AmountIn),
			zap.String("asset_out", ev.AssetOut),
			zap.String("amount_out", ev.AmountOut),
		)
	case model.RewardPaid:
		fields = append(fields,
			zap.String("trader", ev.Trader),
			zap.String("asset", ev.Asset),
			zap.String("amount", ev.Amount),
		)
	default:
		fields = append(fields, zap.Any("payload", event))
	}
	s.logger.Info("pool event", fields...)
	return nil
}

// RecordConfig positions the logs a RecordSink produces.
type RecordConfig struct {
	ChainID    uint64
	Pool       common.Address
	StartBlock uint64
}

// RecordSink encodes events as EVM-style log records and writes them to
// storage. Each event gets its own synthetic block and transaction.
type RecordSink struct {
	cfg     RecordConfig
	encoder *dex.Encoder
	store   storage.Storage
	clock   Clock

	mu    sync.Mutex
	block uint64
	seq   uint64
}

// NewRecordSink builds a RecordSink. clock may be nil, in which case
// timestamps are left zero.
func NewRecordSink(cfg RecordConfig, store storage.Storage, clock Clock) (*RecordSink, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is nil")
	}
	encoder, err := dex.NewEncoder()
	if err != nil {
		return nil, err
	}
	return &RecordSink{
		cfg:     cfg,
		encoder: encoder,
		store:   store,
		clock:   clock,
		block:   cfg.StartBlock,
	}, nil
}

func (s *RecordSink) Emit(ctx context.Context, event model.PoolEvent) error {
	var ts uint64
	if s.clock != nil {
		now, err := s.clock.Now(ctx)
		if err != nil {
			return fmt.Errorf("read clock: %w", err)
		}
		ts = now
	}

	s.mu.Lock()
	s.block++
	s.seq++
	meta := dex.LogMeta{
		ChainID:     s.cfg.ChainID,
		BlockNumber: s.block,
		TxHash:      syntheticTxHash(s.cfg.Pool, s.seq),
		Address:     s.cfg.Pool,
		Timestamp:   ts,
	}
	s.mu.Unlock()

	record, err := s.encoder.Encode(event, meta)
	if err != nil {
		return err
	}
	if err := s.store.PutLogBatch(ctx, []model.LogRecord{record}); err != nil {
		return fmt.Errorf("store %s: %w", event.EventName(), err)
	}
	return nil
}

// LastBlock returns the block number of the most recent record.
func (s *RecordSink) LastBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}

// syntheticTxHash derives a stable hash from the pool address and sequence.
func syntheticTxHash(pool common.Address, seq uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return crypto.Keccak256Hash(pool.Bytes(), buf[:])
}
