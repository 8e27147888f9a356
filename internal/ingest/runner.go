// Package ingest copies pool event logs from a chain into storage.
package ingest

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tswap/internal/chain"
	"tswap/internal/model"
	"tswap/internal/storage"
)

// LogSource is the chain surface the runner reads from. *chain.Client
// satisfies it.
type LogSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for ingestion. ToBlock 0 means the latest
// block.
type RunConfig struct {
	FromBlock      uint64
	ToBlock        uint64
	Pools          []common.Address
	Topic0         []common.Hash
	BatchSize      uint64
	CheckpointPath string
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Runner streams pool logs from a LogSource into storage.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	now        func() time.Time
}

// NewRunner builds a Runner. A nil logger is replaced by a no-op logger.
func NewRunner(cfg RunConfig, source LogSource, sink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		storage:    sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath),
		now:        time.Now,
	}
}

// Run ingests every configured range, saving the checkpoint after each batch.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool address is required")
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load(chainIDValue)
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to ingest", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		logs, err := r.filterLogs(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := r.now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}
			ts, err := r.blockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildLogRecord(chainIDValue, log, ts, ingestedAt))
		}

		if err := r.storage.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
		if err := r.checkpoint.Save(chainIDValue, blockRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return nil
}

func (r *Runner) filterLogs(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	var logs []types.Log
	err := chain.WithRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Pools, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := chain.WithRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.Format(time.RFC3339Nano),
	}
}
