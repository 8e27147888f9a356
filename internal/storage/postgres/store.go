package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tswap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	chain_id      BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	pool_address  TEXT        NOT NULL,
	topic0        TEXT        NOT NULL,
	topics        TEXT[]      NOT NULL,
	data          TEXT        NOT NULL,
	block_ts      BIGINT      NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id        BIGINT      NOT NULL,
	pool_address    TEXT        NOT NULL,
	block_number    BIGINT      NOT NULL,
	base_asset      TEXT        NOT NULL,
	quote_asset     TEXT        NOT NULL,
	reserve_base    NUMERIC     NOT NULL,
	reserve_quote   NUMERIC     NOT NULL,
	total_shares    NUMERIC     NOT NULL,
	fee_numerator   BIGINT      NOT NULL,
	fee_denominator BIGINT      NOT NULL,
	swap_count      BIGINT      NOT NULL,
	snapshot_ts     BIGINT      NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, block_number)
);
`

// Store provides Postgres persistence for pool events and snapshots.
type Store struct {
	pool    *pgxpool.Pool
	chainID uint64
}

// NewStore connects to dsn. Snapshots are keyed by chainID.
func NewStore(ctx context.Context, dsn string, chainID uint64) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, chainID: chainID}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts encoded pool events. Records already stored are
// skipped.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range logs {
		topic0 := ""
		if len(record.Topics) > 0 {
			topic0 = strings.ToLower(record.Topics[0])
		}
		batch.Queue(`
			INSERT INTO pool_events (
				chain_id, block_number, tx_hash, log_index, pool_address, topic0, topics, data, block_ts, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(record.ChainID),
			int64(record.BlockNumber),
			record.TxHash,
			int64(record.LogIndex),
			record.Address,
			topic0,
			record.Topics,
			record.Data,
			int64(record.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolSnapshots inserts or updates pool snapshots.
func (s *Store) UpsertPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				chain_id, pool_address, block_number, base_asset, quote_asset,
				reserve_base, reserve_quote, total_shares, fee_numerator, fee_denominator,
				swap_count, snapshot_ts, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (chain_id, pool_address, block_number)
			DO UPDATE SET
				base_asset = EXCLUDED.base_asset,
				quote_asset = EXCLUDED.quote_asset,
				reserve_base = EXCLUDED.reserve_base,
				reserve_quote = EXCLUDED.reserve_quote,
				total_shares = EXCLUDED.total_shares,
				fee_numerator = EXCLUDED.fee_numerator,
				fee_denominator = EXCLUDED.fee_denominator,
				swap_count = EXCLUDED.swap_count,
				snapshot_ts = EXCLUDED.snapshot_ts,
				updated_at = now()
		`,
			int64(s.chainID),
			strings.ToLower(snap.Address),
			int64(snap.BlockNumber),
			snap.BaseAsset,
			snap.QuoteAsset,
			snap.ReserveBase,
			snap.ReserveQuote,
			snap.TotalShares,
			int64(snap.FeeNumerator),
			int64(snap.FeeDenom),
			int64(snap.SwapCount),
			int64(snap.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshot returns the most recent stored snapshot of a pool.
func (s *Store) LatestSnapshot(ctx context.Context, address string) (model.PoolSnapshot, bool, error) {
	if address == "" {
		return model.PoolSnapshot{}, false, fmt.Errorf("pool address required")
	}
	var (
		snap                               model.PoolSnapshot
		blockNumber, feeNum, feeDen, swaps int64
		ts                                 int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, block_number, base_asset, quote_asset,
			reserve_base::text, reserve_quote::text, total_shares::text,
			fee_numerator, fee_denominator, swap_count, snapshot_ts
		FROM pool_snapshots
		WHERE chain_id = $1 AND pool_address = $2
		ORDER BY block_number DESC, snapshot_ts DESC
		LIMIT 1
	`, int64(s.chainID), strings.ToLower(address))
	err := row.Scan(
		&snap.Address,
		&blockNumber,
		&snap.BaseAsset,
		&snap.QuoteAsset,
		&snap.ReserveBase,
		&snap.ReserveQuote,
		&snap.TotalShares,
		&feeNum,
		&feeDen,
		&swaps,
		&ts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	snap.BlockNumber = uint64(blockNumber)
	snap.FeeNumerator = uint64(feeNum)
	snap.FeeDenom = uint64(feeDen)
	snap.SwapCount = uint64(swaps)
	snap.Timestamp = uint64(ts)
	return snap, true, nil
}
