package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/chain"
	"tswap/internal/config"
	"tswap/internal/ingest"
	"tswap/internal/storage"
	"tswap/internal/storage/postgres"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Copy pool event logs from a chain into JSONL or Postgres",
		RunE:  runIngest,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("from", 0, "start block")
	cmd.Flags().Uint64("to", 0, "end block (0 means latest)")
	cmd.Flags().StringSlice("pool", nil, "pool address (repeat or comma separated)")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per log query")
	cmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path (empty disables)")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file (empty disables)")
	cmd.Flags().Int("max-retries", 5, "max retries per RPC call")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "base retry backoff")
	addLogLevelFlag(cmd)
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadIngest(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pools, err := ingest.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	topics, err := ingest.PoolTopics()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	sinks := storage.Multi{}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		var chainID uint64
		if err := chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
			id, err := client.ChainID(ctx)
			if err != nil {
				return err
			}
			chainID = id.Uint64()
			return nil
		}); err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		store, err := postgres.NewStore(ctx, cfg.PGDSN, chainID)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("no output configured: set out or pg-dsn")
	}

	logger.Info("ingest start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("pools", len(pools)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	runner := ingest.NewRunner(ingest.RunConfig{
		FromBlock:      cfg.FromBlock,
		ToBlock:        cfg.ToBlock,
		Pools:          pools,
		Topic0:         topics,
		BatchSize:      cfg.BatchSize,
		CheckpointPath: cfg.Checkpoint,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
	}, client, sinks, logger)
	return runner.Run(ctx)
}
