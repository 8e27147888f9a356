package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/config"
	"tswap/internal/events"
	"tswap/internal/ledger"
	"tswap/internal/model"
	"tswap/internal/pool"
	"tswap/internal/sim"
	"tswap/internal/stats"
	"tswap/internal/storage"
	"tswap/internal/storage/postgres"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL script of pool operations",
		RunE:  runSimulate,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("script", "", "operations script (JSONL)")
	cmd.Flags().String("out", "./data/pool_logs.jsonl", "output JSONL of encoded pool event logs")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and the final snapshot")
	cmd.Flags().Uint64("chain-id", 31337, "chain id stamped on event logs")
	cmd.Flags().Uint64("start-block", 1, "block number before the first event")
	cmd.Flags().String("start-time", "", "clock start (unix seconds or RFC3339, default now)")
	cmd.Flags().Duration("stats-window", time.Hour, "stats window size")
	addLogLevelFlag(cmd)
	return cmd
}

type simulateOutput struct {
	Report   sim.Report          `json:"report"`
	Snapshot model.PoolSnapshot  `json:"snapshot"`
	Stats    []stats.Summary     `json:"stats"`
	Totals   stats.Summary       `json:"totals"`
	Rewards  *rewardsBalanceView `json:"rewards,omitempty"`
}

type rewardsBalanceView struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSimulate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolCfg, err := cfg.Pool.PoolConfig()
	if err != nil {
		return err
	}

	scriptFile, err := os.Open(cfg.Script)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	ops, err := sim.ReadScript(scriptFile)
	scriptFile.Close()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Multi{}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN, cfg.ChainID)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pgStore)
	}

	clock := pool.NewManualClock(cfg.StartTime)
	led := ledger.NewMemory()

	windowSeconds := uint64(cfg.StatsWindow.Seconds())
	collector, err := stats.NewCollector(windowSeconds, poolCfg.Fee, clock)
	if err != nil {
		return err
	}
	recordSink, err := events.NewRecordSink(events.RecordConfig{
		ChainID:    cfg.ChainID,
		Pool:       poolCfg.Account,
		StartBlock: cfg.StartBlock,
	}, sinks, clock)
	if err != nil {
		return err
	}

	p, err := pool.New(poolCfg, led, clock, events.Multi{events.NewLogSink(logger), recordSink, collector}, logger, nil)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("script", cfg.Script),
		zap.Int("ops", len(ops)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Uint64("start_time", cfg.StartTime),
		zap.Stringer("fee", p.Fee()),
	)

	report, err := sim.NewRunner(p, led, clock, logger).Run(ctx, ops)
	if err != nil {
		return err
	}

	snap, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	snap.BlockNumber = recordSink.LastBlock()
	if pgStore != nil {
		if err := pgStore.UpsertPoolSnapshots(ctx, []model.PoolSnapshot{snap}); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
	}

	out := simulateOutput{
		Report:   report,
		Snapshot: snap,
		Totals:   stats.Summarize(collector.Totals(), assetInfo(poolCfg, snap)),
	}
	for _, w := range collector.Windows() {
		out.Stats = append(out.Stats, stats.Summarize(w, assetInfo(poolCfg, snap)))
	}
	if poolCfg.Rewards.Enabled {
		balance, err := p.RewardsBalance(ctx)
		if err != nil {
			return err
		}
		out.Rewards = &rewardsBalanceView{Account: poolCfg.Rewards.Account.Hex(), Balance: balance.String()}
	}

	logger.Info("simulate complete",
		zap.Int("applied", report.Applied),
		zap.Int("failed", report.Failed),
		zap.Int("unexpected", report.Unexpected),
		zap.Uint64("last_block", snap.BlockNumber),
	)
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if report.Unexpected > 0 {
		return fmt.Errorf("%d operations did not match their expected outcome", report.Unexpected)
	}
	return nil
}

// assetInfo reports raw units with the final reserves so fee rates are
// computed against them.
func assetInfo(cfg pool.Config, snap model.PoolSnapshot) map[common.Address]stats.AssetInfo {
	base, _ := config.ParseAmount(snap.ReserveBase)
	quote, _ := config.ParseAmount(snap.ReserveQuote)
	return map[common.Address]stats.AssetInfo{
		cfg.BaseAsset:  {Symbol: "base", Reserve: base},
		cfg.QuoteAsset: {Symbol: "quote", Reserve: quote},
	}
}
