package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/api"
	"tswap/internal/chain"
	"tswap/internal/config"
	"tswap/internal/events"
	"tswap/internal/ledger"
	"tswap/internal/metrics"
	"tswap/internal/pool"
	"tswap/internal/stats"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-process pool over HTTP",
		RunE:  runServe,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().String("seed-provider", "0x0000000000000000000000000000000000005000", "account that provides the initial liquidity")
	cmd.Flags().String("seed-quote", "", "initial quote liquidity (requires seed-base)")
	cmd.Flags().String("seed-base", "", "initial base liquidity (requires seed-quote)")
	cmd.Flags().Bool("allow-mint", false, "expose POST /mint to credit test balances")
	cmd.Flags().Duration("stats-window", time.Hour, "stats window size")
	cmd.Flags().String("clock-rpc", "", "RPC URL whose latest block timestamp drives deadlines (default system time)")
	cmd.Flags().Int("max-retries", 5, "max retries per clock RPC call")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "base retry backoff")
	addLogLevelFlag(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServe(configFile(cmd), cmd.Flags())
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var clock pool.Clock = pool.SystemClock{}
	if cfg.ClockRPC != "" {
		client, err := chain.NewClient(ctx, cfg.ClockRPC)
		if err != nil {
			return fmt.Errorf("connect clock rpc: %w", err)
		}
		defer client.Close()
		clock = chain.NewHeadClock(client, cfg.MaxRetries, cfg.RetryBackoff)
	}
	led := ledger.NewMemory()
	collector, err := stats.NewCollector(uint64(cfg.StatsWindow.Seconds()), poolCfg.Fee, clock)
	if err != nil {
		return err
	}
	p, err := pool.New(poolCfg, led, clock, events.Multi{events.NewLogSink(logger), collector}, logger, metrics.New(reg, cfg.Pool.Name))
	if err != nil {
		return err
	}

	if err := seedPool(ctx, p, led, cfg); err != nil {
		return err
	}

	opts := api.Options{
		Pool:     p,
		Stats:    collector,
		Gatherer: reg,
		Logger:   logger,
		Assets: map[common.Address]stats.AssetInfo{
			poolCfg.BaseAsset:  {Symbol: "base"},
			poolCfg.QuoteAsset: {Symbol: "quote"},
		},
	}
	if cfg.AllowMint {
		opts.Minter = led
	}
	app, err := api.New(opts)
	if err != nil {
		return err
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Stringer("pool", poolCfg.Account),
		zap.Stringer("base", poolCfg.BaseAsset),
		zap.Stringer("quote", poolCfg.QuoteAsset),
		zap.Stringer("fee", poolCfg.Fee),
		zap.Bool("allow_mint", cfg.AllowMint),
		zap.Bool("chain_clock", cfg.ClockRPC != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Listen)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	logger.Info("serve shutdown")
	return app.Shutdown()
}

// seedPool mints the configured liquidity to the seed provider and deposits
// it, which sets the initial price.
func seedPool(ctx context.Context, p *pool.ExchangePool, led *ledger.Memory, cfg config.ServeConfig) error {
	quote, err := config.ParseAmount(cfg.SeedQuote)
	if err != nil || quote == nil {
		return err
	}
	base, err := config.ParseAmount(cfg.SeedBase)
	if err != nil {
		return err
	}
	provider := common.HexToAddress(cfg.SeedProvider)

	if err := led.Mint(p.QuoteAsset(), provider, quote); err != nil {
		return fmt.Errorf("mint seed quote: %w", err)
	}
	if err := led.Mint(p.BaseAsset(), provider, base); err != nil {
		return fmt.Errorf("mint seed base: %w", err)
	}
	if _, err := p.Deposit(ctx, provider, quote, nil, base, ^uint64(0)); err != nil {
		return fmt.Errorf("seed deposit: %w", err)
	}
	return nil
}
