package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/amm"
	"tswap/internal/chain"
	"tswap/internal/config"
	"tswap/internal/dex"
	"tswap/internal/model"
	"tswap/internal/stats"
	"tswap/internal/storage/postgres"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read a V2 pair on chain and price it with the pool math",
		RunE:  runSnapshot,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pair", "", "pair address")
	cmd.Flags().Uint64("block", 0, "block number (0 means latest)")
	cmd.Flags().String("amount-in", "", "optional token0 input amount to quote, in raw units")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store the snapshot")
	cmd.Flags().Int("max-retries", 5, "max retries per RPC call")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "base retry backoff")
	addLogLevelFlag(cmd)
	return cmd
}

type tokenView struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Reserve  string `json:"reserve"`
	Balance  string `json:"balance,omitempty"`
}

type tradeView struct {
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

type snapshotOutput struct {
	Snapshot       model.PoolSnapshot `json:"snapshot"`
	Token0         tokenView          `json:"token0"`
	Token1         tokenView          `json:"token1"`
	Price0In1      string             `json:"price_token0_in_token1"`
	Price1In0      string             `json:"price_token1_in_token0"`
	Quote          *tradeView         `json:"quote,omitempty"`
	PreviousBlock  *uint64            `json:"previous_block,omitempty"`
	ReserveChanged bool               `json:"reserve_changed"`
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSnapshot(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amountIn, err := config.ParseAmount(cfg.AmountIn)
	if err != nil {
		return err
	}
	pair := common.HexToAddress(cfg.Pair)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	logger.Info("snapshot start",
		zap.String("rpc", cfg.RPCURL),
		zap.Stringer("pair", pair),
		zap.Uint64("block", cfg.Block),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	tokens := dex.NewTokenMetaCache()
	var state dex.PairState
	if err := chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		state, err = dex.FetchPairState(ctx, client, pair, cfg.Block, tokens, logger)
		return err
	}); err != nil {
		return fmt.Errorf("fetch pair state: %w", err)
	}

	out, err := describePair(state, amountIn)
	if err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		if err := storeSnapshot(ctx, cfg, client, &out, logger); err != nil {
			return err
		}
	}

	logger.Info("snapshot complete",
		zap.String("reserve0", out.Token0.Reserve),
		zap.String("reserve1", out.Token1.Reserve),
		zap.String("price0in1", out.Price0In1),
	)
	return printJSON(cmd.OutOrStdout(), out)
}

// describePair prices a pair state with the V2 fee. Spot prices are the
// output of one whole token, fee included.
func describePair(state dex.PairState, amountIn *big.Int) (snapshotOutput, error) {
	snap := state.Snapshot
	fee := amm.Fee{Numerator: snap.FeeNumerator, Denominator: snap.FeeDenom}
	reserve0, ok0 := new(big.Int).SetString(snap.ReserveBase, 10)
	reserve1, ok1 := new(big.Int).SetString(snap.ReserveQuote, 10)
	if !ok0 || !ok1 {
		return snapshotOutput{}, fmt.Errorf("invalid reserves %q/%q", snap.ReserveBase, snap.ReserveQuote)
	}

	out := snapshotOutput{
		Snapshot: snap,
		Token0:   newTokenView(state.Token0, reserve0, state.Balance0),
		Token1:   newTokenView(state.Token1, reserve1, state.Balance1),
	}

	if reserve0.Sign() > 0 && reserve1.Sign() > 0 {
		price0, err := amm.SpotPrice(fee, pow10(state.Token0.Decimals), reserve0, reserve1)
		if err != nil {
			return snapshotOutput{}, err
		}
		price1, err := amm.SpotPrice(fee, pow10(state.Token1.Decimals), reserve1, reserve0)
		if err != nil {
			return snapshotOutput{}, err
		}
		out.Price0In1 = stats.FormatAmount(price0, state.Token1.Decimals)
		out.Price1In0 = stats.FormatAmount(price1, state.Token0.Decimals)
	}

	if amountIn != nil {
		amountOut, err := amm.QuoteOutputGivenInput(fee, amountIn, reserve0, reserve1)
		if err != nil {
			return snapshotOutput{}, fmt.Errorf("quote amount-in: %w", err)
		}
		out.Quote = &tradeView{
			AmountIn:  stats.FormatAmount(amountIn, state.Token0.Decimals),
			AmountOut: stats.FormatAmount(amountOut, state.Token1.Decimals),
		}
	}
	return out, nil
}

func storeSnapshot(ctx context.Context, cfg config.SnapshotConfig, client *chain.Client, out *snapshotOutput, logger *zap.Logger) error {
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

	prev, found, err := store.LatestSnapshot(ctx, out.Snapshot.Address)
	if err != nil {
		return err
	}
	if found {
		block := prev.BlockNumber
		out.PreviousBlock = &block
		out.ReserveChanged = prev.ReserveBase != out.Snapshot.ReserveBase || prev.ReserveQuote != out.Snapshot.ReserveQuote
	} else {
		out.ReserveChanged = true
	}

	if out.Snapshot.BlockNumber == 0 {
		if err := chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
			latest, err := client.LatestBlockNumber(ctx)
			if err != nil {
				return err
			}
			out.Snapshot.BlockNumber = latest
			return nil
		}); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}

	if err := store.UpsertPoolSnapshots(ctx, []model.PoolSnapshot{out.Snapshot}); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	logger.Info("snapshot stored",
		zap.Uint64("chain_id", chainID),
		zap.Uint64("block", out.Snapshot.BlockNumber),
		zap.Bool("changed", out.ReserveChanged),
	)
	return nil
}

func newTokenView(meta model.TokenMeta, reserve, balance *big.Int) tokenView {
	view := tokenView{
		Address:  meta.Address,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Reserve:  stats.FormatAmount(reserve, meta.Decimals),
	}
	if balance != nil {
		view.Balance = stats.FormatAmount(balance, meta.Decimals)
	}
	return view
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
