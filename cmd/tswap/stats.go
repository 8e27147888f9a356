package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/config"
	"tswap/internal/model"
	"tswap/internal/stats"
	"tswap/internal/storage"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize decoded pool events into time windows",
		RunE:  runStats,
	}
	cmd.Flags().String("in", "", "input JSONL of typed events")
	cmd.Flags().Duration("window", 5*time.Minute, "window size")
	cmd.Flags().Uint64("fee-numerator", 997, "fee numerator used to split fees from volume")
	cmd.Flags().Uint64("fee-denominator", 1000, "fee denominator")
	cmd.Flags().String("asset-decimals", "", "display decimals as asset=decimals pairs, comma separated")
	addLogLevelFlag(cmd)
	return cmd
}

type statsOutput struct {
	Windows []stats.Summary `json:"windows"`
	Totals  stats.Summary   `json:"totals"`
	Skipped int             `json:"skipped"`
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadStats(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	collector, err := stats.NewCollector(uint64(cfg.Window.Seconds()), cfg.Fee, nil)
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("stats start",
		zap.String("in", cfg.In),
		zap.Duration("window", cfg.Window),
		zap.Stringer("fee", cfg.Fee),
	)

	skipped, err := collectRecords(inputFile, collector, logger)
	if err != nil {
		return err
	}

	info := make(map[common.Address]stats.AssetInfo, len(cfg.Decimals))
	for asset, decimals := range cfg.Decimals {
		info[asset] = stats.AssetInfo{Decimals: decimals}
	}
	out := statsOutput{
		Windows: []stats.Summary{},
		Totals:  stats.Summarize(collector.Totals(), info),
		Skipped: skipped,
	}
	for _, w := range collector.Windows() {
		out.Windows = append(out.Windows, stats.Summarize(w, info))
	}

	logger.Info("stats complete",
		zap.Int("windows", len(out.Windows)),
		zap.Uint64("swaps", out.Totals.SwapCount),
		zap.Int("skipped", skipped),
	)
	return printJSON(cmd.OutOrStdout(), out)
}

// collectRecords feeds every typed event of r into the collector. Records
// that do not parse are logged and counted.
func collectRecords(r io.Reader, collector *stats.Collector, logger *zap.Logger) (int, error) {
	skipped := 0
	err := storage.ScanLines(r, func(line []byte) error {
		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			logger.Warn("skip unparsable record", zap.Error(err))
			return nil
		}
		if err := collector.AddRecord(record); err != nil {
			skipped++
			logger.Warn("skip record",
				zap.Uint64("block", record.BlockNumber),
				zap.String("tx_hash", record.TxHash),
				zap.Uint64("log_index", record.LogIndex),
				zap.Error(err),
			)
		}
		return nil
	})
	return skipped, err
}
