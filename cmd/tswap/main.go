package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tswap",
		Short:        "Constant-product exchange pool toolkit",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newQuoteCmd(),
		newSimulateCmd(),
		newServeCmd(),
		newSnapshotCmd(),
		newIngestCmd(),
		newDecodeCmd(),
		newStatsCmd(),
	)
	return root
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool-name", "tswap", "pool name used in logs and metric labels")
	cmd.Flags().String("pool-account", "0x0000000000000000000000000000000000001000", "account holding the pool reserves")
	cmd.Flags().String("base", "0x0000000000000000000000000000000000002000", "base asset address")
	cmd.Flags().String("quote", "0x0000000000000000000000000000000000003000", "quote asset address")
	cmd.Flags().Uint64("fee-numerator", 997, "fee numerator")
	cmd.Flags().Uint64("fee-denominator", 1000, "fee denominator")
	cmd.Flags().String("min-quote-deposit", "", "minimum quote amount per deposit (empty disables)")
	cmd.Flags().Bool("rewards-enabled", false, "pay a bonus from the rewards reserve every N swaps")
	cmd.Flags().String("rewards-account", "0x0000000000000000000000000000000000004000", "rewards reserve account")
	cmd.Flags().String("rewards-asset", "", "rewards asset (defaults to base)")
	cmd.Flags().Uint64("rewards-every", 10, "swaps between payouts")
	cmd.Flags().String("rewards-bonus", "0", "payout amount")
}

func addLogLevelFlag(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
