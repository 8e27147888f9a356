package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/amm"
	"tswap/internal/config"
	"tswap/internal/stats"
)

const (
	quoteDirectionOut = "out"
	quoteDirectionIn  = "in"
)

func newQuoteCmd() *cobra.Command {
	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a trade against given reserves",
	}

	outCmd := &cobra.Command{
		Use:   "out",
		Short: "Output received for an exact input amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd, quoteDirectionOut)
		},
	}
	inCmd := &cobra.Command{
		Use:   "in",
		Short: "Input required for an exact output amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd, quoteDirectionIn)
		},
	}

	for _, c := range []*cobra.Command{outCmd, inCmd} {
		c.Flags().String("amount", "", "trade amount in raw units")
		c.Flags().String("reserve-in", "", "reserve of the input asset")
		c.Flags().String("reserve-out", "", "reserve of the output asset")
		c.Flags().Uint64("fee-numerator", 997, "fee numerator")
		c.Flags().Uint64("fee-denominator", 1000, "fee denominator")
		c.Flags().Uint("decimals", 18, "decimals used to display amounts and the spot price unit")
		addLogLevelFlag(c)
		quoteCmd.AddCommand(c)
	}
	return quoteCmd
}

type quoteResult struct {
	Direction        string `json:"direction"`
	Fee              string `json:"fee"`
	AmountIn         string `json:"amount_in"`
	AmountOut        string `json:"amount_out"`
	AmountInDisplay  string `json:"amount_in_display"`
	AmountOutDisplay string `json:"amount_out_display"`
	SpotPrice        string `json:"spot_price,omitempty"`
}

func runQuote(cmd *cobra.Command, direction string) error {
	cfg, err := config.LoadQuote(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amount, err := requireAmount("amount", cfg.Amount)
	if err != nil {
		return err
	}
	reserveIn, err := requireAmount("reserve-in", cfg.ReserveIn)
	if err != nil {
		return err
	}
	reserveOut, err := requireAmount("reserve-out", cfg.ReserveOut)
	if err != nil {
		return err
	}

	result, err := quote(cfg.Fee, direction, amount, reserveIn, reserveOut, cfg.Decimals)
	if err != nil {
		return err
	}
	logger.Debug("quote computed",
		zap.String("direction", direction),
		zap.String("amount_in", result.AmountIn),
		zap.String("amount_out", result.AmountOut),
	)
	return printJSON(cmd.OutOrStdout(), result)
}

func quote(fee amm.Fee, direction string, amount, reserveIn, reserveOut *big.Int, decimals uint8) (quoteResult, error) {
	result := quoteResult{Direction: direction, Fee: fee.String()}

	var in, out *big.Int
	switch direction {
	case quoteDirectionOut:
		computed, err := amm.QuoteOutputGivenInput(fee, amount, reserveIn, reserveOut)
		if err != nil {
			return quoteResult{}, err
		}
		in, out = amount, computed
	case quoteDirectionIn:
		computed, err := amm.QuoteInputGivenOutput(fee, amount, reserveIn, reserveOut)
		if err != nil {
			return quoteResult{}, err
		}
		in, out = computed, amount
	default:
		return quoteResult{}, fmt.Errorf("unknown quote direction: %s", direction)
	}

	result.AmountIn, result.AmountOut = in.String(), out.String()
	result.AmountInDisplay = stats.FormatAmount(in, decimals)
	result.AmountOutDisplay = stats.FormatAmount(out, decimals)

	if price, err := amm.SpotPrice(fee, pow10(decimals), reserveIn, reserveOut); err == nil {
		result.SpotPrice = stats.FormatAmount(price, decimals)
	}
	return result, nil
}

func requireAmount(name, value string) (*big.Int, error) {
	amount, err := config.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if amount == nil {
		return nil, fmt.Errorf("%s is required", name)
	}
	return amount, nil
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
