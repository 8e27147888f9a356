package config

import (
	"fmt"

	"github.com/spf13/pflag"

	"tswap/internal/amm"
)

// QuoteConfig holds configuration for the offline quote commands.
type QuoteConfig struct {
	Fee        amm.Fee
	Amount     string
	ReserveIn  string
	ReserveOut string
	Decimals   uint8
	LogLevel   string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"fee-numerator":   amm.DefaultFee.Numerator,
		"fee-denominator": amm.DefaultFee.Denominator,
		"decimals":        18,
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	decimals := v.GetUint("decimals")
	if decimals > 77 {
		return QuoteConfig{}, fmt.Errorf("decimals out of range: %d", decimals)
	}
	cfg := QuoteConfig{
		Fee:        amm.Fee{Numerator: v.GetUint64("fee-numerator"), Denominator: v.GetUint64("fee-denominator")},
		Amount:     v.GetString("amount"),
		ReserveIn:  v.GetString("reserve-in"),
		ReserveOut: v.GetString("reserve-out"),
		Decimals:   uint8(decimals),
		LogLevel:   v.GetString("log-level"),
	}
	if err := cfg.Fee.Validate(); err != nil {
		return QuoteConfig{}, err
	}
	return cfg, nil
}
