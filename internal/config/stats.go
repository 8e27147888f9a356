package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"tswap/internal/amm"
)

// StatsConfig holds configuration for the stats command.
type StatsConfig struct {
	In       string
	Window   time.Duration
	Fee      amm.Fee
	Decimals map[common.Address]uint8
	LogLevel string
}

// LoadStats merges config file, environment variables, and flags into StatsConfig.
func LoadStats(cfgFile string, flags *pflag.FlagSet) (StatsConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"window":          5 * time.Minute,
		"fee-numerator":   amm.DefaultFee.Numerator,
		"fee-denominator": amm.DefaultFee.Denominator,
	})
	if err != nil {
		return StatsConfig{}, err
	}

	cfg := StatsConfig{
		In:       v.GetString("in"),
		Window:   v.GetDuration("window"),
		Fee:      amm.Fee{Numerator: v.GetUint64("fee-numerator"), Denominator: v.GetUint64("fee-denominator")},
		Decimals: make(map[common.Address]uint8),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.In == "" {
		return StatsConfig{}, fmt.Errorf("input path is required")
	}
	if cfg.Window < time.Second {
		return StatsConfig{}, fmt.Errorf("window must be at least 1s")
	}
	if err := cfg.Fee.Validate(); err != nil {
		return StatsConfig{}, err
	}
	for asset, raw := range getStringMap(v, "asset-decimals") {
		addr, err := parseAddress("asset-decimals", asset)
		if err != nil {
			return StatsConfig{}, err
		}
		decimals, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return StatsConfig{}, fmt.Errorf("asset-decimals %s: %w", asset, err)
		}
		cfg.Decimals[addr] = uint8(decimals)
	}
	return cfg, nil
}
