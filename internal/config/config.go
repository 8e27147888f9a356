// Package config resolves command settings from flags, TSWAP_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tswap/internal/amm"
	"tswap/internal/pool"
)

const envPrefix = "TSWAP"

// PoolSettings describe the pool a command runs against.
type PoolSettings struct {
	Name            string
	Account         string
	Base            string
	Quote           string
	FeeNumerator    uint64
	FeeDenominator  uint64
	MinQuoteDeposit string
	Rewards         RewardsSettings
}

// RewardsSettings describe the optional rewards reserve.
type RewardsSettings struct {
	Enabled bool
	Account string
	Asset   string
	Every   uint64
	Bonus   string
}

// PoolConfig converts the settings into a pool.Config.
func (s PoolSettings) PoolConfig() (pool.Config, error) {
	account, err := parseAddress("pool-account", s.Account)
	if err != nil {
		return pool.Config{}, err
	}
	base, err := parseAddress("base", s.Base)
	if err != nil {
		return pool.Config{}, err
	}
	quote, err := parseAddress("quote", s.Quote)
	if err != nil {
		return pool.Config{}, err
	}
	minQuote, err := ParseAmount(s.MinQuoteDeposit)
	if err != nil {
		return pool.Config{}, fmt.Errorf("min-quote-deposit: %w", err)
	}

	cfg := pool.Config{
		Name:            s.Name,
		Account:         account,
		BaseAsset:       base,
		QuoteAsset:      quote,
		Fee:             amm.Fee{Numerator: s.FeeNumerator, Denominator: s.FeeDenominator},
		MinQuoteDeposit: minQuote,
	}
	if !s.Rewards.Enabled {
		return cfg, nil
	}

	rewardsAccount, err := parseAddress("rewards-account", s.Rewards.Account)
	if err != nil {
		return pool.Config{}, err
	}
	rewardsAsset := base
	if s.Rewards.Asset != "" {
		if rewardsAsset, err = parseAddress("rewards-asset", s.Rewards.Asset); err != nil {
			return pool.Config{}, err
		}
	}
	bonus, err := ParseAmount(s.Rewards.Bonus)
	if err != nil {
		return pool.Config{}, fmt.Errorf("rewards-bonus: %w", err)
	}
	cfg.Rewards = pool.RewardsConfig{
		Enabled: true,
		Account: rewardsAccount,
		Asset:   rewardsAsset,
		Every:   s.Rewards.Every,
		Bonus:   bonus,
	}
	return cfg, nil
}

// ParseAmount parses a base-10 integer. An empty string yields nil.
func ParseAmount(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	return v, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func poolDefaults(defaults map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"pool-name":         "tswap",
		"pool-account":      "0x0000000000000000000000000000000000001000",
		"base":              "0x0000000000000000000000000000000000002000",
		"quote":             "0x0000000000000000000000000000000000003000",
		"fee-numerator":     amm.DefaultFee.Numerator,
		"fee-denominator":   amm.DefaultFee.Denominator,
		"rewards-enabled":   false,
		"rewards-account":   "0x0000000000000000000000000000000000004000",
		"rewards-every":     uint64(10),
		"rewards-bonus":     "0",
		"min-quote-deposit": "",
	}
	for key, value := range defaults {
		out[key] = value
	}
	return out
}

func readPool(v *viper.Viper) PoolSettings {
	return PoolSettings{
		Name:            v.GetString("pool-name"),
		Account:         v.GetString("pool-account"),
		Base:            v.GetString("base"),
		Quote:           v.GetString("quote"),
		FeeNumerator:    v.GetUint64("fee-numerator"),
		FeeDenominator:  v.GetUint64("fee-denominator"),
		MinQuoteDeposit: v.GetString("min-quote-deposit"),
		Rewards: RewardsSettings{
			Enabled: v.GetBool("rewards-enabled"),
			Account: v.GetString("rewards-account"),
			Asset:   v.GetString("rewards-asset"),
			Every:   v.GetUint64("rewards-every"),
			Bonus:   v.GetString("rewards-bonus"),
		},
	}
}

func parseAddress(key, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, input)
	}
	return common.HexToAddress(input), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
