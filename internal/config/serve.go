package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Pool         PoolSettings
	Listen       string
	SeedProvider string
	SeedQuote    string
	SeedBase     string
	AllowMint    bool
	StatsWindow  time.Duration
	ClockRPC     string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, poolDefaults(map[string]interface{}{
		"listen":        ":8080",
		"seed-provider": "0x0000000000000000000000000000000000005000",
		"seed-quote":    "",
		"seed-base":     "",
		"allow-mint":    false,
		"stats-window":  time.Hour,
		"clock-rpc":     "",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	}))
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Pool:         readPool(v),
		Listen:       v.GetString("listen"),
		SeedProvider: v.GetString("seed-provider"),
		SeedQuote:    v.GetString("seed-quote"),
		SeedBase:     v.GetString("seed-base"),
		AllowMint:    v.GetBool("allow-mint"),
		StatsWindow:  v.GetDuration("stats-window"),
		ClockRPC:     v.GetString("clock-rpc"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Listen == "" {
		return ServeConfig{}, fmt.Errorf("listen address is required")
	}
	if cfg.StatsWindow < time.Second {
		return ServeConfig{}, fmt.Errorf("stats window must be at least 1s")
	}
	for key, amount := range map[string]string{"seed-quote": cfg.SeedQuote, "seed-base": cfg.SeedBase} {
		if _, err := ParseAmount(amount); err != nil {
			return ServeConfig{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	if (cfg.SeedQuote == "") != (cfg.SeedBase == "") {
		return ServeConfig{}, fmt.Errorf("seed-quote and seed-base must be set together")
	}
	if cfg.SeedQuote != "" {
		if _, err := parseAddress("seed-provider", cfg.SeedProvider); err != nil {
			return ServeConfig{}, err
		}
	}
	return cfg, nil
}
