package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// SnapshotConfig holds configuration for the snapshot command.
type SnapshotConfig struct {
	RPCURL       string
	Pair         string
	Block        uint64
	AmountIn     string
	PGDSN        string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadSnapshot merges config file, environment variables, and flags into SnapshotConfig.
func LoadSnapshot(cfgFile string, flags *pflag.FlagSet) (SnapshotConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return SnapshotConfig{}, err
	}

	cfg := SnapshotConfig{
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		Block:        v.GetUint64("block"),
		AmountIn:     v.GetString("amount-in"),
		PGDSN:        v.GetString("pg-dsn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return SnapshotConfig{}, fmt.Errorf("rpc url is required")
	}
	if _, err := parseAddress("pair", cfg.Pair); err != nil {
		return SnapshotConfig{}, err
	}
	if _, err := ParseAmount(cfg.AmountIn); err != nil {
		return SnapshotConfig{}, fmt.Errorf("amount-in: %w", err)
	}
	return cfg, nil
}
