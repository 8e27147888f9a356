package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Pool        PoolSettings
	Script      string
	Out         string
	PGDSN       string
	ChainID     uint64
	StartBlock  uint64
	StartTime   uint64
	StatsWindow time.Duration
	LogLevel    string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, poolDefaults(map[string]interface{}{
		"out":          "./data/pool_logs.jsonl",
		"chain-id":     uint64(31337),
		"start-block":  uint64(1),
		"stats-window": time.Hour,
	}))
	if err != nil {
		return SimulateConfig{}, err
	}

	startTime, err := ParseTimestamp(v.GetString("start-time"))
	if err != nil {
		return SimulateConfig{}, fmt.Errorf("start-time: %w", err)
	}
	if startTime == 0 {
		startTime = uint64(time.Now().Unix())
	}

	cfg := SimulateConfig{
		Pool:        readPool(v),
		Script:      v.GetString("script"),
		Out:         v.GetString("out"),
		PGDSN:       v.GetString("pg-dsn"),
		ChainID:     v.GetUint64("chain-id"),
		StartBlock:  v.GetUint64("start-block"),
		StartTime:   startTime,
		StatsWindow: v.GetDuration("stats-window"),
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.Script == "" {
		return SimulateConfig{}, fmt.Errorf("script path is required")
	}
	if cfg.StatsWindow < time.Second {
		return SimulateConfig{}, fmt.Errorf("stats window must be at least 1s")
	}
	return cfg, nil
}
