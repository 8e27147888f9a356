package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// IngestConfig holds configuration for the ingest command.
type IngestConfig struct {
	RPCURL       string
	FromBlock    uint64
	ToBlock      uint64
	Pools        []string
	BatchSize    uint64
	Out          string
	PGDSN        string
	Checkpoint   string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadIngest merges config file, environment variables, and flags into IngestConfig.
func LoadIngest(cfgFile string, flags *pflag.FlagSet) (IngestConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"batch-size":    uint64(2000),
		"out":           "./data/logs.jsonl",
		"checkpoint":    "./data/checkpoint.json",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return IngestConfig{}, err
	}

	cfg := IngestConfig{
		RPCURL:       v.GetString("rpc"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		Pools:        getStringSlice(v, "pool"),
		BatchSize:    v.GetUint64("batch-size"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		Checkpoint:   v.GetString("checkpoint"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return IngestConfig{}, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Pools) == 0 {
		return IngestConfig{}, fmt.Errorf("at least one pool address is required")
	}
	return cfg, nil
}
