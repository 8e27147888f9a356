package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadSimulateDefaults(t *testing.T) {
	chdirTemp(t)
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("script", "", "")
	flags.String("start-time", "", "")
	if err := flags.Parse([]string{"--script", "ops.jsonl", "--start-time", "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadSimulate("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Script != "ops.jsonl" || cfg.ChainID != 31337 || cfg.StartBlock != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.StartTime != 1704067200 {
		t.Fatalf("unexpected start time: %d", cfg.StartTime)
	}
	if cfg.StatsWindow != time.Hour || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	poolCfg, err := cfg.Pool.PoolConfig()
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if poolCfg.Fee.Numerator != 997 || poolCfg.Fee.Denominator != 1000 {
		t.Fatalf("unexpected fee: %v", poolCfg.Fee)
	}
	if poolCfg.MinQuoteDeposit != nil || poolCfg.Rewards.Enabled {
		t.Fatalf("unexpected optional settings: %+v", poolCfg)
	}
}

func TestLoadSimulateRequiresScript(t *testing.T) {
	chdirTemp(t)
	if _, err := LoadSimulate("", nil); err == nil {
		t.Fatalf("expected error without script")
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "tswap.yaml")
	body := "script: from-file.jsonl\nfee-numerator: 990\nrewards-enabled: true\nrewards-bonus: \"5\"\nrewards-every: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TSWAP_SCRIPT", "from-env.jsonl")
	t.Setenv("TSWAP_MIN_QUOTE_DEPOSIT", "1000")

	cfg, err := LoadSimulate(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Script != "from-env.jsonl" {
		t.Fatalf("env should win over file: %s", cfg.Script)
	}

	poolCfg, err := cfg.Pool.PoolConfig()
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if poolCfg.Fee.Numerator != 990 {
		t.Fatalf("fee numerator from file not applied: %d", poolCfg.Fee.Numerator)
	}
	if poolCfg.MinQuoteDeposit == nil || poolCfg.MinQuoteDeposit.String() != "1000" {
		t.Fatalf("min quote deposit from env not applied: %v", poolCfg.MinQuoteDeposit)
	}
	rewards := poolCfg.Rewards
	if !rewards.Enabled || rewards.Every != 3 || rewards.Bonus.String() != "5" {
		t.Fatalf("unexpected rewards: %+v", rewards)
	}
	if rewards.Asset != poolCfg.BaseAsset {
		t.Fatalf("rewards asset should default to base: %s", rewards.Asset.Hex())
	}
	if rewards.Account != common.HexToAddress("0x0000000000000000000000000000000000004000") {
		t.Fatalf("unexpected rewards account: %s", rewards.Account.Hex())
	}
}

func TestPoolConfigRejectsBadValues(t *testing.T) {
	base := PoolSettings{
		Account:        "0x0000000000000000000000000000000000001000",
		Base:           "0x0000000000000000000000000000000000002000",
		Quote:          "0x0000000000000000000000000000000000003000",
		FeeNumerator:   997,
		FeeDenominator: 1000,
	}
	if _, err := base.PoolConfig(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	bad := base
	bad.Quote = "0xnothex"
	if _, err := bad.PoolConfig(); err == nil {
		t.Fatalf("expected error for bad quote address")
	}
	bad = base
	bad.MinQuoteDeposit = "1.5"
	if _, err := bad.PoolConfig(); err == nil {
		t.Fatalf("expected error for fractional amount")
	}
	bad = base
	bad.Rewards = RewardsSettings{Enabled: true, Account: "nope"}
	if _, err := bad.PoolConfig(); err == nil {
		t.Fatalf("expected error for bad rewards account")
	}
}

func TestLoadServeSeedValidation(t *testing.T) {
	chdirTemp(t)
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("seed-quote", "", "")
	if err := flags.Parse([]string{"--seed-quote", "100"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := LoadServe("", flags); err == nil {
		t.Fatalf("expected error when only seed-quote is set")
	}

	flags = pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("seed-quote", "", "")
	flags.String("seed-base", "", "")
	if err := flags.Parse([]string{"--seed-quote", "100", "--seed-base", "50"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := LoadServe("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.SeedQuote != "100" || cfg.SeedBase != "50" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadIngestParsesPools(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TSWAP_RPC", "http://localhost:8545")
	t.Setenv("TSWAP_POOL", "0x1111111111111111111111111111111111111111, 0x2222222222222222222222222222222222222222")

	cfg, err := LoadIngest("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Pools) != 2 || cfg.BatchSize != 2000 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadDecodeTopicMap(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TSWAP_IN", "logs.jsonl")
	t.Setenv("TSWAP_TOPIC0_MAP", "0xabc=Swap, bad, 0xdef=Mint")

	cfg, err := LoadDecode("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Topic0Map) != 2 || cfg.Topic0Map["0xabc"] != "Swap" || cfg.Topic0Map["0xdef"] != "Mint" {
		t.Fatalf("unexpected topic map: %v", cfg.Topic0Map)
	}
}

func TestLoadStatsDecimals(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TSWAP_IN", "typed.jsonl")
	t.Setenv("TSWAP_ASSET_DECIMALS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa=6")

	cfg, err := LoadStats("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window != 5*time.Minute || cfg.Fee.Numerator != 997 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	asset := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if len(cfg.Decimals) != 1 || cfg.Decimals[asset] != 6 {
		t.Fatalf("unexpected decimals: %v", cfg.Decimals)
	}

	t.Setenv("TSWAP_ASSET_DECIMALS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa=300")
	if _, err := LoadStats("", nil); err == nil {
		t.Fatalf("expected error for decimals above 255")
	}
}

func TestLoadQuoteRejectsBadFee(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TSWAP_FEE_NUMERATOR", "1001")
	if _, err := LoadQuote("", nil); err == nil {
		t.Fatalf("expected error for numerator above denominator")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1700000000,
		"2024-01-01T00:00:00Z": 1704067200,
	}
	for input, want := range cases {
		got, err := ParseTimestamp(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q = %d, want %d", input, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for bad timestamp")
	}
}
