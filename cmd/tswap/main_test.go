package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/amm"
	"tswap/internal/dex"
	"tswap/internal/model"
	"tswap/internal/stats"
)

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTrader = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testBase   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testQuote  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type memWriter struct {
	values []interface{}
}

func (w *memWriter) Write(value interface{}) error {
	w.values = append(w.values, value)
	return nil
}

func TestDecodeThenStats(t *testing.T) {
	encoder, err := dex.NewEncoder()
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	swap := model.Swapped{
		Trader:    testTrader.Hex(),
		AssetIn:   testBase.Hex(),
		AmountIn:  "3000",
		AssetOut:  testQuote.Hex(),
		AmountOut: "2900",
	}
	record, err := encoder.Encode(swap, dex.LogMeta{
		ChainID:     31337,
		BlockNumber: 7,
		TxHash:      common.HexToHash("0x01"),
		Address:     testPool,
		Timestamp:   1700000000,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var input bytes.Buffer
	line, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	input.Write(line)
	input.WriteString("\n\nnot json\n")
	input.WriteString(`{"chain_id":1,"block_number":9,"address":"0x1111111111111111111111111111111111111111","topics":[]}` + "\n")
	input.WriteString(`{"chain_id":1,"block_number":9,"address":"0x1111111111111111111111111111111111111111","topics":["0x00"]}` + "\n")

	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	out := &memWriter{}
	errs := &memWriter{}
	counts, err := decodeLogs(context.Background(), &input, decoder, out, errs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := decodeCounts{Total: 4, Decoded: 1, Skipped: 1, Failed: 2}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
	if len(errs.values) != 2 {
		t.Fatalf("expected 2 decode errors, got %d", len(errs.values))
	}
	garbled, ok := errs.values[0].(model.DecodeError)
	if !ok || garbled.Record != 2 || garbled.ChainID != 0 {
		t.Fatalf("unexpected decode error: %+v", errs.values[0])
	}
	missing, ok := errs.values[1].(model.DecodeError)
	if !ok || missing.Record != 3 || missing.ChainID != 1 || missing.BlockNumber != 9 || missing.Error != "missing topic0" {
		t.Fatalf("unexpected decode error: %+v", errs.values[1])
	}
	if missing.Pool != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected pool %q", missing.Pool)
	}

	var typed bytes.Buffer
	for _, value := range out.values {
		line, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal typed: %v", err)
		}
		typed.Write(line)
		typed.WriteByte('\n')
	}
	typed.WriteString(`{"event_name":"Unknown","decoded":{}}` + "\n")

	collector, err := stats.NewCollector(300, amm.DefaultFee, nil)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	skipped, err := collectRecords(&typed, collector, zap.NewNop())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	totals := collector.Totals()
	if totals.SwapCount != 1 {
		t.Fatalf("swap count = %d, want 1", totals.SwapCount)
	}
	if got := totals.Volume[testBase].String(); got != "3000" {
		t.Fatalf("volume = %s, want 3000", got)
	}
	if got := totals.Fees[testBase].String(); got != "9" {
		t.Fatalf("fees = %s, want 9", got)
	}
	if totals.FirstBlock != 7 || totals.LastBlock != 7 {
		t.Fatalf("blocks = %d..%d, want 7..7", totals.FirstBlock, totals.LastBlock)
	}
}

func TestQuoteBothDirections(t *testing.T) {
	reserveIn, reserveOut := big.NewInt(100000), big.NewInt(200000)

	out, err := quote(amm.DefaultFee, quoteDirectionOut, big.NewInt(1000), reserveIn, reserveOut, 2)
	if err != nil {
		t.Fatalf("quote out: %v", err)
	}
	if out.AmountOut != "1974" || out.AmountOutDisplay != "19.74" || out.AmountInDisplay != "10.00" {
		t.Fatalf("unexpected exact-input quote: %+v", out)
	}
	if out.SpotPrice != "1.99" {
		t.Fatalf("spot price = %s, want 1.99", out.SpotPrice)
	}

	in, err := quote(amm.DefaultFee, quoteDirectionIn, big.NewInt(1974), reserveIn, reserveOut, 2)
	if err != nil {
		t.Fatalf("quote in: %v", err)
	}
	if in.AmountIn != "1000" {
		t.Fatalf("amount in = %s, want 1000", in.AmountIn)
	}

	if _, err := quote(amm.DefaultFee, quoteDirectionIn, big.NewInt(200000), reserveIn, reserveOut, 2); err == nil {
		t.Fatalf("expected error when draining the output reserve")
	}
	if _, err := quote(amm.DefaultFee, "sideways", big.NewInt(1), reserveIn, reserveOut, 2); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestDescribePair(t *testing.T) {
	state := dex.PairState{
		Snapshot: model.PoolSnapshot{
			Address:      testPool.Hex(),
			BaseAsset:    testBase.Hex(),
			QuoteAsset:   testQuote.Hex(),
			ReserveBase:  "100000",
			ReserveQuote: "200000",
			FeeNumerator: 997,
			FeeDenom:     1000,
		},
		Token0:   model.TokenMeta{Address: testBase.Hex(), Symbol: "AAA", Decimals: 2},
		Token1:   model.TokenMeta{Address: testQuote.Hex(), Symbol: "BBB", Decimals: 2},
		Balance0: big.NewInt(100500),
	}

	out, err := describePair(state, big.NewInt(1000))
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if out.Token0.Reserve != "1000.00" || out.Token1.Reserve != "2000.00" {
		t.Fatalf("reserves = %s/%s", out.Token0.Reserve, out.Token1.Reserve)
	}
	if out.Token0.Balance != "1005.00" || out.Token1.Balance != "" {
		t.Fatalf("balances = %q/%q", out.Token0.Balance, out.Token1.Balance)
	}
	if out.Price0In1 != "1.99" || out.Price1In0 != "0.49" {
		t.Fatalf("prices = %s/%s", out.Price0In1, out.Price1In0)
	}
	if out.Quote == nil || out.Quote.AmountOut != "19.74" {
		t.Fatalf("quote = %+v", out.Quote)
	}

	state.Snapshot.ReserveQuote = "0"
	empty, err := describePair(state, nil)
	if err != nil {
		t.Fatalf("describe empty: %v", err)
	}
	if empty.Price0In1 != "" || empty.Quote != nil {
		t.Fatalf("expected no prices for an empty pair: %+v", empty)
	}

	state.Snapshot.ReserveBase = "x"
	if _, err := describePair(state, nil); err == nil || !strings.Contains(err.Error(), "invalid reserves") {
		t.Fatalf("expected invalid reserves error, got %v", err)
	}
}
