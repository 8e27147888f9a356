package stats

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const ratioScale = 18

const yearSeconds = 365 * 24 * 60 * 60

// AssetSummary is the formatted per-asset part of a Summary.
type AssetSummary struct {
	Asset   string  `json:"asset"`
	Symbol  string  `json:"symbol,omitempty"`
	Volume  string  `json:"volume"`
	Fees    string  `json:"fees"`
	FeeRate *string `json:"fee_rate,omitempty"`
	APR     *string `json:"apr,omitempty"`
}

// Summary is a Window rendered for humans.
type Summary struct {
	WindowStart uint64         `json:"window_start"`
	WindowEnd   uint64         `json:"window_end"`
	SwapCount   uint64         `json:"swap_count"`
	Deposits    uint64         `json:"deposits"`
	Withdrawals uint64         `json:"withdrawals"`
	Rewards     uint64         `json:"rewards"`
	Assets      []AssetSummary `json:"assets"`
}

// AssetInfo describes how to render one asset. Reserve is optional and
// enables the fee rate and APR columns.
type AssetInfo struct {
	Symbol   string
	Decimals uint8
	Reserve  *big.Int
}

// Summarize formats w. Assets missing from info are rendered in raw units.
func Summarize(w Window, info map[common.Address]AssetInfo) Summary {
	out := Summary{
		WindowStart: w.Start,
		WindowEnd:   w.End,
		SwapCount:   w.SwapCount,
		Deposits:    w.Deposits,
		Withdrawals: w.Withdrawals,
		Rewards:     w.Rewards,
	}

	assets := make(map[common.Address]struct{}, len(w.Volume))
	for asset := range w.Volume {
		assets[asset] = struct{}{}
	}
	for asset := range info {
		assets[asset] = struct{}{}
	}
	keys := make([]common.Address, 0, len(assets))
	for asset := range assets {
		keys = append(keys, asset)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hex() < keys[j].Hex() })

	span := w.End - w.Start
	for _, asset := range keys {
		meta := info[asset]
		fees := w.Fees[asset]
		row := AssetSummary{
			Asset:  asset.Hex(),
			Symbol: meta.Symbol,
			Volume: FormatAmount(w.Volume[asset], meta.Decimals),
			Fees:   FormatAmount(fees, meta.Decimals),
		}
		if rate, ok := feeRate(fees, meta.Reserve); ok {
			text := rate.StringFixed(ratioScale)
			row.FeeRate = &text
			if apr, ok := annualize(rate, span); ok {
				aprText := apr.StringFixed(ratioScale)
				row.APR = &aprText
			}
		}
		out.Assets = append(out.Assets, row)
	}
	return out
}

// FormatAmount renders value with the given number of decimals.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		value = new(big.Int)
	}
	d := decimal.NewFromBigInt(value, -int32(decimals))
	if decimals == 0 {
		return d.String()
	}
	return d.StringFixed(int32(decimals))
}

func feeRate(fee, reserve *big.Int) (decimal.Decimal, bool) {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(fee, 0).DivRound(decimal.NewFromBigInt(reserve, 0), ratioScale), true
}

func annualize(rate decimal.Decimal, windowSeconds uint64) (decimal.Decimal, bool) {
	if windowSeconds == 0 {
		return decimal.Zero, false
	}
	apr := rate.Mul(decimal.NewFromInt(yearSeconds))
	return apr.DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale), true
}
