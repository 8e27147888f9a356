package model

// PoolSnapshot is a point-in-time view of an exchange pool.
type PoolSnapshot struct {
	Address      string `json:"address"`
	BaseAsset    string `json:"base_asset"`
	QuoteAsset   string `json:"quote_asset"`
	ReserveBase  string `json:"reserve_base"`
	ReserveQuote string `json:"reserve_quote"`
	TotalShares  string `json:"total_shares"`
	FeeNumerator uint64 `json:"fee_numerator"`
	FeeDenom     uint64 `json:"fee_denominator"`
	SwapCount    uint64 `json:"swap_count"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	Timestamp    uint64 `json:"timestamp"`
}
