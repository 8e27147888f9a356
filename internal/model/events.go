package model

// Event names as they appear in typed event records and the pool ABI.
const (
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
	EventSwapped          = "Swapped"
	EventRewardPaid       = "RewardPaid"
)

// PoolEvent is a notification emitted by an exchange pool after an
// operation completes.
type PoolEvent interface {
	EventName() string
}

// LiquidityAdded is emitted by a deposit. Amounts are base-10 strings.
type LiquidityAdded struct {
	Provider    string `json:"provider"`
	QuoteAmount string `json:"quote_amount"`
	BaseAmount  string `json:"base_amount"`
}

// LiquidityRemoved is emitted by a withdrawal.
type LiquidityRemoved struct {
	Provider    string `json:"provider"`
	QuoteAmount string `json:"quote_amount"`
	BaseAmount  string `json:"base_amount"`
}

// Swapped is emitted by every executed swap.
type Swapped struct {
	Trader    string `json:"trader"`
	AssetIn   string `json:"asset_in"`
	AmountIn  string `json:"amount_in"`
	AssetOut  string `json:"asset_out"`
	AmountOut string `json:"amount_out"`
}

// RewardPaid is emitted when the rewards reserve pays a trader.
type RewardPaid struct {
	Trader string `json:"trader"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (LiquidityAdded) EventName() string   { return EventLiquidityAdded }
func (LiquidityRemoved) EventName() string { return EventLiquidityRemoved }
func (Swapped) EventName() string          { return EventSwapped }
func (RewardPaid) EventName() string       { return EventRewardPaid }
