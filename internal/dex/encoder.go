package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tswap/internal/model"
)

// LogMeta positions an encoded event in a (possibly synthetic) chain.
type LogMeta struct {
	ChainID     uint64
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint64
	Address     common.Address
	Timestamp   uint64
}

// Encoder turns pool events into EVM-style log records.
type Encoder struct {
	poolABI abi.ABI
}

// NewEncoder builds an encoder over the pool ABI.
func NewEncoder() (*Encoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Encoder{poolABI: parsed}, nil
}

// Encode packs event the way a contract would log it: topic0 is the event
// ID, indexed arguments follow as topics and the rest is ABI-encoded data.
func (e *Encoder) Encode(event model.PoolEvent, meta LogMeta) (model.LogRecord, error) {
	abiEvent, ok := e.poolABI.Events[event.EventName()]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unsupported event name: %s", event.EventName())
	}
	args, err := eventArgs(event)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("%s: %w", event.EventName(), err)
	}

	topics := []string{abiEvent.ID.Hex()}
	var values []interface{}
	for _, input := range abiEvent.Inputs {
		value, ok := args[input.Name]
		if !ok {
			return model.LogRecord{}, fmt.Errorf("%s: missing argument %s", event.EventName(), input.Name)
		}
		if !input.Indexed {
			values = append(values, value)
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return model.LogRecord{}, fmt.Errorf("%s: topic %s: %w", event.EventName(), input.Name, err)
		}
		topics = append(topics, hashes[0][0].Hex())
	}

	data, err := abiEvent.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", event.EventName(), err)
	}

	return model.LogRecord{
		ChainID:     meta.ChainID,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash.Hex(),
		LogIndex:    meta.LogIndex,
		Address:     meta.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   meta.Timestamp,
	}, nil
}

// eventArgs maps an event to its ABI argument values by name.
func eventArgs(event model.PoolEvent) (map[string]interface{}, error) {
	var (
		args = make(map[string]interface{})
		errs []error
	)
	addr := func(name, value string) {
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", name, value))
			return
		}
		args[name] = common.HexToAddress(value)
	}
	amount := func(name, value string) {
		v, ok := new(big.Int).SetString(value, 10)
		if !ok || v.Sign() < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid amount %q", name, value))
			return
		}
		args[name] = v
	}

	switch ev := event.(type) {
	case model.LiquidityAdded:
		addr("provider", ev.Provider)
		amount("quoteAmount", ev.QuoteAmount)
		amount("baseAmount", ev.BaseAmount)
	case model.LiquidityRemoved:
		addr("provider", ev.Provider)
		amount("quoteAmount", ev.QuoteAmount)
		amount("baseAmount", ev.BaseAmount)
	case model.Swapped:
		addr("trader", ev.Trader)
		addr("assetIn", ev.AssetIn)
		amount("amountIn", ev.AmountIn)
		addr("assetOut", ev.AssetOut)
		amount("amountOut", ev.AmountOut)
	case model.RewardPaid:
		addr("trader", ev.Trader)
		addr("asset", ev.Asset)
		amount("amount", ev.Amount)
	default:
		return nil, fmt.Errorf("unsupported event type %T", event)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return args, nil
}
