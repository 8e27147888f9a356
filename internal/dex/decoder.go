package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tswap/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 aliases, keyed by topic0, valued by event name.
	Topic0Map map[string]string
}

// PoolDecoder decodes exchange pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool event decoder.
func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{
		poolABI:     parsed,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	args, err := d.unpack(d.poolABI.Events[name], log)
	if err != nil {
		return nil, err
	}

	var decoded model.PoolEvent
	switch name {
	case model.EventLiquidityAdded:
		decoded = model.LiquidityAdded{
			Provider:    args.address("provider"),
			QuoteAmount: args.amount("quoteAmount"),
			BaseAmount:  args.amount("baseAmount"),
		}
	case model.EventLiquidityRemoved:
		decoded = model.LiquidityRemoved{
			Provider:    args.address("provider"),
			QuoteAmount: args.amount("quoteAmount"),
			BaseAmount:  args.amount("baseAmount"),
		}
	case model.EventSwapped:
		decoded = model.Swapped{
			Trader:    args.address("trader"),
			AssetIn:   args.address("assetIn"),
			AmountIn:  args.amount("amountIn"),
			AssetOut:  args.address("assetOut"),
			AmountOut: args.amount("amountOut"),
		}
	case model.EventRewardPaid:
		decoded = model.RewardPaid{
			Trader: args.address("trader"),
			Asset:  args.address("asset"),
			Amount: args.amount("amount"),
		}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if args.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, args.err)
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func (d *PoolDecoder) unpack(event abi.Event, log model.LogRecord) (*argMap, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return &argMap{values: values}, nil
}

// argMap reads typed values out of an unpacked argument map, keeping the
// first conversion error.
type argMap struct {
	values map[string]interface{}
	err    error
}

func (a *argMap) address(name string) string {
	v, err := asAddress(a.values[name])
	if err != nil {
		a.fail(name, err)
		return ""
	}
	return v.Hex()
}

func (a *argMap) amount(name string) string {
	v, err := asBigInt(a.values[name])
	if err != nil {
		a.fail(name, err)
		return ""
	}
	return v.String()
}

func (a *argMap) fail(name string, err error) {
	if a.err == nil {
		a.err = fmt.Errorf("%s: %w", name, err)
	}
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "liquidityadded", "liquidity_added":
		return model.EventLiquidityAdded
	case "liquidityremoved", "liquidity_removed":
		return model.EventLiquidityRemoved
	case "swapped", "swap":
		return model.EventSwapped
	case "rewardpaid", "reward_paid":
		return model.EventRewardPaid
	default:
		return ""
	}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
