package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/model"
)

// V2 pairs charge a fixed 0.3% fee.
const (
	v2FeeNumerator   = 997
	v2FeeDenominator = 1000
)

// Caller performs read-only contract calls. *chain.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// PairState is a V2 pair read at one block, with token metadata.
type PairState struct {
	Snapshot model.PoolSnapshot
	Token0   model.TokenMeta
	Token1   model.TokenMeta
	// Balance0 and Balance1 are the pair's token balances. They can exceed
	// the reserves until the pair syncs.
	Balance0 *big.Int
	Balance1 *big.Int
}

// FetchPairState reads token0/token1, reserves and balances of a V2 pair at
// blockNumber (0 means latest). token0 is reported as the base asset.
func FetchPairState(ctx context.Context, caller Caller, pair common.Address, blockNumber uint64, tokenCache *TokenMetaCache, logger *zap.Logger) (PairState, error) {
	if caller == nil {
		return PairState{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := PairABI()
	if err != nil {
		return PairState{}, fmt.Errorf("parse pair abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	values, err := callMethod(ctx, caller, pair, parsed, "token0", block)
	if err != nil {
		return PairState{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PairState{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pair, parsed, "token1", block)
	if err != nil {
		return PairState{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PairState{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, caller, pair, parsed, "getReserves", block)
	if err != nil {
		return PairState{}, err
	}
	if len(values) != 3 {
		return PairState{}, fmt.Errorf("unexpected getReserves values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return PairState{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return PairState{}, fmt.Errorf("reserve1: %w", err)
	}
	lastUpdate, err := asBigInt(values[2])
	if err != nil {
		return PairState{}, fmt.Errorf("blockTimestampLast: %w", err)
	}

	totalSupply := big.NewInt(0)
	if values, err := callMethod(ctx, caller, pair, parsed, "totalSupply", block); err == nil {
		if supply, err := asBigInt(values[0]); err == nil {
			totalSupply = supply
		}
	} else {
		logger.Debug("totalSupply call failed", zap.String("pair", pair.Hex()), zap.Error(err))
	}

	state := PairState{
		Snapshot: model.PoolSnapshot{
			Address:      pair.Hex(),
			BaseAsset:    token0.Hex(),
			QuoteAsset:   token1.Hex(),
			ReserveBase:  reserve0.String(),
			ReserveQuote: reserve1.String(),
			TotalShares:  totalSupply.String(),
			FeeNumerator: v2FeeNumerator,
			FeeDenom:     v2FeeDenominator,
			BlockNumber:  blockNumber,
			Timestamp:    lastUpdate.Uint64(),
		},
	}

	state.Token0 = cachedTokenMeta(ctx, caller, token0, tokenCache, logger)
	state.Token1 = cachedTokenMeta(ctx, caller, token1, tokenCache, logger)

	if bal, err := FetchTokenBalance(ctx, caller, token0, pair, block); err == nil {
		state.Balance0 = bal
	} else {
		logger.Debug("token0 balance call failed", zap.String("pair", pair.Hex()), zap.Error(err))
	}
	if bal, err := FetchTokenBalance(ctx, caller, token1, pair, block); err == nil {
		state.Balance1 = bal
	} else {
		logger.Debug("token1 balance call failed", zap.String("pair", pair.Hex()), zap.Error(err))
	}

	return state, nil
}

func cachedTokenMeta(ctx context.Context, caller Caller, token common.Address, cache *TokenMetaCache, logger *zap.Logger) model.TokenMeta {
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta
		}
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	if cache != nil {
		cache.Set(token, meta)
	}
	return meta
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// FetchTokenBalance returns the ERC20 balance of account at block (nil means
// latest).
func FetchTokenBalance(ctx context.Context, caller Caller, token, account common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", block, account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
