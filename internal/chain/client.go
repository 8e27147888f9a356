// Package chain holds the read-only RPC access the pool tooling needs:
// pair contract calls for snapshots, Sync/Swap log ranges for ingestion,
// and block headers for timestamps and the chain-head clock.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// maxCachedTimestamps bounds the block timestamp cache. Ingest walks blocks
// in order, so dropping the whole cache when it fills costs one header read
// per block at most.
const maxCachedTimestamps = 4096

var _ HeaderReader = (*Client)(nil)

// Client is a go-ethereum RPC connection to the chain a pool lives on.
type Client struct {
	eth *ethclient.Client

	mu         sync.Mutex
	timestamps map[uint64]uint64
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{eth: eth, timestamps: make(map[uint64]uint64)}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// HeaderByNumber reads a header; nil number means the latest block. The
// header's timestamp is remembered for BlockTimestamp.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	header, err := c.eth.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	c.rememberTimestamp(header.Number.Uint64(), header.Time)
	return header, nil
}

// BlockTimestamp returns the unix time of block number.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	ts, ok := c.timestamps[number]
	c.mu.Unlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	return header.Time, nil
}

func (c *Client) rememberTimestamp(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timestamps) >= maxCachedTimestamps {
		c.timestamps = make(map[uint64]uint64)
	}
	c.timestamps[number] = ts
}

// FilterLogs returns the logs that pools emitted in [fromBlock, toBlock]
// whose first topic is one of topic0. An empty topic0 matches any event.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, pools []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, poolLogQuery(fromBlock, toBlock, pools, topic0))
}

func poolLogQuery(fromBlock, toBlock uint64, pools []common.Address, topic0 []common.Hash) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: pools,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return query
}

// CallContract runs an eth_call against a pair contract at block; nil block
// means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, block)
}
