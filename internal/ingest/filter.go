package ingest

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tswap/internal/dex"
	"tswap/internal/model"
)

// ParseAddresses converts hex strings to addresses, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// PoolTopics returns the topic0 hash of every pool event, sorted by event
// name.
func PoolTopics() ([]common.Hash, error) {
	parsed, err := dex.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	names := []string{model.EventLiquidityAdded, model.EventLiquidityRemoved, model.EventRewardPaid, model.EventSwapped}
	topics := make([]common.Hash, 0, len(names))
	for _, name := range names {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("pool abi has no %s event", name)
		}
		topics = append(topics, event.ID)
	}
	return topics, nil
}
