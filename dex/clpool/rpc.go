package clpool

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const poolABIJson = `[{
	"inputs": [],
	"name": "slot0",
	"outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tick", "type": "int24"},
		{"name": "observationIndex", "type": "uint16"},
		{"name": "observationCardinality", "type": "uint16"},
		{"name": "observationCardinalityNext", "type": "uint16"},
		{"name": "feeProtocol", "type": "uint8"},
		{"name": "unlocked", "type": "bool"}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "liquidity",
	"outputs": [{"name": "", "type": "uint128"}],
	"stateMutability": "view",
	"type": "function"
}]`

// RPCReader reads slot0 and active liquidity through an Ethereum node.
type RPCReader struct {
	client  *ethclient.Client
	poolABI abi.ABI
	bound   map[common.Address]*bind.BoundContract
}

// NewRPCReader creates an RPC-backed StateReader.
func NewRPCReader(client *ethclient.Client) (*RPCReader, error) {
	parsedABI, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return &RPCReader{
		client:  client,
		poolABI: parsedABI,
		bound:   make(map[common.Address]*bind.BoundContract),
	}, nil
}

// Slot0 returns the current sqrt price and active liquidity of the pool.
func (r *RPCReader) Slot0(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	contract, ok := r.bound[pool]
	if !ok {
		contract = bind.NewBoundContract(pool, r.poolABI, r.client, r.client, r.client)
		r.bound[pool] = contract
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "slot0"); err != nil {
		return nil, nil, fmt.Errorf("failed to get slot0: %w", err)
	}
	sqrtPriceX96, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse sqrtPriceX96")
	}

	out = out[:0]
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "liquidity"); err != nil {
		return nil, nil, fmt.Errorf("failed to get liquidity: %w", err)
	}
	liquidity, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse liquidity")
	}
	return sqrtPriceX96, liquidity, nil
}

var _ StateReader = (*RPCReader)(nil)
