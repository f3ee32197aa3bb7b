package constprod

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

const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// RPCReader reads pair reserves through an Ethereum node. Bound contracts
// are cached per pool address.
type RPCReader struct {
	client  *ethclient.Client
	pairABI abi.ABI
	bound   map[common.Address]*bind.BoundContract
}

// NewRPCReader creates an RPC-backed ReserveReader.
func NewRPCReader(client *ethclient.Client) (*RPCReader, error) {
	parsedABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	return &RPCReader{
		client:  client,
		pairABI: parsedABI,
		bound:   make(map[common.Address]*bind.BoundContract),
	}, nil
}

// PairReserves returns the current reserves of the pool.
func (r *RPCReader) PairReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	contract, ok := r.bound[pool]
	if !ok {
		contract = bind.NewBoundContract(pool, r.pairABI, r.client, r.client, r.client)
		r.bound[pool] = contract
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}
	return reserve0, reserve1, nil
}

var _ ReserveReader = (*RPCReader)(nil)
