// Package constprod adapts constant-product (x*y=k) pools to the dex.Venue
// interface.
package constprod

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
)

// ReserveReader reads the live reserves of a constant-product pool.
// Implemented by the in-memory ledger and by the RPC-backed reader.
type ReserveReader interface {
	PairReserves(ctx context.Context, pool common.Address) (reserve0, reserve1 *big.Int, err error)
}

// Venue is a single constant-product pool trading one token pair.
type Venue struct {
	name   string
	pool   common.Address
	token0 common.Address
	token1 common.Address
	feeBps uint32
	reader ReserveReader
}

// New creates a constant-product venue. token0/token1 must be in the
// pool's canonical order.
func New(name string, pool, token0, token1 common.Address, feeBps uint32, reader ReserveReader) *Venue {
	return &Venue{
		name:   name,
		pool:   pool,
		token0: token0,
		token1: token1,
		feeBps: feeBps,
		reader: reader,
	}
}

func (v *Venue) Key() string             { return v.name }
func (v *Venue) Address() common.Address { return v.pool }

func (v *Venue) Supports(tokenA, tokenB common.Address) bool {
	return (tokenA == v.token0 && tokenB == v.token1) ||
		(tokenA == v.token1 && tokenB == v.token0)
}

// Reserves returns a fresh reserve snapshot oriented for tokenIn -> tokenOut.
func (v *Venue) Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*dex.Reserves, error) {
	if !v.Supports(tokenIn, tokenOut) || tokenIn == tokenOut {
		return nil, fmt.Errorf("%s: unsupported pair %s/%s", v.name, tokenIn.Hex(), tokenOut.Hex())
	}
	r0, r1, err := v.reader.PairReserves(ctx, v.pool)
	if err != nil {
		return nil, fmt.Errorf("%s: read reserves: %w", v.name, err)
	}
	res := &dex.Reserves{In: r0, Out: r1, FeeBps: v.feeBps}
	if tokenIn == v.token1 {
		res.In, res.Out = r1, r0
	}
	return res, nil
}

// Quote computes the swap output from a fresh reserve read.
func (v *Venue) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	res, err := v.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return res.Quote(amountIn), nil
}
