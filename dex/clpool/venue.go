// Package clpool adapts concentrated-liquidity pools to the dex.Venue
// interface. Each (pool, fee tier) combination is an independent candidate
// venue, quoted through a non-mutating state read per tier.
package clpool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
)

// Q96 is the 2^96 fixed-point scale used for sqrt prices.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// StateReader reads the current price and active liquidity of a
// concentrated-liquidity pool without mutating it.
type StateReader interface {
	Slot0(ctx context.Context, pool common.Address) (sqrtPriceX96, liquidity *big.Int, err error)
}

// Venue is one fee tier of a concentrated-liquidity pool.
type Venue struct {
	name   string
	pool   common.Address
	token0 common.Address
	token1 common.Address
	feeBps uint32
	reader StateReader
}

// New creates a concentrated-liquidity venue for a single fee tier.
func New(name string, pool, token0, token1 common.Address, feeBps uint32, reader StateReader) *Venue {
	return &Venue{
		name:   name,
		pool:   pool,
		token0: token0,
		token1: token1,
		feeBps: feeBps,
		reader: reader,
	}
}

// Key includes the fee tier so each tier ranks as its own venue.
func (v *Venue) Key() string             { return fmt.Sprintf("%s@%dbps", v.name, v.feeBps) }
func (v *Venue) Address() common.Address { return v.pool }

func (v *Venue) Supports(tokenA, tokenB common.Address) bool {
	return (tokenA == v.token0 && tokenB == v.token1) ||
		(tokenA == v.token1 && tokenB == v.token0)
}

// Reserves derives the virtual reserves implied by the current price and
// active liquidity, oriented for tokenIn -> tokenOut. Within the active
// tick a concentrated pool prices exactly like a constant-product pool
// over these virtual reserves.
func (v *Venue) Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*dex.Reserves, error) {
	if !v.Supports(tokenIn, tokenOut) || tokenIn == tokenOut {
		return nil, fmt.Errorf("%s: unsupported pair %s/%s", v.Key(), tokenIn.Hex(), tokenOut.Hex())
	}
	sqrtPriceX96, liquidity, err := v.reader.Slot0(ctx, v.pool)
	if err != nil {
		return nil, fmt.Errorf("%s: read slot0: %w", v.Key(), err)
	}
	r0, r1 := VirtualReserves(sqrtPriceX96, liquidity)
	res := &dex.Reserves{In: r0, Out: r1, FeeBps: v.feeBps}
	if tokenIn == v.token1 {
		res.In, res.Out = r1, r0
	}
	return res, nil
}

// Quote computes the swap output from a fresh state read.
func (v *Venue) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	res, err := v.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return res.Quote(amountIn), nil
}

// VirtualReserves converts (sqrtPrice, liquidity) into the equivalent
// constant-product reserves for the active tick:
//
//	reserve0 = L * 2^96 / sqrtP
//	reserve1 = L * sqrtP / 2^96
func VirtualReserves(sqrtPriceX96, liquidity *big.Int) (reserve0, reserve1 *big.Int) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 || liquidity == nil || liquidity.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	reserve0 = new(big.Int).Mul(liquidity, Q96)
	reserve0.Div(reserve0, sqrtPriceX96)
	reserve1 = new(big.Int).Mul(liquidity, sqrtPriceX96)
	reserve1.Div(reserve1, Q96)
	return reserve0, reserve1
}

// SqrtPriceFromReserve1 recovers the sqrt price after a swap moved the
// virtual token1 reserve: sqrtP = reserve1 * 2^96 / L.
func SqrtPriceFromReserve1(reserve1, liquidity *big.Int) *big.Int {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(reserve1, Q96)
	return p.Div(p, liquidity)
}
