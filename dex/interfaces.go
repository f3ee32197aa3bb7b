// Package dex defines the read-only venue adapter surface used by the
// opportunity scanner and the slippage guard.
package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Venue is a price source for one token pair on one market identity.
// Two venues with equal token pairs but different Key values are distinct
// candidates for an arbitrage round trip.
type Venue interface {
	// Key returns the unique venue identity, including the fee tier for
	// concentrated-liquidity pools.
	Key() string

	// Address returns the on-ledger pool address used for execution.
	Address() common.Address

	// Supports reports whether the venue trades the given unordered pair.
	Supports(tokenA, tokenB common.Address) bool

	// Reserves returns the current reserve state oriented for a
	// tokenIn -> tokenOut swap. Always a fresh read, never cached.
	Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*Reserves, error)

	// Quote returns the output of swapping amountIn, from a fresh
	// non-mutating read of venue state.
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Reserves is a reserve snapshot oriented for a specific swap direction.
type Reserves struct {
	In     *big.Int // reserve of the input token
	Out    *big.Int // reserve of the output token
	FeeBps uint32
}

// AmountOut is the constant-product closed form
//
//	out = in*(1-fee)*reserveOut / (reserveIn + in*(1-fee))
//
// with the fee expressed in basis points. Concentrated-liquidity venues use
// the same form over their virtual reserves.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(10000))
	denominator.Add(denominator, inWithFee)
	return numerator.Div(numerator, denominator)
}

// Quote applies AmountOut to an oriented reserve snapshot.
func (r *Reserves) Quote(amountIn *big.Int) *big.Int {
	return AmountOut(amountIn, r.In, r.Out, r.FeeBps)
}

// MaxInputForImpact solves for the largest input that keeps the price
// impact in/(reserveIn+in) at or below the given bound in basis points:
//
//	in <= reserveIn * p / (1 - p)
func MaxInputForImpact(reserveIn *big.Int, impactBps uint32) *big.Int {
	if impactBps >= 10000 {
		return new(big.Int).Set(reserveIn)
	}
	n := new(big.Int).Mul(reserveIn, big.NewInt(int64(impactBps)))
	return n.Div(n, big.NewInt(int64(10000-impactBps)))
}
