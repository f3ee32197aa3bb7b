package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
	"github.com/HWyn2020/flash-arbitrage-ethereum/dex/clpool"
)

type poolKind int

const (
	poolConstantProduct poolKind = iota
	poolConcentrated
)

// poolState is an AMM pool living in ledger state. Constant-product pools
// track reserves directly; concentrated pools track price and liquidity and
// trade on the implied virtual reserves of the active tick.
type poolState struct {
	kind   poolKind
	addr   common.Address
	token0 common.Address
	token1 common.Address
	feeBps uint32

	reserve0 *big.Int
	reserve1 *big.Int

	sqrtPriceX96 *big.Int
	liquidity    *big.Int
}

func (p *poolState) clone() *poolState {
	c := &poolState{
		kind:   p.kind,
		addr:   p.addr,
		token0: p.token0,
		token1: p.token1,
		feeBps: p.feeBps,
	}
	if p.reserve0 != nil {
		c.reserve0 = new(big.Int).Set(p.reserve0)
		c.reserve1 = new(big.Int).Set(p.reserve1)
	}
	if p.sqrtPriceX96 != nil {
		c.sqrtPriceX96 = new(big.Int).Set(p.sqrtPriceX96)
		c.liquidity = new(big.Int).Set(p.liquidity)
	}
	return c
}

// reserves returns the pool's (virtual) reserves in canonical order.
func (p *poolState) reserves() (r0, r1 *big.Int) {
	if p.kind == poolConcentrated {
		return clpool.VirtualReserves(p.sqrtPriceX96, p.liquidity)
	}
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// RegisterPair creates a constant-product pool and seeds its reserves.
// The pool's token balances are minted to match.
func (l *Ledger) RegisterPair(pool, token0, token1 common.Address, reserve0, reserve1 *big.Int, feeBps uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.pools[pool] = &poolState{
		kind:     poolConstantProduct,
		addr:     pool,
		token0:   token0,
		token1:   token1,
		feeBps:   feeBps,
		reserve0: new(big.Int).Set(reserve0),
		reserve1: new(big.Int).Set(reserve1),
	}
	u := &Unit{l: l, s: l.state}
	u.Mint(token0, pool, reserve0)
	u.Mint(token1, pool, reserve1)
}

// RegisterTierPool creates a concentrated-liquidity pool at the given price
// and active liquidity. Token balances are minted to the implied virtual
// reserves so swaps can settle.
func (l *Ledger) RegisterTierPool(pool, token0, token1 common.Address, feeBps uint32, sqrtPriceX96, liquidity *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.pools[pool] = &poolState{
		kind:         poolConcentrated,
		addr:         pool,
		token0:       token0,
		token1:       token1,
		feeBps:       feeBps,
		sqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		liquidity:    new(big.Int).Set(liquidity),
	}
	r0, r1 := clpool.VirtualReserves(sqrtPriceX96, liquidity)
	u := &Unit{l: l, s: l.state}
	u.Mint(token0, pool, r0)
	u.Mint(token1, pool, r1)
}

// Swap executes tokenIn -> tokenOut against the pool inside the unit:
// the input is pulled from the trader, reserves move, the output is paid
// out. Validation happens before any mutation so a failed swap has no
// effect even without the enclosing unit's rollback.
func (u *Unit) Swap(pool, tokenIn common.Address, amountIn, minOut *big.Int, trader common.Address) (*big.Int, error) {
	p, ok := u.s.pools[pool]
	if !ok {
		return nil, ErrUnknownPool
	}
	var tokenOut common.Address
	switch tokenIn {
	case p.token0:
		tokenOut = p.token1
	case p.token1:
		tokenOut = p.token0
	default:
		return nil, ErrUnsupportedPair
	}

	r0, r1 := p.reserves()
	rIn, rOut := r0, r1
	if tokenIn == p.token1 {
		rIn, rOut = r1, r0
	}
	out := dex.AmountOut(amountIn, rIn, rOut, p.feeBps)
	if out.Sign() == 0 {
		return nil, ErrZeroOutput
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrSlippage
	}
	if u.BalanceOf(tokenIn, trader).Cmp(amountIn) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := u.Transfer(tokenIn, trader, pool, amountIn); err != nil {
		return nil, err
	}
	if err := u.Transfer(tokenOut, pool, trader, out); err != nil {
		return nil, err
	}

	rIn.Add(rIn, amountIn)
	rOut.Sub(rOut, out)
	switch p.kind {
	case poolConstantProduct:
		p.reserve0, p.reserve1 = r0, r1
	case poolConcentrated:
		p.sqrtPriceX96 = clpool.SqrtPriceFromReserve1(r1, p.liquidity)
	}
	return out, nil
}

// PairReserves implements the constprod.ReserveReader read path for pools
// hosted on this ledger.
func (l *Ledger) PairReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.state.pools[pool]
	if !ok || p.kind != poolConstantProduct {
		return nil, nil, ErrUnknownPool
	}
	r0, r1 := p.reserves()
	return r0, r1, nil
}

// Slot0 implements the clpool.StateReader read path for pools hosted on
// this ledger.
func (l *Ledger) Slot0(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.state.pools[pool]
	if !ok || p.kind != poolConcentrated {
		return nil, nil, ErrUnknownPool
	}
	return new(big.Int).Set(p.sqrtPriceX96), new(big.Int).Set(p.liquidity), nil
}
