package arbitrage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

func scanBest(t *testing.T, venues []dex.Venue, amountIn *big.Int) *types.Opportunity {
	t.Helper()
	s := NewScanner(venues, 0, zaptest.NewLogger(t))
	opps, err := s.Scan(context.Background(), tokenA, tokenB, amountIn)
	require.NoError(t, err)
	require.NotEmpty(t, opps)
	return opps[0]
}

func TestProtectDerivesMinimumOutputs(t *testing.T) {
	venues := newVenues(t)
	opp := scanBest(t, venues, eth(10))
	g := NewGuard(venues, 200, zaptest.NewLogger(t))

	premium := big.NewInt(9e15) // 9 bps on 10 tokens
	route, err := g.Protect(context.Background(), opp, eth(10), premium)
	require.NoError(t, err)

	assert.True(t, route.IsProfitable)
	assert.True(t, route.MinAmountOutHop1.Sign() > 0)
	assert.True(t, route.MinAmountOutHop2.Sign() > 0)

	// The protected bound sits 2% under the expected output.
	assert.True(t, route.MinAmountOutHop2.Cmp(opp.ExpectedAmountOut) < 0)
	floor := new(big.Int).Mul(opp.ExpectedAmountOut, big.NewInt(9700))
	floor.Div(floor, big.NewInt(10000))
	assert.True(t, route.MinAmountOutHop2.Cmp(floor) > 0)

	// Profitability is strict: min hop-2 output must exceed the owed sum.
	owed := new(big.Int).Add(eth(10), premium)
	assert.True(t, route.MinAmountOutHop2.Cmp(owed) > 0)
}

func TestProtectIsDeterministicOverUnchangedState(t *testing.T) {
	venues := newVenues(t)
	opp := scanBest(t, venues, eth(10))
	g := NewGuard(venues, 200, zaptest.NewLogger(t))

	first, err := g.Protect(context.Background(), opp, eth(10), big.NewInt(9e15))
	require.NoError(t, err)
	second, err := g.Protect(context.Background(), opp, eth(10), big.NewInt(9e15))
	require.NoError(t, err)

	assert.Equal(t, first.MinAmountOutHop1, second.MinAmountOutHop1)
	assert.Equal(t, first.MinAmountOutHop2, second.MinAmountOutHop2)
	assert.Equal(t, first.IsProfitable, second.IsProfitable)
}

func TestProtectMarksThinMarginUnprofitable(t *testing.T) {
	venues := newVenues(t)
	opp := scanBest(t, venues, eth(10))
	g := NewGuard(venues, 200, zaptest.NewLogger(t))

	// A premium larger than the whole expected edge cannot clear the
	// strict comparison.
	route, err := g.Protect(context.Background(), opp, eth(10), eth(100))
	require.NoError(t, err)
	assert.False(t, route.IsProfitable)
}

func TestProtectRejectsUnknownVenue(t *testing.T) {
	venues := newVenues(t)
	opp := scanBest(t, venues, eth(10))
	opp.VenueB = "nonexistent"
	g := NewGuard(venues, 200, zaptest.NewLogger(t))

	_, err := g.Protect(context.Background(), opp, eth(10), big.NewInt(9e15))
	assert.ErrorIs(t, err, ErrUnknownVenue)
}

func TestMaxInputRespectsImpactBound(t *testing.T) {
	venues := newVenues(t)
	g := NewGuard(venues, 200, zaptest.NewLogger(t))

	// 100 bps on the cheap venue's 1000-token input reserve.
	max, err := g.MaxInput(context.Background(), "cheap", tokenA, tokenB, 100)
	require.NoError(t, err)
	expected := new(big.Int).Mul(eth(1000), big.NewInt(100))
	expected.Div(expected, big.NewInt(9900))
	assert.Equal(t, expected, max)
}

func TestOpportunityAge(t *testing.T) {
	opp := &types.Opportunity{DiscoveredAt: time.Now().Add(-5 * time.Second)}
	assert.True(t, opp.Age() >= 5*time.Second)
}
