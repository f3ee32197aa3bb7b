package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// ErrUnknownVenue is returned when an opportunity references a venue the
// guard was not configured with.
var ErrUnknownVenue = errors.New("guard: unknown venue")

// DefaultToleranceBps is the downward slippage tolerance applied to each
// hop's expected output (2%).
const DefaultToleranceBps = 200

// Guard re-validates an opportunity against live reserves and derives the
// minimum acceptable output of each hop. Its result is trusted only for
// the submission that immediately follows.
type Guard struct {
	venues       map[string]dex.Venue
	toleranceBps uint32
	logger       *zap.Logger
}

// NewGuard creates a guard over the venues the scanner uses.
func NewGuard(venues []dex.Venue, toleranceBps uint32, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if toleranceBps == 0 {
		toleranceBps = DefaultToleranceBps
	}
	byKey := make(map[string]dex.Venue, len(venues))
	for _, v := range venues {
		byKey[v.Key()] = v
	}
	return &Guard{venues: byKey, toleranceBps: toleranceBps, logger: logger}
}

// Protect re-reads current reserves, never the scan-time snapshot, and
// derives slippage-protected minimum outputs. IsProfitable holds only if
// the protected hop-2 output strictly exceeds principal plus premium.
// Recomputing against an unchanged snapshot yields identical bounds.
func (g *Guard) Protect(ctx context.Context, opp *types.Opportunity, principal, premium *big.Int) (*types.ProtectedRoute, error) {
	venueA, ok := g.venues[opp.VenueA]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, opp.VenueA)
	}
	venueB, ok := g.venues[opp.VenueB]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, opp.VenueB)
	}

	resA, err := venueA.Reserves(ctx, opp.TokenIn, opp.TokenOut)
	if err != nil {
		return nil, fmt.Errorf("guard: re-read %s: %w", opp.VenueA, err)
	}
	resB, err := venueB.Reserves(ctx, opp.TokenOut, opp.TokenIn)
	if err != nil {
		return nil, fmt.Errorf("guard: re-read %s: %w", opp.VenueB, err)
	}

	expected1 := resA.Quote(opp.AmountIn)
	min1 := g.applyTolerance(expected1)
	expected2 := resB.Quote(expected1)
	min2 := g.applyTolerance(expected2)

	owed := new(big.Int).Add(principal, premium)
	route := &types.ProtectedRoute{
		Opportunity:      opp,
		MinAmountOutHop1: min1,
		MinAmountOutHop2: min2,
		IsProfitable:     min2.Cmp(owed) > 0,
	}
	if !route.IsProfitable {
		g.logger.Debug("route failed re-validation",
			zap.String("venue_a", opp.VenueA),
			zap.String("venue_b", opp.VenueB),
			zap.String("min_out_hop2", min2.String()),
			zap.String("owed", owed.String()))
	}
	return route, nil
}

// MaxInput returns the largest input on the venue that keeps the price
// impact at or below impactBps.
func (g *Guard) MaxInput(ctx context.Context, venueKey string, tokenIn, tokenOut common.Address, impactBps uint32) (*big.Int, error) {
	v, ok := g.venues[venueKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, venueKey)
	}
	res, err := v.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return dex.MaxInputForImpact(res.In, impactBps), nil
}

func (g *Guard) applyTolerance(expected *big.Int) *big.Int {
	min := new(big.Int).Mul(expected, big.NewInt(int64(10000-g.toleranceBps)))
	return min.Div(min, big.NewInt(10000))
}
