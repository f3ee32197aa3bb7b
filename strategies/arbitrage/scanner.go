// Package arbitrage discovers and validates cross-venue two-hop round
// trips: buy on one venue, sell on another, keep the difference.
package arbitrage

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// Scanner polls venue adapters and ranks profitable round trips.
type Scanner struct {
	venues  []dex.Venue
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewScanner creates a scanner over the given venues. readsPerSecond
// bounds the aggregate venue read rate; zero disables limiting.
func NewScanner(venues []dex.Venue, readsPerSecond float64, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if readsPerSecond > 0 {
		limit = rate.Limit(readsPerSecond)
	}
	return &Scanner{
		venues:  venues,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// snapshot is one venue's oriented reserve state, both directions taken
// from a single read.
type snapshot struct {
	venue dex.Venue
	fwd   *dex.Reserves // tokenIn -> tokenOut
	rev   *dex.Reserves // tokenOut -> tokenIn
}

// Scan reads every venue quoting the pair concurrently, joins the results
// and returns the profitable round trips ranked by descending gross
// profit. A failing venue is skipped, never aborts the scan.
func (s *Scanner) Scan(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) ([]*types.Opportunity, error) {
	var (
		mu    sync.Mutex
		snaps []*snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range s.venues {
		if !v.Supports(tokenIn, tokenOut) {
			continue
		}
		venue := v
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			res, err := venue.Reserves(gctx, tokenIn, tokenOut)
			if err != nil {
				// Isolated per venue: partial results remain valid.
				s.logger.Warn("venue read failed",
					zap.String("venue", venue.Key()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			snaps = append(snaps, &snapshot{
				venue: venue,
				fwd:   res,
				rev:   &dex.Reserves{In: res.Out, Out: res.In, FeeBps: res.FeeBps},
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	var opps []*types.Opportunity
	for i := 0; i < len(snaps); i++ {
		for j := i + 1; j < len(snaps); j++ {
			if opp := roundTrip(snaps[i], snaps[j], tokenIn, tokenOut, amountIn, now); opp != nil {
				opps = append(opps, opp)
			}
			if opp := roundTrip(snaps[j], snaps[i], tokenIn, tokenOut, amountIn, now); opp != nil {
				opps = append(opps, opp)
			}
		}
	}
	sort.Slice(opps, func(a, b int) bool {
		return opps[a].GrossProfit.Cmp(opps[b].GrossProfit) > 0
	})

	s.logger.Debug("scan complete",
		zap.Int("venues_read", len(snaps)),
		zap.Int("profitable_routes", len(opps)))
	return opps, nil
}

// roundTrip prices tokenIn -> tokenOut on first, then tokenOut -> tokenIn
// on second, and keeps the route only if it strictly beats the input.
func roundTrip(first, second *snapshot, tokenIn, tokenOut common.Address, amountIn *big.Int, now time.Time) *types.Opportunity {
	if first.venue.Key() == second.venue.Key() {
		return nil
	}
	hop1 := first.fwd.Quote(amountIn)
	if hop1.Sign() == 0 {
		return nil
	}
	final := second.rev.Quote(hop1)
	if final.Cmp(amountIn) <= 0 {
		return nil
	}
	return &types.Opportunity{
		VenueA:            first.venue.Key(),
		VenueB:            second.venue.Key(),
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          new(big.Int).Set(amountIn),
		ExpectedAmountOut: final,
		GrossProfit:       new(big.Int).Sub(final, amountIn),
		DiscoveredAt:      now,
	}
}
