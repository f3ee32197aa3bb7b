// Package bot runs the off-chain pipeline: scan venues, re-validate the
// best route, take the execution lease, consult the breaker, submit, and
// feed the outcome back.
package bot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/breaker"
	"github.com/HWyn2020/flash-arbitrage-ethereum/config"
	"github.com/HWyn2020/flash-arbitrage-ethereum/lock"
	"github.com/HWyn2020/flash-arbitrage-ethereum/strategies/arbitrage"
	"github.com/HWyn2020/flash-arbitrage-ethereum/submit"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils/metrics"
)

// dedupeSize bounds the cache of recently attempted opportunity keys.
const dedupeSize = 512

// dedupeWindow is how long an attempted key stays suppressed.
const dedupeWindow = 10 * time.Second

// Bot drives the scan-validate-execute cycle.
type Bot struct {
	cfg       *config.Config
	scanner   *arbitrage.Scanner
	guard     *arbitrage.Guard
	locker    lock.Locker
	breaker   *breaker.CircuitBreaker
	submitter *submit.Submitter
	metrics   *metrics.Metrics
	recent    *lru.Cache
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New assembles the bot from its already-wired components.
func New(cfg *config.Config, scanner *arbitrage.Scanner, guard *arbitrage.Guard, locker lock.Locker, cb *breaker.CircuitBreaker, submitter *submit.Submitter, m *metrics.Metrics, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	recent, err := lru.New(dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}
	return &Bot{
		cfg:       cfg,
		scanner:   scanner,
		guard:     guard,
		locker:    locker,
		breaker:   cb,
		submitter: submitter,
		metrics:   m,
		recent:    recent,
		logger:    logger,
	}, nil
}

// Start launches the scan loop. It returns immediately; use Stop to wait
// for shutdown after cancelling the context.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting arbitrage bot",
		zap.String("principal", b.cfg.Principal.String()),
		zap.String("min_profit", b.cfg.MinProfit.String()),
		zap.Duration("scan_interval", b.cfg.ScanInterval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.RunCycle(ctx)
			}
		}
	}()
}

// Stop waits for the scan loop to exit.
func (b *Bot) Stop() {
	b.logger.Info("stopping arbitrage bot")
	b.wg.Wait()
}

// RunCycle performs one scan and at most one execution attempt.
func (b *Bot) RunCycle(ctx context.Context) {
	if !b.breaker.Allow() {
		b.logger.Debug("attempts suspended", zap.String("state", b.breaker.State().String()))
		return
	}

	start := time.Now()
	opps, err := b.scanner.Scan(ctx, b.cfg.TokenIn, b.cfg.TokenOut, b.cfg.Principal)
	if b.metrics != nil {
		b.metrics.ScanLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		b.logger.Warn("scan failed", zap.Error(err))
		return
	}
	if b.metrics != nil {
		b.metrics.OpportunitiesFound.Add(float64(len(opps)))
	}

	for _, opp := range opps {
		if b.attempt(ctx, opp) {
			return
		}
	}
}

// attempt tries to execute one opportunity. It reports true once an
// attempt reached the submitter, regardless of outcome, so each cycle
// performs at most one execution.
func (b *Bot) attempt(ctx context.Context, opp *types.Opportunity) bool {
	key := OpportunityKey(opp)
	if when, ok := b.recent.Get(key); ok {
		if t, ok := when.(time.Time); ok && time.Since(t) < dedupeWindow {
			return false
		}
	}

	lease, err := b.locker.Acquire(ctx, key, b.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			b.logger.Debug("opportunity leased elsewhere", zap.String("key", key))
		} else {
			b.logger.Warn("lease acquisition failed", zap.Error(err))
		}
		return false
	}
	defer func() {
		// Release on a fresh context so shutdown does not leak the lease
		// until TTL expiry.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.locker.Release(rctx, lease); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			b.logger.Warn("lease release failed", zap.Error(err))
		}
	}()

	premium := b.premium()
	route, err := b.guard.Protect(ctx, opp, b.cfg.Principal, premium)
	if err != nil {
		b.logger.Warn("route re-validation failed", zap.Error(err))
		return false
	}
	if !route.IsProfitable {
		return false
	}

	req := types.LoanRequest{
		Asset:     opp.TokenIn,
		Principal: new(big.Int).Set(b.cfg.Principal),
		Premium:   premium,
		Path1:     []common.Address{opp.TokenIn, opp.TokenOut},
		Path2:     []common.Address{opp.TokenOut, opp.TokenIn},
		MinProfit: new(big.Int).Set(b.cfg.MinProfit),
	}

	b.recent.Add(key, time.Now())
	rec, err := b.submitter.Submit(ctx, route, req)
	switch {
	case err == nil && rec != nil && rec.Succeeded:
		b.breaker.RecordSuccess(rec.RealizedProfit)
		b.logger.Info("attempt settled",
			zap.String("venue_a", opp.VenueA),
			zap.String("venue_b", opp.VenueB),
			zap.String("profit", rec.RealizedProfit.String()),
			zap.String("tx", rec.TxReference.Hex()))
		return true
	case errors.Is(err, submit.ErrStale), errors.Is(err, submit.ErrNotProfitable), errors.Is(err, submit.ErrFeeTooHigh):
		// Gate rejections are pre-attempt: nothing was risked, the streak
		// is untouched.
		return false
	default:
		b.breaker.RecordFailure(err)
		b.logger.Warn("attempt failed",
			zap.String("venue_a", opp.VenueA),
			zap.String("venue_b", opp.VenueB),
			zap.Error(err))
		return true
	}
}

func (b *Bot) premium() *big.Int {
	p := new(big.Int).Mul(b.cfg.Principal, big.NewInt(int64(b.cfg.PremiumBps)))
	return p.Div(p, big.NewInt(10000))
}

// OpportunityKey derives the lease key for an opportunity. The key is
// deliberately coarse (the traded pair, not the venue pair): two bots
// racing different routes over the same pair would still double-move the
// same reserves.
func OpportunityKey(opp *types.Opportunity) string {
	d := xxhash.New()
	d.Write(opp.TokenIn.Bytes())
	d.Write([]byte{'|'})
	d.Write(opp.TokenOut.Bytes())
	return hex.EncodeToString(d.Sum(nil))
}
