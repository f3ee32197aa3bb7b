// Package submit delivers the triggering instruction to the ledger through
// a public broadcast path or a private simulate-then-submit path, behind a
// uniform set of pre-submission gates.
package submit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/gas"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils/metrics"
)

var (
	// ErrStale rejects an opportunity older than the age bound, even if
	// still mathematically profitable.
	ErrStale = errors.New("submit: opportunity is stale")
	// ErrFeeTooHigh rejects an attempt whose estimated fee eats too much
	// of the expected profit.
	ErrFeeTooHigh = errors.New("submit: estimated fee exceeds profit bound")
	// ErrNotProfitable rejects a route the guard did not confirm.
	ErrNotProfitable = errors.New("submit: route not confirmed profitable")
	// ErrSimulationFailed means the mandatory dry run of the exact call
	// failed; no real submission was made.
	ErrSimulationFailed = errors.New("submit: pre-submission simulation failed")
	// ErrNotIncluded is the private path's soft failure: the bundle was
	// valid but no targeted block included it.
	ErrNotIncluded = errors.New("submit: bundle not included")
)

// Backend executes or dry-runs the exact arbitrage call.
type Backend interface {
	DryRun(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) error
	Execute(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error)
}

// Channel is one delivery path for a gated attempt.
type Channel interface {
	Name() string
	Submit(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error)
}

// Config holds the gate thresholds shared by both paths.
type Config struct {
	MaxOpportunityAge time.Duration // default 3s
	MaxFeeRatioBps    uint32        // fee may consume at most this fraction of expected profit
	GasLimit          uint64        // gas budget used for the fee estimate
}

// DefaultConfig returns the documented gate defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpportunityAge: 3 * time.Second,
		MaxFeeRatioBps:    5000,
		GasLimit:          600_000,
	}
}

// Submitter runs the uniform pre-submission gates and hands the attempt to
// the configured channel.
type Submitter struct {
	cfg       Config
	channel   Channel
	backend   Backend
	estimator *gas.Estimator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewSubmitter wires the gates in front of a channel.
func NewSubmitter(cfg Config, channel Channel, backend Backend, estimator *gas.Estimator, m *metrics.Metrics, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOpportunityAge == 0 {
		cfg.MaxOpportunityAge = DefaultConfig().MaxOpportunityAge
	}
	return &Submitter{
		cfg:       cfg,
		channel:   channel,
		backend:   backend,
		estimator: estimator,
		logger:    logger,
		metrics:   m,
	}
}

// Submit applies the gates in order and submits on the channel. Every
// rejection names the specific check so threshold mistuning stays
// observable.
func (s *Submitter) Submit(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error) {
	start := time.Now()
	opp := route.Opportunity

	if age := opp.Age(); age > s.cfg.MaxOpportunityAge {
		s.reject("age", zap.Duration("age", age))
		return nil, fmt.Errorf("%w: age %s exceeds %s", ErrStale, age, s.cfg.MaxOpportunityAge)
	}
	if !route.IsProfitable {
		s.reject("profitability")
		return nil, ErrNotProfitable
	}
	if s.estimator != nil && s.cfg.MaxFeeRatioBps > 0 {
		fee := s.estimator.EstimateFee(s.cfg.GasLimit)
		maxFee := new(big.Int).Mul(opp.GrossProfit, big.NewInt(int64(s.cfg.MaxFeeRatioBps)))
		maxFee.Div(maxFee, big.NewInt(10000))
		if fee.Cmp(maxFee) > 0 {
			s.reject("fee_ratio",
				zap.String("fee", fee.String()),
				zap.String("max_fee", maxFee.String()))
			return nil, fmt.Errorf("%w: fee %s, bound %s", ErrFeeTooHigh, fee, maxFee)
		}
	}
	// Mandatory dry run of the exact call, on both paths.
	if err := s.backend.DryRun(ctx, route, req); err != nil {
		s.reject("simulation", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSimulationFailed, err)
	}

	if s.metrics != nil {
		s.metrics.AttemptsTotal.Inc()
	}
	rec, err := s.channel.Submit(ctx, route, req)
	if s.metrics != nil {
		s.metrics.SubmitLatency.Observe(time.Since(start).Seconds())
		if err != nil || rec == nil || !rec.Succeeded {
			s.metrics.AttemptFailures.Inc()
		} else {
			s.metrics.AttemptSuccesses.Inc()
		}
	}
	return rec, err
}

func (s *Submitter) reject(gate string, fields ...zap.Field) {
	if s.metrics != nil {
		s.metrics.AttemptRejects.WithLabelValues(gate).Inc()
	}
	s.logger.Info("attempt rejected before submission",
		append([]zap.Field{zap.String("gate", gate)}, fields...)...)
}
