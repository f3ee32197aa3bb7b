// Package breaker implements the failure gate consulted before every
// execution attempt. Repeated consecutive failures suspend all attempts
// until a cooldown elapses; the system never silently keeps retrying into
// an unprofitable regime.
package breaker

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// State of the breaker.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// Config holds the breaker thresholds.
type Config struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// CircuitBreaker tracks consecutive failures and realized profit.
// CLOSED allows everything; OPEN blocks everything until ResetTimeout has
// elapsed since the last failure; HALF_OPEN allows exactly one trial.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg                 Config
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	lastCause           string
	trialInFlight       bool
	cumulativeProfit    *big.Int

	logger  *zap.Logger
	metrics struct {
		trips       prometheus.Counter
		failures    prometheus.Counter
		stateValue  prometheus.Gauge
		profitTotal prometheus.Counter
	}
}

// New creates a breaker in the CLOSED state. reg may be nil to skip metric
// registration (tests).
func New(cfg Config, reg prometheus.Registerer, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		cfg:              cfg,
		state:            Closed,
		cumulativeProfit: new(big.Int),
		logger:           logger,
	}
	factory := promauto.With(reg)
	cb.metrics.trips = factory.NewCounter(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	})
	cb.metrics.failures = factory.NewCounter(prometheus.CounterOpts{
		Name: "circuit_breaker_failures_total",
		Help: "Total number of failures recorded by the circuit breaker",
	})
	cb.metrics.stateValue = factory.NewGauge(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state (0 closed, 1 open, 2 half-open)",
	})
	cb.metrics.profitTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "realized_profit_wei_total",
		Help: "Cumulative realized profit in wei",
	})
	return cb
}

// Allow is the single gate consulted before every attempt.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.lastFailure) < cb.cfg.ResetTimeout {
			return false
		}
		cb.setState(HalfOpen)
		cb.trialInFlight = true
		return true
	case HalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess resets the failure streak and accumulates realized profit.
// A successful half-open trial closes the breaker.
func (cb *CircuitBreaker) RecordSuccess(realizedProfit *big.Int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if realizedProfit != nil {
		cb.cumulativeProfit.Add(cb.cumulativeProfit, realizedProfit)
		f, _ := new(big.Float).SetInt(realizedProfit).Float64()
		cb.metrics.profitTotal.Add(f)
	}
	if cb.state != Closed {
		cb.setState(Closed)
	}
}

// RecordFailure increments the streak and records cause and timestamp.
// A failed half-open trial re-opens immediately.
func (cb *CircuitBreaker) RecordFailure(cause error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailure = time.Now()
	if cause != nil {
		cb.lastCause = cause.Error()
	}
	cb.metrics.failures.Inc()

	if cb.state == HalfOpen || (cb.state == Closed && cb.consecutiveFailures >= cb.cfg.MaxFailures) {
		cb.trialInFlight = false
		cb.setState(Open)
		cb.metrics.trips.Inc()
		cb.logger.Warn("circuit breaker opened",
			zap.Int("consecutive_failures", cb.consecutiveFailures),
			zap.String("cause", cb.lastCause),
			zap.Duration("cooldown", cb.cfg.ResetTimeout))
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CumulativeProfit returns the profit realized across all successes.
func (cb *CircuitBreaker) CumulativeProfit() *big.Int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return new(big.Int).Set(cb.cumulativeProfit)
}

func (cb *CircuitBreaker) setState(s State) {
	if cb.state != s {
		cb.logger.Info("circuit breaker state change",
			zap.String("from", cb.state.String()),
			zap.String("to", s.String()))
	}
	cb.state = s
	cb.metrics.stateValue.Set(float64(s))
}
