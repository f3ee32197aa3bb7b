// Package gas estimates the fee cost of an attempt so submission can be
// gated on fee versus expected profit.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Client is the subset of an Ethereum client the estimator needs.
type Client interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator tracks the current base fee and priority tip.
type Estimator struct {
	client Client
	logger *zap.Logger

	mu      sync.RWMutex
	baseFee *big.Int
	tip     *big.Int

	ticker *time.Ticker
	done   chan struct{}
}

// NewEstimator creates an estimator that refreshes from the client at the
// given interval.
func NewEstimator(client Client, interval time.Duration, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Estimator{
		client:  client,
		logger:  logger,
		baseFee: new(big.Int),
		tip:     new(big.Int),
		ticker:  time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	go e.updateLoop()
	return e
}

// NewStatic creates an estimator pinned to fixed prices. Used when no node
// is attached.
func NewStatic(baseFee, tip *big.Int) *Estimator {
	return &Estimator{
		logger:  zap.NewNop(),
		baseFee: new(big.Int).Set(baseFee),
		tip:     new(big.Int).Set(tip),
	}
}

func (e *Estimator) updateLoop() {
	for {
		select {
		case <-e.done:
			return
		case <-e.ticker.C:
			if err := e.update(); err != nil {
				e.logger.Error("failed to update gas prices", zap.Error(err))
			}
		}
	}
}

func (e *Estimator) update() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	if header.BaseFee != nil {
		e.baseFee.Set(header.BaseFee)
	}
	e.tip.Set(tip)
	e.mu.Unlock()
	return nil
}

// EstimateFee returns the worst-case fee for a gas budget: twice the base
// fee (headroom for the next block) plus the tip, times the limit.
func (e *Estimator) EstimateFee(gasLimit uint64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perGas := new(big.Int).Lsh(e.baseFee, 1)
	perGas.Add(perGas, e.tip)
	return perGas.Mul(perGas, new(big.Int).SetUint64(gasLimit))
}

// Stop halts the refresh loop.
func (e *Estimator) Stop() {
	if e.ticker != nil {
		e.ticker.Stop()
		close(e.done)
	}
}
