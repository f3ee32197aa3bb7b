package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// ExecutionBackend exposes the arbitrage contract to the submission
// channel: a dry run that never commits, and an execution that configures
// the venue order for the route and requests the loan in one atomic unit.
type ExecutionBackend struct {
	l         *Ledger
	arb       *Arbitrage
	operator  common.Address
	venueAddr map[string]common.Address
	fallbacks []common.Address
	logger    *zap.Logger
}

// NewExecutionBackend wires the backend. venueAddr maps scanner venue keys
// to pool addresses; fallbacks are appended to the hop-2 candidate list
// after the route's own second venue.
func NewExecutionBackend(l *Ledger, arb *Arbitrage, operator common.Address, venueAddr map[string]common.Address, fallbacks []common.Address, logger *zap.Logger) *ExecutionBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionBackend{
		l:         l,
		arb:       arb,
		operator:  operator,
		venueAddr: venueAddr,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

func (b *ExecutionBackend) venueOrder(route *types.ProtectedRoute) ([]common.Address, error) {
	hop1, ok := b.venueAddr[route.Opportunity.VenueA]
	if !ok {
		return nil, fmt.Errorf("backend: unknown venue %q", route.Opportunity.VenueA)
	}
	hop2, ok := b.venueAddr[route.Opportunity.VenueB]
	if !ok {
		return nil, fmt.Errorf("backend: unknown venue %q", route.Opportunity.VenueB)
	}
	order := []common.Address{hop1, hop2}
	for _, f := range b.fallbacks {
		if f != hop1 && f != hop2 {
			order = append(order, f)
		}
	}
	return order, nil
}

// DryRun executes the exact call against current state and discards all
// effects. The error is what a real submission would fail with right now.
func (b *ExecutionBackend) DryRun(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) error {
	order, err := b.venueOrder(route)
	if err != nil {
		return err
	}
	return b.l.Simulate(ctx, func(u *Unit) error {
		if err := b.arb.SetVenues(u, b.operator, order); err != nil {
			return err
		}
		return b.arb.RequestLoan(u, b.operator, req)
	})
}

// Execute commits the attempt: venue configuration and loan request run in
// one atomic unit, so a failed attempt leaves neither behind.
func (b *ExecutionBackend) Execute(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error) {
	order, err := b.venueOrder(route)
	if err != nil {
		return nil, err
	}
	events, err := b.l.Execute(ctx, func(u *Unit) error {
		if err := b.arb.SetVenues(u, b.operator, order); err != nil {
			return err
		}
		return b.arb.RequestLoan(u, b.operator, req)
	})
	if err != nil {
		return &types.SettlementRecord{Succeeded: false, RealizedProfit: new(big.Int), GasSpent: new(big.Int)}, err
	}

	rec := &types.SettlementRecord{
		Succeeded:      true,
		RealizedProfit: new(big.Int),
		GasSpent:       new(big.Int),
		TxReference:    b.txReference(req),
	}
	for _, ev := range events {
		if s, ok := ev.Data.(SettlementEvent); ok && ev.Name == "loan_settled" {
			rec.RealizedProfit = new(big.Int).Set(s.Profit)
		}
	}
	return rec, nil
}

func (b *ExecutionBackend) txReference(req types.LoanRequest) common.Hash {
	h := new(big.Int).SetUint64(b.l.Height())
	return crypto.Keccak256Hash(req.Asset.Bytes(), req.Principal.Bytes(), h.Bytes())
}
