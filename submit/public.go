package submit

import (
	"context"

	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// PublicChannel broadcasts the instruction directly. It is exposed to
// adversarial reordering and exists as the fallback path.
type PublicChannel struct {
	backend Backend
	logger  *zap.Logger
}

// NewPublic creates the broadcast channel.
func NewPublic(backend Backend, logger *zap.Logger) *PublicChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicChannel{backend: backend, logger: logger}
}

func (p *PublicChannel) Name() string { return "public" }

// Submit executes the attempt on the open path.
func (p *PublicChannel) Submit(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error) {
	rec, err := p.backend.Execute(ctx, route, req)
	if err != nil {
		p.logger.Warn("public submission failed", zap.Error(err))
		return rec, err
	}
	p.logger.Info("public submission settled",
		zap.String("tx", rec.TxReference.Hex()),
		zap.String("profit", rec.RealizedProfit.String()))
	return rec, nil
}

var _ Channel = (*PublicChannel)(nil)
