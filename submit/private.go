package submit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/flashbots"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// Relay is the private inclusion endpoint, satisfied by flashbots.Client.
type Relay interface {
	SimulateBundle(ctx context.Context, bundle *flashbots.Bundle) (*flashbots.Simulation, error)
	SendBundle(ctx context.Context, bundle *flashbots.Bundle) error
}

// HeadSource reports the current chain head.
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// InclusionChecker reports whether a submitted transaction settled.
type InclusionChecker interface {
	Included(ctx context.Context, txHash common.Hash) (*types.SettlementRecord, bool, error)
}

// TxBuilder signs the loan-request instruction. Key management lives
// outside this system; only the capability is injected.
type TxBuilder func(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*ethtypes.Transaction, error)

// PrivateChannel builds a bundle, simulates it against expected next-block
// state, and submits it for a small fixed number of upcoming blocks.
// Non-inclusion is a soft failure: the opportunity went to a competitor or
// the price moved, nothing was spent.
type PrivateChannel struct {
	relay       Relay
	head        HeadSource
	included    InclusionChecker
	build       TxBuilder
	blockSpan   uint64
	waitTimeout time.Duration
	pollEvery   time.Duration
	logger      *zap.Logger
}

// NewPrivate creates the private path. blockSpan bounds how many upcoming
// blocks the bundle targets.
func NewPrivate(relay Relay, head HeadSource, included InclusionChecker, build TxBuilder, blockSpan uint64, waitTimeout time.Duration, logger *zap.Logger) *PrivateChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if blockSpan == 0 {
		blockSpan = 3
	}
	if waitTimeout == 0 {
		waitTimeout = 45 * time.Second
	}
	return &PrivateChannel{
		relay:       relay,
		head:        head,
		included:    included,
		build:       build,
		blockSpan:   blockSpan,
		waitTimeout: waitTimeout,
		pollEvery:   500 * time.Millisecond,
		logger:      logger,
	}
}

func (p *PrivateChannel) Name() string { return "private" }

// Submit simulates first and only then bids for inclusion, so a bundle
// that would revert never spends the premium.
func (p *PrivateChannel) Submit(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*types.SettlementRecord, error) {
	tx, err := p.build(ctx, route, req)
	if err != nil {
		return nil, fmt.Errorf("submit: build transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("submit: encode transaction: %w", err)
	}

	head, err := p.head.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit: read head: %w", err)
	}

	bundle := &flashbots.Bundle{
		Txs:         []hexutil.Bytes{raw},
		BlockNumber: new(big.Int).SetUint64(head + 1),
	}
	sim, err := p.relay.SimulateBundle(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSimulationFailed, err)
	}
	if !sim.Success {
		return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, sim.Error)
	}

	for n := uint64(1); n <= p.blockSpan; n++ {
		target := &flashbots.Bundle{
			Txs:         bundle.Txs,
			BlockNumber: new(big.Int).SetUint64(head + n),
		}
		if err := p.relay.SendBundle(ctx, target); err != nil {
			return nil, fmt.Errorf("submit: send bundle for block %d: %w", head+n, err)
		}
	}
	p.logger.Info("bundle submitted",
		zap.Uint64("head", head),
		zap.Uint64("block_span", p.blockSpan),
		zap.String("tx", tx.Hash().Hex()))

	return p.waitInclusion(ctx, tx.Hash())
}

// waitInclusion polls until the transaction settles or the wait times out.
// A timeout marks the attempt failed even if the ledger later includes it.
func (p *PrivateChannel) waitInclusion(ctx context.Context, txHash common.Hash) (*types.SettlementRecord, error) {
	deadline := time.NewTimer(p.waitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(p.pollEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrNotIncluded
		case <-tick.C:
			rec, ok, err := p.included.Included(ctx, txHash)
			if err != nil {
				p.logger.Warn("inclusion check failed", zap.Error(err))
				continue
			}
			if ok {
				return rec, nil
			}
		}
	}
}

var _ Channel = (*PrivateChannel)(nil)
