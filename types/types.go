package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Opportunity is a candidate two-hop round trip discovered by the scanner.
// It is immutable once computed and treated as stale past a short age bound.
type Opportunity struct {
	VenueA            string // hop-1 venue key
	VenueB            string // hop-2 venue key
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	ExpectedAmountOut *big.Int
	GrossProfit       *big.Int
	DiscoveredAt      time.Time
}

// Age returns the wall-clock age of the opportunity.
func (o *Opportunity) Age() time.Duration {
	return time.Since(o.DiscoveredAt)
}

// ProtectedRoute is an opportunity with slippage-protected minimum outputs,
// derived deterministically from a live reserve snapshot. It must be
// recomputed immediately before submission; a route validated one cycle
// earlier is untrusted for execution.
type ProtectedRoute struct {
	Opportunity      *Opportunity
	MinAmountOutHop1 *big.Int
	MinAmountOutHop2 *big.Int
	IsProfitable     bool
}

// LoanRequest carries the parameters of a flash-loan arbitrage attempt.
// Premium is the lender's proportional fee at loan-issue time; a mismatch
// against the lender's enforced value fails repayment rather than silently
// losing funds.
type LoanRequest struct {
	Asset     common.Address
	Principal *big.Int
	Premium   *big.Int
	Path1     []common.Address
	Path2     []common.Address
	MinProfit *big.Int
}

// ExecutionLease is a time-bounded exclusive claim on a logical opportunity
// key, owned exclusively by the holder of its token.
type ExecutionLease struct {
	Key    string
	Token  string
	Expiry time.Time
}

// SettlementRecord is the terminal record of one execution attempt, written
// once per attempt and fed to the circuit breaker and metrics.
type SettlementRecord struct {
	Succeeded      bool
	RealizedProfit *big.Int
	GasSpent       *big.Int
	TxReference    common.Hash
}
