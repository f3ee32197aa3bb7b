package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

var (
	ErrNotOperator     = errors.New("arbitrage: caller is not the operator")
	ErrPaused          = errors.New("arbitrage: contract is paused")
	ErrBadPath         = errors.New("arbitrage: malformed swap path")
	ErrUntrustedLender = errors.New("arbitrage: callback from untrusted lender")
	ErrBadInitiator    = errors.New("arbitrage: loan not initiated by this contract")
	ErrNoPermit        = errors.New("arbitrage: no active loan permit")
	ErrPremiumDrift    = errors.New("arbitrage: lender premium changed since loan request")
	ErrNoVenue         = errors.New("arbitrage: no configured venue")
	ErrVenuesExhausted = errors.New("arbitrage: all hop-2 venues failed")
	ErrUnprofitable    = errors.New("arbitrage: final output does not exceed owed amount")
	ErrBelowMinProfit  = errors.New("arbitrage: profit below requested minimum")
)

// Phase names for the attempt lifecycle, used in logs.
type phase string

const (
	phaseBorrowing  phase = "borrowing"
	phaseSwapping1  phase = "swapping1"
	phaseSwapping2  phase = "swapping2"
	phaseValidating phase = "validating"
	phaseRepaying   phase = "repaying"
	phaseSettled    phase = "settled"
)

// loanPermit is the single-use capability minted at loan-request time and
// consumed exactly once by the callback. It is invalidated on exit
// regardless of outcome.
type loanPermit struct {
	id        uint64
	asset     common.Address
	principal *big.Int
}

type arbState struct {
	operator         common.Address
	paused           bool
	pauseReason      string
	venues           []common.Address
	cumulativeProfit *big.Int
	permit           *loanPermit
	nextPermitID     uint64
}

func (s *arbState) clone() *arbState {
	c := &arbState{
		operator:         s.operator,
		paused:           s.paused,
		pauseReason:      s.pauseReason,
		venues:           append([]common.Address(nil), s.venues...),
		cumulativeProfit: new(big.Int).Set(s.cumulativeProfit),
		nextPermitID:     s.nextPermitID,
	}
	if s.permit != nil {
		c.permit = &loanPermit{
			id:        s.permit.id,
			asset:     s.permit.asset,
			principal: new(big.Int).Set(s.permit.principal),
		}
	}
	return c
}

// Arbitrage is the ledger-side flash-loan arbitrage contract. One attempt
// runs borrow -> swap1 -> swap2 -> validate -> repay inside a single unit;
// any failure unwinds the whole unit.
type Arbitrage struct {
	addr   common.Address
	lender *Lender
	logger *zap.Logger
}

// DeployArbitrage installs the contract on the ledger. venues[0] is the
// hop-1 venue, the remainder is the ordered hop-2 candidate list.
func DeployArbitrage(l *Ledger, addr, operator common.Address, venues []common.Address, lender *Lender, logger *zap.Logger) *Arbitrage {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.arb = &arbState{
		operator:         operator,
		venues:           append([]common.Address(nil), venues...),
		cumulativeProfit: new(big.Int),
	}
	return &Arbitrage{addr: addr, lender: lender, logger: logger}
}

// Address returns the contract's ledger address.
func (c *Arbitrage) Address() common.Address { return c.addr }

// CumulativeProfit reads the persisted profit counter.
func (c *Arbitrage) CumulativeProfit(l *Ledger) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.state.arb.cumulativeProfit)
}

// Paused reads the pause flag and reason.
func (c *Arbitrage) Paused(l *Ledger) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.arb.paused, l.state.arb.pauseReason
}

// Venues reads the configured venue list.
func (c *Arbitrage) Venues(l *Ledger) []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]common.Address(nil), l.state.arb.venues...)
}

// RequestLoan is the operator entry point for one arbitrage attempt. It
// validates the request, mints the single-use loan permit and triggers the
// lender; the lender disburses and invokes OnLoan within the same unit.
func (c *Arbitrage) RequestLoan(u *Unit, caller common.Address, req types.LoanRequest) error {
	st := u.s.arb
	if caller != st.operator {
		return ErrNotOperator
	}
	if st.paused {
		return fmt.Errorf("%w: %s", ErrPaused, st.pauseReason)
	}
	if err := validateRoute(req); err != nil {
		return err
	}
	if len(st.venues) < 2 {
		return ErrNoVenue
	}

	st.nextPermitID++
	st.permit = &loanPermit{
		id:        st.nextPermitID,
		asset:     req.Asset,
		principal: new(big.Int).Set(req.Principal),
	}
	// The permit never survives an attempt, success or failure, so a
	// failed attempt cannot leave the contract locked. Re-fetch the state
	// pointer: a nested rollback during the attempt replaces it.
	defer func() { u.s.arb.permit = nil }()

	c.logger.Debug("loan requested",
		zap.String("phase", string(phaseBorrowing)),
		zap.String("asset", req.Asset.Hex()),
		zap.String("principal", req.Principal.String()))

	return c.lender.FlashLoan(u, c, req)
}

// OnLoan is the lender-invoked callback. It is accepted only from the
// trusted lender, only when this contract initiated the loan, and only
// while the single-use permit is active.
func (c *Arbitrage) OnLoan(u *Unit, caller, initiator common.Address, premium *big.Int, req types.LoanRequest) error {
	st := u.s.arb
	if caller != c.lender.addr {
		return ErrUntrustedLender
	}
	if initiator != c.addr {
		return ErrBadInitiator
	}
	p := st.permit
	if p == nil || p.asset != req.Asset || p.principal.Cmp(req.Principal) != 0 {
		return ErrNoPermit
	}
	st.permit = nil // consumed exactly once

	// The request's premium was fixed at loan-issue time; the lender
	// enforces its own value at repayment. Re-validate rather than
	// assume they still agree.
	if req.Premium != nil && req.Premium.Cmp(premium) != 0 {
		return fmt.Errorf("%w: requested %s, enforced %s", ErrPremiumDrift, req.Premium, premium)
	}

	out1, err := c.swapPath(u, st.venues[0], req.Path1, req.Principal)
	if err != nil {
		return fmt.Errorf("hop 1 on %s: %w", st.venues[0].Hex(), err)
	}
	c.logger.Debug("hop 1 done",
		zap.String("phase", string(phaseSwapping1)),
		zap.String("out", out1.String()))

	// Bounded fallback: try the ordered hop-2 candidates, first venue
	// that completes with non-zero output wins.
	var out2 *big.Int
	for _, venue := range st.venues[1:] {
		v := venue
		err = u.try(func() error {
			o, serr := c.swapPath(u, v, req.Path2, out1)
			if serr != nil {
				return serr
			}
			out2 = o
			return nil
		})
		if err == nil {
			break
		}
		out2 = nil
		c.logger.Debug("hop 2 candidate failed",
			zap.String("phase", string(phaseSwapping2)),
			zap.String("venue", v.Hex()),
			zap.Error(err))
	}
	if out2 == nil {
		return ErrVenuesExhausted
	}
	// Failed candidates rolled the unit state back in place; the state
	// pointer captured above is stale after that.
	st = u.s.arb

	owed := new(big.Int).Add(req.Principal, premium)
	if out2.Cmp(owed) <= 0 {
		return fmt.Errorf("%w: out %s, owed %s", ErrUnprofitable, out2, owed)
	}
	profit := new(big.Int).Sub(out2, owed)
	minProfit := req.MinProfit
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	if profit.Cmp(minProfit) < 0 {
		return fmt.Errorf("%w: profit %s, min %s", ErrBelowMinProfit, profit, minProfit)
	}
	c.logger.Debug("attempt validated",
		zap.String("phase", string(phaseValidating)),
		zap.String("profit", profit.String()))

	// Approve exactly owed, never more. The lender pulls repayment after
	// this callback returns.
	u.Approve(req.Asset, c.addr, c.lender.addr, owed)

	st.cumulativeProfit.Add(st.cumulativeProfit, profit)
	u.Emit(Event{Name: "loan_settled", Data: SettlementEvent{
		Asset:     req.Asset,
		Principal: new(big.Int).Set(req.Principal),
		Premium:   new(big.Int).Set(premium),
		Profit:    profit,
	}})
	c.logger.Info("attempt settled",
		zap.String("phase", string(phaseSettled)),
		zap.String("profit", profit.String()),
		zap.String("cumulative", st.cumulativeProfit.String()))
	return nil
}

// swapPath executes consecutive hops of a path on one venue.
func (c *Arbitrage) swapPath(u *Unit, venue common.Address, path []common.Address, amountIn *big.Int) (*big.Int, error) {
	amount := amountIn
	for i := 0; i < len(path)-1; i++ {
		out, err := u.Swap(venue, path[i], amount, nil, c.addr)
		if err != nil {
			return nil, err
		}
		amount = out
	}
	return amount, nil
}

// Pause blocks new loan requests. Withdrawals stay available.
func (c *Arbitrage) Pause(u *Unit, caller common.Address, reason string) error {
	st := u.s.arb
	if caller != st.operator {
		return ErrNotOperator
	}
	st.paused = true
	st.pauseReason = reason
	c.logger.Warn("contract paused", zap.String("reason", reason))
	return nil
}

// Unpause re-enables loan requests.
func (c *Arbitrage) Unpause(u *Unit, caller common.Address) error {
	st := u.s.arb
	if caller != st.operator {
		return ErrNotOperator
	}
	st.paused = false
	st.pauseReason = ""
	return nil
}

// SetVenues replaces the configured venue order: hop-1 venue first, then
// the ordered hop-2 candidates.
func (c *Arbitrage) SetVenues(u *Unit, caller common.Address, venues []common.Address) error {
	st := u.s.arb
	if caller != st.operator {
		return ErrNotOperator
	}
	if len(venues) < 2 {
		return ErrNoVenue
	}
	st.venues = append([]common.Address(nil), venues...)
	return nil
}

// Withdraw sends native-asset balance to the operator's chosen recipient.
// Permitted while paused: emergency recovery is distinct from trading.
func (c *Arbitrage) Withdraw(u *Unit, caller, to common.Address, amount *big.Int) error {
	return c.WithdrawToken(u, caller, NativeAsset, to, amount)
}

// WithdrawToken sends token balance held by the contract. Operator-only,
// permitted while paused.
func (c *Arbitrage) WithdrawToken(u *Unit, caller, token, to common.Address, amount *big.Int) error {
	st := u.s.arb
	if caller != st.operator {
		return ErrNotOperator
	}
	return u.Transfer(token, c.addr, to, amount)
}

func validateRoute(req types.LoanRequest) error {
	if len(req.Path1) < 2 || len(req.Path2) < 2 {
		return fmt.Errorf("%w: paths need at least two tokens", ErrBadPath)
	}
	if req.Path1[0] != req.Asset {
		return fmt.Errorf("%w: path1 must start at the borrowed asset", ErrBadPath)
	}
	if req.Path2[len(req.Path2)-1] != req.Asset {
		return fmt.Errorf("%w: path2 must end at the borrowed asset", ErrBadPath)
	}
	if req.Path1[len(req.Path1)-1] != req.Path2[0] {
		return fmt.Errorf("%w: path2 must continue where path1 ends", ErrBadPath)
	}
	if req.Principal == nil || req.Principal.Sign() <= 0 {
		return fmt.Errorf("%w: principal must be positive", ErrBadPath)
	}
	return nil
}
