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
	ErrInsufficientLiquidity = errors.New("lender: insufficient liquidity")
	ErrRepaymentFailed       = errors.New("lender: repayment pull failed")
)

type lenderState struct {
	premiumBps uint32
}

func (s *lenderState) clone() *lenderState {
	c := *s
	return &c
}

// Lender is the flash-loan venue. It transfers principal to the borrower,
// invokes the callback, and pulls principal plus premium back within the
// same unit. If the pull fails the whole unit unwinds: capital is never at
// risk.
type Lender struct {
	addr   common.Address
	logger *zap.Logger
}

// DeployLender installs the lender on the ledger with the given premium in
// basis points and seeds its liquidity for the asset.
func DeployLender(l *Ledger, addr common.Address, premiumBps uint32, asset common.Address, liquidity *big.Int, logger *zap.Logger) *Lender {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.lender = &lenderState{premiumBps: premiumBps}
	u := &Unit{l: l, s: l.state}
	u.Mint(asset, addr, liquidity)
	return &Lender{addr: addr, logger: logger}
}

// Address returns the lender's ledger address.
func (ln *Lender) Address() common.Address { return ln.addr }

// PremiumBps reads the currently enforced premium.
func (ln *Lender) PremiumBps(l *Ledger) uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.lender.premiumBps
}

// SetPremiumBps changes the enforced premium. Exists so the premium-drift
// invariant can be exercised: the borrower re-validates at callback time.
func (ln *Lender) SetPremiumBps(l *Ledger, bps uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.lender.premiumBps = bps
}

// premium computes the proportional fee on a principal at the premium
// currently enforced in ledger state.
func (ln *Lender) premium(u *Unit, principal *big.Int) *big.Int {
	return mulBps(principal, u.s.lender.premiumBps)
}

// FlashLoan issues an uncollateralized loan valid only within the current
// unit. The borrower's callback runs between disbursement and the
// repayment pull.
func (ln *Lender) FlashLoan(u *Unit, borrower *Arbitrage, req types.LoanRequest) error {
	if u.BalanceOf(req.Asset, ln.addr).Cmp(req.Principal) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := u.Transfer(req.Asset, ln.addr, borrower.addr, req.Principal); err != nil {
		return fmt.Errorf("lender: disburse: %w", err)
	}

	premium := ln.premium(u, req.Principal)
	if err := borrower.OnLoan(u, ln.addr, borrower.addr, premium, req); err != nil {
		return err
	}

	owed := new(big.Int).Add(req.Principal, premium)
	if err := u.TransferFrom(req.Asset, ln.addr, borrower.addr, ln.addr, owed); err != nil {
		return fmt.Errorf("%w: %v", ErrRepaymentFailed, err)
	}
	return nil
}
