// Package ledger models the chain-side execution environment: token
// balances, AMM pools, the flash lender and the arbitrage contract, all
// mutated through atomic all-or-nothing execution units. A failed unit
// leaves no partial effect behind.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrUnknownPool           = errors.New("ledger: unknown pool")
	ErrUnsupportedPair       = errors.New("ledger: pool does not trade this pair")
	ErrZeroOutput            = errors.New("ledger: swap produced zero output")
	ErrSlippage              = errors.New("ledger: output below minimum")
)

// NativeAsset is the pseudo-token address used for the chain's native coin.
var NativeAsset = common.Address{}

// Event is emitted by contract code during a unit and returned to the
// caller only if the unit commits.
type Event struct {
	Name string
	Data interface{}
}

// SettlementEvent records the outcome of a committed arbitrage attempt.
type SettlementEvent struct {
	Asset     common.Address
	Principal *big.Int
	Premium   *big.Int
	Profit    *big.Int
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// state is the full persisted ledger state. Everything reachable from here
// is deep-copied by clone so a unit can be unwound wholesale.
type state struct {
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	pools      map[common.Address]*poolState
	arb        *arbState
	lender     *lenderState
}

func newState() *state {
	return &state{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		pools:      make(map[common.Address]*poolState),
	}
}

func (s *state) clone() *state {
	c := &state{
		balances:   make(map[balanceKey]*big.Int, len(s.balances)),
		allowances: make(map[allowanceKey]*big.Int, len(s.allowances)),
		pools:      make(map[common.Address]*poolState, len(s.pools)),
	}
	for k, v := range s.balances {
		c.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.allowances {
		c.allowances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.pools {
		c.pools[k] = v.clone()
	}
	if s.arb != nil {
		c.arb = s.arb.clone()
	}
	if s.lender != nil {
		c.lender = s.lender.clone()
	}
	return c
}

// Ledger serializes execution units and guarantees their atomicity. Units
// are totally ordered with respect to each other; interleaving happens only
// between units, never inside one.
type Ledger struct {
	mu     sync.RWMutex
	state  *state
	height uint64
	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{state: newState(), logger: logger}
}

// Unit is one atomic execution unit. All mutation during a unit goes
// through its methods so that Execute can unwind everything on failure.
type Unit struct {
	l      *Ledger
	s      *state
	events []Event
}

// Execute runs fn as one atomic unit. If fn returns an error the whole
// unit is unwound and no partial effect survives.
func (l *Ledger) Execute(ctx context.Context, fn func(*Unit) error) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.state.clone()
	u := &Unit{l: l, s: l.state}
	if err := fn(u); err != nil {
		l.state = snap
		return nil, err
	}
	l.height++
	return u.events, nil
}

// Simulate runs fn against a copy of the current state and always discards
// the result. It reports the error fn would fail with if executed now.
func (l *Ledger) Simulate(ctx context.Context, fn func(*Unit) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	shadow := l.state.clone()
	l.mu.RUnlock()

	u := &Unit{l: l, s: shadow}
	return fn(u)
}

// Height returns the number of committed units.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// BalanceOf reads a balance outside of any unit.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.state.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// try runs fn against a nested snapshot so a failing subcall can be
// unwound without aborting the enclosing unit. Mirrors subcall revert
// semantics: the caller decides whether the failure is fatal.
func (u *Unit) try(fn func() error) error {
	snap := u.s.clone()
	nevents := len(u.events)
	if err := fn(); err != nil {
		// Restore in place: the enclosing Execute holds the lock and
		// references u.s through l.state.
		*u.s = *snap
		u.events = u.events[:nevents]
		return err
	}
	return nil
}

// Emit records an event delivered to the caller if the unit commits.
func (u *Unit) Emit(ev Event) {
	u.events = append(u.events, ev)
}

// BalanceOf reads a balance inside the unit.
func (u *Unit) BalanceOf(token, holder common.Address) *big.Int {
	if b, ok := u.s.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount to holder. Used for deployment and pool seeding.
func (u *Unit) Mint(token, to common.Address, amount *big.Int) {
	k := balanceKey{token, to}
	b, ok := u.s.balances[k]
	if !ok {
		b = new(big.Int)
		u.s.balances[k] = b
	}
	b.Add(b, amount)
}

// Transfer moves amount from one holder to another.
func (u *Unit) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrInsufficientBalance
	}
	fk := balanceKey{token, from}
	fb, ok := u.s.balances[fk]
	if !ok || fb.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fb.Sub(fb, amount)
	u.Mint(token, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance to exactly amount.
func (u *Unit) Approve(token, owner, spender common.Address, amount *big.Int) {
	u.s.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

// Allowance reads the current approval.
func (u *Unit) Allowance(token, owner, spender common.Address) *big.Int {
	if a, ok := u.s.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TransferFrom moves amount from owner to recipient using spender's
// allowance. The allowance is decremented by exactly the amount moved.
func (u *Unit) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	ak := allowanceKey{token, owner, spender}
	a, ok := u.s.allowances[ak]
	if !ok || a.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := u.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	a.Sub(a, amount)
	return nil
}

// mulBps returns x*bps/10000, truncating. All ledger math is unsigned
// fixed-point on integers.
func mulBps(x *big.Int, bps uint32) *big.Int {
	n := new(big.Int).Mul(x, big.NewInt(int64(bps)))
	return n.Div(n, big.NewInt(10000))
}
