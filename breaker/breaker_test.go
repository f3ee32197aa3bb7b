package breaker

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBreaker(t *testing.T, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	t.Helper()
	return New(Config{MaxFailures: maxFailures, ResetTimeout: resetTimeout}, nil, zaptest.NewLogger(t))
}

func TestStartsClosedAndAllows(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestOpensAfterMaxConsecutiveFailures(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)
	cause := errors.New("simulation reverted")

	cb.RecordFailure(cause)
	cb.RecordFailure(cause)
	assert.Equal(t, Closed, cb.State(), "below the threshold the breaker stays closed")

	cb.RecordFailure(cause)
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow())
}

func TestSuccessResetsTheStreak(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)
	cause := errors.New("not included")

	cb.RecordFailure(cause)
	cb.RecordFailure(cause)
	cb.RecordSuccess(big.NewInt(100))

	// The streak restarted: two more failures still do not trip it.
	cb.RecordFailure(cause)
	cb.RecordFailure(cause)
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
}

func TestHalfOpenAllowsExactlyOneTrial(t *testing.T) {
	cb := newBreaker(t, 1, 20*time.Millisecond)
	cb.RecordFailure(errors.New("repayment failed"))
	require.Equal(t, Open, cb.State())
	require.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)

	assert.True(t, cb.Allow(), "after the cooldown one trial passes")
	assert.Equal(t, HalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial is in flight at a time")
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	cb := newBreaker(t, 1, 10*time.Millisecond)
	cb.RecordFailure(errors.New("stale price"))
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordSuccess(big.NewInt(42))
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
}

func TestHalfOpenFailureReopensImmediately(t *testing.T) {
	cb := newBreaker(t, 3, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("unprofitable"))
	}
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())
	require.Equal(t, HalfOpen, cb.State())

	// A single failed trial re-opens without needing a fresh streak.
	cb.RecordFailure(errors.New("unprofitable again"))
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow())
}

func TestCumulativeProfitAccumulates(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)
	cb.RecordSuccess(big.NewInt(100))
	cb.RecordSuccess(big.NewInt(250))
	cb.RecordSuccess(nil) // settled attempt with no reported profit

	assert.Equal(t, big.NewInt(350), cb.CumulativeProfit())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "HALF_OPEN", HalfOpen.String())
}
