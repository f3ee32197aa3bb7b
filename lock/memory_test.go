package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

func TestAcquireIsExclusive(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()

	lease, err := ml.Acquire(ctx, "pair:ab", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, lease.Token)

	_, err = ml.Acquire(ctx, "pair:ab", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	// A different key is independent.
	_, err = ml.Acquire(ctx, "pair:cd", time.Minute)
	assert.NoError(t, err)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()

	const contenders = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ml.Acquire(ctx, "pair:ab", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestReleaseRequiresExactToken(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()

	lease, err := ml.Acquire(ctx, "pair:ab", time.Minute)
	require.NoError(t, err)

	forged := &types.ExecutionLease{Key: lease.Key, Token: "not-the-token"}
	assert.ErrorIs(t, ml.Release(ctx, forged), ErrNotHeld)

	// The real holder can still release, after which the key is free.
	require.NoError(t, ml.Release(ctx, lease))
	_, err = ml.Acquire(ctx, "pair:ab", time.Minute)
	assert.NoError(t, err)
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()

	stale, err := ml.Acquire(ctx, "pair:ab", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	fresh, err := ml.Acquire(ctx, "pair:ab", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, stale.Token, fresh.Token)

	// The stale holder's release must not evict the new lease.
	assert.ErrorIs(t, ml.Release(ctx, stale), ErrNotHeld)
	assert.NoError(t, ml.Release(ctx, fresh))
}

func TestDoubleReleaseFails(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()

	lease, err := ml.Acquire(ctx, "pair:ab", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ml.Release(ctx, lease))
	assert.ErrorIs(t, ml.Release(ctx, lease), ErrNotHeld)
}

func TestAcquireHonorsContext(t *testing.T) {
	ml := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ml.Acquire(ctx, "pair:ab", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFallsBackWithoutRedis(t *testing.T) {
	// No address configured: the in-process backend is selected.
	locker := New(context.Background(), "", "", zaptest.NewLogger(t))
	_, ok := locker.(*MemoryLocker)
	assert.True(t, ok)
}
