package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

type memoryLease struct {
	token  string
	expiry time.Time
}

// MemoryLocker is the in-process fallback backend. Leases expire lazily on
// the next acquire. Correct only within a single process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

// NewMemoryLocker creates the in-process backend.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease)}
}

// Acquire claims the key for ttl unless an unexpired lease holds it.
func (ml *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*types.ExecutionLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	if cur, ok := ml.leases[key]; ok && cur.expiry.After(now) {
		return nil, ErrHeld
	}
	token := uuid.New().String()
	expiry := now.Add(ttl)
	ml.leases[key] = memoryLease{token: token, expiry: expiry}
	return &types.ExecutionLease{Key: key, Token: token, Expiry: expiry}, nil
}

// Release frees the lease on exact token match, the in-process equivalent
// of the Redis compare-and-delete.
func (ml *MemoryLocker) Release(ctx context.Context, lease *types.ExecutionLease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	cur, ok := ml.leases[lease.Key]
	if !ok || cur.token != lease.Token || !cur.expiry.After(time.Now()) {
		return ErrNotHeld
	}
	delete(ml.leases, lease.Key)
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
