// Package lock provides lease-based mutual exclusion over logical
// opportunity keys, so concurrent bot processes never fight over the same
// opportunity.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

var (
	// ErrHeld means another holder currently owns the lease.
	ErrHeld = errors.New("lock: lease already held")
	// ErrNotHeld means the release token did not match the current lease,
	// typically because the lease expired and was reassigned.
	ErrNotHeld = errors.New("lock: lease not held by this token")
)

// Locker is a lease-based lock. Acquire returns a unique token; Release
// succeeds only on exact token match.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*types.ExecutionLease, error)
	Release(ctx context.Context, lease *types.ExecutionLease) error
}

// New selects the lock backend once at construction: the shared Redis
// store when reachable, otherwise the in-process fallback. The fallback is
// correct only within a single process; running multiple processes against
// it is a documented degraded mode.
func New(ctx context.Context, redisAddr, redisPassword string, logger *zap.Logger) Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
		if err := rdb.Ping(ctx).Err(); err == nil {
			logger.Info("execution mutex using redis backend", zap.String("addr", redisAddr))
			return NewRedisLocker(rdb)
		} else {
			_ = rdb.Close()
			logger.Warn("redis unreachable, execution mutex degraded to in-process mode",
				zap.String("addr", redisAddr),
				zap.Error(err))
		}
	}
	return NewMemoryLocker()
}
