package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

// releaseLua deletes a lease key only if its value matches the caller's
// token, preventing release of a lease already reassigned after TTL
// expiry.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker implements Locker on a shared Redis store using SETNX with a
// TTL and a Lua-based conditional delete.
type RedisLocker struct {
	rdb       *redis.Client
	releaseSc *redis.Script
}

// NewRedisLocker wraps an already connected client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:       rdb,
		releaseSc: redis.NewScript(releaseLua),
	}
}

func leaseKey(key string) string {
	return "arb:lease:" + key
}

// Acquire claims the key for ttl. At most one concurrent caller gets a
// non-nil lease; the rest receive ErrHeld.
func (rl *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*types.ExecutionLease, error) {
	token := uuid.New().String()
	ok, err := rl.rdb.SetNX(ctx, leaseKey(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &types.ExecutionLease{
		Key:    key,
		Token:  token,
		Expiry: time.Now().Add(ttl),
	}, nil
}

// Release frees the lease, but only if the token still owns it.
func (rl *RedisLocker) Release(ctx context.Context, lease *types.ExecutionLease) error {
	n, err := rl.releaseSc.Run(ctx, rl.rdb, []string{leaseKey(lease.Key)}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", lease.Key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)
