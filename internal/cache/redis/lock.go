package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/qupredict/qupredict/internal/domain"
)

const lockKeyPrefix = "lock:"

// unlockScript releases a lock only if the caller still owns it, so a
// worker that outlived its TTL cannot release a lock re-acquired by
// someone else.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// LockManager implements distributed locking with SETNX and unique
// owner tokens. The engine takes a per-escrow lock before reconciling so
// concurrent engine replicas never double-process a bet.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager returns a lock manager backed by the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb}
}

var _ domain.LockManager = (*LockManager)(nil)

// Acquire takes the named lock for at most ttl. It returns
// domain.ErrLockHeld when the lock is owned by someone else, and an unlock
// func that releases the lock early. The unlock func uses a fresh context
// so a cancelled request context cannot leave the lock stuck until TTL
// expiry.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := lockKeyPrefix + key

	ok, err := lm.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.rdb.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}
	return unlock, nil
}
