package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one holder can never release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with Redis SET NX PX and a
// Lua-based conditional unlock. It guards exclusion scopes that sit outside
// a database transaction, such as the execution span of a claimed cycle.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire attempts to take the lock for key with the given TTL. On success
// it returns an unlock function that is safe to call more than once.
//
// A backend error is reported as ErrLockHeld alongside the wrapped cause:
// when Redis cannot be reached the lock is treated as NOT acquired, never as
// acquired.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, errors.Join(domain.ErrLockHeld, fmt.Errorf("redis: acquire lock %s: %w", key, err))
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Background context so the unlock still runs when the caller's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}

	return unlock, nil
}

// IsLocked reports whether the key currently holds a lock.
func (lm *LockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := lm.rdb.Exists(ctx, lockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: probe lock %s: %w", key, err)
	}
	return n > 0, nil
}

// RemainingTTL returns how long the current lock on key has left, or zero
// when the key does not exist.
func (lm *LockManager) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := lm.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: lock ttl %s: %w", key, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
