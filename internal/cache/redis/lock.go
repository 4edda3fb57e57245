package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// unlockLua deletes the key only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL only while the key still holds the token.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SET NX and token-checked
// release.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	extendSc *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
	}
}

// Lease is a held lock that can be kept alive.
type Lease struct {
	lm    *LockManager
	key   string
	token string
	ttl   time.Duration
	once  sync.Once
}

// AcquireLease takes the lock or returns domain.ErrLockHeld.
func (lm *LockManager) AcquireLease(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.New().String()
	lk := lm.c.key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	return &Lease{lm: lm, key: lk, token: token, ttl: ttl}, nil
}

// Acquire implements domain.LockManager. The returned unlock func is safe to
// call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l, err := lm.AcquireLease(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

// Extend refreshes the lease TTL. It returns domain.ErrLockHeld when the
// lock expired and someone else took it.
func (l *Lease) Extend(ctx context.Context) error {
	n, err := l.lm.extendSc.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis: extend lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("redis: extend lock: %w", domain.ErrLockHeld)
	}
	return nil
}

// Keep extends the lease every ttl/3 until ctx is done, then releases it. A
// lost lease ends Keep with an error so the caller can stop trading.
func (l *Lease) Keep(ctx context.Context, logger *slog.Logger) error {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	defer l.Release()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := l.Extend(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("instance lock lost", slog.String("error", err.Error()))
				return err
			}
		}
	}
}

// Release deletes the lock if still held. It uses its own context so it
// works after the caller's context is cancelled.
func (l *Lease) Release() {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.lm.unlockSc.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token).Err()
	})
}
