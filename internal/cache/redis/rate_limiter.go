package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// Bounds on a single Wait sleep. The floor avoids hammering Redis when the
// oldest entry is about to expire; the ceiling rechecks in case another
// process's entries were trimmed.
const (
	minWaitStep = 10 * time.Millisecond
	maxWaitStep = 2 * time.Second
)

// RateLimiter is a sliding-window limiter kept in a sorted set per key and
// updated atomically by a Lua script. Every process sharing the Redis shares
// the budget, so a dashboard and an agent cannot double the oracle rate.
type RateLimiter struct {
	c      *Client
	script *redis.Script
	now    func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, script: redis.NewScript(slidingWindowLua), now: time.Now}
}

// Allow records the request if it fits within limit per window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.take(ctx, key, limit, window)
	return ok, err
}

// Wait blocks until a slot is taken or ctx ends, sleeping until the oldest
// request in the window expires rather than polling.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, retryIn, err := rl.take(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(min(max(retryIn, minWaitStep), maxWaitStep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) take(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}
