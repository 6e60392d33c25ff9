package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter throttles inbound command traffic per user. The outbound global
// ceiling is a separate in-process token bucket owned by the sender.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

func UserCommandKey(userID int64, command string) string {
	return fmt.Sprintf("rate_limit:%d:%s", userID, command)
}

// CommandFloodGuard binds the limiter to the per-user command budget the
// engine consults before dispatching a command.
type CommandFloodGuard struct {
	limiter *RateLimiter
	limit   int
	window  time.Duration
}

func NewCommandFloodGuard(limiter *RateLimiter, limit int, window time.Duration) *CommandFloodGuard {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &CommandFloodGuard{limiter: limiter, limit: limit, window: window}
}

func (g *CommandFloodGuard) AllowCommand(ctx context.Context, userID int64, command string) (bool, error) {
	return g.limiter.Allow(ctx, UserCommandKey(userID, command), g.limit, g.window)
}
