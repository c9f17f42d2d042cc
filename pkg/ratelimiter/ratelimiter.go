package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"anoa.com/threadline/pkg/apperror"
	"github.com/redis/go-redis/v9"
)

// Limiter enforces a per-user cooldown per action. A nil redis client
// disables limiting.
type Limiter struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func key(userID uint, action string) string {
	return fmt.Sprintf("rate_limit:user:%d:%s", userID, action)
}

// Allow reports whether the action may proceed and starts the cooldown when it does.
func (l *Limiter) Allow(ctx context.Context, userID uint, action string, cooldown time.Duration) (bool, error) {
	if l == nil || l.rdb == nil || cooldown <= 0 {
		return true, nil
	}

	wasSet, err := l.rdb.SetNX(ctx, key(userID, action), "locked", cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}

	return wasSet, nil
}

func (l *Limiter) TTL(ctx context.Context, userID uint, action string) (time.Duration, error) {
	if l == nil || l.rdb == nil {
		return 0, nil
	}
	return l.rdb.TTL(ctx, key(userID, action)).Result()
}

func (l *Limiter) Clear(ctx context.Context, userID uint, action string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, key(userID, action)).Err()
}

// RateLimitError carries the remaining cooldown so handlers can set Retry-After.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return apperror.ErrRateLimitExceeded
}
