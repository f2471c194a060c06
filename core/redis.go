package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a client exhausted its attempt budget.
var ErrRateLimited = errors.New("rate limited")

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// LoginLimiter throttles credential-guessing by counting attempts per email
// and per client IP in fixed windows. The counter key gets its TTL on first
// increment, so a window starts at the first attempt and resets silently.
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow records one attempt for the email/IP pair and reports whether it is
// still inside the budget. A nil limiter allows everything.
func (l *LoginLimiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.allowKey(ctx, "login:email:"+email); err != nil {
		return err
	}
	if ip != "" {
		if err := l.allowKey(ctx, "login:ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *LoginLimiter) allowKey(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("login limiter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("login limiter: %w", err)
		}
	}
	if count > int64(l.maxAttempts) {
		return ErrRateLimited
	}
	return nil
}
