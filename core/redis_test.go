package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, maxAttempts int, window time.Duration) (*LoginLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLoginLimiter(client, maxAttempts, window), mr
}

func TestLoginLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after budget, got %v", err)
	}
}

func TestLoginLimiterPerEmail(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for exhausted email, got %v", err)
	}
	// A different account is unaffected.
	if err := limiter.Allow(ctx, "b@x.com", ""); err != nil {
		t.Fatalf("other email should be allowed: %v", err)
	}
}

func TestLoginLimiterWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("first attempt should be allowed: %v", err)
	}
	if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("attempt after window should be allowed: %v", err)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *LoginLimiter
	if err := limiter.Allow(context.Background(), "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}
