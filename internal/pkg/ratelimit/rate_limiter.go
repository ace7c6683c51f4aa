// internal/pkg/ratelimit/rate_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts attempts in fixed windows. The first increment of a
// window sets its expiry.
type RateLimiter struct {
	client redis.UniversalClient

	checkoutMax    int64
	checkoutWindow time.Duration
}

func NewRateLimiter(client redis.UniversalClient, checkoutMax int64, checkoutWindow time.Duration) *RateLimiter {
	return &RateLimiter{
		client:         client,
		checkoutMax:    checkoutMax,
		checkoutWindow: checkoutWindow,
	}
}

// CheckCheckoutAttempt allows checkoutMax new checkout sessions per account per window.
func (r *RateLimiter) CheckCheckoutAttempt(ctx context.Context, accountID int64) (bool, error) {
	if r.checkoutMax <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:checkout:%d", accountID)
	return r.hit(ctx, key, r.checkoutMax, r.checkoutWindow)
}

// ResetCheckoutAttempts clears the account's checkout counter.
func (r *RateLimiter) ResetCheckoutAttempts(ctx context.Context, accountID int64) error {
	key := fmt.Sprintf("ratelimit:checkout:%d", accountID)
	return r.client.Del(ctx, key).Err()
}

// CheckAPIRateLimit checks general API rate limiting
func (r *RateLimiter) CheckAPIRateLimit(ctx context.Context, identityID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	key := fmt.Sprintf("ratelimit:api:%d:%s", identityID, endpoint)
	return r.hit(ctx, key, maxRequests, window)
}

func (r *RateLimiter) hit(ctx context.Context, key string, max int64, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit %s: %w", key, err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= max, nil
}
