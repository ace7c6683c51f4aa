package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, max int64) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimiter(client, max, time.Hour), mr
}

func TestCheckoutAttemptsLimitedPerWindow(t *testing.T) {
	rl, mr := newLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.CheckCheckoutAttempt(ctx, 7)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.CheckCheckoutAttempt(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.CheckCheckoutAttempt(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok, "counters are per account")

	mr.FastForward(time.Hour + time.Second)
	ok, err = rl.CheckCheckoutAttempt(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestResetCheckoutAttempts(t *testing.T) {
	rl, _ := newLimiter(t, 1)
	ctx := context.Background()

	_, err := rl.CheckCheckoutAttempt(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, rl.ResetCheckoutAttempts(ctx, 7))

	ok, err := rl.CheckCheckoutAttempt(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestZeroMaxDisablesCheckoutLimit(t *testing.T) {
	rl, _ := newLimiter(t, 0)
	for i := 0; i < 10; i++ {
		ok, err := rl.CheckCheckoutAttempt(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAPIRateLimitPerEndpoint(t *testing.T) {
	rl, mr := newLimiter(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.CheckAPIRateLimit(ctx, 7, "GET /me", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.CheckAPIRateLimit(ctx, 7, "GET /me", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.CheckAPIRateLimit(ctx, 7, "GET /history", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "counters are per endpoint")

	assert.True(t, mr.Exists("ratelimit:api:7:GET /me"))
	assert.Greater(t, mr.TTL("ratelimit:api:7:GET /me"), time.Duration(0))
}
