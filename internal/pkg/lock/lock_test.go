package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "lock:", zap.NewNop()), mr
}

func lockers(t *testing.T) map[string]Locker {
	rl, _ := newRedisLocker(t)
	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": rl,
	}
}

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			release, ok, err := l.TryAcquire(ctx, "sweep:notice", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = l.TryAcquire(ctx, "sweep:notice", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = l.TryAcquire(ctx, "sweep:expiry", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "keys are independent")

			release()
			release()

			again, ok, err := l.TryAcquire(ctx, "sweep:notice", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
			again()
		})
	}
}

func TestAcquireSerializesHolders(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var inside, maxSeen int64
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := l.Acquire(ctx, "payment:TX-1", time.Minute)
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt64(&inside, 1)
					for {
						m := atomic.LoadInt64(&maxSeen)
						if n <= m || atomic.CompareAndSwapInt64(&maxSeen, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt64(&inside, -1)
					release()
				}()
			}
			wg.Wait()
			assert.Equal(t, int64(1), maxSeen)
		})
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLeaseExpiresAndStaleReleaseIsIgnored(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, ok, err := l.TryAcquire(ctx, "sweep:expiry", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh, ok, err := l.TryAcquire(ctx, "sweep:expiry", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lease can be taken over")

	stale()
	assert.True(t, mr.Exists("lock:sweep:expiry"), "stale holder must not release the new lease")

	fresh()
	assert.False(t, mr.Exists("lock:sweep:expiry"))
}

func TestRedisReleaseFailuresAreLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	core, logs := observer.New(zap.WarnLevel)
	l := NewRedisLocker(client, "lock:", zap.New(core))
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "payment:TX-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease taken over after expiry.
	mr.FastForward(2 * time.Minute)
	other, ok, err := l.TryAcquire(ctx, "payment:TX-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	release()
	require.Equal(t, 1, logs.FilterMessage("lock lease expired before release").Len())
	assert.True(t, mr.Exists("lock:payment:TX-1"), "the newer holder keeps the lock")

	mr.Close()
	other()
	entries := logs.FilterMessage("failed to release lock; it is held until the lease expires").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "payment:TX-1", entries[0].ContextMap()["key"])
}
