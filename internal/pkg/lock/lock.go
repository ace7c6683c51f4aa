// Package lock provides named mutual exclusion for scanner sweeps and
// payment application, either within one process or across processes
// sharing a redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Locker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	// TryAcquire returns acquired=false when the lock is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// --- LocalLocker ---

// LocalLocker serializes holders inside one process. ttl is ignored: a
// holder cannot outlive the process and always releases.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return releaser(ch), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return releaser(ch), true, nil
	default:
		return nil, false, nil
	}
}

func releaser(ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}
}

// --- RedisLocker ---

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never releases a newer holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker leases keys with SET NX PX. A holder that dies loses the lock
// after ttl.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, prefix: prefix, retry: 50 * time.Millisecond, logger: logger}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := l.prefix + key
	token := ulid.Make().String()

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("try acquire lock for %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := releaseScript.Run(ctx, l.client, []string{k}, token).Int64()
			switch {
			case err != nil:
				l.logger.Warn("failed to release lock; it is held until the lease expires",
					zap.String("key", key),
					zap.Duration("ttl", ttl),
					zap.Error(err),
				)
			case released == 0:
				l.logger.Warn("lock lease expired before release", zap.String("key", key), zap.Duration("ttl", ttl))
			}
		})
	}
	return release, true, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		release, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		}
	}
}
