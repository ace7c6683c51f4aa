// internal/db/redis.go
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is optional; an empty address list runs without redis.
type RedisConfig struct {
	ClusterMode  bool          `env:"REDIS_CLUSTER_MODE" envDefault:"false"`
	Addresses    []string      `env:"REDIS_ADDR" envSeparator:","`
	Password     string        `env:"REDIS_PASS"`
	DB           int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

var ErrNoRedisAddr = errors.New("no redis address configured")

func (c RedisConfig) Enabled() bool { return len(c.Addresses) > 0 && c.Addresses[0] != "" }

// NewRedis opens a cluster client in cluster mode and a single-node client
// on the first address otherwise, then pings it.
func NewRedis(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	if !cfg.Enabled() {
		return nil, ErrNoRedisAddr
	}

	var client redis.UniversalClient
	if cfg.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %v: %w", cfg.Addresses, err)
	}
	return client, nil
}
