package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisSingleNode(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), RedisConfig{Addresses: []string{mr.Addr()}, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisRequiresAddress(t *testing.T) {
	assert.False(t, RedisConfig{}.Enabled())
	assert.False(t, RedisConfig{Addresses: []string{""}}.Enabled())

	_, err := NewRedis(context.Background(), RedisConfig{})
	assert.ErrorIs(t, err, ErrNoRedisAddr)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisConfig{Addresses: []string{addr}})
	assert.Error(t, err)
}

func TestConnectDBRequiresURL(t *testing.T) {
	_, err := ConnectDB(context.Background(), PostgresConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoPostgresURL)
}
