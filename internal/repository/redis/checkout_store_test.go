package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

func newStore(t *testing.T) (*CheckoutStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCheckoutStore(client), mr
}

func TestCheckoutStoreSaveGetDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	session := &payment.CheckoutSession{
		TransactionID:  "TX-20260301120000-01J",
		AccountID:      42,
		Tier:           subscription.TierPro,
		DurationMonths: 3,
		DurationDays:   90,
		Price:          26.97,
		Currency:       "USD",
		Status:         payment.SessionPending,
		CreatedAt:      created,
		ExpiresAt:      created.Add(30 * time.Minute),
	}
	require.NoError(t, s.Save(ctx, session, 30*time.Minute))

	got, err := s.Get(ctx, session.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, session.Price, got.Price)
	assert.Equal(t, subscription.TierPro, got.Tier)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, s.Delete(ctx, session.TransactionID))
	_, err = s.Get(ctx, session.TransactionID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCheckoutStoreExpiresWithTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &payment.CheckoutSession{TransactionID: "TX-1"}, 30*time.Minute))
	mr.FastForward(31 * time.Minute)

	_, err := s.Get(ctx, "TX-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCheckoutStoreRejectsExpiredTTL(t *testing.T) {
	s, _ := newStore(t)
	assert.Error(t, s.Save(context.Background(), &payment.CheckoutSession{TransactionID: "TX-1"}, 0))
}
