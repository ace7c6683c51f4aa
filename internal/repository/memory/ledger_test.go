package memory

import (
	"context"
	"testing"
	"time"

	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMarkTerminalOnce(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	tx := &payment.Transaction{TransactionID: "TX-1", AccountID: 5, Amount: 26.97, Currency: "USD", Tier: subscription.TierPro, DurationDays: 90, CreatedAt: t0}
	require.NoError(t, l.CreatePending(ctx, tx))
	assert.Error(t, l.CreatePending(ctx, tx))

	row, changed, err := l.MarkTerminal(ctx, "TX-1", payment.StatusCompleted, nil, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, payment.StatusCompleted, row.Status)

	row, changed, err = l.MarkTerminal(ctx, "TX-1", payment.StatusFailed, subscription.Ptr("late"), t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, payment.StatusCompleted, row.Status)
	assert.Nil(t, row.FailureReason)

	_, _, err = l.MarkTerminal(ctx, "TX-missing", payment.StatusCompleted, nil, t0)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestLedgerListByAccountNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	for i, id := range []string{"TX-a", "TX-b", "TX-c"} {
		require.NoError(t, l.CreatePending(ctx, &payment.Transaction{TransactionID: id, AccountID: 5, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, l.CreatePending(ctx, &payment.Transaction{TransactionID: "TX-other", AccountID: 6, CreatedAt: t0}))

	rows, err := l.ListByAccount(ctx, 5, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TX-c", rows[0].TransactionID)
	assert.Equal(t, "TX-b", rows[1].TransactionID)
}

func TestSessionStoreHonoursTTL(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(time.Minute)

	require.NoError(t, s.Save(ctx, &payment.CheckoutSession{TransactionID: "TX-1", AccountID: 5}, 20*time.Millisecond))
	got, err := s.Get(ctx, "TX-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.AccountID)

	time.Sleep(40 * time.Millisecond)
	_, err = s.Get(ctx, "TX-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
