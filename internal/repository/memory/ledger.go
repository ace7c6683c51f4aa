package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tainment-service/internal/domain/payment"
	xerrors "tainment-service/internal/pkg/errors"
)

// Ledger keeps payment transactions keyed by transaction id.
type Ledger struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string]*payment.Transaction
}

func NewLedger() *Ledger {
	return &Ledger{rows: make(map[string]*payment.Transaction)}
}

func (l *Ledger) CreatePending(_ context.Context, t *payment.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.rows[t.TransactionID]; exists {
		return xerrors.Wrap(xerrors.ErrConflict, "transaction "+t.TransactionID)
	}
	l.nextID++
	t.ID = l.nextID
	t.Status = payment.StatusPending
	row := *t
	l.rows[t.TransactionID] = &row
	return nil
}

func (l *Ledger) FindByTransactionID(_ context.Context, transactionID string) (*payment.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row, ok := l.rows[transactionID]
	if !ok {
		return nil, xerrors.NotFound("transaction not found")
	}
	return copyTx(row), nil
}

func (l *Ledger) MarkTerminal(_ context.Context, transactionID string, status payment.TransactionStatus, reason *string, at time.Time) (*payment.Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rows[transactionID]
	if !ok {
		return nil, false, xerrors.NotFound("transaction not found")
	}
	if !row.Status.Open() {
		return copyTx(row), false, nil
	}
	row.Status = status
	row.FailureReason = copyString(reason)
	completed := at.UTC()
	row.CompletedAt = &completed
	return copyTx(row), true, nil
}

func (l *Ledger) MarkAbandoned(_ context.Context, transactionID string, status payment.TransactionStatus) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rows[transactionID]
	if !ok || row.Status != payment.StatusPending {
		return false, nil
	}
	row.Status = status
	return true, nil
}

func (l *Ledger) ListByAccount(_ context.Context, accountID int64, limit int) ([]payment.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]payment.Transaction, 0)
	for _, row := range l.rows {
		if row.AccountID == accountID {
			out = append(out, *copyTx(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyTx(t *payment.Transaction) *payment.Transaction {
	c := *t
	c.FailureReason = copyString(t.FailureReason)
	c.CompletedAt = copyTime(t.CompletedAt)
	return &c
}
