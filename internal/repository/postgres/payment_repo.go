// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

const transactionColumns = `id, transaction_id, account_id, amount::float8, currency, status, tier,
	duration_days, failure_reason, created_at, completed_at`

// PaymentRepository is the postgres payment ledger.
type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanTransaction(row rowScanner) (*payment.Transaction, error) {
	var (
		t      payment.Transaction
		status string
		tier   string
	)
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.AccountID, &t.Amount, &t.Currency, &status, &tier,
		&t.DurationDays, &t.FailureReason, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = payment.TransactionStatus(status)
	t.Tier = subscription.Tier(tier)
	t.CreatedAt = t.CreatedAt.UTC()
	if t.CompletedAt != nil {
		c := t.CompletedAt.UTC()
		t.CompletedAt = &c
	}
	return &t, nil
}

func (r *PaymentRepository) CreatePending(ctx context.Context, t *payment.Transaction) error {
	query := `
		INSERT INTO payment_transactions (transaction_id, account_id, amount, currency, status, tier, duration_days, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING id
	`

	err := r.db.pool.QueryRow(ctx, query,
		t.TransactionID, t.AccountID, t.Amount, t.Currency, string(t.Tier), t.DurationDays, t.CreatedAt,
	).Scan(&t.ID)
	if isUniqueViolation(err) {
		return xerrors.Wrap(xerrors.ErrConflict, "transaction "+t.TransactionID)
	}
	if err != nil {
		return xerrors.Persistence("record pending payment", err)
	}
	t.Status = payment.StatusPending
	return nil
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE transaction_id = $1`

	t, err := scanTransaction(r.db.pool.QueryRow(ctx, query, transactionID))
	if err != nil {
		return nil, classify("find payment", "transaction not found", err)
	}
	return t, nil
}

// MarkTerminal only moves open rows, so a replayed callback finds the row
// unchanged.
func (r *PaymentRepository) MarkTerminal(ctx context.Context, transactionID string, status payment.TransactionStatus, reason *string, at time.Time) (*payment.Transaction, bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = $2, failure_reason = $3, completed_at = $4
		WHERE transaction_id = $1 AND status IN ('pending', 'cancelled', 'expired')
		RETURNING ` + transactionColumns

	t, err := scanTransaction(r.db.pool.QueryRow(ctx, query, transactionID, string(status), reason, at.UTC()))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, xerrors.Persistence("update payment status", err)
	}

	existing, err := r.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PaymentRepository) MarkAbandoned(ctx context.Context, transactionID string, status payment.TransactionStatus) (bool, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE payment_transactions SET status = $2
		WHERE transaction_id = $1 AND status = 'pending'`, transactionID, string(status))
	if err != nil {
		return false, xerrors.Persistence("mark payment abandoned", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Persistence("list payments", err)
	}
	defer rows.Close()

	out := make([]payment.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, xerrors.Persistence("list payments", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence("list payments", err)
	}
	return out, nil
}
