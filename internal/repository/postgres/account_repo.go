// internal/repository/postgres/account_repo.go
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tainment-service/internal/domain/account"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Ensure(ctx context.Context, id int64, displayName string) (*account.Account, bool, error) {
	query := `
		INSERT INTO accounts (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, display_name, created_at
	`

	var acc account.Account
	err := r.db.pool.QueryRow(ctx, query, id, displayName).Scan(&acc.ID, &acc.DisplayName, &acc.CreatedAt)
	if err == nil {
		return &acc, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, classify("create account", "account not found", err)
	}

	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT id, display_name, created_at FROM accounts WHERE id = $1`

	var acc account.Account
	if err := r.db.pool.QueryRow(ctx, query, id).Scan(&acc.ID, &acc.DisplayName, &acc.CreatedAt); err != nil {
		return nil, classify("find account", "account not found", err)
	}
	return &acc, nil
}
