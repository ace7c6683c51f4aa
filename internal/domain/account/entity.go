// internal/domain/account/entity.go
package account

import (
	"context"
	"time"
)

// Account is created on first interaction and never deleted.
type Account struct {
	ID          int64     `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Repository interface {
	// Ensure inserts the account if missing. created is true only for the
	// call that actually inserted the row.
	Ensure(ctx context.Context, id int64, displayName string) (acc *Account, created bool, err error)
	FindByID(ctx context.Context, id int64) (*Account, error)
}
