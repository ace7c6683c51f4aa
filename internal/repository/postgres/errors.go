// internal/repository/postgres/errors.go
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	xerrors "tainment-service/internal/pkg/errors"
)

const uniqueViolation = "23505"

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// classify maps driver errors onto the engine taxonomy. A missing row is
// NotFound with notFound as the message, a unique violation means another
// writer won, and anything else is a persistence failure of op.
func classify(op, notFound string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return xerrors.NotFound(notFound)
	case isUniqueViolation(err):
		return xerrors.Concurrent("subscription was changed by another request")
	}
	var classified *xerrors.Error
	if errors.As(err, &classified) {
		return err
	}
	return xerrors.Persistence(op, err)
}
