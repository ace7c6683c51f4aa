package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	xerrors "tainment-service/internal/pkg/errors"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", "missing", nil))

	err := classify("op", "subscription not found", fmt.Errorf("scan: %w", pgx.ErrNoRows))
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, "subscription not found", xerrors.UserMessage(err, ""))

	err = classify("op", "missing", &pgconn.PgError{Code: uniqueViolation})
	assert.ErrorIs(t, err, xerrors.ErrConcurrentModification)

	concurrent := xerrors.Concurrent("active subscription changed since it was read")
	assert.Same(t, concurrent, classify("op", "missing", concurrent))

	err = classify("insert history", "missing", errors.New("connection reset"))
	assert.ErrorIs(t, err, xerrors.ErrPersistence)
	assert.NotContains(t, xerrors.UserMessage(err, "try again"), "connection reset")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}
