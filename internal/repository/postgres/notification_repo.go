// internal/repository/postgres/notification_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tainment-service/internal/domain/notification"
	xerrors "tainment-service/internal/pkg/errors"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores an inbox row
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (account_id, kind, title, message, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	var payloadJSON []byte
	var err error
	if n.Payload != nil {
		payloadJSON, err = json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	err = r.db.pool.QueryRow(ctx, query,
		n.AccountID, string(n.Kind), n.Title, n.Message, payloadJSON,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return xerrors.Persistence("create notification", err)
	}
	return nil
}

// ListByAccount returns one page of the account's inbox, newest first, and
// the total matching count.
func (r *NotificationRepository) ListByAccount(ctx context.Context, accountID int64, filters *notification.ListFilters) ([]notification.Notification, int64, error) {
	where := []string{"account_id = $1"}
	args := []interface{}{accountID}

	if filters != nil && filters.IsRead != nil {
		args = append(args, *filters.IsRead)
		where = append(where, fmt.Sprintf("is_read = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM notifications WHERE " + whereClause
	if err := r.db.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, xerrors.Persistence("count notifications", err)
	}

	query := `
		SELECT id, account_id, kind, title, message, payload, is_read, created_at, read_at
		FROM notifications
		WHERE ` + whereClause + `
		ORDER BY id DESC`
	if filters != nil && filters.PageSize > 0 {
		offset := (filters.Page - 1) * filters.PageSize
		if offset < 0 {
			offset = 0
		}
		args = append(args, filters.PageSize, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, xerrors.Persistence("list notifications", err)
	}
	defer rows.Close()

	out := make([]notification.Notification, 0)
	for rows.Next() {
		var (
			n           notification.Notification
			kind        string
			payloadJSON []byte
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &kind, &n.Title, &n.Message, &payloadJSON, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, 0, xerrors.Persistence("list notifications", err)
		}
		n.Kind = notification.EventKind(kind)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &n.Payload); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, xerrors.Persistence("list notifications", err)
	}
	return out, total, nil
}

// MarkAsRead keeps the first read time when called again.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, accountID int64) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND account_id = $2
	`

	tag, err := r.db.pool.Exec(ctx, query, id, accountID)
	if err != nil {
		return xerrors.Persistence("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NotFound("notification not found")
	}
	return nil
}
