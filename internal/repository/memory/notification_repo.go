package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"tainment-service/internal/domain/notification"
	xerrors "tainment-service/internal/pkg/errors"
)

type NotificationRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*notification.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{rows: make(map[int64]*notification.Notification)}
}

func (r *NotificationRepository) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	n.ID = r.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	row := *n
	r.rows[n.ID] = &row
	return nil
}

func (r *NotificationRepository) ListByAccount(_ context.Context, accountID int64, filters *notification.ListFilters) ([]notification.Notification, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]notification.Notification, 0)
	for _, n := range r.rows {
		if n.AccountID != accountID {
			continue
		}
		if filters != nil && filters.IsRead != nil && n.IsRead != *filters.IsRead {
			continue
		}
		matched = append(matched, *n)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	if filters == nil || filters.PageSize <= 0 {
		return matched, total, nil
	}
	offset := (filters.Page - 1) * filters.PageSize
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []notification.Notification{}, total, nil
	}
	end := offset + filters.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *NotificationRepository) MarkAsRead(_ context.Context, id, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.AccountID != accountID {
		return xerrors.NotFound("notification not found")
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return nil
}
