// internal/service/notification/inbox.go
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/websocket"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pusher delivers inbox updates to live connections.
type Pusher interface {
	PushNotification(accountID int64, data *websocket.NotificationData) int
	PushUnreadCount(accountID int64, count int64) int
}

// InboxService persists events as inbox rows and pushes them to any live
// connection of the account.
type InboxService struct {
	repo   notification.Repository
	pusher Pusher
	logger *zap.Logger
}

func NewInboxService(repo notification.Repository, pusher Pusher, logger *zap.Logger) *InboxService {
	return &InboxService{repo: repo, pusher: pusher, logger: logger}
}

// Notify stores ev and pushes it. The event counts as queued once the row
// is stored; the push is best effort.
func (s *InboxService) Notify(ctx context.Context, ev notification.Event) error {
	_, err := s.CreateAndPush(ctx, ev)
	return err
}

// CreateAndPush creates an inbox row for ev and pushes it via WebSocket.
func (s *InboxService) CreateAndPush(ctx context.Context, ev notification.Event) (*notification.Notification, error) {
	title, message := Render(ev)
	n := &notification.Notification{
		AccountID: ev.AccountID,
		Kind:      ev.Kind,
		Title:     title,
		Message:   message,
		Payload:   ev.Payload,
		CreatedAt: ev.OccurredAt,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.pusher != nil {
		s.pusher.PushNotification(n.AccountID, &websocket.NotificationData{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			Payload:   n.Payload,
			CreatedAt: n.CreatedAt,
		})
	}
	return n, nil
}

// List returns one page of the account's inbox, newest first.
func (s *InboxService) List(ctx context.Context, accountID int64, filters *notification.ListFilters) (*notification.ListResponse, error) {
	if filters == nil {
		filters = &notification.ListFilters{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}

	rows, total, err := s.repo.ListByAccount(ctx, accountID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &notification.ListResponse{
		Notifications: rows,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
		TotalPages:    totalPages,
	}, nil
}

// UnreadCount counts the account's unread inbox rows.
func (s *InboxService) UnreadCount(ctx context.Context, accountID int64) (int64, error) {
	unread := false
	_, total, err := s.repo.ListByAccount(ctx, accountID, &notification.ListFilters{IsRead: &unread, Page: 1, PageSize: 1})
	return total, err
}

// MarkAsRead marks a notification as read and pushes the new unread count.
func (s *InboxService) MarkAsRead(ctx context.Context, id, accountID int64) error {
	if err := s.repo.MarkAsRead(ctx, id, accountID); err != nil {
		return err
	}

	if s.pusher != nil {
		count, err := s.UnreadCount(ctx, accountID)
		if err != nil {
			s.logger.Warn("failed to get unread count", zap.Int64("account_id", accountID), zap.Error(err))
			return nil
		}
		s.pusher.PushUnreadCount(accountID, count)
	}
	return nil
}
