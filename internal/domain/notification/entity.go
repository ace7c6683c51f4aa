// internal/domain/notification/entity.go
package notification

import (
	"context"
	"database/sql"
	"time"
)

type EventKind string

const (
	KindExpiringSoon     EventKind = "expiring_soon"
	KindDowngraded       EventKind = "downgraded"
	KindUpgraded         EventKind = "upgraded"
	KindExtended         EventKind = "extended"
	KindPaymentCompleted EventKind = "payment_completed"
	KindPaymentFailed    EventKind = "payment_failed"
)

// Title is the human heading used by inbox and push sinks.
func (k EventKind) Title() string {
	switch k {
	case KindExpiringSoon:
		return "Your subscription is expiring soon"
	case KindDowngraded:
		return "Your subscription has ended"
	case KindUpgraded:
		return "Subscription upgraded"
	case KindExtended:
		return "Subscription extended"
	case KindPaymentCompleted:
		return "Payment received"
	case KindPaymentFailed:
		return "Payment failed"
	}
	return string(k)
}

// Event is what the engine hands to a sink.
type Event struct {
	ID         string                 `json:"id"`
	AccountID  int64                  `json:"account_id"`
	Kind       EventKind              `json:"kind"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Notifier is the sink contract. A returned error means the event was not
// queued; callers log it and never fail the transition because of it.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Notification is an inbox row.
type Notification struct {
	ID        int64                  `json:"id" db:"id"`
	AccountID int64                  `json:"account_id" db:"account_id"`
	Kind      EventKind              `json:"kind" db:"kind"`
	Title     string                 `json:"title" db:"title"`
	Message   string                 `json:"message" db:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty" db:"payload"`
	IsRead    bool                   `json:"is_read" db:"is_read"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	ReadAt    sql.NullTime           `json:"read_at,omitempty" db:"read_at"`
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByAccount(ctx context.Context, accountID int64, filters *ListFilters) ([]Notification, int64, error)
	MarkAsRead(ctx context.Context, id, accountID int64) error
}

// DTOs

type ListFilters struct {
	IsRead   *bool `form:"is_read"`
	Page     int   `form:"page"`
	PageSize int   `form:"page_size"`
}

type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
}
