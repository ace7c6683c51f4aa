// internal/domain/subscription/repository.go
package subscription

import (
	"context"
	"time"
)

// Store owns subscription persistence. All mutation goes through
// ApplyTransition and ExtendInPlace; both are atomic.
type Store interface {
	GetActiveSubscription(ctx context.Context, accountID int64) (*Subscription, error)

	// ApplyTransition deactivates current (nil when the account has none),
	// inserts the new record and appends the history entry as one unit. It
	// fails with ErrConcurrentModification when current is no longer the
	// active record, or when current is nil but an active record exists.
	ApplyTransition(ctx context.Context, accountID int64, current *Subscription, fields NewFields, entry HistoryEntry) (*Subscription, error)

	// ExtendInPlace moves end and grace_end of an active record, clears its
	// reminder flag and appends the history entry. It fails with
	// ErrConcurrentModification when the record is no longer active or its
	// version moved.
	ExtendInPlace(ctx context.Context, fields ExtendFields, entry HistoryEntry) (*Subscription, error)

	// MarkReminderSent sets the reminder flag only while the record is still
	// active at expectedVersion. marked is false when it moved since the scan.
	MarkReminderSent(ctx context.Context, subscriptionID, expectedVersion int64) (marked bool, err error)

	// HasTransaction reports whether any transition of the account, active
	// or historical, was paid by transactionID.
	HasTransaction(ctx context.Context, accountID int64, transactionID string) (bool, error)

	// Reporting
	ListSubscribers(ctx context.Context, filters *SubscriberFilters) ([]Subscription, error)
	CountByTier(ctx context.Context) (map[Tier]int64, error)
	History(ctx context.Context, accountID int64, limit int) ([]HistoryEntry, error)
	CountTransitions(ctx context.Context, since time.Time) ([]TransitionCount, error)

	// Due-for-scan queries
	DueForReminder(ctx context.Context, before time.Time) ([]Subscription, error)
	InGrace(ctx context.Context, now time.Time) ([]Subscription, error)
	GraceExpired(ctx context.Context, now time.Time) ([]Subscription, error)
}

// SubscriberFilters narrows ListSubscribers. Nil fields match everything.
type SubscriberFilters struct {
	Tier       *Tier `form:"tier"`
	ActiveOnly bool  `form:"active"`
	Limit      int   `form:"limit"`
}

// TransitionCount aggregates history rows by kind and tier pair.
type TransitionCount struct {
	Kind         TransitionKind
	PreviousTier *Tier
	NewTier      Tier
	Count        int64
}
