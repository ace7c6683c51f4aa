// internal/domain/payment/entity.go
package payment

import (
	"context"
	"time"

	"tainment-service/internal/domain/subscription"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusRefunded  TransactionStatus = "refunded"

	// Abandoned rows had their session discarded. A late gateway result may
	// still close them.
	StatusCancelled TransactionStatus = "cancelled"
	StatusExpired   TransactionStatus = "expired"
)

// Terminal statuses make a ledger row immutable.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Open statuses still accept a gateway result.
func (s TransactionStatus) Open() bool {
	return s == StatusPending || s == StatusCancelled || s == StatusExpired
}

// Transaction is a ledger row. TransactionID is the idempotency key.
type Transaction struct {
	ID            int64             `json:"id" db:"id"`
	TransactionID string            `json:"transaction_id" db:"transaction_id"`
	AccountID     int64             `json:"account_id" db:"account_id"`
	Amount        float64           `json:"amount" db:"amount"`
	Currency      string            `json:"currency" db:"currency"`
	Status        TransactionStatus `json:"status" db:"status"`
	Tier          subscription.Tier `json:"tier" db:"tier"`
	DurationDays  int               `json:"duration_days" db:"duration_days"`
	FailureReason *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionExpired    SessionStatus = "expired"
)

// CheckoutSession is ephemeral and lives only until ExpiresAt.
type CheckoutSession struct {
	TransactionID  string            `json:"transaction_id"`
	AccountID      int64             `json:"account_id"`
	Tier           subscription.Tier `json:"tier"`
	DurationMonths int               `json:"duration_months"`
	DurationDays   int               `json:"duration_days"`
	BasePrice      float64           `json:"base_price"`
	DiscountRate   float64           `json:"discount_rate"`
	Price          float64           `json:"price"`
	Currency       string            `json:"currency"`
	GatewayRef     string            `json:"gateway_ref,omitempty"`
	Status         SessionStatus     `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// Expired reports whether the session timeout has passed.
func (s *CheckoutSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type GatewayStatus string

const (
	GatewayCompleted GatewayStatus = "completed"
	GatewayFailed    GatewayStatus = "failed"
)

// GatewayResult is the terminal outcome of one payment attempt.
type GatewayResult struct {
	Status GatewayStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

type Verification string

const (
	Verified   Verification = "verified"
	Unverified Verification = "unverified"
)

// Gateway is the tri-state payment contract real integrations must keep.
type Gateway interface {
	CreateSession(ctx context.Context, session *CheckoutSession) (gatewayRef string, err error)
	ProcessPayment(ctx context.Context, session *CheckoutSession) (GatewayResult, error)
	Verify(ctx context.Context, transactionID string) (Verification, error)
}

// Ledger stores payment transactions.
type Ledger interface {
	CreatePending(ctx context.Context, t *Transaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// MarkTerminal moves an open row to a terminal status. changed is false
	// when the row was already terminal; the stored row is returned either way.
	MarkTerminal(ctx context.Context, transactionID string, status TransactionStatus, reason *string, at time.Time) (t *Transaction, changed bool, err error)
	// MarkAbandoned labels a pending row cancelled or expired. Rows in any
	// other status are left alone and changed is false.
	MarkAbandoned(ctx context.Context, transactionID string, status TransactionStatus) (changed bool, err error)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
}

// SessionStore keeps checkout sessions until their TTL elapses.
type SessionStore interface {
	Save(ctx context.Context, session *CheckoutSession, ttl time.Duration) error
	Get(ctx context.Context, transactionID string) (*CheckoutSession, error)
	Delete(ctx context.Context, transactionID string) error
}
