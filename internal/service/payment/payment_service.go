// internal/service/payment/payment_service.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/metrics"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/lock"
	"tainment-service/internal/service/lifecycle"
	subsvc "tainment-service/internal/service/subscription"
)

const (
	defaultHistoryLimit = 5
	maxHistoryLimit     = 50
	applyLockTTL        = 30 * time.Second
	reasonNotVerified   = "payment not verified"
	reasonDeclined      = "payment declined"
)

// CheckoutLimiter bounds how many checkout sessions an account may open.
type CheckoutLimiter interface {
	CheckCheckoutAttempt(ctx context.Context, accountID int64) (bool, error)
}

type Config struct {
	CheckoutTimeout time.Duration
	Currency        string
	PaymentMethod   string
}

// PaymentService bridges checkout sessions and gateway results to the
// lifecycle engine. The ledger row created with each session is the
// idempotency record: a transaction id is applied at most once.
type PaymentService struct {
	subs     *subsvc.SubscriptionService
	ledger   payment.Ledger
	sessions payment.SessionStore
	gateway  payment.Gateway
	locks    lock.Locker
	limiter  CheckoutLimiter
	ids      *IDGenerator
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
	cfg      Config
}

type Option func(*PaymentService)

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) { s.now = now }
}

func WithLimiter(l CheckoutLimiter) Option {
	return func(s *PaymentService) { s.limiter = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *PaymentService) { s.metrics = m }
}

func NewPaymentService(
	subs *subsvc.SubscriptionService,
	ledger payment.Ledger,
	sessions payment.SessionStore,
	gateway payment.Gateway,
	locks lock.Locker,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *PaymentService {
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = 30 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.PaymentMethod == "" {
		cfg.PaymentMethod = "mock_gateway"
	}
	s := &PaymentService{
		subs:     subs,
		ledger:   ledger,
		sessions: sessions,
		gateway:  gateway,
		locks:    locks,
		ids:      NewIDGenerator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCheckoutSession prices the purchase, opens a gateway session and
// records a pending ledger row under a fresh transaction id.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, accountID int64, tier subscription.Tier, months int) (*payment.CheckoutSession, error) {
	quote, err := QuotePrice(tier, months)
	if err != nil {
		return nil, err
	}
	if _, err := s.subs.EnsureAccount(ctx, accountID, ""); err != nil {
		return nil, err
	}
	if _, err := s.subs.CheckPurchase(ctx, accountID, tier); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		allowed, err := s.limiter.CheckCheckoutAttempt(ctx, accountID)
		if err != nil {
			s.logger.Warn("checkout rate limit check failed", zap.Int64("account_id", accountID), zap.Error(err))
		} else if !allowed {
			s.metrics.RecordCheckout("rate_limited")
			return nil, xerrors.RateLimited("too many checkout attempts; please try again later")
		}
	}

	now := s.now().UTC()
	session := &payment.CheckoutSession{
		TransactionID:  s.ids.New(now),
		AccountID:      accountID,
		Tier:           quote.Tier,
		DurationMonths: quote.Months,
		DurationDays:   quote.Days,
		BasePrice:      quote.BasePrice,
		DiscountRate:   quote.DiscountRate,
		Price:          quote.Price,
		Currency:       s.cfg.Currency,
		Status:         payment.SessionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.CheckoutTimeout),
	}

	ref, err := s.gateway.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway session: %w", err)
	}
	session.GatewayRef = ref

	tx := &payment.Transaction{
		TransactionID: session.TransactionID,
		AccountID:     accountID,
		Amount:        session.Price,
		Currency:      session.Currency,
		Status:        payment.StatusPending,
		Tier:          session.Tier,
		DurationDays:  session.DurationDays,
		CreatedAt:     now,
	}
	if err := s.ledger.CreatePending(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session, s.cfg.CheckoutTimeout); err != nil {
		return nil, err
	}

	s.metrics.RecordCheckout("created")
	s.logger.Info("checkout session created",
		zap.Int64("account_id", accountID),
		zap.String("transaction_id", session.TransactionID),
		zap.String("tier", string(session.Tier)),
		zap.Int("months", session.DurationMonths),
		zap.Float64("price", session.Price),
	)
	return session, nil
}

// RenewCheckout opens a checkout for the account's current paid tier.
func (s *PaymentService) RenewCheckout(ctx context.Context, accountID int64, months int) (*payment.CheckoutSession, error) {
	if months == 0 {
		months = 1
	}
	current, err := s.subs.EnsureAccount(ctx, accountID, "")
	if err != nil {
		return nil, err
	}
	if !current.Tier.IsPaid() {
		return nil, xerrors.Validation("the Basic tier never expires; choose Premium or Pro to upgrade")
	}
	return s.CreateCheckoutSession(ctx, accountID, current.Tier, months)
}

// ConfirmCheckout charges the session through the gateway and applies the result.
func (s *PaymentService) ConfirmCheckout(ctx context.Context, accountID int64, transactionID string) (*payment.Outcome, error) {
	session, err := s.sessions.Get(ctx, transactionID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return s.replay(ctx, accountID, transactionID)
	}
	if err != nil {
		return nil, err
	}
	if session.AccountID != accountID {
		return nil, xerrors.NotFound("checkout session not found or expired")
	}

	now := s.now()
	if session.Expired(now) {
		s.expire(ctx, session)
		return nil, xerrors.Validation("checkout session expired; please start a new checkout",
			"tier", session.Tier, "months", session.DurationMonths)
	}

	release, ok, err := s.locks.TryAcquire(ctx, "checkout:"+transactionID, applyLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.Validation("this payment is already being processed")
	}
	defer release()

	session.Status = payment.SessionProcessing
	if err := s.sessions.Save(ctx, session, session.ExpiresAt.Sub(now)); err != nil {
		s.logger.Warn("failed to mark checkout session processing", zap.String("transaction_id", transactionID), zap.Error(err))
	}

	result, err := s.gateway.ProcessPayment(ctx, session)
	if err != nil {
		// The ledger row stays pending; a late gateway callback still applies.
		return nil, fmt.Errorf("failed to process payment: %w", err)
	}

	outcome, err := s.ApplyPaymentResult(ctx, transactionID, result)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, transactionID); err != nil {
		s.logger.Warn("failed to discard checkout session", zap.String("transaction_id", transactionID), zap.Error(err))
	}
	return outcome, outcomeError(outcome, session.Tier, session.DurationMonths)
}

// CancelCheckout discards a pending session and labels its ledger row
// cancelled. A late gateway result can still close the row.
func (s *PaymentService) CancelCheckout(ctx context.Context, accountID int64, transactionID string) error {
	session, err := s.sessions.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if session.AccountID != accountID {
		return xerrors.NotFound("checkout session not found or expired")
	}

	release, ok, err := s.locks.TryAcquire(ctx, "checkout:"+transactionID, applyLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Validation("this payment is already being processed and can no longer be cancelled")
	}
	defer release()

	if err := s.sessions.Delete(ctx, transactionID); err != nil {
		return err
	}
	s.abandon(ctx, transactionID, payment.StatusCancelled)
	s.metrics.RecordCheckout("cancelled")
	s.logger.Info("checkout session cancelled",
		zap.Int64("account_id", accountID),
		zap.String("transaction_id", transactionID),
	)
	return nil
}

// ApplyPaymentResult applies a terminal gateway result to the ledger row for
// transactionID. Applying an id that is already terminal returns the stored
// row with Replayed set and changes nothing.
func (s *PaymentService) ApplyPaymentResult(ctx context.Context, transactionID string, result payment.GatewayResult) (*payment.Outcome, error) {
	release, err := s.locks.Acquire(ctx, "payment:"+transactionID, applyLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.ledger.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		s.logger.Info("payment result replayed",
			zap.String("transaction_id", transactionID),
			zap.String("status", string(tx.Status)),
		)
		return &payment.Outcome{Transaction: tx, Replayed: true}, nil
	}

	if result.Status == payment.GatewayCompleted {
		v, err := s.gateway.Verify(ctx, transactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to verify payment: %w", err)
		}
		if v != payment.Verified {
			result = payment.GatewayResult{Status: payment.GatewayFailed, Reason: reasonNotVerified}
		}
	}

	if result.Status != payment.GatewayCompleted {
		reason := result.Reason
		if reason == "" {
			reason = reasonDeclined
		}
		return s.finish(ctx, tx, payment.StatusFailed, &reason)
	}

	// A grant that committed before the ledger row closed is never repeated,
	// even when later transitions replaced or extended that record.
	applied, err := s.subs.TransactionApplied(ctx, tx.AccountID, transactionID)
	if err != nil {
		return nil, err
	}
	if !applied {
		pay := &lifecycle.Payment{TransactionID: transactionID, Method: s.cfg.PaymentMethod}
		_, err := s.subs.ApplyPurchase(ctx, tx.AccountID, tx.Tier, tx.DurationDays, pay)
		if errors.Is(err, xerrors.ErrValidation) {
			// The account moved since checkout and the purchase no longer applies.
			reason := xerrors.UserMessage(err, "purchase no longer applies")
			return s.finish(ctx, tx, payment.StatusRefunded, &reason)
		}
		if err != nil {
			return nil, err
		}
	}
	return s.finish(ctx, tx, payment.StatusCompleted, nil)
}

func (s *PaymentService) finish(ctx context.Context, tx *payment.Transaction, status payment.TransactionStatus, reason *string) (*payment.Outcome, error) {
	row, changed, err := s.ledger.MarkTerminal(ctx, tx.TransactionID, status, reason, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return &payment.Outcome{Transaction: row, Replayed: true}, nil
	}

	s.metrics.RecordPayment(string(row.Status))
	fields := []zap.Field{
		zap.Int64("account_id", row.AccountID),
		zap.String("transaction_id", row.TransactionID),
		zap.String("status", string(row.Status)),
	}
	if reason != nil {
		fields = append(fields, zap.String("reason", *reason))
	}
	s.logger.Info("payment result applied", fields...)

	kind := notification.KindPaymentCompleted
	if row.Status != payment.StatusCompleted {
		kind = notification.KindPaymentFailed
	}
	payload := map[string]interface{}{
		"transaction_id": row.TransactionID,
		"tier":           string(row.Tier),
		"amount":         row.Amount,
		"currency":       row.Currency,
		"status":         string(row.Status),
	}
	if reason != nil {
		payload["reason"] = *reason
	}
	s.subs.Dispatch(ctx, notification.Event{
		AccountID:  row.AccountID,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	})

	return &payment.Outcome{Transaction: row}, nil
}

// replay answers a confirm whose session is gone from the ledger row.
func (s *PaymentService) replay(ctx context.Context, accountID int64, transactionID string) (*payment.Outcome, error) {
	tx, err := s.ledger.FindByTransactionID(ctx, transactionID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.NotFound("checkout session not found or expired")
	}
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID {
		return nil, xerrors.NotFound("checkout session not found or expired")
	}
	if !tx.Status.Terminal() {
		return nil, xerrors.Validation("checkout session expired; please start a new checkout")
	}

	outcome := &payment.Outcome{Transaction: tx, Replayed: true}
	return outcome, outcomeError(outcome, tx.Tier, tx.DurationDays/DaysPerMonth)
}

func (s *PaymentService) expire(ctx context.Context, session *payment.CheckoutSession) {
	if err := s.sessions.Delete(ctx, session.TransactionID); err != nil {
		s.logger.Warn("failed to discard expired checkout session", zap.String("transaction_id", session.TransactionID), zap.Error(err))
	}
	s.abandon(ctx, session.TransactionID, payment.StatusExpired)
	s.metrics.RecordCheckout("expired")
	s.logger.Info("checkout session expired",
		zap.Int64("account_id", session.AccountID),
		zap.String("transaction_id", session.TransactionID),
	)
}

// abandon labels the ledger row of a discarded session. Failures only log:
// the row stays pending and still reads as expired once the timeout passes.
func (s *PaymentService) abandon(ctx context.Context, transactionID string, status payment.TransactionStatus) {
	if _, err := s.ledger.MarkAbandoned(ctx, transactionID, status); err != nil {
		s.logger.Warn("failed to label abandoned payment",
			zap.String("transaction_id", transactionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// PaymentHistory lists the account's ledger rows, newest first. A row still
// pending past the checkout timeout lost its session to the TTL and is
// reported as expired.
func (s *PaymentService) PaymentHistory(ctx context.Context, accountID int64, limit int) ([]payment.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := s.ledger.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.cfg.CheckoutTimeout)
	for i := range rows {
		if rows[i].Status == payment.StatusPending && rows[i].CreatedAt.Before(cutoff) {
			rows[i].Status = payment.StatusExpired
		}
	}
	return rows, nil
}

// GetSession returns a live checkout session owned by the account.
func (s *PaymentService) GetSession(ctx context.Context, accountID int64, transactionID string) (*payment.CheckoutSession, error) {
	session, err := s.sessions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if session.AccountID != accountID {
		return nil, xerrors.NotFound("checkout session not found or expired")
	}
	return session, nil
}

func outcomeError(o *payment.Outcome, tier subscription.Tier, months int) error {
	if o.Transaction.Status == payment.StatusCompleted {
		return nil
	}
	reason := reasonDeclined
	if o.Transaction.FailureReason != nil {
		reason = *o.Transaction.FailureReason
	}
	return xerrors.PaymentFailed(reason, "tier", tier, "months", months)
}
