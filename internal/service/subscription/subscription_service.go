// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"tainment-service/internal/cache"
	"tainment-service/internal/domain/account"
	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/metrics"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/service/lifecycle"
)

const defaultMaxAttempts = 3

// errNotDue is returned by a decide func when the account is already in
// its target state.
var errNotDue = errors.New("no transition due")

// SubscriptionService drives the lifecycle engine against the store. Every
// write re-reads the active record, decides, and commits with a version
// check; a lost race is retried a bounded number of times.
type SubscriptionService struct {
	store       subscription.Store
	accounts    account.Repository
	notifier    notification.Notifier
	cache       *cache.SubscriptionCache
	metrics     *metrics.Collector
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
}

type Option func(*SubscriptionService)

func WithClock(now func() time.Time) Option {
	return func(s *SubscriptionService) { s.now = now }
}

func WithCache(c *cache.SubscriptionCache) Option {
	return func(s *SubscriptionService) { s.cache = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *SubscriptionService) { s.metrics = m }
}

func WithMaxAttempts(n int) Option {
	return func(s *SubscriptionService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewSubscriptionService(
	store subscription.Store,
	accounts account.Repository,
	notifier notification.Notifier,
	logger *zap.Logger,
	opts ...Option,
) *SubscriptionService {
	s := &SubscriptionService{
		store:       store,
		accounts:    accounts,
		notifier:    notifier,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock in UTC.
func (s *SubscriptionService) Now() time.Time {
	return s.now().UTC()
}

// EnsureAccount creates the account and its Basic subscription on first
// interaction and returns the active subscription.
func (s *SubscriptionService) EnsureAccount(ctx context.Context, accountID int64, displayName string) (*subscription.Subscription, error) {
	if accountID <= 0 {
		return nil, xerrors.Validation("invalid account")
	}

	_, created, err := s.accounts.Ensure(ctx, accountID, displayName)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("account created", zap.Int64("account_id", accountID))
	}

	current, err := s.current(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}

	d := lifecycle.Initial(accountID, s.Now())
	sub, err := s.store.ApplyTransition(ctx, accountID, nil, *d.Create, d.History)
	if errors.Is(err, xerrors.ErrConcurrentModification) {
		// Another request created it first.
		return s.current(ctx, accountID)
	}
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, accountID, d)
	return sub, nil
}

// GetActiveSubscription is the read-through path. It may serve a record up
// to the cache TTL old; the write path never uses it.
func (s *SubscriptionService) GetActiveSubscription(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	if sub, ok := s.cache.Get(accountID); ok {
		return sub, nil
	}
	sub, err := s.store.GetActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(sub)
	return sub, nil
}

// GetStatus classifies the account's subscription at read time.
func (s *SubscriptionService) GetStatus(ctx context.Context, accountID int64, displayName string) (*subscription.StatusView, error) {
	if _, err := s.EnsureAccount(ctx, accountID, displayName); err != nil {
		return nil, err
	}
	sub, err := s.GetActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.view(sub), nil
}

func (s *SubscriptionService) view(sub *subscription.Subscription) *subscription.StatusView {
	now := s.Now()
	effective := subscription.EffectiveTier(sub, now)
	return &subscription.StatusView{
		AccountID:     sub.AccountID,
		Subscription:  sub,
		State:         subscription.Classify(sub, now),
		EffectiveTier: effective,
		DaysRemaining: subscription.DaysRemaining(sub, now),
		Features:      subscription.Catalog[effective].Features,
	}
}

// current reads the authoritative active record; nil when the account has none.
func (s *SubscriptionService) current(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	sub, err := s.store.GetActiveSubscription(ctx, accountID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

type decideFunc func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error)

func (s *SubscriptionService) transition(ctx context.Context, accountID int64, op string, decide decideFunc) (*subscription.Subscription, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.current(ctx, accountID)
		if err != nil {
			return nil, err
		}

		d, err := decide(current, s.Now())
		if err != nil {
			return nil, err
		}

		sub, err := s.commit(ctx, accountID, current, d)
		if err == nil {
			s.afterCommit(ctx, accountID, d)
			return sub, nil
		}
		if !errors.Is(err, xerrors.ErrConcurrentModification) {
			return nil, err
		}

		s.logger.Debug("transition lost a concurrent update, retrying",
			zap.String("op", op),
			zap.Int64("account_id", accountID),
			zap.Int("attempt", attempt),
		)
	}

	s.logger.Warn("transition retries exhausted",
		zap.String("op", op),
		zap.Int64("account_id", accountID),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, xerrors.Concurrent("subscription is being updated by another request; please try again")
}

func (s *SubscriptionService) commit(ctx context.Context, accountID int64, current *subscription.Subscription, d lifecycle.Decision) (*subscription.Subscription, error) {
	if d.Extend != nil {
		return s.store.ExtendInPlace(ctx, *d.Extend, d.History)
	}
	return s.store.ApplyTransition(ctx, accountID, current, *d.Create, d.History)
}

func (s *SubscriptionService) afterCommit(ctx context.Context, accountID int64, d lifecycle.Decision) {
	s.cache.Invalidate(accountID)
	s.metrics.RecordTransition(string(d.History.Kind))

	s.logger.Info("subscription transition committed",
		zap.Int64("account_id", accountID),
		zap.String("kind", string(d.History.Kind)),
		zap.String("new_tier", string(d.History.NewTier)),
	)

	for _, ev := range d.Events {
		s.Dispatch(ctx, ev)
	}
}

// Dispatch hands an event to the sink. Delivery failures are logged only.
func (s *SubscriptionService) Dispatch(ctx context.Context, ev notification.Event) {
	if s.notifier == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("failed to deliver notification",
			zap.Int64("account_id", ev.AccountID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
