package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"tainment-service/internal/cache"
	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/repository/memory"
	"tainment-service/internal/service/lifecycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	fail   bool
}

func (n *recordingNotifier) Notify(_ context.Context, ev notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("sink unavailable")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []notification.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.EventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

// contendedStore loses the first conflicts commits with a concurrent update.
type contendedStore struct {
	*memory.SubscriptionStore
	mu        sync.Mutex
	conflicts int
}

func (s *contendedStore) ApplyTransition(ctx context.Context, accountID int64, current *subscription.Subscription, fields subscription.NewFields, entry subscription.HistoryEntry) (*subscription.Subscription, error) {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return nil, xerrors.Concurrent("simulated")
	}
	s.mu.Unlock()
	return s.SubscriptionStore.ApplyTransition(ctx, accountID, current, fields, entry)
}

type fixture struct {
	svc      *SubscriptionService
	store    *memory.SubscriptionStore
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewSubscriptionStore(),
		notifier: &recordingNotifier{},
		clock:    &clock{now: t0},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.svc = NewSubscriptionService(f.store, memory.NewAccountRepository(), f.notifier, zap.NewNop(), opts...)
	return f
}

func TestEnsureAccountCreatesBasicOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.EnsureAccount(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierBasic, sub.Tier)

	again, err := f.svc.EnsureAccount(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	history, err := f.svc.History(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, subscription.KindInitial, history[0].Kind)
	assert.Nil(t, history[0].PreviousTier)
}

func TestUpgradeScenarioThroughGraceExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "alice")
	require.NoError(t, err)

	sub, err := f.svc.Upgrade(ctx, 1, subscription.TierPremium, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*subscription.Day), *sub.EndAt)
	assert.Equal(t, t0.Add(33*subscription.Day), *sub.GraceEndAt)

	f.clock.Advance(31 * subscription.Day)
	applied, err := f.svc.ExpireGrace(ctx, 1)
	require.NoError(t, err)
	assert.False(t, applied)

	status, err := f.svc.GetStatus(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, subscription.StateGrace, status.State)
	assert.Equal(t, subscription.TierPremium, status.Subscription.Tier)

	f.clock.Advance(3 * subscription.Day)
	applied, err = f.svc.ExpireGrace(ctx, 1)
	require.NoError(t, err)
	assert.True(t, applied)

	current, err := f.store.GetActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierBasic, current.Tier)

	history, err := f.svc.History(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, subscription.TierPremium, *history[0].PreviousTier)
	assert.Equal(t, subscription.TierBasic, history[0].NewTier)
	assert.Equal(t, subscription.KindGraceExpiry, history[0].Kind)

	assert.Equal(t, []notification.EventKind{notification.KindUpgraded, notification.KindDowngraded}, f.notifier.kinds())
}

func TestRejectedDowngradeWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)
	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)

	before, err := f.svc.History(ctx, 1, 0)
	require.NoError(t, err)

	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPremium, 30, nil)
	assert.ErrorIs(t, err, xerrors.ErrValidation)

	after, err := f.svc.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestTransitionRetriesThenSucceeds(t *testing.T) {
	store := &contendedStore{SubscriptionStore: memory.NewSubscriptionStore()}
	svc := NewSubscriptionService(store, memory.NewAccountRepository(), nil, zap.NewNop(), WithClock(func() time.Time { return t0 }))
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	store.conflicts = 2
	sub, err := svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, sub.Tier)
}

func TestTransitionSurfacesConcurrentAfterBound(t *testing.T) {
	store := &contendedStore{SubscriptionStore: memory.NewSubscriptionStore()}
	svc := NewSubscriptionService(store, memory.NewAccountRepository(), nil, zap.NewNop(),
		WithClock(func() time.Time { return t0 }), WithMaxAttempts(3))
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	store.conflicts = 3
	_, err = svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	assert.ErrorIs(t, err, xerrors.ErrConcurrentModification)
}

func TestConcurrentOperationsKeepOneActiveRecord(t *testing.T) {
	f := newFixture(t, WithMaxAttempts(50))
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)
	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPremium, 30, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _ = f.svc.Extend(ctx, 1, 5, nil, "")
			case 1:
				_, _ = f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
			case 2:
				_, _ = f.svc.AdminUpgrade(ctx, 99, 1, &subscription.AdminUpgradeRequest{Tier: "Premium", DurationDays: 10})
			default:
				_, _ = f.svc.ExpireGrace(ctx, 1)
			}
			assert.LessOrEqual(t, f.store.ActiveCount(1), 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.ActiveCount(1))
}

func TestApplyPurchaseRoutesRenewAndUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	sub, err := f.svc.ApplyPurchase(ctx, 1, subscription.TierPremium, 30, &lifecycle.Payment{TransactionID: "TX-1"})
	require.NoError(t, err)
	firstID := sub.ID

	renewed, err := f.svc.ApplyPurchase(ctx, 1, subscription.TierPremium, 90, &lifecycle.Payment{TransactionID: "TX-2"})
	require.NoError(t, err)
	assert.Equal(t, firstID, renewed.ID, "renewal extends the same record")
	assert.Equal(t, t0.Add(120*subscription.Day), *renewed.EndAt)
	assert.Equal(t, "TX-2", *renewed.TransactionID)

	upgraded, err := f.svc.ApplyPurchase(ctx, 1, subscription.TierPro, 30, &lifecycle.Payment{TransactionID: "TX-3"})
	require.NoError(t, err)
	assert.NotEqual(t, firstID, upgraded.ID)
	assert.Equal(t, subscription.TierPro, upgraded.Tier)

	_, err = f.svc.ApplyPurchase(ctx, 1, subscription.TierPremium, 30, nil)
	assert.ErrorIs(t, err, xerrors.ErrValidation)
	assert.Contains(t, err.Error(), "admin support")
}

func TestTransactionAppliedCoversReplacedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	_, err = f.svc.ApplyPurchase(ctx, 1, subscription.TierPremium, 30, &lifecycle.Payment{TransactionID: "TX-1"})
	require.NoError(t, err)
	// TX-2 renews in place and overwrites the record's transaction id.
	_, err = f.svc.ApplyPurchase(ctx, 1, subscription.TierPremium, 30, &lifecycle.Payment{TransactionID: "TX-2"})
	require.NoError(t, err)
	// TX-3 replaces the record.
	_, err = f.svc.ApplyPurchase(ctx, 1, subscription.TierPro, 30, &lifecycle.Payment{TransactionID: "TX-3"})
	require.NoError(t, err)

	for _, tx := range []string{"TX-1", "TX-2", "TX-3"} {
		applied, err := f.svc.TransactionApplied(ctx, 1, tx)
		require.NoError(t, err)
		assert.True(t, applied, tx)
	}

	applied, err := f.svc.TransactionApplied(ctx, 1, "TX-4")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = f.svc.TransactionApplied(ctx, 2, "TX-1")
	require.NoError(t, err)
	assert.False(t, applied, "another account")
}

func TestMarkRemindedSkipsMovedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanned, err := f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, 1, 30, nil, "")
	require.NoError(t, err)

	marked, err := f.svc.MarkReminded(ctx, scanned)
	require.NoError(t, err)
	assert.False(t, marked)

	current, err := f.store.GetActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.False(t, current.RenewalReminderSent)
	assert.Equal(t, t0.Add(60*subscription.Day), *current.EndAt)
}

func TestPlanPurchase(t *testing.T) {
	end := t0.Add(30 * subscription.Day)
	grace := end.Add(subscription.GraceWindow)
	premium := &subscription.Subscription{Tier: subscription.TierPremium, EndAt: &end, GraceEndAt: &grace}

	kind, err := PlanPurchase(nil, subscription.TierPro, t0)
	require.NoError(t, err)
	assert.Equal(t, PurchaseUpgrade, kind)

	kind, err = PlanPurchase(premium, subscription.TierPremium, t0)
	require.NoError(t, err)
	assert.Equal(t, PurchaseRenew, kind)

	kind, err = PlanPurchase(premium, subscription.TierPremium, t0.Add(60*subscription.Day))
	require.NoError(t, err)
	assert.Equal(t, PurchaseRenew, kind)

	_, err = PlanPurchase(premium, subscription.TierBasic, t0)
	assert.ErrorIs(t, err, xerrors.ErrValidation)

	_, err = PlanPurchase(nil, subscription.Tier("Gold"), t0)
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestExtendResetsReminderAndRejectsBasic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, 1, 10, nil, "")
	assert.ErrorIs(t, err, xerrors.ErrValidation)

	sub, err := f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)
	marked, err := f.svc.MarkReminded(ctx, sub)
	require.NoError(t, err)
	assert.True(t, marked)

	extended, err := f.svc.AdminExtend(ctx, 99, 1, &subscription.AdminExtendRequest{Days: 10})
	require.NoError(t, err)
	assert.False(t, extended.RenewalReminderSent)
	assert.Equal(t, sub.EndAt.Add(10*subscription.Day), *extended.EndAt)
	assert.Equal(t, sub.GraceEndAt.Add(10*subscription.Day), *extended.GraceEndAt)

	history, err := f.svc.History(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "Extended subscription by 10 days", *history[0].Reason)
	assert.Equal(t, int64(99), *history[0].ActorID)
}

func TestAdminUpgradeDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.AdminUpgrade(ctx, 7, 5, &subscription.AdminUpgradeRequest{Tier: "pro"})
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, sub.Tier)
	assert.Equal(t, t0.Add(30*subscription.Day), *sub.EndAt)

	history, err := f.svc.History(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, "Admin upgrade by 7", *history[0].Reason)

	_, err = f.svc.AdminUpgrade(ctx, 7, 5, &subscription.AdminUpgradeRequest{Tier: "Gold"})
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	assert.NoError(t, err)
}

func TestCheckAccessUsesEffectiveTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)
	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)

	res, err := f.svc.CheckAccess(ctx, 1, subscription.TierPremium)
	require.NoError(t, err)
	assert.True(t, res.HasAccess)

	f.clock.Advance(40 * subscription.Day)
	res, err = f.svc.CheckAccess(ctx, 1, subscription.TierPremium)
	require.NoError(t, err)
	assert.False(t, res.HasAccess, "past grace reads as Basic before the scanner runs")
	assert.Equal(t, subscription.TierBasic, res.EffectiveTier)
}

func TestSimulateUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sim, err := f.svc.SimulateUpgrade(ctx, 1, subscription.TierPro)
	require.NoError(t, err)
	assert.True(t, sim.IsUpgrade)
	assert.Equal(t, 9.99, sim.PriceDifference)
	assert.Contains(t, sim.FeaturesGained, "Exclusive content")
	assert.Contains(t, sim.FeaturesLost, "Random jokes")

	_, err = f.svc.SimulateUpgrade(ctx, 1, subscription.TierBasic)
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestGetMetricsClassifiesByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)
	_, err = f.svc.EnsureAccount(ctx, 2, "")
	require.NoError(t, err)
	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPremium, 30, nil)
	require.NoError(t, err)
	_, err = f.svc.AdminUpgrade(ctx, 9, 2, &subscription.AdminUpgradeRequest{Tier: "Pro", DurationDays: 30})
	require.NoError(t, err)
	_, err = f.svc.AdminUpgrade(ctx, 9, 2, &subscription.AdminUpgradeRequest{Tier: "Basic", Reason: "expired card"})
	require.NoError(t, err)
	_, err = f.svc.Extend(ctx, 1, 5, nil, "")
	require.NoError(t, err)

	f.clock.Advance(40 * subscription.Day)
	_, err = f.svc.ExpireGrace(ctx, 1)
	require.NoError(t, err)

	m, err := f.svc.GetMetrics(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.NewSubscribers)
	assert.Equal(t, int64(2), m.Upgrades)
	assert.Equal(t, int64(1), m.AdminDowngrades)
	assert.Equal(t, int64(1), m.Expirations)
	assert.Equal(t, int64(1), m.Extensions)
	assert.Equal(t, int64(2), m.SubscribersByTier[subscription.TierBasic])
	assert.Equal(t, int64(2), m.TotalSubscribers)
	assert.Equal(t, 60, m.PeriodDays)
}

func TestReadThroughCacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t, WithCache(cache.NewSubscriptionCache(time.Hour)))
	ctx := context.Background()
	_, err := f.svc.EnsureAccount(ctx, 1, "")
	require.NoError(t, err)

	first, err := f.svc.GetActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierBasic, first.Tier)

	_, err = f.svc.Upgrade(ctx, 1, subscription.TierPro, 30, nil)
	require.NoError(t, err)

	second, err := f.svc.GetActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, second.Tier)
}
