package subscription

import (
	"context"
	"math"
	"time"

	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

const (
	defaultHistoryLimit     = 10
	maxHistoryLimit         = 100
	defaultSubscribersLimit = 100
	maxSubscribersLimit     = 1000
	defaultMetricsDays      = 30
	maxMetricsDays          = 365
)

// Tiers returns the catalog in ascending rank.
func (s *SubscriptionService) Tiers() []subscription.TierInfo {
	out := make([]subscription.TierInfo, 0, len(subscription.Tiers))
	for _, t := range subscription.Tiers {
		out = append(out, subscription.Catalog[t])
	}
	return out
}

// CheckAccess reports whether the account's effective tier meets required.
func (s *SubscriptionService) CheckAccess(ctx context.Context, accountID int64, required subscription.Tier) (*subscription.AccessResult, error) {
	if !required.Valid() {
		return nil, xerrors.Validation("unknown tier; choose Basic, Premium or Pro", "tier", required)
	}
	if _, err := s.EnsureAccount(ctx, accountID, ""); err != nil {
		return nil, err
	}
	sub, err := s.GetActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}

	effective := subscription.EffectiveTier(sub, s.Now())
	return &subscription.AccessResult{
		RequiredTier:  required,
		EffectiveTier: effective,
		HasAccess:     effective.Rank() >= required.Rank(),
	}, nil
}

// SimulateUpgrade compares the account's effective tier with target.
func (s *SubscriptionService) SimulateUpgrade(ctx context.Context, accountID int64, target subscription.Tier) (*subscription.UpgradeSimulation, error) {
	if !target.Valid() {
		return nil, xerrors.Validation("unknown tier; choose Basic, Premium or Pro", "tier", target)
	}
	if _, err := s.EnsureAccount(ctx, accountID, ""); err != nil {
		return nil, err
	}
	sub, err := s.GetActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}

	from := subscription.EffectiveTier(sub, s.Now())
	if from == target {
		return nil, xerrors.Validation("you are already on this tier", "tier", target)
	}

	cur, next := subscription.Catalog[from], subscription.Catalog[target]
	return &subscription.UpgradeSimulation{
		CurrentTier:     from,
		TargetTier:      target,
		IsUpgrade:       target.Rank() > from.Rank(),
		CurrentPrice:    cur.Price,
		TargetPrice:     next.Price,
		PriceDifference: math.Round((next.Price-cur.Price)*100) / 100,
		FeaturesGained:  difference(next.Features, cur.Features),
		FeaturesLost:    difference(cur.Features, next.Features),
	}, nil
}

// History returns the account's transitions, most recent first.
func (s *SubscriptionService) History(ctx context.Context, accountID int64, limit int) ([]subscription.HistoryEntry, error) {
	return s.store.History(ctx, accountID, clamp(limit, defaultHistoryLimit, maxHistoryLimit))
}

func (s *SubscriptionService) ListSubscribers(ctx context.Context, filters *subscription.SubscriberFilters) ([]subscription.Subscription, error) {
	if filters == nil {
		filters = &subscription.SubscriberFilters{}
	}
	if filters.Tier != nil && !filters.Tier.Valid() {
		return nil, xerrors.Validation("unknown tier filter", "tier", *filters.Tier)
	}
	filters.Limit = clamp(filters.Limit, defaultSubscribersLimit, maxSubscribersLimit)
	return s.store.ListSubscribers(ctx, filters)
}

// GetMetrics aggregates the last days of transitions by their kind tag.
func (s *SubscriptionService) GetMetrics(ctx context.Context, days int) (*subscription.Metrics, error) {
	days = clamp(days, defaultMetricsDays, maxMetricsDays)
	now := s.Now()

	byTier, err := s.store.CountByTier(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountTransitions(ctx, now.Add(-time.Duration(days)*subscription.Day))
	if err != nil {
		return nil, err
	}

	m := &subscription.Metrics{
		SubscribersByTier: make(map[subscription.Tier]int64, len(subscription.Tiers)),
		PeriodDays:        days,
		GeneratedAt:       now,
	}
	for _, t := range subscription.Tiers {
		m.SubscribersByTier[t] = byTier[t]
		m.TotalSubscribers += byTier[t]
	}

	for _, c := range counts {
		prevRank := -1
		if c.PreviousTier != nil {
			prevRank = c.PreviousTier.Rank()
		}
		switch c.Kind {
		case subscription.KindInitial:
			m.NewSubscribers += c.Count
		case subscription.KindUpgrade:
			m.Upgrades += c.Count
		case subscription.KindAdmin:
			switch {
			case c.NewTier.Rank() > prevRank:
				m.Upgrades += c.Count
			case c.NewTier.Rank() < prevRank:
				m.AdminDowngrades += c.Count
			default:
				m.Extensions += c.Count
			}
		case subscription.KindGraceExpiry:
			m.Expirations += c.Count
		case subscription.KindExtend, subscription.KindRenew:
			m.Extensions += c.Count
		}
	}
	return m, nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// difference returns the items of a not present in b.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, x := range b {
		seen[x] = struct{}{}
	}
	out := make([]string, 0)
	for _, x := range a {
		if _, ok := seen[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}
