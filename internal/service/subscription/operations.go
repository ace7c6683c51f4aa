package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/service/lifecycle"
)

const defaultAdminDays = 30

// PurchaseKind is how a paid checkout will be applied.
type PurchaseKind string

const (
	PurchaseUpgrade PurchaseKind = "upgrade"
	PurchaseRenew   PurchaseKind = "renew"
)

// PlanPurchase decides how buying tier would be applied to current. Buying
// the current paid tier renews it, buying a higher one upgrades, and Basic
// or a lower tier is rejected.
func PlanPurchase(current *subscription.Subscription, tier subscription.Tier, now time.Time) (PurchaseKind, error) {
	if !tier.Valid() {
		return "", xerrors.Validation("unknown tier; choose Premium or Pro", "tier", tier)
	}
	effective := subscription.EffectiveTier(current, now)
	if !tier.IsPaid() {
		if effective.IsPaid() {
			return "", xerrors.Validation(lifecycle.DowngradeGuidance, "current_tier", effective, "requested_tier", tier)
		}
		return "", xerrors.Validation("the Basic tier is free and cannot be purchased", "tier", tier)
	}
	if current != nil && current.Tier == tier {
		return PurchaseRenew, nil
	}
	if tier.Rank() < effective.Rank() {
		return "", xerrors.Validation(lifecycle.DowngradeGuidance, "current_tier", effective, "requested_tier", tier)
	}
	return PurchaseUpgrade, nil
}

// CheckPurchase is PlanPurchase against the account's current record.
func (s *SubscriptionService) CheckPurchase(ctx context.Context, accountID int64, tier subscription.Tier) (PurchaseKind, error) {
	current, err := s.current(ctx, accountID)
	if err != nil {
		return "", err
	}
	return PlanPurchase(current, tier, s.Now())
}

// ApplyPurchase applies a paid checkout, re-planning against the record
// read at commit time.
func (s *SubscriptionService) ApplyPurchase(ctx context.Context, accountID int64, tier subscription.Tier, days int, pay *lifecycle.Payment) (*subscription.Subscription, error) {
	return s.transition(ctx, accountID, "purchase", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		kind, err := PlanPurchase(current, tier, now)
		if err != nil {
			return lifecycle.Decision{}, err
		}
		if kind == PurchaseRenew {
			return lifecycle.Renew(accountID, current, days, pay, now)
		}
		return lifecycle.Upgrade(accountID, current, tier, days, pay, now)
	})
}

// Upgrade moves the account to a strictly higher tier.
func (s *SubscriptionService) Upgrade(ctx context.Context, accountID int64, tier subscription.Tier, days int, pay *lifecycle.Payment) (*subscription.Subscription, error) {
	return s.transition(ctx, accountID, "upgrade", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		return lifecycle.Upgrade(accountID, current, tier, days, pay, now)
	})
}

// Renew extends the account's current paid tier.
func (s *SubscriptionService) Renew(ctx context.Context, accountID int64, days int, pay *lifecycle.Payment) (*subscription.Subscription, error) {
	return s.transition(ctx, accountID, "renew", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		return lifecycle.Renew(accountID, current, days, pay, now)
	})
}

// Extend adds days to the active record in place.
func (s *SubscriptionService) Extend(ctx context.Context, accountID int64, days int, actorID *int64, reason string) (*subscription.Subscription, error) {
	return s.transition(ctx, accountID, "extend", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		return lifecycle.Extend(current, days, actorID, reason, now)
	})
}

// AdminUpgrade sets any tier for the account, bypassing the rank check.
func (s *SubscriptionService) AdminUpgrade(ctx context.Context, adminID, accountID int64, req *subscription.AdminUpgradeRequest) (*subscription.Subscription, error) {
	tier, ok := subscription.ParseTier(req.Tier)
	if !ok {
		return nil, xerrors.Validation("unknown tier; choose Basic, Premium or Pro", "tier", req.Tier)
	}
	days := req.DurationDays
	if days == 0 {
		days = defaultAdminDays
	}

	if _, err := s.EnsureAccount(ctx, accountID, ""); err != nil {
		return nil, err
	}

	sub, err := s.transition(ctx, accountID, "admin_upgrade", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		return lifecycle.AdminOverride(accountID, current, tier, days, adminID, req.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin changed subscription",
		zap.Int64("admin_id", adminID),
		zap.Int64("account_id", accountID),
		zap.String("tier", string(tier)),
		zap.Int("days", days),
	)
	return sub, nil
}

// AdminExtend extends the account's active paid record.
func (s *SubscriptionService) AdminExtend(ctx context.Context, adminID, accountID int64, req *subscription.AdminExtendRequest) (*subscription.Subscription, error) {
	sub, err := s.Extend(ctx, accountID, req.Days, &adminID, req.Reason)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin extended subscription",
		zap.Int64("admin_id", adminID),
		zap.Int64("account_id", accountID),
		zap.Int("days", req.Days),
	)
	return sub, nil
}

// ExpireGrace downgrades the account to Basic when its active record is past
// grace. applied is false when nothing was due, which keeps the sweep
// idempotent.
func (s *SubscriptionService) ExpireGrace(ctx context.Context, accountID int64) (applied bool, err error) {
	_, err = s.transition(ctx, accountID, "grace_expiry", func(current *subscription.Subscription, now time.Time) (lifecycle.Decision, error) {
		d, ok := lifecycle.ExpireGrace(current, now)
		if !ok {
			return lifecycle.Decision{}, errNotDue
		}
		return d, nil
	})
	if errors.Is(err, errNotDue) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to expire grace for account %d: %w", accountID, err)
	}
	return true, nil
}

// MarkReminded records that the expiring-soon notice was queued for the
// scanned version of sub. marked is false when the record moved since the
// scan; the next notice sweep evaluates the new window.
func (s *SubscriptionService) MarkReminded(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	marked, err := s.store.MarkReminderSent(ctx, sub.ID, sub.Version)
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(sub.AccountID)
	return marked, nil
}

// TransactionApplied reports whether transactionID paid for any transition of
// the account, including records since replaced or extended.
func (s *SubscriptionService) TransactionApplied(ctx context.Context, accountID int64, transactionID string) (bool, error) {
	applied, err := s.store.HasTransaction(ctx, accountID, transactionID)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", transactionID, err)
	}
	return applied, nil
}
