// Package lifecycle holds the subscription state machine. Every function is
// pure: it maps (current subscription, event, now) to a Decision and leaves
// persistence to the caller.
package lifecycle

import (
	"fmt"
	"time"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

// DowngradeGuidance is shown whenever a self-service request would lower the tier.
const DowngradeGuidance = "downgrades are not available through self-service; please contact admin support"

// Decision is the outcome of one transition. Exactly one of Create and
// Extend is set.
type Decision struct {
	Create  *subscription.NewFields
	Extend  *subscription.ExtendFields
	History subscription.HistoryEntry
	Events  []notification.Event
}

// Payment links a transition to the ledger transaction that paid for it.
type Payment struct {
	TransactionID string
	Method        string
}

func (p *Payment) fields() (*string, *string) {
	if p == nil {
		return nil, nil
	}
	var tx, method *string
	if p.TransactionID != "" {
		tx = subscription.Ptr(p.TransactionID)
	}
	if p.Method != "" {
		method = subscription.Ptr(p.Method)
	}
	return tx, method
}

// Window computes end = start + days and grace_end = end + GraceWindow in UTC.
func Window(start time.Time, days int) (end, graceEnd time.Time) {
	end = start.UTC().Add(time.Duration(days) * subscription.Day)
	return end, end.Add(subscription.GraceWindow)
}

// Initial is NoSubscription -> Basic on account creation.
func Initial(accountID int64, now time.Time) Decision {
	now = now.UTC()
	return Decision{
		Create: &subscription.NewFields{Tier: subscription.TierBasic, StartAt: now},
		History: subscription.HistoryEntry{
			AccountID: accountID,
			NewTier:   subscription.TierBasic,
			Kind:      subscription.KindInitial,
			Reason:    subscription.Ptr("account created"),
			ChangedAt: now,
		},
	}
}

// Upgrade is a self-service move to a strictly higher tier. The rank compared
// against is the effective tier, so an account past its grace window may buy
// back into the tier it lost.
func Upgrade(accountID int64, current *subscription.Subscription, target subscription.Tier, days int, pay *Payment, now time.Time) (Decision, error) {
	if err := validateTier(target); err != nil {
		return Decision{}, err
	}
	if err := validateDays(days); err != nil {
		return Decision{}, err
	}
	now = now.UTC()

	from := subscription.EffectiveTier(current, now)
	switch {
	case target.Rank() == from.Rank():
		return Decision{}, xerrors.Validation(fmt.Sprintf("you are already on the %s tier", target), "tier", target)
	case target.Rank() < from.Rank():
		return Decision{}, xerrors.Validation(DowngradeGuidance, "current_tier", from, "requested_tier", target)
	}

	d := create(accountID, current, target, days, pay, now)
	d.History.Kind = subscription.KindUpgrade
	d.History.Reason = subscription.Ptr(fmt.Sprintf("Upgraded to %s for %d days", target, days))
	d.Events = []notification.Event{event(accountID, notification.KindUpgraded, now, map[string]interface{}{
		"previous_tier": string(from),
		"new_tier":      string(target),
		"end_at":        d.Create.EndAt,
	})}
	return d, nil
}

// Renew extends the current paid tier after a payment. A record still Active
// or in Grace is extended in place; one already past grace is replaced by a
// fresh record of the same tier.
func Renew(accountID int64, current *subscription.Subscription, days int, pay *Payment, now time.Time) (Decision, error) {
	if current == nil || !current.Tier.IsPaid() {
		return Decision{}, xerrors.Validation("the Basic tier never expires and does not need renewal")
	}
	if err := validateDays(days); err != nil {
		return Decision{}, err
	}
	now = now.UTC()

	if subscription.Classify(current, now) == subscription.StateExpired {
		d := create(accountID, current, current.Tier, days, pay, now)
		d.History.Kind = subscription.KindRenew
		d.History.Reason = subscription.Ptr(fmt.Sprintf("Renewed %s for %d days", current.Tier, days))
		d.Events = []notification.Event{event(accountID, notification.KindExtended, now, map[string]interface{}{
			"tier":   string(current.Tier),
			"end_at": d.Create.EndAt,
			"days":   days,
		})}
		return d, nil
	}

	reason := fmt.Sprintf("Renewed %s for %d days", current.Tier, days)
	d, err := extend(current, days, nil, reason, subscription.KindRenew, now)
	if err != nil {
		return Decision{}, err
	}
	if tx, _ := pay.fields(); tx != nil {
		d.Extend.TransactionID = tx
		d.History.TransactionID = tx
	}
	return d, nil
}

// Extend adds days to the existing end and grace_end in place.
func Extend(current *subscription.Subscription, days int, actorID *int64, reason string, now time.Time) (Decision, error) {
	if reason == "" {
		reason = fmt.Sprintf("Extended subscription by %d days", days)
	}
	return extend(current, days, actorID, reason, subscription.KindExtend, now.UTC())
}

func extend(current *subscription.Subscription, days int, actorID *int64, reason string, kind subscription.TransitionKind, now time.Time) (Decision, error) {
	if current == nil {
		return Decision{}, xerrors.NotFound("no active subscription to extend")
	}
	if !current.Tier.IsPaid() || current.EndAt == nil {
		return Decision{}, xerrors.Validation("cannot extend a Basic subscription because it has no end date", "tier", current.Tier)
	}
	if err := validateDays(days); err != nil {
		return Decision{}, err
	}

	add := time.Duration(days) * subscription.Day
	newEnd := current.EndAt.UTC().Add(add)
	var newGrace time.Time
	if current.GraceEndAt != nil {
		newGrace = current.GraceEndAt.UTC().Add(add)
	} else {
		newGrace = newEnd.Add(subscription.GraceWindow)
	}

	prev := current.Tier
	return Decision{
		Extend: &subscription.ExtendFields{
			SubscriptionID:  current.ID,
			ExpectedVersion: current.Version,
			NewEnd:          newEnd,
			NewGraceEnd:     newGrace,
		},
		History: subscription.HistoryEntry{
			AccountID:    current.AccountID,
			PreviousTier: &prev,
			NewTier:      current.Tier,
			Kind:         kind,
			ActorID:      actorID,
			Reason:       subscription.Ptr(reason),
			ChangedAt:    now,
		},
		Events: []notification.Event{event(current.AccountID, notification.KindExtended, now, map[string]interface{}{
			"tier":   string(current.Tier),
			"end_at": newEnd,
			"days":   days,
		})},
	}, nil
}

// AdminOverride sets any tier for any duration, bypassing the rank check.
// days is ignored for Basic.
func AdminOverride(accountID int64, current *subscription.Subscription, target subscription.Tier, days int, adminID int64, reason string, now time.Time) (Decision, error) {
	if err := validateTier(target); err != nil {
		return Decision{}, err
	}
	if target.IsPaid() {
		if err := validateDays(days); err != nil {
			return Decision{}, err
		}
	}
	now = now.UTC()
	if reason == "" {
		reason = fmt.Sprintf("Admin upgrade by %d", adminID)
	}

	from := subscription.EffectiveTier(current, now)
	d := create(accountID, current, target, days, nil, now)
	d.History.Kind = subscription.KindAdmin
	d.History.ActorID = subscription.Ptr(adminID)
	d.History.Reason = subscription.Ptr(reason)

	kind := notification.KindExtended
	switch {
	case target.Rank() > from.Rank():
		kind = notification.KindUpgraded
	case target.Rank() < from.Rank():
		kind = notification.KindDowngraded
	}
	d.Events = []notification.Event{event(accountID, kind, now, map[string]interface{}{
		"previous_tier": string(from),
		"new_tier":      string(target),
		"reason":        reason,
		"end_at":        d.Create.EndAt,
	})}
	return d, nil
}

// ExpireGrace is Grace -> Basic once now > grace_end. ok is false when the
// subscription is not due, which makes re-evaluation a no-op.
func ExpireGrace(current *subscription.Subscription, now time.Time) (d Decision, ok bool) {
	now = now.UTC()
	if subscription.Classify(current, now) != subscription.StateExpired {
		return Decision{}, false
	}
	d = create(current.AccountID, current, subscription.TierBasic, 0, nil, now)
	d.History.Kind = subscription.KindGraceExpiry
	d.History.Reason = subscription.Ptr(fmt.Sprintf("%s subscription expired after grace period", current.Tier))
	d.Events = []notification.Event{event(current.AccountID, notification.KindDowngraded, now, map[string]interface{}{
		"previous_tier": string(current.Tier),
		"new_tier":      string(subscription.TierBasic),
		"reason":        string(subscription.KindGraceExpiry),
	})}
	return d, true
}

// ExpiringSoon is the reminder event for a paid record nearing its end.
func ExpiringSoon(sub *subscription.Subscription, now time.Time) notification.Event {
	now = now.UTC()
	payload := map[string]interface{}{
		"tier":           string(sub.Tier),
		"days_remaining": subscription.DaysRemaining(sub, now),
		"renew_hint":     fmt.Sprintf("renew your %s subscription to keep its features", sub.Tier),
	}
	if sub.EndAt != nil {
		payload["end_at"] = *sub.EndAt
	}
	return event(sub.AccountID, notification.KindExpiringSoon, now, payload)
}

func create(accountID int64, current *subscription.Subscription, target subscription.Tier, days int, pay *Payment, now time.Time) Decision {
	fields := &subscription.NewFields{Tier: target, StartAt: now}
	if target.IsPaid() {
		end, grace := Window(now, days)
		fields.EndAt = &end
		fields.GraceEndAt = &grace
	}
	fields.TransactionID, fields.PaymentMethod = pay.fields()

	entry := subscription.HistoryEntry{
		AccountID:     accountID,
		NewTier:       target,
		TransactionID: fields.TransactionID,
		ChangedAt:     now,
	}
	if current != nil {
		prev := current.Tier
		entry.PreviousTier = &prev
	}
	return Decision{Create: fields, History: entry}
}

func event(accountID int64, kind notification.EventKind, now time.Time, payload map[string]interface{}) notification.Event {
	return notification.Event{
		AccountID:  accountID,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: now,
	}
}

func validateTier(t subscription.Tier) error {
	if !t.Valid() {
		return xerrors.Validation("unknown tier; choose Basic, Premium or Pro", "tier", t)
	}
	return nil
}

func validateDays(days int) error {
	if days <= 0 {
		return xerrors.Validation("duration must be a positive number of days", "days", days)
	}
	return nil
}
