package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

// SubscriptionStore is the in-process Store used by tests and STORE_DRIVER=memory.
// One mutex linearizes every write, and version checks make the
// compare-and-swap behave like the postgres store.
type SubscriptionStore struct {
	mu        sync.RWMutex
	nextSubID int64
	nextHisID int64
	subs      map[int64]*subscription.Subscription
	active    map[int64]int64 // account id -> active subscription id
	history   []subscription.HistoryEntry
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subs:   make(map[int64]*subscription.Subscription),
		active: make(map[int64]int64),
	}
}

func (s *SubscriptionStore) GetActiveSubscription(_ context.Context, accountID int64) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[accountID]
	if !ok {
		return nil, xerrors.NotFound("no active subscription")
	}
	return clone(s.subs[id]), nil
}

func (s *SubscriptionStore) ApplyTransition(_ context.Context, accountID int64, current *subscription.Subscription, fields subscription.NewFields, entry subscription.HistoryEntry) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activeID, hasActive := s.active[accountID]
	if current == nil {
		if hasActive {
			return nil, xerrors.Concurrent("account already has an active subscription")
		}
	} else {
		if !hasActive || activeID != current.ID || s.subs[activeID].Version != current.Version {
			return nil, xerrors.Concurrent("active subscription changed since it was read")
		}
	}

	now := entry.ChangedAt
	if hasActive {
		old := s.subs[activeID]
		old.Active = false
		old.Version++
		old.UpdatedAt = now
	}

	s.nextSubID++
	sub := &subscription.Subscription{
		ID:            s.nextSubID,
		AccountID:     accountID,
		Tier:          fields.Tier,
		StartAt:       fields.StartAt,
		EndAt:         copyTime(fields.EndAt),
		GraceEndAt:    copyTime(fields.GraceEndAt),
		Active:        true,
		TransactionID: copyString(fields.TransactionID),
		PaymentMethod: copyString(fields.PaymentMethod),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.subs[sub.ID] = sub
	s.active[accountID] = sub.ID
	s.appendHistory(accountID, entry)

	return clone(sub), nil
}

func (s *SubscriptionStore) ExtendInPlace(_ context.Context, fields subscription.ExtendFields, entry subscription.HistoryEntry) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[fields.SubscriptionID]
	if !ok {
		return nil, xerrors.NotFound("subscription not found")
	}
	if !sub.Active || sub.Version != fields.ExpectedVersion {
		return nil, xerrors.Concurrent("subscription changed since it was read")
	}

	end, grace := fields.NewEnd, fields.NewGraceEnd
	sub.EndAt = &end
	sub.GraceEndAt = &grace
	sub.RenewalReminderSent = false
	if fields.TransactionID != nil {
		sub.TransactionID = copyString(fields.TransactionID)
	}
	sub.Version++
	sub.UpdatedAt = entry.ChangedAt
	s.appendHistory(sub.AccountID, entry)

	return clone(sub), nil
}

func (s *SubscriptionStore) MarkReminderSent(_ context.Context, subscriptionID, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subscriptionID]
	if !ok {
		return false, xerrors.NotFound("subscription not found")
	}
	if !sub.Active || sub.Version != expectedVersion {
		return false, nil
	}
	sub.RenewalReminderSent = true
	sub.Version++
	return true, nil
}

func (s *SubscriptionStore) HasTransaction(_ context.Context, accountID int64, transactionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.history {
		if h.AccountID == accountID && h.TransactionID != nil && *h.TransactionID == transactionID {
			return true, nil
		}
	}
	for _, sub := range s.subs {
		if sub.AccountID == accountID && sub.TransactionID != nil && *sub.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *SubscriptionStore) ListSubscribers(_ context.Context, filters *subscription.SubscriberFilters) ([]subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]subscription.Subscription, 0)
	for _, sub := range s.subs {
		if filters != nil {
			if filters.ActiveOnly && !sub.Active {
				continue
			}
			if filters.Tier != nil && sub.Tier != *filters.Tier {
				continue
			}
		}
		out = append(out, *clone(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartAt.After(out[j].StartAt)
	})
	if filters != nil && filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *SubscriptionStore) CountByTier(_ context.Context) (map[subscription.Tier]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[subscription.Tier]int64)
	for _, id := range s.active {
		counts[s.subs[id].Tier]++
	}
	return counts, nil
}

func (s *SubscriptionStore) History(_ context.Context, accountID int64, limit int) ([]subscription.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]subscription.HistoryEntry, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].AccountID == accountID {
			out = append(out, s.history[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangedAt.After(out[j].ChangedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SubscriptionStore) CountTransitions(_ context.Context, since time.Time) ([]subscription.TransitionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		kind subscription.TransitionKind
		prev subscription.Tier
		has  bool
		next subscription.Tier
	}
	counts := make(map[key]int64)
	var order []key
	for _, h := range s.history {
		if h.ChangedAt.Before(since) {
			continue
		}
		k := key{kind: h.Kind, next: h.NewTier}
		if h.PreviousTier != nil {
			k.prev, k.has = *h.PreviousTier, true
		}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	out := make([]subscription.TransitionCount, 0, len(order))
	for _, k := range order {
		tc := subscription.TransitionCount{Kind: k.kind, NewTier: k.next, Count: counts[k]}
		if k.has {
			prev := k.prev
			tc.PreviousTier = &prev
		}
		out = append(out, tc)
	}
	return out, nil
}

func (s *SubscriptionStore) DueForReminder(_ context.Context, before time.Time) ([]subscription.Subscription, error) {
	return s.selectActive(func(sub *subscription.Subscription) bool {
		return !sub.RenewalReminderSent && !sub.EndAt.After(before)
	}), nil
}

func (s *SubscriptionStore) InGrace(_ context.Context, now time.Time) ([]subscription.Subscription, error) {
	return s.selectActive(func(sub *subscription.Subscription) bool {
		return sub.EndAt.Before(now) && sub.GraceEndAt != nil && !sub.GraceEndAt.Before(now)
	}), nil
}

func (s *SubscriptionStore) GraceExpired(_ context.Context, now time.Time) ([]subscription.Subscription, error) {
	return s.selectActive(func(sub *subscription.Subscription) bool {
		return sub.GraceEndAt != nil && sub.GraceEndAt.Before(now)
	}), nil
}

// ActiveCount returns how many records for the account have active=true.
func (s *SubscriptionStore) ActiveCount(accountID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sub := range s.subs {
		if sub.AccountID == accountID && sub.Active {
			n++
		}
	}
	return n
}

// selectActive returns active paid records matching keep, ordered by end.
func (s *SubscriptionStore) selectActive(keep func(*subscription.Subscription) bool) []subscription.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]subscription.Subscription, 0)
	for _, id := range s.active {
		sub := s.subs[id]
		if !sub.Tier.IsPaid() || sub.EndAt == nil {
			continue
		}
		if keep(sub) {
			out = append(out, *clone(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(*out[j].EndAt) })
	return out
}

func (s *SubscriptionStore) appendHistory(accountID int64, entry subscription.HistoryEntry) {
	s.nextHisID++
	entry.ID = s.nextHisID
	entry.AccountID = accountID
	entry.PreviousTier = copyTier(entry.PreviousTier)
	entry.TransactionID = copyString(entry.TransactionID)
	s.history = append(s.history, entry)
}

func clone(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	c := *sub
	c.EndAt = copyTime(sub.EndAt)
	c.GraceEndAt = copyTime(sub.GraceEndAt)
	c.TransactionID = copyString(sub.TransactionID)
	c.PaymentMethod = copyString(sub.PaymentMethod)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyTier(t *subscription.Tier) *subscription.Tier {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
