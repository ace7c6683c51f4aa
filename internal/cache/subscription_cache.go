// internal/cache/subscription_cache.go
package cache

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"tainment-service/internal/domain/subscription"
)

// SubscriptionCache is a read-through cache of active subscriptions. It is
// never authoritative: writes go to the store and only invalidate here.
// Entries live at most ttl, which must not exceed the scanner cadence.
type SubscriptionCache struct {
	c *gocache.Cache
}

func NewSubscriptionCache(ttl time.Duration) *SubscriptionCache {
	return &SubscriptionCache{c: gocache.New(ttl, 2*ttl)}
}

func key(accountID int64) string {
	return "sub:" + strconv.FormatInt(accountID, 10)
}

// Get returns a copy so callers cannot mutate the cached record.
func (s *SubscriptionCache) Get(accountID int64) (*subscription.Subscription, bool) {
	if s == nil {
		return nil, false
	}
	x, found := s.c.Get(key(accountID))
	if !found {
		return nil, false
	}
	sub := *x.(*subscription.Subscription)
	return &sub, true
}

func (s *SubscriptionCache) Set(sub *subscription.Subscription) {
	if s == nil || sub == nil {
		return
	}
	c := *sub
	s.c.SetDefault(key(sub.AccountID), &c)
}

func (s *SubscriptionCache) Invalidate(accountID int64) {
	if s == nil {
		return
	}
	s.c.Delete(key(accountID))
}

func (s *SubscriptionCache) Len() int {
	if s == nil {
		return 0
	}
	return s.c.ItemCount()
}
