package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"tainment-service/internal/domain/payment"
	xerrors "tainment-service/internal/pkg/errors"
)

// SessionStore keeps checkout sessions in process memory with a per-entry TTL.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(defaultTTL time.Duration) *SessionStore {
	// Expired sessions are purged every minute
	return &SessionStore{cache: cache.New(defaultTTL, time.Minute)}
}

func (s *SessionStore) Save(_ context.Context, session *payment.CheckoutSession, ttl time.Duration) error {
	c := *session
	s.cache.Set(session.TransactionID, &c, ttl)
	return nil
}

func (s *SessionStore) Get(_ context.Context, transactionID string) (*payment.CheckoutSession, error) {
	if x, found := s.cache.Get(transactionID); found {
		c := *x.(*payment.CheckoutSession)
		return &c, nil
	}
	return nil, xerrors.NotFound("checkout session not found or expired")
}

func (s *SessionStore) Delete(_ context.Context, transactionID string) error {
	s.cache.Delete(transactionID)
	return nil
}
