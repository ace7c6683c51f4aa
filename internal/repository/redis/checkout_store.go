// internal/repository/redis/checkout_store.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tainment-service/internal/domain/payment"
	xerrors "tainment-service/internal/pkg/errors"
)

// CheckoutStore keeps checkout sessions as JSON with a TTL, so an abandoned
// session disappears on its own once the checkout timeout passes.
type CheckoutStore struct {
	client redis.UniversalClient
}

func NewCheckoutStore(client redis.UniversalClient) *CheckoutStore {
	return &CheckoutStore{client: client}
}

func (s *CheckoutStore) key(transactionID string) string {
	return fmt.Sprintf("checkout:%s", transactionID)
}

func (s *CheckoutStore) Save(ctx context.Context, session *payment.CheckoutSession, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("checkout session already expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(session.TransactionID), data, ttl).Err(); err != nil {
		return xerrors.Persistence("store checkout session", err)
	}
	return nil
}

func (s *CheckoutStore) Get(ctx context.Context, transactionID string) (*payment.CheckoutSession, error) {
	data, err := s.client.Get(ctx, s.key(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.NotFound("checkout session not found or expired")
	}
	if err != nil {
		return nil, xerrors.Persistence("load checkout session", err)
	}

	var session payment.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}
	return &session, nil
}

func (s *CheckoutStore) Delete(ctx context.Context, transactionID string) error {
	if err := s.client.Del(ctx, s.key(transactionID)).Err(); err != nil {
		return xerrors.Persistence("delete checkout session", err)
	}
	return nil
}
