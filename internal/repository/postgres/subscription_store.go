// internal/repository/postgres/subscription_store.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

const subscriptionColumns = `id, account_id, tier, start_at, end_at, grace_end_at, active,
	renewal_reminder_sent, transaction_id, payment_method, version, created_at, updated_at`

const historyColumns = `id, account_id, previous_tier, new_tier, kind, actor_id, reason, transaction_id, changed_at`

// SubscriptionStore persists subscriptions and their history. The partial
// unique index on (account_id) WHERE active backs the one-active-record rule.
type SubscriptionStore struct {
	db *DB
}

func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var (
		sub  subscription.Subscription
		tier string
	)
	err := row.Scan(
		&sub.ID, &sub.AccountID, &tier, &sub.StartAt, &sub.EndAt, &sub.GraceEndAt, &sub.Active,
		&sub.RenewalReminderSent, &sub.TransactionID, &sub.PaymentMethod, &sub.Version,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Tier = subscription.Tier(tier)
	normalize(&sub)
	return &sub, nil
}

func normalize(sub *subscription.Subscription) {
	sub.StartAt = sub.StartAt.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	if sub.EndAt != nil {
		t := sub.EndAt.UTC()
		sub.EndAt = &t
	}
	if sub.GraceEndAt != nil {
		t := sub.GraceEndAt.UTC()
		sub.GraceEndAt = &t
	}
}

func scanHistory(row rowScanner) (*subscription.HistoryEntry, error) {
	var (
		h       subscription.HistoryEntry
		prev    *string
		newTier string
		kind    string
	)
	if err := row.Scan(&h.ID, &h.AccountID, &prev, &newTier, &kind, &h.ActorID, &h.Reason, &h.TransactionID, &h.ChangedAt); err != nil {
		return nil, err
	}
	if prev != nil {
		t := subscription.Tier(*prev)
		h.PreviousTier = &t
	}
	h.NewTier = subscription.Tier(newTier)
	h.Kind = subscription.TransitionKind(kind)
	h.ChangedAt = h.ChangedAt.UTC()
	return &h, nil
}

func tierArg(t *subscription.Tier) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func (s *SubscriptionStore) GetActiveSubscription(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE account_id = $1 AND active = TRUE`

	sub, err := scanSubscription(s.db.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, classify("get active subscription", "no active subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ApplyTransition(ctx context.Context, accountID int64, current *subscription.Subscription, fields subscription.NewFields, entry subscription.HistoryEntry) (*subscription.Subscription, error) {
	var created *subscription.Subscription

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		// Serializes writers per account, including the first insert.
		if _, err := tx.Exec(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID); err != nil {
			return err
		}

		existing, err := scanSubscription(tx.QueryRow(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE account_id = $1 AND active = TRUE FOR UPDATE`,
			accountID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		switch {
		case current == nil && existing != nil:
			return xerrors.Concurrent("account already has an active subscription")
		case current != nil && (existing == nil || existing.ID != current.ID || existing.Version != current.Version):
			return xerrors.Concurrent("active subscription changed since it was read")
		}

		now := entry.ChangedAt
		if existing != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE subscriptions SET active = FALSE, version = version + 1, updated_at = $2 WHERE id = $1`,
				existing.ID, now); err != nil {
				return err
			}
		}

		created, err = scanSubscription(tx.QueryRow(ctx, `
			INSERT INTO subscriptions (
				account_id, tier, start_at, end_at, grace_end_at, active,
				renewal_reminder_sent, transaction_id, payment_method, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, $6, $7, 1, $8, $8)
			RETURNING `+subscriptionColumns,
			accountID, string(fields.Tier), fields.StartAt, fields.EndAt, fields.GraceEndAt,
			fields.TransactionID, fields.PaymentMethod, now,
		))
		if err != nil {
			return err
		}

		entry.AccountID = accountID
		return insertHistory(ctx, tx, &entry)
	})
	if err != nil {
		return nil, classify("apply subscription transition", "account not found", err)
	}
	return created, nil
}

func (s *SubscriptionStore) ExtendInPlace(ctx context.Context, fields subscription.ExtendFields, entry subscription.HistoryEntry) (*subscription.Subscription, error) {
	var updated *subscription.Subscription

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = scanSubscription(tx.QueryRow(ctx, `
			UPDATE subscriptions
			SET end_at = $3,
			    grace_end_at = $4,
			    renewal_reminder_sent = FALSE,
			    transaction_id = COALESCE($5, transaction_id),
			    version = version + 1,
			    updated_at = $6
			WHERE id = $1 AND active = TRUE AND version = $2
			RETURNING `+subscriptionColumns,
			fields.SubscriptionID, fields.ExpectedVersion, fields.NewEnd, fields.NewGraceEnd,
			fields.TransactionID, entry.ChangedAt,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, fields.SubscriptionID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return xerrors.Concurrent("subscription changed since it was read")
			}
			return xerrors.NotFound("subscription not found")
		}
		if err != nil {
			return err
		}

		entry.AccountID = updated.AccountID
		return insertHistory(ctx, tx, &entry)
	})
	if err != nil {
		return nil, classify("extend subscription", "subscription not found", err)
	}
	return updated, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *subscription.HistoryEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO subscription_history (account_id, previous_tier, new_tier, kind, actor_id, reason, transaction_id, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		entry.AccountID, tierArg(entry.PreviousTier), string(entry.NewTier), string(entry.Kind),
		entry.ActorID, entry.Reason, entry.TransactionID, entry.ChangedAt,
	).Scan(&entry.ID)
}

func (s *SubscriptionStore) MarkReminderSent(ctx context.Context, subscriptionID, expectedVersion int64) (bool, error) {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE subscriptions
		SET renewal_reminder_sent = TRUE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND active = TRUE AND version = $2`, subscriptionID, expectedVersion)
	if err != nil {
		return false, classify("mark reminder sent", "subscription not found", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, subscriptionID).Scan(&exists); err != nil {
		return false, classify("mark reminder sent", "", err)
	}
	if !exists {
		return false, xerrors.NotFound("subscription not found")
	}
	return false, nil
}

// HasTransaction also checks the subscription rows so grants recorded
// before history carried transaction ids are still found.
func (s *SubscriptionStore) HasTransaction(ctx context.Context, accountID int64, transactionID string) (bool, error) {
	var found bool
	err := s.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscription_history WHERE account_id = $1 AND transaction_id = $2
		) OR EXISTS (
			SELECT 1 FROM subscriptions WHERE account_id = $1 AND transaction_id = $2
		)`, accountID, transactionID).Scan(&found)
	if err != nil {
		return false, classify("look up applied transaction", "", err)
	}
	return found, nil
}

func (s *SubscriptionStore) ListSubscribers(ctx context.Context, filters *subscription.SubscriberFilters) ([]subscription.Subscription, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters != nil {
		if filters.ActiveOnly {
			where = append(where, "active = TRUE")
		}
		if filters.Tier != nil {
			args = append(args, string(*filters.Tier))
			where = append(where, fmt.Sprintf("tier = $%d", len(args)))
		}
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_at DESC, id DESC"
	if filters != nil && filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.querySubscriptions(ctx, "list subscribers", query, args...)
}

func (s *SubscriptionStore) CountByTier(ctx context.Context) (map[subscription.Tier]int64, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT tier, COUNT(*) FROM subscriptions WHERE active = TRUE GROUP BY tier`)
	if err != nil {
		return nil, classify("count subscribers by tier", "", err)
	}
	defer rows.Close()

	counts := make(map[subscription.Tier]int64)
	for rows.Next() {
		var (
			tier  string
			count int64
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, classify("count subscribers by tier", "", err)
		}
		counts[subscription.Tier(tier)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify("count subscribers by tier", "", err)
	}
	return counts, nil
}

func (s *SubscriptionStore) History(ctx context.Context, accountID int64, limit int) ([]subscription.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM subscription_history
		WHERE account_id = $1
		ORDER BY changed_at DESC, id DESC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list subscription history", "", err)
	}
	defer rows.Close()

	out := make([]subscription.HistoryEntry, 0)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, classify("list subscription history", "", err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list subscription history", "", err)
	}
	return out, nil
}

func (s *SubscriptionStore) CountTransitions(ctx context.Context, since time.Time) ([]subscription.TransitionCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT kind, previous_tier, new_tier, COUNT(*)
		FROM subscription_history
		WHERE changed_at >= $1
		GROUP BY kind, previous_tier, new_tier
		ORDER BY MIN(id)`, since)
	if err != nil {
		return nil, classify("count transitions", "", err)
	}
	defer rows.Close()

	out := make([]subscription.TransitionCount, 0)
	for rows.Next() {
		var (
			kind, next string
			prev       *string
			count      int64
		)
		if err := rows.Scan(&kind, &prev, &next, &count); err != nil {
			return nil, classify("count transitions", "", err)
		}
		tc := subscription.TransitionCount{
			Kind:    subscription.TransitionKind(kind),
			NewTier: subscription.Tier(next),
			Count:   count,
		}
		if prev != nil {
			t := subscription.Tier(*prev)
			tc.PreviousTier = &t
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("count transitions", "", err)
	}
	return out, nil
}

// Due-for-scan queries cover active paid records only, soonest end first.

func (s *SubscriptionStore) DueForReminder(ctx context.Context, before time.Time) ([]subscription.Subscription, error) {
	return s.querySubscriptions(ctx, "list subscriptions due for reminder", `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE active = TRUE AND tier <> 'Basic' AND end_at IS NOT NULL
		  AND renewal_reminder_sent = FALSE AND end_at <= $1
		ORDER BY end_at`, before)
}

func (s *SubscriptionStore) InGrace(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	return s.querySubscriptions(ctx, "list subscriptions in grace", `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE active = TRUE AND tier <> 'Basic' AND end_at IS NOT NULL
		  AND end_at < $1 AND grace_end_at >= $1
		ORDER BY end_at`, now)
}

func (s *SubscriptionStore) GraceExpired(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	return s.querySubscriptions(ctx, "list subscriptions past grace", `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE active = TRUE AND tier <> 'Basic' AND end_at IS NOT NULL
		  AND grace_end_at < $1
		ORDER BY end_at`, now)
}

func (s *SubscriptionStore) querySubscriptions(ctx context.Context, op, query string, args ...interface{}) ([]subscription.Subscription, error) {
	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, "", err)
	}
	defer rows.Close()

	out := make([]subscription.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, classify(op, "", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, "", err)
	}
	return out, nil
}
