// internal/domain/subscription/entity.go
package subscription

import (
	"strings"
	"time"
)

// Tier is an ordered subscription level.
type Tier string

const (
	TierBasic   Tier = "Basic"
	TierPremium Tier = "Premium"
	TierPro     Tier = "Pro"
)

// GraceWindow is how long paid benefits stay active after the nominal end.
const GraceWindow = 3 * 24 * time.Hour

// Day is the unit of every subscription duration.
const Day = 24 * time.Hour

// Tiers in ascending rank.
var Tiers = []Tier{TierBasic, TierPremium, TierPro}

// Rank returns Basic=0, Premium=1, Pro=2 and -1 for unknown tiers.
func (t Tier) Rank() int {
	switch t {
	case TierBasic:
		return 0
	case TierPremium:
		return 1
	case TierPro:
		return 2
	}
	return -1
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// IsPaid reports whether the tier has an end date.
func (t Tier) IsPaid() bool { return t.Rank() > 0 }

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (Tier, bool) {
	for _, t := range Tiers {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// TransitionKind tags every history entry so reporting never parses reason text.
type TransitionKind string

const (
	KindInitial     TransitionKind = "initial"
	KindUpgrade     TransitionKind = "upgrade"
	KindRenew       TransitionKind = "renew"
	KindExtend      TransitionKind = "extend"
	KindAdmin       TransitionKind = "admin"
	KindGraceExpiry TransitionKind = "grace_expiry"
)

// State is the read-time classification of an account's subscription.
type State string

const (
	StateNone    State = "none"
	StateBasic   State = "basic"
	StateActive  State = "active"
	StateGrace   State = "grace"
	StateExpired State = "expired"
)

type Subscription struct {
	ID                  int64      `json:"id" db:"id"`
	AccountID           int64      `json:"account_id" db:"account_id"`
	Tier                Tier       `json:"tier" db:"tier"`
	StartAt             time.Time  `json:"start_at" db:"start_at"`
	EndAt               *time.Time `json:"end_at,omitempty" db:"end_at"`
	GraceEndAt          *time.Time `json:"grace_end_at,omitempty" db:"grace_end_at"`
	Active              bool       `json:"active" db:"active"`
	RenewalReminderSent bool       `json:"renewal_reminder_sent" db:"renewal_reminder_sent"`
	TransactionID       *string    `json:"transaction_id,omitempty" db:"transaction_id"`
	PaymentMethod       *string    `json:"payment_method,omitempty" db:"payment_method"`

	// Version is the optimistic-concurrency token checked on commit.
	Version   int64     `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Classify derives the state from (end, grace_end, now). Grace is never stored.
func Classify(s *Subscription, now time.Time) State {
	if s == nil {
		return StateNone
	}
	if !s.Tier.IsPaid() || s.EndAt == nil {
		return StateBasic
	}
	if !now.After(*s.EndAt) {
		return StateActive
	}
	if s.GraceEndAt != nil && !now.After(*s.GraceEndAt) {
		return StateGrace
	}
	return StateExpired
}

// EffectiveTier is the tier whose benefits apply right now. A paid record past
// its grace window reads as Basic even before the scanner has downgraded it.
func EffectiveTier(s *Subscription, now time.Time) Tier {
	switch Classify(s, now) {
	case StateActive, StateGrace:
		return s.Tier
	}
	return TierBasic
}

// DaysRemaining until the nominal end, rounded up; zero for Basic or past ends.
func DaysRemaining(s *Subscription, now time.Time) int {
	if s == nil || s.EndAt == nil || !s.EndAt.After(now) {
		return 0
	}
	left := s.EndAt.Sub(now)
	days := int(left / Day)
	if left%Day != 0 {
		days++
	}
	return days
}

// NewFields describes the subscription record a transition creates.
type NewFields struct {
	Tier          Tier
	StartAt       time.Time
	EndAt         *time.Time
	GraceEndAt    *time.Time
	TransactionID *string
	PaymentMethod *string
}

// ExtendFields moves the window of an existing record in place.
type ExtendFields struct {
	SubscriptionID  int64
	ExpectedVersion int64
	NewEnd          time.Time
	NewGraceEnd     time.Time
	TransactionID   *string
}

// HistoryEntry is an append-only audit record of one transition.
type HistoryEntry struct {
	ID           int64          `json:"id" db:"id"`
	AccountID    int64          `json:"account_id" db:"account_id"`
	PreviousTier *Tier          `json:"previous_tier,omitempty" db:"previous_tier"`
	NewTier      Tier           `json:"new_tier" db:"new_tier"`
	Kind         TransitionKind `json:"kind" db:"kind"`
	ActorID      *int64         `json:"actor_id,omitempty" db:"actor_id"`
	Reason       *string        `json:"reason,omitempty" db:"reason"`

	// TransactionID is the payment that paid for this transition, if any.
	TransactionID *string   `json:"transaction_id,omitempty" db:"transaction_id"`
	ChangedAt     time.Time `json:"changed_at" db:"changed_at"`
}

// TierInfo is the catalog entry for a tier.
type TierInfo struct {
	Tier        Tier     `json:"tier"`
	Rank        int      `json:"rank"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// Catalog lists the tiers offered, indexed by tier.
var Catalog = map[Tier]TierInfo{
	TierBasic: {
		Tier:        TierBasic,
		Rank:        0,
		Price:       0,
		Description: "Basic access to entertainment features",
		Features:    []string{"Random jokes", "Basic stories"},
	},
	TierPremium: {
		Tier:        TierPremium,
		Rank:        1,
		Price:       4.99,
		Description: "Enhanced entertainment features",
		Features:    []string{"Premium jokes", "Advanced stories", "Simple games"},
	},
	TierPro: {
		Tier:        TierPro,
		Rank:        2,
		Price:       9.99,
		Description: "Full access to all entertainment features",
		Features:    []string{"All Premium features", "Exclusive content", "Advanced games"},
	},
}

func Ptr[T any](v T) *T { return &v }
