// internal/domain/subscription/dto.go
package subscription

import "time"

type AdminUpgradeRequest struct {
	Tier         string `json:"tier" binding:"required"`
	DurationDays int    `json:"duration_days"`
	Reason       string `json:"reason" binding:"max=500"`
}

type AdminExtendRequest struct {
	Days   int    `json:"days" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

type HistoryQuery struct {
	Limit int `form:"limit"`
}

// StatusView is what the command surface renders for an account.
type StatusView struct {
	AccountID     int64         `json:"account_id"`
	Subscription  *Subscription `json:"subscription"`
	State         State         `json:"state"`
	EffectiveTier Tier          `json:"effective_tier"`
	DaysRemaining int           `json:"days_remaining"`
	Features      []string      `json:"features"`
}

type AccessResult struct {
	RequiredTier  Tier `json:"required_tier"`
	EffectiveTier Tier `json:"effective_tier"`
	HasAccess     bool `json:"has_access"`
}

type UpgradeSimulation struct {
	CurrentTier     Tier     `json:"current_tier"`
	TargetTier      Tier     `json:"target_tier"`
	IsUpgrade       bool     `json:"is_upgrade"`
	CurrentPrice    float64  `json:"current_price"`
	TargetPrice     float64  `json:"target_price"`
	PriceDifference float64  `json:"price_difference"`
	FeaturesGained  []string `json:"features_gained"`
	FeaturesLost    []string `json:"features_lost"`
}

type Metrics struct {
	SubscribersByTier map[Tier]int64 `json:"subscribers_by_tier"`
	TotalSubscribers  int64          `json:"total_subscribers"`
	NewSubscribers    int64          `json:"new_subscribers"`
	Upgrades          int64          `json:"upgrades"`
	AdminDowngrades   int64          `json:"admin_downgrades"`
	Expirations       int64          `json:"expirations"`
	Extensions        int64          `json:"extensions"`
	PeriodDays        int            `json:"period_days"`
	GeneratedAt       time.Time      `json:"generated_at"`
}
