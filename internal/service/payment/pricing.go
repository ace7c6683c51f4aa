// internal/service/payment/pricing.go
package payment

import (
	"math"

	"tainment-service/internal/domain/subscription"
	xerrors "tainment-service/internal/pkg/errors"
)

// DaysPerMonth converts purchased months to subscription days.
const DaysPerMonth = 30

// Discounts maps the allowed purchase durations, in months, to their discount rate.
var Discounts = map[int]float64{
	1:  0,
	3:  0.10,
	6:  0.15,
	12: 0.20,
}

type Quote struct {
	Tier         subscription.Tier
	Months       int
	Days         int
	BasePrice    float64
	DiscountRate float64
	Price        float64
}

// QuotePrice computes round(base * months * (1 - discount), 2).
func QuotePrice(tier subscription.Tier, months int) (Quote, error) {
	if !tier.IsPaid() {
		return Quote{}, xerrors.Validation("choose Premium or Pro to check out", "tier", tier)
	}
	discount, ok := Discounts[months]
	if !ok {
		return Quote{}, xerrors.Validation("duration must be 1, 3, 6 or 12 months", "months", months)
	}

	base := subscription.Catalog[tier].Price
	return Quote{
		Tier:         tier,
		Months:       months,
		Days:         months * DaysPerMonth,
		BasePrice:    base,
		DiscountRate: discount,
		Price:        roundCents(base * float64(months) * (1 - discount)),
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
