// Package catalog defines the purchasable data plans and the mutable SMS
// delivery fee.
package catalog

import (
	"strconv"
	"time"

	"wifree_bot/internal/domain"
	"wifree_bot/internal/money"
)

// Plan describes one purchasable tier.
type Plan struct {
	Type         domain.PlanType
	Name         string
	BasePrice    money.Amount
	DurationDays int
	Speed        string
	Allowance    string
}

// The fixed plan lineup. Prices are in kobo.
var plans = []Plan{
	{
		Type:         domain.PlanTierA,
		Name:         "15GB Daily Surf",
		BasePrice:    money.FromNaira(200),
		DurationDays: 1,
		Speed:        "20Mbps",
		Allowance:    "15GB",
	},
	{
		Type:         domain.PlanTierB,
		Name:         "3-Day Unlimited",
		BasePrice:    money.FromNaira(500),
		DurationDays: 3,
		Speed:        "40Mbps",
		Allowance:    "Unlimited",
	},
	{
		Type:         domain.PlanTierC,
		Name:         "Weekly Unlimited",
		BasePrice:    money.FromNaira(1000),
		DurationDays: 7,
		Speed:        "40Mbps",
		Allowance:    "Unlimited",
	},
}

// All returns the plan lineup in display order.
func All() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// Lookup returns the plan for the given type. The second return value is
// false for unknown or empty types; callers must not fall back to a default
// plan duration.
func Lookup(planType domain.PlanType) (Plan, bool) {
	for _, p := range plans {
		if p.Type == planType {
			return p, true
		}
	}
	return Plan{}, false
}

// Duration returns the plan's validity window.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// DurationLabel renders the validity window for messages, such as "1 day"
// or "7 days".
func (p Plan) DurationLabel() string {
	if p.DurationDays == 1 {
		return "1 day"
	}
	return strconv.Itoa(p.DurationDays) + " days"
}
