package domain

import (
	"strings"
	"time"

	"wifree_bot/internal/money"
)

// PlanType identifies a purchasable data plan tier.
type PlanType string

const (
	PlanNone  PlanType = "none"
	PlanTierA PlanType = "tierA"
	PlanTierB PlanType = "tierB"
	PlanTierC PlanType = "tierC"
)

// dailyFreeWindow gates the free daily-notice feature for accounts without
// an active plan.
const dailyFreeWindow = 24 * time.Hour

// Profile carries the display identity captured from the chat transport.
type Profile struct {
	Username  string `bson:"username" json:"username"`
	FirstName string `bson:"first_name" json:"first_name"`
	LastName  string `bson:"last_name" json:"last_name"`
}

// Balance is the wallet state of an account.
type Balance struct {
	Amount      money.Amount `bson:"amount" json:"amount"`
	LastUpdated time.Time    `bson:"last_updated" json:"last_updated"`
}

// Plan is the time-boxed service entitlement granted to an account.
type Plan struct {
	Type      PlanType  `bson:"type" json:"type"`
	StartDate time.Time `bson:"start_date" json:"start_date"`
	EndDate   time.Time `bson:"end_date" json:"end_date"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
}

// SMSPreference records whether the account receives SMS tokens and where.
type SMSPreference struct {
	Enabled     bool   `bson:"enabled" json:"enabled"`
	PhoneNumber string `bson:"phone_number" json:"phone_number"`
}

// DailyUsage tracks the free daily-notice feature.
type DailyUsage struct {
	LastUsed  time.Time `bson:"last_used" json:"last_used"`
	UsedToday bool      `bson:"used_today" json:"used_today"`
}

// Account is the persistent record of one chat identity.
type Account struct {
	ChatID     int64         `bson:"chat_id" json:"chat_id"`
	Profile    Profile       `bson:"profile" json:"profile"`
	Balance    Balance       `bson:"balance" json:"balance"`
	Plan       Plan          `bson:"plan" json:"plan"`
	SMS        SMSPreference `bson:"sms" json:"sms"`
	DailyUsage DailyUsage    `bson:"daily_usage" json:"daily_usage"`
	CreatedAt  time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at" json:"updated_at"`
}

// DisplayName returns the human-facing name for messages.
func (a Account) DisplayName() string {
	name := strings.TrimSpace(a.Profile.FirstName + " " + a.Profile.LastName)
	if name != "" {
		return name
	}
	if a.Profile.Username != "" {
		return "@" + a.Profile.Username
	}
	return "there"
}

// HasActivePlan reports whether the plan is active and not yet past its end
// date at the given instant.
func (a Account) HasActivePlan(now time.Time) bool {
	return a.Plan.IsActive && a.Plan.EndDate.After(now)
}

// PlanExpired reports whether an active plan has outlived its end date and
// is due for deactivation.
func (a Account) PlanExpired(now time.Time) bool {
	return a.Plan.IsActive && a.Plan.EndDate.Before(now)
}

// CanUseDailyFree reports whether the free daily-notice feature is available:
// always with an active plan, otherwise once per 24-hour window.
func (a Account) CanUseDailyFree(now time.Time) bool {
	if a.HasActivePlan(now) {
		return true
	}
	if a.DailyUsage.LastUsed.IsZero() {
		return true
	}
	return a.DailyUsage.LastUsed.Before(now.Add(-dailyFreeWindow))
}

// DailyFreeAvailableAt returns the instant at which the free feature next
// unlocks for an account that is currently rate limited.
func (a Account) DailyFreeAvailableAt() time.Time {
	return a.DailyUsage.LastUsed.Add(dailyFreeWindow)
}

// PlanDaysRemaining returns whole days until the plan end date, never
// negative.
func (a Account) PlanDaysRemaining(now time.Time) int {
	if !a.Plan.IsActive {
		return 0
	}
	remaining := a.Plan.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int((remaining + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
	return days
}
