// Package tier defines the membership tier policy table.
package tier

import "time"

// Tier is one membership level. Tiers are policy data, not user data:
// qualification is the highest MinSpendCents at or below an account's
// lifetime spend.
type Tier struct {
	ID            string
	Name          string
	DisplayName   string
	MinSpendCents int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Qualifies reports whether an account with the given lifetime spend meets
// this tier's threshold.
func (t Tier) Qualifies(lifetimeSpentCents int64) bool {
	return lifetimeSpentCents >= t.MinSpendCents
}
