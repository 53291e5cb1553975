// Package account defines the customer account aggregate tracked by the
// rewards engine: loyalty points, wallet credit, lifetime spend, referral
// linkage, and membership tier.
package account

import "time"

// Account is the per-customer reward state. Monetary amounts are integer
// cents. LifetimeSpentCents only ever grows; TierID is assigned by the tier
// classifier and never cleared here.
type Account struct {
	ID                 string
	Owner              string
	ReferralCode       string
	ReferredByID       string
	LoyaltyPoints      int64
	WalletBalanceCents int64
	LifetimeSpentCents int64
	TierID             string
	TierChangedAt      time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
