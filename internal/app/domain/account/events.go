package account

import (
	"fmt"
	"time"
)

// Event is a single state change to an account aggregate. Stores apply
// events inside one transaction so a multi-step mutation either lands whole
// or not at all; all balance arithmetic lives in the reducer.
type Event interface {
	apply(a *Account, now time.Time) error
}

// PointsEarned credits loyalty points.
type PointsEarned struct {
	Points int64
}

func (e PointsEarned) apply(a *Account, _ time.Time) error {
	if e.Points <= 0 {
		return fmt.Errorf("points earned must be positive, got %d", e.Points)
	}
	a.LoyaltyPoints += e.Points
	return nil
}

// PointsRedeemed debits loyalty points. The balance never goes negative.
type PointsRedeemed struct {
	Points int64
}

func (e PointsRedeemed) apply(a *Account, _ time.Time) error {
	if e.Points <= 0 {
		return fmt.Errorf("points redeemed must be positive, got %d", e.Points)
	}
	if a.LoyaltyPoints < e.Points {
		return fmt.Errorf("redeem %d points exceeds balance %d", e.Points, a.LoyaltyPoints)
	}
	a.LoyaltyPoints -= e.Points
	return nil
}

// WalletCredited adds non-points monetary credit.
type WalletCredited struct {
	AmountCents int64
}

func (e WalletCredited) apply(a *Account, _ time.Time) error {
	if e.AmountCents <= 0 {
		return fmt.Errorf("wallet credit must be positive, got %d", e.AmountCents)
	}
	a.WalletBalanceCents += e.AmountCents
	return nil
}

// SpendRecorded accumulates settled order value into lifetime spend.
type SpendRecorded struct {
	AmountCents int64
}

func (e SpendRecorded) apply(a *Account, _ time.Time) error {
	if e.AmountCents < 0 {
		return fmt.Errorf("spend must be non-negative, got %d", e.AmountCents)
	}
	a.LifetimeSpentCents += e.AmountCents
	return nil
}

// TierAssigned moves the account to a new membership tier.
type TierAssigned struct {
	TierID string
}

func (e TierAssigned) apply(a *Account, now time.Time) error {
	if e.TierID == "" {
		return fmt.Errorf("tier id is required")
	}
	a.TierID = e.TierID
	a.TierChangedAt = now
	return nil
}

// ReferrerLinked records who referred this account. The link is write-once.
type ReferrerLinked struct {
	ReferrerID string
}

func (e ReferrerLinked) apply(a *Account, _ time.Time) error {
	if e.ReferrerID == "" {
		return fmt.Errorf("referrer id is required")
	}
	if a.ReferredByID != "" {
		return fmt.Errorf("account %s already referred by %s", a.ID, a.ReferredByID)
	}
	if e.ReferrerID == a.ID {
		return fmt.Errorf("account %s cannot refer itself", a.ID)
	}
	a.ReferredByID = e.ReferrerID
	return nil
}

// CodeAssigned sets the account's referral code. The first stored code wins.
type CodeAssigned struct {
	Code string
}

func (e CodeAssigned) apply(a *Account, _ time.Time) error {
	if e.Code == "" {
		return fmt.Errorf("referral code is required")
	}
	if a.ReferralCode != "" && a.ReferralCode != e.Code {
		return fmt.Errorf("account %s already has referral code", a.ID)
	}
	a.ReferralCode = e.Code
	return nil
}

// Apply runs the events against the account in order, stopping at the first
// failure. Callers apply events to a copy and persist only on success, so a
// mid-sequence failure cannot leave partially-applied state.
func (a *Account) Apply(now time.Time, events ...Event) error {
	for _, ev := range events {
		if err := ev.apply(a, now); err != nil {
			return err
		}
	}
	a.UpdatedAt = now
	return nil
}
