// Package policy holds the reward policy constants. The policy is an
// explicit value injected into each engine so tests can substitute alternate
// policies without shared state.
package policy

import "fmt"

// Policy captures every tunable of the reward engines. Monetary amounts are
// integer cents; the redemption cap is expressed in basis points of the
// order total.
type Policy struct {
	// PointsPerUnit is the loyalty points earned per whole currency unit
	// of settled order value.
	PointsPerUnit int64 `yaml:"points_per_unit"`
	// PointValueCents is the redemption value of a single point.
	PointValueCents int64 `yaml:"point_value_cents"`
	// MinRedeemPoints is the minimum balance required before any
	// redemption is allowed.
	MinRedeemPoints int64 `yaml:"min_redeem_points"`
	// MaxRedemptionBps caps the discount at this fraction of the order
	// total, in basis points (2000 = 20%).
	MaxRedemptionBps int64 `yaml:"max_redemption_bps"`
	// RefereeDiscountCents is the wallet credit a new account receives
	// for signing up with a referral code.
	RefereeDiscountCents int64 `yaml:"referee_discount_cents"`
	// ReferrerRewardCents is the wallet credit the referrer receives when
	// the referee's first qualifying order settles.
	ReferrerRewardCents int64 `yaml:"referrer_reward_cents"`
	// MinQualifyingOrderCents is the smallest order total that activates
	// a pending referral.
	MinQualifyingOrderCents int64 `yaml:"min_qualifying_order_cents"`
}

// Default returns the production policy.
func Default() Policy {
	return Policy{
		PointsPerUnit:           1,
		PointValueCents:         1,
		MinRedeemPoints:         100,
		MaxRedemptionBps:        2000,
		RefereeDiscountCents:    500,
		ReferrerRewardCents:     10000,
		MinQualifyingOrderCents: 5000,
	}
}

// Validate rejects policies that would break the engines' arithmetic.
func (p Policy) Validate() error {
	if p.PointsPerUnit < 0 {
		return fmt.Errorf("points per unit must be non-negative")
	}
	if p.PointValueCents <= 0 {
		return fmt.Errorf("point value must be positive")
	}
	if p.MinRedeemPoints < 0 {
		return fmt.Errorf("minimum redeem points must be non-negative")
	}
	if p.MaxRedemptionBps <= 0 || p.MaxRedemptionBps > 10000 {
		return fmt.Errorf("redemption cap must be within (0, 10000] basis points")
	}
	if p.RefereeDiscountCents <= 0 {
		return fmt.Errorf("referee discount must be positive")
	}
	if p.ReferrerRewardCents <= 0 {
		return fmt.Errorf("referrer reward must be positive")
	}
	if p.MinQualifyingOrderCents < 0 {
		return fmt.Errorf("minimum qualifying order must be non-negative")
	}
	return nil
}
