// Package loyalty implements points accrual, redemption, and the customer
// loyalty summary.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/reward"
	"github.com/cartloom/rewards/internal/app/metrics"
	"github.com/cartloom/rewards/internal/app/policy"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// RedeemOutcome classifies a redemption attempt.
type RedeemOutcome string

const (
	OutcomeRedeemed           RedeemOutcome = "redeemed"
	OutcomeInsufficientPoints RedeemOutcome = "insufficient_points"
	OutcomeNothingToRedeem    RedeemOutcome = "nothing_to_redeem"
)

// RedeemResult reports the computed discount of a redemption attempt.
type RedeemResult struct {
	Outcome       RedeemOutcome
	DiscountCents int64
	PointsUsed    int64
	Message       string
}

// Redeemed reports whether points were consumed.
func (r RedeemResult) Redeemed() bool { return r.Outcome == OutcomeRedeemed }

// Summary is the customer-facing loyalty snapshot.
type Summary struct {
	UserID             string `json:"user_id"`
	Points             int64  `json:"points"`
	PointsValueCents   int64  `json:"points_value_cents"`
	WalletBalanceCents int64  `json:"wallet_balance_cents"`
	ReferralCode       string `json:"referral_code,omitempty"`
	ReferralsCompleted int    `json:"referrals_completed"`
	TierID             string `json:"tier_id,omitempty"`
	CanRedeem          bool   `json:"can_redeem"`
}

// SummaryCache caches loyalty summaries. Implementations are optional; a nil
// cache disables caching.
type SummaryCache interface {
	Get(ctx context.Context, userID string) (Summary, bool)
	Set(ctx context.Context, userID string, summary Summary)
	Invalidate(ctx context.Context, userID string)
}

// Service is the points accrual and redemption engine.
type Service struct {
	accounts storage.AccountStore
	rewards  storage.RewardsStore
	ledger   storage.LedgerStore
	refs     storage.ReferralStore
	policy   policy.Policy
	cache    SummaryCache
	log      *logger.Logger

	now func() time.Time
}

// New constructs the loyalty service. cache may be nil.
func New(accounts storage.AccountStore, rewards storage.RewardsStore, ledger storage.LedgerStore, refs storage.ReferralStore, pol policy.Policy, cache SummaryCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("loyalty")
	}
	return &Service{
		accounts: accounts,
		rewards:  rewards,
		ledger:   ledger,
		refs:     refs,
		policy:   pol,
		cache:    cache,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CalculatePoints converts an order total into loyalty points:
// floor(total units * points per unit). Never negative.
func (s *Service) CalculatePoints(orderTotalCents int64) int64 {
	if orderTotalCents <= 0 || s.policy.PointsPerUnit <= 0 {
		return 0
	}
	return orderTotalCents * s.policy.PointsPerUnit / 100
}

// CreditPoints accrues points for a settled order and logs the earned ledger
// entry atomically. Zero computed points means no side effects. A replayed
// orderID credits nothing and reports zero.
func (s *Service) CreditPoints(ctx context.Context, userID string, orderTotalCents int64, orderID string) (int64, error) {
	if orderTotalCents < 0 {
		return 0, fmt.Errorf("order total must be non-negative, got %d", orderTotalCents)
	}
	points := s.CalculatePoints(orderTotalCents)
	if points == 0 {
		return 0, nil
	}

	desc := fmt.Sprintf("earned on order %s", orderID)
	credited, err := s.rewards.CreditPoints(ctx, userID, orderID, points, desc, s.now())
	if err != nil {
		return 0, err
	}
	if !credited {
		s.log.WithField("user_id", userID).
			WithField("order_id", orderID).
			Info("points already credited for order")
		return 0, nil
	}

	metrics.RecordPointsEarned(points)
	s.invalidate(ctx, userID)
	s.log.WithField("user_id", userID).
		WithField("order_id", orderID).
		WithField("points", points).
		Info("loyalty points credited")
	return points, nil
}

// Redeem converts held points into an order discount bounded by the policy
// cap. Rounding always favors the platform: the discount is capped first and
// the points consumed are the ceiling of discount/point value.
func (s *Service) Redeem(ctx context.Context, userID string, pointsToRedeem, orderTotalCents int64, orderID string) (RedeemResult, error) {
	if pointsToRedeem <= 0 {
		return RedeemResult{Outcome: OutcomeNothingToRedeem, Message: "points to redeem must be positive"}, nil
	}
	if orderTotalCents < 0 {
		return RedeemResult{}, fmt.Errorf("order total must be non-negative, got %d", orderTotalCents)
	}

	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}
	if acct.LoyaltyPoints < s.policy.MinRedeemPoints {
		return RedeemResult{
			Outcome: OutcomeInsufficientPoints,
			Message: fmt.Sprintf("at least %d points required to redeem", s.policy.MinRedeemPoints),
		}, nil
	}
	if pointsToRedeem > acct.LoyaltyPoints {
		return RedeemResult{
			Outcome: OutcomeInsufficientPoints,
			Message: fmt.Sprintf("requested %d points but only %d available", pointsToRedeem, acct.LoyaltyPoints),
		}, nil
	}

	discount := pointsToRedeem * s.policy.PointValueCents
	if limit := orderTotalCents * s.policy.MaxRedemptionBps / 10000; discount > limit {
		discount = limit
	}
	if discount <= 0 {
		return RedeemResult{Outcome: OutcomeNothingToRedeem, Message: "order total too small for redemption"}, nil
	}
	pointsUsed := (discount + s.policy.PointValueCents - 1) / s.policy.PointValueCents

	desc := fmt.Sprintf("redeemed for %d cents discount", discount)
	if err := s.rewards.RedeemPoints(ctx, userID, orderID, pointsUsed, desc, s.now()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Balance moved under us; treat like any other shortfall.
			return RedeemResult{Outcome: OutcomeInsufficientPoints, Message: "points balance changed, try again"}, nil
		}
		if errors.Is(err, storage.ErrDuplicate) {
			return RedeemResult{Outcome: OutcomeNothingToRedeem, Message: "points already redeemed for this order"}, nil
		}
		return RedeemResult{}, err
	}

	metrics.RecordPointsRedeemed(pointsUsed)
	s.invalidate(ctx, userID)
	s.log.WithField("user_id", userID).
		WithField("points_used", pointsUsed).
		WithField("discount_cents", discount).
		Info("loyalty points redeemed")
	return RedeemResult{
		Outcome:       OutcomeRedeemed,
		DiscountCents: discount,
		PointsUsed:    pointsUsed,
		Message:       "discount applied",
	}, nil
}

// Summary assembles the loyalty snapshot for a user, served from cache when
// available.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID); ok {
			return cached, nil
		}
	}

	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	completed, err := s.refs.CountCompletedReferrals(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		UserID:             acct.ID,
		Points:             acct.LoyaltyPoints,
		PointsValueCents:   acct.LoyaltyPoints * s.policy.PointValueCents,
		WalletBalanceCents: acct.WalletBalanceCents,
		ReferralCode:       acct.ReferralCode,
		ReferralsCompleted: completed,
		TierID:             acct.TierID,
		CanRedeem:          acct.LoyaltyPoints >= s.policy.MinRedeemPoints,
	}

	if s.cache != nil {
		s.cache.Set(ctx, userID, summary)
	}
	return summary, nil
}

// Transactions returns the user's points ledger, oldest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]reward.Transaction, error) {
	return s.ledger.ListLedgerEntries(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
