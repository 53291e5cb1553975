// Package settlement turns settled orders into reward effects: lifetime
// spend, loyalty points, referral activation, and tier reclassification.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/internal/app/services/referrals"
	"github.com/cartloom/rewards/internal/app/services/tiers"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// Service consumes order-settled signals.
type Service struct {
	queue    storage.SettlementStore
	rewards  storage.RewardsStore
	loyalty  *loyalty.Service
	refs     *referrals.Service
	tiers    *tiers.Service
	log      *logger.Logger

	now func() time.Time
}

// New constructs the settlement consumer.
func New(queue storage.SettlementStore, rewards storage.RewardsStore, loyaltySvc *loyalty.Service, refsSvc *referrals.Service, tiersSvc *tiers.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	return &Service{
		queue:   queue,
		rewards: rewards,
		loyalty: loyaltySvc,
		refs:    refsSvc,
		tiers:   tiersSvc,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records an order-settled signal for asynchronous processing. A
// replayed order ID is accepted without enqueueing a second time.
func (s *Service) Enqueue(ctx context.Context, orderID, userID string, totalCents int64, settledAt time.Time) (settlement.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return settlement.Order{}, fmt.Errorf("order id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return settlement.Order{}, fmt.Errorf("user id is required")
	}
	if totalCents < 0 {
		return settlement.Order{}, fmt.Errorf("order total must be non-negative, got %d", totalCents)
	}
	if settledAt.IsZero() {
		settledAt = s.now()
	}

	ord, err := s.queue.EnqueueSettlement(ctx, settlement.Order{
		OrderID:    orderID,
		UserID:     userID,
		TotalCents: totalCents,
		SettledAt:  settledAt,
		Status:     settlement.StatusPending,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			s.log.WithField("order_id", orderID).Info("settlement already enqueued")
			return ord, nil
		}
		return settlement.Order{}, err
	}

	s.log.WithField("order_id", orderID).
		WithField("user_id", userID).
		WithField("total_cents", totalCents).
		Info("settlement enqueued")
	return ord, nil
}

// Process applies the full effect of one settled order, in order: lifetime
// spend, points accrual, referral activation, tier reclassification. Every
// crediting step dedups on the order ID, so a retried or replayed order
// applies each effect at most once.
func (s *Service) Process(ctx context.Context, ord settlement.Order) error {
	if _, err := s.rewards.RecordSpend(ctx, ord.UserID, ord.OrderID, ord.TotalCents); err != nil {
		return fmt.Errorf("record spend for order %s: %w", ord.OrderID, err)
	}

	if _, err := s.loyalty.CreditPoints(ctx, ord.UserID, ord.TotalCents, ord.OrderID); err != nil {
		return fmt.Errorf("credit points for order %s: %w", ord.OrderID, err)
	}

	if _, err := s.refs.Activate(ctx, ord.UserID, ord.TotalCents); err != nil {
		return fmt.Errorf("activate referral for order %s: %w", ord.OrderID, err)
	}

	if _, _, err := s.tiers.Classify(ctx, ord.UserID); err != nil {
		return fmt.Errorf("classify tier for order %s: %w", ord.OrderID, err)
	}

	s.log.WithField("order_id", ord.OrderID).
		WithField("user_id", ord.UserID).
		Info("settlement processed")
	return nil
}
