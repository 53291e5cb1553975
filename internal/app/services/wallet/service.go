// Package wallet manages the non-points monetary balance. The engine only
// ever credits the wallet; consumption at checkout belongs to the external
// checkout flow.
package wallet

import (
	"context"
	"fmt"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// Service credits wallet balances.
type Service struct {
	store storage.RewardsStore
	log   *logger.Logger
}

// New constructs a wallet service.
func New(store storage.RewardsStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{store: store, log: log}
}

// Credit adds amountCents to the account's wallet. The amount must be
// strictly positive.
func (s *Service) Credit(ctx context.Context, userID string, amountCents int64) (account.Account, error) {
	if amountCents <= 0 {
		return account.Account{}, fmt.Errorf("credit amount must be positive, got %d", amountCents)
	}

	acct, err := s.store.CreditWallet(ctx, userID, amountCents)
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("user_id", userID).
		WithField("amount_cents", amountCents).
		Info("wallet credited")
	return acct, nil
}
