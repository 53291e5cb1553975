// Package accounts manages customer account records.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// Service manages account creation and lookup.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New constructs an accounts service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, owner string) (account.Account, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return account.Account{}, fmt.Errorf("owner is required")
	}

	acct, err := s.store.CreateAccount(ctx, account.Account{Owner: owner})
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("account_id", acct.ID).Info("account created")
	return acct, nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.store.GetAccount(ctx, id)
}
