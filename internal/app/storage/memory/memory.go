// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/referral"
	"github.com/cartloom/rewards/internal/app/domain/reward"
	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/storage"
)

// Store is the in-memory store. A single mutex stands in for the database
// transaction boundary: every composite operation runs under it whole.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	accounts       map[string]account.Account
	accountsByCode map[string]string

	ledger      map[string][]reward.Transaction
	ledgerKeys  map[string]struct{}
	spendOrders map[string]struct{}

	referralsByReferee map[string]referral.Referral

	tiers []tier.Tier

	settlements        map[string]settlement.Order
	settlementsByOrder map[string]string
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.ReferralStore = (*Store)(nil)
var _ storage.TierStore = (*Store)(nil)
var _ storage.RewardsStore = (*Store)(nil)
var _ storage.SettlementStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:             1,
		accounts:           make(map[string]account.Account),
		accountsByCode:     make(map[string]string),
		ledger:             make(map[string][]reward.Transaction),
		ledgerKeys:         make(map[string]struct{}),
		spendOrders:        make(map[string]struct{}),
		referralsByReferee: make(map[string]referral.Referral),
		settlements:        make(map[string]settlement.Order),
		settlementsByOrder: make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func ledgerKey(userID, orderID string, kind reward.Kind) string {
	return userID + "|" + orderID + "|" + string(kind)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	if acct.ReferralCode != "" {
		if _, taken := s.accountsByCode[acct.ReferralCode]; taken {
			return account.Account{}, storage.ErrCodeTaken
		}
		s.accountsByCode[acct.ReferralCode] = acct.ID
	}

	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccountLocked(id)
}

func (s *Store) getAccountLocked(id string) (account.Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) GetAccountByReferralCode(_ context.Context, code string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByCode[code]
	if !ok {
		return account.Account{}, fmt.Errorf("referral code %s: %w", code, storage.ErrNotFound)
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccountIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) EnsureReferralCode(_ context.Context, userID, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return "", err
	}
	if acct.ReferralCode != "" {
		return acct.ReferralCode, nil
	}
	if owner, taken := s.accountsByCode[code]; taken && owner != userID {
		return "", storage.ErrCodeTaken
	}

	if err := acct.Apply(time.Now().UTC(), account.CodeAssigned{Code: code}); err != nil {
		return "", err
	}
	s.accounts[userID] = acct
	s.accountsByCode[code] = userID
	return code, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) ListLedgerEntries(_ context.Context, userID string) ([]reward.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[userID]
	out := make([]reward.Transaction, len(entries))
	copy(out, entries)
	return out, nil
}

// ReferralStore implementation ------------------------------------------------

func (s *Store) GetReferralByReferee(_ context.Context, refereeID string) (referral.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.referralsByReferee[refereeID]
	if !ok {
		return referral.Referral{}, fmt.Errorf("referral for %s: %w", refereeID, storage.ErrNotFound)
	}
	return ref, nil
}

func (s *Store) ListReferralsByReferrer(_ context.Context, referrerID string) ([]referral.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []referral.Referral
	for _, ref := range s.referralsByReferee {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountCompletedReferrals(_ context.Context, referrerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ref := range s.referralsByReferee {
		if ref.ReferrerID == referrerID && ref.Completed() {
			count++
		}
	}
	return count, nil
}

// TierStore implementation ----------------------------------------------------

func (s *Store) ReplaceTiers(_ context.Context, tiers []tier.Tier) ([]tier.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]tier.Tier, len(s.tiers))
	for _, t := range s.tiers {
		existing[t.Name] = t
	}

	now := time.Now().UTC()
	replaced := make([]tier.Tier, 0, len(tiers))
	for _, t := range tiers {
		// Accounts reference tiers by ID; a tier that keeps its name
		// keeps its ID across replacements.
		if prev, ok := existing[t.Name]; ok {
			t.ID = prev.ID
			t.CreatedAt = prev.CreatedAt
		} else {
			if t.ID == "" {
				t.ID = s.nextIDLocked()
			}
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		replaced = append(replaced, t)
	}
	sort.Slice(replaced, func(i, j int) bool {
		return replaced[i].MinSpendCents > replaced[j].MinSpendCents
	})
	s.tiers = replaced

	out := make([]tier.Tier, len(replaced))
	copy(out, replaced)
	return out, nil
}

func (s *Store) ListTiers(_ context.Context) ([]tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tier.Tier, len(s.tiers))
	copy(out, s.tiers)
	return out, nil
}

func (s *Store) GetTier(_ context.Context, id string) (tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return tier.Tier{}, fmt.Errorf("tier %s: %w", id, storage.ErrNotFound)
}

// RewardsStore implementation -------------------------------------------------

func (s *Store) LinkReferral(_ context.Context, refereeID, referrerID string, refereeCreditCents, rewardCents int64) (referral.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referee, err := s.getAccountLocked(refereeID)
	if err != nil {
		return referral.Referral{}, err
	}
	if _, err := s.getAccountLocked(referrerID); err != nil {
		return referral.Referral{}, err
	}
	if referee.ReferredByID != "" {
		return referral.Referral{}, fmt.Errorf("account %s already referred: %w", refereeID, storage.ErrConflict)
	}
	if _, exists := s.referralsByReferee[refereeID]; exists {
		return referral.Referral{}, fmt.Errorf("referral for %s: %w", refereeID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	if err := referee.Apply(now,
		account.ReferrerLinked{ReferrerID: referrerID},
		account.WalletCredited{AmountCents: refereeCreditCents},
	); err != nil {
		return referral.Referral{}, err
	}

	ref := referral.Referral{
		ID:          s.nextIDLocked(),
		ReferrerID:  referrerID,
		RefereeID:   refereeID,
		Status:      referral.StatusPending,
		RewardCents: rewardCents,
		CreatedAt:   now,
	}

	s.accounts[refereeID] = referee
	s.referralsByReferee[refereeID] = ref
	return ref, nil
}

func (s *Store) ActivateReferral(_ context.Context, refereeID string, now time.Time) (referral.Referral, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.referralsByReferee[refereeID]
	if !ok || ref.Status != referral.StatusPending {
		return referral.Referral{}, false, nil
	}

	referrer, err := s.getAccountLocked(ref.ReferrerID)
	if err != nil {
		return referral.Referral{}, false, err
	}
	if err := referrer.Apply(now, account.WalletCredited{AmountCents: ref.RewardCents}); err != nil {
		return referral.Referral{}, false, err
	}

	ref.Status = referral.StatusCompleted
	ref.CompletedAt = now

	s.accounts[ref.ReferrerID] = referrer
	s.referralsByReferee[refereeID] = ref
	return ref, true, nil
}

func (s *Store) CreditPoints(_ context.Context, userID, orderID string, points int64, description string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return false, err
	}

	key := ledgerKey(userID, orderID, reward.KindEarned)
	if orderID != "" {
		if _, seen := s.ledgerKeys[key]; seen {
			return false, nil
		}
	}

	if err := acct.Apply(now, account.PointsEarned{Points: points}); err != nil {
		return false, err
	}

	entry := reward.Transaction{
		ID:          s.nextIDLocked(),
		UserID:      userID,
		OrderID:     orderID,
		Points:      points,
		Kind:        reward.KindEarned,
		Description: description,
		CreatedAt:   now,
	}

	s.accounts[userID] = acct
	s.ledger[userID] = append(s.ledger[userID], entry)
	if orderID != "" {
		s.ledgerKeys[key] = struct{}{}
	}
	return true, nil
}

func (s *Store) RedeemPoints(_ context.Context, userID, orderID string, points int64, description string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return err
	}
	key := ledgerKey(userID, orderID, reward.KindRedeemed)
	if orderID != "" {
		if _, seen := s.ledgerKeys[key]; seen {
			return fmt.Errorf("redemption for order %s: %w", orderID, storage.ErrDuplicate)
		}
	}
	if acct.LoyaltyPoints < points {
		return fmt.Errorf("account %s has %d points, need %d: %w", userID, acct.LoyaltyPoints, points, storage.ErrConflict)
	}
	if err := acct.Apply(now, account.PointsRedeemed{Points: points}); err != nil {
		return err
	}

	entry := reward.Transaction{
		ID:          s.nextIDLocked(),
		UserID:      userID,
		OrderID:     orderID,
		Points:      -points,
		Kind:        reward.KindRedeemed,
		Description: description,
		CreatedAt:   now,
	}

	s.accounts[userID] = acct
	s.ledger[userID] = append(s.ledger[userID], entry)
	if orderID != "" {
		s.ledgerKeys[key] = struct{}{}
	}
	return nil
}

func (s *Store) CreditWallet(_ context.Context, userID string, amountCents int64) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return account.Account{}, err
	}
	if err := acct.Apply(time.Now().UTC(), account.WalletCredited{AmountCents: amountCents}); err != nil {
		return account.Account{}, err
	}
	s.accounts[userID] = acct
	return acct, nil
}

func (s *Store) RecordSpend(_ context.Context, userID, orderID string, amountCents int64) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return account.Account{}, err
	}

	key := userID + "|" + orderID
	if orderID != "" {
		if _, seen := s.spendOrders[key]; seen {
			return acct, nil
		}
	}

	if err := acct.Apply(time.Now().UTC(), account.SpendRecorded{AmountCents: amountCents}); err != nil {
		return account.Account{}, err
	}
	s.accounts[userID] = acct
	if orderID != "" {
		s.spendOrders[key] = struct{}{}
	}
	return acct, nil
}

func (s *Store) AssignTier(_ context.Context, userID, tierID string, now time.Time) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(userID)
	if err != nil {
		return account.Account{}, err
	}

	found := false
	for _, t := range s.tiers {
		if t.ID == tierID {
			found = true
			break
		}
	}
	if !found {
		return account.Account{}, fmt.Errorf("tier %s: %w", tierID, storage.ErrNotFound)
	}

	if err := acct.Apply(now, account.TierAssigned{TierID: tierID}); err != nil {
		return account.Account{}, err
	}
	s.accounts[userID] = acct
	return acct, nil
}

// SettlementStore implementation ----------------------------------------------

func (s *Store) EnqueueSettlement(_ context.Context, ord settlement.Order) (settlement.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, seen := s.settlementsByOrder[ord.OrderID]; seen {
		return s.settlements[existingID], fmt.Errorf("settlement for order %s: %w", ord.OrderID, storage.ErrDuplicate)
	}

	if ord.ID == "" {
		ord.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	ord.Status = settlement.StatusPending
	ord.CreatedAt = now
	ord.UpdatedAt = now

	s.settlements[ord.ID] = ord
	s.settlementsByOrder[ord.OrderID] = ord.ID
	return ord, nil
}

func (s *Store) ListPendingSettlements(_ context.Context) ([]settlement.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []settlement.Order
	for _, ord := range s.settlements {
		if ord.Status == settlement.StatusPending {
			out = append(out, ord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkSettlement(_ context.Context, id string, status settlement.Status, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.settlements[id]
	if !ok {
		return fmt.Errorf("settlement %s: %w", id, storage.ErrNotFound)
	}
	ord.Status = status
	ord.Attempts = attempts
	ord.LastError = lastError
	ord.UpdatedAt = time.Now().UTC()
	s.settlements[id] = ord
	return nil
}
