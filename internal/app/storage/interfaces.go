// Package storage defines the persistence contracts for the rewards engine.
//
// Every multi-step mutation in the engine (referral application, referral
// activation, points credit, redemption, tier assignment) is a single
// composite store operation, so atomicity is carried by the store's
// transaction boundary rather than by caller discipline.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/referral"
	"github.com/cartloom/rewards/internal/app/domain/reward"
	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/domain/tier"
)

var (
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate reports a uniqueness violation (replayed order credit,
	// second referral for a referee, re-enqueued settlement).
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrCodeTaken reports a referral-code collision with another account.
	ErrCodeTaken = errors.New("storage: referral code taken")
	// ErrConflict reports a precondition that no longer held at commit
	// time, e.g. insufficient points or an account already referred.
	ErrConflict = errors.New("storage: conflict")
)

// AccountStore persists customer accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (account.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)

	// EnsureReferralCode persists code for the account unless one is
	// already stored, in which case the stored code is returned. A
	// uniqueness conflict with another account returns ErrCodeTaken.
	EnsureReferralCode(ctx context.Context, userID, code string) (string, error)
}

// LedgerStore reads the append-only points ledger. Writes happen only
// through RewardsStore operations.
type LedgerStore interface {
	ListLedgerEntries(ctx context.Context, userID string) ([]reward.Transaction, error)
}

// ReferralStore reads referral relationships. Writes happen only through
// RewardsStore operations.
type ReferralStore interface {
	GetReferralByReferee(ctx context.Context, refereeID string) (referral.Referral, error)
	ListReferralsByReferrer(ctx context.Context, referrerID string) ([]referral.Referral, error)
	CountCompletedReferrals(ctx context.Context, referrerID string) (int, error)
}

// TierStore persists the tier policy table.
type TierStore interface {
	// ReplaceTiers swaps the whole policy table atomically. A tier that
	// keeps its name keeps its ID, so account tier references stay
	// valid across replacements.
	ReplaceTiers(ctx context.Context, tiers []tier.Tier) ([]tier.Tier, error)
	// ListTiers returns tiers ordered by MinSpendCents descending.
	ListTiers(ctx context.Context) ([]tier.Tier, error)
	GetTier(ctx context.Context, id string) (tier.Tier, error)
}

// RewardsStore carries the composite, transactional mutations of the engine.
// Each method is a single atomic unit with the affected account row locked
// (or retried on conflict) for its duration.
type RewardsStore interface {
	// LinkReferral sets the referee's referrer, credits the referee
	// wallet, and inserts a pending referral, atomically. ErrConflict if
	// the referee is already referred; ErrDuplicate if a referral row for
	// the referee already exists.
	LinkReferral(ctx context.Context, refereeID, referrerID string, refereeCreditCents, rewardCents int64) (referral.Referral, error)

	// ActivateReferral transitions the referee's pending referral to
	// completed and credits the referrer's wallet by the stored reward,
	// atomically. The second return is false when no pending referral
	// exists (including when it is already completed).
	ActivateReferral(ctx context.Context, refereeID string, now time.Time) (referral.Referral, bool, error)

	// CreditPoints increments the account's points and appends an earned
	// ledger entry, atomically. A replayed orderID credits nothing and
	// returns false.
	CreditPoints(ctx context.Context, userID, orderID string, points int64, description string, now time.Time) (bool, error)

	// RedeemPoints decrements the account's points and appends a redeemed
	// ledger entry with negative points, atomically. ErrConflict when
	// the balance no longer covers the points at commit time.
	RedeemPoints(ctx context.Context, userID, orderID string, points int64, description string, now time.Time) error

	// CreditWallet adds monetary credit to the account's wallet.
	CreditWallet(ctx context.Context, userID string, amountCents int64) (account.Account, error)

	// RecordSpend accumulates settled order value into lifetime spend,
	// at most once per orderID. A replayed orderID leaves the account
	// unchanged and returns it as stored. An empty orderID skips the
	// dedup.
	RecordSpend(ctx context.Context, userID, orderID string, amountCents int64) (account.Account, error)

	// AssignTier moves the account to the given tier and records the
	// change timestamp.
	AssignTier(ctx context.Context, userID, tierID string, now time.Time) (account.Account, error)
}

// SettlementStore persists the order-settlement queue.
type SettlementStore interface {
	// EnqueueSettlement stores a pending signal. A replayed order returns
	// the existing row alongside ErrDuplicate.
	EnqueueSettlement(ctx context.Context, ord settlement.Order) (settlement.Order, error)
	ListPendingSettlements(ctx context.Context) ([]settlement.Order, error)
	MarkSettlement(ctx context.Context, id string, status settlement.Status, attempts int, lastError string) error
}
