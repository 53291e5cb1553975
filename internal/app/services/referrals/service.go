// Package referrals implements the referral registry: code issuance, signup
// linkage, and reward activation.
package referrals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/referral"
	"github.com/cartloom/rewards/internal/app/metrics"
	"github.com/cartloom/rewards/internal/app/notify"
	"github.com/cartloom/rewards/internal/app/policy"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// maxCodeAttempts bounds the generate-and-store retry loop. Collisions on an
// 8-character token are rare; hitting the bound indicates a systemic
// problem, not bad luck.
const maxCodeAttempts = 5

// ApplyOutcome classifies the result of applying a referral code. These are
// expected user outcomes, not faults.
type ApplyOutcome string

const (
	OutcomeApplied         ApplyOutcome = "applied"
	OutcomeCodeNotFound    ApplyOutcome = "code_not_found"
	OutcomeSelfReferral    ApplyOutcome = "self_referral"
	OutcomeAlreadyReferred ApplyOutcome = "already_referred"
)

// ApplyResult reports the outcome of applying a referral code at signup.
type ApplyResult struct {
	Outcome  ApplyOutcome
	Message  string
	Referral referral.Referral
}

// Applied reports whether the code was accepted.
func (r ApplyResult) Applied() bool { return r.Outcome == OutcomeApplied }

// ActivateResult reports the outcome of a referral activation attempt.
type ActivateResult struct {
	Activated bool
	Referral  referral.Referral
}

// Service is the referral registry.
type Service struct {
	accounts storage.AccountStore
	rewards  storage.RewardsStore
	refs     storage.ReferralStore
	policy   policy.Policy
	notifier notify.Notifier
	log      *logger.Logger

	now func() time.Time
}

// New constructs the referral registry.
func New(accounts storage.AccountStore, rewards storage.RewardsStore, refs storage.ReferralStore, pol policy.Policy, notifier notify.Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("referrals")
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Service{
		accounts: accounts,
		rewards:  rewards,
		refs:     refs,
		policy:   pol,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateCode returns the account's referral code, deriving and storing
// one on first use. Concurrent first calls converge on a single stored code;
// generation collisions with other accounts are retried against the
// uniqueness constraint.
func (s *Service) GetOrCreateCode(ctx context.Context, userID string) (string, error) {
	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	if acct.ReferralCode != "" {
		return acct.ReferralCode, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := deriveCode(userID, attempt, s.now())
		stored, err := s.accounts.EnsureReferralCode(ctx, userID, code)
		if err != nil {
			if errors.Is(err, storage.ErrCodeTaken) {
				continue
			}
			return "", err
		}
		if stored != code {
			// Another caller won the race; their code stands.
			return stored, nil
		}
		s.log.WithField("user_id", userID).Info("referral code issued")
		return stored, nil
	}
	return "", fmt.Errorf("referral code generation exhausted %d attempts for user %s", maxCodeAttempts, userID)
}

// Apply links a new account to the referrer owning code, credits the signup
// discount to the new account's wallet, and records a pending referral, all
// atomically. Expected rejections come back as outcomes, not errors.
func (s *Service) Apply(ctx context.Context, newUserID, code string) (ApplyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ApplyResult{Outcome: OutcomeCodeNotFound, Message: "referral code is required"}, nil
	}

	referrer, err := s.accounts.GetAccountByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ApplyResult{Outcome: OutcomeCodeNotFound, Message: "unknown referral code"}, nil
		}
		return ApplyResult{}, err
	}
	if referrer.ID == newUserID {
		return ApplyResult{Outcome: OutcomeSelfReferral, Message: "you cannot use your own referral code"}, nil
	}

	ref, err := s.rewards.LinkReferral(ctx, newUserID, referrer.ID, s.policy.RefereeDiscountCents, s.policy.ReferrerRewardCents)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrDuplicate) {
			return ApplyResult{Outcome: OutcomeAlreadyReferred, Message: "account already used a referral code"}, nil
		}
		return ApplyResult{}, err
	}

	metrics.RecordReferralApplied()
	s.log.WithField("referrer_id", referrer.ID).
		WithField("referee_id", newUserID).
		Info("referral code applied")
	return ApplyResult{Outcome: OutcomeApplied, Message: "referral applied", Referral: ref}, nil
}

// Activate completes the referee's pending referral once their order total
// reaches the qualifying minimum, crediting the referrer's wallet. Below the
// threshold, or without a pending referral, it is a no-op. Replays are safe:
// the transition is conditioned on the pending status.
func (s *Service) Activate(ctx context.Context, refereeID string, orderTotalCents int64) (ActivateResult, error) {
	if orderTotalCents < s.policy.MinQualifyingOrderCents {
		return ActivateResult{}, nil
	}

	ref, activated, err := s.rewards.ActivateReferral(ctx, refereeID, s.now())
	if err != nil {
		return ActivateResult{}, err
	}
	if !activated {
		return ActivateResult{}, nil
	}

	metrics.RecordReferralCompleted()
	s.log.WithField("referrer_id", ref.ReferrerID).
		WithField("referee_id", refereeID).
		WithField("reward_cents", ref.RewardCents).
		Info("referral reward activated")

	// Best effort; never rolls back the credit.
	s.notifier.ReferralRewardEarned(ctx, ref.ReferrerID, ref.RewardCents)

	return ActivateResult{Activated: true, Referral: ref}, nil
}

// ListByReferrer returns all referrals where the user is the referrer.
func (s *Service) ListByReferrer(ctx context.Context, referrerID string) ([]referral.Referral, error) {
	return s.refs.ListReferralsByReferrer(ctx, referrerID)
}
