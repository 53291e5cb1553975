// Package tiers implements the membership tier classifier and the tier
// policy surface.
package tiers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/metrics"
	"github.com/cartloom/rewards/internal/app/notify"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// Change describes a tier upgrade that just happened.
type Change struct {
	UserID    string
	Tier      tier.Tier
	ChangedAt time.Time
}

// SyncResult always reports the authoritative current tier, whether or not a
// change just occurred.
type SyncResult struct {
	Changed            bool
	CurrentTier        *tier.Tier
	LifetimeSpentCents int64
}

// Service classifies accounts into tiers and manages the tier table.
type Service struct {
	accounts storage.AccountStore
	rewards  storage.RewardsStore
	tiers    storage.TierStore
	benefits map[string][]string
	notifier notify.Notifier
	log      *logger.Logger

	now func() time.Time
}

// New constructs the tier classifier. benefits maps tier name to its static
// benefit list.
func New(accounts storage.AccountStore, rewards storage.RewardsStore, tiers storage.TierStore, benefits map[string][]string, notifier notify.Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tiers")
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Service{
		accounts: accounts,
		rewards:  rewards,
		tiers:    tiers,
		benefits: benefits,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Classify recomputes the account's tier from lifetime spend. It selects the
// highest tier whose threshold is at or below the spend; no qualifying tier
// or an unchanged tier is a no-op. Tiers never move downward here.
func (s *Service) Classify(ctx context.Context, userID string) (Change, bool, error) {
	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return Change{}, false, err
	}

	all, err := s.tiers.ListTiers(ctx)
	if err != nil {
		return Change{}, false, err
	}

	var selected, current *tier.Tier
	for i := range all {
		if selected == nil && all[i].Qualifies(acct.LifetimeSpentCents) {
			selected = &all[i]
		}
		if all[i].ID == acct.TierID {
			current = &all[i]
		}
	}
	if selected == nil || selected.ID == acct.TierID {
		return Change{}, false, nil
	}
	// Tiers only move upward. A raised threshold can drop the account
	// below its tier's new floor; the earned tier sticks.
	if current != nil && selected.MinSpendCents < current.MinSpendCents {
		return Change{}, false, nil
	}

	now := s.now()
	if _, err := s.rewards.AssignTier(ctx, userID, selected.ID, now); err != nil {
		return Change{}, false, err
	}

	metrics.RecordTierChange(selected.Name)
	s.log.WithField("user_id", userID).
		WithField("tier", selected.Name).
		WithField("lifetime_spent_cents", acct.LifetimeSpentCents).
		Info("membership tier upgraded")

	benefits, ok := s.benefits[selected.Name]
	if !ok {
		s.log.WithField("tier", selected.Name).Warn("no benefit list configured for tier")
	}
	// In-app and email dispatch; failure never unwinds the upgrade.
	s.notifier.TierChanged(ctx, userID, selected.DisplayName, benefits)

	return Change{UserID: userID, Tier: *selected, ChangedAt: now}, true, nil
}

// Sync runs Classify and reports the authoritative tier state either way.
func (s *Service) Sync(ctx context.Context, userID string) (SyncResult, error) {
	_, changed, err := s.Classify(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Changed: changed, LifetimeSpentCents: acct.LifetimeSpentCents}
	if acct.TierID != "" {
		current, err := s.tiers.GetTier(ctx, acct.TierID)
		switch {
		case err == nil:
			result.CurrentTier = &current
		case errors.Is(err, storage.ErrNotFound):
			// The assigned tier was removed from the table; report
			// the spend without a tier rather than failing the sync.
			s.log.WithField("user_id", userID).
				WithField("tier_id", acct.TierID).
				Warn("assigned tier missing from tier table")
		default:
			return SyncResult{}, err
		}
	}
	return result, nil
}

// List returns the tier table ordered by threshold descending.
func (s *Service) List(ctx context.Context) ([]tier.Tier, error) {
	return s.tiers.ListTiers(ctx)
}

// Replace swaps the tier policy table. Names must be unique and non-empty.
func (s *Service) Replace(ctx context.Context, tiers []tier.Tier) ([]tier.Tier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	seen := make(map[string]struct{}, len(tiers))
	for i := range tiers {
		tiers[i].Name = strings.ToLower(strings.TrimSpace(tiers[i].Name))
		if tiers[i].Name == "" {
			return nil, fmt.Errorf("tier name is required")
		}
		if tiers[i].DisplayName == "" {
			return nil, fmt.Errorf("tier %s: display name is required", tiers[i].Name)
		}
		if tiers[i].MinSpendCents < 0 {
			return nil, fmt.Errorf("tier %s: min spend must be non-negative", tiers[i].Name)
		}
		if _, dup := seen[tiers[i].Name]; dup {
			return nil, fmt.Errorf("tier %s: duplicate name", tiers[i].Name)
		}
		seen[tiers[i].Name] = struct{}{}
	}

	replaced, err := s.tiers.ReplaceTiers(ctx, tiers)
	if err != nil {
		return nil, err
	}
	s.log.WithField("tiers", len(replaced)).Info("tier table replaced")
	return replaced, nil
}
