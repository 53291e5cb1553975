package tiers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/pkg/logger"
)

// Resync walks every account on a cron schedule and reclassifies its tier.
// It picks up accounts whose tier drifted from policy, e.g. after the tier
// table was replaced with lower thresholds.
type Resync struct {
	accounts storage.AccountStore
	svc      *Service
	schedule string
	cron     *cron.Cron
	log      *logger.Logger
}

// NewResync builds the scheduled reclassification job. schedule accepts
// standard cron expressions and descriptors such as "@daily".
func NewResync(accounts storage.AccountStore, svc *Service, schedule string, log *logger.Logger) *Resync {
	if log == nil {
		log = logger.NewDefault("tiers-resync")
	}
	return &Resync{
		accounts: accounts,
		svc:      svc,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      log,
	}
}

// Name implements system.Service.
func (r *Resync) Name() string { return "tiers-resync" }

// Start implements system.Service.
func (r *Resync) Start(context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return fmt.Errorf("schedule tier resync %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.log.WithField("schedule", r.schedule).Info("tier resync scheduled")
	return nil
}

// Stop implements system.Service. It waits for an in-flight run to finish.
func (r *Resync) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resync) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := r.RunOnce(ctx); err != nil {
		r.log.WithError(err).Warn("tier resync pass failed")
	}
}

// RunOnce reclassifies every account immediately.
func (r *Resync) RunOnce(ctx context.Context) error {
	ids, err := r.accounts.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var changed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, didChange, err := r.svc.Classify(ctx, id)
		if err != nil {
			r.log.WithError(err).WithField("user_id", id).Warn("tier resync skipped account")
			continue
		}
		if didChange {
			changed++
		}
	}

	r.log.WithField("accounts", len(ids)).
		WithField("changed", changed).
		Info("tier resync pass complete")
	return nil
}
