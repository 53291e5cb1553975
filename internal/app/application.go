package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cartloom/rewards/internal/app/notify"
	"github.com/cartloom/rewards/internal/app/policy"
	"github.com/cartloom/rewards/internal/app/services/accounts"
	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/internal/app/services/referrals"
	settlementsvc "github.com/cartloom/rewards/internal/app/services/settlement"
	tierssvc "github.com/cartloom/rewards/internal/app/services/tiers"
	"github.com/cartloom/rewards/internal/app/services/wallet"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/internal/app/storage/memory"
	"github.com/cartloom/rewards/internal/app/system"
	"github.com/cartloom/rewards/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts    storage.AccountStore
	Ledger      storage.LedgerStore
	Referrals   storage.ReferralStore
	Tiers       storage.TierStore
	Rewards     storage.RewardsStore
	Settlements storage.SettlementStore
}

// Options tunes application construction beyond the stores.
type Options struct {
	// Policy defaults to policy.Default() when zero.
	Policy policy.Policy
	// Benefits maps tier name to its benefit list for notifications.
	Benefits map[string][]string
	// SummaryCache may be nil to disable summary caching.
	SummaryCache loyalty.SummaryCache
	// Notifier defaults to the logging notifier.
	Notifier notify.Notifier
	// PollInterval tunes the settlement queue drain; <= 0 uses the default.
	PollInterval time.Duration
	// ResyncSchedule is a cron expression for the tier resync job. Empty
	// disables the job.
	ResyncSchedule string
}

// Application ties the reward services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts    *accounts.Service
	Wallet      *wallet.Service
	Referrals   *referrals.Service
	Loyalty     *loyalty.Service
	Tiers       *tierssvc.Service
	Settlements *settlementsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Referrals == nil {
		stores.Referrals = mem
	}
	if stores.Tiers == nil {
		stores.Tiers = mem
	}
	if stores.Rewards == nil {
		stores.Rewards = mem
	}
	if stores.Settlements == nil {
		stores.Settlements = mem
	}

	pol := opts.Policy
	if pol == (policy.Policy{}) {
		pol = policy.Default()
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("reward policy: %w", err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}

	manager := system.NewManager()

	acctService := accounts.New(stores.Accounts, log)
	walletService := wallet.New(stores.Rewards, log)
	refService := referrals.New(stores.Accounts, stores.Rewards, stores.Referrals, pol, notifier, log)
	loyaltyService := loyalty.New(stores.Accounts, stores.Rewards, stores.Ledger, stores.Referrals, pol, opts.SummaryCache, log)
	tierService := tierssvc.New(stores.Accounts, stores.Rewards, stores.Tiers, opts.Benefits, notifier, log)
	settlementService := settlementsvc.New(stores.Settlements, stores.Rewards, loyaltyService, refService, tierService, log)

	for _, name := range []string{"accounts", "wallet", "referrals", "loyalty"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	poller := settlementsvc.NewPoller(stores.Settlements, settlementService, opts.PollInterval, log)
	if err := manager.Register(poller); err != nil {
		return nil, fmt.Errorf("register %s: %w", poller.Name(), err)
	}

	if opts.ResyncSchedule != "" {
		resync := tierssvc.NewResync(stores.Accounts, tierService, opts.ResyncSchedule, log)
		if err := manager.Register(resync); err != nil {
			return nil, fmt.Errorf("register %s: %w", resync.Name(), err)
		}
	} else {
		log.Warn("tier resync schedule not set; scheduled reclassification disabled")
	}

	return &Application{
		manager:     manager,
		log:         log,
		Accounts:    acctService,
		Wallet:      walletService,
		Referrals:   refService,
		Loyalty:     loyaltyService,
		Tiers:       tierService,
		Settlements: settlementService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
