// Package main runs the rewards engine server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/cartloom/rewards/internal/app"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/httpapi"
	"github.com/cartloom/rewards/internal/app/metrics"
	"github.com/cartloom/rewards/internal/app/notify"
	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/internal/app/storage/postgres"
	"github.com/cartloom/rewards/internal/config"
	"github.com/cartloom/rewards/internal/platform/cache"
	"github.com/cartloom/rewards/internal/platform/migrations"
	"github.com/cartloom/rewards/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to rewards.yaml (optional)")
	flag.Parse()

	if v := os.Getenv("REWARDS_CONFIG"); v != "" && *configPath == "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("rewardsd", cfg.LogLevel, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("rewardsd exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var summaryCache loyalty.SummaryCache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisCache.Close()
		summaryCache = redisCache
		log.WithField("addr", cfg.Redis.Addr).Info("summary cache enabled")
	}

	var notifier notify.Notifier
	if cfg.Notify.Endpoint != "" {
		webhook, err := notify.NewWebhookNotifier(&http.Client{Timeout: 10 * time.Second}, cfg.Notify.Endpoint, cfg.Notify.APIKey, log)
		if err != nil {
			return fmt.Errorf("configure webhook notifier: %w", err)
		}
		notifier = webhook
	}

	application, err := app.New(stores, app.Options{
		Policy:         cfg.Policy,
		Benefits:       cfg.Benefits,
		SummaryCache:   summaryCache,
		Notifier:       notifier,
		PollInterval:   cfg.PollInterval,
		ResyncSchedule: cfg.ResyncSchedule,
	}, log)
	if err != nil {
		return fmt.Errorf("assemble application: %w", err)
	}

	if err := seedTiers(ctx, application, cfg.Tiers, log); err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	api := httpapi.NewHandler(application)
	limiter := httpapi.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", limiter.Handler(metrics.InstrumentHandler(api)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("rewards API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}

	log.Info("rewardsd stopped")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.Driver != "postgres" {
		log.Info("using in-memory store")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	log.Info("using postgres store")
	return app.Stores{
		Accounts:    store,
		Ledger:      store,
		Referrals:   store,
		Tiers:       store,
		Rewards:     store,
		Settlements: store,
	}, db, nil
}

func seedTiers(ctx context.Context, application *app.Application, seeds []config.TierSeed, log *logger.Logger) error {
	existing, err := application.Tiers.List(ctx)
	if err != nil {
		return fmt.Errorf("list tiers: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	tiers := make([]tier.Tier, 0, len(seeds))
	for _, s := range seeds {
		tiers = append(tiers, tier.Tier{
			Name:          s.Name,
			DisplayName:   s.DisplayName,
			MinSpendCents: s.MinSpendCents,
		})
	}
	if _, err := application.Tiers.Replace(ctx, tiers); err != nil {
		return fmt.Errorf("seed tiers: %w", err)
	}
	log.WithField("tiers", len(tiers)).Info("tier table seeded")
	return nil
}
