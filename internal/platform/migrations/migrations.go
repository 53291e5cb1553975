// Package migrations applies the rewards engine schema. Statements are
// ordered and idempotent so Apply can run at every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS reward_accounts (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		referral_code TEXT,
		referred_by_id TEXT REFERENCES reward_accounts (id),
		loyalty_points BIGINT NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0),
		wallet_balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (wallet_balance_cents >= 0),
		lifetime_spent_cents BIGINT NOT NULL DEFAULT 0 CHECK (lifetime_spent_cents >= 0),
		tier_id TEXT,
		tier_changed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS reward_accounts_referral_code_key
		ON reward_accounts (referral_code)
		WHERE referral_code IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS reward_referrals (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL REFERENCES reward_accounts (id),
		referee_id TEXT NOT NULL UNIQUE REFERENCES reward_accounts (id),
		status TEXT NOT NULL,
		reward_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		CHECK (referrer_id <> referee_id)
	)`,

	`CREATE TABLE IF NOT EXISTS reward_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES reward_accounts (id),
		order_id TEXT NOT NULL DEFAULT '',
		points BIGINT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS reward_ledger_order_kind_key
		ON reward_ledger (user_id, order_id, kind)
		WHERE order_id <> ''`,

	`CREATE TABLE IF NOT EXISTS reward_spends (
		user_id TEXT NOT NULL REFERENCES reward_accounts (id),
		order_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, order_id)
	)`,

	`CREATE TABLE IF NOT EXISTS reward_tiers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		min_spend_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reward_settlements (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		settled_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
