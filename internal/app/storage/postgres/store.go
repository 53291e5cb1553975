// Package postgres implements the storage interfaces backed by PostgreSQL.
//
// Composite reward mutations run inside a single transaction with the
// affected account row locked via SELECT ... FOR UPDATE. Idempotency and
// uniqueness (order credits, referral codes, one referral per referee) are
// enforced by unique indexes, with unique violations mapped to the storage
// sentinels.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/referral"
	"github.com/cartloom/rewards/internal/app/domain/reward"
	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces using a PostgreSQL handle.
type Store struct {
	db *sql.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.ReferralStore = (*Store)(nil)
var _ storage.TierStore = (*Store)(nil)
var _ storage.RewardsStore = (*Store)(nil)
var _ storage.SettlementStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- AccountStore -----------------------------------------------------------

const accountColumns = `id, owner, referral_code, referred_by_id, loyalty_points,
	wallet_balance_cents, lifetime_spent_cents, tier_id, tier_changed_at,
	created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (account.Account, error) {
	var (
		acct          account.Account
		referralCode  sql.NullString
		referredBy    sql.NullString
		tierID        sql.NullString
		tierChangedAt sql.NullTime
	)
	err := row.Scan(&acct.ID, &acct.Owner, &referralCode, &referredBy,
		&acct.LoyaltyPoints, &acct.WalletBalanceCents, &acct.LifetimeSpentCents,
		&tierID, &tierChangedAt, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, storage.ErrNotFound
		}
		return account.Account{}, err
	}
	acct.ReferralCode = referralCode.String
	acct.ReferredByID = referredBy.String
	acct.TierID = tierID.String
	if tierChangedAt.Valid {
		acct.TierChangedAt = tierChangedAt.Time.UTC()
	}
	return acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reward_accounts (id, owner, referral_code, referred_by_id, loyalty_points,
			wallet_balance_cents, lifetime_spent_cents, tier_id, tier_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, acct.ID, acct.Owner, toNullString(acct.ReferralCode), toNullString(acct.ReferredByID),
		acct.LoyaltyPoints, acct.WalletBalanceCents, acct.LifetimeSpentCents,
		toNullString(acct.TierID), toNullTime(acct.TierChangedAt), acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, storage.ErrDuplicate
		}
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM reward_accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByReferralCode(ctx context.Context, code string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM reward_accounts
		WHERE referral_code = $1
	`, code)
	return scanAccount(row)
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM reward_accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) EnsureReferralCode(ctx context.Context, userID, code string) (string, error) {
	var stored string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acct.ReferralCode != "" {
			stored = acct.ReferralCode
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE reward_accounts
			SET referral_code = $2, updated_at = $3
			WHERE id = $1
		`, userID, code, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrCodeTaken
			}
			return err
		}
		stored = code
		return nil
	})
	if err != nil {
		return "", err
	}
	return stored, nil
}

func lockAccount(ctx context.Context, tx *sql.Tx, id string) (account.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM reward_accounts
		WHERE id = $1
		FOR UPDATE
	`, id)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return account.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
		}
		return account.Account{}, err
	}
	return acct, nil
}

func saveAccount(ctx context.Context, tx *sql.Tx, acct account.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE reward_accounts
		SET referral_code = $2, referred_by_id = $3, loyalty_points = $4,
			wallet_balance_cents = $5, lifetime_spent_cents = $6, tier_id = $7,
			tier_changed_at = $8, updated_at = $9
		WHERE id = $1
	`, acct.ID, toNullString(acct.ReferralCode), toNullString(acct.ReferredByID),
		acct.LoyaltyPoints, acct.WalletBalanceCents, acct.LifetimeSpentCents,
		toNullString(acct.TierID), toNullTime(acct.TierChangedAt), acct.UpdatedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("account %s: %w", acct.ID, storage.ErrNotFound)
	}
	return nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) ListLedgerEntries(ctx context.Context, userID string) ([]reward.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, order_id, points, kind, description, created_at
		FROM reward_ledger
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reward.Transaction
	for rows.Next() {
		var entry reward.Transaction
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.OrderID, &entry.Points,
			&entry.Kind, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, entry reward.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reward_ledger (id, user_id, order_id, points, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.OrderID, entry.Points, entry.Kind, entry.Description, entry.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	return err
}

// --- ReferralStore ----------------------------------------------------------

func scanReferral(row interface{ Scan(...interface{}) error }) (referral.Referral, error) {
	var (
		ref         referral.Referral
		completedAt sql.NullTime
	)
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.RefereeID, &ref.Status,
		&ref.RewardCents, &ref.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return referral.Referral{}, storage.ErrNotFound
		}
		return referral.Referral{}, err
	}
	if completedAt.Valid {
		ref.CompletedAt = completedAt.Time.UTC()
	}
	return ref, nil
}

func (s *Store) GetReferralByReferee(ctx context.Context, refereeID string) (referral.Referral, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, referrer_id, referee_id, status, reward_cents, created_at, completed_at
		FROM reward_referrals
		WHERE referee_id = $1
	`, refereeID)
	return scanReferral(row)
}

func (s *Store) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]referral.Referral, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, referrer_id, referee_id, status, reward_cents, created_at, completed_at
		FROM reward_referrals
		WHERE referrer_id = $1
		ORDER BY created_at
	`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []referral.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *Store) CountCompletedReferrals(ctx context.Context, referrerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reward_referrals
		WHERE referrer_id = $1 AND status = $2
	`, referrerID, referral.StatusCompleted).Scan(&count)
	return count, err
}

// --- TierStore --------------------------------------------------------------

func (s *Store) ReplaceTiers(ctx context.Context, tiers []tier.Tier) ([]tier.Tier, error) {
	now := time.Now().UTC()
	out := make([]tier.Tier, 0, len(tiers))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, name, created_at FROM reward_tiers`)
		if err != nil {
			return err
		}
		existing := make(map[string]tier.Tier)
		for rows.Next() {
			var t tier.Tier
			if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			existing[t.Name] = t
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		kept := make(map[string]struct{}, len(tiers))
		for i := range tiers {
			kept[tiers[i].Name] = struct{}{}
		}
		for name, prev := range existing {
			if _, ok := kept[name]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM reward_tiers WHERE id = $1`, prev.ID); err != nil {
				return err
			}
		}

		for _, t := range tiers {
			// Accounts reference tiers by ID; a tier that keeps its
			// name keeps its ID across replacements.
			if prev, ok := existing[t.Name]; ok {
				t.ID = prev.ID
				t.CreatedAt = prev.CreatedAt.UTC()
				t.UpdatedAt = now
				if _, err := tx.ExecContext(ctx, `
					UPDATE reward_tiers
					SET display_name = $2, min_spend_cents = $3, updated_at = $4
					WHERE id = $1
				`, t.ID, t.DisplayName, t.MinSpendCents, t.UpdatedAt); err != nil {
					return err
				}
				out = append(out, t)
				continue
			}

			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			t.CreatedAt = now
			t.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reward_tiers (id, name, display_name, min_spend_cents, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, t.Name, t.DisplayName, t.MinSpendCents, t.CreatedAt, t.UpdatedAt); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("tier %s: %w", t.Name, storage.ErrDuplicate)
				}
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, min_spend_cents, created_at, updated_at
		FROM reward_tiers
		ORDER BY min_spend_cents DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tier.Tier
	for rows.Next() {
		var t tier.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.DisplayName, &t.MinSpendCents, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTier(ctx context.Context, id string) (tier.Tier, error) {
	var t tier.Tier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, min_spend_cents, created_at, updated_at
		FROM reward_tiers
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.DisplayName, &t.MinSpendCents, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tier.Tier{}, storage.ErrNotFound
		}
		return tier.Tier{}, err
	}
	return t, nil
}

// --- RewardsStore -----------------------------------------------------------

func (s *Store) LinkReferral(ctx context.Context, refereeID, referrerID string, refereeCreditCents, rewardCents int64) (referral.Referral, error) {
	var ref referral.Referral
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		referee, err := lockAccount(ctx, tx, refereeID)
		if err != nil {
			return err
		}
		if referee.ReferredByID != "" {
			return fmt.Errorf("account %s already referred: %w", refereeID, storage.ErrConflict)
		}

		now := time.Now().UTC()
		if err := referee.Apply(now,
			account.ReferrerLinked{ReferrerID: referrerID},
			account.WalletCredited{AmountCents: refereeCreditCents},
		); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, referee); err != nil {
			return err
		}

		ref = referral.Referral{
			ID:          uuid.NewString(),
			ReferrerID:  referrerID,
			RefereeID:   refereeID,
			Status:      referral.StatusPending,
			RewardCents: rewardCents,
			CreatedAt:   now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reward_referrals (id, referrer_id, referee_id, status, reward_cents, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ref.ID, ref.ReferrerID, ref.RefereeID, ref.Status, ref.RewardCents, ref.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("referral for %s: %w", refereeID, storage.ErrDuplicate)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return referral.Referral{}, err
	}
	return ref, nil
}

func (s *Store) ActivateReferral(ctx context.Context, refereeID string, now time.Time) (referral.Referral, bool, error) {
	var (
		ref       referral.Referral
		activated bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// The status predicate makes the transition fire at most once.
		row := tx.QueryRowContext(ctx, `
			UPDATE reward_referrals
			SET status = $2, completed_at = $3
			WHERE referee_id = $1 AND status = $4
			RETURNING id, referrer_id, referee_id, status, reward_cents, created_at, completed_at
		`, refereeID, referral.StatusCompleted, now, referral.StatusPending)

		updated, err := scanReferral(row)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}

		referrer, err := lockAccount(ctx, tx, updated.ReferrerID)
		if err != nil {
			return err
		}
		if err := referrer.Apply(now, account.WalletCredited{AmountCents: updated.RewardCents}); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, referrer); err != nil {
			return err
		}

		ref = updated
		activated = true
		return nil
	})
	if err != nil {
		return referral.Referral{}, false, err
	}
	return ref, activated, nil
}

func (s *Store) CreditPoints(ctx context.Context, userID, orderID string, points int64, description string, now time.Time) (bool, error) {
	credited := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := acct.Apply(now, account.PointsEarned{Points: points}); err != nil {
			return err
		}

		entry := reward.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			OrderID:     orderID,
			Points:      points,
			Kind:        reward.KindEarned,
			Description: description,
			CreatedAt:   now,
		}
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
		return saveAccount(ctx, tx, acct)
	})
	if err != nil {
		// A replayed order hits the (user_id, order_id, kind) unique
		// index; the transaction rolls back and nothing is credited.
		if errors.Is(err, storage.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	credited = true
	return credited, nil
}

func (s *Store) RedeemPoints(ctx context.Context, userID, orderID string, points int64, description string, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acct.LoyaltyPoints < points {
			return fmt.Errorf("account %s has %d points, need %d: %w", userID, acct.LoyaltyPoints, points, storage.ErrConflict)
		}
		if err := acct.Apply(now, account.PointsRedeemed{Points: points}); err != nil {
			return err
		}

		entry := reward.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			OrderID:     orderID,
			Points:      -points,
			Kind:        reward.KindRedeemed,
			Description: description,
			CreatedAt:   now,
		}
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
		return saveAccount(ctx, tx, acct)
	})
}

func (s *Store) CreditWallet(ctx context.Context, userID string, amountCents int64) (account.Account, error) {
	return s.applyToAccount(ctx, userID, account.WalletCredited{AmountCents: amountCents})
}

func (s *Store) RecordSpend(ctx context.Context, userID, orderID string, amountCents int64) (account.Account, error) {
	if orderID == "" {
		return s.applyToAccount(ctx, userID, account.SpendRecorded{AmountCents: amountCents})
	}

	var out account.Account
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO reward_spends (user_id, order_id, amount_cents, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, order_id) DO NOTHING
		`, userID, orderID, amountCents, now)
		if err != nil {
			return err
		}
		// Zero rows means the order's spend was already recorded.
		if rows, _ := result.RowsAffected(); rows == 0 {
			out = acct
			return nil
		}

		if err := acct.Apply(now, account.SpendRecorded{AmountCents: amountCents}); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return out, nil
}

func (s *Store) AssignTier(ctx context.Context, userID, tierID string, now time.Time) (account.Account, error) {
	var out account.Account
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := acct.Apply(now, account.TierAssigned{TierID: tierID}); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return out, nil
}

func (s *Store) applyToAccount(ctx context.Context, userID string, events ...account.Event) (account.Account, error) {
	var out account.Account
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := acct.Apply(time.Now().UTC(), events...); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return out, nil
}

// --- SettlementStore --------------------------------------------------------

func (s *Store) EnqueueSettlement(ctx context.Context, ord settlement.Order) (settlement.Order, error) {
	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ord.Status = settlement.StatusPending
	ord.CreatedAt = now
	ord.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reward_settlements (id, order_id, user_id, total_cents, settled_at, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ord.ID, ord.OrderID, ord.UserID, ord.TotalCents, ord.SettledAt, ord.Status, ord.Attempts, ord.LastError, ord.CreatedAt, ord.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getSettlementByOrder(ctx, ord.OrderID)
			if getErr != nil {
				return settlement.Order{}, fmt.Errorf("settlement for order %s: %w", ord.OrderID, storage.ErrDuplicate)
			}
			return existing, fmt.Errorf("settlement for order %s: %w", ord.OrderID, storage.ErrDuplicate)
		}
		return settlement.Order{}, err
	}
	return ord, nil
}

func (s *Store) getSettlementByOrder(ctx context.Context, orderID string) (settlement.Order, error) {
	var ord settlement.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, total_cents, settled_at, status, attempts, last_error, created_at, updated_at
		FROM reward_settlements
		WHERE order_id = $1
	`, orderID).Scan(&ord.ID, &ord.OrderID, &ord.UserID, &ord.TotalCents, &ord.SettledAt,
		&ord.Status, &ord.Attempts, &ord.LastError, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Order{}, fmt.Errorf("settlement for order %s: %w", orderID, storage.ErrNotFound)
	}
	if err != nil {
		return settlement.Order{}, err
	}
	return ord, nil
}

func (s *Store) ListPendingSettlements(ctx context.Context) ([]settlement.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, total_cents, settled_at, status, attempts, last_error, created_at, updated_at
		FROM reward_settlements
		WHERE status = $1
		ORDER BY created_at
	`, settlement.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Order
	for rows.Next() {
		var ord settlement.Order
		if err := rows.Scan(&ord.ID, &ord.OrderID, &ord.UserID, &ord.TotalCents, &ord.SettledAt,
			&ord.Status, &ord.Attempts, &ord.LastError, &ord.CreatedAt, &ord.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func (s *Store) MarkSettlement(ctx context.Context, id string, status settlement.Status, attempts int, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reward_settlements
		SET status = $2, attempts = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`, id, status, attempts, lastError, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("settlement %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
