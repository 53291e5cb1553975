package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/referral"
	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/policy"
	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/internal/app/services/referrals"
	"github.com/cartloom/rewards/internal/app/services/tiers"
	"github.com/cartloom/rewards/internal/app/storage/memory"
)

type fixture struct {
	store     *memory.Store
	loyalty   *loyalty.Service
	referrals *referrals.Service
	tiers     *tiers.Service
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	pol := policy.Default()

	if _, err := store.ReplaceTiers(context.Background(), []tier.Tier{
		{Name: "bronze", DisplayName: "Bronze", MinSpendCents: 0},
		{Name: "silver", DisplayName: "Silver", MinSpendCents: 5000},
		{Name: "gold", DisplayName: "Gold", MinSpendCents: 20000},
	}); err != nil {
		t.Fatalf("seed tiers: %v", err)
	}

	loyaltySvc := loyalty.New(store, store, store, store, pol, nil, nil)
	refsSvc := referrals.New(store, store, store, pol, nil, nil)
	tiersSvc := tiers.New(store, store, store, nil, nil, nil)
	svc := New(store, store, loyaltySvc, refsSvc, tiersSvc, nil)
	return &fixture{store: store, loyalty: loyaltySvc, referrals: refsSvc, tiers: tiersSvc, svc: svc}
}

func TestEnqueue_DuplicateOrderAccepted(t *testing.T) {
	f := newFixture(t)
	acct, _ := f.store.CreateAccount(context.Background(), account.Account{Owner: "owner"})

	first, err := f.svc.Enqueue(context.Background(), "ord-1", acct.ID, 1000, time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := f.svc.Enqueue(context.Background(), "ord-1", acct.ID, 1000, time.Time{})
	if err != nil {
		t.Fatalf("duplicate enqueue must be accepted: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate enqueue returned a different row: %s vs %s", second.ID, first.ID)
	}

	pending, _ := f.store.ListPendingSettlements(context.Background())
	if len(pending) != 1 {
		t.Fatalf("expected one pending settlement, got %d", len(pending))
	}
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Enqueue(context.Background(), "", "user", 100, time.Time{}); err == nil {
		t.Fatalf("expected error for missing order id")
	}
	if _, err := f.svc.Enqueue(context.Background(), "ord", " ", 100, time.Time{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := f.svc.Enqueue(context.Background(), "ord", "user", -1, time.Time{}); err == nil {
		t.Fatalf("expected error for negative total")
	}
}

func TestProcess_FullReferralScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, _ := f.store.CreateAccount(ctx, account.Account{Owner: "alice"})
	bob, _ := f.store.CreateAccount(ctx, account.Account{Owner: "bob"})

	code, err := f.referrals.GetOrCreateCode(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	applied, err := f.referrals.Apply(ctx, bob.ID, code)
	if err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if !applied.Applied() {
		t.Fatalf("expected code applied, got %s", applied.Outcome)
	}

	bobAfterSignup, _ := f.store.GetAccount(ctx, bob.ID)
	if bobAfterSignup.WalletBalanceCents != 500 {
		t.Fatalf("signup discount: got %d cents, want 500", bobAfterSignup.WalletBalanceCents)
	}

	ord, err := f.svc.Enqueue(ctx, "ord-bob-1", bob.ID, 70000, time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.svc.Process(ctx, ord); err != nil {
		t.Fatalf("process: %v", err)
	}

	gotBob, _ := f.store.GetAccount(ctx, bob.ID)
	if gotBob.LoyaltyPoints != 700 {
		t.Fatalf("bob points: got %d, want 700", gotBob.LoyaltyPoints)
	}
	if gotBob.LifetimeSpentCents != 70000 {
		t.Fatalf("bob lifetime spend: got %d, want 70000", gotBob.LifetimeSpentCents)
	}
	bobTier, _ := f.store.GetTier(ctx, gotBob.TierID)
	if bobTier.Name != "gold" {
		t.Fatalf("bob tier: got %s, want gold", bobTier.Name)
	}

	gotAlice, _ := f.store.GetAccount(ctx, alice.ID)
	if gotAlice.WalletBalanceCents != 10000 {
		t.Fatalf("alice reward: got %d cents, want 10000", gotAlice.WalletBalanceCents)
	}
	ref, err := f.store.GetReferralByReferee(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get referral: %v", err)
	}
	if ref.Status != referral.StatusCompleted {
		t.Fatalf("referral status: got %s, want completed", ref.Status)
	}
}

func TestProcess_BelowThresholdLeavesReferralPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, _ := f.store.CreateAccount(ctx, account.Account{Owner: "alice"})
	bob, _ := f.store.CreateAccount(ctx, account.Account{Owner: "bob"})
	code, _ := f.referrals.GetOrCreateCode(ctx, alice.ID)
	f.referrals.Apply(ctx, bob.ID, code)

	ord, _ := f.svc.Enqueue(ctx, "ord-small", bob.ID, 4999, time.Time{})
	if err := f.svc.Process(ctx, ord); err != nil {
		t.Fatalf("process: %v", err)
	}

	ref, _ := f.store.GetReferralByReferee(ctx, bob.ID)
	if ref.Status != referral.StatusPending {
		t.Fatalf("referral must stay pending below the qualifying minimum, got %s", ref.Status)
	}
	gotAlice, _ := f.store.GetAccount(ctx, alice.ID)
	if gotAlice.WalletBalanceCents != 0 {
		t.Fatalf("referrer must not be paid below the threshold, got %d", gotAlice.WalletBalanceCents)
	}
	gotBob, _ := f.store.GetAccount(ctx, bob.ID)
	if gotBob.LoyaltyPoints != 49 {
		t.Fatalf("points still accrue below the threshold: got %d, want 49", gotBob.LoyaltyPoints)
	}
}

func TestProcess_ReplayedOrderDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, _ := f.store.CreateAccount(ctx, account.Account{Owner: "owner"})
	ord := settlement.Order{OrderID: "ord-replay", UserID: acct.ID, TotalCents: 10000}

	if err := f.svc.Process(ctx, ord); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := f.svc.Process(ctx, ord); err != nil {
		t.Fatalf("second process: %v", err)
	}

	got, _ := f.store.GetAccount(ctx, acct.ID)
	if got.LoyaltyPoints != 100 {
		t.Fatalf("points credited twice: got %d, want 100", got.LoyaltyPoints)
	}
	if got.LifetimeSpentCents != 10000 {
		t.Fatalf("lifetime spend counted twice: got %d, want 10000", got.LifetimeSpentCents)
	}

	entries, _ := f.store.ListLedgerEntries(ctx, acct.ID)
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
}

func TestPoller_RetryDoesNotDoubleCountSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, _ := f.store.CreateAccount(ctx, account.Account{Owner: "owner"})
	if _, err := f.svc.Enqueue(ctx, "ord-retry", acct.ID, 10000, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Processing succeeds but the queue keeps the row pending, as after
	// a crash between processing and marking. The next tick re-runs the
	// whole pipeline for the same order.
	pending, _ := f.store.ListPendingSettlements(ctx)
	if err := f.svc.Process(ctx, pending[0]); err != nil {
		t.Fatalf("process: %v", err)
	}

	p := NewPoller(f.store, f.svc, time.Second, nil)
	p.tick(ctx)

	got, _ := f.store.GetAccount(ctx, acct.ID)
	if got.LifetimeSpentCents != 10000 {
		t.Fatalf("lifetime spend after retry: got %d, want 10000", got.LifetimeSpentCents)
	}
	if got.LoyaltyPoints != 100 {
		t.Fatalf("points after retry: got %d, want 100", got.LoyaltyPoints)
	}
}

func TestPoller_DrainsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, _ := f.store.CreateAccount(ctx, account.Account{Owner: "owner"})
	if _, err := f.svc.Enqueue(ctx, "ord-poll", acct.ID, 6000, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	p := NewPoller(f.store, f.svc, time.Second, nil)
	p.tick(ctx)

	pending, _ := f.store.ListPendingSettlements(ctx)
	if len(pending) != 0 {
		t.Fatalf("queue not drained, %d pending", len(pending))
	}
	got, _ := f.store.GetAccount(ctx, acct.ID)
	if got.LoyaltyPoints != 60 {
		t.Fatalf("points: got %d, want 60", got.LoyaltyPoints)
	}
}

func TestPoller_ParksFailingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No such account, so processing fails every attempt.
	if _, err := f.svc.Enqueue(ctx, "ord-bad", "missing-user", 6000, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	p := NewPoller(f.store, f.svc, time.Second, nil)
	for i := 0; i < maxAttempts; i++ {
		p.tick(ctx)
		p.mu.Lock()
		p.nextAttempt = make(map[string]time.Time)
		p.mu.Unlock()
	}

	pending, _ := f.store.ListPendingSettlements(ctx)
	if len(pending) != 0 {
		t.Fatalf("failing order must be parked, %d still pending", len(pending))
	}
}
