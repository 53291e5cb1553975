package loyalty

import (
	"context"
	"sync"
	"testing"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/reward"
	"github.com/cartloom/rewards/internal/app/policy"
	"github.com/cartloom/rewards/internal/app/storage/memory"
)

func newService(store *memory.Store, pol policy.Policy, cache SummaryCache) *Service {
	return New(store, store, store, store, pol, cache, nil)
}

func TestCalculatePoints(t *testing.T) {
	svc := newService(memory.New(), policy.Default(), nil)

	cases := []struct {
		totalCents int64
		want       int64
	}{
		{0, 0},
		{-100, 0},
		{99, 0},
		{100, 1},
		{199, 1},
		{70000, 700},
	}
	for _, tc := range cases {
		if got := svc.CalculatePoints(tc.totalCents); got != tc.want {
			t.Fatalf("CalculatePoints(%d) = %d, want %d", tc.totalCents, got, tc.want)
		}
	}
}

func TestCreditPoints(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	svc := newService(store, policy.Default(), nil)

	points, err := svc.CreditPoints(context.Background(), acct.ID, 25050, "ord-1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if points != 250 {
		t.Fatalf("got %d points, want 250", points)
	}

	// Replayed order credits nothing.
	points, err = svc.CreditPoints(context.Background(), acct.ID, 25050, "ord-1")
	if err != nil {
		t.Fatalf("replay credit: %v", err)
	}
	if points != 0 {
		t.Fatalf("replay credited %d points", points)
	}

	got, _ := store.GetAccount(context.Background(), acct.ID)
	if got.LoyaltyPoints != 250 {
		t.Fatalf("balance %d, want 250", got.LoyaltyPoints)
	}

	entries, _ := store.ListLedgerEntries(context.Background(), acct.ID)
	if len(entries) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(entries))
	}
	if entries[0].Kind != reward.KindEarned || entries[0].Points != 250 {
		t.Fatalf("unexpected ledger entry: %+v", entries[0])
	}
}

func TestCreditPoints_ZeroIsNoop(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	svc := newService(store, policy.Default(), nil)

	points, err := svc.CreditPoints(context.Background(), acct.ID, 99, "ord-small")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if points != 0 {
		t.Fatalf("sub-unit order credited %d points", points)
	}
	entries, _ := store.ListLedgerEntries(context.Background(), acct.ID)
	if len(entries) != 0 {
		t.Fatalf("zero-point credit wrote a ledger entry")
	}
}

func TestRedeem(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	svc := newService(store, policy.Default(), nil)

	if _, err := svc.CreditPoints(context.Background(), acct.ID, 50000, "ord-earn"); err != nil {
		t.Fatalf("seed points: %v", err)
	}

	// 200 points against a 20000-cent order: 200-cent discount, under the
	// 20% cap of 4000 cents.
	result, err := svc.Redeem(context.Background(), acct.ID, 200, 20000, "ord-redeem")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !result.Redeemed() {
		t.Fatalf("expected redeemed, got %s: %s", result.Outcome, result.Message)
	}
	if result.DiscountCents != 200 || result.PointsUsed != 200 {
		t.Fatalf("got discount=%d used=%d, want 200/200", result.DiscountCents, result.PointsUsed)
	}

	got, _ := store.GetAccount(context.Background(), acct.ID)
	if got.LoyaltyPoints != 300 {
		t.Fatalf("balance %d, want 300", got.LoyaltyPoints)
	}

	entries, _ := store.ListLedgerEntries(context.Background(), acct.ID)
	if len(entries) != 2 {
		t.Fatalf("got %d ledger entries, want 2", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Kind != reward.KindRedeemed || last.Points != -200 {
		t.Fatalf("unexpected redemption entry: %+v", last)
	}
}

func TestRedeem_CapBindsDiscount(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	svc := newService(store, policy.Default(), nil)
	svc.CreditPoints(context.Background(), acct.ID, 100000, "ord-earn")

	// 1000 points would be a 1000-cent discount, but 20% of a 2000-cent
	// order caps it at 400 cents, consuming only 400 points.
	result, err := svc.Redeem(context.Background(), acct.ID, 1000, 2000, "ord-capped")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !result.Redeemed() {
		t.Fatalf("expected redeemed, got %s", result.Outcome)
	}
	if result.DiscountCents != 400 {
		t.Fatalf("discount %d, want 400", result.DiscountCents)
	}
	if result.PointsUsed != 400 {
		t.Fatalf("points used %d, want 400", result.PointsUsed)
	}

	got, _ := store.GetAccount(context.Background(), acct.ID)
	if got.LoyaltyPoints != 600 {
		t.Fatalf("balance %d, want 600", got.LoyaltyPoints)
	}
}

func TestRedeem_Rejections(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	pol := policy.Default()
	svc := newService(store, pol, nil)

	result, err := svc.Redeem(context.Background(), acct.ID, 0, 10000, "ord-1")
	if err != nil || result.Outcome != OutcomeNothingToRedeem {
		t.Fatalf("zero points: got %s err=%v", result.Outcome, err)
	}

	// Balance below the minimum.
	svc.CreditPoints(context.Background(), acct.ID, 5000, "ord-seed-small")
	result, err = svc.Redeem(context.Background(), acct.ID, 50, 10000, "ord-2")
	if err != nil || result.Outcome != OutcomeInsufficientPoints {
		t.Fatalf("below minimum: got %s err=%v", result.Outcome, err)
	}

	// Requesting more than held.
	svc.CreditPoints(context.Background(), acct.ID, 10000, "ord-seed-more")
	result, err = svc.Redeem(context.Background(), acct.ID, 1000, 10000, "ord-3")
	if err != nil || result.Outcome != OutcomeInsufficientPoints {
		t.Fatalf("over balance: got %s err=%v", result.Outcome, err)
	}

	// Zero-total order leaves no room for a discount.
	result, err = svc.Redeem(context.Background(), acct.ID, 150, 0, "ord-4")
	if err != nil || result.Outcome != OutcomeNothingToRedeem {
		t.Fatalf("zero total: got %s err=%v", result.Outcome, err)
	}
}

func TestRedeem_ReplayedOrderRejected(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	svc := newService(store, policy.Default(), nil)
	svc.CreditPoints(context.Background(), acct.ID, 100000, "ord-earn")

	result, err := svc.Redeem(context.Background(), acct.ID, 200, 20000, "ord-once")
	if err != nil || !result.Redeemed() {
		t.Fatalf("first redeem: %s err=%v", result.Outcome, err)
	}

	result, err = svc.Redeem(context.Background(), acct.ID, 200, 20000, "ord-once")
	if err != nil {
		t.Fatalf("replay redeem: %v", err)
	}
	if result.Outcome != OutcomeNothingToRedeem {
		t.Fatalf("replay outcome %s, want %s", result.Outcome, OutcomeNothingToRedeem)
	}

	got, _ := store.GetAccount(context.Background(), acct.ID)
	if got.LoyaltyPoints != 800 {
		t.Fatalf("replay consumed points: balance %d, want 800", got.LoyaltyPoints)
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Summary
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]Summary)} }

func (c *mapCache) Get(_ context.Context, userID string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID]
	return s, ok
}

func (c *mapCache) Set(_ context.Context, userID string, summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = summary
}

func (c *mapCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

func TestSummary(t *testing.T) {
	store := memory.New()
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	cache := newMapCache()
	svc := newService(store, policy.Default(), cache)

	svc.CreditPoints(context.Background(), acct.ID, 15000, "ord-1")

	summary, err := svc.Summary(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Points != 150 || summary.PointsValueCents != 150 {
		t.Fatalf("unexpected points: %+v", summary)
	}
	if !summary.CanRedeem {
		t.Fatalf("150 points must be redeemable at the default minimum")
	}
	if _, ok := cache.Get(context.Background(), acct.ID); !ok {
		t.Fatalf("summary not cached")
	}

	// A fresh credit invalidates the cached snapshot.
	svc.CreditPoints(context.Background(), acct.ID, 10000, "ord-2")
	if _, ok := cache.Get(context.Background(), acct.ID); ok {
		t.Fatalf("cache not invalidated after credit")
	}

	summary, err = svc.Summary(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("second summary: %v", err)
	}
	if summary.Points != 250 {
		t.Fatalf("stale summary after invalidation: %+v", summary)
	}
}
