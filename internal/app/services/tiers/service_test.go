package tiers

import (
	"context"
	"testing"

	"github.com/cartloom/rewards/internal/app/domain/account"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/storage/memory"
)

type capturingNotifier struct {
	tierCalls []string
	benefits  [][]string
}

func (n *capturingNotifier) TierChanged(_ context.Context, userID, tierDisplayName string, benefits []string) {
	n.tierCalls = append(n.tierCalls, userID+":"+tierDisplayName)
	n.benefits = append(n.benefits, benefits)
}

func (n *capturingNotifier) ReferralRewardEarned(context.Context, string, int64) {}

func seedTiers(t *testing.T, store *memory.Store) []tier.Tier {
	t.Helper()
	tiers, err := store.ReplaceTiers(context.Background(), []tier.Tier{
		{Name: "bronze", DisplayName: "Bronze", MinSpendCents: 0},
		{Name: "silver", DisplayName: "Silver", MinSpendCents: 5000},
		{Name: "gold", DisplayName: "Gold", MinSpendCents: 20000},
	})
	if err != nil {
		t.Fatalf("replace tiers: %v", err)
	}
	return tiers
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		spentCents int64
		want       string
	}{
		{0, "bronze"},
		{4999, "bronze"},
		{5000, "silver"},
		{19999, "silver"},
		{20000, "gold"},
		{100000, "gold"},
	}

	for _, tc := range cases {
		store := memory.New()
		seedTiers(t, store)
		acct, err := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
		if tc.spentCents > 0 {
			if _, err := store.RecordSpend(context.Background(), acct.ID, "", tc.spentCents); err != nil {
				t.Fatalf("record spend: %v", err)
			}
		}

		svc := New(store, store, store, nil, &capturingNotifier{}, nil)
		change, changed, err := svc.Classify(context.Background(), acct.ID)
		if err != nil {
			t.Fatalf("classify at %d: %v", tc.spentCents, err)
		}
		if !changed {
			t.Fatalf("expected a tier change at spend %d", tc.spentCents)
		}
		if change.Tier.Name != tc.want {
			t.Fatalf("spend %d: got tier %s, want %s", tc.spentCents, change.Tier.Name, tc.want)
		}
	}
}

func TestClassify_SecondCallIsNoop(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	store.RecordSpend(context.Background(), acct.ID, "", 6000)

	notifier := &capturingNotifier{}
	benefits := map[string][]string{"silver": {"free shipping"}}
	svc := New(store, store, store, benefits, notifier, nil)

	_, changed, err := svc.Classify(context.Background(), acct.ID)
	if err != nil || !changed {
		t.Fatalf("first classify: changed=%v err=%v", changed, err)
	}
	if len(notifier.tierCalls) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.tierCalls))
	}
	if len(notifier.benefits[0]) != 1 || notifier.benefits[0][0] != "free shipping" {
		t.Fatalf("unexpected benefits payload: %v", notifier.benefits[0])
	}

	_, changed, err = svc.Classify(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if changed {
		t.Fatalf("expected unchanged tier to be a no-op")
	}
	if len(notifier.tierCalls) != 1 {
		t.Fatalf("no-op must not re-notify")
	}
}

func TestClassify_RaisedThresholdKeepsEarnedTier(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	store.RecordSpend(context.Background(), acct.ID, "", 20000)

	notifier := &capturingNotifier{}
	svc := New(store, store, store, nil, notifier, nil)

	change, changed, err := svc.Classify(context.Background(), acct.ID)
	if err != nil || !changed {
		t.Fatalf("first classify: changed=%v err=%v", changed, err)
	}
	if change.Tier.Name != "gold" {
		t.Fatalf("got tier %s, want gold", change.Tier.Name)
	}

	if _, err := svc.Replace(context.Background(), []tier.Tier{
		{Name: "bronze", DisplayName: "Bronze", MinSpendCents: 0},
		{Name: "silver", DisplayName: "Silver", MinSpendCents: 5000},
		{Name: "gold", DisplayName: "Gold", MinSpendCents: 50000},
	}); err != nil {
		t.Fatalf("replace tiers: %v", err)
	}

	_, changed, err = svc.Classify(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("classify after raise: %v", err)
	}
	if changed {
		t.Fatalf("raising a threshold must not move the account down")
	}
	got, _ := store.GetAccount(context.Background(), acct.ID)
	current, err := store.GetTier(context.Background(), got.TierID)
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if current.Name != "gold" {
		t.Fatalf("account demoted to %s, want gold", current.Name)
	}
	if len(notifier.tierCalls) != 1 {
		t.Fatalf("no-op reclassification must not re-notify")
	}
}

func TestSync_AfterTableReplaceResolvesTier(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	store.RecordSpend(context.Background(), acct.ID, "", 6000)

	svc := New(store, store, store, nil, &capturingNotifier{}, nil)
	if _, err := svc.Sync(context.Background(), acct.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if _, err := svc.Replace(context.Background(), []tier.Tier{
		{Name: "bronze", DisplayName: "Bronze", MinSpendCents: 0},
		{Name: "silver", DisplayName: "Silver Plus", MinSpendCents: 4000},
		{Name: "gold", DisplayName: "Gold", MinSpendCents: 20000},
	}); err != nil {
		t.Fatalf("replace tiers: %v", err)
	}

	result, err := svc.Sync(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("sync after replace: %v", err)
	}
	if result.CurrentTier == nil || result.CurrentTier.Name != "silver" {
		t.Fatalf("unexpected current tier after replace: %+v", result.CurrentTier)
	}
	if result.CurrentTier.DisplayName != "Silver Plus" {
		t.Fatalf("replace must update the stored tier, got %q", result.CurrentTier.DisplayName)
	}
}

func TestClassify_NoQualifyingTier(t *testing.T) {
	store := memory.New()
	if _, err := store.ReplaceTiers(context.Background(), []tier.Tier{
		{Name: "silver", DisplayName: "Silver", MinSpendCents: 5000},
	}); err != nil {
		t.Fatalf("replace tiers: %v", err)
	}
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})

	svc := New(store, store, store, nil, &capturingNotifier{}, nil)
	_, changed, err := svc.Classify(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if changed {
		t.Fatalf("no tier qualifies at zero spend; expected no-op")
	}
}

func TestClassify_MissingBenefitsStillUpgrades(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	store.RecordSpend(context.Background(), acct.ID, "", 25000)

	notifier := &capturingNotifier{}
	svc := New(store, store, store, map[string][]string{}, notifier, nil)
	change, changed, err := svc.Classify(context.Background(), acct.ID)
	if err != nil || !changed {
		t.Fatalf("classify: changed=%v err=%v", changed, err)
	}
	if change.Tier.Name != "gold" {
		t.Fatalf("got tier %s, want gold", change.Tier.Name)
	}
	if len(notifier.tierCalls) != 1 {
		t.Fatalf("upgrade must notify even without a benefit list")
	}
}

func TestSync_ReportsCurrentTier(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)
	acct, _ := store.CreateAccount(context.Background(), account.Account{Owner: "owner"})
	store.RecordSpend(context.Background(), acct.ID, "", 5000)

	svc := New(store, store, store, nil, &capturingNotifier{}, nil)
	result, err := svc.Sync(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Changed {
		t.Fatalf("expected tier change")
	}
	if result.CurrentTier == nil || result.CurrentTier.Name != "silver" {
		t.Fatalf("unexpected current tier: %+v", result.CurrentTier)
	}
	if result.LifetimeSpentCents != 5000 {
		t.Fatalf("got lifetime spend %d, want 5000", result.LifetimeSpentCents)
	}

	result, err = svc.Sync(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Changed {
		t.Fatalf("second sync must be a no-op")
	}
	if result.CurrentTier == nil || result.CurrentTier.Name != "silver" {
		t.Fatalf("second sync must still report silver, got %+v", result.CurrentTier)
	}
}

func TestReplace_Validation(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil, &capturingNotifier{}, nil)

	cases := []struct {
		name  string
		tiers []tier.Tier
	}{
		{"empty", nil},
		{"missing name", []tier.Tier{{DisplayName: "X", MinSpendCents: 0}}},
		{"missing display name", []tier.Tier{{Name: "x", MinSpendCents: 0}}},
		{"negative threshold", []tier.Tier{{Name: "x", DisplayName: "X", MinSpendCents: -1}}},
		{"duplicate name", []tier.Tier{
			{Name: "x", DisplayName: "X", MinSpendCents: 0},
			{Name: "X ", DisplayName: "X2", MinSpendCents: 100},
		}},
	}
	for _, tc := range cases {
		if _, err := svc.Replace(context.Background(), tc.tiers); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestResync_RunOnce(t *testing.T) {
	store := memory.New()
	seedTiers(t, store)

	a, _ := store.CreateAccount(context.Background(), account.Account{Owner: "a"})
	b, _ := store.CreateAccount(context.Background(), account.Account{Owner: "b"})
	store.RecordSpend(context.Background(), a.ID, "", 21000)
	store.RecordSpend(context.Background(), b.ID, "", 100)

	svc := New(store, store, store, nil, &capturingNotifier{}, nil)
	resync := NewResync(store, svc, "@daily", nil)
	if err := resync.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	gotA, _ := store.GetAccount(context.Background(), a.ID)
	gotB, _ := store.GetAccount(context.Background(), b.ID)
	tierA, _ := store.GetTier(context.Background(), gotA.TierID)
	tierB, _ := store.GetTier(context.Background(), gotB.TierID)
	if tierA.Name != "gold" {
		t.Fatalf("account a: got tier %s, want gold", tierA.Name)
	}
	if tierB.Name != "bronze" {
		t.Fatalf("account b: got tier %s, want bronze", tierB.Name)
	}
}
