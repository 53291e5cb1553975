package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/internal/app/storage/memory"
)

func TestCreateAndGet(t *testing.T) {
	svc := New(memory.New(), nil)

	acct, err := svc.Create(context.Background(), "  alice  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.ID == "" {
		t.Fatalf("missing account id")
	}
	if acct.Owner != "alice" {
		t.Fatalf("owner %q, want alice", acct.Owner)
	}

	got, err := svc.Get(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != acct.ID || got.Owner != acct.Owner {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreate_RequiresOwner(t *testing.T) {
	svc := New(memory.New(), nil)
	if _, err := svc.Create(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for blank owner")
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := New(memory.New(), nil)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
