package allowlist

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/storage/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store := memory.New()
	admins := adminregistry.New(store, nil, nil)
	if err := admins.Init(context.Background(), "owner"); err != nil {
		t.Fatalf("init admins: %v", err)
	}
	return New(store, admins, nil, nil)
}

func TestInitAdminOnlyOnce(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Init(ctx, "intruder"); !errors.Is(err, adminregistry.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.Init(ctx, "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := svc.Init(ctx, "owner"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestAddRemoveContains(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	usd := currency.Coin("usd")

	if err := svc.Add(ctx, "owner", usd); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before init, got %v", err)
	}
	if err := svc.Init(ctx, "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := svc.Add(ctx, "owner", usd); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Add(ctx, "owner", usd); !errors.Is(err, ErrCurrencyListed) {
		t.Fatalf("expected ErrCurrencyListed, got %v", err)
	}

	ok, err := svc.Contains(ctx, usd)
	if err != nil || !ok {
		t.Fatalf("expected currency to be listed, got %v %v", ok, err)
	}

	listed, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0] != usd {
		t.Fatalf("unexpected list contents: %v", listed)
	}

	if err := svc.Remove(ctx, "owner", usd); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.Remove(ctx, "owner", usd); !errors.Is(err, ErrCurrencyNotListed) {
		t.Fatalf("expected ErrCurrencyNotListed, got %v", err)
	}

	ok, _ = svc.Contains(ctx, usd)
	if ok {
		t.Fatal("expected currency to be delisted")
	}
}

func TestMutationsAdminOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Init(ctx, "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := svc.Add(ctx, "intruder", currency.Coin("usd")); !errors.Is(err, adminregistry.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.Remove(ctx, "intruder", currency.Coin("usd")); !errors.Is(err, adminregistry.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}
