package useraccounts

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/internal/app/storage/memory"
	"github.com/custodia-network/treasury/pkg/address"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	admins := adminregistry.New(store, nil, nil)
	if err := admins.Init(context.Background(), "owner"); err != nil {
		t.Fatalf("init admins: %v", err)
	}
	return New(store, store, store, admins, nil, nil), store
}

func TestRegister(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "tg-1001")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !address.Valid(string(acct.CustodialAccount)) {
		t.Fatalf("expected derived custodial address, got %q", acct.CustodialAccount)
	}

	if _, err := svc.Register(ctx, "alice", "tg-1001"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	// a different salt creates an independent account
	second, err := svc.Register(ctx, "alice", "tg-2002")
	if err != nil {
		t.Fatalf("register second salt: %v", err)
	}
	if second.CustodialAccount == acct.CustodialAccount {
		t.Fatal("expected distinct custodial accounts per salt")
	}
}

func TestCustodialAccountStable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "tg-1001")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.CustodialAccountOf(ctx, "alice")
	if err != nil {
		t.Fatalf("custodial account of: %v", err)
	}
	if got != acct.CustodialAccount {
		t.Fatalf("expected %s, got %s", acct.CustodialAccount, got)
	}

	// later registrations do not displace the primary account
	if _, err := svc.Register(ctx, "alice", "tg-2002"); err != nil {
		t.Fatalf("register second salt: %v", err)
	}
	again, err := svc.CustodialAccountOf(ctx, "alice")
	if err != nil {
		t.Fatalf("custodial account of: %v", err)
	}
	if again != acct.CustodialAccount {
		t.Fatalf("primary custodial account changed: %s != %s", again, acct.CustodialAccount)
	}

	if _, err := svc.CustodialAccountOf(ctx, "nobody"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestAccountOf(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "alice", "tg-1001")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := svc.Register(ctx, "alice", "tg-2002")
	if err != nil {
		t.Fatalf("register second salt: %v", err)
	}

	got, err := svc.AccountOf(ctx, "alice", "tg-2002")
	if err != nil {
		t.Fatalf("account of: %v", err)
	}
	if got.CustodialAccount != second.CustodialAccount || got.CustodialAccount == first.CustodialAccount {
		t.Fatalf("expected the tg-2002 registration, got %s", got.CustodialAccount)
	}

	if _, err := svc.AccountOf(ctx, "alice", "tg-3003"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestCanonicalAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// unregistered identities resolve to their wallet
	addr, err := svc.CanonicalAccountOf(ctx, "bob")
	if err != nil {
		t.Fatalf("canonical account of: %v", err)
	}
	if addr != "bob" {
		t.Fatalf("expected wallet address, got %s", addr)
	}

	acct, err := svc.Register(ctx, "bob", "tg-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	addr, err = svc.CanonicalAccountOf(ctx, "bob")
	if err != nil {
		t.Fatalf("canonical account of: %v", err)
	}
	if addr != acct.CustodialAccount {
		t.Fatalf("expected custodial account, got %s", addr)
	}
}

func TestWithdraw(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	usd := currency.Coin("usd")

	acct, err := svc.Register(ctx, "alice", "tg-1001")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.Deposit(ctx, acct.CustodialAccount, usd, 500, ledger.KindDeposit, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.Withdraw(ctx, "alice", 600, usd); !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, "alice", 0, usd); err == nil {
		t.Fatal("expected error for zero amount")
	}

	if _, err := svc.Withdraw(ctx, "alice", 200, usd); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	custodialBal, _ := store.Balance(ctx, acct.CustodialAccount, usd)
	walletBal, _ := store.Balance(ctx, "alice", usd)
	if custodialBal != 300 || walletBal != 200 {
		t.Fatalf("unexpected balances: custodial=%d wallet=%d", custodialBal, walletBal)
	}
}

func TestSetLegacyFeeCurrency(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	usd := currency.Coin("usd")

	if err := svc.SetLegacyFeeCurrency(ctx, "intruder", usd); !errors.Is(err, adminregistry.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.SetLegacyFeeCurrency(ctx, "owner", usd); err != nil {
		t.Fatalf("set legacy fee currency: %v", err)
	}

	cfg, err := store.GetPaymentConfig(ctx)
	if err != nil {
		t.Fatalf("get payment config: %v", err)
	}
	if cfg.LegacyFeeCurrency != usd {
		t.Fatalf("expected %s, got %s", usd, cfg.LegacyFeeCurrency)
	}
}
