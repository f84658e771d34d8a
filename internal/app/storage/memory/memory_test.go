package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/reward"
	"github.com/custodia-network/treasury/internal/app/storage"
)

func seedPool(t *testing.T, s *Store, funded int64) reward.Pool {
	t.Helper()
	ctx := context.Background()

	pool := reward.Pool{
		GroupID:       "g1",
		PoolID:        "p1",
		Currency:      currency.Coin("usd"),
		RewardAmount:  funded,
		TotalUsers:    2,
		HolderAccount: "holder-p1",
	}
	if _, err := s.CreatePool(ctx, pool); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, err := s.Deposit(ctx, pool.HolderAccount, pool.Currency, funded, ledger.KindRewardFund, "escrow"); err != nil {
		t.Fatalf("fund holder: %v", err)
	}
	return pool
}

func TestPoolLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	pool := seedPool(t, s, 500)

	pool.RewardAmount = 450
	updated, err := s.UpdatePool(ctx, pool)
	if err != nil || updated.RewardAmount != 450 {
		t.Fatalf("update pool: %+v (%v)", updated, err)
	}

	if err := s.DeletePool(ctx, "g1", "p1"); err != nil {
		t.Fatalf("delete pool: %v", err)
	}
	if err := s.DeletePool(ctx, "g1", "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettleClaim(t *testing.T) {
	s := New()
	ctx := context.Background()
	pool := seedPool(t, s, 500)

	pool.ClaimedUsers = append(pool.ClaimedUsers, "alice")
	pool.RewardAmount -= 200
	rec, err := s.SettleClaim(ctx, pool, "alice-wallet", 200, "pool claim")
	if err != nil {
		t.Fatalf("settle claim: %v", err)
	}
	if rec.From != pool.HolderAccount || rec.To != "alice-wallet" || rec.Amount != 200 {
		t.Fatalf("unexpected transfer record %+v", rec)
	}

	stored, err := s.GetPool(ctx, "g1", "p1")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if stored.RewardAmount != 300 || len(stored.ClaimedUsers) != 1 || stored.ClaimedUsers[0] != "alice" {
		t.Fatalf("pool not settled with the payout: %+v", stored)
	}
	if bal, _ := s.Balance(ctx, "alice-wallet", pool.Currency); bal != 200 {
		t.Fatalf("expected claimant balance 200, got %d", bal)
	}
	if bal, _ := s.Balance(ctx, pool.HolderAccount, pool.Currency); bal != 300 {
		t.Fatalf("expected holder balance 300, got %d", bal)
	}
}

func TestSettleClaimDeletesExhaustedPool(t *testing.T) {
	s := New()
	ctx := context.Background()
	pool := seedPool(t, s, 500)

	pool.ClaimedUsers = append(pool.ClaimedUsers, "alice", "bob")
	pool.RewardAmount = 0
	if _, err := s.SettleClaim(ctx, pool, "bob-wallet", 500, "pool claim"); err != nil {
		t.Fatalf("settle claim: %v", err)
	}

	if _, err := s.GetPool(ctx, "g1", "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected exhausted pool to be deleted, got %v", err)
	}
}

func TestSettleClaimLeavesNothingOnFailure(t *testing.T) {
	s := New()
	ctx := context.Background()
	pool := seedPool(t, s, 500)

	claimed := pool
	claimed.ClaimedUsers = append(claimed.ClaimedUsers, "alice")
	claimed.RewardAmount -= 600

	// payout exceeds the holder balance
	if _, err := s.SettleClaim(ctx, claimed, "alice-wallet", 600, "pool claim"); !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	stored, err := s.GetPool(ctx, "g1", "p1")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if stored.RewardAmount != 500 || len(stored.ClaimedUsers) != 0 {
		t.Fatalf("failed settlement must not touch the pool: %+v", stored)
	}
	if bal, _ := s.Balance(ctx, pool.HolderAccount, pool.Currency); bal != 500 {
		t.Fatalf("failed settlement must not touch balances, got %d", bal)
	}
	if recs, _ := s.ListTransfers(ctx, "alice-wallet"); len(recs) != 0 {
		t.Fatalf("failed settlement must not log a transfer, got %d", len(recs))
	}

	// unknown pool fails before any value moves
	missing := pool
	missing.PoolID = "ghost"
	if _, err := s.SettleClaim(ctx, missing, "alice-wallet", 100, "pool claim"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if bal, _ := s.Balance(ctx, pool.HolderAccount, pool.Currency); bal != 500 {
		t.Fatalf("holder balance changed on unknown pool, got %d", bal)
	}
}
