package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/services/groups"
	"github.com/custodia-network/treasury/internal/app/services/useraccounts"
	"github.com/custodia-network/treasury/internal/app/storage/memory"
)

type fixture struct {
	store *memory.Store
	clock *clockwork.FakeClock
	dao   *Service
}

var usd = currency.Coin("usd")

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	admins := adminregistry.New(store, nil, nil)
	if err := admins.Init(ctx, "owner"); err != nil {
		t.Fatalf("init admins: %v", err)
	}
	accounts := useraccounts.New(store, store, store, admins, nil, nil)
	grps := groups.New(store, store, admins, nil, nil)
	svc := New(store, store, admins, grps, accounts, clock, nil, nil)

	if _, err := grps.CreateGroup(ctx, "owner", "owner", "g1"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	return &fixture{store: store, clock: clock, dao: svc}
}

func TestCreateProposalWindowValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	choices := []string{"yes", "no"}

	if _, err := f.dao.CreateProposal(ctx, "intruder", "owner", "g1", "d1", choices, usd, now, now.Add(time.Hour)); !errors.Is(err, adminregistry.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", choices, usd, now.Add(time.Hour), now); !errors.Is(err, ErrWindowInverted) {
		t.Fatalf("expected ErrWindowInverted, got %v", err)
	}
	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", choices, usd, now.Add(-time.Minute), now.Add(time.Hour)); !errors.Is(err, ErrWindowElapsed) {
		t.Fatalf("expected ErrWindowElapsed, got %v", err)
	}
	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", nil, usd, now, now.Add(time.Hour)); !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "missing", "d1", choices, usd, now, now.Add(time.Hour)); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	// a window starting exactly now is allowed
	created, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", choices, usd, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if len(created.ChoiceWeights) != 2 || created.ChoiceWeights[0] != 0 || created.ChoiceWeights[1] != 0 {
		t.Fatalf("expected zeroed weights, got %v", created.ChoiceWeights)
	}

	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", choices, usd, now, now.Add(time.Hour)); !errors.Is(err, ErrProposalExists) {
		t.Fatalf("expected ErrProposalExists, got %v", err)
	}
}

func TestVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", []string{"yes", "no"}, usd, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := f.store.Deposit(ctx, "alice", usd, 500, ledger.KindDeposit, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	vote, err := f.dao.Vote(ctx, "alice", "g1", "d1", 0, usd)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if vote.Weight != 500 {
		t.Fatalf("expected weight 500, got %d", vote.Weight)
	}

	proposal, err := f.dao.GetProposal(ctx, "g1", "d1")
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if proposal.ChoiceWeights[0] != 500 || proposal.ChoiceWeights[1] != 0 {
		t.Fatalf("expected weights [500 0], got %v", proposal.ChoiceWeights)
	}

	if _, err := f.dao.Vote(ctx, "alice", "g1", "d1", 1, usd); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	voted, err := f.dao.HasVoted(ctx, "g1", "d1", "alice")
	if err != nil || !voted {
		t.Fatalf("expected HasVoted true, got %v %v", voted, err)
	}
	got, ok, err := f.dao.VoteOf(ctx, "g1", "d1", "alice")
	if err != nil || !ok || got.ChoiceID != 0 {
		t.Fatalf("unexpected VoteOf result: %+v %v %v", got, ok, err)
	}
}

func TestVoteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", []string{"yes", "no"}, usd, now.Add(time.Minute), now.Add(time.Hour)); err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := f.store.Deposit(ctx, "alice", usd, 500, ledger.KindDeposit, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := f.dao.Vote(ctx, "alice", "g1", "missing", 0, usd); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
	if _, err := f.dao.Vote(ctx, "alice", "g1", "d1", 0, currency.Coin("doge")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := f.dao.Vote(ctx, "alice", "g1", "d1", 5, usd); !errors.Is(err, ErrChoiceOutOfRange) {
		t.Fatalf("expected ErrChoiceOutOfRange, got %v", err)
	}

	// still scheduled
	if _, err := f.dao.Vote(ctx, "alice", "g1", "d1", 0, usd); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed before start, got %v", err)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.dao.Vote(ctx, "alice", "g1", "d1", 0, usd); err != nil {
		t.Fatalf("vote at window start: %v", err)
	}

	// closed after the window
	f.clock.Advance(2 * time.Hour)
	if _, err := f.store.Deposit(ctx, "bob", usd, 100, ledger.KindDeposit, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.dao.Vote(ctx, "bob", "g1", "d1", 0, usd); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed after end, got %v", err)
	}
}

func TestZeroBalanceVoteIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", []string{"yes", "no"}, usd, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	vote, err := f.dao.Vote(ctx, "broke", "g1", "d1", 1, usd)
	if err != nil {
		t.Fatalf("zero-balance vote: %v", err)
	}
	if vote.Weight != 0 {
		t.Fatalf("expected weight 0, got %d", vote.Weight)
	}

	proposal, err := f.dao.GetProposal(ctx, "g1", "d1")
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if proposal.ChoiceWeights[0] != 0 || proposal.ChoiceWeights[1] != 0 {
		t.Fatalf("expected weights untouched, got %v", proposal.ChoiceWeights)
	}

	voted, err := f.dao.HasVoted(ctx, "g1", "d1", "broke")
	if err != nil || !voted {
		t.Fatalf("expected the zero-weight vote on record, got %v %v", voted, err)
	}
	if _, err := f.dao.Vote(ctx, "broke", "g1", "d1", 0, usd); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestWeightIsLiveSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	if _, err := f.dao.CreateProposal(ctx, "owner", "owner", "g1", "d1", []string{"a", "b"}, usd, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	if _, err := f.store.Deposit(ctx, "alice", usd, 100, ledger.KindDeposit, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// balance acquired before voting raises the effective weight
	if _, err := f.store.Deposit(ctx, "alice", usd, 400, ledger.KindDeposit, "top-up"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	vote, err := f.dao.Vote(ctx, "alice", "g1", "d1", 1, usd)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if vote.Weight != 500 {
		t.Fatalf("expected live-snapshot weight 500, got %d", vote.Weight)
	}

	// weight sums stay consistent with the recorded votes
	proposal, _ := f.dao.GetProposal(ctx, "g1", "d1")
	var voteSum, weightSum int64
	for _, v := range proposal.Votes {
		voteSum += v.Weight
	}
	for _, w := range proposal.ChoiceWeights {
		weightSum += w
	}
	if voteSum != weightSum {
		t.Fatalf("weight bookkeeping diverged: votes=%d weights=%d", voteSum, weightSum)
	}
}
