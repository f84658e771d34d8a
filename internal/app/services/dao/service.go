// Package dao runs time-boxed, currency-weighted governance polls per group.
package dao

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	daodomain "github.com/custodia-network/treasury/internal/app/domain/dao"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/metrics"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/services/groups"
	"github.com/custodia-network/treasury/internal/app/services/useraccounts"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrProposalExists   = errors.New("proposal id already exists for this group")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrWindowInverted   = errors.New("voting window ends before it starts")
	ErrWindowElapsed    = errors.New("voting window start already elapsed")
	ErrWindowClosed     = errors.New("proposal is not open for voting")
	ErrAlreadyVoted     = errors.New("user already voted on this proposal")
	ErrChoiceOutOfRange = errors.New("choice id out of range")
	ErrCurrencyMismatch = errors.New("currency does not match the proposal currency")
	ErrNoChoices        = errors.New("proposal needs at least one choice")
)

// Service manages proposals and votes.
type Service struct {
	mu       sync.Mutex
	store    storage.ProposalStore
	ledger   storage.LedgerStore
	admins   *adminregistry.Service
	groups   *groups.Service
	accounts *useraccounts.Service
	clock    clockwork.Clock
	bus      events.Bus
	log      *logger.Logger
}

// New constructs the DAO service.
func New(store storage.ProposalStore, ledgerStore storage.LedgerStore, admins *adminregistry.Service, grps *groups.Service, accounts *useraccounts.Service, clock clockwork.Clock, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dao")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:    store,
		ledger:   ledgerStore,
		admins:   admins,
		groups:   grps,
		accounts: accounts,
		clock:    clock,
		bus:      bus,
		log:      log,
	}
}

// CreateProposal opens a poll for the group. The window must not be inverted
// and must not start before now. Requires co-signature.
func (s *Service) CreateProposal(ctx context.Context, adminSigner, reviewerSigner identity.Identity, groupID, daoID string, choices []string, ref currency.Ref, from, to time.Time) (daodomain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return daodomain.Proposal{}, err
	}
	if daoID == "" {
		return daodomain.Proposal{}, fmt.Errorf("dao id required")
	}
	if len(choices) == 0 {
		return daodomain.Proposal{}, ErrNoChoices
	}
	if ref.IsZero() {
		return daodomain.Proposal{}, fmt.Errorf("currency reference required")
	}
	if to.Before(from) {
		return daodomain.Proposal{}, fmt.Errorf("%w: %s > %s", ErrWindowInverted, from.UTC(), to.UTC())
	}
	if s.clock.Now().After(from) {
		return daodomain.Proposal{}, fmt.Errorf("%w: started %s", ErrWindowElapsed, from.UTC())
	}
	if _, err := s.groups.GroupAccountOf(ctx, groupID); err != nil {
		return daodomain.Proposal{}, err
	}

	proposal := daodomain.Proposal{
		GroupID:       groupID,
		DaoID:         daoID,
		Choices:       append([]string(nil), choices...),
		ChoiceWeights: make([]int64, len(choices)),
		Currency:      ref,
		VotingFrom:    from.UTC(),
		VotingTo:      to.UTC(),
	}
	created, err := s.store.CreateProposal(ctx, proposal)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return daodomain.Proposal{}, fmt.Errorf("%w: %s/%s", ErrProposalExists, groupID, daoID)
		}
		return daodomain.Proposal{}, err
	}

	s.bus.Publish(events.Event{
		Type:     events.TypeProposalCreated,
		Actor:    adminSigner,
		GroupID:  groupID,
		RefID:    daoID,
		Currency: ref,
	})
	s.log.WithField("group_id", groupID).
		WithField("dao_id", daoID).
		WithField("choices", len(choices)).
		Info("proposal created")
	return created, nil
}

// Vote records the user's choice, weighted by their live balance of the
// proposal currency. A voter holding none of it still records a weight-0
// vote. One vote per user; only while the window is open.
func (s *Service) Vote(ctx context.Context, user identity.Identity, groupID, daoID string, choiceID int, ref currency.Ref) (daodomain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { metrics.ObserveOperation("dao", "vote", time.Since(start)) }(time.Now())

	proposal, err := s.get(ctx, groupID, daoID)
	if err != nil {
		return daodomain.Vote{}, err
	}
	if proposal.Currency != ref {
		return daodomain.Vote{}, fmt.Errorf("%w: want %s, got %s", ErrCurrencyMismatch, proposal.Currency, ref)
	}
	if _, voted := proposal.VoteOf(user); voted {
		return daodomain.Vote{}, fmt.Errorf("%w: %s", ErrAlreadyVoted, user)
	}
	if choiceID < 0 || choiceID >= len(proposal.Choices) {
		return daodomain.Vote{}, fmt.Errorf("%w: %d of %d", ErrChoiceOutOfRange, choiceID, len(proposal.Choices))
	}

	now := s.clock.Now().UTC()
	if proposal.StatusAt(now) != daodomain.StatusOpen {
		return daodomain.Vote{}, fmt.Errorf("%w: window [%s, %s]", ErrWindowClosed, proposal.VotingFrom, proposal.VotingTo)
	}

	account, err := s.accounts.CanonicalAccountOf(ctx, user)
	if err != nil {
		return daodomain.Vote{}, err
	}
	weight, err := s.ledger.Balance(ctx, account, ref)
	if err != nil {
		return daodomain.Vote{}, err
	}

	vote := daodomain.Vote{
		DaoID:    daoID,
		ChoiceID: choiceID,
		Weight:   weight,
		Voter:    user,
		CastAt:   now,
	}
	proposal.Votes = append(proposal.Votes, vote)
	proposal.ChoiceWeights[choiceID] += weight
	if _, err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return daodomain.Vote{}, err
	}

	metrics.RecordVote()
	s.bus.Publish(events.Event{
		Type:     events.TypeVoteCast,
		Actor:    user,
		GroupID:  groupID,
		RefID:    daoID,
		Currency: ref,
		Amount:   weight,
		Metadata: map[string]string{"choice": proposal.Choices[choiceID]},
	})
	s.log.WithField("group_id", groupID).
		WithField("dao_id", daoID).
		WithField("user", string(user)).
		WithField("weight", weight).
		Info("vote recorded")
	return vote, nil
}

// GetProposal returns one proposal.
func (s *Service) GetProposal(ctx context.Context, groupID, daoID string) (daodomain.Proposal, error) {
	return s.get(ctx, groupID, daoID)
}

// ListProposals returns every proposal of a group, including closed ones.
func (s *Service) ListProposals(ctx context.Context, groupID string) ([]daodomain.Proposal, error) {
	return s.store.ListProposals(ctx, groupID)
}

// HasVoted reports whether user already voted on the proposal.
func (s *Service) HasVoted(ctx context.Context, groupID, daoID string, user identity.Identity) (bool, error) {
	proposal, err := s.get(ctx, groupID, daoID)
	if err != nil {
		return false, err
	}
	_, voted := proposal.VoteOf(user)
	return voted, nil
}

// VoteOf returns the user's vote on the proposal, if any.
func (s *Service) VoteOf(ctx context.Context, groupID, daoID string, user identity.Identity) (daodomain.Vote, bool, error) {
	proposal, err := s.get(ctx, groupID, daoID)
	if err != nil {
		return daodomain.Vote{}, false, err
	}
	vote, ok := proposal.VoteOf(user)
	return vote, ok, nil
}

// ListVotes returns every vote recorded on the proposal.
func (s *Service) ListVotes(ctx context.Context, groupID, daoID string) ([]daodomain.Vote, error) {
	proposal, err := s.get(ctx, groupID, daoID)
	if err != nil {
		return nil, err
	}
	return proposal.Votes, nil
}

func (s *Service) get(ctx context.Context, groupID, daoID string) (daodomain.Proposal, error) {
	proposal, err := s.store.GetProposal(ctx, groupID, daoID)
	if errors.Is(err, storage.ErrNotFound) {
		return daodomain.Proposal{}, fmt.Errorf("%w: %s/%s", ErrProposalNotFound, groupID, daoID)
	}
	return proposal, err
}
