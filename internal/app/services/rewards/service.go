// Package rewards manages escrowed reward pools and their randomized
// decreasing-remainder claim draws.
package rewards

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/reward"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/metrics"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/services/groups"
	"github.com/custodia-network/treasury/internal/app/services/random"
	"github.com/custodia-network/treasury/internal/app/services/useraccounts"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/address"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrPoolExists       = errors.New("pool id already exists for this group")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrAlreadyClaimed   = errors.New("user already claimed from this pool")
	ErrCurrencyMismatch = errors.New("currency does not match the pool reward currency")
	ErrPoolUnderfunded  = errors.New("reward amount below one unit per claimant")
)

// Service manages reward pools. Pool funds live in a dedicated holder
// sub-account per pool, isolated from the group's main treasury.
type Service struct {
	mu       sync.Mutex
	store    storage.PoolStore
	ledger   storage.LedgerStore
	admins   *adminregistry.Service
	groups   *groups.Service
	accounts *useraccounts.Service
	beacon   *random.Beacon
	clock    clockwork.Clock
	bus      events.Bus
	log      *logger.Logger
}

// New constructs the reward service.
func New(store storage.PoolStore, ledgerStore storage.LedgerStore, admins *adminregistry.Service, grps *groups.Service, accounts *useraccounts.Service, beacon *random.Beacon, clock clockwork.Clock, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rewards")
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
		beacon:   beacon,
		clock:    clock,
		bus:      bus,
		log:      log,
	}
}

// CreatePool escrows amount from the group treasury into a fresh holder
// sub-account and opens the pool for totalUsers claimants. Requires
// co-signature. The amount must cover at least one unit per claimant.
func (s *Service) CreatePool(ctx context.Context, adminSigner, reviewerSigner identity.Identity, groupID, poolID string, ref currency.Ref, amount int64, totalUsers int) (reward.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return reward.Pool{}, err
	}
	if poolID == "" {
		return reward.Pool{}, fmt.Errorf("pool id required")
	}
	if totalUsers <= 0 {
		return reward.Pool{}, fmt.Errorf("total users must be positive, got %d", totalUsers)
	}
	if amount < int64(totalUsers) {
		return reward.Pool{}, fmt.Errorf("%w: %d for %d users", ErrPoolUnderfunded, amount, totalUsers)
	}

	groupAccount, err := s.groups.GroupAccountOf(ctx, groupID)
	if err != nil {
		return reward.Pool{}, err
	}
	if _, err := s.store.GetPool(ctx, groupID, poolID); err == nil {
		return reward.Pool{}, fmt.Errorf("%w: %s/%s", ErrPoolExists, groupID, poolID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return reward.Pool{}, err
	}

	holder := identity.Address(address.Derive(address.ScopeHolder, groupID, poolID))
	if _, err := s.ledger.Transfer(ctx, groupAccount, holder, ref, amount, ledger.KindRewardFund, "pool escrow"); err != nil {
		return reward.Pool{}, err
	}

	pool := reward.Pool{
		GroupID:       groupID,
		PoolID:        poolID,
		Currency:      ref,
		RewardAmount:  amount,
		TotalUsers:    totalUsers,
		HolderAccount: holder,
	}
	created, err := s.store.CreatePool(ctx, pool)
	if err != nil {
		return reward.Pool{}, err
	}

	metrics.RecordTransfer(string(ledger.KindRewardFund), amount)
	s.bus.Publish(events.Event{
		Type:     events.TypePoolCreated,
		Actor:    adminSigner,
		GroupID:  groupID,
		RefID:    poolID,
		Currency: ref,
		Amount:   amount,
		Metadata: map[string]string{"total_users": strconv.Itoa(totalUsers)},
	})
	s.log.WithField("group_id", groupID).
		WithField("pool_id", poolID).
		WithField("amount", amount).
		WithField("total_users", totalUsers).
		Info("reward pool created")
	return created, nil
}

// Claim pays the user a randomized share of the remaining pool. Each slot
// but the last draws uniformly in [1, remaining - (slots left - 1)], so every
// later claimant is still guaranteed at least one unit; the final claimant
// takes the whole remainder and the pool record is deleted. Requires
// co-signature; one claim per user.
func (s *Service) Claim(ctx context.Context, adminSigner, reviewerSigner, user identity.Identity, groupID, poolID string, ref currency.Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { metrics.ObserveOperation("rewards", "claim", time.Since(start)) }(time.Now())

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return 0, err
	}

	pool, err := s.store.GetPool(ctx, groupID, poolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, groupID, poolID)
		}
		return 0, err
	}
	if pool.Currency != ref {
		return 0, fmt.Errorf("%w: want %s, got %s", ErrCurrencyMismatch, pool.Currency, ref)
	}
	if pool.HasClaimed(user) {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyClaimed, user)
	}
	remaining := pool.Remaining()
	if remaining <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, groupID, poolID)
	}

	payout := pool.RewardAmount
	var draw random.Output
	if remaining > 1 {
		ceiling := pool.RewardAmount - int64(remaining-1)
		seed := fmt.Sprintf("%s/%s/%s/%d/%d", groupID, poolID, user, len(pool.ClaimedUsers), s.clock.Now().UnixNano())
		payout, draw, err = s.beacon.DrawInt([]byte(seed), 1, ceiling)
		if err != nil {
			return 0, err
		}
	}

	target, err := s.accounts.CanonicalAccountOf(ctx, user)
	if err != nil {
		return 0, err
	}

	pool.ClaimedUsers = append(pool.ClaimedUsers, user)
	pool.RewardAmount -= payout
	final := pool.Remaining() == 0

	// payout and pool mutation settle together, so a failure cannot disburse
	// without recording the claimant
	rec, err := s.store.SettleClaim(ctx, pool, target, payout, "pool claim")
	if err != nil {
		return 0, err
	}

	metrics.RecordTransfer(string(ledger.KindRewardClaim), payout)
	metrics.RecordClaim(final)

	meta := map[string]string{"transfer_id": rec.ID}
	if draw.Proof != nil {
		meta["draw_proof"] = hex.EncodeToString(draw.Proof)
	}
	s.bus.Publish(events.Event{
		Type:     events.TypePoolClaimed,
		Actor:    adminSigner,
		Subject:  user,
		GroupID:  groupID,
		RefID:    poolID,
		Currency: ref,
		Amount:   payout,
		Metadata: meta,
	})
	if final {
		s.bus.Publish(events.Event{
			Type:    events.TypePoolExhausted,
			GroupID: groupID,
			RefID:   poolID,
		})
	}

	s.log.WithField("group_id", groupID).
		WithField("pool_id", poolID).
		WithField("user", string(user)).
		WithField("payout", payout).
		WithField("final", final).
		Info("pool claim settled")
	return payout, nil
}

// GetPool returns a pool record. Fails once the pool is exhausted and
// deleted.
func (s *Service) GetPool(ctx context.Context, groupID, poolID string) (reward.Pool, error) {
	pool, err := s.store.GetPool(ctx, groupID, poolID)
	if errors.Is(err, storage.ErrNotFound) {
		return reward.Pool{}, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, groupID, poolID)
	}
	return pool, err
}

// ListPools returns the open pools of a group.
func (s *Service) ListPools(ctx context.Context, groupID string) ([]reward.Pool, error) {
	return s.store.ListPools(ctx, groupID)
}

// BeaconPublicKey exposes the draw verification key for off-chain audit.
func (s *Service) BeaconPublicKey() []byte {
	return s.beacon.PublicKey()
}
