// Package groups manages the group registry: one custodial account per group
// identifier, created under admin+reviewer co-signature.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/group"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/address"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrGroupExists   = errors.New("group id already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrSameID        = errors.New("migration target equals the current id")
)

// Service manages group records.
type Service struct {
	mu     sync.Mutex
	store  storage.GroupStore
	ledger storage.LedgerStore
	admins *adminregistry.Service
	bus    events.Bus
	log    *logger.Logger
}

// New constructs the group registry service.
func New(store storage.GroupStore, ledgerStore storage.LedgerStore, admins *adminregistry.Service, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("groups")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{store: store, ledger: ledgerStore, admins: admins, bus: bus, log: log}
}

// CreateGroup derives a custodial account for groupID and records the
// mapping. The derivation mixes in a fresh nonce so an id freed by migration
// and registered again gets its own account, never the migrated group's.
// Requires admin+reviewer co-signature.
func (s *Service) CreateGroup(ctx context.Context, adminSigner, reviewerSigner identity.Identity, groupID string) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return group.Group{}, err
	}
	if groupID == "" {
		return group.Group{}, fmt.Errorf("group id required")
	}

	grp := group.Group{
		ID:               groupID,
		CustodialAccount: identity.Address(address.Derive(address.ScopeGroup, groupID, uuid.NewString())),
	}
	created, err := s.store.CreateGroup(ctx, grp)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return group.Group{}, fmt.Errorf("%w: %s", ErrGroupExists, groupID)
		}
		return group.Group{}, err
	}

	s.bus.Publish(events.Event{
		Type:    events.TypeGroupCreated,
		Actor:   adminSigner,
		GroupID: groupID,
		RefID:   string(created.CustodialAccount),
	})
	s.log.WithField("group_id", groupID).
		WithField("custodial_account", string(created.CustodialAccount)).
		Info("group created")
	return created, nil
}

// MigrateGroupID renames a group. The group keeps its custodial account; any
// record already at newID is evicted. Requires co-signature.
func (s *Service) MigrateGroupID(ctx context.Context, adminSigner, reviewerSigner identity.Identity, oldID, newID string) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return group.Group{}, err
	}
	if oldID == newID {
		return group.Group{}, fmt.Errorf("%w: %s", ErrSameID, oldID)
	}
	if newID == "" {
		return group.Group{}, fmt.Errorf("group id required")
	}

	renamed, err := s.store.RenameGroup(ctx, oldID, newID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return group.Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, oldID)
		}
		return group.Group{}, err
	}

	s.bus.Publish(events.Event{
		Type:    events.TypeGroupMigrated,
		Actor:   adminSigner,
		GroupID: newID,
		RefID:   oldID,
	})
	s.log.WithField("old_id", oldID).WithField("new_id", newID).Info("group migrated")
	return renamed, nil
}

// GroupAccountOf returns the group's custodial account. Fails if absent.
func (s *Service) GroupAccountOf(ctx context.Context, groupID string) (identity.Address, error) {
	grp, err := s.get(ctx, groupID)
	if err != nil {
		return "", err
	}
	return grp.CustodialAccount, nil
}

// ExistsGroup reports whether groupID is registered.
func (s *Service) ExistsGroup(ctx context.Context, groupID string) (bool, error) {
	_, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BalanceOf returns the group treasury balance in the given currency.
func (s *Service) BalanceOf(ctx context.Context, groupID string, ref currency.Ref) (int64, error) {
	grp, err := s.get(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, grp.CustodialAccount, ref)
}

// List returns every registered group.
func (s *Service) List(ctx context.Context) ([]group.Group, error) {
	return s.store.ListGroups(ctx)
}

func (s *Service) get(ctx context.Context, groupID string) (group.Group, error) {
	grp, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return group.Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	if err != nil {
		return group.Group{}, err
	}
	return grp, nil
}
