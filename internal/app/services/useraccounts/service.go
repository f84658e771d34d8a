// Package useraccounts maps external identities to derived custodial
// accounts and handles personal withdrawals.
package useraccounts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/useraccount"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/metrics"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/address"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrAlreadyRegistered = errors.New("user account already registered for this derivation")
	ErrNotRegistered     = errors.New("user account not registered")
)

// Service manages user registrations. A registration is keyed by
// (owner, salt); each distinct salt yields an independent custodial account.
type Service struct {
	mu     sync.Mutex
	store  storage.UserAccountStore
	ledger storage.LedgerStore
	config storage.PaymentConfigStore
	admins *adminregistry.Service
	bus    events.Bus
	log    *logger.Logger
}

// New constructs the user account service.
func New(store storage.UserAccountStore, ledgerStore storage.LedgerStore, config storage.PaymentConfigStore, admins *adminregistry.Service, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("useraccounts")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{store: store, ledger: ledgerStore, config: config, admins: admins, bus: bus, log: log}
}

// Register derives and records a custodial account for (owner, salt). A
// second call with the same derivation fails; a different salt creates a new,
// unrelated account.
func (s *Service) Register(ctx context.Context, owner identity.Identity, salt string) (useraccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner.IsZero() {
		return useraccount.Account{}, fmt.Errorf("owner identity required")
	}

	acct := useraccount.Account{
		Owner:            owner,
		Salt:             salt,
		CustodialAccount: identity.Address(address.Derive(address.ScopeUser, string(owner), salt)),
	}
	created, err := s.store.CreateUserAccount(ctx, acct)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return useraccount.Account{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, owner)
		}
		return useraccount.Account{}, err
	}

	s.bus.Publish(events.Event{
		Type:    events.TypeUserRegistered,
		Subject: owner,
		RefID:   string(created.CustodialAccount),
	})
	s.log.WithField("owner", string(owner)).
		WithField("custodial_account", string(created.CustodialAccount)).
		Info("user account registered")
	return created, nil
}

// Withdraw moves funds from the owner's primary custodial account to the
// owner's personal wallet. Only the owner may withdraw.
func (s *Service) Withdraw(ctx context.Context, owner identity.Identity, amount int64, ref currency.Ref) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return ledger.Transfer{}, fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}

	custodial, err := s.custodialAccountOf(ctx, owner)
	if err != nil {
		return ledger.Transfer{}, err
	}

	rec, err := s.ledger.Transfer(ctx, custodial, owner.Wallet(), ref, amount, ledger.KindWithdrawal, "personal withdrawal")
	if err != nil {
		return ledger.Transfer{}, err
	}

	metrics.RecordTransfer(string(ledger.KindWithdrawal), amount)
	s.bus.Publish(events.Event{
		Type:     events.TypeUserWithdrawal,
		Actor:    owner,
		Subject:  owner,
		Currency: ref,
		Amount:   amount,
		RefID:    rec.ID,
	})
	s.log.WithField("owner", string(owner)).
		WithField("amount", amount).
		WithField("currency", ref.String()).
		Info("withdrawal completed")
	return rec, nil
}

// AccountOf returns the registration recorded for (owner, salt).
func (s *Service) AccountOf(ctx context.Context, owner identity.Identity, salt string) (useraccount.Account, error) {
	acct, err := s.store.GetUserAccount(ctx, owner, salt)
	if errors.Is(err, storage.ErrNotFound) {
		return useraccount.Account{}, fmt.Errorf("%w: %s", ErrNotRegistered, owner)
	}
	return acct, err
}

// ExistsFor reports whether owner has any registration.
func (s *Service) ExistsFor(ctx context.Context, owner identity.Identity) (bool, error) {
	accts, err := s.store.ListUserAccounts(ctx, owner)
	if err != nil {
		return false, err
	}
	return len(accts) > 0, nil
}

// CustodialAccountOf returns the owner's primary custodial account, the one
// from the earliest registration. Fails if the owner never registered.
func (s *Service) CustodialAccountOf(ctx context.Context, owner identity.Identity) (identity.Address, error) {
	return s.custodialAccountOf(ctx, owner)
}

// CanonicalAccountOf resolves the ledger account operations credit or weigh
// for an identity: the primary custodial account when registered, otherwise
// the identity's wallet.
func (s *Service) CanonicalAccountOf(ctx context.Context, id identity.Identity) (identity.Address, error) {
	custodial, err := s.custodialAccountOf(ctx, id)
	if errors.Is(err, ErrNotRegistered) {
		return id.Wallet(), nil
	}
	if err != nil {
		return "", err
	}
	return custodial, nil
}

// SetLegacyFeeCurrency sets the single legacy-accepted fee currency. The
// payment engine accepts it alongside the allowlist. Admin-only.
func (s *Service) SetLegacyFeeCurrency(ctx context.Context, caller identity.Identity, ref currency.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireAdmin(ctx, caller); err != nil {
		return err
	}
	if ref.IsZero() {
		return fmt.Errorf("currency reference required")
	}

	cfg, err := s.config.GetPaymentConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	cfg.LegacyFeeCurrency = ref
	if _, err := s.config.PutPaymentConfig(ctx, cfg); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeLegacyFeeCurrency, Actor: caller, Currency: ref})
	s.log.WithField("currency", ref.String()).Info("legacy fee currency set")
	return nil
}

func (s *Service) custodialAccountOf(ctx context.Context, owner identity.Identity) (identity.Address, error) {
	accts, err := s.store.ListUserAccounts(ctx, owner)
	if err != nil {
		return "", err
	}
	if len(accts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, owner)
	}
	return accts[0].CustodialAccount, nil
}
