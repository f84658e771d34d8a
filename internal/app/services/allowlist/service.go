// Package allowlist manages the admin-curated set of currencies accepted for
// fee settlement.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrNotInitialized     = errors.New("fee currency allowlist not initialized")
	ErrAlreadyInitialized = errors.New("fee currency allowlist already initialized")
	ErrCurrencyListed     = errors.New("currency already allowlisted")
	ErrCurrencyNotListed  = errors.New("currency not allowlisted")
)

// Service manages allowlist membership. All mutations are admin-only.
type Service struct {
	mu     sync.Mutex
	store  storage.PaymentConfigStore
	admins *adminregistry.Service
	bus    events.Bus
	log    *logger.Logger
}

// New constructs the allowlist service.
func New(store storage.PaymentConfigStore, admins *adminregistry.Service, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("allowlist")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{store: store, admins: admins, bus: bus, log: log}
}

// Init marks the allowlist as established. Runs once, admin-only.
func (s *Service) Init(ctx context.Context, caller identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireAdmin(ctx, caller); err != nil {
		return err
	}

	cfg, err := s.store.GetPaymentConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if cfg.AllowlistInitialized {
		return ErrAlreadyInitialized
	}

	cfg.AllowlistInitialized = true
	if _, err := s.store.PutPaymentConfig(ctx, cfg); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeAllowlistInit, Actor: caller})
	s.log.Info("fee currency allowlist initialized")
	return nil
}

// Add allowlists a currency. Fails on duplicates.
func (s *Service) Add(ctx context.Context, caller identity.Identity, ref currency.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireAdmin(ctx, caller); err != nil {
		return err
	}
	if ref.IsZero() {
		return fmt.Errorf("currency reference required")
	}
	if err := s.requireInitialized(ctx); err != nil {
		return err
	}

	if err := s.store.AddAllowedCurrency(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrCurrencyListed, ref)
		}
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeAllowlistAdded, Actor: caller, Currency: ref})
	s.log.WithField("currency", ref.String()).Info("currency allowlisted")
	return nil
}

// Remove delists a currency. Fails if it is absent.
func (s *Service) Remove(ctx context.Context, caller identity.Identity, ref currency.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.requireInitialized(ctx); err != nil {
		return err
	}

	if err := s.store.RemoveAllowedCurrency(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCurrencyNotListed, ref)
		}
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeAllowlistRemoved, Actor: caller, Currency: ref})
	s.log.WithField("currency", ref.String()).Info("currency delisted")
	return nil
}

// Contains reports allowlist membership.
func (s *Service) Contains(ctx context.Context, ref currency.Ref) (bool, error) {
	return s.store.IsCurrencyAllowed(ctx, ref)
}

// List returns the allowlisted currencies in stable order.
func (s *Service) List(ctx context.Context) ([]currency.Ref, error) {
	return s.store.ListAllowedCurrencies(ctx)
}

func (s *Service) requireInitialized(ctx context.Context) error {
	cfg, err := s.store.GetPaymentConfig(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotInitialized
	}
	if err != nil {
		return err
	}
	if !cfg.AllowlistInitialized {
		return ErrNotInitialized
	}
	return nil
}
