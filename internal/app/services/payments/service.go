// Package payments settles fees and recipient payouts out of custodial
// accounts under admin+reviewer co-signature.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/payment"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/metrics"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/services/useraccounts"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrFeeCollectorUnset   = errors.New("fee collector not provisioned")
	ErrCurrencyNotAccepted = errors.New("currency not accepted for fees")
	ErrNoRecipients        = errors.New("recipient list is empty")
	ErrAmountTooSmall      = errors.New("amount too small to split across recipients")
)

// Service moves value between custodial accounts, the fee collector, and
// recipient lists.
type Service struct {
	mu       sync.Mutex
	ledger   storage.LedgerStore
	config   storage.PaymentConfigStore
	admins   *adminregistry.Service
	accounts *useraccounts.Service
	bus      events.Bus
	log      *logger.Logger
}

// New constructs the payment service.
func New(ledgerStore storage.LedgerStore, config storage.PaymentConfigStore, admins *adminregistry.Service, accounts *useraccounts.Service, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{ledger: ledgerStore, config: config, admins: admins, accounts: accounts, bus: bus, log: log}
}

// SetFeeCollector provisions the account fees settle into. Requires
// co-signature.
func (s *Service) SetFeeCollector(ctx context.Context, adminSigner, reviewerSigner identity.Identity, collector identity.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return err
	}
	if collector == "" {
		return fmt.Errorf("fee collector address required")
	}

	cfg, err := s.config.GetPaymentConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	cfg.FeeCollector = collector
	if _, err := s.config.PutPaymentConfig(ctx, cfg); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeFeeCollectorSet, Actor: adminSigner, RefID: string(collector)})
	s.log.WithField("fee_collector", string(collector)).Info("fee collector set")
	return nil
}

// Deposit credits a ledger account. This is the on-ramp path the external
// collaborator uses to fund custodial accounts.
func (s *Service) Deposit(ctx context.Context, to identity.Address, ref currency.Ref, amount int64, memo string) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ledger.Deposit(ctx, to, ref, amount, ledger.KindDeposit, memo)
	if err != nil {
		return ledger.Transfer{}, err
	}

	metrics.RecordTransfer(string(ledger.KindDeposit), amount)
	s.bus.Publish(events.Event{
		Type:     events.TypeDeposit,
		Currency: ref,
		Amount:   amount,
		RefID:    rec.ID,
		Metadata: map[string]string{"to": string(to)},
	})
	return rec, nil
}

// PayFee transfers a fee from the user's custodial account to the fee
// collector. Requires co-signature; the currency must match the legacy
// configuration or be allowlisted.
func (s *Service) PayFee(ctx context.Context, adminSigner, reviewerSigner, user identity.Identity, amount int64, ref currency.Ref) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { metrics.ObserveOperation("payments", "pay_fee", time.Since(start)) }(time.Now())

	cfg, custodial, err := s.validatePayment(ctx, adminSigner, reviewerSigner, user, amount, ref)
	if err != nil {
		metrics.RecordFailure("payments", "pay_fee")
		return ledger.Transfer{}, err
	}
	if cfg.FeeCollector == "" {
		metrics.RecordFailure("payments", "pay_fee")
		return ledger.Transfer{}, ErrFeeCollectorUnset
	}

	rec, err := s.ledger.Transfer(ctx, custodial, cfg.FeeCollector, ref, amount, ledger.KindFee, "fee settlement")
	if err != nil {
		metrics.RecordFailure("payments", "pay_fee")
		return ledger.Transfer{}, err
	}

	metrics.RecordTransfer(string(ledger.KindFee), amount)
	s.bus.Publish(events.Event{
		Type:     events.TypeFeePaid,
		Actor:    adminSigner,
		Subject:  user,
		Currency: ref,
		Amount:   amount,
		RefID:    rec.ID,
	})
	s.log.WithField("user", string(user)).
		WithField("amount", amount).
		WithField("currency", ref.String()).
		Info("fee settled")
	return rec, nil
}

// PayRecipients splits amount evenly across recipients via integer division
// and transfers each share from the user's custodial account. The division
// remainder stays in the source account.
func (s *Service) PayRecipients(ctx context.Context, adminSigner, reviewerSigner, user identity.Identity, amount int64, ref currency.Ref, recipients []identity.Address) ([]ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { metrics.ObserveOperation("payments", "pay_recipients", time.Since(start)) }(time.Now())

	if len(recipients) == 0 {
		metrics.RecordFailure("payments", "pay_recipients")
		return nil, ErrNoRecipients
	}

	_, custodial, err := s.validatePayment(ctx, adminSigner, reviewerSigner, user, amount, ref)
	if err != nil {
		metrics.RecordFailure("payments", "pay_recipients")
		return nil, err
	}

	share := amount / int64(len(recipients))
	if share <= 0 {
		metrics.RecordFailure("payments", "pay_recipients")
		return nil, fmt.Errorf("%w: %d across %d", ErrAmountTooSmall, amount, len(recipients))
	}

	legs := make([]ledger.Leg, 0, len(recipients))
	for _, to := range recipients {
		legs = append(legs, ledger.Leg{To: to, Amount: share})
	}

	recs, err := s.ledger.TransferBatch(ctx, custodial, ref, legs, ledger.KindPayout, "recipient payout")
	if err != nil {
		metrics.RecordFailure("payments", "pay_recipients")
		return nil, err
	}

	metrics.RecordTransfer(string(ledger.KindPayout), share*int64(len(recipients)))
	s.bus.Publish(events.Event{
		Type:     events.TypeRecipientsPaid,
		Actor:    adminSigner,
		Subject:  user,
		Currency: ref,
		Amount:   share * int64(len(recipients)),
		Metadata: map[string]string{"recipients": fmt.Sprintf("%d", len(recipients))},
	})
	s.log.WithField("user", string(user)).
		WithField("share", share).
		WithField("recipients", len(recipients)).
		Info("recipients paid")
	return recs, nil
}

// TransfersOf returns the transfer log entries touching an account.
func (s *Service) TransfersOf(ctx context.Context, addr identity.Address) ([]ledger.Transfer, error) {
	return s.ledger.ListTransfers(ctx, addr)
}

// validatePayment runs the shared co-signature, amount, currency, and
// registration checks. It returns the payment config and the user's custodial
// account.
func (s *Service) validatePayment(ctx context.Context, adminSigner, reviewerSigner, user identity.Identity, amount int64, ref currency.Ref) (payment.Config, identity.Address, error) {
	if err := s.admins.RequireCosign(ctx, adminSigner, reviewerSigner); err != nil {
		return payment.Config{}, "", err
	}
	if amount <= 0 {
		return payment.Config{}, "", fmt.Errorf("amount must be positive, got %d", amount)
	}

	cfg, err := s.config.GetPaymentConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return payment.Config{}, "", err
	}

	accepted := !cfg.LegacyFeeCurrency.IsZero() && cfg.LegacyFeeCurrency == ref
	if !accepted {
		listed, err := s.config.IsCurrencyAllowed(ctx, ref)
		if err != nil {
			return payment.Config{}, "", err
		}
		accepted = listed
	}
	if !accepted {
		return payment.Config{}, "", fmt.Errorf("%w: %s", ErrCurrencyNotAccepted, ref)
	}

	custodial, err := s.accounts.CustodialAccountOf(ctx, user)
	if err != nil {
		return payment.Config{}, "", err
	}
	return cfg, custodial, nil
}
