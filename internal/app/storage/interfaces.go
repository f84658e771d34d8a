// Package storage defines the persistence interfaces of the treasury engine.
//
// Implementations live in subpackages: memory (default, for tests and
// single-node runs) and postgres.
package storage

import (
	"context"
	"errors"

	"github.com/custodia-network/treasury/internal/app/domain/admin"
	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/dao"
	"github.com/custodia-network/treasury/internal/app/domain/group"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/payment"
	"github.com/custodia-network/treasury/internal/app/domain/reward"
	"github.com/custodia-network/treasury/internal/app/domain/useraccount"
)

// Sentinel errors shared by all store implementations. Stores wrap these with
// detail; callers match with errors.Is.
var (
	ErrNotFound          = errors.New("storage: not found")
	ErrAlreadyExists     = errors.New("storage: already exists")
	ErrInsufficientFunds = errors.New("storage: insufficient funds")
)

// AdminStore persists the singleton admin/reviewer state.
type AdminStore interface {
	GetAdminState(ctx context.Context) (admin.State, error)
	PutAdminState(ctx context.Context, st admin.State) (admin.State, error)
}

// PaymentConfigStore persists the singleton payment configuration and the fee
// currency allowlist.
type PaymentConfigStore interface {
	GetPaymentConfig(ctx context.Context) (payment.Config, error)
	PutPaymentConfig(ctx context.Context, cfg payment.Config) (payment.Config, error)

	AddAllowedCurrency(ctx context.Context, ref currency.Ref) error
	RemoveAllowedCurrency(ctx context.Context, ref currency.Ref) error
	IsCurrencyAllowed(ctx context.Context, ref currency.Ref) (bool, error)
	ListAllowedCurrencies(ctx context.Context) ([]currency.Ref, error)
}

// UserAccountStore persists user registrations, keyed by (owner, salt).
type UserAccountStore interface {
	CreateUserAccount(ctx context.Context, acct useraccount.Account) (useraccount.Account, error)
	GetUserAccount(ctx context.Context, owner identity.Identity, salt string) (useraccount.Account, error)
	ListUserAccounts(ctx context.Context, owner identity.Identity) ([]useraccount.Account, error)
}

// GroupStore persists group records. RenameGroup atomically re-keys a group,
// evicting any record already stored at the target id.
type GroupStore interface {
	CreateGroup(ctx context.Context, grp group.Group) (group.Group, error)
	GetGroup(ctx context.Context, id string) (group.Group, error)
	ListGroups(ctx context.Context) ([]group.Group, error)
	RenameGroup(ctx context.Context, oldID, newID string) (group.Group, error)
}

// PoolStore persists reward pools, keyed by (groupID, poolID). SettleClaim
// applies one claim atomically: the payout moves from the pool's holder
// account to target and p (the post-claim state) replaces the stored record,
// deleted instead once fully claimed. Either everything applies or nothing
// does.
type PoolStore interface {
	CreatePool(ctx context.Context, p reward.Pool) (reward.Pool, error)
	UpdatePool(ctx context.Context, p reward.Pool) (reward.Pool, error)
	GetPool(ctx context.Context, groupID, poolID string) (reward.Pool, error)
	ListPools(ctx context.Context, groupID string) ([]reward.Pool, error)
	DeletePool(ctx context.Context, groupID, poolID string) error
	SettleClaim(ctx context.Context, p reward.Pool, target identity.Address, payout int64, memo string) (ledger.Transfer, error)
}

// ProposalStore persists governance proposals, keyed by (groupID, daoID).
type ProposalStore interface {
	CreateProposal(ctx context.Context, p dao.Proposal) (dao.Proposal, error)
	UpdateProposal(ctx context.Context, p dao.Proposal) (dao.Proposal, error)
	GetProposal(ctx context.Context, groupID, daoID string) (dao.Proposal, error)
	ListProposals(ctx context.Context, groupID string) ([]dao.Proposal, error)
}

// LedgerStore persists balances and the transfer log. Transfer and
// TransferBatch are atomic: either every leg applies and a record is written,
// or nothing changes.
type LedgerStore interface {
	Deposit(ctx context.Context, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error)
	Transfer(ctx context.Context, from, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error)
	TransferBatch(ctx context.Context, from identity.Address, ref currency.Ref, legs []ledger.Leg, kind ledger.TransferKind, memo string) ([]ledger.Transfer, error)
	Balance(ctx context.Context, addr identity.Address, ref currency.Ref) (int64, error)
	ListTransfers(ctx context.Context, addr identity.Address) ([]ledger.Transfer, error)
}
