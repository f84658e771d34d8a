// Package ledger defines the value-movement records of the treasury engine.
package ledger

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// TransferKind classifies a ledger movement for audit queries.
type TransferKind string

const (
	KindDeposit     TransferKind = "deposit"
	KindWithdrawal  TransferKind = "withdrawal"
	KindFee         TransferKind = "fee"
	KindPayout      TransferKind = "payout"
	KindRewardFund  TransferKind = "reward_fund"
	KindRewardClaim TransferKind = "reward_claim"
)

// Transfer is a completed ledger movement. Transfers are append-only; a
// failed operation records nothing.
type Transfer struct {
	ID        string
	From      identity.Address
	To        identity.Address
	Currency  currency.Ref
	Amount    int64
	Kind      TransferKind
	Memo      string
	CreatedAt time.Time
}

// Leg is one recipient of a batch transfer.
type Leg struct {
	To     identity.Address
	Amount int64
}
