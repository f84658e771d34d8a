// Package useraccount holds user registration records.
package useraccount

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Account maps an external identity (plus a caller-supplied salt) to its
// custodial account. The custodial address is stable for the life of the
// registration; distinct salts yield independent accounts.
type Account struct {
	Owner            identity.Identity
	Salt             string
	CustodialAccount identity.Address
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
