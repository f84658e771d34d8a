// Package group holds group registry records.
package group

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Group maps a group identifier to its custodial account. Groups are never
// destroyed, only renamed via migration.
type Group struct {
	ID               string
	CustodialAccount identity.Address
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
