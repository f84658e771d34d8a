// Package reward holds pool reward records.
package reward

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Pool is an escrowed reward pool for one group. RewardAmount only decreases;
// ClaimedUsers grows by one per claim and is insertion-ordered. The record is
// deleted when every slot has been claimed.
type Pool struct {
	GroupID       string
	PoolID        string
	Currency      currency.Ref
	RewardAmount  int64
	TotalUsers    int
	ClaimedUsers  []identity.Identity
	HolderAccount identity.Address
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Remaining returns the number of unclaimed slots.
func (p Pool) Remaining() int {
	return p.TotalUsers - len(p.ClaimedUsers)
}

// HasClaimed reports whether the user already claimed from this pool.
func (p Pool) HasClaimed(user identity.Identity) bool {
	for _, u := range p.ClaimedUsers {
		if u == user {
			return true
		}
	}
	return false
}
