// Package dao holds group governance proposal and vote records.
package dao

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Status is the purely time-derived lifecycle of a proposal; it is never
// stored.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
)

// Vote records one user's choice on one proposal. Weight is the voter's
// balance of the proposal currency at the moment the vote was cast.
type Vote struct {
	DaoID    string
	ChoiceID int
	Weight   int64
	Voter    identity.Identity
	CastAt   time.Time
}

// Proposal is a time-boxed, currency-weighted poll. ChoiceWeights is kept
// parallel to Choices; its entries equal the sum of weights of all votes for
// that choice. Proposals persist after closing for audit.
type Proposal struct {
	GroupID       string
	DaoID         string
	Choices       []string
	ChoiceWeights []int64
	Votes         []Vote
	Currency      currency.Ref
	VotingFrom    time.Time
	VotingTo      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusAt returns the proposal status at the given instant. The window is
// inclusive on both ends.
func (p Proposal) StatusAt(now time.Time) Status {
	switch {
	case now.Before(p.VotingFrom):
		return StatusScheduled
	case now.After(p.VotingTo):
		return StatusClosed
	default:
		return StatusOpen
	}
}

// VoteOf returns the vote cast by the given user, if any.
func (p Proposal) VoteOf(user identity.Identity) (Vote, bool) {
	for _, v := range p.Votes {
		if v.Voter == user {
			return v, true
		}
	}
	return Vote{}, false
}
