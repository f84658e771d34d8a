// Package admin holds the privileged-role state for the treasury engine.
package admin

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// State is the singleton record of privileged roles. Exactly one admin and
// one reviewer are active at all times; pending fields are empty except
// between a propose and an accept.
type State struct {
	Admin           identity.Identity
	PendingAdmin    identity.Identity
	Reviewer        identity.Identity
	PendingReviewer identity.Identity
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
