// Package adminregistry manages the privileged admin and reviewer roles and
// their two-phase succession. Every value-moving operation in the engine is
// gated through RequireCosign.
package adminregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-network/treasury/internal/app/domain/admin"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/pkg/logger"
)

var (
	ErrNotInitialized     = errors.New("admin registry not initialized")
	ErrAlreadyInitialized = errors.New("admin registry already initialized")
	ErrNotAdmin           = errors.New("caller is not the admin")
	ErrNotReviewer        = errors.New("caller is not the reviewer")
	ErrNotPendingAdmin    = errors.New("caller is not the pending admin")
	ErrNotPendingReviewer = errors.New("caller is not the pending reviewer")
)

// Service holds the singleton role state.
type Service struct {
	mu    sync.Mutex
	store storage.AdminStore
	bus   events.Bus
	log   *logger.Logger
}

// New constructs the admin registry service.
func New(store storage.AdminStore, bus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("adminregistry")
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{store: store, bus: bus, log: log}
}

// Init records the owner as both admin and reviewer. It runs once; a second
// call fails.
func (s *Service) Init(ctx context.Context, owner identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner.IsZero() {
		return fmt.Errorf("owner identity required")
	}
	if _, err := s.store.GetAdminState(ctx); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if _, err := s.store.PutAdminState(ctx, admin.State{Admin: owner, Reviewer: owner}); err != nil {
		return err
	}
	s.log.WithField("owner", string(owner)).Info("admin registry initialized")
	return nil
}

// SetPendingAdmin nominates a successor admin. Overwrites any existing
// nomination.
func (s *Service) SetPendingAdmin(ctx context.Context, caller, candidate identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return s.wrapState(err)
	}
	if st.Admin != caller {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	if candidate.IsZero() {
		return fmt.Errorf("candidate identity required")
	}

	st.PendingAdmin = candidate
	if _, err := s.store.PutAdminState(ctx, st); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeAdminPendingSet, Actor: caller, Subject: candidate})
	s.log.WithField("candidate", string(candidate)).Info("pending admin set")
	return nil
}

// AcceptAdmin completes an admin succession. Only the exact pending candidate
// may accept; the pending slot is cleared on success.
func (s *Service) AcceptAdmin(ctx context.Context, caller identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return s.wrapState(err)
	}
	if st.PendingAdmin.IsZero() || st.PendingAdmin != caller {
		return fmt.Errorf("%w: %s", ErrNotPendingAdmin, caller)
	}

	previous := st.Admin
	st.Admin = caller
	st.PendingAdmin = ""
	if _, err := s.store.PutAdminState(ctx, st); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeAdminAccepted, Actor: caller, Subject: previous})
	s.log.WithField("admin", string(caller)).Info("admin succession completed")
	return nil
}

// SetPendingReviewer nominates a successor reviewer, independent of any
// pending admin succession.
func (s *Service) SetPendingReviewer(ctx context.Context, caller, candidate identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return s.wrapState(err)
	}
	if st.Admin != caller {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	if candidate.IsZero() {
		return fmt.Errorf("candidate identity required")
	}

	st.PendingReviewer = candidate
	if _, err := s.store.PutAdminState(ctx, st); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeReviewerPendingSet, Actor: caller, Subject: candidate})
	s.log.WithField("candidate", string(candidate)).Info("pending reviewer set")
	return nil
}

// AcceptReviewer completes a reviewer succession.
func (s *Service) AcceptReviewer(ctx context.Context, caller identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return s.wrapState(err)
	}
	if st.PendingReviewer.IsZero() || st.PendingReviewer != caller {
		return fmt.Errorf("%w: %s", ErrNotPendingReviewer, caller)
	}

	previous := st.Reviewer
	st.Reviewer = caller
	st.PendingReviewer = ""
	if _, err := s.store.PutAdminState(ctx, st); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.TypeReviewerAccepted, Actor: caller, Subject: previous})
	s.log.WithField("reviewer", string(caller)).Info("reviewer succession completed")
	return nil
}

// IsAdmin reports whether id is the current admin.
func (s *Service) IsAdmin(ctx context.Context, id identity.Identity) (bool, error) {
	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return false, s.wrapState(err)
	}
	return st.Admin == id, nil
}

// IsReviewer reports whether id is the current reviewer.
func (s *Service) IsReviewer(ctx context.Context, id identity.Identity) (bool, error) {
	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return false, s.wrapState(err)
	}
	return st.Reviewer == id, nil
}

// IsPendingAdmin reports whether id is the nominated successor admin.
func (s *Service) IsPendingAdmin(ctx context.Context, id identity.Identity) (bool, error) {
	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return false, s.wrapState(err)
	}
	return !st.PendingAdmin.IsZero() && st.PendingAdmin == id, nil
}

// IsPendingReviewer reports whether id is the nominated successor reviewer.
func (s *Service) IsPendingReviewer(ctx context.Context, id identity.Identity) (bool, error) {
	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return false, s.wrapState(err)
	}
	return !st.PendingReviewer.IsZero() && st.PendingReviewer == id, nil
}

// RequireAdmin fails unless caller is the current admin.
func (s *Service) RequireAdmin(ctx context.Context, caller identity.Identity) error {
	ok, err := s.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	return nil
}

// RequireCosign fails unless adminSigner is the current admin and
// reviewerSigner is the current reviewer.
func (s *Service) RequireCosign(ctx context.Context, adminSigner, reviewerSigner identity.Identity) error {
	st, err := s.store.GetAdminState(ctx)
	if err != nil {
		return s.wrapState(err)
	}
	if st.Admin != adminSigner {
		return fmt.Errorf("%w: %s", ErrNotAdmin, adminSigner)
	}
	if st.Reviewer != reviewerSigner {
		return fmt.Errorf("%w: %s", ErrNotReviewer, reviewerSigner)
	}
	return nil
}

func (s *Service) wrapState(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotInitialized
	}
	return err
}
