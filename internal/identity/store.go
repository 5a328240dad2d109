package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Store resolves and persists the session identity for one profile scope.
//
// ARCHITECTURAL DISCOVERY: Identity resolution has two sources with strict
// precedence - an explicit identity handed over on navigation wins and is
// persisted, otherwise the stored copy is restored without re-persisting
type Store struct {
	state interfaces.StateStore
	scope string

	mu      sync.RWMutex
	current *types.SessionIdentity
}

// NewStore creates an identity store bound to a profile scope.
func NewStore(state interfaces.StateStore, scope string) *Store {
	return &Store{
		state: state,
		scope: scope,
	}
}

var _ interfaces.IdentityStore = (*Store)(nil)

// Resolve determines the active identity. A non-nil nav identity is validated,
// persisted, and becomes current; with nil nav the stored identity is restored.
func (s *Store) Resolve(ctx context.Context, nav *types.SessionIdentity) (*types.SessionIdentity, error) {
	if nav != nil {
		if err := nav.Validate(); err != nil {
			return nil, fmt.Errorf("invalid navigation identity: %w", err)
		}

		if err := s.state.SaveIdentity(ctx, s.scope, nav); err != nil {
			return nil, fmt.Errorf("failed to persist identity: %w", err)
		}

		s.mu.Lock()
		s.current = nav.Clone()
		s.mu.Unlock()

		return nav.Clone(), nil
	}

	stored, err := s.state.LoadIdentity(ctx, s.scope)
	if err != nil {
		if errors.Is(err, interfaces.ErrIdentityNotFound) {
			return nil, interfaces.ErrNoIdentity
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	// Restored identities are not written back: the stored copy is already
	// authoritative and rewriting it would churn the updated_at column.
	s.mu.Lock()
	s.current = stored.Clone()
	s.mu.Unlock()

	log.Printf("Restored identity for session %s (user %s)", stored.SessionID, stored.UserID)
	return stored, nil
}

// Current returns the in-memory identity without touching storage.
func (s *Store) Current() *types.SessionIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// Clear removes the identity from memory and storage.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.state.ClearIdentity(ctx, s.scope); err != nil {
		return fmt.Errorf("failed to clear stored identity: %w", err)
	}
	return nil
}

// UserID returns the stable per-profile user ID, generating one on first use.
func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.state.ProfileUserID(ctx, s.scope)
}
