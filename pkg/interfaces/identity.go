package interfaces

import (
	"context"

	"cotrain/pkg/types"
)

// IdentityStore resolves, persists and exposes the current session identity.
// ARCHITECTURAL DISCOVERY: Explicitly constructed with a profile scope instead
// of ambient global storage - enables clean testing with fakes
type IdentityStore interface {
	// Resolve runs the layered resolution: adopt the navigation payload when
	// present (persisting it), otherwise restore from durable storage,
	// otherwise return ErrNoIdentity.
	Resolve(ctx context.Context, nav *types.SessionIdentity) (*types.SessionIdentity, error)

	// Current returns the last resolved identity without touching storage,
	// or nil when none has been resolved.
	Current() *types.SessionIdentity

	// Clear drops the resolved identity and removes the persisted copy.
	// Used on explicit navigation back to the landing stage.
	Clear(ctx context.Context) error

	// UserID returns the profile's stable user ID, generating it on first use.
	UserID(ctx context.Context) (string, error)
}
