package interfaces

import (
	"context"

	"cotrain/pkg/types"
)

// StateStore is the durable per-profile state layer.
// ARCHITECTURAL DISCOVERY: Only the identity store reads or writes identity
// rows; every other component goes through the identity store, never here
type StateStore interface {
	// SaveIdentity persists the identity under the profile scope,
	// replacing any previous value (single key per scope).
	SaveIdentity(ctx context.Context, scope string, identity *types.SessionIdentity) error

	// LoadIdentity returns the persisted identity for the scope,
	// or ErrIdentityNotFound when none exists.
	LoadIdentity(ctx context.Context, scope string) (*types.SessionIdentity, error)

	// ClearIdentity removes the persisted identity for the scope.
	// Clearing a scope that holds nothing is not an error.
	ClearIdentity(ctx context.Context, scope string) error

	// ProfileUserID returns the stable user ID for the scope, generating
	// and persisting one on first use.
	// FUNCTIONAL DISCOVERY: The user ID outlives individual sessions - it is
	// the profile's identity, not the session's
	ProfileUserID(ctx context.Context, scope string) (string, error)

	// AppendProgressEvent stores one progress log line for later replay.
	AppendProgressEvent(ctx context.Context, scope, sessionID string, event types.ProgressEvent) error

	// ProgressHistory returns all stored progress events for a session in
	// arrival order.
	ProgressHistory(ctx context.Context, scope, sessionID string) ([]types.ProgressEvent, error)

	// HealthCheck verifies the store is reachable and writable.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}
