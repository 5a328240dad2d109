package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrIdentityNotFound = errors.New("no identity persisted for scope")
	ErrNoIdentity       = errors.New("no session identity available")
	ErrSessionNotFound  = errors.New("session not found")
)
