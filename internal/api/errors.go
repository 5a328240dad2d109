package api

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates the backend has no session with the given ID
	ErrSessionNotFound = errors.New("session not found")

	// ErrBackendUnavailable indicates the backend could not be reached at all
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// APIError carries a backend rejection. Detail is the backend-provided message
// surfaced verbatim to the user when present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend request failed with status %d", e.StatusCode)
}
