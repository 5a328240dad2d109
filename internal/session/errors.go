package session

import "errors"

var (
	// ErrSessionFull indicates every seat in the session is already taken
	ErrSessionFull = errors.New("session is full")

	// ErrInvalidParticipantCount indicates a count outside the allowed bounds
	ErrInvalidParticipantCount = errors.New("participant count out of bounds")
)
