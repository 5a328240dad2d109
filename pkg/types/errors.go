package types

import "errors"

// Validation error types shared across components
var (
	ErrInvalidUserType         = errors.New("user type must be 'lead' or 'participant'")
	ErrInvalidUserID           = errors.New("invalid user ID format")
	ErrInvalidSessionID        = errors.New("invalid session ID format")
	ErrInvalidParticipantCount = errors.New("participant count must be between 2 and 10")
	ErrMissingOrgName          = errors.New("lead identity requires an organization name")
	ErrInvalidStage            = errors.New("unknown workflow stage")
	ErrInvalidSessionState     = errors.New("unknown session state")
	ErrInvalidLearningRate     = errors.New("learning rate must be positive")
	ErrInvalidEpochs           = errors.New("epochs must be positive")
	ErrMissingLabel            = errors.New("target label is required")
	ErrInvalidIdentifierMode   = errors.New("identifier mode must be 'index' or 'columns'")
	ErrMissingIdentifierColumn = errors.New("columns mode requires at least one identifier column")
	ErrMissingSeparator        = errors.New("composite identifier requires a separator")
)
