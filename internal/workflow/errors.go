package workflow

import "errors"

var (
	// ErrSubmissionInFlight indicates an identical request is still pending
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrNotLead indicates a lead-only action attempted by a participant
	ErrNotLead = errors.New("action is lead-only")

	// ErrNotReady indicates not every participant has completed the stage
	ErrNotReady = errors.New("not all participants are ready")

	// ErrNoSession indicates no session is attached to the runner
	ErrNoSession = errors.New("no session attached")
)
