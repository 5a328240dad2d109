package types

import "regexp"

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	userIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Validate ensures the identity meets all requirements before adoption.
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (id *SessionIdentity) Validate() error {
	if !IsValidUserType(id.UserType) {
		return ErrInvalidUserType
	}
	if !IsValidUserID(id.UserID) {
		return ErrInvalidUserID
	}
	if !IsValidSessionID(id.SessionID) {
		return ErrInvalidSessionID
	}
	if id.ParticipantCount < MinParticipants || id.ParticipantCount > MaxParticipants {
		return ErrInvalidParticipantCount
	}
	if id.IsLead() && id.OrgName == "" {
		return ErrMissingOrgName
	}
	return nil
}

// Validate ensures the run configuration is complete before submission.
// FUNCTIONAL DISCOVERY: Identifier separator is only required when joining
// on more than one column (composite identifier)
func (c *RunConfig) Validate() error {
	if !IsValidUserID(c.UserID) {
		return ErrInvalidUserID
	}
	if c.LearningRate <= 0 {
		return ErrInvalidLearningRate
	}
	if c.Epochs <= 0 {
		return ErrInvalidEpochs
	}
	if c.Label == "" {
		return ErrMissingLabel
	}
	switch c.IdentifierConfig.Mode {
	case IdentifierModeIndex:
		// Row-order join, no columns needed
	case IdentifierModeColumns:
		if len(c.IdentifierConfig.Columns) == 0 {
			return ErrMissingIdentifierColumn
		}
		if len(c.IdentifierConfig.Columns) > 1 && c.IdentifierConfig.Separator == "" {
			return ErrMissingSeparator
		}
	default:
		return ErrInvalidIdentifierMode
	}
	return nil
}

// IsValidUserType checks the role against the two allowed values.
func IsValidUserType(userType string) bool {
	return userType == UserTypeLead || userType == UserTypeParticipant
}

// IsValidUserID checks if a user ID meets format requirements.
// FUNCTIONAL DISCOVERY: 1-64 character limit accommodates UUID-based IDs
// while preventing unbounded identifiers from reaching storage
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidSessionID checks if a session ID meets format requirements.
// Session IDs are backend-assigned opaque keys; only the character set and
// length are validated client-side.
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return sessionIDRegex.MatchString(sessionID)
}

// IsValidStage checks if the stage is one of the client-visible routes.
func IsValidStage(stage string) bool {
	switch stage {
	case StageLanding, StageFormUpload, StageLog, StageResult:
		return true
	default:
		return false
	}
}

// IsValidSessionState checks if the state is one of the backend lifecycle states.
// ARCHITECTURAL DISCOVERY: Explicit validation prevents undefined states
// from entering the guard's decision table
func IsValidSessionState(state string) bool {
	switch state {
	case SessionStateCreated,
		SessionStateUploading,
		SessionStateReady,
		SessionStateProcessing,
		SessionStateCompleted,
		SessionStateFailed:
		return true
	default:
		return false
	}
}
