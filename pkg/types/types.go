package types

import (
	"io"
	"strings"
	"time"
)

// User type constants defined exactly as the backend reports them
// to ensure compatibility with presence payloads and authorization checks
const (
	UserTypeLead        = "lead"
	UserTypeParticipant = "participant"
)

// Client-visible workflow stages, ordered form-upload < log < result.
// StageLanding is the zero stage a user falls back to when no session exists.
const (
	StageLanding    = "landing"
	StageFormUpload = "form-upload"
	StageLog        = "log"
	StageResult     = "result"
)

// Server-authoritative session lifecycle states
// ARCHITECTURAL DISCOVERY: The backend state set is a superset of client stages;
// CanonicalStage collapses it onto the stage a user is entitled to see
const (
	SessionStateCreated    = "created"
	SessionStateUploading  = "uploading"
	SessionStateReady      = "ready"
	SessionStateProcessing = "processing"
	SessionStateCompleted  = "completed"
	SessionStateFailed     = "failed"
)

// Participant count bounds fixed at session creation
const (
	MinParticipants = 2
	MaxParticipants = 10
)

// Progress markers emitted by the backend training pipeline
// FUNCTIONAL DISCOVERY: Milestone progression is ordinal (count of success
// markers), only full completion is content-matched against the terminal phrase
const (
	SuccessMarker  = "✅"
	TerminalPhrase = "MPyC task complete"
)

// SessionIdentity identifies one party within a collaborative training session.
// FUNCTIONAL DISCOVERY: Identity is immutable after adoption - any change
// produces a new value, which keeps persisted and in-memory copies consistent
type SessionIdentity struct {
	UserType         string `json:"user_type"`
	UserID           string `json:"user_id"`
	SessionID        string `json:"session_id"`
	ParticipantCount int    `json:"participant_count"`
	OrgName          string `json:"org_name,omitempty"`
	Label            string `json:"label,omitempty"`
}

// IsLead reports whether this identity configured the session.
func (id *SessionIdentity) IsLead() bool {
	return id.UserType == UserTypeLead
}

// Clone returns an independent copy so callers can never mutate an adopted
// identity in place.
func (id *SessionIdentity) Clone() *SessionIdentity {
	if id == nil {
		return nil
	}
	dup := *id
	return &dup
}

// PageAuthorization is the backend's answer to "may this user view this stage now".
type PageAuthorization struct {
	Allowed bool   `json:"allowed"`
	State   string `json:"current_state"`
	Reason  string `json:"reason"`
}

// CanonicalStage maps a server lifecycle state onto the one stage the user
// belongs on. Failed sessions have no stage and fall back to landing.
func CanonicalStage(state string) string {
	switch state {
	case SessionStateCreated, SessionStateUploading:
		return StageFormUpload
	case SessionStateReady, SessionStateProcessing:
		return StageLog
	case SessionStateCompleted:
		return StageResult
	default:
		return StageLanding
	}
}

// StageOrder returns the position of a stage in the linear workflow,
// or -1 for unknown stages.
func StageOrder(stage string) int {
	switch stage {
	case StageLanding:
		return 0
	case StageFormUpload:
		return 1
	case StageLog:
		return 2
	case StageResult:
		return 3
	default:
		return -1
	}
}

// ReadinessState is the converged view of per-participant completion flags
// plus the one-way proceed/training signals.
// FUNCTIONAL DISCOVERY: StatusMap is replaced wholesale on every snapshot;
// the client never merges deltas because the backend always sends the full map
type ReadinessState struct {
	StatusMap        map[string]bool `json:"status_map"`
	ParticipantCount int             `json:"participant_count"`
	ProceedSignaled  bool            `json:"proceed_signaled"`
	TrainingStarted  bool            `json:"training_started"`
}

// Ready is true only when every participant has connected at least once and
// completed the current stage. Partial maps are never ready regardless of values.
func (r *ReadinessState) Ready() bool {
	if r.ParticipantCount <= 0 || len(r.StatusMap) != r.ParticipantCount {
		return false
	}
	for _, done := range r.StatusMap {
		if !done {
			return false
		}
	}
	return true
}

// ProgressEvent is one line of the append-only training progress log.
type ProgressEvent struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Success reports whether this event carries the success marker glyph.
func (e ProgressEvent) Success() bool {
	return strings.Contains(e.Message, SuccessMarker)
}

// Terminal reports whether this event signals full MPC completion.
// TECHNICAL DISCOVERY: Completion requires both the success marker and the
// exact terminal phrase - the backend emits no stronger signal
func (e ProgressEvent) Terminal() bool {
	return e.Success() && strings.Contains(e.Message, TerminalPhrase)
}

// Identifier configuration modes for cross-party record alignment
const (
	IdentifierModeIndex   = "index"
	IdentifierModeColumns = "columns"
)

// IdentifierConfig describes how party datasets are joined before training.
type IdentifierConfig struct {
	Mode      string   `json:"mode"`
	Columns   []string `json:"columns"`
	Separator string   `json:"separator,omitempty"`
}

// RunConfig carries the lead-chosen training hyperparameters.
// Field names follow the backend's wire contract exactly.
type RunConfig struct {
	UserID           string           `json:"userId"`
	Normalizer       string           `json:"normalizer"`
	Regression       string           `json:"regression"`
	LearningRate     float64          `json:"learningRate"`
	Epochs           int              `json:"epochs"`
	Label            string           `json:"label"`
	IsLogging        bool             `json:"isLogging"`
	IdentifierConfig IdentifierConfig `json:"identifierConfig"`
}

// Coefficient is one trained model weight.
type Coefficient struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// SessionResult is the completed training outcome returned by the backend.
type SessionResult struct {
	Summary      map[string]any `json:"summary"`
	Coefficients []Coefficient  `json:"coefficients"`
	Config       RunConfig      `json:"config"`
}

// SessionInfo is the join-time view of a session used to reject joining a
// full session.
type SessionInfo struct {
	JoinedCount      int `json:"joined_count"`
	ParticipantCount int `json:"participant_count"`
}

// Full reports whether every seat in the session is taken.
func (s SessionInfo) Full() bool {
	return s.JoinedCount >= s.ParticipantCount
}

// DatasetUpload is one party's dataset submission. OrgName and Label are
// supplied only by the lead.
type DatasetUpload struct {
	GroupID  string
	UserID   string
	OrgName  string
	Label    string
	Filename string
	Data     io.Reader
}

// CommonColumn is a column present in every uploaded dataset.
type CommonColumn struct {
	Name                  string `json:"name"`
	IsPotentialIdentifier bool   `json:"is_potential_identifier"`
}

// CommonColumnsResult is the cross-party column negotiation outcome consumed
// by the lead when configuring the identifier join.
type CommonColumnsResult struct {
	CommonColumns    []CommonColumn      `json:"common_columns"`
	Error            string              `json:"error,omitempty"`
	AllColumnsByUser map[string][]string `json:"all_columns_by_user"`
}
