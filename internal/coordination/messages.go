package coordination

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cotrain/pkg/types"
)

// Outbound payloads. Field names follow the backend's wire contract exactly.

// PresencePayload announces this party on the coordination channel right after
// the socket opens. Status is always false at that point.
type PresencePayload struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	OrgName  string `json:"orgName,omitempty"`
	Status   bool   `json:"status"`
}

// NewPresencePayload builds the open-handshake message for an identity.
func NewPresencePayload(identity *types.SessionIdentity) PresencePayload {
	return PresencePayload{
		UserID:   identity.UserID,
		UserType: identity.UserType,
		OrgName:  identity.OrgName,
		Status:   false,
	}
}

// StatusUpdate reports this party's stage completion.
type StatusUpdate struct {
	UserID string `json:"userId"`
	Status bool   `json:"status"`
}

// ProceedRequest is the lead's signal that all parties advance to the log stage.
type ProceedRequest struct {
	UserID  string `json:"userId"`
	Proceed bool   `json:"proceed"`
}

// TrainingRequest is the lead's signal that training starts.
type TrainingRequest struct {
	UserID   string `json:"userId"`
	Training bool   `json:"training"`
}

// ServerFrame is the closed union of everything the backend sends on the
// coordination channel. Pointer fields distinguish "absent" from zero values.
// FUNCTIONAL DISCOVERY: One frame may carry several fields at once - the
// backend batches snapshot and signal into a single message on state changes
type ServerFrame struct {
	StatusMap *map[string]bool `json:"statusMap"`
	Proceed   *bool            `json:"proceed"`
	Training  *bool            `json:"training"`
}

// ParseServerFrame decodes an inbound frame, rejecting unknown fields and
// frames carrying none of the recognized ones. Callers log and drop rejects.
func ParseServerFrame(data []byte) (*ServerFrame, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var frame ServerFrame
	if err := decoder.Decode(&frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if frame.StatusMap == nil && frame.Proceed == nil && frame.Training == nil {
		return nil, ErrUnrecognizedFrame
	}
	return &frame, nil
}
