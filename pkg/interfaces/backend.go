package interfaces

import (
	"context"
	"io"

	"cotrain/pkg/types"
)

// Backend is the HTTP surface of the external training backend.
// FUNCTIONAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling across all backend operations
type Backend interface {
	// CreateSession registers a new collaborative session (lead only)
	// and returns the backend-assigned session ID.
	CreateSession(ctx context.Context, participantCount int, leadUserID string) (string, error)

	// GetSession inspects a session's seat occupancy, used to reject
	// joining a full session.
	GetSession(ctx context.Context, sessionID string) (*types.SessionInfo, error)

	// Upload submits one party's dataset as multipart form data.
	Upload(ctx context.Context, upload types.DatasetUpload) error

	// SubmitRun submits the lead-chosen training configuration.
	SubmitRun(ctx context.Context, sessionID string, cfg types.RunConfig) error

	// GetResult fetches the completed training outcome.
	GetResult(ctx context.Context, sessionID string) (*types.SessionResult, error)

	// DownloadModel streams the trained model binary; the filename comes
	// from the Content-Disposition header. Caller closes the reader.
	DownloadModel(ctx context.Context, sessionID string) (string, io.ReadCloser, error)

	// CheckState asks whether the user may view the requested stage now.
	CheckState(ctx context.Context, sessionID, stage, userID string) (*types.PageAuthorization, error)

	// Predict runs a single prediction over feature rows.
	Predict(ctx context.Context, sessionID string, rows []map[string]float64) ([]float64, error)

	// PredictBatch runs predictions over an uploaded file.
	PredictBatch(ctx context.Context, sessionID, filename string, file io.Reader) ([]float64, error)

	// CommonColumns fetches the cross-party column negotiation result.
	CommonColumns(ctx context.Context, sessionID string) (*types.CommonColumnsResult, error)
}
