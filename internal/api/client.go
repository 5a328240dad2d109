package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"cotrain/internal/config"
	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Client is the HTTP backend client. It holds no session state of its own;
// every method is a single request-response exchange.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client from configuration.
func NewClient(cfg *config.BackendConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

var _ interfaces.Backend = (*Client)(nil)

// decodeError turns a non-2xx response into an *APIError, extracting the
// backend's {detail} message when the body carries one.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(body) > 0 {
		var payload struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Detail = payload.Detail
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, apiErr.Error())
	}
	return apiErr
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// CreateSession registers a new session and returns its backend-assigned ID.
func (c *Client) CreateSession(ctx context.Context, participantCount int, leadUserID string) (string, error) {
	req := struct {
		ParticipantCount int    `json:"participant_count"`
		LeadUserID       string `json:"lead_user_id"`
	}{participantCount, leadUserID}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("backend returned empty session id")
	}
	return resp.SessionID, nil
}

// GetSession returns the join-time view of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.SessionInfo, error) {
	var info types.SessionInfo
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Upload submits one party's dataset as a multipart form.
func (c *Client) Upload(ctx context.Context, upload types.DatasetUpload) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"group_id": upload.GroupID,
		"user_id":  upload.UserID,
	}
	// Lead-only form fields
	if upload.OrgName != "" {
		fields["org_name"] = upload.OrgName
	}
	if upload.Label != "" {
		fields["label"] = upload.Label
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	part, err := writer.CreateFormFile("file", upload.Filename)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, upload.Data); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/", &buf)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

// SubmitRun submits the lead's training configuration.
func (c *Client) SubmitRun(ctx context.Context, sessionID string, cfg types.RunConfig) error {
	return c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/run", cfg, nil)
}

// GetResult fetches the completed training outcome.
func (c *Client) GetResult(ctx context.Context, sessionID string) (*types.SessionResult, error) {
	var result types.SessionResult
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/result", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadModel streams the trained model. The caller owns closing the reader.
// The filename comes from the Content-Disposition header with a stable fallback.
func (c *Client) DownloadModel(ctx context.Context, sessionID string) (string, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/"+sessionID+"/model/download", nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return "", nil, decodeError(resp)
	}

	filename := "model.bin"
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				filename = name
			}
		}
	}
	return filename, resp.Body, nil
}

// CheckState asks the backend whether the user may view a stage right now.
func (c *Client) CheckState(ctx context.Context, sessionID, stage, userID string) (*types.PageAuthorization, error) {
	req := struct {
		Path   string `json:"path"`
		UserID string `json:"user_id"`
	}{stage, userID}

	var auth types.PageAuthorization
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/check-state", req, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// Predict runs single-row predictions against the trained model.
func (c *Client) Predict(ctx context.Context, sessionID string, rows []map[string]float64) ([]float64, error) {
	req := struct {
		Data []map[string]float64 `json:"data"`
	}{rows}

	var resp struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/predict", req, &resp); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

// PredictBatch uploads a file of rows and returns one prediction per row.
func (c *Client) PredictBatch(ctx context.Context, sessionID, filename string, file io.Reader) ([]float64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions/"+sessionID+"/predict-batch", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch predict request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var out struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Predictions, nil
}

// CommonColumns fetches the columns shared across all uploaded datasets.
func (c *Client) CommonColumns(ctx context.Context, sessionID string) (*types.CommonColumnsResult, error) {
	var result types.CommonColumnsResult
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/common-columns", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
