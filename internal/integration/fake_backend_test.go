package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"cotrain/pkg/types"
)

// fakeBackend simulates the training backend: the HTTP surface, the
// coordination channel, and the progress channel, with just enough session
// state to drive a full workflow.
type fakeBackend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	sessionID     string
	state         string
	participants  int
	joined        int
	statusMap     map[string]bool
	coordConns    []*websocket.Conn
	progressLines []string
	uploadDetail  string // non-empty forces upload rejection with this detail
}

func newFakeBackend(t *testing.T) *fakeBackend {
	backend := &fakeBackend{
		t:         t,
		sessionID: "sess-it",
		state:     types.SessionStateCreated,
		statusMap: make(map[string]bool),
		progressLines: []string{
			"Aligning datasets",
			"✅ Datasets aligned",
			"✅ Epoch milestones reached",
			"✅ MPyC task complete",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/", backend.handleSessions)
	mux.HandleFunc("/upload/", backend.handleUpload)
	mux.HandleFunc("/ws/", backend.handleWS)
	backend.server = httptest.NewServer(mux)
	return backend
}

func (f *fakeBackend) Close()         { f.server.Close() }
func (f *fakeBackend) BaseURL() string { return f.server.URL }
func (f *fakeBackend) WSBaseURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeBackend) setState(state string) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func (f *fakeBackend) handleSessions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")

	switch {
	case path == "" && r.Method == http.MethodPost:
		var req struct {
			ParticipantCount int    `json:"participant_count"`
			LeadUserID       string `json:"lead_user_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.participants = req.ParticipantCount
		f.joined = 1
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"session_id": f.sessionID})

	case strings.HasSuffix(path, "/check-state"):
		var req struct {
			Path   string `json:"path"`
			UserID string `json:"user_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		state := f.state
		f.mu.Unlock()
		allowed := req.Path == types.CanonicalStage(state)
		reason := ""
		if !allowed {
			reason = "session is in state " + state
		}
		json.NewEncoder(w).Encode(types.PageAuthorization{Allowed: allowed, State: state, Reason: reason})

	case strings.HasSuffix(path, "/run"):
		f.setState(types.SessionStateProcessing)
		w.WriteHeader(http.StatusOK)

	case strings.HasSuffix(path, "/result"):
		json.NewEncoder(w).Encode(types.SessionResult{
			Summary:      map[string]any{"accuracy": 0.9},
			Coefficients: []types.Coefficient{{Feature: "age", Value: 0.42}},
			Config:       types.RunConfig{Label: "outcome", Epochs: 5},
		})

	case r.Method == http.MethodGet:
		f.mu.Lock()
		info := types.SessionInfo{JoinedCount: f.joined, ParticipantCount: f.participants}
		if f.joined < f.participants {
			f.joined++
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(info)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	detail := f.uploadDetail
	f.mu.Unlock()
	if detail != "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": detail})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if strings.Contains(r.URL.Path, "/progress/") {
		defer ws.Close()
		f.mu.Lock()
		lines := f.progressLines
		f.mu.Unlock()
		for _, line := range lines {
			ws.WriteMessage(websocket.TextMessage, []byte(line))
		}
		ws.ReadMessage()
		return
	}

	f.mu.Lock()
	f.coordConns = append(f.coordConns, ws)
	f.mu.Unlock()

	// Coordination loop: every client message updates the status map and a
	// fresh snapshot (plus any latched signals) goes to every client.
	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		userID, _ := msg["userId"].(string)
		if userID == "" {
			continue
		}

		frame := map[string]any{}
		f.mu.Lock()
		if status, ok := msg["status"].(bool); ok {
			f.statusMap[userID] = status
			if status {
				f.state = types.SessionStateUploading
			}
		}
		if proceed, ok := msg["proceed"].(bool); ok && proceed {
			frame["proceed"] = true
			f.state = types.SessionStateReady
		}
		if training, ok := msg["training"].(bool); ok && training {
			frame["training"] = true
		}
		snapshot := make(map[string]bool, len(f.statusMap))
		for id, done := range f.statusMap {
			snapshot[id] = done
		}
		frame["statusMap"] = snapshot
		conns := append([]*websocket.Conn(nil), f.coordConns...)
		f.mu.Unlock()

		payload, _ := json.Marshal(frame)
		for _, conn := range conns {
			conn.WriteMessage(websocket.TextMessage, payload)
		}
	}
}
