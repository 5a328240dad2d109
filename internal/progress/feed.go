package progress

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cotrain/internal/config"
	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Feed consumes the per-user training progress channel. Unlike the
// coordination channel it never reconnects: progress is a best-effort live
// view, the durable log in the state store is the source of truth on resume.
type Feed struct {
	cfg       *config.RealtimeConfig
	url       string
	scope     string
	sessionID string
	state     interfaces.StateStore

	onComplete   func()
	completeOnce sync.Once

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu         sync.RWMutex
	conn       *websocket.Conn
	events     []types.ProgressEvent
	milestones int
	completed  bool
}

// NewFeed creates a progress feed for one user in one session. onComplete
// fires exactly once on full MPC completion; nil is allowed.
func NewFeed(cfg *config.RealtimeConfig, wsBaseURL, sessionID, userID, scope string, state interfaces.StateStore, onComplete func()) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		cfg:        cfg,
		url:        wsBaseURL + "/ws/" + sessionID + "/progress/" + userID,
		scope:      scope,
		sessionID:  sessionID,
		state:      state,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start restores the persisted event log, dials the channel, and begins
// consuming frames. A dial failure is returned; there are no retries.
func (f *Feed) Start() error {
	history, err := f.state.ProgressHistory(f.ctx, f.scope, f.sessionID)
	if err != nil {
		return fmt.Errorf("failed to restore progress history: %w", err)
	}
	for _, event := range history {
		f.absorb(event, false)
	}

	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(f.ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial progress channel: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.wg.Add(1)
	go f.readLoop(conn)
	return nil
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	defer f.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				log.Printf("Progress: channel ended: %v", err)
			}
			return
		}

		// The backend sends raw text lines; the timestamp is ours.
		event := types.ProgressEvent{
			Message:   string(data),
			Timestamp: time.Now(),
		}
		f.absorb(event, true)
	}
}

// absorb appends one event to the in-memory log, updates the milestone count,
// optionally persists it, and fires the completion hook on the terminal event.
func (f *Feed) absorb(event types.ProgressEvent, persist bool) {
	f.mu.Lock()
	f.events = append(f.events, event)
	if event.Success() {
		f.milestones++
	}
	terminal := event.Terminal()
	if terminal {
		f.completed = true
	}
	f.mu.Unlock()

	if persist {
		if err := f.state.AppendProgressEvent(f.ctx, f.scope, f.sessionID, event); err != nil {
			log.Printf("Progress: failed to persist event: %v", err)
		}
	}

	if terminal && f.onComplete != nil {
		// FUNCTIONAL DISCOVERY: The backend may replay the terminal line
		// on the wire; the hook must fire exactly once regardless
		f.completeOnce.Do(f.onComplete)
	}
}

// Events returns an independent copy of the event log in arrival order.
func (f *Feed) Events() []types.ProgressEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	dup := make([]types.ProgressEvent, len(f.events))
	copy(dup, f.events)
	return dup
}

// Milestones returns the ordinal count of success-marker events so far.
func (f *Feed) Milestones() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.milestones
}

// Completed reports whether the terminal event has arrived.
func (f *Feed) Completed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.completed
}

// Close tears the channel down. Safe to call more than once.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		f.cancel()

		f.mu.Lock()
		conn := f.conn
		f.conn = nil
		f.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		f.wg.Wait()
	})
	return nil
}
