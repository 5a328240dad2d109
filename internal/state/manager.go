package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"cotrain/pkg/interfaces"
	"cotrain/pkg/statedb"
	"cotrain/pkg/types"
)

// Manager implements the StateStore interface over a local SQLite file.
type Manager struct {
	db           *sql.DB
	config       *statedb.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a queued database write
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the state database, applies pending migrations and starts
// the write loop.
func NewManager(config *statedb.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := statedb.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Migrations applied at open so a fresh profile
	// directory is usable without a separate setup step
	if err := statedb.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply state migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer prevents blocking during progress bursts
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
	// contention between identity adoption and progress log appends
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after a short delay -
			// transient lock contention clears quickly on a local file
			err := op.operation(m.db)
			if err != nil {
				log.Printf("State write failed, retrying: %v", err)
				time.Sleep(500 * time.Millisecond)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("State write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("state manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("state write timeout")
	case <-m.shutdown:
		return fmt.Errorf("state manager is shutting down")
	}
}

// SaveIdentity persists the identity for a scope, replacing any prior value.
// FUNCTIONAL DISCOVERY: Single-key-per-scope semantics via INSERT OR REPLACE -
// an adopted identity always supersedes what a previous session stored
func (m *Manager) SaveIdentity(ctx context.Context, scope string, identity *types.SessionIdentity) error {
	payload, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to serialize identity: %w", err)
	}

	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT OR REPLACE INTO identities (scope, payload, updated_at)
			VALUES (?, ?, ?)
		`, scope, string(payload), time.Now().UTC())
		return err
	})
}

// LoadIdentity returns the persisted identity for a scope.
func (m *Manager) LoadIdentity(ctx context.Context, scope string) (*types.SessionIdentity, error) {
	var payload string
	err := m.db.QueryRowContext(ctx,
		"SELECT payload FROM identities WHERE scope = ?", scope,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	var identity types.SessionIdentity
	if err := json.Unmarshal([]byte(payload), &identity); err != nil {
		// TECHNICAL DISCOVERY: A corrupt row is treated as absent rather than
		// fatal - the workflow falls back to the landing stage
		log.Printf("Discarding corrupt identity payload for scope %s: %v", scope, err)
		return nil, interfaces.ErrIdentityNotFound
	}

	return &identity, nil
}

// ClearIdentity removes the persisted identity for a scope.
func (m *Manager) ClearIdentity(ctx context.Context, scope string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM identities WHERE scope = ?", scope)
		return err
	})
}

// ProfileUserID returns the stable user ID for a scope, generating one on
// first use.
func (m *Manager) ProfileUserID(ctx context.Context, scope string) (string, error) {
	var userID string
	err := m.db.QueryRowContext(ctx,
		"SELECT user_id FROM profiles WHERE scope = ?", scope,
	).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}

	// First use of this profile scope
	userID = uuid.New().String()
	err = m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO profiles (scope, user_id) VALUES (?, ?)
		`, scope, userID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create profile: %w", err)
	}

	log.Printf("Generated profile user ID: scope=%s user=%s", scope, userID)
	return userID, nil
}

// AppendProgressEvent stores one progress log line.
func (m *Manager) AppendProgressEvent(ctx context.Context, scope, sessionID string, event types.ProgressEvent) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO progress_events (scope, session_id, message, timestamp)
			VALUES (?, ?, ?, ?)
		`, scope, sessionID, event.Message, event.Timestamp.UTC())
		return err
	})
}

// ProgressHistory returns all stored progress events for a session in
// arrival order.
func (m *Manager) ProgressHistory(ctx context.Context, scope, sessionID string) ([]types.ProgressEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT message, timestamp FROM progress_events
		WHERE scope = ? AND session_id = ?
		ORDER BY id
	`, scope, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []types.ProgressEvent
	for rows.Next() {
		var event types.ProgressEvent
		if err := rows.Scan(&event.Message, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan progress event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// HealthCheck verifies the store is reachable and writable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("state manager is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}

// Close stops the write loop and releases the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}

// Interface compliance check
var _ interfaces.StateStore = (*Manager)(nil)
