package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cotrain/pkg/interfaces"
	"cotrain/pkg/statedb"
	"cotrain/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := statedb.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "state.db")

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func testIdentity() *types.SessionIdentity {
	return &types.SessionIdentity{
		UserType:         types.UserTypeLead,
		UserID:           "lead-1",
		SessionID:        "session-1",
		ParticipantCount: 3,
		OrgName:          "Acme Health",
		Label:            "outcome",
	}
}

func TestManager_IdentityRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if err := manager.SaveIdentity(ctx, "default", testIdentity()); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}

	loaded, err := manager.LoadIdentity(ctx, "default")
	if err != nil {
		t.Fatalf("LoadIdentity failed: %v", err)
	}

	want := testIdentity()
	if *loaded != *want {
		t.Errorf("round-trip mismatch: got %+v, want %+v", loaded, want)
	}
}

func TestManager_IdentityRoundTripSurvivesReopen(t *testing.T) {
	cfg := statedb.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := manager.SaveIdentity(ctx, "default", testIdentity()); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen the same file - simulates a page reload restoring the session
	reopened, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.LoadIdentity(ctx, "default")
	if err != nil {
		t.Fatalf("LoadIdentity after reopen failed: %v", err)
	}
	if loaded.SessionID != "session-1" || loaded.ParticipantCount != 3 {
		t.Errorf("identity lost across reopen: %+v", loaded)
	}
}

func TestManager_LoadIdentityMissing(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.LoadIdentity(context.Background(), "default")
	if err != interfaces.ErrIdentityNotFound {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestManager_SaveIdentityReplaces(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	first := testIdentity()
	if err := manager.SaveIdentity(ctx, "default", first); err != nil {
		t.Fatalf("first SaveIdentity failed: %v", err)
	}

	second := testIdentity()
	second.SessionID = "session-2"
	if err := manager.SaveIdentity(ctx, "default", second); err != nil {
		t.Fatalf("second SaveIdentity failed: %v", err)
	}

	loaded, err := manager.LoadIdentity(ctx, "default")
	if err != nil {
		t.Fatalf("LoadIdentity failed: %v", err)
	}
	if loaded.SessionID != "session-2" {
		t.Errorf("expected replacement identity, got session %s", loaded.SessionID)
	}
}

func TestManager_ClearIdentity(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if err := manager.SaveIdentity(ctx, "default", testIdentity()); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}
	if err := manager.ClearIdentity(ctx, "default"); err != nil {
		t.Fatalf("ClearIdentity failed: %v", err)
	}

	if _, err := manager.LoadIdentity(ctx, "default"); err != interfaces.ErrIdentityNotFound {
		t.Errorf("expected ErrIdentityNotFound after clear, got %v", err)
	}

	// Clearing an empty scope is idempotent
	if err := manager.ClearIdentity(ctx, "default"); err != nil {
		t.Errorf("clearing an empty scope should not fail: %v", err)
	}
}

func TestManager_ScopesAreIndependent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if err := manager.SaveIdentity(ctx, "tab-a", testIdentity()); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}

	if _, err := manager.LoadIdentity(ctx, "tab-b"); err != interfaces.ErrIdentityNotFound {
		t.Errorf("scope tab-b should hold no identity, got %v", err)
	}
}

func TestManager_ProfileUserIDStable(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	first, err := manager.ProfileUserID(ctx, "default")
	if err != nil {
		t.Fatalf("ProfileUserID failed: %v", err)
	}
	if first == "" {
		t.Fatal("generated user ID should not be empty")
	}
	if !types.IsValidUserID(first) {
		t.Errorf("generated user ID %q should pass validation", first)
	}

	second, err := manager.ProfileUserID(ctx, "default")
	if err != nil {
		t.Fatalf("second ProfileUserID failed: %v", err)
	}
	if first != second {
		t.Errorf("user ID must be stable: %s != %s", first, second)
	}

	other, err := manager.ProfileUserID(ctx, "other-profile")
	if err != nil {
		t.Fatalf("ProfileUserID for other scope failed: %v", err)
	}
	if other == first {
		t.Error("distinct scopes must hold distinct user IDs")
	}
}

func TestManager_ProgressHistoryOrder(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	messages := []string{"Secure channels established", "Normalization finished ✅", "MPyC task complete ✅"}
	for _, msg := range messages {
		event := types.ProgressEvent{Message: msg, Timestamp: time.Now()}
		if err := manager.AppendProgressEvent(ctx, "default", "session-1", event); err != nil {
			t.Fatalf("AppendProgressEvent failed: %v", err)
		}
	}

	history, err := manager.ProgressHistory(ctx, "default", "session-1")
	if err != nil {
		t.Fatalf("ProgressHistory failed: %v", err)
	}
	if len(history) != len(messages) {
		t.Fatalf("expected %d events, got %d", len(messages), len(history))
	}
	for i, event := range history {
		if event.Message != messages[i] {
			t.Errorf("event %d out of order: got %q, want %q", i, event.Message, messages[i])
		}
	}

	// Events from other sessions stay invisible
	other, err := manager.ProgressHistory(ctx, "default", "session-2")
	if err != nil {
		t.Fatalf("ProgressHistory for other session failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no events for other session, got %d", len(other))
	}
}

func TestManager_ClosedManagerRejectsWrites(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := manager.SaveIdentity(context.Background(), "default", testIdentity())
	if err == nil {
		t.Error("writes after Close should fail")
	}

	// Double close is safe
	if err := manager.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy manager should pass health check: %v", err)
	}

	_ = manager.Close()
	if err := manager.HealthCheck(context.Background()); err == nil {
		t.Error("closed manager should fail health check")
	}
}
