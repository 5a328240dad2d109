package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cotrain/internal/app"
	"cotrain/internal/config"
	"cotrain/internal/guard"
	"cotrain/pkg/types"
)

func newParty(t *testing.T, backend *fakeBackend, scope string) *app.Application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = backend.BaseURL()
	cfg.Backend.WSBaseURL = backend.WSBaseURL()
	cfg.Realtime.SettleDelay = 5 * time.Millisecond
	cfg.Realtime.BackoffBase = 10 * time.Millisecond
	cfg.State.DatabasePath = filepath.Join(t.TempDir(), scope+".db")
	cfg.State.Scope = scope

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("failed to initialize %s: %v", scope, err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("failed to start %s: %v", scope, err)
	}
	t.Cleanup(func() { application.Stop(context.Background()) })
	return application
}

func waitFor(t *testing.T, timeout time.Duration, message string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestTwoPartyWorkflow(t *testing.T) {
	backend := newFakeBackend(t)
	defer backend.Close()
	ctx := context.Background()

	// Lead creates the session; participant joins it.
	lead := newParty(t, backend, "lead")
	leadIdentity, err := lead.Sessions().Create(ctx, 2, "acme", "outcome")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := lead.Runner().Attach(leadIdentity); err != nil {
		t.Fatalf("lead attach failed: %v", err)
	}

	participant := newParty(t, backend, "participant")
	participantIdentity, err := participant.Sessions().Join(ctx, leadIdentity.SessionID)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if participantIdentity.ParticipantCount != 2 {
		t.Fatalf("participant count not adopted: %+v", participantIdentity)
	}
	if err := participant.Runner().Attach(participantIdentity); err != nil {
		t.Fatalf("participant attach failed: %v", err)
	}

	waitFor(t, 2*time.Second, "coordination channels never opened", func() bool {
		return lead.Runner().ChannelState() == "open" && participant.Runner().ChannelState() == "open"
	})

	// Both parties pass the upload gate and submit their datasets.
	decision, err := lead.Runner().EnterStage(ctx, types.StageFormUpload)
	if err != nil || !decision.Render() {
		t.Fatalf("lead upload gate: decision=%+v err=%v", decision, err)
	}
	if err := lead.Runner().UploadDataset(ctx, "lead.csv", strings.NewReader("age,outcome\n30,1\n")); err != nil {
		t.Fatalf("lead upload failed: %v", err)
	}
	if err := participant.Runner().UploadDataset(ctx, "part.csv", strings.NewReader("age,bmi\n30,22\n")); err != nil {
		t.Fatalf("participant upload failed: %v", err)
	}

	// Both coordinators converge on the full status map.
	waitFor(t, 2*time.Second, "readiness never converged", func() bool {
		leadView, err := lead.Runner().Readiness()
		if err != nil {
			return false
		}
		participantView, err := participant.Runner().Readiness()
		if err != nil {
			return false
		}
		return leadView.Ready() && participantView.Ready()
	})

	// Lead signals proceed; the participant observes it.
	if err := lead.Runner().SignalProceed(ctx); err != nil {
		t.Fatalf("proceed failed: %v", err)
	}
	proceedCh, err := participant.Runner().WaitProceed()
	if err != nil {
		t.Fatalf("participant has no coordinator: %v", err)
	}
	select {
	case <-proceedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("participant never saw the proceed signal")
	}

	// Lead starts training; the participant observes the training signal.
	runCfg := types.RunConfig{
		Normalizer:       "minmax",
		Regression:       "logistic",
		LearningRate:     0.1,
		Epochs:           5,
		Label:            "outcome",
		IdentifierConfig: types.IdentifierConfig{Mode: types.IdentifierModeIndex},
	}
	if err := lead.Runner().StartTraining(ctx, runCfg); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	trainingCh, err := participant.Runner().WaitTraining()
	if err != nil {
		t.Fatalf("participant has no coordinator: %v", err)
	}
	select {
	case <-trainingCh:
	case <-time.After(2 * time.Second):
		t.Fatal("participant never saw the training signal")
	}

	// The log stage renders and the progress feed runs to completion.
	decision, err = participant.Runner().EnterStage(ctx, types.StageLog)
	if err != nil || !decision.Render() {
		t.Fatalf("log gate: decision=%+v err=%v", decision, err)
	}
	feed := participant.Runner().Feed()
	if feed == nil {
		t.Fatal("log stage did not start the progress feed")
	}
	waitFor(t, 2*time.Second, "progress feed never completed", func() bool {
		return feed.Completed()
	})
	if feed.Milestones() != 3 {
		t.Errorf("expected 3 milestones, got %d", feed.Milestones())
	}

	// Entering the result stage before completion redirects back to the log.
	decision, err = participant.Runner().EnterStage(ctx, types.StageResult)
	if err != nil {
		t.Fatalf("result gate errored: %v", err)
	}
	if decision.Render() || decision.Target != types.StageLog {
		t.Errorf("result must be gated while processing, decision=%+v", decision)
	}

	// Backend completes; result becomes the one allowed stage.
	backend.setState(types.SessionStateCompleted)
	decision, err = participant.Runner().EnterStage(ctx, types.StageResult)
	if err != nil || !decision.Render() {
		t.Fatalf("result gate after completion: decision=%+v err=%v", decision, err)
	}

	result, err := participant.Runner().Result(ctx)
	if err != nil {
		t.Fatalf("result fetch failed: %v", err)
	}
	if len(result.Coefficients) != 1 || result.Coefficients[0].Feature != "age" {
		t.Errorf("unexpected result: %+v", result)
	}

	// A stale log entry now redirects to the results with the good-news framing.
	decision, err = lead.Runner().EnterStage(ctx, types.StageLog)
	if err != nil {
		t.Fatalf("log gate after completion errored: %v", err)
	}
	if decision.Kind != guard.KindResultsReady || decision.Target != types.StageResult {
		t.Errorf("completed sessions must redirect to results, decision=%+v", decision)
	}
}

func TestUploadRejectionKeepsPartyRetryable(t *testing.T) {
	backend := newFakeBackend(t)
	defer backend.Close()
	ctx := context.Background()

	lead := newParty(t, backend, "lead")
	identity, err := lead.Sessions().Create(ctx, 2, "acme", "outcome")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := lead.Runner().Attach(identity); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitFor(t, 2*time.Second, "channel never opened", func() bool {
		return lead.Runner().ChannelState() == "open"
	})

	backend.mu.Lock()
	backend.uploadDetail = "file too large"
	backend.mu.Unlock()

	err = lead.Runner().UploadDataset(ctx, "big.csv", strings.NewReader("x\n1\n"))
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Fatalf("backend detail must surface verbatim, got %v", err)
	}

	// No status:true reached the backend.
	time.Sleep(50 * time.Millisecond)
	backend.mu.Lock()
	reported := backend.statusMap[identity.UserID]
	backend.uploadDetail = ""
	backend.mu.Unlock()
	if reported {
		t.Error("failed upload must not report readiness")
	}

	// Retry now succeeds and readiness is reported.
	if err := lead.Runner().UploadDataset(ctx, "big.csv", strings.NewReader("x\n1\n")); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	waitFor(t, 2*time.Second, "readiness never reported after retry", func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.statusMap[identity.UserID]
	})
}

func TestSessionRestoreAcrossRestart(t *testing.T) {
	backend := newFakeBackend(t)
	defer backend.Close()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "restore.db")
	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = backend.BaseURL()
	cfg.Backend.WSBaseURL = backend.WSBaseURL()
	cfg.Realtime.SettleDelay = 5 * time.Millisecond
	cfg.State.DatabasePath = dbPath
	cfg.State.Scope = "lead"

	first, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	created, err := first.Sessions().Create(ctx, 2, "acme", "outcome")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	first.Stop(ctx)

	// A fresh process over the same profile restores the identity.
	second, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer second.Stop(ctx)

	restored := second.Identity()
	if restored == nil {
		t.Fatal("identity not restored after restart")
	}
	if restored.SessionID != created.SessionID || restored.UserID != created.UserID {
		t.Errorf("restored identity differs: %+v vs %+v", restored, created)
	}
	if !restored.IsLead() || restored.OrgName != "acme" {
		t.Errorf("lead fields lost on restore: %+v", restored)
	}
}
