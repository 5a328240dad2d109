package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"cotrain/internal/config"
	"cotrain/internal/coordination"
	"cotrain/internal/guard"
	"cotrain/internal/progress"
	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Runner drives one party through the linear workflow
// landing → form-upload → log → result.
//
// ARCHITECTURAL DISCOVERY: The runner owns the realtime channels; stage
// callers act only through its methods so the socket handle never leaks
type Runner struct {
	cfg      *config.Config
	backend  interfaces.Backend
	identity interfaces.IdentityStore
	guard    *guard.Guard
	state    interfaces.StateStore

	mu          sync.Mutex
	attached    *types.SessionIdentity
	conn        *coordination.Connection
	coordinator *coordination.Coordinator
	feed        *progress.Feed
	inflight    map[string]bool
}

// NewRunner wires a workflow runner over the shared components.
func NewRunner(cfg *config.Config, backend interfaces.Backend, identityStore interfaces.IdentityStore,
	stageGuard *guard.Guard, state interfaces.StateStore) *Runner {
	return &Runner{
		cfg:      cfg,
		backend:  backend,
		identity: identityStore,
		guard:    stageGuard,
		state:    state,
		inflight: make(map[string]bool),
	}
}

// Attach binds the runner to a session identity and opens the coordination
// channel. Any previously attached session is torn down first.
func (r *Runner) Attach(identity *types.SessionIdentity) error {
	if identity == nil {
		return ErrNoSession
	}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("cannot attach invalid identity: %w", err)
	}

	r.Detach()

	coordinator := coordination.NewCoordinator(identity.ParticipantCount)
	conn := coordination.NewConnection(r.cfg.Realtime, r.cfg.Backend.WSBaseURL,
		identity, coordination.NewDispatcher(coordinator))
	conn.Start()

	r.mu.Lock()
	r.attached = identity.Clone()
	r.coordinator = coordinator
	r.conn = conn
	r.mu.Unlock()

	log.Printf("Workflow: attached to session %s as %s", identity.SessionID, identity.UserType)
	return nil
}

// Detach closes the realtime channels and forgets the session. Safe without
// an attached session.
func (r *Runner) Detach() {
	r.mu.Lock()
	conn, feed := r.conn, r.feed
	r.attached = nil
	r.conn = nil
	r.coordinator = nil
	r.feed = nil
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if feed != nil {
		feed.Close()
	}
}

func (r *Runner) session() (*types.SessionIdentity, *coordination.Connection, *coordination.Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attached == nil {
		return nil, nil, nil, ErrNoSession
	}
	return r.attached, r.conn, r.coordinator, nil
}

// begin marks an action in flight, rejecting duplicates while a prior
// identical request is pending.
func (r *Runner) begin(action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[action] {
		return fmt.Errorf("%w: %s", ErrSubmissionInFlight, action)
	}
	r.inflight[action] = true
	return nil
}

func (r *Runner) finish(action string) {
	r.mu.Lock()
	delete(r.inflight, action)
	r.mu.Unlock()
}

// EnterStage authorizes entry into a stage. On a Render decision for the log
// stage the progress feed is started as a side effect.
func (r *Runner) EnterStage(ctx context.Context, stage string) (guard.Decision, error) {
	decision, err := r.guard.Check(ctx, stage)
	if err != nil {
		return guard.Decision{}, err
	}

	if decision.Render() && stage == types.StageLog {
		if err := r.startFeed(); err != nil {
			// Best-effort channel: the durable log still renders.
			log.Printf("Workflow: progress feed unavailable: %v", err)
		}
	}
	return decision, nil
}

func (r *Runner) startFeed() error {
	identity, _, _, err := r.session()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.feed != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	feed := progress.NewFeed(r.cfg.Realtime, r.cfg.Backend.WSBaseURL,
		identity.SessionID, identity.UserID, r.cfg.State.Scope, r.state, nil)
	if err := feed.Start(); err != nil {
		return err
	}

	r.mu.Lock()
	r.feed = feed
	r.mu.Unlock()
	return nil
}

// UploadDataset submits this party's dataset. Only a successful upload
// reports status:true on the coordination channel; a failure clears the
// in-flight guard so the user may retry, and sends nothing.
func (r *Runner) UploadDataset(ctx context.Context, filename string, data io.Reader) error {
	identity, conn, _, err := r.session()
	if err != nil {
		return err
	}
	if err := r.begin("upload"); err != nil {
		return err
	}
	defer r.finish("upload")

	upload := types.DatasetUpload{
		GroupID:  identity.SessionID,
		UserID:   identity.UserID,
		Filename: filename,
		Data:     data,
	}
	if identity.IsLead() {
		upload.OrgName = identity.OrgName
		upload.Label = identity.Label
	}

	if err := r.backend.Upload(ctx, upload); err != nil {
		return err
	}

	if conn != nil {
		if err := conn.SendStatus(true); err != nil {
			log.Printf("Workflow: status report failed: %v", err)
		}
	}
	return nil
}

// CommonColumns fetches the columns shared across every uploaded dataset.
// Lead-only: feeds the identifier-join configuration.
func (r *Runner) CommonColumns(ctx context.Context) (*types.CommonColumnsResult, error) {
	identity, _, _, err := r.session()
	if err != nil {
		return nil, err
	}
	if !identity.IsLead() {
		return nil, ErrNotLead
	}
	return r.backend.CommonColumns(ctx, identity.SessionID)
}

// SignalProceed moves all parties to the log stage. Lead-only, and only once
// every participant has reported ready.
func (r *Runner) SignalProceed(ctx context.Context) error {
	identity, conn, coordinator, err := r.session()
	if err != nil {
		return err
	}
	if !identity.IsLead() {
		return ErrNotLead
	}
	if !coordinator.Ready() {
		return ErrNotReady
	}
	return conn.SendProceed()
}

// StartTraining submits the run configuration and signals training start.
// Lead-only. The training signal is sent only after the backend accepts the
// configuration.
func (r *Runner) StartTraining(ctx context.Context, runCfg types.RunConfig) error {
	identity, conn, _, err := r.session()
	if err != nil {
		return err
	}
	if !identity.IsLead() {
		return ErrNotLead
	}
	runCfg.UserID = identity.UserID
	if err := runCfg.Validate(); err != nil {
		return err
	}

	if err := r.begin("run"); err != nil {
		return err
	}
	defer r.finish("run")

	if err := r.backend.SubmitRun(ctx, identity.SessionID, runCfg); err != nil {
		return err
	}
	return conn.SendTraining()
}

// Readiness returns the current converged readiness view.
func (r *Runner) Readiness() (types.ReadinessState, error) {
	_, _, coordinator, err := r.session()
	if err != nil {
		return types.ReadinessState{}, err
	}
	return coordinator.Snapshot(), nil
}

// WaitProceed returns a channel closed when the proceed signal arrives.
func (r *Runner) WaitProceed() (<-chan struct{}, error) {
	_, _, coordinator, err := r.session()
	if err != nil {
		return nil, err
	}
	return coordinator.WaitProceed(), nil
}

// WaitTraining returns a channel closed when training starts.
func (r *Runner) WaitTraining() (<-chan struct{}, error) {
	_, _, coordinator, err := r.session()
	if err != nil {
		return nil, err
	}
	return coordinator.WaitTraining(), nil
}

// Feed returns the progress feed, or nil before the log stage starts it.
func (r *Runner) Feed() *progress.Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feed
}

// ChannelState reports the coordination connection state.
func (r *Runner) ChannelState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return coordination.StateClosedClean
	}
	return r.conn.State()
}

// Result fetches the completed training outcome.
func (r *Runner) Result(ctx context.Context) (*types.SessionResult, error) {
	identity, _, _, err := r.session()
	if err != nil {
		return nil, err
	}
	return r.backend.GetResult(ctx, identity.SessionID)
}
