package app

import (
	"context"
	"fmt"
	"log"

	"cotrain/internal/api"
	"cotrain/internal/config"
	"cotrain/internal/guard"
	"cotrain/internal/identity"
	"cotrain/internal/session"
	"cotrain/internal/state"
	"cotrain/internal/workflow"
	"cotrain/pkg/statedb"
	"cotrain/pkg/types"
)

// Application coordinates all client components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config       *config.Config
	stateManager *state.Manager
	identities   *identity.Store
	backend      *api.Client
	stageGuard   *guard.Guard
	sessions     *session.Service
	runner       *workflow.Runner
}

// NewApplication creates a client instance with all components initialized.
// Component initialization follows strict dependency order:
// State → Identity → Backend → Guard → Session → Workflow
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize the durable state manager (foundation layer)
	dbConfig := statedb.DefaultConfig()
	dbConfig.DatabasePath = cfg.State.DatabasePath
	stateManager, err := state.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}

	// STEP 2: Identity store scoped to this profile
	identities := identity.NewStore(stateManager, cfg.State.Scope)

	// STEP 3: HTTP backend client
	backend := api.NewClient(cfg.Backend)

	// STEP 4: Stage guard over identity + backend
	stageGuard := guard.NewGuard(identities, backend)

	// STEP 5: Session lifecycle service
	sessions := session.NewService(backend, identities)

	// STEP 6: Workflow runner owning the realtime channels
	runner := workflow.NewRunner(cfg, backend, identities, stageGuard, stateManager)

	return &Application{
		config:       cfg,
		stateManager: stateManager,
		identities:   identities,
		backend:      backend,
		stageGuard:   stageGuard,
		sessions:     sessions,
		runner:       runner,
	}, nil
}

// Start restores any persisted session and reattaches the workflow to it.
// A profile with no stored identity starts at the landing stage.
func (app *Application) Start(ctx context.Context) error {
	restored, err := app.identities.Resolve(ctx, nil)
	if err != nil {
		log.Printf("Starting at landing stage (profile %s)", app.config.State.Scope)
		return nil
	}

	if err := app.runner.Attach(restored); err != nil {
		return fmt.Errorf("failed to reattach restored session: %w", err)
	}
	log.Printf("Resumed session %s as %s", restored.SessionID, restored.UserType)
	return nil
}

// Stop gracefully shuts the client down in reverse dependency order:
// Workflow channels → State database.
func (app *Application) Stop(ctx context.Context) error {
	app.runner.Detach()

	if err := app.stateManager.Close(); err != nil {
		log.Printf("State manager shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
	return nil
}

// Sessions exposes the session lifecycle service.
func (app *Application) Sessions() *session.Service {
	return app.sessions
}

// Runner exposes the workflow runner.
func (app *Application) Runner() *workflow.Runner {
	return app.runner
}

// Backend exposes the HTTP backend client.
func (app *Application) Backend() *api.Client {
	return app.backend
}

// Identity returns the currently resolved identity, or nil at landing.
func (app *Application) Identity() *types.SessionIdentity {
	return app.identities.Current()
}
