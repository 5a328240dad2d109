package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Decision kinds. Only KindRender lets the caller show the requested stage;
// every other kind carries exactly one action: navigate to Target.
const (
	KindRender       = "render"
	KindResultsReady = "results-ready"
	KindNotYet       = "not-available-yet"
	KindCannotGoBack = "cannot-go-back"
	KindFailed       = "session-failed"
	KindNoIdentity   = "no-identity"
)

// Decision is the guard's verdict for one stage entry. Decisions are plain
// values; the guard never navigates or renders anything itself.
type Decision struct {
	Kind   string
	Target string
	Reason string
}

// Render reports whether the caller may show the requested stage.
func (d Decision) Render() bool {
	return d.Kind == KindRender
}

// Guard authorizes entry into workflow stages against the backend's
// authoritative session state.
type Guard struct {
	identity interfaces.IdentityStore
	backend  interfaces.Backend

	// Identity resolution may still be settling right after navigation;
	// the guard polls briefly before giving up.
	settleAttempts int
	settleInterval time.Duration
}

// NewGuard creates a stage guard over the given identity store and backend.
func NewGuard(identity interfaces.IdentityStore, backend interfaces.Backend) *Guard {
	return &Guard{
		identity:       identity,
		backend:        backend,
		settleAttempts: 5,
		settleInterval: 100 * time.Millisecond,
	}
}

// Check authorizes entry into the requested stage. It never returns an error
// for authorization mismatches - those become redirect decisions. Callers
// must not show any gated content before a Render decision comes back.
func (g *Guard) Check(ctx context.Context, requestedStage string) (Decision, error) {
	if types.StageOrder(requestedStage) <= types.StageOrder(types.StageLanding) {
		return Decision{}, fmt.Errorf("%w: stage %q is not guarded", ErrCheckFailed, requestedStage)
	}

	identity, err := g.resolveIdentity(ctx)
	if err != nil {
		// Unresolvable identity is the one case with no dialog: an
		// immediate landing redirect.
		log.Printf("Guard: identity unavailable for %s: %v", requestedStage, err)
		return Decision{
			Kind:   KindNoIdentity,
			Target: types.StageLanding,
			Reason: "No active session. Please create or join a session first.",
		}, nil
	}

	auth, err := g.backend.CheckState(ctx, identity.SessionID, requestedStage, identity.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}

	return decide(requestedStage, auth), nil
}

// resolveIdentity polls the store while navigation state settles into it.
func (g *Guard) resolveIdentity(ctx context.Context) (*types.SessionIdentity, error) {
	var lastErr error
	for attempt := 0; attempt < g.settleAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.settleInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		identity, err := g.identity.Resolve(ctx, nil)
		if err == nil {
			return identity, nil
		}
		lastErr = err
		if !errors.Is(err, interfaces.ErrNoIdentity) {
			return nil, err
		}
	}
	return nil, lastErr
}

// decide applies the authorization decision table.
func decide(requestedStage string, auth *types.PageAuthorization) Decision {
	// Completion takes priority over everything, even a nominally allowed
	// stage: the user is told the results are ready.
	if auth.State == types.SessionStateCompleted && requestedStage != types.StageResult {
		return Decision{
			Kind:   KindResultsReady,
			Target: types.StageResult,
			Reason: "Training is complete. Your results are ready.",
		}
	}

	if auth.Allowed {
		return Decision{Kind: KindRender, Target: requestedStage}
	}

	canonical := types.CanonicalStage(auth.State)
	if canonical == types.StageLanding {
		return Decision{
			Kind:   KindFailed,
			Target: types.StageLanding,
			Reason: auth.Reason,
		}
	}

	// Forward-skip and backward-navigation differ only in wording; the
	// target is the canonical stage either way.
	kind := KindNotYet
	if types.StageOrder(requestedStage) < types.StageOrder(canonical) {
		kind = KindCannotGoBack
	}
	return Decision{
		Kind:   kind,
		Target: canonical,
		Reason: auth.Reason,
	}
}
