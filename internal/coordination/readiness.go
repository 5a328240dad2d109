package coordination

import (
	"sync"

	"cotrain/pkg/types"
)

// Coordinator converges the asynchronous multi-party readiness state.
//
// FUNCTIONAL DISCOVERY: Snapshots replace the status map wholesale in arrival
// order - last write wins, no merging, no reordering. Proceed and training are
// one-way within a session lifetime so a stale false can never regress them
type Coordinator struct {
	mu    sync.RWMutex
	state types.ReadinessState

	proceedCh    chan struct{}
	trainingCh   chan struct{}
	proceedOnce  sync.Once
	trainingOnce sync.Once
}

// NewCoordinator creates a coordinator for a session of the given size.
func NewCoordinator(participantCount int) *Coordinator {
	return &Coordinator{
		state: types.ReadinessState{
			StatusMap:        make(map[string]bool),
			ParticipantCount: participantCount,
		},
		proceedCh:  make(chan struct{}),
		trainingCh: make(chan struct{}),
	}
}

// ApplySnapshot replaces the readiness map with the backend's latest view.
func (c *Coordinator) ApplySnapshot(statusMap map[string]bool) {
	replacement := make(map[string]bool, len(statusMap))
	for userID, done := range statusMap {
		replacement[userID] = done
	}

	c.mu.Lock()
	c.state.StatusMap = replacement
	c.mu.Unlock()
}

// ApplyProceed latches the proceed signal. A false value is ignored.
func (c *Coordinator) ApplyProceed(proceed bool) {
	if !proceed {
		return
	}
	c.mu.Lock()
	c.state.ProceedSignaled = true
	c.mu.Unlock()
	c.proceedOnce.Do(func() { close(c.proceedCh) })
}

// ApplyTraining latches the training-started signal. A false value is ignored.
func (c *Coordinator) ApplyTraining(training bool) {
	if !training {
		return
	}
	c.mu.Lock()
	c.state.TrainingStarted = true
	c.mu.Unlock()
	c.trainingOnce.Do(func() { close(c.trainingCh) })
}

// Snapshot returns an independent copy of the converged state.
func (c *Coordinator) Snapshot() types.ReadinessState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dup := c.state
	dup.StatusMap = make(map[string]bool, len(c.state.StatusMap))
	for userID, done := range c.state.StatusMap {
		dup.StatusMap[userID] = done
	}
	return dup
}

// Ready reports whether every participant has completed the current stage.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Ready()
}

// WaitProceed returns a channel closed once the proceed signal arrives.
func (c *Coordinator) WaitProceed() <-chan struct{} {
	return c.proceedCh
}

// WaitTraining returns a channel closed once training starts.
func (c *Coordinator) WaitTraining() <-chan struct{} {
	return c.trainingCh
}
