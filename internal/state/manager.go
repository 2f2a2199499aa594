// Package state tracks per-run phase bookkeeping with periodic
// checkpoint snapshots persisted to disk. Recovery is best-effort:
// restoring a checkpoint replaces the in-memory phase map, it does not
// replay side effects of already-executed phases.
package state

import (
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// DefaultHistoryCap bounds the in-memory checkpoint history.
const DefaultHistoryCap = 10

// Metadata identifies the run a checkpoint belongs to.
type Metadata struct {
	WorkflowID string    `json:"workflow_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Checkpoint is an immutable snapshot of all phase states at one
// point in time.
type Checkpoint struct {
	Timestamp time.Time                       `json:"timestamp"`
	Phases    map[core.Phase]*core.PhaseState `json:"phases"`
	Metadata  Metadata                        `json:"metadata"`
}

// Summary aggregates phase counts for reporting.
type Summary struct {
	WorkflowID string        `json:"workflow_id"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Running    int           `json:"running"`
	Pending    int           `json:"pending"`
	Cancelled  int           `json:"cancelled"`
	Paused     int           `json:"paused"`
	Duration   time.Duration `json:"duration"`
}

// Manager owns the phase map for a single workflow run. All mutation
// happens on the orchestrator's sequential driver, so methods take a
// short lock only to stay safe for concurrent status readers.
type Manager struct {
	workflowID string
	log        *logging.Logger
	historyCap int

	mu        sync.Mutex
	phases    map[core.Phase]*core.PhaseState
	history   []Checkpoint
	createdAt time.Time
	updatedAt time.Time

	persister *persister
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistoryCap overrides the in-memory checkpoint cap.
func WithHistoryCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyCap = n
		}
	}
}

// NewManager creates a state manager scoped to one workflow ID,
// persisting under dir/<workflowID>/.
func NewManager(workflowID, dir string, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		workflowID: workflowID,
		log:        log.WithWorkflow(workflowID),
		historyCap: DefaultHistoryCap,
		phases:     make(map[core.Phase]*core.PhaseState),
		createdAt:  time.Now(),
		updatedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.persister = newPersister(workflowID, dir, m.log)
	return m
}

// WorkflowID returns the run this manager is scoped to.
func (m *Manager) WorkflowID() string {
	return m.workflowID
}

// StartPhase creates a RUNNING phase state, overwriting any prior
// state for that name. A phase can be restarted.
func (m *Manager) StartPhase(name core.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	retries := 0
	if prev, ok := m.phases[name]; ok {
		retries = prev.Retries
	}
	m.phases[name] = &core.PhaseState{
		Name:      name,
		Status:    core.PhaseStatusRunning,
		Retries:   retries,
		StartedAt: &now,
	}
	m.updatedAt = now
	m.log.Debug("phase started", "phase", name.String())
}

// CompletePhase marks a phase COMPLETED with its result and writes a
// checkpoint. A completion for an unknown phase is logged and ignored.
func (m *Manager) CompletePhase(name core.Phase, result map[string]any) {
	m.mu.Lock()
	ps, ok := m.phases[name]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("complete for unknown phase", "phase", name.String())
		return
	}
	now := time.Now()
	ps.Status = core.PhaseStatusCompleted
	ps.Result = result
	ps.CompletedAt = &now
	m.updatedAt = now
	m.mu.Unlock()

	m.log.Debug("phase completed", "phase", name.String(), "duration", ps.Duration().String())
	m.Checkpoint()
}

// FailPhase marks a phase FAILED. The current state file is persisted
// so the failure survives the process, but no checkpoint is taken;
// checkpoints capture successful progress.
func (m *Manager) FailPhase(name core.Phase, errMsg string) {
	m.mu.Lock()
	ps, ok := m.phases[name]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("failure for unknown phase", "phase", name.String())
		return
	}
	now := time.Now()
	ps.Status = core.PhaseStatusFailed
	ps.Error = errMsg
	ps.CompletedAt = &now
	m.updatedAt = now
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug("phase failed", "phase", name.String(), "error", errMsg)
	m.persister.enqueueState(snapshot)
}

// RetryPhase resets a phase to PENDING, clears its error and bumps the
// retry counter. It does not enforce a retry cap: invoking a retry is
// an external decision, manual or scripted.
func (m *Manager) RetryPhase(name core.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.phases[name]
	if !ok {
		return core.ErrState(core.CodePhaseNotFound, "cannot retry unknown phase "+name.String())
	}
	ps.Retries++
	ps.Status = core.PhaseStatusPending
	ps.Error = ""
	ps.Result = nil
	ps.StartedAt = nil
	ps.CompletedAt = nil
	m.updatedAt = time.Now()
	m.log.Info("phase reset for retry", "phase", name.String(), "retries", ps.Retries)
	return nil
}

// Checkpoint snapshots all current phase states, appends to the
// bounded in-memory history and schedules both the timestamped
// snapshot file and the current-state file for writing. Writes flow
// through the persister's queue; they are not awaited here.
func (m *Manager) Checkpoint() Checkpoint {
	m.mu.Lock()
	cp := Checkpoint{
		Timestamp: time.Now(),
		Phases:    m.snapshotLocked(),
		Metadata: Metadata{
			WorkflowID: m.workflowID,
			CreatedAt:  m.createdAt,
			UpdatedAt:  m.updatedAt,
		},
	}
	m.history = append(m.history, cp)
	if len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
	m.mu.Unlock()

	m.persister.enqueueCheckpoint(cp)
	m.persister.enqueueState(cp.Phases)
	return cp
}

// RestoreFromCheckpoint replaces the in-memory phase map from a stored
// snapshot. Index -1 selects the most recent checkpoint. Restores
// bookkeeping only.
func (m *Manager) RestoreFromCheckpoint(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return core.ErrState(core.CodeNoCheckpoints, "no checkpoints to restore from")
	}
	if index < 0 {
		index = len(m.history) + index
	}
	if index < 0 || index >= len(m.history) {
		return core.ErrState(core.CodeNoCheckpoints, "checkpoint index out of range")
	}

	cp := m.history[index]
	restored := make(map[core.Phase]*core.PhaseState, len(cp.Phases))
	for name, ps := range cp.Phases {
		restored[name] = ps.Clone()
	}
	m.phases = restored
	m.updatedAt = time.Now()
	m.log.Info("restored from checkpoint", "index", index, "taken_at", cp.Timestamp.Format(time.RFC3339))
	return nil
}

// History returns the in-memory checkpoint history, newest last.
func (m *Manager) History() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Checkpoint, len(m.history))
	copy(out, m.history)
	return out
}

// PhaseState returns a copy of one phase's bookkeeping.
func (m *Manager) PhaseState(name core.Phase) (*core.PhaseState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.phases[name]
	if !ok {
		return nil, false
	}
	return ps.Clone(), true
}

// Phases returns a copy of the full phase map.
func (m *Manager) Phases() map[core.Phase]*core.PhaseState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsCompleted reports whether a phase reached COMPLETED.
func (m *Manager) IsCompleted(name core.Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.phases[name]
	return ok && ps.Status == core.PhaseStatusCompleted
}

// Summary returns aggregate counts and cumulative phase duration.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{WorkflowID: m.workflowID, Total: len(m.phases)}
	for _, ps := range m.phases {
		switch ps.Status {
		case core.PhaseStatusCompleted:
			s.Completed++
		case core.PhaseStatusFailed:
			s.Failed++
		case core.PhaseStatusRunning:
			s.Running++
		case core.PhaseStatusPending:
			s.Pending++
		case core.PhaseStatusCancelled:
			s.Cancelled++
		case core.PhaseStatusPaused:
			s.Paused++
		}
		s.Duration += ps.Duration()
	}
	return s
}

// Cleanup deletes every file persisted for this run.
func (m *Manager) Cleanup() error {
	return m.persister.cleanup()
}

// Close flushes pending writes and stops the persister. The manager
// must not be used afterwards.
func (m *Manager) Close() {
	m.persister.close()
}

// snapshotLocked deep-copies the phase map. Caller holds the lock.
func (m *Manager) snapshotLocked() map[core.Phase]*core.PhaseState {
	out := make(map[core.Phase]*core.PhaseState, len(m.phases))
	for name, ps := range m.phases {
		out[name] = ps.Clone()
	}
	return out
}
