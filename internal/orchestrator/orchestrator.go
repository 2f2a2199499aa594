// Package orchestrator drives a workflow run phase by phase: it plans
// the phase DAG for the requested type, checks dependencies, routes
// each phase to its owning agent and records the outcome in the state
// manager. Execution is sequential; the bus carries observability
// traffic alongside the direct calls.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/state"
)

// AgentRunner is the slice of the agent runtime the driver needs.
type AgentRunner interface {
	ID() core.AgentID
	Execute(ctx context.Context, task core.Task) (map[string]any, error)
	Start(ctx context.Context)
	Stop()
}

// RunReport is the outcome of one workflow run.
type RunReport struct {
	WorkflowID string                    `json:"workflow_id"`
	Type       core.WorkflowType         `json:"type"`
	Success    bool                      `json:"success"`
	Error      string                    `json:"error,omitempty"`
	FailedAt   core.Phase                `json:"failed_at,omitempty"`
	Duration   time.Duration             `json:"duration"`
	Summary    state.Summary             `json:"summary"`
	Results    map[string]map[string]any `json:"results"`
}

// Orchestrator coordinates agents over one or more workflow runs.
type Orchestrator struct {
	bus        *bus.Bus
	log        *logging.Logger
	met        *metrics.Metrics
	stateDir   string
	historyCap int

	mu      sync.Mutex
	agents  map[core.AgentID]AgentRunner
	active  map[string]*state.Manager
	started bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus collectors. Without it the
// orchestrator runs uninstrumented.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.met = m }
}

// WithHistoryCap sets the in-memory checkpoint history cap for the
// state managers this orchestrator creates.
func WithHistoryCap(n int) Option {
	return func(o *Orchestrator) { o.historyCap = n }
}

// New creates an orchestrator persisting run state under stateDir.
func New(b *bus.Bus, log *logging.Logger, stateDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:      b,
		log:      log.WithAgent(string(core.AgentOrchestrator)),
		stateDir: stateDir,
		agents:   make(map[core.AgentID]AgentRunner),
		active:   make(map[string]*state.Manager),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds an agent to the routing table. Registering the same ID
// twice is a wiring bug and returns an error.
func (o *Orchestrator) Register(a AgentRunner) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.agents[a.ID()]; ok {
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	o.agents[a.ID()] = a
	return nil
}

// Start brings up the bus and every registered agent.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	agents := make([]AgentRunner, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	o.mu.Unlock()

	o.bus.Start()
	for _, a := range agents {
		a.Start(ctx)
	}
	o.log.Info("orchestrator started", "agents", len(agents))
}

// Stop shuts every agent down, then the bus. Active state managers are
// flushed and closed.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	agents := make([]AgentRunner, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	managers := make([]*state.Manager, 0, len(o.active))
	for _, m := range o.active {
		managers = append(managers, m)
	}
	o.active = make(map[string]*state.Manager)
	o.started = false
	o.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
	for _, m := range managers {
		m.Close()
	}
	o.bus.Stop()
	o.log.Info("orchestrator stopped")
}

// ExecuteWorkflow runs one workflow of the given type to completion or
// first failure. The returned report is non-nil even on failure; the
// error mirrors the report's Error field.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wt core.WorkflowType) (*RunReport, error) {
	plan, err := core.PlanWorkflow(wt)
	if err != nil {
		return nil, err
	}
	if err := core.ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("invalid plan for %s: %w", wt, err)
	}

	workflowID := core.NewWorkflowID()
	log := o.log.WithWorkflow(workflowID)
	mgr := o.newStateManager(workflowID)

	o.mu.Lock()
	o.active[workflowID] = mgr
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, workflowID)
		o.mu.Unlock()
		mgr.Close()
	}()

	if o.met != nil {
		o.met.WorkflowsStarted.WithLabelValues(string(wt)).Inc()
	}
	log.Info("workflow started", "type", string(wt), "phases", len(plan),
		"estimated", core.EstimateDuration(plan).String())

	start := time.Now()
	ledger := make(map[string]map[string]any, len(plan))
	report := &RunReport{WorkflowID: workflowID, Type: wt, Results: ledger}

	if failedAt, err := o.runPlan(ctx, log, mgr, plan, workflowID, ledger); err != nil {
		return o.finish(report, mgr, start, failedAt, err)
	}

	report.Success = true
	report.Duration = time.Since(start)
	report.Summary = mgr.Summary()
	if o.met != nil {
		o.met.WorkflowDuration.WithLabelValues(string(wt), "success").Observe(report.Duration.Seconds())
	}
	log.Info("workflow completed", "duration", report.Duration.String(),
		"phases", report.Summary.Completed)
	return report, nil
}

// newStateManager creates the per-run state manager with the
// orchestrator's configured history cap.
func (o *Orchestrator) newStateManager(workflowID string) *state.Manager {
	var opts []state.Option
	if o.historyCap > 0 {
		opts = append(opts, state.WithHistoryCap(o.historyCap))
	}
	return state.NewManager(workflowID, o.stateDir, o.log, opts...)
}

// runPlan drives an already-validated plan phase by phase, filling the
// ledger. On failure it returns the phase that stopped the run. Every
// dependency is re-checked against recorded state even though plans
// are topological by construction, so a malformed plan fails the
// dependent phase instead of executing it.
func (o *Orchestrator) runPlan(ctx context.Context, log *logging.Logger, mgr *state.Manager,
	plan []core.PhaseSpec, workflowID string, ledger map[string]map[string]any) (core.Phase, error) {

	for _, spec := range plan {
		if err := ctx.Err(); err != nil {
			return spec.Name, fmt.Errorf("run cancelled: %w", err)
		}
		for _, dep := range spec.DependsOn {
			if !mgr.IsCompleted(dep) {
				depErr := core.ErrDependencyNotMet(spec.Name, dep)
				mgr.StartPhase(spec.Name)
				mgr.FailPhase(spec.Name, depErr.Error())
				return spec.Name, depErr
			}
		}

		result, err := o.executePhase(ctx, log, mgr, spec, workflowID, ledger)
		if err != nil {
			return spec.Name, err
		}
		ledger[spec.Name.String()] = result
	}
	return "", nil
}

// executePhase runs one phase through its agent and updates state and
// metrics. A phase owned by an unregistered agent is skipped with a
// placeholder result so partial deployments can still exercise the
// rest of the plan.
func (o *Orchestrator) executePhase(ctx context.Context, log *logging.Logger, mgr *state.Manager,
	spec core.PhaseSpec, workflowID string, ledger map[string]map[string]any) (map[string]any, error) {

	phaseLog := log.WithPhase(spec.Name.String())
	mgr.StartPhase(spec.Name)

	o.mu.Lock()
	runner, ok := o.agents[spec.Agent]
	o.mu.Unlock()
	if !ok {
		phaseLog.Warn("no agent registered, skipping phase", "agent", string(spec.Agent))
		result := map[string]any{"skipped": true, "agent": string(spec.Agent)}
		mgr.CompletePhase(spec.Name, result)
		return result, nil
	}

	task := core.Task{
		Phase:      spec.Name,
		WorkflowID: workflowID,
		Params:     ledger,
		Requester:  core.AgentOrchestrator,
	}

	o.announce(spec, workflowID)

	phaseStart := time.Now()
	result, err := runner.Execute(ctx, task)
	elapsed := time.Since(phaseStart)

	if o.met != nil {
		o.met.PhaseDuration.WithLabelValues(spec.Name.String()).Observe(elapsed.Seconds())
	}
	if err != nil {
		mgr.FailPhase(spec.Name, err.Error())
		if o.met != nil {
			o.met.PhasesFailed.WithLabelValues(spec.Name.String()).Inc()
		}
		phaseLog.Error("phase failed", "agent", string(spec.Agent),
			"duration", elapsed.String(), "error", err.Error())
		return nil, err
	}

	mgr.CompletePhase(spec.Name, result)
	if o.met != nil {
		o.met.PhasesCompleted.WithLabelValues(spec.Name.String()).Inc()
	}
	phaseLog.Info("phase completed", "agent", string(spec.Agent), "duration", elapsed.String())
	return result, nil
}

// announce publishes a status update so bus subscribers (monitoring,
// tests) can observe run progress without being on the direct call
// path.
func (o *Orchestrator) announce(spec core.PhaseSpec, workflowID string) {
	msg := core.NewMessage(core.AgentOrchestrator, core.BroadcastReceiver,
		core.MessageStatusUpdate, map[string]any{
			"phase":       spec.Name.String(),
			"agent":       string(spec.Agent),
			"workflow_id": workflowID,
			"status":      string(core.PhaseStatusRunning),
		})
	if err := o.bus.Broadcast(msg); err != nil {
		o.log.Debug("status update not delivered", "error", err.Error())
	}
}

// finish fills the failure fields of a report. It returns the report
// alongside the error so callers can inspect partial progress.
func (o *Orchestrator) finish(report *RunReport, mgr *state.Manager, start time.Time,
	phase core.Phase, err error) (*RunReport, error) {

	report.Success = false
	report.Error = err.Error()
	report.FailedAt = phase
	report.Duration = time.Since(start)
	report.Summary = mgr.Summary()
	if o.met != nil {
		o.met.WorkflowDuration.WithLabelValues(string(report.Type), "failure").Observe(report.Duration.Seconds())
	}
	o.log.WithWorkflow(report.WorkflowID).Error("workflow failed",
		"phase", phase.String(), "error", err.Error(), "duration", report.Duration.String())
	return report, err
}

// Cancel broadcasts a cancel request to every agent. Cancellation is
// cooperative: in-flight collaborator calls run to completion.
func (o *Orchestrator) Cancel(workflowID string) error {
	msg := core.NewMessage(core.AgentOrchestrator, core.BroadcastReceiver,
		core.MessageCancelRequest, map[string]any{"workflow_id": workflowID}).WithPriority(9)
	return o.bus.Broadcast(msg)
}

// GetWorkflowStatus returns a summary for a run, from the live manager
// when active, otherwise from persisted state. The boolean is false
// when the run is unknown.
func (o *Orchestrator) GetWorkflowStatus(workflowID string) (state.Summary, bool, error) {
	o.mu.Lock()
	mgr, active := o.active[workflowID]
	o.mu.Unlock()
	if active {
		return mgr.Summary(), true, nil
	}

	ps, err := state.LoadState(o.stateDir, workflowID)
	if err != nil {
		return state.Summary{}, false, err
	}
	if ps == nil {
		return state.Summary{}, false, nil
	}
	return state.SummaryOf(ps), true, nil
}

// EstimateDuration returns the advisory ETA for a workflow type.
func (o *Orchestrator) EstimateDuration(wt core.WorkflowType) (time.Duration, error) {
	plan, err := core.PlanWorkflow(wt)
	if err != nil {
		return 0, err
	}
	return core.EstimateDuration(plan), nil
}
