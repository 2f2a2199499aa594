// Package agent provides the shared runtime every domain agent is
// built on: a FIFO task queue drained by a single worker, status and
// metrics tracking, and sub-agent delegation. Concurrency across
// agents comes from each agent owning its own worker; there is no
// intra-agent parallelism.
package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Executor is implemented by each domain agent: dispatch one task by
// its phase name to the right handler.
type Executor interface {
	ID() core.AgentID
	ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error)
}

// Metrics aggregates per-agent execution counters.
type Metrics struct {
	TasksCompleted int64         `json:"tasks_completed"`
	TasksFailed    int64         `json:"tasks_failed"`
	TotalDuration  time.Duration `json:"total_duration"`
}

// AverageDuration returns the mean execution time across all tasks.
func (m Metrics) AverageDuration() time.Duration {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(total)
}

// Runtime is the generic agent machinery. Domain agents embed it and
// bind themselves as the executor.
type Runtime struct {
	id  core.AgentID
	bus *bus.Bus
	log *logging.Logger

	exec      Executor
	queue     chan core.Task
	stop      chan struct{}
	done      chan struct{}
	cancelled atomic.Bool

	mu        sync.Mutex
	status    Status
	metrics   Metrics
	subagents map[string]SubAgent
	started   bool
}

// New creates an agent runtime attached to the bus.
func New(id core.AgentID, b *bus.Bus, log *logging.Logger) *Runtime {
	return &Runtime{
		id:        id,
		bus:       b,
		log:       log.WithAgent(string(id)),
		queue:     make(chan core.Task, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		status:    StatusIdle,
		subagents: make(map[string]SubAgent),
	}
}

// ID returns the agent identifier.
func (r *Runtime) ID() core.AgentID {
	return r.id
}

// Bind attaches the domain agent as the task executor. Must be called
// before Start or Execute.
func (r *Runtime) Bind(exec Executor) {
	r.exec = exec
}

// RegisterSubAgent adds a leaf worker to the agent's roster.
func (r *Runtime) RegisterSubAgent(sa SubAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subagents[sa.Name()] = sa
}

// Delegate routes a payload to a registered sub-agent by name. A
// missing sub-agent is a wiring bug and is never retried here.
func (r *Runtime) Delegate(ctx context.Context, name string, payload map[string]any) (map[string]any, error) {
	r.mu.Lock()
	sa, ok := r.subagents[name]
	r.mu.Unlock()
	if !ok {
		return nil, core.ErrSubAgentNotFound(r.id, name)
	}
	return sa.Execute(ctx, payload)
}

// Start subscribes the agent to the bus and launches its worker loop.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.bus.Subscribe(r.id, []core.MessageType{core.MessageTaskRequest}, r.onTaskRequest)
	r.bus.Subscribe(r.id, []core.MessageType{core.MessageCancelRequest}, r.onCancelRequest)
	go r.work(ctx)
}

// Stop shuts the worker down and removes the agent's subscriptions.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.started || r.status == StatusStopped {
		r.mu.Unlock()
		return
	}
	r.status = StatusStopped
	r.mu.Unlock()

	close(r.stop)
	<-r.done
	r.bus.Unsubscribe(r.id)
}

// Status returns the agent's current lifecycle state.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Metrics returns a copy of the agent's counters.
func (r *Runtime) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Execute runs one task synchronously: the authoritative path used by
// the orchestrator. Status flips to busy for the duration, metrics are
// updated, and a completion or error report is published to the
// requester either way.
func (r *Runtime) Execute(ctx context.Context, task core.Task) (map[string]any, error) {
	r.setStatus(StatusBusy)
	start := time.Now()

	result, err := r.exec.ExecuteTask(ctx, task)
	elapsed := time.Since(start)

	r.mu.Lock()
	r.metrics.TotalDuration += elapsed
	if err != nil {
		r.metrics.TasksFailed++
	} else {
		r.metrics.TasksCompleted++
	}
	if r.status != StatusStopped {
		r.status = StatusIdle
	}
	r.mu.Unlock()

	if err != nil {
		r.reportError(task, err)
		return nil, err
	}
	r.reportCompletion(task, result, elapsed)
	return result, nil
}

// work drains the queue until stopped. The cancel flag is checked
// before each queued task: cancellation is cooperative and cannot
// interrupt an in-flight collaborator call.
func (r *Runtime) work(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case task := <-r.queue:
			if r.cancelled.Swap(false) {
				r.log.Info("skipping cancelled task", "phase", task.Phase.String())
				continue
			}
			// Result is discarded here; bus-delivered tasks report
			// back through completion/error messages.
			_, _ = r.Execute(ctx, task)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runtime) onTaskRequest(msg core.Message) {
	task := taskFromMessage(msg)
	select {
	case r.queue <- task:
	default:
		r.log.Warn("task queue full, rejecting request",
			"phase", task.Phase.String(), "requester", string(msg.Sender))
	}
}

func (r *Runtime) onCancelRequest(msg core.Message) {
	r.cancelled.Store(true)
	r.log.Info("cancel requested", "sender", string(msg.Sender))
}

func (r *Runtime) setStatus(s Status) {
	r.mu.Lock()
	if r.status != StatusStopped {
		r.status = s
	}
	r.mu.Unlock()
}

func (r *Runtime) reportCompletion(task core.Task, result map[string]any, elapsed time.Duration) {
	msg := core.NewMessage(r.id, task.Requester, core.MessageCompletion, map[string]any{
		"phase":       task.Phase.String(),
		"workflow_id": task.WorkflowID,
		"result":      result,
		"duration_ms": elapsed.Milliseconds(),
	}).WithCorrelation(task.CorrelationID)
	if err := r.bus.Send(msg); err != nil {
		r.log.Debug("completion not delivered", "error", err.Error())
	}
}

func (r *Runtime) reportError(task core.Task, taskErr error) {
	msg := core.NewMessage(r.id, task.Requester, core.MessageErrorReport, map[string]any{
		"phase":       task.Phase.String(),
		"workflow_id": task.WorkflowID,
		"error":       taskErr.Error(),
		"params":      task.Params,
	}).WithCorrelation(task.CorrelationID).WithPriority(8)
	if err := r.bus.Send(msg); err != nil {
		r.log.Debug("error report not delivered", "error", err.Error())
	}
}

// taskFromMessage decodes a task request payload.
func taskFromMessage(msg core.Message) core.Task {
	task := core.Task{
		Requester:     msg.Sender,
		CorrelationID: msg.CorrelationID,
	}
	if v, ok := msg.Payload["phase"].(string); ok {
		task.Phase = core.Phase(v)
	}
	if v, ok := msg.Payload["workflow_id"].(string); ok {
		task.WorkflowID = v
	}
	if v, ok := msg.Payload["params"].(map[string]map[string]any); ok {
		task.Params = v
	}
	return task
}
