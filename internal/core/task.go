package core

import "time"

// Task is the unit of work handed to an agent: one phase of one
// workflow run. Params carries the full ledger of prior phase results,
// keyed by phase name, so handlers reference upstream outputs by name
// rather than typed arguments.
type Task struct {
	Phase         Phase
	WorkflowID    string
	Params        map[string]map[string]any
	Requester     AgentID
	CorrelationID string
}

// Upstream returns a named field from an upstream phase result.
// The second return is false when the phase result or field is absent.
func (t Task) Upstream(phase Phase, field string) (any, bool) {
	res, ok := t.Params[phase.String()]
	if !ok {
		return nil, false
	}
	v, ok := res[field]
	return v, ok
}

// UpstreamString returns a non-empty string field from an upstream
// phase result, or an error naming the missing input.
func (t Task) UpstreamString(phase Phase, field string) (string, error) {
	v, ok := t.Upstream(phase, field)
	if !ok {
		return "", ErrMissingInput(t.Phase, phase.String()+"."+field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", ErrMissingInput(t.Phase, phase.String()+"."+field)
	}
	return s, nil
}

// UpstreamSlice returns a non-empty slice field from an upstream phase
// result, or an error naming the missing input.
func (t Task) UpstreamSlice(phase Phase, field string) ([]any, error) {
	v, ok := t.Upstream(phase, field)
	if !ok {
		return nil, ErrMissingInput(t.Phase, phase.String()+"."+field)
	}
	s, ok := v.([]any)
	if !ok || len(s) == 0 {
		return nil, ErrMissingInput(t.Phase, phase.String()+"."+field)
	}
	return s, nil
}

// TaskResult pairs a phase result with its execution duration,
// reported back to the requester in a completion message.
type TaskResult struct {
	Phase    Phase
	Result   map[string]any
	Duration time.Duration
}
