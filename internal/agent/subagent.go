package agent

import (
	"context"

	"github.com/reelforge/reelforge/internal/core"
)

// SubAgent is a leaf worker wrapping exactly one external collaborator
// call plus basic input/output validation.
type SubAgent interface {
	Name() string
	Execute(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// Func adapts a function to the SubAgent interface.
type Func struct {
	SubName string
	Fn      func(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// Name returns the sub-agent name.
func (f Func) Name() string {
	return f.SubName
}

// Execute invokes the wrapped function.
func (f Func) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f.Fn(ctx, payload)
}

// PayloadString extracts a required string field from a sub-agent
// payload.
func PayloadString(payload map[string]any, key string, phase core.Phase) (string, error) {
	v, ok := payload[key].(string)
	if !ok || v == "" {
		return "", core.ErrMissingInput(phase, key)
	}
	return v, nil
}
