package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid or missing input
	ErrCatDependency ErrorCategory = "dependency" // Phase prerequisite not met
	ErrCatWiring     ErrorCategory = "wiring"     // Missing agent or sub-agent registration
	ErrCatExternal   ErrorCategory = "external"   // Collaborator call failure
	ErrCatState      ErrorCategory = "state"      // State corruption or conflict
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the pipeline core.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ErrDependencyNotMet reports a phase scheduled before its prerequisite
// completed. This aborts the whole run.
func ErrDependencyNotMet(phase, dep Phase) *DomainError {
	return &DomainError{
		Category: ErrCatDependency,
		Code:     CodeDependencyNotMet,
		Message:  fmt.Sprintf("phase %s requires %s to be completed", phase, dep),
	}
}

// ErrSubAgentNotFound reports a dispatch to an unregistered sub-agent.
// This is a wiring bug, never a transient condition.
func ErrSubAgentNotFound(agent AgentID, name string) *DomainError {
	return &DomainError{
		Category: ErrCatWiring,
		Code:     CodeSubAgentNotFound,
		Message:  fmt.Sprintf("agent %s has no sub-agent %q", agent, name),
	}
}

// ErrMissingInput reports an absent or empty upstream ledger field.
func ErrMissingInput(phase Phase, field string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     CodeMissingInput,
		Message:  fmt.Sprintf("phase %s: required input %q is missing or empty", phase, field),
	}
}

// ErrExternal wraps a collaborator failure.
func ErrExternal(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExternal,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// Predefined error codes.
const (
	CodeDependencyNotMet = "DEPENDENCY_NOT_MET"
	CodeSubAgentNotFound = "SUBAGENT_NOT_FOUND"
	CodeMissingInput     = "MISSING_INPUT"
	CodePhaseNotFound    = "PHASE_NOT_FOUND"
	CodeUnroutedPhase    = "UNROUTED_PHASE"
	CodeStateCorrupted   = "STATE_CORRUPTED"
	CodeNoCheckpoints    = "NO_CHECKPOINTS"
	CodeAgentStopped     = "AGENT_STOPPED"
	CodeRenderFailed     = "RENDER_FAILED"
	CodePublishFailed    = "PUBLISH_FAILED"
	CodeGenerateFailed   = "GENERATE_FAILED"
	CodeScrapeFailed     = "SCRAPE_FAILED"
	CodeRecordStore      = "RECORD_STORE"
	CodeNoProducts       = "NO_PRODUCTS"
)
