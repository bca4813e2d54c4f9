package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation   ErrorCategory = "validation"         // Malformed external input, never retried
	ErrCatTransient    ErrorCategory = "transient"          // Network/timeout class, retried with backoff
	ErrCatPrecondition ErrorCategory = "stage_precondition" // Workflow gating violation
	ErrCatStageFailure ErrorCategory = "stage_failure"      // All sub-tasks of a stage failed
	ErrCatUnavailable  ErrorCategory = "agent_unavailable"  // No ready agent for a role
	ErrCatTimeout      ErrorCategory = "timeout"            // Invocation deadline exceeded
	ErrCatCancelled    ErrorCategory = "cancelled"          // Dispatch cancelled by caller
	ErrCatNotFound     ErrorCategory = "not_found"          // Resource not found
	ErrCatState        ErrorCategory = "state"              // State corruption/conflict
	ErrCatInternal     ErrorCategory = "internal"           // Unexpected internal error
)

// DomainError represents a structured error from the orchestration core.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
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
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTransient creates a transient (retryable) error.
func ErrTransient(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTransient,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrStagePrecondition creates a gating error identifying the missing
// predecessor stage.
func ErrStagePrecondition(stage, missing Stage) *DomainError {
	return &DomainError{
		Category:  ErrCatPrecondition,
		Code:      CodeStagePrecondition,
		Message:   fmt.Sprintf("stage %s requires completed %s", stage, missing),
		Retryable: false,
		Details: map[string]interface{}{
			"stage":   string(stage),
			"missing": string(missing),
		},
	}
}

// ErrStageFailure creates a hard stage failure: zero sub-tasks succeeded.
func ErrStageFailure(stage Stage, attempted int) *DomainError {
	return &DomainError{
		Category:  ErrCatStageFailure,
		Code:      CodeStageFailed,
		Message:   fmt.Sprintf("stage %s failed: 0 of %d sub-tasks succeeded", stage, attempted),
		Retryable: false,
		Details: map[string]interface{}{
			"stage":     string(stage),
			"attempted": attempted,
		},
	}
}

// ErrAgentUnavailable signals that no ready agent exists for a role.
// Treated as transient with a longer backoff.
func ErrAgentUnavailable(role AgentRole) *DomainError {
	return &DomainError{
		Category:  ErrCatUnavailable,
		Code:      CodeAgentUnavailable,
		Message:   fmt.Sprintf("no ready agent for role %s", role),
		Retryable: true,
		Details:   map[string]interface{}{"role": string(role)},
	}
}

// ErrCancelled creates a cancellation error, distinct from failure.
func ErrCancelled(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCancelled,
		Code:      "CANCELLED",
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource string, id interface{}) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %v", resource, id),
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
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

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeStagePrecondition = "STAGE_PRECONDITION"
	CodeStageFailed       = "STAGE_FAILED"
	CodeAgentUnavailable  = "AGENT_UNAVAILABLE"
	CodeProjectNotFound   = "PROJECT_NOT_FOUND"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeInvalidConfig     = "INVALID_CONFIG"
	CodeStageInFlight     = "STAGE_IN_FLIGHT"
	CodeStoreFailure      = "STORE_FAILURE"
)
