package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeLayout     = "LAYOUT_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeCycle      = "CYCLE_DETECTED"
	ErrCodeStore      = "STORE_ERROR"
)

// ScopeError is the structured error type for all flowscope operations.
type ScopeError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ExecutorID string         `json:"executor_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *ScopeError) Error() string {
	if e.ExecutorID != "" {
		return fmt.Sprintf("[%s] executor %s: %s", e.Code, e.ExecutorID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ScopeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ScopeError.
func NewError(code, message string) *ScopeError {
	return &ScopeError{Code: code, Message: message}
}

// NewErrorf creates a new ScopeError with a formatted message.
func NewErrorf(code, format string, args ...any) *ScopeError {
	return &ScopeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithExecutor attaches an executor ID to the error.
func (e *ScopeError) WithExecutor(id string) *ScopeError {
	e.ExecutorID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *ScopeError) WithCause(err error) *ScopeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ScopeError) WithDetails(details map[string]any) *ScopeError {
	e.Details = details
	return e
}
