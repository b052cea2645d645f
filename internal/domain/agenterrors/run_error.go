// Package agenterrors defines error types and classification for response runs.
package agenterrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Severity determines how a run error is handled.
type Severity string

const (
	// SeverityRetryable marks transport-level failures that may succeed on a
	// later attempt (timeouts, rate limits, 5xx).
	SeverityRetryable Severity = "retryable"
	// SeverityFatal marks failures that end the run.
	SeverityFatal Severity = "fatal"
)

// IsRetryable returns true for retryable severity.
func (s Severity) IsRetryable() bool {
	return s == SeverityRetryable
}

// IsFatal returns true for fatal severity.
func (s Severity) IsFatal() bool {
	return s == SeverityFatal
}

// Error codes for response run failures. Directive protocol violations are
// not listed here: they are corrected in-loop with a user message and never
// surface as errors.
const (
	ErrCodeModelGateway     = "MODEL_GATEWAY_FAILURE"
	ErrCodeUnknownTool      = "UNKNOWN_TOOL"
	ErrCodeToolExecution    = "TOOL_EXECUTION_FAILED"
	ErrCodeInvalidArguments = "INVALID_TOOL_ARGUMENTS"
	ErrCodePersistence      = "PERSISTENCE_FAILURE"
	ErrCodeQueue            = "QUEUE_FAILURE"
	ErrCodeTimeout          = "TIMEOUT"
)

// RunError represents a failure inside a response run.
type RunError struct {
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Severity       Severity       `json:"severity"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Cycle          int            `json:"cycle,omitempty"`
	Cause          error          `json:"-"`
	Retryable      bool           `json:"retryable"`
	Details        map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried.
func (e *RunError) IsRetryable() bool {
	return e.Retryable && e.Severity.IsRetryable()
}

// IsFatal returns true if the error must end the run.
func (e *RunError) IsFatal() bool {
	return e.Severity.IsFatal()
}

// New creates a run error.
func New(code, message string, severity Severity) *RunError {
	return &RunError{
		Code:      code,
		Message:   message,
		Severity:  severity,
		Retryable: severity.IsRetryable(),
	}
}

// WithCause adds an underlying cause to the error.
func (e *RunError) WithCause(cause error) *RunError {
	e.Cause = cause
	return e
}

// WithRunContext records which conversation and cycle the error occurred in.
func (e *RunError) WithRunContext(conversationID string, cycle int) *RunError {
	e.ConversationID = conversationID
	e.Cycle = cycle
	return e
}

// WithDetails adds additional details to the error.
func (e *RunError) WithDetails(details map[string]any) *RunError {
	e.Details = details
	return e
}

// Wrap wraps an error with run failure context.
func Wrap(err error, code, message string, severity Severity) *RunError {
	return &RunError{
		Code:      code,
		Message:   message,
		Severity:  severity,
		Cause:     err,
		Retryable: severity.IsRetryable(),
	}
}

// WrapFatal wraps an error as fatal.
func WrapFatal(err error, code, message string) *RunError {
	return Wrap(err, code, message, SeverityFatal)
}

// WrapRetryable wraps an error as retryable.
func WrapRetryable(err error, code, message string) *RunError {
	return Wrap(err, code, message, SeverityRetryable)
}

// UnknownTool builds the fatal error for a tool call the registry does not know.
func UnknownTool(name string) *RunError {
	return New(ErrCodeUnknownTool, fmt.Sprintf("unknown tool: %s", name), SeverityFatal)
}

// Classify determines the severity of an arbitrary error. RunErrors keep
// their own severity; context cancellation is fatal; network timeouts are
// retryable; everything else defaults to retryable so the transport retry
// policy decides when to give up.
func Classify(err error) Severity {
	if err == nil {
		return ""
	}

	var re *RunError
	if errors.As(err, &re) {
		return re.Severity
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SeverityFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return SeverityRetryable
	}

	return SeverityRetryable
}
