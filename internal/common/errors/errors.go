// Package errors provides standardized error handling for the automation engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Automation outcomes. Stalls and closed postings resolve inside the state
	// machine as terminal Results, never as errors.
	ErrCodeLoginTimeout        ErrorCode = "LOGIN_TIMEOUT"
	ErrCodeTransientAutomation ErrorCode = "TRANSIENT_AUTOMATION"
	ErrCodeFatalJob            ErrorCode = "FATAL_JOB_ERROR"

	// Queue / delivery
	ErrCodeQueueConnectionFailed ErrorCode = "QUEUE_CONNECTION_FAILED"
	ErrCodeQueuePayloadInvalid   ErrorCode = "QUEUE_PAYLOAD_INVALID"
	ErrCodeRetryBudgetExhausted  ErrorCode = "RETRY_BUDGET_EXHAUSTED"

	// Persistence
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeProfileNotFound          ErrorCode = "PROFILE_NOT_FOUND"

	// Browser sessions
	ErrCodeSessionLaunchFailed ErrorCode = "SESSION_LAUNCH_FAILED"

	// AI
	ErrCodeAIScoringFailed   ErrorCode = "AI_SCORING_FAILED"
	ErrCodeAIBudgetExhausted ErrorCode = "AI_BUDGET_EXHAUSTED"

	// Notifications
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error. The Retryable flag
// drives the dispatcher's requeue decision; nothing in the engine makes that
// call by inspecting exception types.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Normalize ensures any error is carried as a StandardError. Unknown errors are
// wrapped as retryable fatal job errors so the retry budget still applies.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeFatalJob,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether a failed job should be requeued.
func IsRetryable(err error) bool {
	return Normalize(err).Retryable
}

// Code extracts the error code, normalizing if necessary.
func Code(err error) ErrorCode {
	return Normalize(err).Code
}

// NewLoginTimeoutError creates a platform-scoped login timeout. It is not
// retryable within the run; the platform is skipped and others continue.
func NewLoginTimeoutError(platform string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeLoginTimeout,
		Message:   fmt.Sprintf("Login to %s did not complete in time", platform),
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"platform": platform},
		Timestamp: time.Now().UTC(),
	}
}

// NewTransientAutomationError creates a retryable navigation/selector failure.
func NewTransientAutomationError(step int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientAutomation,
		Message:   "Automation step failed",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"step": step},
		Timestamp: time.Now().UTC(),
	}
}

// NewFatalJobError wraps an unexpected failure escaping the state machine.
func NewFatalJobError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFatalJob,
		Message:   "Job processing failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueueConnectionFailedError creates a queue-level connection error. This is
// the only error class allowed to terminate the worker process.
func NewQueueConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueConnectionFailed,
		Message:   "Queue connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueuePayloadInvalidError marks a message that failed schema validation.
// Never retryable: redelivering a malformed payload cannot succeed.
func NewQueuePayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueuePayloadInvalid,
		Message:   "Queue message failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileNotFoundError marks a user with no parsed resume profile.
func NewProfileNotFoundError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileNotFound,
		Message:   "Candidate profile not found",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionLaunchFailedError creates a retryable browser launch error.
func NewSessionLaunchFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionLaunchFailed,
		Message:   "Browser session launch failed",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"userId": userID},
		Timestamp: time.Now().UTC(),
	}
}

// NewAIScoringFailedError records an AI scoring failure. Callers degrade to the
// neutral default score rather than propagating this.
func NewAIScoringFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAIScoringFailed,
		Message:   "AI relevance scoring failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAIBudgetExhaustedError marks the per-run AI call budget as spent.
func NewAIBudgetExhaustedError(budget int) *StandardError {
	return &StandardError{
		Code:      ErrCodeAIBudgetExhausted,
		Message:   "AI call budget exhausted for this run",
		Details:   fmt.Sprintf("budget: %d", budget),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError records a best-effort notification failure.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
