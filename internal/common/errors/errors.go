// Package errors provides standardized error handling for the eligibility pipeline.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation / rule engine
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Reasoning sub-stages (LLM-backed)
	ErrCodeLLMParseError ErrorCode = "LLM_PARSE_ERROR"
	ErrCodeLLMTimeout    ErrorCode = "LLM_TIMEOUT"

	// Identity / entity lookup
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeApplicantMismatch   ErrorCode = "APPLICANT_MISMATCH"

	// External dependencies
	ErrCodeExtractionFailed        ErrorCode = "EXTRACTION_FAILED"
	ErrCodeScoreServiceUnavailable ErrorCode = "SCORE_SERVICE_UNAVAILABLE"
	ErrCodeScoreTimeout            ErrorCode = "SCORE_TIMEOUT"
	ErrCodeStoreUnavailable        ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeQueueUnavailable        ErrorCode = "QUEUE_UNAVAILABLE"

	// Persistence
	ErrCodeUpsertFailed ErrorCode = "UPSERT_FAILED"

	// Notification
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
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

// Is lets callers match wrapped StandardErrors by code with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the error code carried by err, or "" if err is not a StandardError.
func CodeOf(err error) ErrorCode {
	if se, ok := err.(*StandardError); ok {
		return se.Code
	}
	return ""
}

// ==========================
// 2. Error Constructors
// ==========================

// NewApplicationNotFoundError creates a non-retryable not-found error.
func NewApplicationNotFoundError(applicantEID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "No application found for applicant",
		Details:   fmt.Sprintf("applicantEid: %s", applicantEID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicantMismatchError creates a non-retryable identity mismatch error.
// Raised when an extract carries a different applicant id than its application.
func NewApplicantMismatchError(expected, got string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicantMismatch,
		Message:   "Applicant identity inconsistent across extract and application",
		Details:   fmt.Sprintf("expected: %s, got: %s", expected, got),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a retryable extraction service error.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Document extraction service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoreServiceUnavailableError creates a retryable scoring service error.
func NewScoreServiceUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoreServiceUnavailable,
		Message:   "Scoring service unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoreTimeoutError creates a retryable scoring timeout error.
func NewScoreTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeScoreTimeout,
		Message:   "Scoring service call timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMParseError creates a non-retryable malformed agent output error.
// Callers are expected to recover with the documented safe default object.
func NewLLMParseError(stage, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMParseError,
		Message:   "Reasoning sub-stage returned invalid JSON",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"stage": stage},
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable reasoning timeout error.
func NewLLMTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Reasoning sub-stage call timed out",
		Retryable: true,
		Metadata:  map[string]interface{}{"stage": stage},
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable persistence error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Application store unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueueUnavailableError creates a retryable clarification queue error.
func NewQueueUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueUnavailable,
		Message:   "Clarification queue unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpsertFailedError creates a retryable upsert error.
func NewUpsertFailedError(entity string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpsertFailed,
		Message:   "Database upsert failed",
		Details:   fmt.Sprintf("entity: %s, error: %s", entity, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a non-retryable notification error.
// Notification is best-effort; callers log and continue.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Decision notification send failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
