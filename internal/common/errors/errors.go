// Package errors provides the coded error taxonomy shared across the
// suitability pipeline. Business precondition violations are non-retryable;
// version conflicts are safe to retry once after re-reading.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a standardized pipeline error.
type Code string

const (
	// Business errors — surfaced to the caller, never retried.
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidScore       Code = "INVALID_SCORE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeTerminalState      Code = "TERMINAL_STATE"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeAlreadyClaimed     Code = "ALREADY_CLAIMED"
	CodeNoEligibleProducts Code = "NO_ELIGIBLE_PRODUCTS"

	// Concurrency conflict — safe to retry once by re-reading and reapplying.
	CodeStaleVersion Code = "STALE_VERSION"

	// Infrastructure errors.
	CodeDatabaseQueryFailed    Code = "DATABASE_QUERY_FAILED"
	CodeNotificationSendFailed Code = "NOTIFICATION_SEND_FAILED"
)

// PipelineError is a structured application error. Fields carry enough
// context (work item id, stage, reviewer id) for audit logging.
type PipelineError struct {
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// WithField attaches one audit-context field and returns the error.
func (e *PipelineError) WithField(key string, value interface{}) *PipelineError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

func newError(code Code, message, details string, retryable bool) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf extracts the pipeline error code, or "" for unclassified errors.
func CodeOf(err error) Code {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// NewInvalidInput creates a non-retryable malformed-questionnaire error.
// The caller must re-prompt, not retry.
func NewInvalidInput(details string) *PipelineError {
	return newError(CodeInvalidInput, "Questionnaire input is missing or malformed", details, false)
}

// NewInvalidScore creates a non-retryable out-of-range score error.
func NewInvalidScore(score int) *PipelineError {
	e := newError(CodeInvalidScore, "Risk score outside [0,100]", fmt.Sprintf("score: %d", score), false)
	return e.WithField("score", score)
}

// NewNotFound creates a non-retryable missing-entity error.
func NewNotFound(entity, id string) *PipelineError {
	e := newError(CodeNotFound, fmt.Sprintf("%s not found", entity), fmt.Sprintf("id: %s", id), false)
	return e.WithField("id", id)
}

// NewTerminalState creates a non-retryable error for mutations on an item
// that already reached Approved or Rejected.
func NewTerminalState(workItemID, status string) *PipelineError {
	e := newError(CodeTerminalState, "Work item is in a terminal state",
		fmt.Sprintf("workItemId: %s, status: %s", workItemID, status), false)
	return e.WithField("workItemId", workItemID).WithField("status", status)
}

// NewUnauthorized creates a non-retryable role-mismatch error.
func NewUnauthorized(reviewerID, stage string) *PipelineError {
	e := newError(CodeUnauthorized, "Reviewer role does not match the required stage",
		fmt.Sprintf("reviewerId: %s, stage: %s", reviewerID, stage), false)
	return e.WithField("reviewerId", reviewerID).WithField("stage", stage)
}

// NewAlreadyClaimed creates a non-retryable claim-conflict error.
func NewAlreadyClaimed(workItemID string) *PipelineError {
	e := newError(CodeAlreadyClaimed, "Work item is claimed by another reviewer",
		fmt.Sprintf("workItemId: %s", workItemID), false)
	return e.WithField("workItemId", workItemID)
}

// NewNoEligibleProducts creates a non-retryable empty-candidate error. The
// work item stays Approved; the failure is reported to the operator queue.
func NewNoEligibleProducts(category string, score int) *PipelineError {
	e := newError(CodeNoEligibleProducts, "No products survived strategy filtering in any bucket",
		fmt.Sprintf("category: %s, score: %d", category, score), false)
	return e.WithField("category", category).WithField("score", score)
}

// NewStaleVersion creates a retry-once version-conflict error.
func NewStaleVersion(workItemID string, expected int64) *PipelineError {
	e := newError(CodeStaleVersion, "Work item was modified concurrently",
		fmt.Sprintf("workItemId: %s, expectedVersion: %d", workItemID, expected), true)
	return e.WithField("workItemId", workItemID).WithField("expectedVersion", expected)
}

// NewDatabaseQueryFailed creates a retryable database error.
func NewDatabaseQueryFailed(op string, err error) *PipelineError {
	e := newError(CodeDatabaseQueryFailed, "Database query failed",
		fmt.Sprintf("op: %s, error: %s", op, err.Error()), true)
	e.cause = err
	return e.WithField("op", op)
}

// NewNotificationSendFailed creates a retryable notification delivery error.
func NewNotificationSendFailed(event string, err error) *PipelineError {
	e := newError(CodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("event: %s, error: %s", event, err.Error()), true)
	e.cause = err
	return e.WithField("event", event)
}
