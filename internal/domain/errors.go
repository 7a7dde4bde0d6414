package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports missing or malformed request input. The caller is
// expected to repair the payload and retry; the core never retries internally.
type ValidationError struct {
	Missing []string `json:"missing,omitempty"`
	Message string   `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("validation failed: missing fields [%s]", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewMissingFieldsError builds a ValidationError for absent required fields.
func NewMissingFieldsError(fields ...string) *ValidationError {
	return &ValidationError{Missing: fields, Message: "missing required fields"}
}

// NotFoundError signals an absent entity. Lookups that miss are non-error
// completions at the task level; handlers map this to NOT_FOUND.
type NotFoundError struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// NewNotFoundError creates a NotFoundError for the given entity and lookup key.
func NewNotFoundError(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

// ForbiddenError signals a role lacking permission for an operation. Non-retryable.
type ForbiddenError struct {
	Role      Role       `json:"role"`
	Operation Permission `json:"operation"`
}

// Error implements the error interface
func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q not authorized for %s", e.Role, e.Operation)
}

// NewForbiddenError creates a ForbiddenError.
func NewForbiddenError(role Role, op Permission) *ForbiddenError {
	return &ForbiddenError{Role: role, Operation: op}
}

// TransientError wraps a failed or timed-out specialist/backend call. These are
// absorbed locally by fallbacks and never fail the request on their own.
type TransientError struct {
	Service string `json:"service"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Service, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a transient backend failure for a named service.
func NewTransientError(service string, err error) *TransientError {
	return &TransientError{Service: service, Err: err}
}

// FatalError signals that the orchestrator cannot assemble a minimally valid
// context. Surfaced as FAILED with the audit trail attached.
type FatalError struct {
	Message string `json:"message"`
}

// Error implements the error interface
func (e *FatalError) Error() string { return e.Message }

// NewFatalError creates a FatalError.
func NewFatalError(format string, args ...interface{}) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}

// StatusForError maps an error to the task-level response status.
func StatusForError(err error) TaskStatus {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		forbiddenErr  *ForbiddenError
	)
	switch {
	case errors.As(err, &validationErr):
		return StatusRetry
	case errors.As(err, &notFoundErr):
		return StatusNotFound
	case errors.As(err, &forbiddenErr):
		return StatusForbidden
	default:
		return StatusFailed
	}
}

// MissingFields extracts the missing-field list if err is a ValidationError.
func MissingFields(err error) []string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Missing
	}
	return nil
}
