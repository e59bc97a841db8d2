package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrInvalidState  = errors.New("invalid state")
	ErrPrecondition  = errors.New("precondition failed")
	ErrTransport     = errors.New("transport error")
	ErrInconsistency = errors.New("inconsistent state")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StateError is returned when an operation violates the lifecycle state
// machine. It carries enough context (request id, current status, attempted
// operation) for the caller to decide what to do.
type StateError struct {
	RequestID string
	Current   Status
	Op        string
	Reason    string
	kind      error
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: request %s in status %q: %s", e.Op, e.RequestID, e.Current, e.Reason)
	}
	return fmt.Sprintf("%s: request %s in status %q", e.Op, e.RequestID, e.Current)
}

func (e *StateError) Unwrap() error { return e.kind }

// NewInvalidStateError marks an operation attempted against a status that
// forbids it outright (e.g. modifying a completed request).
func NewInvalidStateError(id string, current Status, op string) *StateError {
	return &StateError{RequestID: id, Current: current, Op: op, kind: ErrInvalidState}
}

// NewPreconditionError marks a transition whose required fields or source
// status are missing.
func NewPreconditionError(id string, current Status, op, reason string) *StateError {
	return &StateError{RequestID: id, Current: current, Op: op, Reason: reason, kind: ErrPrecondition}
}
