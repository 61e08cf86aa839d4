// Package apperror defines the coded error values shared across the engine.
package apperror

import (
	"errors"
	"fmt"
)

// Error represents an application error with a stable machine-readable code.
type Error struct {
	Code     string
	Message  string
	Internal error
	Details  map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches errors by code so the sentinel values survive WithInternal and
// WithMessage copies: errors.Is(err, apperror.ErrNotFound) holds for any
// derived copy.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: err,
		Details:  e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Code:     e.Code,
		Message:  message,
		Internal: e.Internal,
		Details:  e.Details,
	}
}

// WithMessagef is WithMessage with fmt formatting.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: e.Internal,
		Details:  details,
	}
}

// New creates a new application error
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Common error definitions
var (
	// Selector / input errors
	ErrParse      = New("parse_error", "Selector string is malformed")
	ErrValidation = New("validation_error", "Invalid input")

	// Resource errors
	ErrNotFound  = New("not_found", "Resource not found")
	ErrDuplicate = New("duplicate", "Resource already exists")

	// Reconciliation errors
	ErrPartialReconciliation = New("partial_reconciliation", "Some items failed to reconcile")
	ErrInvariantViolation    = New("invariant_violation", "Graph invariant violated")

	// Infrastructure errors
	ErrDatabase = New("database_error", "Database operation failed")
	ErrInternal = New("internal_error", "Internal error")
)

// ItemError records a per-item failure inside a best-effort batch.
type ItemError struct {
	ItemID string `json:"item_id"`
	Cause  string `json:"cause"`
}

// Partial builds a partial_reconciliation error carrying per-item causes.
// Batches that complete with failures return this alongside their counts;
// they never surface a bare failure for partial success.
func Partial(items []ItemError) *Error {
	return ErrPartialReconciliation.WithDetails(map[string]any{
		"failed": len(items),
		"items":  items,
	})
}
