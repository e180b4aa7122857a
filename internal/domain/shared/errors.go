package shared

import (
	"errors"
	"fmt"
)

// DomainError is the structured error every core operation returns.
// Code is a stable, machine-readable kind; Message is technical English text
// and never localized.
type DomainError struct {
	Code    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so callers can write
// errors.Is(err, shared.ErrNotFound) against a freshly built error.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// Error kinds shared across bounded contexts
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidInput        = "VALIDATION_ERROR"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENT_MODIFICATION"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeNoEligibleOrders    = "NO_ELIGIBLE_ORDERS"
	CodeConcurrentBatch     = "CONCURRENT_BATCH_CONFLICT"
	CodeUpstreamUnavailable = "UPSTREAM_FEED_UNAVAILABLE"
	CodeCancelled           = "CANCELLED_BY_CALLER"
	CodeInternal            = "INTERNAL_ERROR"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "resource not found")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "resource was modified by another process")
)

// CodeOf returns the domain code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
