package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the ledger, the borrowing manager and the API.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("validation error")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Err returns nil when no field error was collected.
func (e *ValidationError) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// OutOfStockError is returned when a delta would drive stock below zero.
type OutOfStockError struct {
	ItemID    string
	Available int
	Delta     int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: item %s has %d, delta %d", e.ItemID, e.Available, e.Delta)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// Skip reasons reported by the reconciler.
const (
	SkipNoMatch         = "no_matching_item"
	SkipAmbiguous       = "ambiguous_product_code"
	SkipAlreadyObserved = "already_observed"
	SkipAlreadyApplied  = "already_applied"
	SkipMarkerFailed    = "marker_unavailable"
	SkipMalformed       = "malformed_movement"
	SkipApplyFailed     = "apply_failed"
)

// ReconciliationSkipped records a movement the reconciler dropped.
// It is only ever logged.
type ReconciliationSkipped struct {
	MovementID  string
	ProductCode string
	Reason      string
	Cause       error
}

func (e *ReconciliationSkipped) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("movement %s (%s) skipped: %s: %v", e.MovementID, e.ProductCode, e.Reason, e.Cause)
	}
	return fmt.Sprintf("movement %s (%s) skipped: %s", e.MovementID, e.ProductCode, e.Reason)
}

func (e *ReconciliationSkipped) Unwrap() error { return e.Cause }
