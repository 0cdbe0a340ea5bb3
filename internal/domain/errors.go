package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrAccountNotFound         = errors.New("ledger account not found")
	ErrAccountLocked           = errors.New("ledger account locked")
	ErrInsufficientBudget      = errors.New("insufficient budget")
	ErrRetryLater              = errors.New("ledger account busy, retry later")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrInvariantViolation      = errors.New("ledger balance invariant violated")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrRequestNotEditable      = errors.New("budget request is not editable")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrForbidden               = errors.New("forbidden")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// InsufficientBudgetError is the expected business outcome of a reserve that
// asks for more than the account has left. It carries both figures so callers
// can show them.
type InsufficientBudgetError struct {
	RequiredBudget  int64
	AvailableBudget int64
	RequiredQty     int64
	AvailableQty    int64
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient budget: required %d (qty %d), available %d (qty %d)",
		e.RequiredBudget, e.RequiredQty, e.AvailableBudget, e.AvailableQty)
}

func (e *InsufficientBudgetError) Is(target error) bool {
	return target == ErrInsufficientBudget
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every malformed field of an input. It is raised before
// any account is touched.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Fields[0].Field, e.Fields[0].Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a field error and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
