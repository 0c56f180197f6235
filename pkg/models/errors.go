package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FieldError names one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed input, such as a negative amount, that
// must be rejected before it reaches balance arithmetic or storage.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// Add appends a field failure.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns e when it holds at least one failure and nil otherwise, so
// callers can accumulate failures and return the result directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// MismatchedLoanError is returned when a payment is applied to a loan it does
// not belong to. It is always a caller bug.
type MismatchedLoanError struct {
	LoanID        uuid.UUID
	PaymentLoanID uuid.UUID
}

func (e *MismatchedLoanError) Error() string {
	return fmt.Sprintf("payment belongs to loan %s, not loan %s", e.PaymentLoanID, e.LoanID)
}
