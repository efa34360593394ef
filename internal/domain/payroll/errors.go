package payroll

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrOverlap    = errors.New("payroll period overlaps an existing period")
	ErrNotFound   = errors.New("not found")
	ErrRunFailed  = errors.New("payroll run failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type OverlapError struct {
	OrganizationID string
	ConflictingID  string
}

func (e *OverlapError) Error() string {
	if e.ConflictingID == "" {
		return ErrOverlap.Error()
	}
	return fmt.Sprintf("%s (conflicts with period %s)", ErrOverlap.Error(), e.ConflictingID)
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrOverlap
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RunError is a failure inside the run transaction, after the period was
// locked. The cause stays reachable for logging but callers should report it
// as ErrRunFailed, whatever domain error it wraps.
type RunError struct {
	PeriodID string
	Step     string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("payroll run for period %s: %s: %v", e.PeriodID, e.Step, e.Err)
}

func (e *RunError) Is(target error) bool {
	return target == ErrRunFailed
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
