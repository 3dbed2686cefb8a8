package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a definition, instance, movement,
	// gate, or completion id is unknown
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with existing state:
	// an active flow already exists for the claim, the movement is
	// already completed, or the instance is terminal
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input, such as a missing
	// skip reason or an invalid definition
	ErrValidation = errors.New("validation failed")

	// ErrOutOfOrder is returned when an operation targets a movement or
	// phase other than the instance's current phase
	ErrOutOfOrder = errors.New("out of order")

	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// ValidationError carries the full violation list alongside the
// ErrValidation sentinel so callers can report every problem at once
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %d violation(s)", ErrValidation, len(e.Violations))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError wraps a non-empty violation list
func NewValidationError(violations []Violation) error {
	return &ValidationError{Violations: violations}
}
