// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks caller mistakes that no retry will fix.
var ErrInvalidInput = errors.New("invalid input")

// ErrEmptySymbols is returned when a symbol set is empty after normalization.
var ErrEmptySymbols = fmt.Errorf("%w: symbol set is empty", ErrInvalidInput)

// ValidationError describes a payload that decoded but breaks a model invariant.
// Field is a path such as "positions[2].shares".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
