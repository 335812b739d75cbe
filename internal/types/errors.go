package types

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when an operation references an unknown
	// order ID. It is an expected outcome of concurrent cancellation races
	// and should not be treated as fatal.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidStateTransition is returned on an attempt to mutate an
	// order that is already in a terminal state.
	ErrInvalidStateTransition = errors.New("invalid order state transition")
)

// ValidationError indicates malformed caller input, such as a non-positive
// quantity or a fill exceeding the remaining unfilled amount.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
