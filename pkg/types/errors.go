package types

import (
	"errors"
	"fmt"
)

// ValidationError represents an error that occurs during validation.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WrapValidationError wraps an error with additional context.
func WrapValidationError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	message := fmt.Sprintf(format, args...)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{
			Message: fmt.Sprintf("%s: %s", message, ve.Message),
		}
	}

	return &ValidationError{
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}

var (
	// ErrRuntimeUnavailable means the container runtime binary is not installed.
	ErrRuntimeUnavailable = errors.New("container runtime not installed")

	// ErrDaemonUnreachable means the runtime is installed but its daemon does not answer.
	ErrDaemonUnreachable = errors.New("container runtime daemon not reachable")

	// ErrReadinessTimeout means a started service never reported ready in time.
	ErrReadinessTimeout = errors.New("service did not become ready before timeout")

	// ErrServiceNotFound means no container matched the exact service identity.
	ErrServiceNotFound = errors.New("service container not found")

	// ErrInvalidTransition is returned when a deployment state change is not allowed.
	ErrInvalidTransition = errors.New("invalid deployment state transition")
)
