package completion

import (
	"context"
	"errors"
	"fmt"
)

// ServiceError is a transport or provider failure. Message is the text
// surfaced to the user.
type ServiceError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// AsServiceError extracts a *ServiceError from err.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// serviceError wraps err as a *ServiceError for provider. Context errors and
// errors that already are service errors pass through unchanged.
func serviceError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := AsServiceError(err); ok {
		return err
	}
	return &ServiceError{Provider: provider, Message: err.Error(), Err: err}
}

func blockedError(provider, reason string) error {
	return &ServiceError{
		Provider: provider,
		Message:  fmt.Sprintf("generation blocked: %s", reason),
	}
}
