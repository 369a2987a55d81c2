package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrProjectNotFound   = fmt.Errorf("project %w", ErrNotFound)
	ErrNotAuthorized     = errors.New("not authorized")
	ErrValidation        = errors.New("validation error")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrTransient         = errors.New("transient io error")
)

// Stable reason strings sent to clients in message-error events.
const (
	ReasonNotFound          = "not_found"
	ReasonProjectNotFound   = "project_not_found"
	ReasonNotAuthorized     = "not_authorized"
	ReasonValidation        = "validation_error"
	ReasonEditWindowExpired = "edit_window_expired"
	ReasonTransient         = "transient_io_error"
)

// Reason maps an error to its machine readable reason. Unknown errors are
// reported as transient so internals never reach the client.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		return ReasonProjectNotFound
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrNotAuthorized):
		return ReasonNotAuthorized
	case errors.Is(err, ErrValidation):
		return ReasonValidation
	case errors.Is(err, ErrEditWindowExpired):
		return ReasonEditWindowExpired
	default:
		return ReasonTransient
	}
}

// Transient wraps a collaborator failure that is not a domain error.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}

// Invalid builds a validation error with a human readable detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
