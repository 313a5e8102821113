// Package apperr defines the error taxonomy shared by the custody state
// machine, the session coordinator and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidTransition is returned when a state machine operation is
	// attempted from an incompatible state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")

	// ErrNotEligibleForIncinerationHandoff is returned when the coordinator
	// preconditions for a driver to incinerator handoff are not met.
	ErrNotEligibleForIncinerationHandoff = errors.New("not eligible for incineration handoff")

	// ErrHandoffAlreadyFinalized is returned when a completed or resolved
	// handoff is mutated.
	ErrHandoffAlreadyFinalized = errors.New("handoff already finalized")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExternalProviderUnavailable marks routing provider failures. It is
	// recovered locally and never reaches a caller of the route planner.
	ErrExternalProviderUnavailable = errors.New("external provider unavailable")

	// ErrConflict is returned when a write would break a uniqueness rule,
	// such as a second active session for one driver.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the actor may not act on the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired is a validation failure for a confirmation token whose
	// expiry has passed.
	ErrTokenExpired = &ValidationError{Field: "token", Message: "confirmation token has expired"}
)

// ValidationError is a field-scoped validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the kind and id that was looked up.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Field returns the offending field of a validation error, if any.
func Field(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}

// HTTPStatus maps an error from the taxonomy to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrHandoffAlreadyFinalized),
		errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotEligibleForIncinerationHandoff):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
