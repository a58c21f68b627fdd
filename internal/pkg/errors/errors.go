package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyInput marks unreadable or empty document text. Fatal for
	// the processing attempt, never retried automatically.
	ErrEmptyInput = errors.New("empty document input")
	// ErrServiceUnavailable marks a transient failure of an external
	// capability (embedding, extraction, vector index). Eligible for
	// bounded retry with backoff.
	ErrServiceUnavailable = errors.New("external service unavailable")
	// ErrValidation marks an extracted value that violates a field
	// invariant. The field is nulled and processing continues.
	ErrValidation = errors.New("validation failure")
	// ErrQuotaExceeded marks a rate-limiter rejection. Not an error
	// state for the system, just a rejected request.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// IsRecoverable reports whether the error is worth retrying against
// the same external service.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
