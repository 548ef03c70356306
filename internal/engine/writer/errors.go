package writer

import "errors"

// Error taxonomy for write operations. Validation and not-found errors are
// recoverable and never retried; transport errors are surfaced without an
// automatic retry so the caller decides whether to resubmit; authorization
// errors are fatal to the operation.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("entity not found")
	ErrTransport    = errors.New("store call failed")
	ErrUnauthorized = errors.New("write requires an authenticated principal")
)

// Classify names the error class for metrics labels.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case err != nil:
		return "transport"
	default:
		return "none"
	}
}
