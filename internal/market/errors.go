package market

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrVersionConflict is returned by stores when expectedVersion is stale.
	// Callers re-read and retry; it never leaves the coordinator.
	ErrVersionConflict = errors.New("version conflict")

	// ErrConcurrentModification is the retryable error surfaced when the
	// retry budget is exhausted under contention. Resubmitting is safe.
	ErrConcurrentModification = errors.New("concurrent modification, retry")
)

// Retryable reports whether the caller may safely resubmit the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
