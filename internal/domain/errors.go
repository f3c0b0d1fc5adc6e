package domain

import "errors"

// Sentinel errors for the persist backend.
// Use errors.Is to check: errors.Is(err, domain.ErrNotFound)
var (
	// ErrNotFound means a card id did not resolve to a stored card.
	ErrNotFound = errors.New("persist: card not found")
	// ErrValidation means a request payload was malformed.
	ErrValidation = errors.New("persist: invalid payload")
	// ErrConflict means a concurrent write was detected by the store's
	// version check and the mutation was not applied.
	ErrConflict = errors.New("persist: concurrent write conflict")
	// ErrStoreUnavailable means the persistence layer failed at the I/O
	// level. Mutations wrapped in it were not applied and may be retried.
	ErrStoreUnavailable = errors.New("persist: store unavailable")
)
