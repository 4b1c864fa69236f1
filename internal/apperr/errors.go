// Package apperr defines the error kinds returned by the kiosk engine.
// Services wrap these sentinels with context; transports map them to status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown kiosk, session, or handoff token.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed input such as an out-of-range slot.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidReference is returned when a referenced record (e.g. the kiosk of a new session) does not exist.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidState is returned when the operation is illegal in the record's lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrExpired is returned when a handoff is past its TTL.
	ErrExpired = errors.New("expired")
	// ErrAlreadyCompleted is returned to the loser of a handoff completion race.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrStorageUnavailable is returned when the durable store failed after retries.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// kinds lists every sentinel; errors wrapping one of them are never retried.
var kinds = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrInvalidReference,
	ErrInvalidState,
	ErrExpired,
	ErrAlreadyCompleted,
	ErrStorageUnavailable,
}

// IsDomain reports whether err wraps one of the engine's error kinds.
func IsDomain(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Wrap annotates kind with a formatted message, preserving errors.Is(kind).
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
