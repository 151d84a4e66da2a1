package match

import "errors"

var (
	// ErrNotFound is returned for an unknown access code, player or answer.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for a duplicate access code, player name or score update.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState is returned when an operation does not fit the current match state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized is returned for an administrative call with a wrong secret.
	ErrUnauthorized = errors.New("unauthorized")
)
