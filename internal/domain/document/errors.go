package document

import "errors"

var (
	// ErrValidation is returned when an input is malformed or a required
	// field is missing (e.g. rejection without a reason)
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a guard fails: wrong source
	// state or an incomplete approval chain
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnauthorized is returned when the actor lacks the capability for
	// the requested action
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNotFound is returned when the referenced record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional update loses a race with
	// a concurrent transition; callers should re-read and retry
	ErrConflict = errors.New("concurrent modification conflict")
)
