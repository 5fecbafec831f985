package models

import "errors"

var (
	// ErrInvalidInput marks a contract violation by the caller (corrupt bars, mismatched inputs).
	ErrInvalidInput = errors.New("invalid input")
	// ErrIndexOutOfRange marks an index outside the supplied series.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrTransitionNotAllowed is returned when a phase transition is requested from the wrong state.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
