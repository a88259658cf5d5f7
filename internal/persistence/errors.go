package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrCorruptDocument is returned when a persisted document cannot be
	// decoded. Callers are expected to log it and continue with an empty
	// document rather than abort startup.
	ErrCorruptDocument = errors.New("persistence: corrupt document")
)
