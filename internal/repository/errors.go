package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a requested line or rule does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrStorageUnavailable maps to a configuration-level failure: rule
	// storage unreachable or malformed. Fatal for the current operation.
	ErrStorageUnavailable = errors.New("rule storage unavailable")
	// ErrInvalidInput is returned for malformed administrative input
	ErrInvalidInput = errors.New("invalid input")
)
