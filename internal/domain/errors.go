// Package domain defines shared domain types, errors, and repositories.
package domain

import "errors"

var (
	// ErrAccessDenied marks a failed membership check or a non-admin caller.
	ErrAccessDenied = errors.New("access denied")
	// ErrLookupFailed marks a failed or timed out call to an external service.
	ErrLookupFailed = errors.New("external lookup failed")
	// ErrValidation marks a missing or malformed command argument.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a failed storage write.
	ErrPersistence = errors.New("persistence failed")
)
