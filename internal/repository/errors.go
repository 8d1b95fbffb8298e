package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located or is owned by another user.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint violation, e.g. a duplicate email.
	ErrConflict = errors.New("repository: conflict")
)
