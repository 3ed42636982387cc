// Package apperr defines the sentinel errors shared across the service layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidPath is returned for vault paths that are absolute or
	// escape the vault root.
	ErrInvalidPath = errors.New("invalid path")

	// ErrLockTimeout is returned when a file lock cannot be acquired
	// before the caller's context expires.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNotLockOwner is returned when a caller releases a lock it does not hold.
	ErrNotLockOwner = errors.New("not lock owner")

	// ErrTxDone is returned when a committed or rolled-back transaction is reused.
	ErrTxDone = errors.New("transaction already finished")
)
