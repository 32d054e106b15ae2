// Package common defines shared constants and sentinel errors used across
// the store, sync and backup layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote-side errors.
	ErrUnavailable   = errors.New("remote unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("already exists")
	ErrTokenExpired  = errors.New("token expired")

	// Local control data could not be read back (backup history, pointers).
	ErrStorageCorruption = errors.New("storage corruption")

	// Another process holds the local database.
	ErrLocked = errors.New("local store locked by another process")

	// A blocking sync finished with at least one failed item or table.
	ErrSyncIncomplete = errors.New("sync incomplete")
)
