// Package storage persists the video catalog as a single JSON document.
package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrCorruptCatalog indicates the catalog file exists but cannot be parsed
	// into a list of video records.
	ErrCorruptCatalog = errors.New("storage: corrupt catalog")
	// ErrLockTimeout indicates a timeout acquiring the catalog file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
	// ErrClosed indicates the store was used after Close.
	ErrClosed = errors.New("storage: store closed")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "lock").
	Op string
	// Entity is the entity type ("catalog", "lock").
	Entity string
	// ID is the file path or record reference if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err signals an unreadable catalog file.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptCatalog)
}
