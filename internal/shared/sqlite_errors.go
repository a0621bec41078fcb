// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports either form of SQLite write contention.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// Retry limits for RetryOnConflict.
const (
	ConflictAttempts = 5
	ConflictBackoff  = 20 * time.Millisecond
)

// RetryOnConflict runs fn until it succeeds, fails with a non-conflict error,
// ctx ends, or ConflictAttempts is reached. The wait doubles after each
// conflict.
func RetryOnConflict(ctx context.Context, fn func() error) error {
	wait := ConflictBackoff
	var err error
	for attempt := 0; attempt < ConflictAttempts; attempt++ {
		if err = fn(); !IsSQLiteConflictError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
