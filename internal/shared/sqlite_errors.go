// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

// codedError is satisfied by *sqlite.Error from modernc.org/sqlite.
type codedError interface {
	Code() int
}

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	return hasPrimaryCode(err, sqlite3.SQLITE_BUSY) || containsText(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	return hasPrimaryCode(err, sqlite3.SQLITE_LOCKED) || containsText(err, "database is locked")
}

// IsSQLiteConflictError reports either form of SQLite lock contention.
// Both usually warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

func hasPrimaryCode(err error, code int) bool {
	var coded codedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code()&0xff == code
}

func containsText(err error, text string) bool {
	return err != nil && strings.Contains(err.Error(), text)
}
