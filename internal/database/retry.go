package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"watgbridge/internal/constants"
	apperrors "watgbridge/internal/errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// writeWithRetry runs one write against the mapping tables, retrying
// transient SQLite failures with a linear backoff. Mapping writes ride the
// relay hot path, so contention with the cleanup scheduler must not surface
// as a lost binding.
func writeWithRetry(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return apperrors.NewDatabaseError(operationName, err)
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > time.Duration(constants.DefaultMaxBackoffMs)*time.Millisecond {
			backoff = time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return apperrors.NewDatabaseError(operationName, lastErr)
}

// isRetryableDBError reports whether a mapping write is worth retrying.
// Lock contention and transient I/O are; constraint and schema errors
// never resolve on their own.
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return true
		}
		return false
	}

	// Driver errors sometimes arrive flattened into plain strings.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "disk I/O error")
}
