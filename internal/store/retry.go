package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/parla/internal/shared"
)

const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// withRetry runs fn, retrying with exponential backoff while SQLite reports
// a busy or locked database.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == writeMaxRetries-1 {
			break
		}

		delay := writeRetryBaseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, writeMaxRetries, err)
}
