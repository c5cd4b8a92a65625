package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Defaults for the multi-statement transactions (bill upserts racing with
// corpus reloads, discovery inserts racing on shared indexes).
const (
	txRetryAttempts  = 3
	txRetryBaseDelay = 10 * time.Millisecond
)

// isRetriable reports whether err is a transient Postgres conflict that
// resolves on replay: serialization_failure (40001) or deadlock_detected
// (40P01).
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// WithRetry runs fn, replaying it on transient conflict errors with
// jittered exponential backoff starting at baseDelay. Non-retriable
// errors, and the last conflict once maxRetries is exhausted, are
// returned unchanged.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // backoff jitter, not security-sensitive
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}
