// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
)

// withRetry executes fn with exponential backoff on retryable failures.
// The delay starts at cfg.RetryDelay and doubles per attempt, so with the
// defaults a failing operation is attempted at 0ms, 200ms and 600ms.
//
// Non-retryable errors (constraint violations, bad SQL) surface
// immediately. If the context is canceled during a backoff wait, the
// context error is returned.
func (db *DB) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	delay := db.cfg.RetryDelay

	for attempt := 0; attempt < db.cfg.RetryAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}

		if attempt < db.cfg.RetryAttempts-1 {
			metrics.DBRetries.WithLabelValues(operation).Inc()
			logging.Warn().
				Err(err).
				Str("operation", operation).
				Int("attempt", attempt+1).
				Int("max_attempts", db.cfg.RetryAttempts).
				Dur("delay", delay).
				Msg("retrying database operation")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s: max retry attempts reached: %w", operation, err)
}
