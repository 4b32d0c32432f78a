// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/skywatch/internal/models"
)

// MarkBackfillStarted records that a temporary backfill for userDID is in
// flight: last_started_at = now, last_completed_at = NULL.
func (db *DB) MarkBackfillStarted(ctx context.Context, userDID string) error {
	return db.withRetry(ctx, "mark_backfill_started", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		now := time.Now().UTC()
		query := `INSERT INTO monitoring_backfill_state (user_did, last_started_at, last_completed_at, updated_at)
			VALUES (?, ?, NULL, ?)
			ON CONFLICT (user_did) DO UPDATE SET
				last_started_at = excluded.last_started_at,
				last_completed_at = NULL,
				updated_at = excluded.updated_at`
		if _, err := db.conn.ExecContext(ctx, query, userDID, now, now); err != nil {
			return fmt.Errorf("failed to mark backfill started: %w", err)
		}
		return nil
	})
}

// MarkBackfillCompleted records backfill completion for userDID.
func (db *DB) MarkBackfillCompleted(ctx context.Context, userDID string) error {
	return db.withRetry(ctx, "mark_backfill_completed", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		now := time.Now().UTC()
		query := `INSERT INTO monitoring_backfill_state (user_did, last_started_at, last_completed_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_did) DO UPDATE SET
				last_completed_at = excluded.last_completed_at,
				updated_at = excluded.updated_at`
		if _, err := db.conn.ExecContext(ctx, query, userDID, now, now, now); err != nil {
			return fmt.Errorf("failed to mark backfill completed: %w", err)
		}
		return nil
	})
}

// GetBackfillState returns the backfill state for one user, or ErrNotFound.
func (db *DB) GetBackfillState(ctx context.Context, userDID string) (*models.BackfillState, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT user_did, last_started_at, last_completed_at, updated_at
		FROM monitoring_backfill_state WHERE user_did = ?`, userDID)
	return scanBackfillState(row)
}

// ListBackfillStates returns all per-user backfill rows.
func (db *DB) ListBackfillStates(ctx context.Context) ([]models.BackfillState, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_did, last_started_at, last_completed_at, updated_at
		FROM monitoring_backfill_state ORDER BY user_did`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill states: %w", err)
	}
	defer closeQuietly(rows)

	var states []models.BackfillState
	for rows.Next() {
		s, err := scanBackfillState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

// ListIncompleteBackfills returns users whose most recent backfill was
// started but never completed: last_started_at set, last_completed_at NULL
// or earlier than the start. The boot-time auto-restart scan uses this.
func (db *DB) ListIncompleteBackfills(ctx context.Context) ([]models.BackfillState, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_did, last_started_at, last_completed_at, updated_at
		FROM monitoring_backfill_state
		WHERE last_started_at IS NOT NULL
		AND (last_completed_at IS NULL OR last_completed_at < last_started_at)
		ORDER BY last_started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete backfills: %w", err)
	}
	defer closeQuietly(rows)

	var states []models.BackfillState
	for rows.Next() {
		s, err := scanBackfillState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

func scanBackfillState(row rowScanner) (*models.BackfillState, error) {
	s := &models.BackfillState{}
	var started, completed sql.NullTime
	err := row.Scan(&s.UserDID, &started, &completed, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backfill state: %w", err)
	}
	if started.Valid {
		s.LastStartedAt = &started.Time
	}
	if completed.Valid {
		s.LastCompletedAt = &completed.Time
	}
	return s, nil
}
