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

	"github.com/google/uuid"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

const changeColumns = `id, did, handle, old_handle, new_handle,
	old_display_name, new_display_name, old_avatar, new_avatar,
	change_type, changed_at, created_at`

// IsIgnored reports whether did is on the ignore list.
func (db *DB) IsIgnored(ctx context.Context, did string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stmt, err := db.preparedStmt(ctx, `SELECT 1 FROM ignored_users WHERE did = ?`)
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRowContext(ctx, did).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ignore list: %w", err)
	}
	return true, nil
}

// FindDuplicateChange returns the stored row matching the candidate on
// (did, old_display_name, new_display_name, old_avatar, new_avatar,
// old_handle, new_handle), or nil when no such row exists.
//
// IS NOT DISTINCT FROM gives the null-equal comparison the uniqueness
// predicate requires: two NULLs match, NULL never matches a value.
func (db *DB) FindDuplicateChange(ctx context.Context, candidate *models.ProfileChange) (*models.ProfileChange, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + changeColumns + ` FROM profile_changes
		WHERE did = ?
		AND old_display_name IS NOT DISTINCT FROM ?
		AND new_display_name IS NOT DISTINCT FROM ?
		AND old_avatar IS NOT DISTINCT FROM ?
		AND new_avatar IS NOT DISTINCT FROM ?
		AND old_handle IS NOT DISTINCT FROM ?
		AND new_handle IS NOT DISTINCT FROM ?
		ORDER BY created_at
		LIMIT 1`

	stmt, err := db.preparedStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	row := stmt.QueryRowContext(ctx, candidate.DID,
		candidate.OldDisplayName, candidate.NewDisplayName,
		candidate.OldAvatar, candidate.NewAvatar,
		candidate.OldHandle, candidate.NewHandle)

	existing, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to probe for duplicate change: %w", err)
	}
	return existing, nil
}

// InsertChange performs the idempotent change insert: ignore-list check,
// duplicate probe and write happen inside the same logical call.
//
// Two concurrent inserts with identical content may both pass the duplicate
// probe and both insert; callers accept this worst case and RecentChanges
// hides it on read.
func (db *DB) InsertChange(ctx context.Context, candidate *models.ProfileChange) (*models.InsertResult, error) {
	var result *models.InsertResult

	err := db.withRetry(ctx, "insert_change", func() error {
		var err error
		result, err = db.insertChangeOnce(ctx, candidate)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case models.InsertOutcomeInserted:
		metrics.ChangesInserted.WithLabelValues(result.Row.ChangeType).Inc()
	case models.InsertOutcomeDuplicate:
		metrics.ChangesDuplicate.Inc()
	case models.InsertOutcomeIgnored:
		metrics.ChangesIgnored.Inc()
	}
	return result, nil
}

func (db *DB) insertChangeOnce(ctx context.Context, candidate *models.ProfileChange) (*models.InsertResult, error) {
	ignored, err := db.IsIgnored(ctx, candidate.DID)
	if err != nil {
		return nil, err
	}
	if ignored {
		logging.Debug().Str("did", candidate.DID).Msg("change suppressed by ignore list")
		return &models.InsertResult{Outcome: models.InsertOutcomeIgnored}, nil
	}

	existing, err := db.FindDuplicateChange(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &models.InsertResult{Outcome: models.InsertOutcomeDuplicate, Row: existing}, nil
	}

	row := *candidate
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ChangedAt.IsZero() {
		row.ChangedAt = time.Now().UTC()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.ChangeType = classifyChange(&row)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `INSERT INTO profile_changes (` + changeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.conn.ExecContext(ctx, query,
		row.ID, row.DID, row.Handle, row.OldHandle, row.NewHandle,
		row.OldDisplayName, row.NewDisplayName, row.OldAvatar, row.NewAvatar,
		row.ChangeType, row.ChangedAt, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert change: %w", err)
	}

	return &models.InsertResult{Outcome: models.InsertOutcomeInserted, Row: &row}, nil
}

// classifyChange assigns the change_type column:
// combined when both a handle transition (both sides non-empty) and any
// profile-field transition are present, handle when only the handle moved,
// profile otherwise.
func classifyChange(c *models.ProfileChange) string {
	handleTransition := c.HasHandleTransition()
	profileTransition := c.HasProfileTransition()

	switch {
	case handleTransition && profileTransition:
		return models.ChangeTypeCombined
	case handleTransition:
		return models.ChangeTypeHandle
	default:
		return models.ChangeTypeProfile
	}
}

// LastKnownHandle returns the most recent non-null new_handle (falling back
// to the handle column) recorded for did, or "" when nothing is known.
func (db *DB) LastKnownHandle(ctx context.Context, did string) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT COALESCE(new_handle, handle) FROM profile_changes
		WHERE did = ? AND (new_handle IS NOT NULL OR handle IS NOT NULL)
		ORDER BY changed_at DESC
		LIMIT 1`

	stmt, err := db.preparedStmt(ctx, query)
	if err != nil {
		return "", err
	}

	var handle sql.NullString
	err = stmt.QueryRowContext(ctx, did).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last known handle: %w", err)
	}
	return handle.String, nil
}

// RecentChanges returns the newest change rows, hiding the rare concurrent
// duplicates InsertChange allows: rows identical on the six-tuple collapse
// to the earliest-created one.
func (db *DB) RecentChanges(ctx context.Context, limit, offset int) ([]models.ProfileChange, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + changeColumns + ` FROM profile_changes
		QUALIFY row_number() OVER (
			PARTITION BY did, old_handle, new_handle,
				old_display_name, new_display_name, old_avatar, new_avatar
			ORDER BY created_at
		) = 1
		ORDER BY changed_at DESC
		LIMIT ? OFFSET ?`

	rows, err := db.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent changes: %w", err)
	}
	defer closeQuietly(rows)

	var changes []models.ProfileChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *c)
	}
	return changes, rows.Err()
}

// ChangesForDID returns all change rows for one DID, newest first.
func (db *DB) ChangesForDID(ctx context.Context, did string, limit int) ([]models.ProfileChange, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + changeColumns + ` FROM profile_changes
		WHERE did = ? ORDER BY changed_at DESC LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, did, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes for did: %w", err)
	}
	defer closeQuietly(rows)

	var changes []models.ProfileChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *c)
	}
	return changes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (*models.ProfileChange, error) {
	c := &models.ProfileChange{}
	err := row.Scan(
		&c.ID, &c.DID, &c.Handle, &c.OldHandle, &c.NewHandle,
		&c.OldDisplayName, &c.NewDisplayName, &c.OldAvatar, &c.NewAvatar,
		&c.ChangeType, &c.ChangedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
