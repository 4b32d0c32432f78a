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

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/models"
)

const followColumns = `user_did, follow_did, follow_handle, rkey, added_at`

// UpsertFollow inserts or refreshes one (user, follow) pair. The rkey and
// handle columns take the incoming values; added_at is preserved for an
// existing row.
func (db *DB) UpsertFollow(ctx context.Context, f *models.MonitoredFollow) error {
	return db.withRetry(ctx, "upsert_follow", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		addedAt := f.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now().UTC()
		}

		query := `INSERT INTO monitored_follows (` + followColumns + `)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_did, follow_did) DO UPDATE SET
				follow_handle = excluded.follow_handle,
				rkey = excluded.rkey`
		if _, err := db.conn.ExecContext(ctx, query,
			f.UserDID, f.FollowDID, nullIfEmpty(f.FollowHandle), f.RKey, addedAt); err != nil {
			return fmt.Errorf("failed to upsert follow: %w", err)
		}
		return nil
	})
}

// GetFollow returns the (user, follow) pair, or ErrNotFound.
func (db *DB) GetFollow(ctx context.Context, userDID, followDID string) (*models.MonitoredFollow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+followColumns+` FROM monitored_follows WHERE user_did = ? AND follow_did = ?`,
		userDID, followDID)
	return scanFollow(row)
}

// FindFollowByRKey looks a follow up by its repo record key. Unfollow
// events carry only the rkey, so this is the delete path's lookup.
func (db *DB) FindFollowByRKey(ctx context.Context, userDID, rkey string) (*models.MonitoredFollow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+followColumns+` FROM monitored_follows WHERE user_did = ? AND rkey = ?`,
		userDID, rkey)
	return scanFollow(row)
}

// DeleteFollow removes one (user, follow) pair.
func (db *DB) DeleteFollow(ctx context.Context, userDID, followDID string) error {
	return db.withRetry(ctx, "delete_follow", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		if _, err := db.conn.ExecContext(ctx,
			`DELETE FROM monitored_follows WHERE user_did = ? AND follow_did = ?`,
			userDID, followDID); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		return nil
	})
}

// ListFollowsForUser returns all follows of one monitoring user.
func (db *DB) ListFollowsForUser(ctx context.Context, userDID string) ([]models.MonitoredFollow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+followColumns+` FROM monitored_follows WHERE user_did = ? ORDER BY added_at`,
		userDID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	defer closeQuietly(rows)
	return collectFollows(rows)
}

// CountFollowsForUser returns the monitored-follow count for one user.
func (db *DB) CountFollowsForUser(ctx context.Context, userDID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitored_follows WHERE user_did = ?`, userDID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count follows: %w", err)
	}
	return count, nil
}

// IsFollowedByAnyUser reports whether any monitoring user still follows
// followDID. The unfollow path uses this to skip needless DID-set
// reconciles.
func (db *DB) IsFollowedByAnyUser(ctx context.Context, followDID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM monitored_follows WHERE follow_did = ? LIMIT 1`, followDID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check follow subject: %w", err)
	}
	return true, nil
}

// ListMonitoringUserDIDs returns the distinct set of monitoring users.
func (db *DB) ListMonitoringUserDIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_did FROM monitored_follows ORDER BY user_did`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitoring users: %w", err)
	}
	defer closeQuietly(rows)

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, err
		}
		dids = append(dids, did)
	}
	return dids, rows.Err()
}

// ListMonitoredFollowDIDs returns the distinct set of follow subjects
// across all monitoring users.
func (db *DB) ListMonitoredFollowDIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT follow_did FROM monitored_follows ORDER BY follow_did`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored follow dids: %w", err)
	}
	defer closeQuietly(rows)

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, err
		}
		dids = append(dids, did)
	}
	return dids, rows.Err()
}

// ReconcileFollowsForUser brings the persisted follow set for one user in
// line with the authoritative list from the follow-graph API, in a single
// transaction: new pairs are inserted, absent pairs deleted, changed
// handles and rkeys updated. Returns (added, removed, updated).
func (db *DB) ReconcileFollowsForUser(ctx context.Context, userDID string, authoritative []models.MonitoredFollow) (added, removed, updated int, err error) {
	err = db.withRetry(ctx, "reconcile_follows", func() error {
		added, removed, updated = 0, 0, 0

		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		existing, err := db.ListFollowsForUser(ctx, userDID)
		if err != nil {
			return err
		}
		existingByDID := make(map[string]models.MonitoredFollow, len(existing))
		for _, f := range existing {
			existingByDID[f.FollowDID] = f
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin follow reconcile: %w", err)
		}
		defer rollbackQuietly(tx)

		now := time.Now().UTC()
		seen := make(map[string]bool, len(authoritative))
		for _, f := range authoritative {
			seen[f.FollowDID] = true
			prev, ok := existingByDID[f.FollowDID]
			if !ok {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO monitored_follows (`+followColumns+`) VALUES (?, ?, ?, ?, ?)`,
					userDID, f.FollowDID, nullIfEmpty(f.FollowHandle), f.RKey, now); err != nil {
					return fmt.Errorf("failed to insert follow during reconcile: %w", err)
				}
				added++
				continue
			}

			// The follow-graph API carries no rkeys; empty incoming
			// fields keep the stored value.
			handle := f.FollowHandle
			if handle == "" {
				handle = prev.FollowHandle
			}
			rkey := f.RKey
			if rkey == "" {
				rkey = prev.RKey
			}
			if handle != prev.FollowHandle || rkey != prev.RKey {
				if _, err := tx.ExecContext(ctx,
					`UPDATE monitored_follows SET follow_handle = ?, rkey = ? WHERE user_did = ? AND follow_did = ?`,
					nullIfEmpty(handle), rkey, userDID, f.FollowDID); err != nil {
					return fmt.Errorf("failed to update follow during reconcile: %w", err)
				}
				updated++
			}
		}

		for did := range existingByDID {
			if !seen[did] {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM monitored_follows WHERE user_did = ? AND follow_did = ?`,
					userDID, did); err != nil {
					return fmt.Errorf("failed to delete follow during reconcile: %w", err)
				}
				removed++
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit follow reconcile: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}

	if added > 0 || removed > 0 || updated > 0 {
		logging.Info().
			Str("user_did", userDID).
			Int("added", added).
			Int("removed", removed).
			Int("updated", updated).
			Msg("follow set reconciled")
	}
	return added, removed, updated, nil
}

// PurgeUser removes everything persisted for one monitoring user: follows
// and backfill state, in one transaction. Change rows are keyed by subject
// DID and stay.
func (db *DB) PurgeUser(ctx context.Context, userDID string) error {
	return db.withRetry(ctx, "purge_user", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin user purge: %w", err)
		}
		defer rollbackQuietly(tx)

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM monitored_follows WHERE user_did = ?`, userDID); err != nil {
			return fmt.Errorf("failed to purge follows: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM monitoring_backfill_state WHERE user_did = ?`, userDID); err != nil {
			return fmt.Errorf("failed to purge backfill state: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit user purge: %w", err)
		}
		return nil
	})
}

func scanFollow(row rowScanner) (*models.MonitoredFollow, error) {
	f := &models.MonitoredFollow{}
	var handle sql.NullString
	err := row.Scan(&f.UserDID, &f.FollowDID, &handle, &f.RKey, &f.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan follow: %w", err)
	}
	f.FollowHandle = handle.String
	return f, nil
}

func collectFollows(rows *sql.Rows) ([]models.MonitoredFollow, error) {
	var follows []models.MonitoredFollow
	for rows.Next() {
		f, err := scanFollow(rows)
		if err != nil {
			return nil, err
		}
		follows = append(follows, *f)
	}
	return follows, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
