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
	"github.com/tomtom215/skywatch/internal/models"
)

// AddIgnoredDID puts did on the ignore list and removes its existing
// change rows in the same transaction, so the invariant "no change rows
// for an ignored DID" holds from the moment the transaction commits.
func (db *DB) AddIgnoredDID(ctx context.Context, did string) error {
	return db.withRetry(ctx, "add_ignored_did", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin ignore transaction: %w", err)
		}
		defer rollbackQuietly(tx)

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ignored_users (did, added_at) VALUES (?, ?)`,
			did, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to insert ignored did: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM profile_changes WHERE did = ?`, did)
		if err != nil {
			return fmt.Errorf("failed to delete changes for ignored did: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit ignore transaction: %w", err)
		}

		if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
			logging.Info().Str("did", did).Int64("deleted_changes", deleted).Msg("ignored did, purged existing changes")
		}
		return nil
	})
}

// RemoveIgnoredDID takes did off the ignore list.
func (db *DB) RemoveIgnoredDID(ctx context.Context, did string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM ignored_users WHERE did = ?`, did); err != nil {
		return fmt.Errorf("failed to remove ignored did: %w", err)
	}
	return nil
}

// ListIgnoredDIDs returns the full ignore list.
func (db *DB) ListIgnoredDIDs(ctx context.Context) ([]models.IgnoredDID, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT did, added_at FROM ignored_users ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ignored dids: %w", err)
	}
	defer closeQuietly(rows)

	var ignored []models.IgnoredDID
	for rows.Next() {
		var i models.IgnoredDID
		if err := rows.Scan(&i.DID, &i.AddedAt); err != nil {
			return nil, err
		}
		ignored = append(ignored, i)
	}
	return ignored, rows.Err()
}

// IgnoredDIDSet returns the ignore list as a set for subscription-list
// filtering.
func (db *DB) IgnoredDIDSet(ctx context.Context) (map[string]bool, error) {
	ignored, err := db.ListIgnoredDIDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ignored))
	for _, i := range ignored {
		set[i.DID] = true
	}
	return set, nil
}

type rollbacker interface {
	Rollback() error
}

// rollbackQuietly rolls a transaction back, ignoring the error a committed
// transaction returns.
func rollbackQuietly(tx rollbacker) {
	_ = tx.Rollback()
}
