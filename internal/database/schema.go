// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package database

import (
	"context"
	"fmt"
)

// createTables creates the Skywatch schema. All statements are idempotent
// so startup after an unclean shutdown converges to the same schema.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	tables := []string{
		// One row per detected profile mutation. Immutable once written.
		// Duplicate detection compares the six old_*/new_* columns with
		// null-equal semantics (IS NOT DISTINCT FROM), so NULL == NULL for
		// the uniqueness predicate.
		`CREATE TABLE IF NOT EXISTS profile_changes (
			id UUID PRIMARY KEY,
			did VARCHAR NOT NULL,
			handle VARCHAR,
			old_handle VARCHAR,
			new_handle VARCHAR,
			old_display_name VARCHAR,
			new_display_name VARCHAR,
			old_avatar VARCHAR,
			new_avatar VARCHAR,
			change_type VARCHAR NOT NULL,
			changed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Follow graph of monitoring users. rkey is the only reliable key
		// for processing unfollow events.
		`CREATE TABLE IF NOT EXISTS monitored_follows (
			user_did VARCHAR NOT NULL,
			follow_did VARCHAR NOT NULL,
			follow_handle VARCHAR,
			rkey VARCHAR NOT NULL,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_did, follow_did)
		)`,

		// Per-user temporary backfill progress. last_completed_at is NULL
		// while a backfill is in flight.
		`CREATE TABLE IF NOT EXISTS monitoring_backfill_state (
			user_did VARCHAR PRIMARY KEY,
			last_started_at TIMESTAMP,
			last_completed_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// DIDs excluded from subscription lists and change inserts.
		`CREATE TABLE IF NOT EXISTS ignored_users (
			did VARCHAR PRIMARY KEY,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Process-level key/value state (stop_cursor, stop_time).
		`CREATE TABLE IF NOT EXISTS system_settings (
			key VARCHAR PRIMARY KEY,
			value VARCHAR,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range tables {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// createIndexes creates secondary indexes for the read paths.
func (db *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_profile_changes_did ON profile_changes (did)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_changes_changed_at ON profile_changes (changed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_changes_handle ON profile_changes (handle)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_changes_change_type ON profile_changes (change_type)`,
		`CREATE INDEX IF NOT EXISTS idx_monitored_follows_follow_did ON monitored_follows (follow_did)`,
		`CREATE INDEX IF NOT EXISTS idx_monitored_follows_user_did ON monitored_follows (user_did)`,
		`CREATE INDEX IF NOT EXISTS idx_monitored_follows_user_rkey ON monitored_follows (user_did, rkey)`,
	}

	for _, stmt := range indexes {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
