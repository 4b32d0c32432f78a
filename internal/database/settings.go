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
)

// Keys in system_settings written on graceful shutdown.
const (
	SettingStopCursor = "stop_cursor"
	SettingStopTime   = "stop_time"
)

// GetSetting returns the value for key, or ErrNotFound.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var value sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value.String, nil
}

// SetSetting upserts a key/value pair.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return db.withRetry(ctx, "set_setting", func() error {
		ctx, cancel := db.ensureContext(ctx)
		defer cancel()

		query := `INSERT INTO system_settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`
		if _, err := db.conn.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to set setting %s: %w", key, err)
		}
		return nil
	})
}

// DeleteSetting removes a key. Missing keys are not an error.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM system_settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
