// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/skywatch/internal/config"
)

// newTestDB opens an in-memory DuckDB with the default retry policy.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:          ":memory:",
		MaxMemory:     "256MB",
		RetryAttempts: 3,
		RetryDelay:    10 * time.Millisecond,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string {
	return &s
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("expected live connection, got %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetSetting(ctx, SettingStopCursor); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := db.SetSetting(ctx, SettingStopCursor, "1700000000000000"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	got, err := db.GetSetting(ctx, SettingStopCursor)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "1700000000000000" {
		t.Errorf("expected stored cursor, got %q", got)
	}

	// Upsert overwrites.
	if err := db.SetSetting(ctx, SettingStopCursor, "1700000000000001"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	got, _ = db.GetSetting(ctx, SettingStopCursor)
	if got != "1700000000000001" {
		t.Errorf("expected overwritten cursor, got %q", got)
	}

	if err := db.DeleteSetting(ctx, SettingStopCursor); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := db.GetSetting(ctx, SettingStopCursor); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
