// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package database

import (
	"context"
	"testing"

	"github.com/tomtom215/skywatch/internal/models"
)

func TestInsertChangeAssignsChangeType(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		candidate models.ProfileChange
		want      string
	}{
		{
			name: "handle only",
			candidate: models.ProfileChange{
				DID:       "did:plc:a1",
				OldHandle: strPtr("old.alice.example"),
				NewHandle: strPtr("new.alice.example"),
			},
			want: models.ChangeTypeHandle,
		},
		{
			name: "profile only",
			candidate: models.ProfileChange{
				DID:            "did:plc:a2",
				OldDisplayName: strPtr("Bob"),
				NewDisplayName: strPtr("Bobby"),
			},
			want: models.ChangeTypeProfile,
		},
		{
			name: "combined",
			candidate: models.ProfileChange{
				DID:       "did:plc:a3",
				OldHandle: strPtr("old.c.example"),
				NewHandle: strPtr("new.c.example"),
				OldAvatar: strPtr("cid1"),
				NewAvatar: strPtr("cid2"),
			},
			want: models.ChangeTypeCombined,
		},
		{
			name: "handle discovery side empty counts as profile",
			candidate: models.ProfileChange{
				DID:            "did:plc:a4",
				NewHandle:      strPtr("first.seen.example"),
				OldDisplayName: strPtr("X"),
				NewDisplayName: strPtr("Y"),
			},
			want: models.ChangeTypeProfile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := db.InsertChange(ctx, &tt.candidate)
			if err != nil {
				t.Fatalf("InsertChange failed: %v", err)
			}
			if res.Outcome != models.InsertOutcomeInserted {
				t.Fatalf("expected inserted, got %s", res.Outcome)
			}
			if res.Row.ChangeType != tt.want {
				t.Errorf("expected change_type %q, got %q", tt.want, res.Row.ChangeType)
			}
		})
	}
}

func TestInsertChangeIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	candidate := models.ProfileChange{
		DID:       "did:plc:a",
		OldHandle: strPtr("old.alice.example"),
		NewHandle: strPtr("new.alice.example"),
	}

	first, err := db.InsertChange(ctx, &candidate)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if first.Outcome != models.InsertOutcomeInserted {
		t.Fatalf("expected inserted, got %s", first.Outcome)
	}

	// Replaying the identical frame yields no new row and returns the
	// original one.
	replay := models.ProfileChange{
		DID:       "did:plc:a",
		OldHandle: strPtr("old.alice.example"),
		NewHandle: strPtr("new.alice.example"),
	}
	second, err := db.InsertChange(ctx, &replay)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if second.Outcome != models.InsertOutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", second.Outcome)
	}
	if second.Row.ID != first.Row.ID {
		t.Errorf("expected the stored row back, got a different id")
	}

	changes, err := db.ChangesForDID(ctx, "did:plc:a", 10)
	if err != nil {
		t.Fatalf("ChangesForDID failed: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("expected exactly one row, got %d", len(changes))
	}
}

func TestFindDuplicateChangeNullEqualSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Row with NULL avatar columns.
	withNulls := models.ProfileChange{
		DID:            "did:plc:n",
		OldDisplayName: strPtr("A"),
		NewDisplayName: strPtr("B"),
	}
	if _, err := db.InsertChange(ctx, &withNulls); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// NULL == NULL for the uniqueness predicate.
	dup, err := db.FindDuplicateChange(ctx, &models.ProfileChange{
		DID:            "did:plc:n",
		OldDisplayName: strPtr("A"),
		NewDisplayName: strPtr("B"),
	})
	if err != nil {
		t.Fatalf("FindDuplicateChange failed: %v", err)
	}
	if dup == nil {
		t.Fatal("expected null-equal candidate to match")
	}

	// NULL never matches a value.
	notDup, err := db.FindDuplicateChange(ctx, &models.ProfileChange{
		DID:            "did:plc:n",
		OldDisplayName: strPtr("A"),
		NewDisplayName: strPtr("B"),
		NewAvatar:      strPtr("cid9"),
	})
	if err != nil {
		t.Fatalf("FindDuplicateChange failed: %v", err)
	}
	if notDup != nil {
		t.Error("expected candidate with avatar set to not match NULL row")
	}
}

func TestInsertChangeIgnoredDID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.AddIgnoredDID(ctx, "did:plc:spam"); err != nil {
		t.Fatalf("AddIgnoredDID failed: %v", err)
	}

	res, err := db.InsertChange(ctx, &models.ProfileChange{
		DID:       "did:plc:spam",
		OldHandle: strPtr("a.example"),
		NewHandle: strPtr("b.example"),
	})
	if err != nil {
		t.Fatalf("InsertChange failed: %v", err)
	}
	if res.Outcome != models.InsertOutcomeIgnored {
		t.Errorf("expected ignored, got %s", res.Outcome)
	}
	if res.Row != nil {
		t.Error("expected no row for ignored insert")
	}
}

func TestAddIgnoredDIDPurgesExistingChanges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertChange(ctx, &models.ProfileChange{
		DID:       "did:plc:x",
		OldHandle: strPtr("a.example"),
		NewHandle: strPtr("b.example"),
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := db.AddIgnoredDID(ctx, "did:plc:x"); err != nil {
		t.Fatalf("AddIgnoredDID failed: %v", err)
	}

	changes, err := db.ChangesForDID(ctx, "did:plc:x", 10)
	if err != nil {
		t.Fatalf("ChangesForDID failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no change rows after ignore-add commit, got %d", len(changes))
	}

	ignored, err := db.IsIgnored(ctx, "did:plc:x")
	if err != nil || !ignored {
		t.Errorf("expected did ignored, got %v / %v", ignored, err)
	}
}

func TestLastKnownHandle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.LastKnownHandle(ctx, "did:plc:h")
	if err != nil {
		t.Fatalf("LastKnownHandle failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty handle for unknown did, got %q", got)
	}

	if _, err := db.InsertChange(ctx, &models.ProfileChange{
		DID:       "did:plc:h",
		OldHandle: strPtr("first.example"),
		NewHandle: strPtr("second.example"),
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := db.InsertChange(ctx, &models.ProfileChange{
		DID:       "did:plc:h",
		OldHandle: strPtr("second.example"),
		NewHandle: strPtr("third.example"),
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err = db.LastKnownHandle(ctx, "did:plc:h")
	if err != nil {
		t.Fatalf("LastKnownHandle failed: %v", err)
	}
	if got != "third.example" {
		t.Errorf("expected most recent handle, got %q", got)
	}
}

func TestRecentChangesHidesConcurrentDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Simulate the concurrent-insert worst case: two rows identical on the
	// six-tuple. The first goes through the normal path, the second is
	// written directly to bypass the duplicate probe.
	if _, err := db.InsertChange(ctx, &models.ProfileChange{
		DID:       "did:plc:race",
		OldHandle: strPtr("a.example"),
		NewHandle: strPtr("b.example"),
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO profile_changes (id, did, old_handle, new_handle, change_type, changed_at, created_at)
		VALUES (gen_random_uuid(), 'did:plc:race', 'a.example', 'b.example', 'handle', now(), now())`); err != nil {
		t.Fatalf("direct insert failed: %v", err)
	}

	changes, err := db.RecentChanges(ctx, 10, 0)
	if err != nil {
		t.Fatalf("RecentChanges failed: %v", err)
	}
	count := 0
	for _, c := range changes {
		if c.DID == "did:plc:race" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected duplicates collapsed to one row, got %d", count)
	}
}
