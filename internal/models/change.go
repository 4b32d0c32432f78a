// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package models

import (
	"time"

	"github.com/google/uuid"
)

// Change types for a profile_changes row.
const (
	ChangeTypeHandle   = "handle"
	ChangeTypeProfile  = "profile"
	ChangeTypeCombined = "combined"
)

// ProfileChange is one persisted change record. Immutable once written.
//
// Optional columns are pointers so that NULL survives the round trip; the
// duplicate-detection predicate treats NULL as equal to NULL.
type ProfileChange struct {
	ID             uuid.UUID `json:"id"`
	DID            string    `json:"did"`
	Handle         *string   `json:"handle,omitempty"`
	OldHandle      *string   `json:"old_handle,omitempty"`
	NewHandle      *string   `json:"new_handle,omitempty"`
	OldDisplayName *string   `json:"old_display_name,omitempty"`
	NewDisplayName *string   `json:"new_display_name,omitempty"`
	OldAvatar      *string   `json:"old_avatar,omitempty"`
	NewAvatar      *string   `json:"new_avatar,omitempty"`
	ChangeType     string    `json:"change_type"`
	ChangedAt      time.Time `json:"changed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasHandleTransition reports whether both sides of the handle pair are set
// and non-empty. Initial discoveries (either side missing) do not count.
func (c *ProfileChange) HasHandleTransition() bool {
	return c.OldHandle != nil && *c.OldHandle != "" && c.NewHandle != nil && *c.NewHandle != ""
}

// HasProfileTransition reports whether any display-name or avatar pair is set.
func (c *ProfileChange) HasProfileTransition() bool {
	return c.OldDisplayName != nil || c.NewDisplayName != nil ||
		c.OldAvatar != nil || c.NewAvatar != nil
}

// InsertOutcome classifies the result of an InsertChange call.
type InsertOutcome int

const (
	// InsertOutcomeInserted means a new row was written.
	InsertOutcomeInserted InsertOutcome = iota
	// InsertOutcomeDuplicate means an identical row already existed; Row
	// carries the stored one.
	InsertOutcomeDuplicate
	// InsertOutcomeIgnored means the DID is on the ignore list and nothing
	// was written.
	InsertOutcomeIgnored
)

// String returns the outcome name for logs.
func (o InsertOutcome) String() string {
	switch o {
	case InsertOutcomeInserted:
		return "inserted"
	case InsertOutcomeDuplicate:
		return "duplicate"
	case InsertOutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// InsertResult is the result of an idempotent change insert.
// Row is nil only for InsertOutcomeIgnored.
type InsertResult struct {
	Outcome InsertOutcome
	Row     *ProfileChange
}
