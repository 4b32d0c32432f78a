// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package models

import (
	"strings"
	"time"
)

// MonitoredFollow links a monitoring user to one account they follow.
// Primary key is (UserDID, FollowDID). RKey identifies the follow record in
// the user's repo and is the only reliable key for processing unfollows.
type MonitoredFollow struct {
	UserDID      string    `json:"user_did"`
	FollowDID    string    `json:"follow_did"`
	FollowHandle string    `json:"follow_handle,omitempty"`
	RKey         string    `json:"rkey"`
	AddedAt      time.Time `json:"added_at"`
}

// BackfillState tracks per-user temporary backfill progress.
// LastCompletedAt is nil while a backfill is in flight.
type BackfillState struct {
	UserDID         string     `json:"user_did"`
	LastStartedAt   *time.Time `json:"last_started_at,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasCompletedBackfill reports whether the most recent backfill ran to
// completion.
func (s *BackfillState) HasCompletedBackfill() bool {
	if s.LastStartedAt == nil || s.LastCompletedAt == nil {
		return false
	}
	return !s.LastCompletedAt.Before(*s.LastStartedAt)
}

// IgnoredDID is one entry on the ignore list. Presence suppresses inbound
// change inserts and excludes the DID from subscription lists.
type IgnoredDID struct {
	DID     string    `json:"did"`
	AddedAt time.Time `json:"added_at"`
}

// IsValidDID reports whether s looks like a DID Skywatch can monitor.
// Only did:plc and did:web methods appear on the network today.
func IsValidDID(s string) bool {
	return strings.HasPrefix(s, "did:plc:") || strings.HasPrefix(s, "did:web:")
}
