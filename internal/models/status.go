// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package models

import "time"

// MainStreamStatus is the broadcaster's view of the persistent stream.
type MainStreamStatus struct {
	Running        bool `json:"running"`
	MonitoredDIDs  int  `json:"monitoredDids"`
	HasValidCursor bool `json:"hasValidCursor"`
}

// TempPoolStatus is the broadcaster's view of the temporary stream pool.
type TempPoolStatus struct {
	Active         int      `json:"active"`
	Max            int      `json:"max"`
	QueueLength    int      `json:"queueLength"`
	AvailableSlots int      `json:"availableSlots"`
	ActiveUsers    []string `json:"activeUsers"`
}

// UserBackfillStatus is the per-monitoring-user slice of a status snapshot.
type UserBackfillStatus struct {
	DID                  string     `json:"did"`
	Handle               string     `json:"handle,omitempty"`
	MonitoredCount       int        `json:"monitoredCount"`
	LastStartedAt        *time.Time `json:"lastStartedAt,omitempty"`
	LastCompletedAt      *time.Time `json:"lastCompletedAt,omitempty"`
	HasCompletedBackfill bool       `json:"hasCompletedBackfill"`
}

// ResolverCacheStatus is the broadcaster's view of the handle cache.
type ResolverCacheStatus struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// StatusSnapshot is the full aggregate pushed to subscribers. Transitions
// are always delivered as snapshots, never as deltas.
type StatusSnapshot struct {
	MainStream    MainStreamStatus     `json:"mainStream"`
	TempPool      TempPoolStatus       `json:"tempPool"`
	ResolverCache ResolverCacheStatus  `json:"resolverCache"`
	Users         []UserBackfillStatus `json:"users"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}

// CursorInfo is the lighter cursor-advance notification.
// Timestamp is the ISO form of the last processed cursor, nil when the
// stream holds no cursor.
type CursorInfo struct {
	Timestamp    *string `json:"timestamp_iso"`
	IsInBackfill bool    `json:"isInBackfill"`
}
