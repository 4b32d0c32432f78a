// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"context"

	"github.com/tomtom215/skywatch/internal/appview"
	"github.com/tomtom215/skywatch/internal/models"
)

// Store is the persistence surface the stream layer depends on. *database.DB
// implements it; tests substitute fakes.
type Store interface {
	// Change persistence.
	IsIgnored(ctx context.Context, did string) (bool, error)
	InsertChange(ctx context.Context, candidate *models.ProfileChange) (*models.InsertResult, error)
	LastKnownHandle(ctx context.Context, did string) (string, error)
	IgnoredDIDSet(ctx context.Context) (map[string]bool, error)

	// Follow graph.
	UpsertFollow(ctx context.Context, f *models.MonitoredFollow) error
	GetFollow(ctx context.Context, userDID, followDID string) (*models.MonitoredFollow, error)
	FindFollowByRKey(ctx context.Context, userDID, rkey string) (*models.MonitoredFollow, error)
	DeleteFollow(ctx context.Context, userDID, followDID string) error
	IsFollowedByAnyUser(ctx context.Context, followDID string) (bool, error)
	ListMonitoringUserDIDs(ctx context.Context) ([]string, error)
	ListMonitoredFollowDIDs(ctx context.Context) ([]string, error)
	ListFollowsForUser(ctx context.Context, userDID string) ([]models.MonitoredFollow, error)
	ReconcileFollowsForUser(ctx context.Context, userDID string, authoritative []models.MonitoredFollow) (added, removed, updated int, err error)

	// Backfill bookkeeping.
	MarkBackfillStarted(ctx context.Context, userDID string) error
	MarkBackfillCompleted(ctx context.Context, userDID string) error
	ListIncompleteBackfills(ctx context.Context) ([]models.BackfillState, error)

	// Process state.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Resolver maps DIDs to handles. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, did string) string
	ResolvePrevious(ctx context.Context, did string) string
	ResolveMany(ctx context.Context, dids []string) map[string]string
	Invalidate(did string)
}

// FollowSource fetches the authoritative follow list for a monitoring user.
// *appview.Client implements it.
type FollowSource interface {
	GetAllFollows(ctx context.Context, actor string) ([]appview.Follow, error)
}

// Broadcaster receives status and cursor notifications from the stream
// layer. The status package implements it; a nil broadcaster is permitted
// and all notifications are dropped.
type Broadcaster interface {
	BroadcastStatus()
	BroadcastCursor(info models.CursorInfo)
}
