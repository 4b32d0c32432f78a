// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/jetstream"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/models"
	ws "github.com/tomtom215/skywatch/internal/websocket"
)

// Store is the database surface the HTTP handlers need.
// *database.DB implements it.
type Store interface {
	Ping(ctx context.Context) error
	RecentChanges(ctx context.Context, limit, offset int) ([]models.ProfileChange, error)
	ChangesForDID(ctx context.Context, did string, limit int) ([]models.ProfileChange, error)
	ListIgnoredDIDs(ctx context.Context) ([]models.IgnoredDID, error)
	AddIgnoredDID(ctx context.Context, did string) error
	RemoveIgnoredDID(ctx context.Context, did string) error
	ListFollowsForUser(ctx context.Context, userDID string) ([]models.MonitoredFollow, error)
	ReconcileFollowsForUser(ctx context.Context, userDID string, authoritative []models.MonitoredFollow) (added, removed, updated int, err error)
	PurgeUser(ctx context.Context, userDID string) error
}

// Stream is the main-stream surface the handlers need.
// *jetstream.MainStream implements it.
type Stream interface {
	GetCursorInfo() models.CursorInfo
	IsRunningWithCursor() bool
	ReloadDIDsNow(source string)
}

// BackfillPool is the temp-stream pool surface the admin handlers need.
// *jetstream.TempManager implements it.
type BackfillPool interface {
	StartForUser(userDID string, followDIDs []string) (jetstream.StartResult, error)
	StopForUser(userDID string)
	CanStart(userDID string) jetstream.CanStartResult
}

// StatusSource builds aggregated status snapshots.
// *status.Broadcaster implements it.
type StatusSource interface {
	Snapshot(ctx context.Context) *models.StatusSnapshot
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	db        Store
	config    *config.Config
	stream    Stream
	pool      BackfillPool
	statusSrc StatusSource
	follows   jetstream.FollowSource
	wsHub     *ws.Hub
	startTime time.Time
}

// NewHandler creates an API handler. Any dependency may be nil; the
// affected endpoints degrade to 503 instead of panicking.
func NewHandler(db Store, cfg *config.Config, stream Stream, pool BackfillPool, statusSrc StatusSource, follows jetstream.FollowSource, wsHub *ws.Hub) *Handler {
	return &Handler{
		db:        db,
		config:    cfg,
		stream:    stream,
		pool:      pool,
		statusSrc: statusSrc,
		follows:   follows,
		wsHub:     wsHub,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins against the
// configured CORS origin list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin; only non-browser clients omit it.
	// Those are allowed since they bypass CORS anyway.
	if origin == "" {
		return true
	}

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
