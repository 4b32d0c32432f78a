// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"net/http"

	"github.com/tomtom215/skywatch/internal/models"
)

// Status returns the aggregated engine snapshot: main-stream state, temp
// pool occupancy, and per-user backfill progress. Same shape as the
// WebSocket status frames, so dashboards can seed from a plain GET.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.statusSrc == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Status source unavailable", nil)
		return
	}

	respondSuccess(w, http.StatusOK, h.statusSrc.Snapshot(r.Context()))
}

// Cursor returns the current firehose cursor position and backfill flag.
func (h *Handler) Cursor(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Stream unavailable", nil)
		return
	}

	respondSuccess(w, http.StatusOK, h.stream.GetCursorInfo())
}

// Changes lists recent profile changes across all monitored accounts,
// newest first, with limit/offset pagination.
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	req := ChangesRequest{
		Limit:  getIntParam(r, "limit", 100),
		Offset: getIntParam(r, "offset", 0),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	changes, err := h.db.RecentChanges(r.Context(), req.Limit, req.Offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query changes", err)
		return
	}
	if changes == nil {
		changes = []models.ProfileChange{}
	}

	respondSuccess(w, http.StatusOK, models.ChangesPage{
		Total:   len(changes),
		Limit:   req.Limit,
		Offset:  req.Offset,
		Changes: changes,
	})
}

// ChangesForDID lists the change history for a single account.
func (h *Handler) ChangesForDID(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if apiErr := validateRequest(&DIDRequest{DID: did}); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	req := ChangesRequest{Limit: getIntParam(r, "limit", 100)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	changes, err := h.db.ChangesForDID(r.Context(), did, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query changes", err)
		return
	}
	if changes == nil {
		changes = []models.ProfileChange{}
	}

	respondSuccess(w, http.StatusOK, models.ChangesPage{
		Total:   len(changes),
		Limit:   req.Limit,
		Changes: changes,
	})
}

// Users lists monitoring users with their backfill progress and monitored
// follow counts, derived from the status snapshot.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if h.statusSrc == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Status source unavailable", nil)
		return
	}

	snapshot := h.statusSrc.Snapshot(r.Context())
	users := snapshot.Users
	if users == nil {
		users = []models.UserBackfillStatus{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"total": len(users),
		"users": users,
	})
}
