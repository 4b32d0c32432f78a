// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"net/http"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/models"
)

// IgnoreList returns all ignored DIDs.
func (h *Handler) IgnoreList(w http.ResponseWriter, r *http.Request) {
	ignored, err := h.db.ListIgnoredDIDs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list ignored DIDs", err)
		return
	}
	if ignored == nil {
		ignored = []models.IgnoredDID{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"total":   len(ignored),
		"ignored": ignored,
	})
}

// IgnoreAdd adds a DID to the ignore list and pushes the updated DID set
// upstream so the account stops producing events immediately.
func (h *Handler) IgnoreAdd(w http.ResponseWriter, r *http.Request) {
	var req IgnoreRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.db.AddIgnoredDID(r.Context(), req.DID); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to add ignored DID", err)
		return
	}

	if h.stream != nil {
		h.stream.ReloadDIDsNow("ignore-add")
	}

	logging.Info().Str("did", sanitizeLogValue(req.DID)).Msg("DID added to ignore list")
	respondSuccess(w, http.StatusOK, map[string]interface{}{"did": req.DID, "ignored": true})
}

// IgnoreRemove removes a DID from the ignore list.
func (h *Handler) IgnoreRemove(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if apiErr := validateRequest(&DIDRequest{DID: did}); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.db.RemoveIgnoredDID(r.Context(), did); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to remove ignored DID", err)
		return
	}

	if h.stream != nil {
		h.stream.ReloadDIDsNow("ignore-remove")
	}

	logging.Info().Str("did", sanitizeLogValue(did)).Msg("DID removed from ignore list")
	respondSuccess(w, http.StatusOK, map[string]interface{}{"did": did, "ignored": false})
}

// MonitorEnable makes an account a monitoring user: fetch its full follow
// list from the follow-graph API, reconcile it into the database, refresh
// the upstream DID set, and kick off a temporary backfill stream.
func (h *Handler) MonitorEnable(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if apiErr := validateRequest(&DIDRequest{DID: did}); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if h.follows == nil || h.pool == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Monitoring components unavailable", nil)
		return
	}

	follows, err := h.follows.GetAllFollows(r.Context(), did)
	if err != nil {
		respondError(w, http.StatusBadGateway, "APPVIEW_ERROR", "Failed to fetch follow list", err)
		return
	}

	authoritative := make([]models.MonitoredFollow, 0, len(follows))
	followDIDs := make([]string, 0, len(follows))
	for _, f := range follows {
		if !models.IsValidDID(f.DID) {
			continue
		}
		authoritative = append(authoritative, models.MonitoredFollow{
			UserDID:      did,
			FollowDID:    f.DID,
			FollowHandle: f.Handle,
		})
		followDIDs = append(followDIDs, f.DID)
	}

	added, removed, updated, err := h.db.ReconcileFollowsForUser(r.Context(), did, authoritative)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to persist follow list", err)
		return
	}

	if h.stream != nil {
		h.stream.ReloadDIDsNow("monitor-enable")
	}

	result, err := h.pool.StartForUser(did, followDIDs)
	if err != nil {
		// Monitoring is live either way; the backfill just could not start.
		logging.Warn().Err(err).Str("user_did", sanitizeLogValue(did)).Msg("Backfill start rejected")
	}

	logging.Info().
		Str("user_did", sanitizeLogValue(did)).
		Int("follows", len(followDIDs)).
		Int("added", added).
		Int("removed", removed).
		Int("updated", updated).
		Msg("Monitoring enabled")

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"user_did":         did,
		"follow_count":     len(followDIDs),
		"backfill_queued":  result.Queued,
		"queue_position":   result.Position,
		"backfill_started": err == nil && !result.Queued,
	})
}

// MonitorDisable stops monitoring a user: halt any backfill stream, purge
// the user's follows, changes, and backfill state, and refresh the
// upstream DID set.
func (h *Handler) MonitorDisable(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if apiErr := validateRequest(&DIDRequest{DID: did}); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if h.pool != nil {
		h.pool.StopForUser(did)
	}

	if err := h.db.PurgeUser(r.Context(), did); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to purge user", err)
		return
	}

	if h.stream != nil {
		h.stream.ReloadDIDsNow("monitor-disable")
	}

	logging.Info().Str("user_did", sanitizeLogValue(did)).Msg("Monitoring disabled")
	respondSuccess(w, http.StatusOK, map[string]interface{}{"user_did": did, "monitoring": false})
}
