// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

// ChangesRequest carries validated pagination for change-history listings.
type ChangesRequest struct {
	Limit  int `validate:"min=1,max=1000"`
	Offset int `validate:"min=0,max=1000000"`
}

// DIDRequest validates a DID taken from the URL path.
type DIDRequest struct {
	DID string `validate:"required,startswith=did:"`
}

// IgnoreRequest is the body of POST /api/v1/admin/ignores.
type IgnoreRequest struct {
	DID string `json:"did" validate:"required,startswith=did:"`
}
