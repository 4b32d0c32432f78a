// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with user-friendly error messages. It integrates
// with the application's API error format for consistent error responses.
//
// # Quick Start
//
//	type ChangesRequest struct {
//	    Limit  int    `validate:"min=1,max=1000"`
//	    Offset int    `validate:"min=0,max=1000000"`
//	    DID    string `validate:"omitempty,startswith=did:"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    req := ChangesRequest{...}
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//	    // proceed with valid request
//	}
//
// # Error Types
//
// ValidationError represents a single field validation failure with accessors
// for the field name, validation tag, tag parameter, and failing value.
// RequestValidationError aggregates multiple field errors and converts them
// to the application's APIError format via ToAPIError.
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use.
// It caches struct reflection information, so repeated validations of the
// same request type are cheap.
package validation
