// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package middleware provides HTTP middleware components for the API server.

These wrap http.HandlerFunc and compose with the Chi middleware stack in
internal/api:

  - Compression: gzip for JSON responses when the client accepts it
  - RequestID: UUID-based request tracking, surfaced in logs and responses
  - PrometheusMetrics: per-request counters, latency histogram, in-flight gauge

All components are safe for concurrent use.
*/
package middleware
