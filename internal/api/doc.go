// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package api provides the HTTP surface for Skywatch using the Chi router.

Read endpoints expose the engine's state to dashboards:

  - GET /api/v1/status       aggregated stream, pool, and per-user state
  - GET /api/v1/cursor       current firehose cursor and backfill flag
  - GET /api/v1/changes      recent profile changes (paginated)
  - GET /api/v1/changes/{did} change history for one account
  - GET /api/v1/users        monitoring users with backfill progress
  - GET /api/v1/ws           WebSocket push of status and cursor frames

Admin endpoints mutate monitoring state and are gated by the X-Admin-DID
header, which must match the configured admin DID:

  - GET/POST /api/v1/admin/ignores, DELETE /api/v1/admin/ignores/{did}
  - POST/DELETE /api/v1/admin/users/{did}/monitor

Health probes live under /api/v1/health (plus a bare /healthz alias) and
Prometheus metrics at /metrics.

All responses use the models.APIResponse envelope. Middleware is a mix of
Chi ecosystem pieces (go-chi/cors, go-chi/httprate) and the in-house
internal/middleware stack (request IDs, Prometheus metrics, gzip).
*/
package api
