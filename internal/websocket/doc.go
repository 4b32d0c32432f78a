// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package websocket pushes live status to connected dashboards.

The hub subscribes to the status broadcaster: full status snapshots go out as
"status" frames, cursor progress as "cursor" frames. Each client runs a read
pump (application pings, pong deadline tracking) and a write pump (hub
messages plus protocol pings on a ticker).

Slow consumers are dropped rather than allowed to block the hub: a client
whose send buffer is full loses its connection and the dashboard reconnects,
picking up complete state from the next snapshot.

Message Types:

  - status: full StatusSnapshot (main stream, temp pool, per-user backfill)
  - cursor: CursorInfo progress update, debounced upstream
  - ping/pong: application-level keepalive from the dashboard
*/
package websocket
