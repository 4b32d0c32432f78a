// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package services provides suture.Service wrappers for Skywatch components.

This package adapts application components to the suture v4 supervision
model, translating their lifecycle patterns (Start/Stop, RunWithContext,
ListenAndServe) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

Jetstream Main Stream (MainStreamService):
  - Computes the recommended start cursor, starts the stream, stops it
    with a bounded timeout so the cursor is persisted on shutdown
  - Reconnection and backoff live inside the stream itself

Backfill Pool (BackfillPoolService):
  - Resumes interrupted backfills on start via AutoRestart
  - Marks in-flight backfills for resume on shutdown

WebSocket Hub (WebSocketHubService):
  - Wraps websocket.Hub, whose RunWithContext already matches Serve
  - Closes all connected clients on shutdown

Status Ticker (StatusTickerService):
  - Pushes periodic status snapshots so WebSocket clients see fresh
    cursor age and backfill progress between state transitions

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

# Error Handling

Return values determine supervisor behavior:

	nil         -> service stopped cleanly, will not restart
	error       -> service crashed, supervisor will restart
	ctx.Err()   -> shutdown requested, normal termination

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - github.com/thejerf/suture/v4: underlying supervision library
*/
package services
