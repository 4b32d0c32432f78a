// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package supervisor provides hierarchical service supervision using suture v4.

The supervisor tree restarts crashed services with exponential backoff and
isolates failures between layers, so a crashing stream connection cannot
take down the HTTP API.

# Tree Structure

The tree has a root supervisor with three child supervisors:

	skywatch (root)
	├── stream-layer
	│   ├── jetstream-main     (firehose subscription)
	│   └── backfill-pool      (temporary per-user streams)
	├── messaging-layer
	│   ├── websocket-hub      (client fan-out)
	│   └── status-ticker      (periodic snapshot broadcast)
	└── api-layer
	    └── http-server        (REST + WebSocket endpoints)

Each child supervisor restarts its own services independently. If a layer
exceeds the failure threshold, only that layer enters backoff.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddStreamService(services.NewMainStreamService(stream, 10*time.Second))
	tree.AddStreamService(services.NewBackfillPoolService(pool))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Failure Handling

Suture's failure accounting uses a decaying counter: each service failure
adds 1, and the count decays at FailureDecay per second. When the count
exceeds FailureThreshold, the supervisor waits FailureBackoff before
restarting anything in that layer.

Services that return nil from Serve are considered complete and are not
restarted. Services that return an error (or panic) are restarted.
ErrDoNotRestart and ErrTerminateSupervisorTree from suture are honored.

# Logging

Supervisor events (service start, failure, backoff) are logged through
sutureslog, which bridges suture's EventHook to an *slog.Logger. Skywatch
backs that logger with zerolog via logging.NewSlogLogger.

# See Also

  - internal/supervisor/services: suture.Service wrappers for components
  - github.com/thejerf/suture/v4: underlying supervision library
*/
package supervisor
