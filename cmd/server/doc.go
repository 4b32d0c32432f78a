// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

/*
Package main is the entry point for the Skywatch server.

Skywatch monitors Bluesky accounts for handle, display name, and avatar
changes. It subscribes to the Jetstream firehose for the union of all
monitored DIDs, records detected changes in DuckDB, and pushes live updates
to WebSocket clients.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	skywatch (root)
	├── stream-layer
	│   ├── jetstream-main     (firehose subscription)
	│   └── backfill-pool      (temporary per-user streams)
	├── messaging-layer
	│   ├── websocket-hub      (client fan-out)
	│   └── status-ticker      (periodic snapshot broadcast)
	└── api-layer
	    └── http-server        (REST + WebSocket endpoints)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog, configured from LOGGING_* settings
 3. Database: DuckDB with embedded migrations
 4. Resolver: DID-to-handle resolution via the PLC directory, LRU cached
 5. AppView: public Bluesky API client for follow lists
 6. Stream layer: main Jetstream subscription plus backfill pool
 7. HTTP server: chi router with REST, WebSocket, and admin endpoints

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest priority
wins): environment variables, config file (config.yaml), built-in defaults.

Key settings:

	DATABASE_PATH          DuckDB file location (default skywatch.db)
	JETSTREAM_HOSTS        Jetstream endpoints, first reachable wins
	SERVER_PORT            HTTP listen port (default 8327)
	ADMIN_DID              DID allowed to call the admin API (empty = disabled)
	LOGGING_LEVEL          trace|debug|info|warn|error

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:
  - Stops accepting new connections (10s drain timeout)
  - Stops the Jetstream stream and persists the stop cursor
  - Marks in-flight backfills for resume on next start
  - Closes WebSocket clients and the database

# Example Usage

	export JETSTREAM_HOSTS=jetstream1.us-east.bsky.network
	export DATABASE_PATH=/data/skywatch.db
	export ADMIN_DID=did:plc:yourownaccount
	./skywatch
*/
package main
