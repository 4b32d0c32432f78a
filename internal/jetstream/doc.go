// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package jetstream is the ingestion core: the persistent main stream over
// every monitored DID, the bounded pool of temporary backfill streams, and
// the event dispatcher both kinds of stream share.
//
// The main stream owns one Jetstream WebSocket connection filtered to the
// monitored DID set. It reconnects with exponential backoff, resumes from
// its last processed cursor, and rebuilds the filter whenever the follow
// graph changes. Temporary streams replay the upstream retention window for
// one user's follows when monitoring is enabled mid-flight, terminating
// once the replay catches up to the stream's own start time.
//
// Cursor discipline: a stream advances its cursor only after an event's
// handler returns successfully, so a failed event is re-delivered after the
// next reconnect. Delivery is at-least-once; the persistence layer's
// duplicate detection makes replays idempotent.
package jetstream
