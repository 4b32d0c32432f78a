// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package metrics exposes Prometheus instrumentation for Skywatch:
// Jetstream event throughput, reconnect behavior, change persistence
// outcomes, resolver cache efficiency and temporary stream pool state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Jetstream event metrics. stream is "main" or the temp stream's user DID
	// prefix; kind is identity/commit/other.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetstream_events_processed_total",
			Help: "Total Jetstream events processed, by stream and event kind",
		},
		[]string{"stream", "kind"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetstream_events_failed_total",
			Help: "Total Jetstream events whose handler failed (event will be re-delivered)",
		},
		[]string{"stream", "kind"},
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jetstream_events_malformed_total",
			Help: "Total frames dropped because they could not be decoded",
		},
	)

	StreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetstream_reconnects_total",
			Help: "Total reconnect attempts, by stream and trigger (backoff, reconcile)",
		},
		[]string{"stream", "trigger"},
	)

	MainStreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jetstream_main_stream_connected",
			Help: "1 when the main stream websocket is open",
		},
	)

	MainStreamInBackfill = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jetstream_main_stream_in_backfill",
			Help: "1 while the main stream is replaying events older than 60s",
		},
	)

	MonitoredDIDs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jetstream_monitored_dids",
			Help: "Number of DIDs in the current subscription list",
		},
	)

	CursorLagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jetstream_cursor_lag_seconds",
			Help: "Age of the last processed cursor relative to wall clock",
		},
	)

	// Change persistence metrics.
	ChangesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_changes_inserted_total",
			Help: "Total profile change rows written, by change type",
		},
		[]string{"change_type"},
	)

	ChangesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_changes_duplicate_total",
			Help: "Total change inserts suppressed as duplicates",
		},
	)

	ChangesIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_changes_ignored_total",
			Help: "Total change inserts suppressed by the ignore list",
		},
	)

	DBRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_retries_total",
			Help: "Total database operation retries, by operation",
		},
		[]string{"operation"},
	)

	// Resolver metrics.
	ResolverRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_requests_total",
			Help: "Total handle resolution HTTP requests, by kind (plc, web, audit) and result",
		},
		[]string{"kind", "result"},
	)

	ResolverCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_cache_hits_total",
			Help: "Total resolver cache hits",
		},
	)

	ResolverCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_cache_misses_total",
			Help: "Total resolver cache misses",
		},
	)

	// Temporary stream pool metrics.
	TempStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "temp_streams_active",
			Help: "Temporary backfill streams currently running",
		},
	)

	TempStreamsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "temp_streams_queued",
			Help: "Backfill requests waiting for a free slot",
		},
	)

	TempBackfillsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "temp_backfills_completed_total",
			Help: "Total temporary backfills that ran to completion",
		},
	)

	// Follow graph metrics.
	FollowSyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follow_sync_runs_total",
			Help: "Total follow-graph bootstrap syncs, by result",
		},
		[]string{"result"},
	)

	// Status fan-out metrics.
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "status_websocket_clients",
			Help: "Connected status websocket clients",
		},
	)

	StatusBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_broadcasts_total",
			Help: "Total broadcaster notifications, by kind (status, cursor)",
		},
		[]string{"kind"},
	)

	// HTTP API metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests, by method, endpoint and status code",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Currently in-flight API requests",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
