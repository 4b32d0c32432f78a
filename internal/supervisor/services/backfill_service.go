// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package services

import (
	"context"
)

// BackfillPool interface matches *jetstream.TempManager's lifecycle methods.
//
// This interface allows the BackfillPoolService to work with the pool
// without importing the jetstream package, enabling testing with mocks.
//
// Satisfied by *jetstream.TempManager from internal/jetstream/tempmanager.go:
//   - AutoRestart(ctx context.Context)
//   - Shutdown()
type BackfillPool interface {
	AutoRestart(ctx context.Context)
	Shutdown()
}

// BackfillPoolService wraps the temporary backfill stream pool as a
// supervised service.
//
// AutoRestart resumes any backfills that were interrupted by a previous
// shutdown, deferring users past the concurrency limit internally. The pool
// manages its own per-user stream goroutines, so the wrapper only needs to
// kick off the resume pass and tear the pool down on shutdown.
//
// Example usage:
//
//	pool := jetstream.NewTempManager(ctx, cfg, db, resolver, stream, broadcaster)
//	svc := services.NewBackfillPoolService(pool)
//	tree.AddStreamService(svc)
type BackfillPoolService struct {
	pool BackfillPool
	name string
}

// NewBackfillPoolService creates a new backfill pool service wrapper.
func NewBackfillPoolService(pool BackfillPool) *BackfillPoolService {
	return &BackfillPoolService{
		pool: pool,
		name: "backfill-pool",
	}
}

// Serve implements suture.Service.
//
// Resumes interrupted backfills, then blocks until context cancellation.
// On shutdown, Shutdown marks in-flight backfills for resume on next start.
func (b *BackfillPoolService) Serve(ctx context.Context) error {
	b.pool.AutoRestart(ctx)

	<-ctx.Done()

	b.pool.Shutdown()
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (b *BackfillPoolService) String() string {
	return b.name
}
