// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package services

import (
	"context"
	"fmt"
	"time"
)

// JetstreamStream interface matches *jetstream.MainStream's lifecycle methods.
//
// This interface allows the MainStreamService to work with the main stream
// without importing the jetstream package, enabling testing with mocks.
//
// Satisfied by *jetstream.MainStream from internal/jetstream/mainstream.go:
//   - RecommendedStartCursor(ctx context.Context) *int64
//   - Start(ctx context.Context, cursor *int64) error
//   - Stop(ctx context.Context)
type JetstreamStream interface {
	RecommendedStartCursor(ctx context.Context) *int64
	Start(ctx context.Context, cursor *int64) error
	Stop(ctx context.Context)
}

// MainStreamService wraps the Jetstream main stream as a supervised service.
//
// The main stream handles its own reconnection with backoff internally, so
// this wrapper only translates the Start/Stop lifecycle into suture's
// context-aware Serve pattern:
//
//  1. Computes the recommended start cursor (persisted position minus replay window)
//  2. Starts the stream, which spawns its own read loop
//  3. Blocks until context cancellation
//  4. On shutdown, calls Stop with a fresh timeout context so the stream can
//     persist its cursor before the process exits
//
// Example usage:
//
//	stream := jetstream.NewMainStream(cfg, db, resolver, appview, broadcaster)
//	svc := services.NewMainStreamService(stream, 10*time.Second)
//	tree.AddStreamService(svc)
type MainStreamService struct {
	stream      JetstreamStream
	stopTimeout time.Duration
	name        string
}

// NewMainStreamService creates a new main stream service wrapper.
//
// The stopTimeout bounds how long shutdown waits for the stream's read loop
// to drain and for the stop cursor to be persisted.
func NewMainStreamService(stream JetstreamStream, stopTimeout time.Duration) *MainStreamService {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &MainStreamService{
		stream:      stream,
		stopTimeout: stopTimeout,
		name:        "jetstream-main",
	}
}

// Serve implements suture.Service.
//
// Returns an error if the stream fails to start, which triggers a supervisor
// restart. On context cancellation it stops the stream gracefully and returns
// ctx.Err() for normal termination.
func (s *MainStreamService) Serve(ctx context.Context) error {
	cursor := s.stream.RecommendedStartCursor(ctx)

	if err := s.stream.Start(ctx, cursor); err != nil {
		return fmt.Errorf("jetstream start failed: %w", err)
	}

	<-ctx.Done()

	// Use a fresh context for shutdown since the original is canceled.
	// Stop persists the cursor, so it must not be skipped.
	stopCtx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	s.stream.Stop(stopCtx)

	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *MainStreamService) String() string {
	return s.name
}
