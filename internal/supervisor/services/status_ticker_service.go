// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package services

import (
	"context"
	"time"
)

// StatusBroadcaster interface matches *status.Broadcaster's push method.
//
// Satisfied by *status.Broadcaster from internal/status/broadcaster.go:
//   - BroadcastStatus()
type StatusBroadcaster interface {
	BroadcastStatus()
}

// StatusTickerService pushes periodic status snapshots to subscribers.
//
// The broadcaster already pushes snapshots on stream state transitions.
// The ticker guarantees WebSocket clients see fresh cursor age and backfill
// progress even when the stream state is stable.
//
// Example usage:
//
//	broadcaster := status.NewBroadcaster(db)
//	svc := services.NewStatusTickerService(broadcaster, 30*time.Second)
//	tree.AddMessagingService(svc)
type StatusTickerService struct {
	broadcaster StatusBroadcaster
	interval    time.Duration
	name        string
}

// NewStatusTickerService creates a new status ticker service wrapper.
func NewStatusTickerService(broadcaster StatusBroadcaster, interval time.Duration) *StatusTickerService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatusTickerService{
		broadcaster: broadcaster,
		interval:    interval,
		name:        "status-ticker",
	}
}

// Serve implements suture.Service.
// Broadcasts on each tick until the context is canceled.
func (s *StatusTickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.broadcaster.BroadcastStatus()
		}
	}
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *StatusTickerService) String() string {
	return s.name
}
