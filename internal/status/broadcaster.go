// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package status aggregates stream and backfill state into snapshots and
// fans them out to registered subscribers. Transitions are always delivered
// as full snapshots, never deltas.
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

// snapshotTimeout bounds the database reads behind one snapshot.
const snapshotTimeout = 10 * time.Second

// cursorDebounce suppresses cursor notifications arriving faster than this,
// except when the backfill flag flips.
const cursorDebounce = time.Second

// Store is the persistence slice the broadcaster reads.
type Store interface {
	ListMonitoringUserDIDs(ctx context.Context) ([]string, error)
	CountFollowsForUser(ctx context.Context, userDID string) (int, error)
	ListBackfillStates(ctx context.Context) ([]models.BackfillState, error)
	LastKnownHandle(ctx context.Context, did string) (string, error)
}

// MainStreamSource reports the main stream's state.
type MainStreamSource interface {
	GetMainStreamStatus() models.MainStreamStatus
}

// PoolSource reports temp-pool occupancy.
type PoolSource interface {
	Status() models.TempPoolStatus
}

// ResolverSource reports handle-cache counters.
type ResolverSource interface {
	CacheStats() (hits, misses int64, size int)
}

// Subscriber receives snapshots and cursor notifications. Callbacks must
// not block; slow consumers should buffer internally.
type Subscriber interface {
	OnStatus(snapshot *models.StatusSnapshot)
	OnCursor(info models.CursorInfo)
}

// Broadcaster builds snapshots on demand and pushes them to subscribers.
// Safe for concurrent use.
type Broadcaster struct {
	store    Store
	main     MainStreamSource
	pool     PoolSource
	resolver ResolverSource

	mu          sync.RWMutex
	subscribers []Subscriber

	cursorMu       sync.Mutex
	lastCursorSent time.Time
	lastInBackfill bool
}

// NewBroadcaster wires the snapshot sources. main and pool are set late via
// Attach because the stream layer is constructed after the broadcaster.
func NewBroadcaster(store Store) *Broadcaster {
	return &Broadcaster{store: store}
}

// Attach binds the stream-layer sources. Must be called before the first
// broadcast.
func (b *Broadcaster) Attach(main MainStreamSource, pool PoolSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.main = main
	b.pool = pool
}

// AttachResolver binds the handle-cache counter source.
func (b *Broadcaster) AttachResolver(r ResolverSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolver = r
}

// Register adds a subscriber.
func (b *Broadcaster) Register(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Unregister removes a subscriber.
func (b *Broadcaster) Unregister(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == s {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// BroadcastStatus builds a fresh snapshot and delivers it to every
// subscriber. Build failures are logged; a partial snapshot is still sent.
func (b *Broadcaster) BroadcastStatus() {
	snapshot := b.Snapshot(context.Background())

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		s.OnStatus(snapshot)
	}
	metrics.StatusBroadcasts.WithLabelValues("status").Inc()
}

// BroadcastCursor delivers a cursor notification, debounced unless the
// backfill flag changed.
func (b *Broadcaster) BroadcastCursor(info models.CursorInfo) {
	b.cursorMu.Lock()
	flipped := info.IsInBackfill != b.lastInBackfill
	if !flipped && time.Since(b.lastCursorSent) < cursorDebounce {
		b.cursorMu.Unlock()
		return
	}
	b.lastCursorSent = time.Now()
	b.lastInBackfill = info.IsInBackfill
	b.cursorMu.Unlock()

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		s.OnCursor(info)
	}
	metrics.StatusBroadcasts.WithLabelValues("cursor").Inc()
}

// Snapshot aggregates main-stream, pool, and per-user backfill state.
func (b *Broadcaster) Snapshot(ctx context.Context) *models.StatusSnapshot {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	snapshot := &models.StatusSnapshot{GeneratedAt: time.Now().UTC()}

	b.mu.RLock()
	main, pool, res := b.main, b.pool, b.resolver
	b.mu.RUnlock()
	if main != nil {
		snapshot.MainStream = main.GetMainStreamStatus()
	}
	if pool != nil {
		snapshot.TempPool = pool.Status()
	}
	if res != nil {
		hits, misses, size := res.CacheStats()
		snapshot.ResolverCache = models.ResolverCacheStatus{Hits: hits, Misses: misses, Size: size}
	}

	users, err := b.store.ListMonitoringUserDIDs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("status snapshot: failed to list monitoring users")
		return snapshot
	}

	states, err := b.store.ListBackfillStates(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("status snapshot: failed to list backfill states")
		states = nil
	}
	stateByUser := make(map[string]models.BackfillState, len(states))
	for _, s := range states {
		stateByUser[s.UserDID] = s
	}

	sort.Strings(users)
	for _, did := range users {
		user := models.UserBackfillStatus{DID: did}
		if handle, err := b.store.LastKnownHandle(ctx, did); err == nil {
			user.Handle = handle
		}
		if count, err := b.store.CountFollowsForUser(ctx, did); err == nil {
			user.MonitoredCount = count
		}
		if state, ok := stateByUser[did]; ok {
			user.LastStartedAt = state.LastStartedAt
			user.LastCompletedAt = state.LastCompletedAt
			user.HasCompletedBackfill = state.HasCompletedBackfill()
		}
		snapshot.Users = append(snapshot.Users, user)
	}
	return snapshot
}
