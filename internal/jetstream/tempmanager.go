// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

// autoRestartRetryDelay is the single retry delay when the boot-time scan
// finds the main stream not yet ready.
const autoRestartRetryDelay = 30 * time.Second

// StartResult reports how a temp-stream request was handled.
type StartResult struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position,omitempty"`
}

// CanStartResult answers a capacity probe without mutating the pool.
type CanStartResult struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	QueuePosition int    `json:"queuePosition,omitempty"`
}

type queuedRequest struct {
	userDID    string
	followDIDs []string
}

// TempManager owns the bounded pool of temporary backfill streams and the
// FIFO wait queue for requests beyond capacity.
type TempManager struct {
	cfg         *config.JetstreamConfig
	store       Store
	resolver    Resolver
	main        *MainStream
	broadcaster Broadcaster

	// ctx is the process lifetime; temp streams outlive the API request
	// that started them.
	ctx context.Context

	mu     sync.Mutex
	active map[string]*tempStream
	queue  []queuedRequest

	restartRetried bool
}

// NewTempManager wires the pool. ctx bounds every stream's lifetime.
func NewTempManager(ctx context.Context, cfg *config.JetstreamConfig, store Store, resolver Resolver, main *MainStream, broadcaster Broadcaster) *TempManager {
	return &TempManager{
		cfg:         cfg,
		store:       store,
		resolver:    resolver,
		main:        main,
		broadcaster: broadcaster,
		ctx:         ctx,
		active:      make(map[string]*tempStream),
	}
}

// StartForUser starts a temporary backfill stream for userDID covering
// followDIDs, or enqueues the request when the pool is full. Fails when the
// user already holds an active or queued stream.
func (tm *TempManager) StartForUser(userDID string, followDIDs []string) (StartResult, error) {
	tm.mu.Lock()

	if _, ok := tm.active[userDID]; ok {
		tm.mu.Unlock()
		return StartResult{}, fmt.Errorf("user %s already has an active backfill stream", userDID)
	}
	for _, q := range tm.queue {
		if q.userDID == userDID {
			tm.mu.Unlock()
			return StartResult{}, fmt.Errorf("user %s already has a queued backfill request", userDID)
		}
	}

	if len(tm.active) >= tm.maxConcurrent() {
		tm.queue = append(tm.queue, queuedRequest{userDID: userDID, followDIDs: followDIDs})
		position := len(tm.queue)
		metrics.TempStreamsQueued.Set(float64(position))
		tm.mu.Unlock()
		logging.Info().
			Str("user_did", userDID).
			Int("position", position).
			Msg("temp backfill request queued")
		return StartResult{Queued: true, Position: position}, nil
	}

	tm.launchLocked(userDID, followDIDs)
	tm.mu.Unlock()

	tm.broadcastStatus()
	return StartResult{}, nil
}

// StopForUser stops an active stream or drops a queued request.
// Best-effort: unknown users are a no-op.
func (tm *TempManager) StopForUser(userDID string) {
	tm.mu.Lock()
	stream, ok := tm.active[userDID]
	if !ok {
		for i, q := range tm.queue {
			if q.userDID == userDID {
				tm.queue = append(tm.queue[:i], tm.queue[i+1:]...)
				metrics.TempStreamsQueued.Set(float64(len(tm.queue)))
				break
			}
		}
	}
	tm.mu.Unlock()

	if ok {
		stream.stop(true)
	}
}

// CanStart answers whether a StartForUser call would run immediately.
func (tm *TempManager) CanStart(userDID string) CanStartResult {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.active[userDID]; ok {
		return CanStartResult{Reason: "backfill already running"}
	}
	for i, q := range tm.queue {
		if q.userDID == userDID {
			return CanStartResult{Reason: "backfill already queued", QueuePosition: i + 1}
		}
	}
	if len(tm.active) >= tm.maxConcurrent() {
		return CanStartResult{Reason: "pool at capacity", QueuePosition: len(tm.queue) + 1}
	}
	return CanStartResult{Allowed: true}
}

// Status reports pool occupancy for the status surface.
func (tm *TempManager) Status() models.TempPoolStatus {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	users := make([]string, 0, len(tm.active))
	for did := range tm.active {
		users = append(users, did)
	}
	maxStreams := tm.maxConcurrent()
	return models.TempPoolStatus{
		Active:         len(tm.active),
		Max:            maxStreams,
		QueueLength:    len(tm.queue),
		AvailableSlots: maxStreams - len(tm.active),
		ActiveUsers:    users,
	}
}

// Shutdown stops every active stream without marking its backfill complete;
// the boot-time scan reruns them.
func (tm *TempManager) Shutdown() {
	tm.mu.Lock()
	streams := make([]*tempStream, 0, len(tm.active))
	for _, s := range tm.active {
		streams = append(streams, s)
	}
	tm.queue = nil
	tm.mu.Unlock()

	for _, s := range streams {
		s.stop(false)
	}
	for _, s := range streams {
		s.wg.Wait()
	}
}

// AutoRestart re-enqueues backfills that were interrupted by the previous
// shutdown. If the main stream has no trusted cursor yet it schedules one
// retry and gives up after that.
func (tm *TempManager) AutoRestart(ctx context.Context) {
	if !tm.main.IsRunningWithCursor() {
		tm.mu.Lock()
		retried := tm.restartRetried
		tm.restartRetried = true
		tm.mu.Unlock()

		if retried {
			logging.Warn().Msg("auto-restart skipped, main stream still has no valid cursor")
			return
		}
		logging.Info().
			Dur("retry_in", autoRestartRetryDelay).
			Msg("main stream not ready, deferring backfill auto-restart")
		time.AfterFunc(autoRestartRetryDelay, func() {
			tm.AutoRestart(ctx)
		})
		return
	}

	states, err := tm.store.ListIncompleteBackfills(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to scan for interrupted backfills")
		return
	}

	for _, state := range states {
		follows, err := tm.store.ListFollowsForUser(ctx, state.UserDID)
		if err != nil {
			logging.Error().Err(err).Str("user_did", state.UserDID).Msg("failed to load follows for restart")
			continue
		}
		dids := make([]string, 0, len(follows))
		for _, f := range follows {
			dids = append(dids, f.FollowDID)
		}
		if _, err := tm.StartForUser(state.UserDID, dids); err != nil {
			logging.Debug().Err(err).Str("user_did", state.UserDID).Msg("backfill restart skipped")
		}
	}
	if len(states) > 0 {
		logging.Info().Int("restarted", len(states)).Msg("interrupted backfills re-enqueued")
	}
}

func (tm *TempManager) maxConcurrent() int {
	if tm.cfg.TempMaxConcurrent > 0 {
		return tm.cfg.TempMaxConcurrent
	}
	return 50
}

// launchLocked starts one stream. Caller holds tm.mu.
func (tm *TempManager) launchLocked(userDID string, followDIDs []string) {
	handle := tm.resolver.Resolve(tm.ctx, userDID)

	ignored, err := tm.store.IgnoredDIDSet(tm.ctx)
	if err != nil {
		logging.Error().Err(err).Str("user_did", userDID).Msg("ignored-set load failed, backfilling unfiltered")
		ignored = map[string]bool{}
	}
	filtered := make([]string, 0, len(followDIDs))
	for _, did := range followDIDs {
		if !ignored[did] && models.IsValidDID(did) {
			filtered = append(filtered, did)
		}
	}

	if err := tm.store.MarkBackfillStarted(tm.ctx, userDID); err != nil {
		logging.Error().Err(err).Str("user_did", userDID).Msg("failed to mark backfill started")
	}

	if len(filtered) == 0 {
		// Nothing to replay; complete immediately without a connection.
		if err := tm.store.MarkBackfillCompleted(tm.ctx, userDID); err != nil {
			logging.Error().Err(err).Str("user_did", userDID).Msg("failed to mark backfill completed")
		}
		logging.Info().Str("user_did", userDID).Msg("backfill skipped, no follows to replay")
		return
	}

	deps := &tempStreamDeps{
		hosts:            tm.cfg.Hosts,
		maxWantedDIDs:    tm.cfg.MaxWantedDIDs,
		backfillWindow:   tm.cfg.BackfillWindow,
		reconnectMax:     tm.cfg.ReconnectMaxDelay,
		store:            tm.store,
		resolver:         tm.resolver,
		requestReconcile: tm.main.ReloadDIDsNow,
		onDone:           tm.streamDone,
	}
	stream := newTempStream(deps, userDID, handle, filtered)
	tm.active[userDID] = stream
	metrics.TempStreamsActive.Set(float64(len(tm.active)))

	stream.wg.Add(1)
	go stream.run(tm.ctx)
}

// streamDone is the onDone callback: bookkeeping, then queue promotion.
func (tm *TempManager) streamDone(userDID string, markComplete bool) {
	if markComplete {
		if err := tm.store.MarkBackfillCompleted(tm.ctx, userDID); err != nil {
			logging.Error().Err(err).Str("user_did", userDID).Msg("failed to mark backfill completed")
		}
		metrics.TempBackfillsCompleted.Inc()
	}

	tm.mu.Lock()
	delete(tm.active, userDID)
	var next *queuedRequest
	if len(tm.queue) > 0 && len(tm.active) < tm.maxConcurrent() {
		req := tm.queue[0]
		tm.queue = tm.queue[1:]
		next = &req
	}
	metrics.TempStreamsActive.Set(float64(len(tm.active)))
	metrics.TempStreamsQueued.Set(float64(len(tm.queue)))
	if next != nil {
		tm.launchLocked(next.userDID, next.followDIDs)
	}
	tm.mu.Unlock()

	logging.Info().
		Str("user_did", userDID).
		Bool("completed", markComplete).
		Msg("temp backfill stream finished")
	tm.broadcastStatus()
}

func (tm *TempManager) broadcastStatus() {
	if tm.broadcaster != nil {
		tm.broadcaster.BroadcastStatus()
	}
}
