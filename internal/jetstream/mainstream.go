// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/skywatch/internal/appview"
	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/database"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

// idleRecheckInterval is how often an idle main stream re-gathers the DID
// set when no reconcile signal arrives.
const idleRecheckInterval = 30 * time.Second

// MainStream is the persistent Jetstream connection covering every
// monitored DID. It owns its connection, cursor, snapshot map, and
// reconnect timer exclusively.
type MainStream struct {
	cfg         *config.JetstreamConfig
	store       Store
	resolver    Resolver
	follows     FollowSource
	broadcaster Broadcaster

	mu         sync.Mutex
	conn       *websocket.Conn
	running    bool
	stopChan   chan struct{}
	startedAt  time.Time
	wanted     []string
	monitoring map[string]bool
	host       string
	immediate  bool
	wg         sync.WaitGroup

	// reconcileCh carries at most one pending reconcile request;
	// concurrent requests coalesce.
	reconcileCh chan string

	// lastCursor is the last event time processed, 0 when none.
	lastCursor atomic.Int64

	// startWallMicros is the wall clock at Start, used to detect catch-up.
	startWallMicros atomic.Int64

	inBackfill atomic.Bool
	connected  atomic.Bool
}

// NewMainStream wires the main stream manager. broadcaster may be nil.
func NewMainStream(cfg *config.JetstreamConfig, store Store, resolver Resolver, follows FollowSource, broadcaster Broadcaster) *MainStream {
	return &MainStream{
		cfg:         cfg,
		store:       store,
		resolver:    resolver,
		follows:     follows,
		broadcaster: broadcaster,
		monitoring:  make(map[string]bool),
		reconcileCh: make(chan string, 1),
	}
}

// Start launches the stream. cursor seeds the first connection; nil means
// live tailing. The follow-sync bootstrap runs before the first connect;
// its failure is logged and non-fatal.
func (m *MainStream) Start(ctx context.Context, cursor *int64) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("main stream already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.startedAt = time.Now()
	m.mu.Unlock()

	now := time.Now().UnixMicro()
	m.startWallMicros.Store(now)
	if cursor != nil {
		m.lastCursor.Store(*cursor)
		if cursorAge(*cursor) > m.cfg.BackfillThreshold {
			m.inBackfill.Store(true)
			metrics.MainStreamInBackfill.Set(1)
			logging.Info().
				Dur("lag", cursorAge(*cursor)).
				Msg("main stream starting in backfill mode")
		}
	}

	m.wg.Add(1)
	go m.run(ctx)

	logging.Info().Msg("main stream started")
	return nil
}

// Stop closes the stream and persists the stop cursor for resume.
func (m *MainStream) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.Unlock()

	m.wg.Wait()

	if cursor := m.lastCursor.Load(); cursor > 0 {
		if err := m.store.SetSetting(ctx, database.SettingStopCursor, strconv.FormatInt(cursor, 10)); err != nil {
			logging.Error().Err(err).Msg("failed to persist stop cursor")
		}
		if err := m.store.SetSetting(ctx, database.SettingStopTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
			logging.Error().Err(err).Msg("failed to persist stop time")
		}
	}

	m.lastCursor.Store(0)
	m.startWallMicros.Store(0)
	m.inBackfill.Store(false)
	m.connected.Store(false)
	metrics.MainStreamConnected.Set(0)
	metrics.MainStreamInBackfill.Set(0)

	m.broadcastStatus()
	logging.Info().Msg("main stream stopped")
}

// ReloadDIDsNow requests a DID-set reconciliation. Requests arriving while
// one is pending coalesce into it.
func (m *MainStream) ReloadDIDsNow(source string) {
	select {
	case m.reconcileCh <- source:
	default:
	}
}

// IsMonitoringUser reports whether did belongs to a monitoring user, from
// the set loaded at the last reconciliation.
func (m *MainStream) IsMonitoringUser(did string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring[did]
}

// GetCursorInfo returns the cursor notification payload.
func (m *MainStream) GetCursorInfo() models.CursorInfo {
	info := models.CursorInfo{IsInBackfill: m.inBackfill.Load()}
	if cursor := m.lastCursor.Load(); cursor > 0 {
		ts := time.UnixMicro(cursor).UTC().Format(time.RFC3339)
		info.Timestamp = &ts
	}
	return info
}

// GetUptimeInfo returns the start time and uptime; zero values when the
// stream is not running.
func (m *MainStream) GetUptimeInfo() (time.Time, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return time.Time{}, 0
	}
	return m.startedAt, time.Since(m.startedAt)
}

// IsRunningWithCursor reports whether the stream is up, holds a cursor, and
// has been up long enough for the cursor to be trusted. The temp-pool
// auto-restart scan gates on this.
func (m *MainStream) IsRunningWithCursor() bool {
	m.mu.Lock()
	running := m.running
	startedAt := m.startedAt
	m.mu.Unlock()

	if !running || m.lastCursor.Load() == 0 {
		return false
	}
	return time.Since(startedAt) >= m.cfg.ValidCursorUptime
}

// GetMainStreamStatus returns the broadcaster's view of the stream.
func (m *MainStream) GetMainStreamStatus() models.MainStreamStatus {
	m.mu.Lock()
	wanted := len(m.wanted)
	m.mu.Unlock()
	return models.MainStreamStatus{
		Running:        m.connected.Load(),
		MonitoredDIDs:  wanted,
		HasValidCursor: m.IsRunningWithCursor(),
	}
}

// RecommendedStartCursor returns the persisted stop cursor when the stop
// was within the upstream retention window, else nil (live tailing).
func (m *MainStream) RecommendedStartCursor(ctx context.Context) *int64 {
	raw, err := m.store.GetSetting(ctx, database.SettingStopCursor)
	if err != nil {
		return nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}

	stoppedRaw, err := m.store.GetSetting(ctx, database.SettingStopTime)
	if err != nil {
		return nil
	}
	stopped, err := time.Parse(time.RFC3339, stoppedRaw)
	if err != nil {
		return nil
	}
	if time.Since(stopped) >= m.cfg.BackfillWindow {
		logging.Info().
			Time("stopped_at", stopped).
			Msg("stop cursor past retention window, starting live")
		return nil
	}
	return &cursor
}

// run is the connection loop: gather DIDs, connect, read, reconnect.
func (m *MainStream) run(ctx context.Context) {
	defer m.wg.Done()

	m.bootstrapFollowSync(ctx)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		default:
		}

		dids, monitoring, err := m.gatherWantedDIDs(ctx)
		if err != nil {
			logging.Error().Err(err).Msg("failed to gather wanted DIDs")
			if !m.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		m.mu.Lock()
		m.wanted = dids
		m.monitoring = monitoring
		m.mu.Unlock()
		metrics.MonitoredDIDs.Set(float64(len(dids)))

		if len(dids) == 0 {
			// IDLE: nothing to watch, no connection held open.
			m.connected.Store(false)
			metrics.MainStreamConnected.Set(0)
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case src := <-m.reconcileCh:
				logging.Info().Str("source", src).Msg("idle main stream woken by reconcile")
			case <-time.After(idleRecheckInterval):
			}
			continue
		}

		if err := m.connectAndRead(ctx, dids); err != nil {
			logging.Warn().Err(err).Int("attempt", attempt).Msg("main stream connection ended")
			metrics.StreamReconnects.WithLabelValues("main", "error").Inc()
			if !m.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		// Clean close: either stop, or a reconcile asked for an
		// immediate reconnect with a fresh DID set.
		m.mu.Lock()
		immediate := m.immediate
		m.immediate = false
		m.mu.Unlock()
		if immediate {
			metrics.StreamReconnects.WithLabelValues("main", "reconcile").Inc()
		}
		attempt = 0
	}
}

// bootstrapFollowSync reconciles each monitoring user's persisted follow set
// against the follow-graph API before the first connect.
func (m *MainStream) bootstrapFollowSync(ctx context.Context) {
	users, err := m.store.ListMonitoringUserDIDs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("follow-sync bootstrap skipped")
		metrics.FollowSyncRuns.WithLabelValues("failure").Inc()
		return
	}

	for _, user := range users {
		follows, err := m.follows.GetAllFollows(ctx, user)
		if err != nil {
			logging.Warn().Err(err).Str("user_did", user).Msg("follow-sync fetch failed")
			metrics.FollowSyncRuns.WithLabelValues("failure").Inc()
			continue
		}
		authoritative := make([]models.MonitoredFollow, 0, len(follows))
		for _, f := range follows {
			if !models.IsValidDID(f.DID) {
				continue
			}
			authoritative = append(authoritative, models.MonitoredFollow{
				UserDID:      user,
				FollowDID:    f.DID,
				FollowHandle: f.Handle,
			})
		}
		if _, _, _, err := m.store.ReconcileFollowsForUser(ctx, user, authoritative); err != nil {
			logging.Warn().Err(err).Str("user_did", user).Msg("follow-sync reconcile failed")
			metrics.FollowSyncRuns.WithLabelValues("failure").Inc()
			continue
		}
		metrics.FollowSyncRuns.WithLabelValues("success").Inc()
	}
}

// gatherWantedDIDs builds the upstream DID set: monitoring users first so
// the truncation cap never drops them, then follow subjects, minus ignored.
func (m *MainStream) gatherWantedDIDs(ctx context.Context) ([]string, map[string]bool, error) {
	users, err := m.store.ListMonitoringUserDIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	subjects, err := m.store.ListMonitoredFollowDIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	ignored, err := m.store.IgnoredDIDSet(ctx)
	if err != nil {
		return nil, nil, err
	}

	monitoring := make(map[string]bool, len(users))
	seen := make(map[string]bool, len(users)+len(subjects))
	dids := make([]string, 0, len(users)+len(subjects))
	for _, did := range users {
		monitoring[did] = true
		if !seen[did] {
			seen[did] = true
			dids = append(dids, did)
		}
	}
	for _, did := range subjects {
		if ignored[did] || seen[did] {
			continue
		}
		seen[did] = true
		dids = append(dids, did)
	}
	return dids, monitoring, nil
}

// connectAndRead holds one connection for its lifetime. A nil return means
// a deliberate close (stop or reconcile); an error means the socket failed.
func (m *MainStream) connectAndRead(ctx context.Context, dids []string) error {
	cursor := m.lastCursor.Load()
	var cursorArg *int64
	if cursor > 0 {
		cursorArg = &cursor
	}

	url, host, err := BuildSubscribeURL(m.cfg.Hosts, cursorArg)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("websocket dial to %s failed: %w", host, err)
	}

	options, err := BuildOptionsMessage(dids, m.cfg.MaxWantedDIDs)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, options); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send options message: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.host = host
	m.mu.Unlock()
	m.connected.Store(true)
	metrics.MainStreamConnected.Set(1)
	logging.Info().
		Str("host", host).
		Int("wanted_dids", len(dids)).
		Bool("resuming", cursorArg != nil).
		Msg("main stream connected")
	m.broadcastStatus()

	dispatcher := NewDispatcher(DispatcherConfig{
		Stream:           "main",
		Store:            m.store,
		Resolver:         m.resolver,
		InBackfill:       m.inBackfill.Load,
		IsMonitoringUser: m.IsMonitoringUser,
		RequestReconcile: m.ReloadDIDsNow,
	})

	// The reader blocks in ReadMessage; the watcher closes the socket to
	// deliver stop and reconcile signals.
	watcherDone := make(chan struct{})
	deliberate := make(chan struct{}, 1)
	go m.watchConnection(ctx, conn, watcherDone, deliberate)

	readErr := m.readLoop(ctx, conn, dispatcher)

	close(watcherDone)
	_ = conn.Close()
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
	m.connected.Store(false)
	metrics.MainStreamConnected.Set(0)
	m.broadcastStatus()

	select {
	case <-deliberate:
		return nil
	default:
	}
	return readErr
}

// watchConnection closes conn when a stop or an effective reconcile arrives.
func (m *MainStream) watchConnection(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, deliberate chan<- struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			deliberate <- struct{}{}
			_ = conn.Close()
			return
		case <-m.stopChan:
			deliberate <- struct{}{}
			_ = conn.Close()
			return
		case src := <-m.reconcileCh:
			dids, monitoring, err := m.gatherWantedDIDs(ctx)
			if err != nil {
				logging.Error().Err(err).Str("source", src).Msg("reconcile failed")
				continue
			}
			m.mu.Lock()
			changed := !equalStringSlices(dids, m.wanted)
			m.monitoring = monitoring
			if changed {
				m.wanted = dids
				m.immediate = true
			}
			m.mu.Unlock()
			metrics.MonitoredDIDs.Set(float64(len(dids)))

			if !changed {
				logging.Debug().Str("source", src).Msg("reconcile found no DID-set change")
				continue
			}
			logging.Info().
				Str("source", src).
				Int("wanted_dids", len(dids)).
				Msg("DID set changed, reconnecting")
			deliberate <- struct{}{}
			_ = conn.Close()
			return
		}
	}
}

// readLoop processes frames until the socket closes. Per-event handler
// failure is logged and the cursor not advanced, so the event is
// re-delivered after reconnect.
func (m *MainStream) readLoop(ctx context.Context, conn *websocket.Conn, dispatcher *Dispatcher) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var event models.JetstreamEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			metrics.EventsMalformed.Inc()
			logging.Debug().Err(err).Msg("skipping malformed frame")
			continue
		}

		if err := dispatcher.HandleEvent(ctx, &event); err != nil {
			metrics.EventsFailed.WithLabelValues("main", event.Kind).Inc()
			logging.Error().
				Err(err).
				Str("did", event.DID).
				Str("kind", event.Kind).
				Msg("event handler failed, cursor held")
			continue
		}

		m.advanceCursor(event.TimeUS)
	}
}

// advanceCursor moves the cursor forward and flips backfill mode off once
// the stream catches up to its start time.
func (m *MainStream) advanceCursor(timeUS int64) {
	if timeUS <= 0 {
		return
	}
	for {
		prev := m.lastCursor.Load()
		if timeUS <= prev {
			break
		}
		if m.lastCursor.CompareAndSwap(prev, timeUS) {
			break
		}
	}

	metrics.CursorLagSeconds.Set(cursorAge(m.lastCursor.Load()).Seconds())

	if m.inBackfill.Load() && timeUS >= m.startWallMicros.Load() {
		m.inBackfill.Store(false)
		metrics.MainStreamInBackfill.Set(0)
		logging.Info().Msg("main stream caught up, leaving backfill mode")
	}

	if m.broadcaster != nil {
		m.broadcaster.BroadcastCursor(m.GetCursorInfo())
	}
}

// sleepBackoff waits min(2^attempt s, max) or until stop. Returns false when
// the stream should exit.
func (m *MainStream) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(1<<uint(min(attempt, 30))) * time.Second
	if delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}
	select {
	case <-ctx.Done():
		return false
	case <-m.stopChan:
		return false
	case <-time.After(delay):
		return true
	}
}

func (m *MainStream) broadcastStatus() {
	if m.broadcaster != nil {
		m.broadcaster.BroadcastStatus()
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ FollowSource = (*appview.Client)(nil)
