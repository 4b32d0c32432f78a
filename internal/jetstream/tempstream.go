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

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

// tempStreamDeps is the slice of dependencies a temp stream needs, filled in
// by the manager.
type tempStreamDeps struct {
	hosts            []string
	maxWantedDIDs    int
	backfillWindow   time.Duration
	reconnectMax     time.Duration
	store            Store
	resolver         Resolver
	requestReconcile func(source string)
	onDone           func(userDID string, markComplete bool)
}

// tempStream replays the retention window for one user's follows on a
// short-lived parallel connection, then terminates itself at catch-up.
type tempStream struct {
	deps       *tempStreamDeps
	userDID    string
	userHandle string
	followDIDs []string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn

	// markComplete is false only on process shutdown; the interrupted
	// backfill is then rerun by the boot-time scan.
	markComplete bool

	// cursor and startWallMillis are touched only by the reader goroutine.
	cursor          int64
	startWallMillis int64
}

func newTempStream(deps *tempStreamDeps, userDID, userHandle string, followDIDs []string) *tempStream {
	return &tempStream{
		deps:         deps,
		userDID:      userDID,
		userHandle:   userHandle,
		followDIDs:   followDIDs,
		stopChan:     make(chan struct{}),
		markComplete: true,
	}
}

// stop requests termination. markComplete false leaves the backfill state
// incomplete so the boot-time scan reruns it.
func (t *tempStream) stop(markComplete bool) {
	t.mu.Lock()
	if !markComplete {
		t.markComplete = false
	}
	conn := t.conn
	t.mu.Unlock()

	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	if conn != nil {
		_ = conn.Close()
	}
}

// run drives the stream to catch-up or stop, then reports to the manager.
func (t *tempStream) run(ctx context.Context) {
	defer t.wg.Done()
	defer t.finish()

	t.cursor = RetentionHorizonMicros(t.deps.backfillWindow)
	t.startWallMillis = time.Now().UnixMilli()

	logging.Info().
		Str("user_did", t.userDID).
		Str("user_handle", t.userHandle).
		Int("follow_dids", len(t.followDIDs)).
		Msg("temp backfill stream starting")

	dispatcher := NewDispatcher(DispatcherConfig{
		Stream:           "temp:" + t.userDID,
		Temp:             true,
		Store:            t.deps.store,
		Resolver:         t.deps.resolver,
		IsMonitoringUser: func(did string) bool { return did == t.userDID },
		RequestReconcile: t.deps.requestReconcile,
	})

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}

		caughtUp, err := t.connectAndRead(ctx, dispatcher)
		if caughtUp {
			return
		}
		if err == nil {
			// Deliberate close via stop.
			return
		}

		logging.Warn().
			Err(err).
			Str("user_did", t.userDID).
			Int("attempt", attempt).
			Msg("temp stream connection ended")
		metrics.StreamReconnects.WithLabelValues("temp", "error").Inc()
		if !t.sleepBackoff(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (t *tempStream) connectAndRead(ctx context.Context, dispatcher *Dispatcher) (caughtUp bool, err error) {
	cursor := t.cursor
	url, host, err := BuildSubscribeURL(t.deps.hosts, &cursor)
	if err != nil {
		return false, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("websocket dial to %s failed: %w", host, err)
	}

	options, err := BuildOptionsMessage(t.followDIDs, t.deps.maxWantedDIDs)
	if err != nil {
		_ = conn.Close()
		return false, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, options); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to send options message: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer func() {
		_ = conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	logging.Info().
		Str("user_did", t.userDID).
		Str("host", host).
		Int64("cursor", cursor).
		Msg("temp stream connected")

	for {
		_, payload, readErr := conn.ReadMessage()
		if readErr != nil {
			select {
			case <-t.stopChan:
				return false, nil
			default:
			}
			return false, fmt.Errorf("read failed: %w", readErr)
		}

		var event models.JetstreamEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			metrics.EventsMalformed.Inc()
			logging.Debug().Err(err).Str("user_did", t.userDID).Msg("skipping malformed frame")
			continue
		}

		if err := dispatcher.HandleEvent(ctx, &event); err != nil {
			metrics.EventsFailed.WithLabelValues("temp", event.Kind).Inc()
			logging.Error().
				Err(err).
				Str("user_did", t.userDID).
				Str("did", event.DID).
				Str("kind", event.Kind).
				Msg("temp stream handler failed, cursor held")
			continue
		}

		if event.TimeUS > t.cursor {
			t.cursor = event.TimeUS
		}

		// Catch-up: the replay has reached the stream's own start time;
		// from here the main stream covers these DIDs.
		if event.TimeUS/1000 >= t.startWallMillis {
			logging.Info().
				Str("user_did", t.userDID).
				Msg("temp stream caught up")
			return true, nil
		}
	}
}

func (t *tempStream) finish() {
	t.mu.Lock()
	markComplete := t.markComplete
	t.mu.Unlock()
	t.deps.onDone(t.userDID, markComplete)
}

func (t *tempStream) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(1<<uint(min(attempt, 30))) * time.Second
	if delay > t.deps.reconnectMax {
		delay = t.deps.reconnectMax
	}
	select {
	case <-ctx.Done():
		return false
	case <-t.stopChan:
		return false
	case <-time.After(delay):
		return true
	}
}
