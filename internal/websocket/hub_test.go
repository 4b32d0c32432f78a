// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/skywatch/internal/models"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop after context cancel")
		}
	})
	return hub, cancel
}

// registerTestClient registers a bare client with no connection. Only the
// send channel is exercised, so the nil conn is never touched.
func registerTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil)
	hub.Register <- client

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() > 0 {
			return client
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client was not registered")
	return nil
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub, _ := startHub(t)
	client := registerTestClient(t, hub)

	hub.OnStatus(&models.StatusSnapshot{GeneratedAt: time.Now().UTC()})

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeStatus {
			t.Errorf("expected status message, got %q", msg.Type)
		}
		if _, ok := msg.Data.(*models.StatusSnapshot); !ok {
			t.Errorf("expected snapshot payload, got %T", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never reached client")
	}
}

func TestHubCursorMessage(t *testing.T) {
	hub, _ := startHub(t)
	client := registerTestClient(t, hub)

	ts := time.Now().UTC().Format(time.RFC3339)
	hub.OnCursor(models.CursorInfo{Timestamp: &ts, IsInBackfill: true})

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeCursor {
			t.Errorf("expected cursor message, got %q", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cursor broadcast never reached client")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub, _ := startHub(t)
	client := registerTestClient(t, hub)

	hub.Unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel, got a message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed on unregister")
	}
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", count)
	}
}

func TestHubRemovesSlowClients(t *testing.T) {
	hub, _ := startHub(t)
	client := registerTestClient(t, hub)

	// Never drain client.send; keep broadcasting until the full buffer
	// causes removal.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.BroadcastJSON(MessageTypeStatus, "fill")
		if hub.GetClientCount() == 0 {
			// Removal closes send behind the buffered frames.
			for {
				select {
				case _, ok := <-client.send:
					if !ok {
						return
					}
				case <-time.After(2 * time.Second):
					t.Fatal("send channel was not closed on removal")
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("slow client was not removed")
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := registerTestClient(t, hub)

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed on shutdown")
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatalf("MarshalMessage failed: %v", err)
	}
	if string(data) != `{"type":"pong","data":null}` {
		t.Errorf("unexpected payload %s", data)
	}
}
