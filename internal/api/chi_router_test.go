// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/models"
)

type testEnv struct {
	store   *fakeStore
	stream  *fakeStream
	pool    *fakePool
	status  *fakeStatusSource
	follows *fakeFollowSource
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   newFakeStore(),
		stream:  &fakeStream{running: true},
		pool:    newFakePool(),
		status:  &fakeStatusSource{},
		follows: &fakeFollowSource{},
	}

	cfg := &config.Config{}
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Admin.DID = "did:plc:adminuser"

	h := NewHandler(env.store, cfg, env.stream, env.pool, env.status, env.follows, nil)

	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	router := NewRouter(h, NewChiMiddleware(mwCfg))
	env.handler = router.SetupChi()
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return &resp
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("full health is healthy", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Status != "success" {
			t.Errorf("expected success status, got %s", resp.Status)
		}
		data := resp.Data.(map[string]interface{})
		if data["status"] != "healthy" {
			t.Errorf("expected healthy, got %v", data["status"])
		}
	})

	t.Run("degraded when stream down", func(t *testing.T) {
		env := newTestEnv(t)
		env.stream.running = false
		rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
		data := decodeResponse(t, rec).Data.(map[string]interface{})
		if data["status"] != "degraded" {
			t.Errorf("expected degraded, got %v", data["status"])
		}
	})

	t.Run("liveness alias", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/healthz", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("readiness fails without database", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.pingErr = context.DeadlineExceeded
		rec := env.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.status.snapshot = &models.StatusSnapshot{
		MainStream:  models.MainStreamStatus{Running: true, MonitoredDIDs: 42, HasValidCursor: true},
		GeneratedAt: time.Now().UTC(),
	}

	rec := env.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	main := data["mainStream"].(map[string]interface{})
	if main["monitoredDids"].(float64) != 42 {
		t.Errorf("expected 42 monitored DIDs, got %v", main["monitoredDids"])
	}
}

func TestCursorEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := "2026-08-24T12:00:00Z"
	env.stream.cursor = models.CursorInfo{Timestamp: &ts, IsInBackfill: true}

	rec := env.do(t, http.MethodGet, "/api/v1/cursor", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data := decodeResponse(t, rec).Data.(map[string]interface{})
	if data["timestamp_iso"] != ts {
		t.Errorf("expected cursor timestamp %s, got %v", ts, data["timestamp_iso"])
	}
	if data["isInBackfill"] != true {
		t.Errorf("expected isInBackfill true, got %v", data["isInBackfill"])
	}
}

func TestChangesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedChange("did:plc:aaa", models.ChangeTypeHandle)
	env.store.seedChange("did:plc:bbb", models.ChangeTypeProfile)
	env.store.seedChange("did:plc:aaa", models.ChangeTypeCombined)

	t.Run("lists changes", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/changes", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		data := decodeResponse(t, rec).Data.(map[string]interface{})
		if data["total"].(float64) != 3 {
			t.Errorf("expected 3 changes, got %v", data["total"])
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/changes?limit=2", "", nil)
		data := decodeResponse(t, rec).Data.(map[string]interface{})
		if data["total"].(float64) != 2 {
			t.Errorf("expected 2 changes, got %v", data["total"])
		}
	})

	t.Run("rejects out of range limit", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/changes?limit=10000", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("expected VALIDATION_ERROR, got %+v", resp.Error)
		}
	})

	t.Run("filters by DID", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/changes/did:plc:aaa", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		data := decodeResponse(t, rec).Data.(map[string]interface{})
		if data["total"].(float64) != 2 {
			t.Errorf("expected 2 changes for did:plc:aaa, got %v", data["total"])
		}
	})

	t.Run("rejects malformed DID", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/changes/notadid", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.status.snapshot = &models.StatusSnapshot{
		Users: []models.UserBackfillStatus{
			{DID: "did:plc:aaa", Handle: "alice.bsky.social", MonitoredCount: 12},
		},
		GeneratedAt: time.Now().UTC(),
	}

	rec := env.do(t, http.MethodGet, "/api/v1/users", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeResponse(t, rec).Data.(map[string]interface{})
	if data["total"].(float64) != 1 {
		t.Errorf("expected 1 user, got %v", data["total"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected DENY, got %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected Prometheus metrics output")
	}
}
