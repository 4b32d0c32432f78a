// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/middleware"
)

// Router wires handlers and middleware into a Chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil chiMiddleware gets secure defaults.
func NewRouter(handler *Handler, cm *ChiMiddleware) *Router {
	if cm == nil {
		cm = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: cm}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the internal/middleware stack can be
// used with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// chiPathValue injects Chi URL params into the request so handlers using
// r.PathValue() work. Bridges chi.URLParam with Go 1.22+'s PathValue.
func chiPathValue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		if rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if i < len(rctx.URLParams.Values) {
					r.SetPathValue(key, rctx.URLParams.Values[i])
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chiMiddleware(middleware.RequestID)) // X-Request-ID header plus logging context
	r.Use(chimiddleware.RealIP)                // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)             // Recover from panics
	r.Use(router.chiMiddleware.CORS())         // CORS must be global to handle OPTIONS preflight

	// Health endpoints. Permissive rate limiting so monitoring tools can
	// poll frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Bare liveness alias for load balancers.
	r.With(router.chiMiddleware.RateLimitHealth()).Get("/healthz", router.handler.HealthLive)

	// Read API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		r.Use(chiPathValue)

		r.Get("/status", router.handler.Status)
		r.Get("/cursor", router.handler.Cursor)
		r.Get("/changes", router.handler.Changes)
		r.Get("/changes/{did}", router.handler.ChangesForDID)
		r.Get("/users", router.handler.Users)
	})

	// WebSocket upgrades. Kept out of the metrics and gzip wrappers since
	// the upgrade needs the raw ResponseWriter (http.Hijacker).
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/api/v1/ws", router.handler.WebSocket)

	// Admin API. Gated by the X-Admin-DID header matching the configured
	// admin DID; strict rate limiting since these operations fan out.
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAdmin())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.requireAdminDID)
		r.Use(chiPathValue)

		r.Get("/ignores", router.handler.IgnoreList)
		r.Post("/ignores", router.handler.IgnoreAdd)
		r.Delete("/ignores/{did}", router.handler.IgnoreRemove)

		r.Post("/users/{did}/monitor", router.handler.MonitorEnable)
		r.Delete("/users/{did}/monitor", router.handler.MonitorDisable)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requireAdminDID authorizes admin requests. The caller must present the
// configured admin DID in the X-Admin-DID header. With no admin DID
// configured, the whole admin surface is disabled.
func (router *Router) requireAdminDID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminDID := ""
		if router.handler.config != nil {
			adminDID = router.handler.config.Admin.DID
		}

		if adminDID == "" {
			respondError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "Admin API disabled: no admin DID configured", nil)
			return
		}

		if r.Header.Get("X-Admin-DID") != adminDID {
			logging.Warn().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Admin request rejected: DID mismatch")
			respondError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "Admin DID required", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
