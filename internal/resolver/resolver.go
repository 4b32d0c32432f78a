// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package resolver maps DIDs to handles via the PLC directory and did:web
// well-known documents. Results, including failures, are cached in a bounded
// insertion-order cache; callers must not depend on cache contents for
// correctness.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/skywatch/internal/cache"
	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

const (
	didWebPrefix = "did:web:"
	atURIPrefix  = "at://"

	// maxResponseBytes bounds directory and well-known response bodies.
	maxResponseBytes = 1 << 20
)

// didDocument is the subset of a DID document the resolver reads.
type didDocument struct {
	AlsoKnownAs []string `json:"alsoKnownAs"`
}

// auditEntry is one PLC audit log entry, newest first.
type auditEntry struct {
	AlsoKnownAs []string `json:"alsoKnownAs"`
}

// Resolver resolves DIDs to handles with a bounded cache and a circuit
// breaker in front of the PLC directory.
type Resolver struct {
	cfg        *config.ResolverConfig
	httpClient *http.Client
	cache      *cache.HandleCache
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Resolver from config.
func New(cfg *config.ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = cache.DefaultHandleCacheCapacity
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "plc-directory",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
		},
	})

	return &Resolver{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:   cache.NewHandleCache(capacity),
		breaker: breaker,
	}
}

// Resolve returns the current handle for did, or "" when the DID has no
// handle or resolution fails. Failures are cached as negative entries so a
// flapping directory is not hammered.
func (r *Resolver) Resolve(ctx context.Context, did string) string {
	if !models.IsValidDID(did) {
		return ""
	}

	if handle, resolved, cached := r.cache.Lookup(did); cached {
		metrics.ResolverCacheHits.Inc()
		if !resolved {
			return ""
		}
		return handle
	}
	metrics.ResolverCacheMisses.Inc()

	handle, err := r.fetchCurrentHandle(ctx, did)
	if err != nil {
		metrics.ResolverRequests.WithLabelValues("current", "failure").Inc()
		logging.Debug().Err(err).Str("did", did).Msg("handle resolution failed")
		r.cache.PutNegative(did)
		return ""
	}
	metrics.ResolverRequests.WithLabelValues("current", "success").Inc()

	if handle == "" {
		r.cache.PutNegative(did)
		return ""
	}
	r.cache.Put(did, handle)
	return handle
}

// ResolvePrevious returns the handle a did:plc DID held before its most
// recent identity operation, derived from the second entry of the PLC audit
// log. Returns "" when there is no prior entry or the lookup fails. Previous
// handles are never cached; the audit log answer changes with every identity
// operation.
func (r *Resolver) ResolvePrevious(ctx context.Context, did string) string {
	if !strings.HasPrefix(did, "did:plc:") {
		return ""
	}

	body, err := r.getViaBreaker(ctx, fmt.Sprintf("%s/%s/log", r.cfg.PLCDirectoryURL, did))
	if err != nil {
		metrics.ResolverRequests.WithLabelValues("previous", "failure").Inc()
		logging.Debug().Err(err).Str("did", did).Msg("audit log fetch failed")
		return ""
	}
	metrics.ResolverRequests.WithLabelValues("previous", "success").Inc()

	var entries []auditEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		logging.Debug().Err(err).Str("did", did).Msg("audit log parse failed")
		return ""
	}
	// Newest first; the second entry holds the pre-change aliases.
	if len(entries) < 2 {
		return ""
	}
	return handleFromAliases(entries[1].AlsoKnownAs)
}

// ResolveMany resolves a batch of DIDs sequentially, returning a did→handle
// map. Unresolvable DIDs map to "".
func (r *Resolver) ResolveMany(ctx context.Context, dids []string) map[string]string {
	handles := make(map[string]string, len(dids))
	for _, did := range dids {
		if ctx.Err() != nil {
			break
		}
		handles[did] = r.Resolve(ctx, did)
	}
	return handles
}

// Invalidate drops any cached entry for did. Identity events call this so
// the next resolution reflects the new handle.
func (r *Resolver) Invalidate(did string) {
	r.cache.Remove(did)
}

// CacheStats exposes hit counters for the status surface.
func (r *Resolver) CacheStats() (hits, misses int64, size int) {
	return r.cache.Stats()
}

func (r *Resolver) fetchCurrentHandle(ctx context.Context, did string) (string, error) {
	var (
		body []byte
		err  error
	)
	switch {
	case strings.HasPrefix(did, didWebPrefix):
		host := strings.TrimPrefix(did, didWebPrefix)
		body, err = r.get(ctx, fmt.Sprintf("https://%s/.well-known/did.json", host))
	default:
		body, err = r.getViaBreaker(ctx, fmt.Sprintf("%s/%s", r.cfg.PLCDirectoryURL, did))
	}
	if err != nil {
		return "", err
	}

	var doc didDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse did document: %w", err)
	}
	return handleFromAliases(doc.AlsoKnownAs), nil
}

// getViaBreaker routes PLC directory requests through the circuit breaker.
// did:web hosts are independent origins and bypass it.
func (r *Resolver) getViaBreaker(ctx context.Context, url string) ([]byte, error) {
	return r.breaker.Execute(func() ([]byte, error) {
		return r.get(ctx, url)
	})
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// handleFromAliases returns the suffix of the first at:// alias, or "".
func handleFromAliases(aliases []string) string {
	for _, alias := range aliases {
		if strings.HasPrefix(alias, atURIPrefix) {
			return strings.TrimPrefix(alias, atURIPrefix)
		}
	}
	return ""
}
