// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package appview is a client for the public Bluesky appview, used to fetch
// the authoritative follow list for a monitoring user at bootstrap.
package appview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/logging"
)

const getFollowsPath = "/xrpc/app.bsky.graph.getFollows"

// maxErrorBodySize limits the response body read for error reporting.
const maxErrorBodySize = 64 * 1024

// Follow is one entry from getFollows.
type Follow struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

type getFollowsResponse struct {
	Follows []Follow `json:"follows"`
	Cursor  string   `json:"cursor"`
}

// Client paginates app.bsky.graph.getFollows against the public appview,
// throttled by a shared rate limiter. Safe for concurrent use.
type Client struct {
	cfg        *config.AppViewConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a follow-graph client from config.
func NewClient(cfg *config.AppViewConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// GetAllFollows returns every follow of actor, paginating until the appview
// stops returning a cursor or the page cap is reached. On a mid-pagination
// failure the pages fetched so far are returned along with the error, so
// callers can reconcile partially.
func (c *Client) GetAllFollows(ctx context.Context, actor string) ([]Follow, error) {
	limit := c.cfg.PageLimit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	maxPages := c.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	var (
		follows []Follow
		cursor  string
	)
	for page := 0; page < maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return follows, err
		}

		resp, err := c.getFollowsPage(ctx, actor, limit, cursor)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("actor", actor).
				Int("page", page).
				Int("fetched", len(follows)).
				Msg("follow fetch failed mid-pagination")
			return follows, err
		}

		follows = append(follows, resp.Follows...)
		if resp.Cursor == "" || len(resp.Follows) == 0 {
			return follows, nil
		}
		cursor = resp.Cursor
	}

	logging.Warn().
		Str("actor", actor).
		Int("pages", maxPages).
		Int("fetched", len(follows)).
		Msg("follow pagination hit page cap")
	return follows, nil
}

func (c *Client) getFollowsPage(ctx context.Context, actor string, limit int, cursor string) (*getFollowsResponse, error) {
	q := url.Values{}
	q.Set("actor", actor)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	reqURL := c.cfg.PublicAPIURL + getFollowsPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build getFollows request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getFollows request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("getFollows returned status %d: %s", resp.StatusCode, body)
	}

	var page getFollowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse getFollows response: %w", err)
	}
	return &page, nil
}
