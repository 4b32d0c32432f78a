// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/skywatch/internal/appview"
	"github.com/tomtom215/skywatch/internal/jetstream"
	"github.com/tomtom215/skywatch/internal/models"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	changes  []models.ProfileChange
	ignored  map[string]bool
	follows  map[string][]models.MonitoredFollow
	pingErr  error
	purged   []string
	queryErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ignored: make(map[string]bool),
		follows: make(map[string][]models.MonitoredFollow),
	}
}

func (s *fakeStore) Ping(_ context.Context) error {
	return s.pingErr
}

func (s *fakeStore) RecentChanges(_ context.Context, limit, offset int) ([]models.ProfileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if offset >= len(s.changes) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.changes) {
		end = len(s.changes)
	}
	out := make([]models.ProfileChange, end-offset)
	copy(out, s.changes[offset:end])
	return out, nil
}

func (s *fakeStore) ChangesForDID(_ context.Context, did string, limit int) ([]models.ProfileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []models.ProfileChange
	for _, c := range s.changes {
		if c.DID == did && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListIgnoredDIDs(_ context.Context) ([]models.IgnoredDID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IgnoredDID
	for did := range s.ignored {
		out = append(out, models.IgnoredDID{DID: did, AddedAt: time.Now()})
	}
	return out, nil
}

func (s *fakeStore) AddIgnoredDID(_ context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored[did] = true
	return nil
}

func (s *fakeStore) RemoveIgnoredDID(_ context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ignored, did)
	return nil
}

func (s *fakeStore) ListFollowsForUser(_ context.Context, userDID string) ([]models.MonitoredFollow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follows[userDID], nil
}

func (s *fakeStore) ReconcileFollowsForUser(_ context.Context, userDID string, authoritative []models.MonitoredFollow) (int, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := len(s.follows[userDID])
	s.follows[userDID] = authoritative
	return len(authoritative), prev, 0, nil
}

func (s *fakeStore) PurgeUser(_ context.Context, userDID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows, userDID)
	s.purged = append(s.purged, userDID)
	return nil
}

func (s *fakeStore) seedChange(did, changeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, models.ProfileChange{
		ID:         uuid.New(),
		DID:        did,
		ChangeType: changeType,
		ChangedAt:  time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
	})
}

// fakeStream records DID-set reload requests.
type fakeStream struct {
	mu      sync.Mutex
	running bool
	cursor  models.CursorInfo
	reloads []string
}

func (f *fakeStream) GetCursorInfo() models.CursorInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

func (f *fakeStream) IsRunningWithCursor() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeStream) ReloadDIDsNow(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, source)
}

func (f *fakeStream) reloadSources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reloads))
	copy(out, f.reloads)
	return out
}

// fakePool records start and stop requests.
type fakePool struct {
	mu       sync.Mutex
	started  map[string][]string
	stopped  []string
	startErr error
	queued   bool
}

func newFakePool() *fakePool {
	return &fakePool{started: make(map[string][]string)}
}

func (p *fakePool) StartForUser(userDID string, followDIDs []string) (jetstream.StartResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return jetstream.StartResult{}, p.startErr
	}
	p.started[userDID] = followDIDs
	return jetstream.StartResult{Queued: p.queued}, nil
}

func (p *fakePool) StopForUser(userDID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, userDID)
}

func (p *fakePool) CanStart(string) jetstream.CanStartResult {
	return jetstream.CanStartResult{Allowed: true}
}

// fakeStatusSource returns a canned snapshot.
type fakeStatusSource struct {
	snapshot *models.StatusSnapshot
}

func (f *fakeStatusSource) Snapshot(context.Context) *models.StatusSnapshot {
	if f.snapshot != nil {
		return f.snapshot
	}
	return &models.StatusSnapshot{GeneratedAt: time.Now().UTC()}
}

// fakeFollowSource serves canned follow lists keyed by actor.
type fakeFollowSource struct {
	follows map[string][]appview.Follow
	err     error
}

func (f *fakeFollowSource) GetAllFollows(_ context.Context, actor string) ([]appview.Follow, error) {
	if f.err != nil {
		return nil, f.err
	}
	follows, ok := f.follows[actor]
	if !ok {
		return nil, fmt.Errorf("unknown actor %s", actor)
	}
	return follows, nil
}
