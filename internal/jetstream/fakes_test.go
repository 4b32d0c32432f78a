// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/skywatch/internal/appview"
	"github.com/tomtom215/skywatch/internal/database"
	"github.com/tomtom215/skywatch/internal/models"
)

// fakeStore is an in-memory Store for stream-layer tests.
type fakeStore struct {
	mu       sync.Mutex
	ignored  map[string]bool
	changes  []models.ProfileChange
	follows  map[string]map[string]models.MonitoredFollow // user -> follow -> row
	backfill map[string]models.BackfillState
	settings map[string]string

	completedCalls []string
	startedCalls   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ignored:  make(map[string]bool),
		follows:  make(map[string]map[string]models.MonitoredFollow),
		backfill: make(map[string]models.BackfillState),
		settings: make(map[string]string),
	}
}

func (s *fakeStore) IsIgnored(_ context.Context, did string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ignored[did], nil
}

func (s *fakeStore) InsertChange(_ context.Context, candidate *models.ProfileChange) (*models.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ignored[candidate.DID] {
		return &models.InsertResult{Outcome: models.InsertOutcomeIgnored}, nil
	}
	row := *candidate
	row.ID = uuid.New()
	s.changes = append(s.changes, row)
	return &models.InsertResult{Outcome: models.InsertOutcomeInserted, Row: &row}, nil
}

func (s *fakeStore) LastKnownHandle(_ context.Context, did string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.changes) - 1; i >= 0; i-- {
		c := s.changes[i]
		if c.DID != did {
			continue
		}
		if c.NewHandle != nil && *c.NewHandle != "" {
			return *c.NewHandle, nil
		}
		if c.Handle != nil && *c.Handle != "" {
			return *c.Handle, nil
		}
	}
	return "", nil
}

func (s *fakeStore) IgnoredDIDSet(_ context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.ignored))
	for k, v := range s.ignored {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) UpsertFollow(_ context.Context, f *models.MonitoredFollow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[f.UserDID] == nil {
		s.follows[f.UserDID] = make(map[string]models.MonitoredFollow)
	}
	s.follows[f.UserDID][f.FollowDID] = *f
	return nil
}

func (s *fakeStore) GetFollow(_ context.Context, userDID, followDID string) (*models.MonitoredFollow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.follows[userDID][followDID]; ok {
		return &f, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) FindFollowByRKey(_ context.Context, userDID, rkey string) (*models.MonitoredFollow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.follows[userDID] {
		if f.RKey == rkey {
			return &f, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) DeleteFollow(_ context.Context, userDID, followDID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[userDID], followDID)
	return nil
}

func (s *fakeStore) IsFollowedByAnyUser(_ context.Context, followDID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byDID := range s.follows {
		if _, ok := byDID[followDID]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListMonitoringUserDIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for user, byDID := range s.follows {
		if len(byDID) > 0 {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *fakeStore) ListMonitoredFollowDIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var dids []string
	for _, byDID := range s.follows {
		for did := range byDID {
			if !seen[did] {
				seen[did] = true
				dids = append(dids, did)
			}
		}
	}
	return dids, nil
}

func (s *fakeStore) ReconcileFollowsForUser(_ context.Context, userDID string, authoritative []models.MonitoredFollow) (int, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDID := make(map[string]models.MonitoredFollow, len(authoritative))
	for _, f := range authoritative {
		f.UserDID = userDID
		byDID[f.FollowDID] = f
	}
	s.follows[userDID] = byDID
	return len(authoritative), 0, 0, nil
}

func (s *fakeStore) ListFollowsForUser(_ context.Context, userDID string) ([]models.MonitoredFollow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MonitoredFollow
	for _, f := range s.follows[userDID] {
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeStore) MarkBackfillStarted(_ context.Context, userDID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.backfill[userDID] = models.BackfillState{UserDID: userDID, LastStartedAt: &now, UpdatedAt: now}
	s.startedCalls = append(s.startedCalls, userDID)
	return nil
}

func (s *fakeStore) MarkBackfillCompleted(_ context.Context, userDID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.backfill[userDID]
	now := time.Now()
	state.UserDID = userDID
	state.LastCompletedAt = &now
	state.UpdatedAt = now
	s.backfill[userDID] = state
	s.completedCalls = append(s.completedCalls, userDID)
	return nil
}

func (s *fakeStore) ListIncompleteBackfills(_ context.Context) ([]models.BackfillState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BackfillState
	for _, state := range s.backfill {
		if state.LastStartedAt != nil && !state.HasCompletedBackfill() {
			out = append(out, state)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	return "", database.ErrNotFound
}

func (s *fakeStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) changeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

func (s *fakeStore) lastChange() *models.ProfileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.changes) == 0 {
		return nil
	}
	c := s.changes[len(s.changes)-1]
	return &c
}

// fakeResolver returns canned handles.
type fakeResolver struct {
	mu       sync.Mutex
	current  map[string]string
	previous map[string]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		current:  make(map[string]string),
		previous: make(map[string]string),
	}
}

func (r *fakeResolver) Resolve(_ context.Context, did string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current[did]
}

func (r *fakeResolver) ResolvePrevious(_ context.Context, did string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous[did]
}

func (r *fakeResolver) ResolveMany(ctx context.Context, dids []string) map[string]string {
	out := make(map[string]string, len(dids))
	for _, did := range dids {
		out[did] = r.Resolve(ctx, did)
	}
	return out
}

func (r *fakeResolver) Invalidate(did string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.current, did)
}

// fakeFollowSource serves canned follow lists.
type fakeFollowSource struct {
	follows map[string][]appview.Follow
}

func (f *fakeFollowSource) GetAllFollows(_ context.Context, actor string) ([]appview.Follow, error) {
	return f.follows[actor], nil
}
